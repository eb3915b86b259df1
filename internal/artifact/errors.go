package artifact

import (
	"errors"
	"fmt"
)

// ErrOffline is returned when an artifact is missing locally and the
// resolver is not allowed to touch the network.
var ErrOffline = errors.New("artifact not cached and offline mode is enabled")

// DownloadError is returned once every attempt at fetching URL has failed.
type DownloadError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// HashMismatchError reports a downloaded file whose sha1 differs from the
// expected one.
type HashMismatchError struct {
	Path string
	Want string
	Got  string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("sha1 mismatch for %s: want %s, got %s", e.Path, e.Want, e.Got)
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
}

// Temporary reports whether retrying the request may help.
func (e *StatusError) Temporary() bool {
	return e.Code == 429 || e.Code >= 500
}

// IsNotFound reports whether err is a 404 from a repository.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == 404
}
