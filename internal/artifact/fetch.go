package artifact

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/lucasnoah/mcpforge/internal/fsutil"
	"github.com/lucasnoah/mcpforge/internal/hashstore"
)

// Fetcher downloads a URL to dest. When sha1 is non-empty the content is
// verified before dest is replaced. FetchETag revalidates an existing dest
// with the ETag remembered from the previous download.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest, sha1 string) error
	FetchETag(ctx context.Context, url, dest string) error
}

// FetchOptions configures an HTTPFetcher.
type FetchOptions struct {
	Client  *http.Client
	Retries int
	Backoff time.Duration
	Timeout time.Duration
	Logger  zerolog.Logger
}

// HTTPFetcher downloads over plain HTTP(S) GET. Content is written to a
// ".new" sibling first and only renamed over dest once it is complete and
// verified, so a failed download never clobbers a good file.
type HTTPFetcher struct {
	client  *http.Client
	retries int
	backoff time.Duration
	log     zerolog.Logger
}

// NewHTTPFetcher creates a fetcher. Zero values get sensible defaults.
func NewHTTPFetcher(opts FetchOptions) *HTTPFetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	b := opts.Backoff
	if b <= 0 {
		b = time.Second
	}
	retries := opts.Retries
	if retries < 0 {
		retries = 0
	}
	return &HTTPFetcher{client: client, retries: retries, backoff: b, log: opts.Logger}
}

// Fetch downloads url to dest. If dest already exists with the expected sha1
// no request is made.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, dest, sha1 string) error {
	sha1 = strings.ToLower(strings.TrimSpace(sha1))
	if sha1 != "" && fsutil.Exists(dest) {
		if got, err := hashstore.HashFile(dest); err == nil && got == sha1 {
			f.log.Debug().Str("url", url).Str("dest", dest).Msg("cached file matches sha1")
			return nil
		}
	}

	_, err := f.retry(ctx, url, func() (string, error) {
		return f.fetchOnce(ctx, url, dest, sha1, "")
	})
	return err
}

// FetchETag downloads url to dest unless the server reports the copy made by
// the previous call is still current. The ETag is kept in dest.etag.
func (f *HTTPFetcher) FetchETag(ctx context.Context, url, dest string) error {
	etagFile := dest + ".etag"
	etag := ""
	if fsutil.Exists(dest) {
		if data, err := os.ReadFile(etagFile); err == nil {
			etag = strings.TrimSpace(string(data))
		}
	}
	newTag, err := f.retry(ctx, url, func() (string, error) {
		return f.fetchOnce(ctx, url, dest, "", etag)
	})
	if err != nil {
		return err
	}
	if newTag == etag {
		return nil
	}
	if newTag == "" {
		os.Remove(etagFile)
		return nil
	}
	return fsutil.WriteAtomic(etagFile, []byte(newTag+"\n"))
}

func (f *HTTPFetcher) retry(ctx context.Context, url string, once func() (string, error)) (string, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = f.backoff
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(f.retries)), ctx)

	attempts := 0
	var etag string
	op := func() error {
		attempts++
		tag, err := once()
		if err == nil {
			etag = tag
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		f.log.Warn().Err(err).Str("url", url).Int("attempt", attempts).
			Dur("retry_in", wait).Msg("download failed, retrying")
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return "", &DownloadError{URL: url, Attempts: attempts, Err: err}
	}
	return etag, nil
}

// fetchOnce performs a single GET and returns the response ETag.
func (f *HTTPFetcher) fetchOnce(ctx context.Context, url, dest, want, etag string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	if etag != "" && resp.StatusCode == http.StatusNotModified {
		f.log.Debug().Str("url", url).Msg("not modified")
		return etag, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return "", &StatusError{URL: url, Code: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", backoff.Permanent(fmt.Errorf("mkdir %s: %w", filepath.Dir(dest), err))
	}
	staged := fsutil.Staging(dest)
	out, err := os.Create(staged)
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("create %s: %w", staged, err))
	}
	h := sha1.New()
	n, err := io.Copy(io.MultiWriter(out, h), resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(staged)
		return "", fmt.Errorf("read body of %s: %w", url, err)
	}

	got := hex.EncodeToString(h.Sum(nil))
	if want != "" && got != want {
		os.Remove(staged)
		return "", &HashMismatchError{Path: dest, Want: want, Got: got}
	}
	if err := fsutil.Promote(staged, dest); err != nil {
		return "", backoff.Permanent(err)
	}
	f.log.Info().Str("url", url).Str("size", humanize.Bytes(uint64(n))).Msg("downloaded")
	return resp.Header.Get("ETag"), nil
}
