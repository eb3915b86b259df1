package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lucasnoah/mcpforge/internal/fsutil"
)

// Download describes a file with a known location, as listed in a
// Minecraft version JSON.
type Download struct {
	Path string
	URL  string
	SHA1 string
}

// Resolver turns maven coordinates and explicit downloads into local files.
type Resolver interface {
	Resolve(ctx context.Context, coord string, extraRepos ...string) (string, error)
	ResolveDownload(ctx context.Context, d Download) (string, error)
}

// MavenResolver resolves artifacts into a local cache laid out like a maven
// repository, fetching missing files from the configured repositories in
// order. It is safe for concurrent use; requests for the same file are
// serialised.
type MavenResolver struct {
	CacheDir string
	Repos    []string
	Fetcher  Fetcher
	Offline  bool
	Log      zerolog.Logger

	locks sync.Map
}

func (r *MavenResolver) lock(path string) func() {
	v, _ := r.locks.LoadOrStore(path, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// LocalPath returns where coord is cached, whether or not it exists.
func (r *MavenResolver) LocalPath(c Coordinate) string {
	return filepath.Join(r.CacheDir, filepath.FromSlash(c.Path()))
}

// Resolve returns the cached file for coord, downloading it when missing.
// extraRepos are tried before the configured repositories.
func (r *MavenResolver) Resolve(ctx context.Context, coord string, extraRepos ...string) (string, error) {
	c, err := ParseCoordinate(coord)
	if err != nil {
		return "", err
	}
	local := r.LocalPath(c)
	defer r.lock(local)()
	if fsutil.Exists(local) {
		return local, nil
	}
	if r.Offline {
		return "", fmt.Errorf("resolve %s: %w", coord, ErrOffline)
	}
	repos := append(append([]string{}, extraRepos...), r.Repos...)
	if len(repos) == 0 {
		return "", fmt.Errorf("resolve %s: no repositories configured", coord)
	}

	var errs []error
	for _, repo := range repos {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		url := strings.TrimSuffix(repo, "/") + "/" + c.Path()
		sum := r.remoteSHA1(ctx, url, local)
		err := r.Fetcher.Fetch(ctx, url, local, sum)
		if err == nil {
			r.Log.Debug().Str("artifact", coord).Str("repo", repo).Msg("resolved")
			return local, nil
		}
		errs = append(errs, err)
		if !IsNotFound(err) {
			r.Log.Warn().Err(err).Str("artifact", coord).Str("repo", repo).Msg("repository failed")
		}
	}
	return "", fmt.Errorf("resolve %s: %w", coord, errors.Join(errs...))
}

// remoteSHA1 fetches the .sha1 sidecar next to url. A missing or unreadable
// sidecar only disables verification.
func (r *MavenResolver) remoteSHA1(ctx context.Context, url, local string) string {
	side := local + ".sha1"
	if err := r.Fetcher.Fetch(ctx, url+".sha1", side, ""); err != nil {
		return ""
	}
	data, err := os.ReadFile(side)
	if err != nil {
		return ""
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 || len(fields[0]) != 40 {
		return ""
	}
	return strings.ToLower(fields[0])
}

// ResolveDownload stores d under its path in the cache, skipping the
// network when the cached copy already matches d.SHA1.
func (r *MavenResolver) ResolveDownload(ctx context.Context, d Download) (string, error) {
	if d.Path == "" {
		return "", fmt.Errorf("download %s: empty path", d.URL)
	}
	local := filepath.Join(r.CacheDir, filepath.FromSlash(d.Path))
	defer r.lock(local)()
	if fsutil.Exists(local) && (d.SHA1 == "" || r.Offline) {
		return local, nil
	}
	if r.Offline {
		return "", fmt.Errorf("download %s: %w", d.Path, ErrOffline)
	}
	if d.URL == "" {
		return "", fmt.Errorf("download %s: no url", d.Path)
	}
	if err := r.Fetcher.Fetch(ctx, d.URL, local, d.SHA1); err != nil {
		return "", err
	}
	return local, nil
}
