package functions

import (
	"context"
	"fmt"

	"github.com/lucasnoah/mcpforge/internal/fsutil"
	"github.com/lucasnoah/mcpforge/internal/mcp"
	"github.com/lucasnoah/mcpforge/internal/mcpconfig"
)

// downloadManifest fetches the launcher version manifest to manifest.json.
// An existing copy is revalidated by ETag rather than downloaded again.
type downloadManifest struct {
	deps *Deps
}

func (f *downloadManifest) Execute(ctx context.Context, env *mcp.Environment) (string, error) {
	out := env.File("manifest.json")
	if f.deps.Offline {
		if fsutil.Exists(out) {
			return out, nil
		}
		return "", fmt.Errorf("manifest not cached at %s and offline mode is enabled", out)
	}
	if err := f.deps.Fetcher.FetchETag(ctx, f.deps.ManifestURL, out); err != nil {
		return "", fmt.Errorf("download version manifest: %w", err)
	}
	return out, nil
}

// downloadJSON fetches the version JSON of the config's Minecraft version.
type downloadJSON struct {
	deps *Deps
}

func (f *downloadJSON) Execute(ctx context.Context, env *mcp.Environment) (string, error) {
	out := env.File("version.json")
	manifestPath, err := inputOf(env, "manifest", "downloadManifest")
	if err != nil {
		return "", err
	}
	var m versionManifest
	if err := fsutil.ReadJSON(manifestPath, &m); err != nil {
		return "", fmt.Errorf("read manifest: %w", err)
	}
	v, ok := m.find(env.MCVersion())
	if !ok {
		return "", fmt.Errorf("version %q not found in manifest", env.MCVersion())
	}
	if err := fetchVerified(ctx, f.deps, v.URL, out, v.SHA1); err != nil {
		return "", fmt.Errorf("download version json: %w", err)
	}
	return out, nil
}

// downloadFile fetches one of the downloads listed in the version JSON,
// e.g. the client jar or the official mappings.
type downloadFile struct {
	deps *Deps
	key  string
	file string
}

func (f *downloadFile) Execute(ctx context.Context, env *mcp.Environment) (string, error) {
	out := env.File(f.file)
	jsonPath, err := inputOf(env, "json", "downloadJson")
	if err != nil {
		return "", err
	}
	var root any
	if err := fsutil.ReadJSON(jsonPath, &root); err != nil {
		return "", fmt.Errorf("read version json: %w", err)
	}
	url, ok := mcpconfig.SelectString(root, "downloads."+f.key+".url")
	if !ok {
		return "", fmt.Errorf("version json has no downloads.%s entry", f.key)
	}
	sha1, _ := mcpconfig.SelectString(root, "downloads."+f.key+".sha1")
	if err := fetchVerified(ctx, f.deps, url, out, sha1); err != nil {
		return "", fmt.Errorf("download %s: %w", f.key, err)
	}
	return out, nil
}

// fetchVerified downloads url unless out already matches sha1. Offline mode
// accepts any existing copy.
func fetchVerified(ctx context.Context, deps *Deps, url, out, sha1 string) error {
	if deps.Offline {
		if fsutil.Exists(out) {
			return nil
		}
		return fmt.Errorf("%s not cached and offline mode is enabled", out)
	}
	return deps.Fetcher.Fetch(ctx, url, out, sha1)
}

// inputOf returns the file named by arg, falling back to the output of the
// latest step of type typ.
func inputOf(env *mcp.Environment, arg, typ string) (string, error) {
	if v, ok := env.Arg(arg); ok && v != "" {
		return env.File(v), nil
	}
	if v, ok := env.OutputOfType(typ); ok {
		return v, nil
	}
	return "", fmt.Errorf("step %q: no %q argument and no %s step has run", env.StepName(), arg, typ)
}
