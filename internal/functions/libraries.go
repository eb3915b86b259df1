package functions

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lucasnoah/mcpforge/internal/artifact"
	"github.com/lucasnoah/mcpforge/internal/fsutil"
	"github.com/lucasnoah/mcpforge/internal/mcp"
)

// listLibraries resolves the version's libraries plus the config's extra
// libraries for the side and writes them to libraries.txt as sorted
// `-e=<path>` lines, the decompiler's classpath argument format.
type listLibraries struct {
	deps *Deps
}

func (f *listLibraries) Execute(ctx context.Context, env *mcp.Environment) (string, error) {
	out := env.File("libraries.txt")
	jsonPath, err := inputOf(env, "json", "downloadJson")
	if err != nil {
		return "", err
	}
	extra := env.Config().Libraries[env.Side()]

	store, _ := f.deps.sidecar(env, "libraries.sha1")
	if err := store.AddFile("json", jsonPath); err != nil {
		return "", err
	}
	store.Add("extra", strings.Join(extra, "\n"))
	if store.IsSame() && fsutil.Exists(out) {
		return out, nil
	}
	if f.deps.Resolver == nil {
		return "", fmt.Errorf("step %q: no artifact resolver configured", env.StepName())
	}

	var v versionLibraries
	if err := fsutil.ReadJSON(jsonPath, &v); err != nil {
		return "", fmt.Errorf("read version json: %w", err)
	}

	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	for _, lib := range v.Libraries {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		var (
			p   string
			err error
		)
		if a := lib.Downloads.Artifact; a != nil && a.URL != "" {
			p, err = f.deps.Resolver.ResolveDownload(ctx, artifact.Download{Path: a.Path, URL: a.URL, SHA1: a.SHA1})
		} else if lib.Name != "" {
			p, err = f.deps.Resolver.Resolve(ctx, lib.Name)
		} else {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("resolve library %s: %w", lib.Name, err)
		}
		add(p)
	}
	for _, coord := range extra {
		p, err := f.deps.Resolver.Resolve(ctx, coord)
		if err != nil {
			return "", fmt.Errorf("resolve library %s: %w", coord, err)
		}
		add(p)
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&b, "-e=%s\n", p)
	}
	if err := fsutil.WriteAtomic(out, []byte(b.String())); err != nil {
		return "", fmt.Errorf("write libraries: %w", err)
	}
	env.Logger().Info().Int("libraries", len(paths)).Msg("listed libraries")
	if err := store.Save(); err != nil {
		return "", err
	}
	return out, nil
}
