package functions

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lucasnoah/mcpforge/internal/fsutil"
	"github.com/lucasnoah/mcpforge/internal/mapping"
	"github.com/lucasnoah/mcpforge/internal/mcp"
)

// deniedPrefixes are resources and bundled vendor libraries that never
// belong to the game code.
var deniedPrefixes = []string{
	"META-INF/",
	"assets/",
	"data/",
	"com/google/",
	"com/mojang/authlib/",
	"com/mojang/brigadier/",
	"com/mojang/datafixers/",
	"com/sun/",
	"io/netty/",
	"it/unimi/",
	"javax/",
	"joptsimple/",
	"org/apache/",
	"org/lwjgl/",
	"org/objectweb/",
	"org/slf4j/",
	"oshi/",
}

// stripJar copies the input jar to output.jar without directories and
// non-game entries. With a mappings argument, class entries are filtered
// by the classes the mapping names: kept in whitelist mode (the default),
// dropped in blacklist mode.
type stripJar struct {
	deps *Deps
}

type stripFilter struct {
	prefixes  []string
	classes   map[string]bool
	whitelist bool
}

func (f *stripJar) Execute(ctx context.Context, env *mcp.Environment) (string, error) {
	input, ok := env.Arg("input")
	if !ok || input == "" {
		return "", missingArg(env, "input")
	}
	input = env.File(input)
	out := env.File("output.jar")

	exclude, _ := env.Arg("exclude")
	mappings, _ := env.Arg("mappings")
	mode, _ := env.Arg("mode")
	if mode == "" {
		mode = "whitelist"
	}
	if mode != "whitelist" && mode != "blacklist" {
		return "", fmt.Errorf("step %q: unknown strip mode %q", env.StepName(), mode)
	}

	store, _ := f.deps.sidecar(env, "lastinput.sha1")
	if err := store.AddFile("input", input); err != nil {
		return "", err
	}
	store.Add("exclude", exclude).Add("mode", mode)
	if mappings != "" {
		mappings = env.File(mappings)
		if err := store.AddFile("mappings", mappings); err != nil {
			return "", err
		}
	}
	if store.IsSame() && fsutil.Exists(out) {
		env.Logger().Debug().Str("output", out).Msg("strip inputs unchanged")
		return out, nil
	}

	filter := stripFilter{prefixes: deniedPrefixes, whitelist: mode == "whitelist"}
	for _, p := range strings.Split(exclude, ",") {
		if p = strings.TrimSpace(p); p != "" {
			filter.prefixes = append(filter.prefixes, p)
		}
	}
	if mappings != "" {
		mf, err := mapping.ParseFile(mappings)
		if err != nil {
			return "", fmt.Errorf("read strip mappings: %w", err)
		}
		filter.classes = make(map[string]bool, len(mf.Classes))
		for _, c := range mf.Classes {
			filter.classes[c.Original] = true
		}
	}

	kept, err := stripZip(ctx, input, out, filter)
	if err != nil {
		return "", err
	}
	env.Logger().Info().Int("entries", kept).Str("output", out).Msg("stripped jar")
	if err := store.Save(); err != nil {
		return "", err
	}
	return out, nil
}

func (sf stripFilter) keep(name string) bool {
	if strings.HasSuffix(name, "/") {
		return false
	}
	for _, p := range sf.prefixes {
		if strings.HasPrefix(name, p) {
			return false
		}
	}
	if sf.classes == nil {
		return true
	}
	cls, isClass := strings.CutSuffix(name, ".class")
	if !isClass {
		return !sf.whitelist
	}
	if outer, _, nested := strings.Cut(cls, "$"); nested {
		cls = outer
	}
	return sf.classes[cls] == sf.whitelist
}

// stripZip writes the kept entries of input to a staged copy of out in
// their original order and promotes it when complete.
func stripZip(ctx context.Context, input, out string, filter stripFilter) (int, error) {
	zr, err := zip.OpenReader(input)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", input, err)
	}
	defer zr.Close()

	staged := fsutil.Staging(out)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return 0, err
	}
	w, err := os.Create(staged)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", staged, err)
	}
	zw := zip.NewWriter(w)

	kept := 0
	for i, zf := range zr.File {
		if i%256 == 0 && ctx.Err() != nil {
			_ = w.Close()
			_ = os.Remove(staged)
			return 0, ctx.Err()
		}
		if !filter.keep(zf.Name) {
			continue
		}
		if err := zw.Copy(zf); err != nil {
			_ = w.Close()
			_ = os.Remove(staged)
			return 0, fmt.Errorf("copy %s: %w", zf.Name, err)
		}
		kept++
	}
	if err := zw.Close(); err != nil {
		_ = w.Close()
		_ = os.Remove(staged)
		return 0, fmt.Errorf("finish %s: %w", staged, err)
	}
	if err := w.Close(); err != nil {
		_ = os.Remove(staged)
		return 0, err
	}
	return kept, fsutil.Promote(staged, out)
}
