package functions

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lucasnoah/mcpforge/internal/fsutil"
	"github.com/lucasnoah/mcpforge/internal/mcp"
)

const packageInfoTemplate = "package-info-template.java"

// entryTime is the fixed timestamp of injected entries.
var entryTime = time.Date(1980, 2, 1, 0, 0, 0, 0, time.UTC)

// injectRoots are the packages that receive a generated package-info.java.
var injectRoots = []string{"net/minecraft/", "com/mojang/"}

// inject copies the input zip and adds the files stored in the config
// archive under the side's `inject` data directory. A package-info template
// among them is expanded once per package holding game sources.
type inject struct {
	deps *Deps

	files    map[string][]byte
	template []byte
}

func (f *inject) Initialize(env *mcp.Environment, zr *zip.Reader) error {
	prefix, ok := env.RawData("inject")
	if !ok || prefix == "" {
		return nil
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	f.files = make(map[string][]byte)
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() || !strings.HasPrefix(zf.Name, prefix) {
			continue
		}
		data, err := readZipFile(zf)
		if err != nil {
			return fmt.Errorf("read %s: %w", zf.Name, err)
		}
		rel := strings.TrimPrefix(zf.Name, prefix)
		if rel == packageInfoTemplate {
			f.template = data
			continue
		}
		f.files[rel] = data
	}
	return nil
}

func (f *inject) Execute(ctx context.Context, env *mcp.Environment) (string, error) {
	input, ok := env.Arg("input")
	if !ok || input == "" {
		return "", missingArg(env, "input")
	}
	input = env.File(input)
	out := env.File("output.zip")

	store, _ := f.deps.sidecar(env, "lastinput.sha1")
	if err := store.AddFile("input", input); err != nil {
		return "", err
	}
	for _, name := range sortedKeys(f.files) {
		store.AddBytes("inject/"+name, f.files[name])
	}
	if f.template != nil {
		store.AddBytes("inject/"+packageInfoTemplate, f.template)
	}
	if store.IsSame() && fsutil.Exists(out) {
		return out, nil
	}

	if err := f.write(ctx, input, out); err != nil {
		return "", err
	}
	if err := store.Save(); err != nil {
		return "", err
	}
	return out, nil
}

func (f *inject) write(ctx context.Context, input, out string) error {
	zr, err := zip.OpenReader(input)
	if err != nil {
		return fmt.Errorf("open %s: %w", input, err)
	}
	defer zr.Close()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	packages := make(map[string]bool)
	present := make(map[string]bool)
	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		present[zf.Name] = true
		if strings.HasSuffix(zf.Name, ".java") && underInjectRoot(zf.Name) {
			packages[path.Dir(zf.Name)] = true
		}
		if err := zw.Copy(zf); err != nil {
			return fmt.Errorf("copy %s: %w", zf.Name, err)
		}
	}

	add := func(name string, data []byte) error {
		if present[name] {
			return nil
		}
		present[name] = true
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: entryTime})
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	for _, name := range sortedKeys(f.files) {
		if err := add(name, f.files[name]); err != nil {
			return fmt.Errorf("inject %s: %w", name, err)
		}
	}
	if f.template != nil {
		for _, pkg := range sortedKeys(packages) {
			src := strings.ReplaceAll(string(f.template), "{PACKAGE}", strings.ReplaceAll(pkg, "/", "."))
			if err := add(pkg+"/package-info.java", []byte(src)); err != nil {
				return fmt.Errorf("inject package-info for %s: %w", pkg, err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	return fsutil.WriteAtomic(out, buf.Bytes())
}

func underInjectRoot(name string) bool {
	for _, r := range injectRoots {
		if strings.HasPrefix(name, r) {
			return true
		}
	}
	return false
}

func readZipFile(zf *zip.File) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
