package mcp

import (
	"archive/zip"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lucasnoah/mcpforge/internal/mcpconfig"
)

// Function is one executable step capability. Execute returns the path of
// the single file it produced.
type Function interface {
	Execute(ctx context.Context, env *Environment) (string, error)
}

// DataLoader is implemented by functions that read the config's data
// section before their first execution.
type DataLoader interface {
	LoadData(cfg *mcpconfig.ConfigV2) error
}

// Initializer is implemented by functions that extract files from the config
// archive before the pipeline runs.
type Initializer interface {
	Initialize(env *Environment, zr *zip.Reader) error
}

// Factory creates a built-in function.
type Factory func() Function

// ExternalFactory wraps a declared function as an executable step.
type ExternalFactory func(name string, decl mcpconfig.Function) (Function, error)

// Registry maps function type names to factories. It is populated once at
// startup and then only read.
type Registry struct {
	mu       sync.RWMutex
	builtins map[string]Factory
	external ExternalFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{builtins: make(map[string]Factory)}
}

// Register adds a built-in function. Names must be unique.
func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.builtins[name]; ok {
		return fmt.Errorf("function %q already registered", name)
	}
	r.builtins[name] = f
	return nil
}

// SetExternal installs the factory used for functions declared in a config.
func (r *Registry) SetExternal(f ExternalFactory) {
	r.mu.Lock()
	r.external = f
	r.mu.Unlock()
}

// Lookup returns the built-in factory for name.
func (r *Registry) Lookup(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.builtins[name]
	return f, ok
}

// Names returns the registered built-in names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.builtins))
	for k := range r.builtins {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) externalFactory() ExternalFactory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.external
}

// JarFuture resolves the jar of a declared function on first use. The
// result, including an error, is remembered.
type JarFuture struct {
	once    sync.Once
	resolve func(ctx context.Context) (string, error)
	path    string
	err     error
}

// NewJarFuture returns a future backed by resolve.
func NewJarFuture(resolve func(ctx context.Context) (string, error)) *JarFuture {
	return &JarFuture{resolve: resolve}
}

// Get resolves the jar once and returns the cached result afterwards.
func (j *JarFuture) Get(ctx context.Context) (string, error) {
	j.once.Do(func() {
		j.path, j.err = j.resolve(ctx)
	})
	return j.path, j.err
}
