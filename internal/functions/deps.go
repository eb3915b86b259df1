package functions

import (
	"context"
	"fmt"
	"time"

	"github.com/lucasnoah/mcpforge/internal/artifact"
	"github.com/lucasnoah/mcpforge/internal/hashstore"
	"github.com/lucasnoah/mcpforge/internal/mcp"
	"github.com/lucasnoah/mcpforge/internal/mcpconfig"
)

// DefaultManifestURL is the launcher's version manifest.
const DefaultManifestURL = "https://piston-meta.mojang.com/mc/game/version_manifest_v2.json"

// Deps are the collaborators shared by all built-in functions.
type Deps struct {
	Fetcher     artifact.Fetcher
	Resolver    artifact.Resolver
	Runner      CommandRunner
	ManifestURL string
	Java        string
	Offline     bool
	// AllowNonzeroExit treats a failing external tool as success.
	AllowNonzeroExit bool
	ExecTimeout      time.Duration
	// Invalidate makes every sidecar hash check miss.
	Invalidate bool
}

func (d *Deps) applyDefaults() {
	if d.ManifestURL == "" {
		d.ManifestURL = DefaultManifestURL
	}
	if d.Java == "" {
		d.Java = "java"
	}
	if d.Runner == nil {
		d.Runner = ExecRunner{}
	}
}

// RegisterBuiltins adds every built-in function to reg and installs the
// factory for functions declared in configs.
func RegisterBuiltins(reg *mcp.Registry, deps Deps) error {
	deps.applyDefaults()
	d := &deps
	builtins := map[string]mcp.Factory{
		"downloadManifest":       func() mcp.Function { return &downloadManifest{deps: d} },
		"downloadJson":           func() mcp.Function { return &downloadJSON{deps: d} },
		"downloadClient":         func() mcp.Function { return &downloadFile{deps: d, key: "client", file: "client.jar"} },
		"downloadServer":         func() mcp.Function { return &downloadFile{deps: d, key: "server", file: "server.jar"} },
		"downloadClientMappings": func() mcp.Function { return &downloadFile{deps: d, key: "client_mappings", file: "client_mappings.txt"} },
		"downloadServerMappings": func() mcp.Function { return &downloadFile{deps: d, key: "server_mappings", file: "server_mappings.txt"} },
		"strip":                  func() mcp.Function { return &stripJar{deps: d} },
		"listLibraries":          func() mcp.Function { return &listLibraries{deps: d} },
		"inject":                 func() mcp.Function { return &inject{deps: d} },
	}
	for name, f := range builtins {
		if err := reg.Register(name, f); err != nil {
			return err
		}
	}
	reg.SetExternal(func(name string, decl mcpconfig.Function) (mcp.Function, error) {
		if d.Resolver == nil {
			return nil, fmt.Errorf("no artifact resolver configured")
		}
		var repos []string
		if decl.Repo != "" {
			repos = append(repos, decl.Repo)
		}
		jar := mcp.NewJarFuture(func(ctx context.Context) (string, error) {
			return d.Resolver.Resolve(ctx, decl.Version, repos...)
		})
		return &execute{deps: d, name: name, decl: decl, jar: jar}, nil
	})
	return nil
}

// sidecar loads the hash store a step keeps next to its output.
func (d *Deps) sidecar(env *mcp.Environment, name string) (*hashstore.Store, string) {
	path := env.File(name)
	store := hashstore.New(env.WorkDir()).WithLogger(env.Logger())
	if d.Invalidate {
		store.Invalidate(true)
	}
	return store.Load(path), path
}
