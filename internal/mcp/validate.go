package mcp

import (
	"fmt"

	"golang.org/x/text/encoding/ianaindex"

	"github.com/lucasnoah/mcpforge/internal/mcpconfig"
)

// ResolvedConfig is a config whose step types have all been bound to
// functions for one side.
type ResolvedConfig struct {
	Config   *mcpconfig.ConfigV2
	Side     string
	Pipeline *mcpconfig.Pipeline

	functions map[string]Function
}

// Function returns the function bound to a step type.
func (r *ResolvedConfig) Function(typ string) Function {
	return r.functions[typ]
}

// Types returns how many distinct function types the pipeline uses.
func (r *ResolvedConfig) Types() int {
	return len(r.functions)
}

// Validate binds every step of side to a function before any work is done.
// Functions declared in the config take precedence over built-ins of the
// same name. Each type is resolved once and shared by all of its steps.
func Validate(cfg *mcpconfig.ConfigV2, side string, reg *Registry) (*ResolvedConfig, error) {
	if _, err := ianaindex.IANA.Encoding(cfg.Encoding); err != nil {
		return nil, &mcpconfig.ConfigFormatError{Reason: fmt.Sprintf("unknown encoding %q", cfg.Encoding), Err: err}
	}
	p, err := cfg.Pipeline(side)
	if err != nil {
		return nil, err
	}

	rc := &ResolvedConfig{
		Config:    cfg,
		Side:      side,
		Pipeline:  p,
		functions: make(map[string]Function),
	}
	for _, step := range p.All() {
		if _, ok := rc.functions[step.Type]; ok {
			continue
		}
		fn, err := resolve(cfg, step, reg)
		if err != nil {
			return nil, err
		}
		rc.functions[step.Type] = fn
	}
	return rc, nil
}

func resolve(cfg *mcpconfig.ConfigV2, step mcpconfig.Step, reg *Registry) (Function, error) {
	if decl, ok := cfg.Functions[step.Type]; ok {
		if decl.Version == "" {
			return nil, &mcpconfig.ConfigFormatError{Reason: fmt.Sprintf("function %q has no version", step.Type)}
		}
		ext := reg.externalFactory()
		if ext == nil {
			return nil, fmt.Errorf("function %q: no external function support registered", step.Type)
		}
		fn, err := ext(step.Type, decl)
		if err != nil {
			return nil, fmt.Errorf("bind function %q: %w", step.Type, err)
		}
		return fn, nil
	}
	if f, ok := reg.Lookup(step.Type); ok {
		return f(), nil
	}
	return nil, &UnknownFunctionError{Step: step.Name, Type: step.Type}
}
