// Package provider builds mappings.zip files for the supported mapping
// channels and caches them next to their inputs.
package provider

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lucasnoah/mcpforge/internal/fsutil"
	"github.com/lucasnoah/mcpforge/internal/hashstore"
	"github.com/lucasnoah/mcpforge/internal/mapping"
)

// Request names the mappings to provide. The file fields are optional
// overrides of inputs the provider would otherwise resolve itself.
type Request struct {
	Channel string
	Version string
	// SRG is the obf -> srg mapping of the MCP config.
	SRG string
	// ClientMappings and ServerMappings are the official ProGuard maps.
	ClientMappings string
	ServerMappings string
}

// MCVersion returns the Minecraft part of a version such as
// 1.20.1-20230612.114412.
func (r Request) MCVersion() string {
	v, _, _ := strings.Cut(r.Version, "-")
	return v
}

// Result is a provided mappings.zip.
type Result struct {
	Path   string
	Detail *mapping.Detail
	// Cached is set when the zip was reused without regeneration.
	Cached bool
}

// Provider produces mappings for one or more channels.
type Provider interface {
	Channels() []string
	Mappings(ctx context.Context, req Request) (*Result, error)
}

// Registry maps channel names to providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds p for each of its channels. A channel can only be claimed
// once.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range p.Channels() {
		if _, ok := r.providers[ch]; ok {
			return fmt.Errorf("mapping channel %q already registered", ch)
		}
	}
	for _, ch := range p.Channels() {
		r.providers[ch] = p
	}
	return nil
}

// Find returns the provider of channel.
func (r *Registry) Find(channel string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[channel]
	return p, ok
}

// Channels lists the registered channels in sorted order.
func (r *Registry) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for ch := range r.providers {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Mappings dispatches req to the provider of its channel.
func (r *Registry) Mappings(ctx context.Context, req Request) (*Result, error) {
	p, ok := r.Find(req.Channel)
	if !ok {
		return nil, fmt.Errorf("unknown mapping channel %q (known: %s)", req.Channel, strings.Join(r.Channels(), ", "))
	}
	return p.Mappings(ctx, req)
}

// cachedZip regenerates dir/mappings.zip through build unless the inputs
// recorded in mappings.zip.input are unchanged.
func cachedZip(dir string, log zerolog.Logger, inputs map[string]string, build func() (*mapping.Detail, error)) (*Result, error) {
	out := filepath.Join(dir, "mappings.zip")
	store := hashstore.New(dir).WithLogger(log).Load(out + ".input")
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := store.AddFile(k, inputs[k]); err != nil {
			return nil, err
		}
	}

	if store.IsSame() && fsutil.Exists(out) {
		d, err := mapping.FromZip(out)
		if err == nil {
			log.Debug().Str("path", out).Msg("mappings up to date")
			return &Result{Path: out, Detail: d, Cached: true}, nil
		}
		log.Warn().Err(err).Str("path", out).Msg("cached mappings unreadable, regenerating")
	}

	d, err := build()
	if err != nil {
		return nil, err
	}
	if err := mapping.Generate(out, d); err != nil {
		return nil, err
	}
	if err := store.Save(); err != nil {
		return nil, err
	}
	log.Info().Str("path", out).Int("entries", d.Len()).Msg("generated mappings")
	return &Result{Path: out, Detail: d.Filtered()}, nil
}
