package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/lucasnoah/mcpforge/internal/artifact"
	"github.com/lucasnoah/mcpforge/internal/fsutil"
	"github.com/lucasnoah/mcpforge/internal/mapping"
	"github.com/lucasnoah/mcpforge/internal/mcpconfig"
)

// Official maps SRG names to the names of the official ProGuard mappings.
type Official struct {
	CacheDir string
	Resolver artifact.Resolver
	Log      zerolog.Logger
}

func (o *Official) Channels() []string { return []string{"official"} }

// Mappings chains srg -> obf with obf -> official for each side and marks
// names present in only one of the jars with that side.
func (o *Official) Mappings(ctx context.Context, req Request) (*Result, error) {
	if req.Version == "" {
		return nil, fmt.Errorf("official mappings: empty version")
	}
	dir := filepath.Join(o.CacheDir, "official", req.Version)

	srg, err := o.srgFile(ctx, req, dir)
	if err != nil {
		return nil, err
	}
	client, err := o.input(ctx, req.ClientMappings, "client", req.MCVersion())
	if err != nil {
		return nil, err
	}
	server, err := o.input(ctx, req.ServerMappings, "server", req.MCVersion())
	if err != nil {
		return nil, err
	}

	inputs := map[string]string{"srg": srg, "client": client, "server": server}
	return cachedZip(dir, o.Log, inputs, func() (*mapping.Detail, error) {
		srgFile, err := mapping.ParseFile(srg)
		if err != nil {
			return nil, fmt.Errorf("srg mappings: %w", err)
		}
		toObf := srgFile.Reverse()
		sided := make([]*mapping.File, 2)
		for i, path := range []string{client, server} {
			pg, err := mapping.ParseFile(path)
			if err != nil {
				return nil, fmt.Errorf("official mappings: %w", err)
			}
			sided[i] = knownTo(toObf, pg.Reverse())
		}
		return mapping.FromSrgSided(sided[0], sided[1]), nil
	})
}

// input returns path when set, otherwise resolves the official mappings of
// side for the Minecraft version.
func (o *Official) input(ctx context.Context, path, side, mcVersion string) (string, error) {
	if path != "" {
		return path, nil
	}
	if o.Resolver == nil {
		return "", fmt.Errorf("no %s mappings given and no resolver configured", side)
	}
	p, err := o.Resolver.Resolve(ctx, fmt.Sprintf("net.minecraft:%s:%s:mappings@txt", side, mcVersion))
	if err != nil {
		return "", fmt.Errorf("resolve %s mappings: %w", side, err)
	}
	return p, nil
}

// srgFile returns the request's SRG file or extracts the one referenced by
// the MCP config of the version.
func (o *Official) srgFile(ctx context.Context, req Request, dir string) (string, error) {
	if req.SRG != "" {
		return req.SRG, nil
	}
	if o.Resolver == nil {
		return "", fmt.Errorf("no srg mappings given and no resolver configured")
	}
	cfgZip, err := o.Resolver.Resolve(ctx, "de.oceanlabs.mcp:mcp_config:"+req.Version+"@zip")
	if err != nil {
		return "", fmt.Errorf("resolve mcp config: %w", err)
	}
	data, err := os.ReadFile(cfgZip)
	if err != nil {
		return "", err
	}
	cfg, err := mcpconfig.Load(data)
	if err != nil {
		return "", err
	}
	entry, ok := cfg.DataString("mappings")
	if !ok {
		return "", fmt.Errorf("mcp config %s has no mappings entry", req.Version)
	}
	srg, err := extractEntry(data, entry)
	if err != nil {
		return "", err
	}
	out := filepath.Join(dir, filepath.Base(entry))
	if err := fsutil.WriteAtomic(out, srg); err != nil {
		return "", err
	}
	return out, nil
}

// knownTo chains toObf with the side's obf -> official mapping, keeping only
// the entries the side's jar actually contains.
func knownTo(toObf, official *mapping.File) *mapping.File {
	out := mapping.NewFile()
	for _, c := range toObf.Classes {
		oc := official.Class(c.Mapped)
		if oc == nil {
			continue
		}
		nc := out.AddClass(c.Original, oc.Mapped)
		for _, fd := range c.Fields {
			if of := oc.Field(fd.Mapped); of != nil {
				nc.AddField(fd.Original, of.Mapped, fd.Desc)
			}
		}
		for _, m := range c.Methods {
			om := oc.Method(m.Mapped, toObf.RemapDescriptor(m.Desc))
			if om == nil {
				continue
			}
			nm := nc.AddMethod(m.Original, om.Mapped, m.Desc)
			for _, p := range m.Params {
				nm.AddParam(p.Index, p.Original, p.Mapped)
			}
		}
	}
	return out
}
