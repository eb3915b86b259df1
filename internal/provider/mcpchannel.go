package provider

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/lucasnoah/mcpforge/internal/artifact"
	"github.com/lucasnoah/mcpforge/internal/mapping"
	"github.com/lucasnoah/mcpforge/internal/mcpconfig"
)

// MCP serves the crowd sourced snapshot and stable exports, normalised to
// the mappings.zip layout.
type MCP struct {
	CacheDir string
	Resolver artifact.Resolver
	Log      zerolog.Logger
}

func (m *MCP) Channels() []string { return []string{"snapshot", "stable"} }

func (m *MCP) Mappings(ctx context.Context, req Request) (*Result, error) {
	if req.Version == "" {
		return nil, fmt.Errorf("%s mappings: empty version", req.Channel)
	}
	if m.Resolver == nil {
		return nil, fmt.Errorf("%s mappings: no resolver configured", req.Channel)
	}
	coord := fmt.Sprintf("de.oceanlabs.mcp:mcp_%s:%s@zip", req.Channel, req.Version)
	export, err := m.Resolver.Resolve(ctx, coord)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", coord, err)
	}
	dir := filepath.Join(m.CacheDir, req.Channel, req.Version)
	return cachedZip(dir, m.Log, map[string]string{"export": export}, func() (*mapping.Detail, error) {
		return mapping.FromZip(export)
	})
}

func extractEntry(archive []byte, name string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return mcpconfig.ReadEntry(zr, name)
}
