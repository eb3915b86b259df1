package provider

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasnoah/mcpforge/internal/artifact"
	"github.com/lucasnoah/mcpforge/internal/mapping"
)

const (
	testSRG = `CL: a net/minecraft/src/C_1_
FD: a/a net/minecraft/src/C_1_/field_1_
MD: a/b ()V net/minecraft/src/C_1_/func_2_ ()V
MD: a/c (La;)V net/minecraft/src/C_1_/func_3_ (Lnet/minecraft/src/C_1_;)V
CL: b net/minecraft/src/C_2_
`
	testClient = `net.minecraft.world.Foo -> a:
    int health -> a
    1:1:void tick() -> b
    2:4:void copy(net.minecraft.world.Foo) -> c
net.minecraft.client.Gui -> b:
`
	testServer = `net.minecraft.world.Foo -> a:
    int health -> a
    void copy(net.minecraft.world.Foo) -> c
`
)

func write(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

// mapResolver serves fixed files per coordinate.
type mapResolver struct {
	files map[string]string
	calls []string
}

func (r *mapResolver) Resolve(ctx context.Context, coord string, extraRepos ...string) (string, error) {
	r.calls = append(r.calls, coord)
	p, ok := r.files[coord]
	if !ok {
		return "", os.ErrNotExist
	}
	return p, nil
}

func (r *mapResolver) ResolveDownload(ctx context.Context, d artifact.Download) (string, error) {
	return "", os.ErrNotExist
}

func node(t *testing.T, d *mapping.Detail, k mapping.Kind, key string) *mapping.Node {
	t.Helper()
	n, ok := d.Table(k)[key]
	require.True(t, ok, "%s %s missing", k, key)
	return n
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Official{}))
	require.NoError(t, reg.Register(&MCP{}))
	assert.Error(t, reg.Register(&Official{}))
	assert.Equal(t, []string{"official", "snapshot", "stable"}, reg.Channels())

	p, ok := reg.Find("stable")
	require.True(t, ok)
	assert.IsType(t, &MCP{}, p)

	_, err := reg.Mappings(context.Background(), Request{Channel: "yarn", Version: "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mapping channel "yarn"`)
}

func TestRequestMCVersion(t *testing.T) {
	assert.Equal(t, "1.20.1", Request{Version: "1.20.1-20230612.114412"}.MCVersion())
	assert.Equal(t, "1.16.5", Request{Version: "1.16.5"}.MCVersion())
}

func TestOfficialSidesFromBothJars(t *testing.T) {
	dir := t.TempDir()
	o := &Official{CacheDir: filepath.Join(dir, "cache"), Log: zerolog.Nop()}
	req := Request{
		Channel:        "official",
		Version:        "1.20.1",
		SRG:            write(t, dir, "joined.srg", testSRG),
		ClientMappings: write(t, dir, "client.txt", testClient),
		ServerMappings: write(t, dir, "server.txt", testServer),
	}

	res, err := o.Mappings(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, filepath.Join(dir, "cache", "official", "1.20.1", "mappings.zip"), res.Path)
	assert.FileExists(t, res.Path+".input")

	d := res.Detail
	foo := node(t, d, mapping.Classes, "net/minecraft/src/C_1_")
	assert.Equal(t, "net/minecraft/world/Foo", foo.Mapped())
	assert.Equal(t, mapping.Both, foo.Side())

	gui := node(t, d, mapping.Classes, "net/minecraft/src/C_2_")
	assert.Equal(t, "net/minecraft/client/Gui", gui.Mapped())
	assert.Equal(t, mapping.Client, gui.Side())

	assert.Equal(t, "health", node(t, d, mapping.Fields, "field_1_").Mapped())
	tick := node(t, d, mapping.Methods, "func_2_")
	assert.Equal(t, "tick", tick.Mapped())
	assert.Equal(t, mapping.Client, tick.Side())
	copyM := node(t, d, mapping.Methods, "func_3_")
	assert.Equal(t, "copy", copyM.Mapped())
	assert.Equal(t, mapping.Both, copyM.Side())

	onDisk, err := mapping.FromZip(res.Path)
	require.NoError(t, err)
	assert.True(t, onDisk.Equal(d))
}

func TestOfficialReadsThreeNamespaceTSRG2(t *testing.T) {
	dir := t.TempDir()
	o := &Official{CacheDir: filepath.Join(dir, "cache"), Log: zerolog.Nop()}
	srg := "tsrg2 obf srg id\n" +
		"a net/minecraft/src/C_1_ 1\n" +
		"\ta f_1_ 1\n" +
		"\tb ()V m_2_ 2\n"
	req := Request{
		Channel:        "official",
		Version:        "1.20.1",
		SRG:            write(t, dir, "joined.tsrg", srg),
		ClientMappings: write(t, dir, "client.txt", testClient),
		ServerMappings: write(t, dir, "server.txt", testServer),
	}

	res, err := o.Mappings(context.Background(), req)
	require.NoError(t, err)

	d := res.Detail
	assert.Equal(t, "net/minecraft/world/Foo", node(t, d, mapping.Classes, "net/minecraft/src/C_1_").Mapped())
	assert.Equal(t, "health", node(t, d, mapping.Fields, "f_1_").Mapped())
	assert.Equal(t, "tick", node(t, d, mapping.Methods, "m_2_").Mapped())
}

func TestOfficialReusesCachedZip(t *testing.T) {
	dir := t.TempDir()
	o := &Official{CacheDir: filepath.Join(dir, "cache"), Log: zerolog.Nop()}
	req := Request{
		Channel:        "official",
		Version:        "1.20.1",
		SRG:            write(t, dir, "joined.srg", testSRG),
		ClientMappings: write(t, dir, "client.txt", testClient),
		ServerMappings: write(t, dir, "server.txt", testServer),
	}
	first, err := o.Mappings(context.Background(), req)
	require.NoError(t, err)
	info, err := os.Stat(first.Path)
	require.NoError(t, err)

	second, err := o.Mappings(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.True(t, first.Detail.Equal(second.Detail))
	again, err := os.Stat(second.Path)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), again.ModTime())

	write(t, dir, "server.txt", testClient)
	third, err := o.Mappings(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, mapping.Both, node(t, third.Detail, mapping.Methods, "func_2_").Side())
}

func TestOfficialResolvesInputs(t *testing.T) {
	dir := t.TempDir()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"config.json":       `{"spec":2,"version":"1.20.1","data":{"mappings":"config/joined.srg"},"steps":{}}`,
		"config/joined.srg": testSRG,
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	res := &mapResolver{files: map[string]string{
		"de.oceanlabs.mcp:mcp_config:1.20.1-20230612.114412@zip": write(t, dir, "mcp_config.zip", buf.String()),
		"net.minecraft:client:1.20.1:mappings@txt":               write(t, dir, "client.txt", testClient),
		"net.minecraft:server:1.20.1:mappings@txt":               write(t, dir, "server.txt", testServer),
	}}
	o := &Official{CacheDir: filepath.Join(dir, "cache"), Resolver: res, Log: zerolog.Nop()}

	out, err := o.Mappings(context.Background(), Request{Channel: "official", Version: "1.20.1-20230612.114412"})
	require.NoError(t, err)
	assert.Len(t, res.calls, 3)
	assert.FileExists(t, filepath.Join(dir, "cache", "official", "1.20.1-20230612.114412", "joined.srg"))
	assert.Equal(t, "net/minecraft/world/Foo", node(t, out.Detail, mapping.Classes, "net/minecraft/src/C_1_").Mapped())
}

func TestOfficialWithoutResolver(t *testing.T) {
	o := &Official{CacheDir: t.TempDir(), Log: zerolog.Nop()}
	_, err := o.Mappings(context.Background(), Request{Channel: "official", Version: "1.20.1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no resolver configured")
}

func TestMCPNormalisesExport(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"methods.csv": "searge,name,side,desc\nfunc_100_a,tick,0,Ticks once.\nunrelated,x,2,\n",
		"fields.csv":  "searge,name,side,desc\nfield_1_a,health,2,\n",
		"params.csv":  "param,name,side\np_100_1_,amount,1\n",
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	res := &mapResolver{files: map[string]string{
		"de.oceanlabs.mcp:mcp_stable:39-1.12@zip": write(t, dir, "export.zip", buf.String()),
	}}
	m := &MCP{CacheDir: filepath.Join(dir, "cache"), Resolver: res, Log: zerolog.Nop()}

	out, err := m.Mappings(context.Background(), Request{Channel: "stable", Version: "39-1.12"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cache", "stable", "39-1.12", "mappings.zip"), out.Path)

	tick := node(t, out.Detail, mapping.Methods, "func_100_a")
	assert.Equal(t, "tick", tick.Mapped())
	assert.Equal(t, mapping.Client, tick.Side())
	assert.Equal(t, "Ticks once.", tick.Javadoc())
	assert.Equal(t, mapping.Server, node(t, out.Detail, mapping.Params, "p_100_1_").Side())
	_, kept := out.Detail.Table(mapping.Methods)["unrelated"]
	assert.False(t, kept)

	_, err = m.Mappings(context.Background(), Request{Channel: "snapshot", Version: "20200101"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "mcp_snapshot:20200101"))
}
