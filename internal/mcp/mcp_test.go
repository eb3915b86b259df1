package mcp

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasnoah/mcpforge/internal/mcpconfig"
)

// fakeFunc writes the step name to out.txt in the step working dir.
type fakeFunc struct {
	calls int
	seen  []map[string]string
	fail  error
	hook  func(ctx context.Context, env *Environment)
}

func (f *fakeFunc) Execute(ctx context.Context, env *Environment) (string, error) {
	f.calls++
	f.seen = append(f.seen, env.Args())
	if f.hook != nil {
		f.hook(ctx, env)
	}
	if f.fail != nil {
		return "", f.fail
	}
	out := env.File("out.txt")
	if err := os.WriteFile(out, []byte(env.StepName()), 0o644); err != nil {
		return "", err
	}
	return out, nil
}

type initFunc struct {
	fakeFunc
	loaded      int
	initialized int
	entries     int
}

func (f *initFunc) LoadData(cfg *mcpconfig.ConfigV2) error {
	f.loaded++
	return nil
}

func (f *initFunc) Initialize(env *Environment, zr *zip.Reader) error {
	f.initialized++
	f.entries = len(zr.File)
	return nil
}

type memRecorder struct{ events []StepEvent }

func (m *memRecorder) RecordStep(ev StepEvent) { m.events = append(m.events, ev) }

func registryWith(fns map[string]Function) *Registry {
	reg := NewRegistry()
	for name, fn := range fns {
		fn := fn
		reg.Register(name, func() Function { return fn })
	}
	return reg
}

func mustConfig(t *testing.T, body string) *mcpconfig.ConfigV2 {
	t.Helper()
	cfg, err := mcpconfig.LoadJSON([]byte(body))
	require.NoError(t, err)
	return cfg
}

func newRuntime(t *testing.T, cfg *mcpconfig.ConfigV2, reg *Registry, opts Options) *Runtime {
	t.Helper()
	rc, err := Validate(cfg, "joined", reg)
	require.NoError(t, err)
	if opts.Root == "" {
		opts.Root = t.TempDir()
	}
	opts.Logger = zerolog.Nop()
	rt, err := NewRuntime(rc, opts)
	require.NoError(t, err)
	return rt
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("b", func() Function { return &fakeFunc{} }))
	require.NoError(t, reg.Register("a", func() Function { return &fakeFunc{} }))
	assert.Error(t, reg.Register("a", func() Function { return &fakeFunc{} }))
	assert.Equal(t, []string{"a", "b"}, reg.Names())

	f, ok := reg.Lookup("a")
	require.True(t, ok)
	assert.IsType(t, &fakeFunc{}, f())
	_, ok = reg.Lookup("missing")
	assert.False(t, ok)
}

func TestValidateUnknownFunction(t *testing.T) {
	cfg := mustConfig(t, `{"spec":1,"steps":{"joined":[{"type":"known"},{"type":"mystery","name":"m1"}]}}`)
	_, err := Validate(cfg, "joined", registryWith(map[string]Function{"known": &fakeFunc{}}))

	var ue *UnknownFunctionError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "m1", ue.Step)
	assert.Equal(t, "mystery", ue.Type)
}

func TestValidateMemoizesByType(t *testing.T) {
	cfg := mustConfig(t, `{"spec":1,"steps":{"joined":[
		{"type":"strip","name":"a"},{"type":"strip","name":"b"},{"type":"other"}]}}`)
	made := 0
	reg := NewRegistry()
	reg.Register("strip", func() Function { made++; return &fakeFunc{} })
	reg.Register("other", func() Function { return &fakeFunc{} })

	rc, err := Validate(cfg, "joined", reg)
	require.NoError(t, err)
	assert.Equal(t, 1, made)
	assert.Equal(t, 2, rc.Types())
}

func TestValidateDeclaredFunctionWins(t *testing.T) {
	cfg := mustConfig(t, `{"spec":1,"steps":{"joined":[{"type":"strip"}]},
		"functions":{"strip":{"version":"com.example:stripper:1"}}}`)
	builtin := &fakeFunc{}
	declared := &fakeFunc{}
	reg := registryWith(map[string]Function{"strip": builtin})
	var gotName, gotVersion string
	reg.SetExternal(func(name string, decl mcpconfig.Function) (Function, error) {
		gotName, gotVersion = name, decl.Version
		return declared, nil
	})

	rc, err := Validate(cfg, "joined", reg)
	require.NoError(t, err)
	assert.Same(t, declared, rc.Function("strip"))
	assert.Equal(t, "strip", gotName)
	assert.Equal(t, "com.example:stripper:1", gotVersion)
}

func TestValidateConfigErrors(t *testing.T) {
	reg := registryWith(map[string]Function{"a": &fakeFunc{}})
	var fe *mcpconfig.ConfigFormatError

	cfg := mustConfig(t, `{"spec":2,"encoding":"klingon-8","steps":{"joined":[{"type":"a"}]}}`)
	_, err := Validate(cfg, "joined", reg)
	assert.True(t, errors.As(err, &fe), "unknown encoding: %v", err)

	cfg = mustConfig(t, `{"spec":1,"steps":{"joined":[{"type":"a"}]}}`)
	_, err = Validate(cfg, "server", reg)
	assert.True(t, errors.As(err, &fe), "unknown side: %v", err)

	cfg = mustConfig(t, `{"spec":1,"steps":{"joined":[{"type":"f"}]},"functions":{"f":{"repo":"x"}}}`)
	_, err = Validate(cfg, "joined", reg)
	assert.True(t, errors.As(err, &fe), "missing version: %v", err)
}

func TestSubstituteOutputsIsPure(t *testing.T) {
	step := mcpconfig.Step{Name: "b", Type: "strip", Args: map[string]string{
		"input":    "{aOutput}",
		"mappings": "{mappings}",
		"literal":  "{notAPlaceholder",
		"other":    "{unknown}",
	}}
	got, err := SubstituteOutputs(step, map[string]string{"a": "/abs/a.json"}, map[string]string{"mappings": "/abs/joined.tsrg"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"input":    "/abs/a.json",
		"mappings": "/abs/joined.tsrg",
		"literal":  "{notAPlaceholder",
		"other":    "{unknown}",
	}, got)
	assert.Equal(t, "{aOutput}", step.Args["input"], "step args must not be mutated")

	_, err = SubstituteOutputs(step, nil, nil)
	var me *MissingStepOutputError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "b", me.Step)
	assert.Equal(t, "a", me.Referenced)
}

func TestRuntimeThreadsOutputs(t *testing.T) {
	a, b := &fakeFunc{}, &fakeFunc{}
	cfg := mustConfig(t, `{"spec":1,"version":"1.20.1","steps":{"joined":[
		{"type":"first","name":"a"},
		{"type":"second","name":"b","input":"{aOutput}","keep":"plain"}]}}`)
	rec := &memRecorder{}
	rt := newRuntime(t, cfg, registryWith(map[string]Function{"first": a, "second": b}), Options{Recorder: rec})

	out, err := rt.Execute(context.Background(), ExecuteOpts{})
	require.NoError(t, err)

	aOut := filepath.Join(rt.Root(), "a", "out.txt")
	assert.Equal(t, filepath.Join(rt.Root(), "b", "out.txt"), out)
	require.Len(t, b.seen, 1)
	assert.Equal(t, aOut, b.seen[0]["input"])
	assert.Equal(t, "plain", b.seen[0]["keep"])
	assert.True(t, filepath.IsAbs(b.seen[0]["input"]))

	var events []string
	for _, ev := range rec.events {
		events = append(events, ev.Step+":"+ev.Event)
	}
	assert.Equal(t, []string{"a:started", "a:finished", "b:started", "b:finished"}, events)
	assert.Equal(t, map[string]string{"a": aOut, "b": out}, rt.Outputs())
}

func TestRuntimeForwardReferenceFails(t *testing.T) {
	cases := map[string]string{
		"later step": `{"spec":1,"steps":{"joined":[
			{"type":"f","name":"a","input":"{bOutput}"},{"type":"f","name":"b"}]}}`,
		"self": `{"spec":1,"steps":{"joined":[{"type":"f","name":"a","input":"{aOutput}"}]}}`,
		"src from shared": `{"spec":1,"steps":{"joined":[
			{"type":"f","name":"a","input":"{decompileOutput}"},{"type":"decompile"}]}}`,
	}
	for name, body := range cases {
		fn := &fakeFunc{}
		reg := registryWith(map[string]Function{"f": fn, "decompile": &fakeFunc{}})
		rt := newRuntime(t, mustConfig(t, body), reg, Options{})

		_, err := rt.Execute(context.Background(), ExecuteOpts{Sources: true})
		var me *MissingStepOutputError
		require.True(t, errors.As(err, &me), "%s: %v", name, err)
		assert.Equal(t, "a", me.Step, name)
		assert.Equal(t, 0, fn.calls, name)
	}
}

func TestRuntimeSourcesStage(t *testing.T) {
	shared, dec, after := &fakeFunc{}, &fakeFunc{}, &fakeFunc{}
	cfg := mustConfig(t, `{"spec":1,"steps":{"joined":[
		{"type":"shared"},
		{"type":"decompile","input":"{sharedOutput}"},
		{"type":"after","input":"{decompileOutput}","base":"{sharedOutput}"}]}}`)
	reg := registryWith(map[string]Function{"shared": shared, "decompile": dec, "after": after})

	rt := newRuntime(t, cfg, reg, Options{})
	out, err := rt.Execute(context.Background(), ExecuteOpts{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(rt.Root(), "shared", "out.txt"), out)
	assert.Equal(t, 0, dec.calls)

	out, err = rt.Execute(context.Background(), ExecuteOpts{Sources: true})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(rt.Root(), "after", "out.txt"), out)
	assert.Equal(t, 2, shared.calls)
	assert.Equal(t, 1, after.calls)
}

func TestRuntimeStopAfter(t *testing.T) {
	a, b := &fakeFunc{}, &fakeFunc{}
	cfg := mustConfig(t, `{"spec":1,"steps":{"joined":[{"type":"a"},{"type":"b"},{"type":"decompile"}]}}`)
	rt := newRuntime(t, cfg, registryWith(map[string]Function{"a": a, "b": b, "decompile": &fakeFunc{}}), Options{})

	out, err := rt.Execute(context.Background(), ExecuteOpts{StopAfter: "a"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(rt.Root(), "a", "out.txt"), out)
	assert.Equal(t, 0, b.calls)

	_, err = rt.Execute(context.Background(), ExecuteOpts{StopAfter: "missing"})
	assert.Error(t, err)
	_, err = rt.Execute(context.Background(), ExecuteOpts{StopAfter: "decompile"})
	assert.Error(t, err, "src step without sources")
}

func TestRuntimeFailureAborts(t *testing.T) {
	boom := errors.New("boom")
	a, b, c := &fakeFunc{}, &fakeFunc{fail: boom}, &fakeFunc{}
	cfg := mustConfig(t, `{"spec":1,"steps":{"joined":[{"type":"a"},{"type":"b"},{"type":"c"}]}}`)
	rec := &memRecorder{}
	rt := newRuntime(t, cfg, registryWith(map[string]Function{"a": a, "b": b, "c": c}), Options{Recorder: rec})

	_, err := rt.Execute(context.Background(), ExecuteOpts{})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `step "b"`)
	assert.Equal(t, 0, c.calls)
	assert.DirExists(t, filepath.Join(rt.Root(), "b"), "working dir is kept for inspection")

	last := rec.events[len(rec.events)-1]
	assert.Equal(t, "b", last.Step)
	assert.Equal(t, EventFailed, last.Event)
	assert.ErrorIs(t, last.Err, boom)
}

func TestRuntimeCancelledBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &fakeFunc{hook: func(context.Context, *Environment) { cancel() }}
	b := &fakeFunc{}
	cfg := mustConfig(t, `{"spec":1,"steps":{"joined":[{"type":"a"},{"type":"b"}]}}`)
	rt := newRuntime(t, cfg, registryWith(map[string]Function{"a": a, "b": b}), Options{})

	_, err := rt.Execute(ctx, ExecuteOpts{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 0, b.calls)
}

func TestEnvironmentLookups(t *testing.T) {
	var gotType, gotStep, gotFile, gotRoot string
	var typeOK, stepOK, futureOK bool
	probe := &fakeFunc{hook: func(_ context.Context, env *Environment) {
		gotType, typeOK = env.OutputOfType("dl")
		gotStep, stepOK = env.StepOutput("second")
		_, futureOK = env.StepOutput("probe")
		gotFile = env.File("x.txt")
		gotRoot = env.RootFile("shared.txt")
	}}
	cfg := mustConfig(t, `{"spec":1,"version":"1.19","steps":{"joined":[
		{"type":"dl","name":"first"},{"type":"dl","name":"second"},{"type":"probe"}]}}`)
	root := t.TempDir()
	rt := newRuntime(t, cfg, registryWith(map[string]Function{"dl": &fakeFunc{}, "probe": probe}), Options{Root: root})

	_, err := rt.Execute(context.Background(), ExecuteOpts{})
	require.NoError(t, err)
	assert.True(t, typeOK)
	assert.Equal(t, filepath.Join(rt.Root(), "second", "out.txt"), gotType, "latest step of the type wins")
	assert.True(t, stepOK)
	assert.Equal(t, gotType, gotStep)
	assert.False(t, futureOK)
	assert.Equal(t, filepath.Join(rt.Root(), "probe", "x.txt"), gotFile)
	assert.Equal(t, filepath.Join(root, "shared.txt"), gotRoot)
}

func TestRuntimeExtractsDataAndRunsHooks(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "config.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range map[string]string{
		"config.json":                     "{}",
		"config/joined.tsrg":              "a b\n",
		"patches/joined/A.java.patch":     "--- a\n",
		"patches/joined/sub/B.java.patch": "--- b\n",
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		w.Write([]byte(body))
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	hooked := &initFunc{}
	cfg := mustConfig(t, `{"spec":1,"data":{
			"mappings":"config/joined.tsrg",
			"patches":{"joined":"patches/joined/","server":"patches/server/"},
			"note":"not-in-archive"},
		"steps":{"joined":[
			{"type":"hooked","name":"one","mappings":"{mappings}","patches":"{patches}","note":"{note}"},
			{"type":"hooked","name":"two"}]}}`)
	rt := newRuntime(t, cfg, registryWith(map[string]Function{"hooked": hooked}), Options{ConfigZip: zipPath})

	_, err = rt.Execute(context.Background(), ExecuteOpts{})
	require.NoError(t, err)
	_, err = rt.Execute(context.Background(), ExecuteOpts{})
	require.NoError(t, err)

	assert.Equal(t, 1, hooked.loaded)
	assert.Equal(t, 1, hooked.initialized)
	assert.Equal(t, 4, hooked.entries)

	args := hooked.seen[0]
	mappings := filepath.Join(rt.Root(), "config", "config", "joined.tsrg")
	assert.Equal(t, mappings, args["mappings"])
	assert.FileExists(t, mappings)
	patches := filepath.Join(rt.Root(), "config", "patches", "joined")
	assert.Equal(t, patches, args["patches"])
	assert.FileExists(t, filepath.Join(patches, "sub", "B.java.patch"))
	assert.Equal(t, "not-in-archive", args["note"])
}

func TestJarFutureResolvesOnce(t *testing.T) {
	calls := 0
	fail := errors.New("no repo")
	jf := NewJarFuture(func(ctx context.Context) (string, error) {
		calls++
		return "", fail
	})
	_, err := jf.Get(context.Background())
	assert.ErrorIs(t, err, fail)
	_, err = jf.Get(context.Background())
	assert.ErrorIs(t, err, fail)
	assert.Equal(t, 1, calls)
}
