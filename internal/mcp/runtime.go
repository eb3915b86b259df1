package mcp

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lucasnoah/mcpforge/internal/mcpconfig"
)

// Step event names passed to a Recorder.
const (
	EventStarted  = "started"
	EventFinished = "finished"
	EventFailed   = "failed"
)

// StepEvent describes one step lifecycle transition.
type StepEvent struct {
	Side     string
	Step     string
	Type     string
	Event    string
	Duration time.Duration
	Output   string
	Err      error
}

// Recorder receives step lifecycle events, e.g. to persist run history.
type Recorder interface {
	RecordStep(ev StepEvent)
}

// Options configures a Runtime.
type Options struct {
	// Root is the mcp directory. Each side works below Root/<side>.
	Root string
	// ConfigZip is the archive the config was loaded from. Optional.
	ConfigZip string
	Logger    zerolog.Logger
	Recorder  Recorder
}

// ExecuteOpts selects what a pipeline run covers.
type ExecuteOpts struct {
	// Sources also runs the src stage.
	Sources bool
	// StopAfter ends the run after the named step.
	StopAfter string
}

type stepState struct {
	step    mcpconfig.Step
	stage   string
	fn      Function
	workDir string
	output  string
	done    bool
}

// Runtime executes one side's pipeline. Steps run strictly in order on the
// calling goroutine; separate runtimes may run concurrently as long as their
// roots or sides differ.
type Runtime struct {
	cfg      *ResolvedConfig
	root     string
	sideRoot string
	zipPath  string
	log      zerolog.Logger
	rec      Recorder

	steps   map[string]*stepState
	order   []*stepState
	data    map[string]string
	rawData map[string]string
	env     *Environment

	initialized bool
}

// NewRuntime prepares a runtime for a validated config.
func NewRuntime(rc *ResolvedConfig, opts Options) (*Runtime, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	rt := &Runtime{
		cfg:      rc,
		root:     root,
		sideRoot: filepath.Join(root, rc.Side),
		zipPath:  opts.ConfigZip,
		log:      opts.Logger.With().Str("side", rc.Side).Logger(),
		rec:      opts.Recorder,
		steps:    make(map[string]*stepState),
	}
	add := func(steps []mcpconfig.Step, stage string) {
		for _, s := range steps {
			st := &stepState{
				step:    s,
				stage:   stage,
				fn:      rc.Function(s.Type),
				workDir: filepath.Join(rt.sideRoot, s.Name),
			}
			rt.steps[s.Name] = st
			rt.order = append(rt.order, st)
		}
	}
	add(rc.Pipeline.Shared, mcpconfig.StageShared)
	add(rc.Pipeline.Src, mcpconfig.StageSrc)
	rt.env = &Environment{rt: rt, log: rt.log}
	return rt, nil
}

// Execute runs the shared stage and, when requested, the src stage. It
// returns the output of the last executed step. The first failing step
// aborts the run; working directories are left in place.
func (r *Runtime) Execute(ctx context.Context, opts ExecuteOpts) (string, error) {
	if opts.StopAfter != "" {
		st, ok := r.steps[opts.StopAfter]
		if !ok {
			return "", fmt.Errorf("stop-after: no step named %q", opts.StopAfter)
		}
		if st.stage == mcpconfig.StageSrc && !opts.Sources {
			return "", fmt.Errorf("stop-after: step %q is in the src stage, which is not being run", opts.StopAfter)
		}
	}
	if err := r.initialize(); err != nil {
		return "", err
	}
	for _, st := range r.order {
		st.done, st.output = false, ""
	}

	start := time.Now()
	r.log.Info().Str("version", r.cfg.Config.Version).Bool("sources", opts.Sources).Msg("executing pipeline")

	var last string
	for _, st := range r.order {
		if st.stage == mcpconfig.StageSrc && !opts.Sources {
			break
		}
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("pipeline cancelled before step %q: %w", st.step.Name, err)
		}
		out, err := r.runStep(ctx, st)
		if err != nil {
			return "", err
		}
		last = out
		if st.step.Name == opts.StopAfter {
			break
		}
	}
	r.log.Info().Dur("took", time.Since(start)).Str("output", last).Msg("pipeline finished")
	return last, nil
}

// Outputs returns the outputs recorded so far, keyed by step name.
func (r *Runtime) Outputs() map[string]string {
	out := make(map[string]string)
	for _, st := range r.order {
		if st.done {
			out[st.step.Name] = st.output
		}
	}
	return out
}

// Root returns the side directory of this runtime.
func (r *Runtime) Root() string { return r.sideRoot }

func (r *Runtime) runStep(ctx context.Context, st *stepState) (string, error) {
	s := st.step
	args, err := SubstituteOutputs(s, r.Outputs(), r.data)
	if err != nil {
		r.record(st, EventFailed, 0, err)
		return "", err
	}
	if err := os.MkdirAll(st.workDir, 0o755); err != nil {
		return "", fmt.Errorf("create working dir for step %q: %w", s.Name, err)
	}

	log := r.log.With().Str("step", s.Name).Str("type", s.Type).Logger()
	r.env.cur = st
	r.env.args = args
	r.env.log = log

	log.Info().Msg("running step")
	r.record(st, EventStarted, 0, nil)
	start := time.Now()
	out, err := st.fn.Execute(ctx, r.env)
	took := time.Since(start)
	if err != nil {
		log.Error().Err(err).Dur("took", took).Msg("step failed")
		r.record(st, EventFailed, took, err)
		return "", fmt.Errorf("step %q (%s): %w", s.Name, s.Type, err)
	}
	if out, err = filepath.Abs(out); err != nil {
		return "", fmt.Errorf("step %q output: %w", s.Name, err)
	}
	st.output, st.done = out, true
	log.Debug().Dur("took", took).Str("output", out).Msg("step finished")
	r.record(st, EventFinished, took, nil)
	return out, nil
}

func (r *Runtime) record(st *stepState, event string, took time.Duration, err error) {
	if r.rec == nil {
		return
	}
	r.rec.RecordStep(StepEvent{
		Side:     r.cfg.Side,
		Step:     st.step.Name,
		Type:     st.step.Type,
		Event:    event,
		Duration: took,
		Output:   st.output,
		Err:      err,
	})
}

// initialize extracts data entries from the config archive and runs the
// LoadData and Initialize hooks once per function.
func (r *Runtime) initialize() error {
	if r.initialized {
		return nil
	}
	var zr *zip.Reader
	if r.zipPath != "" {
		zc, err := zip.OpenReader(r.zipPath)
		if err != nil {
			return fmt.Errorf("open config archive: %w", err)
		}
		defer zc.Close()
		zr = &zc.Reader
	}

	data, err := r.extractData(zr)
	if err != nil {
		return err
	}
	r.data = data

	seen := make(map[string]bool)
	for _, st := range r.order {
		if seen[st.step.Type] {
			continue
		}
		seen[st.step.Type] = true
		if dl, ok := st.fn.(DataLoader); ok {
			if err := dl.LoadData(r.cfg.Config); err != nil {
				return fmt.Errorf("load data for %q: %w", st.step.Type, err)
			}
		}
		if in, ok := st.fn.(Initializer); ok && zr != nil {
			r.env.cur = st
			r.env.args = st.step.Args
			r.env.log = r.log.With().Str("step", st.step.Name).Logger()
			if err := in.Initialize(r.env, zr); err != nil {
				return fmt.Errorf("initialize %q: %w", st.step.Type, err)
			}
		}
	}
	r.initialized = true
	return nil
}

// sideData flattens the data section for side: string values are kept and
// nested maps contribute their entry for the side.
func sideData(raw any, side string) map[string]string {
	out := make(map[string]string)
	m, ok := raw.(map[string]any)
	if !ok {
		return out
	}
	for k, v := range m {
		switch val := v.(type) {
		case string:
			out[k] = val
		case map[string]any:
			if s, ok := val[side].(string); ok {
				out[k] = s
			}
		}
	}
	return out
}

// extractData copies every archive entry named by the side's data section
// to <side>/config/ and returns the data map with paths substituted.
func (r *Runtime) extractData(zr *zip.Reader) (map[string]string, error) {
	r.rawData = sideData(r.cfg.Config.Data, r.cfg.Side)
	data := make(map[string]string, len(r.rawData))
	for k, v := range r.rawData {
		data[k] = v
	}
	if zr == nil {
		return data, nil
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		entry := data[k]
		dest := filepath.Join(r.sideRoot, "config", filepath.FromSlash(strings.TrimSuffix(entry, "/")))
		n, err := extract(zr, entry, dest)
		if err != nil {
			return nil, fmt.Errorf("extract data %q: %w", k, err)
		}
		if n > 0 {
			r.log.Debug().Str("key", k).Str("entry", entry).Int("files", n).Msg("extracted config data")
			data[k] = dest
		}
	}
	return data, nil
}

// extract writes entry (a file, or every file below a directory prefix) to
// dest and returns how many files were written.
func extract(zr *zip.Reader, entry, dest string) (int, error) {
	prefix := strings.TrimSuffix(entry, "/") + "/"
	n := 0
	for _, f := range zr.File {
		var target string
		switch {
		case f.Name == entry && !strings.HasSuffix(f.Name, "/"):
			target = dest
		case strings.HasPrefix(f.Name, prefix) && !strings.HasSuffix(f.Name, "/"):
			rel := path.Clean(strings.TrimPrefix(f.Name, prefix))
			if rel == ".." || strings.HasPrefix(rel, "../") {
				return n, fmt.Errorf("entry %q escapes %s", f.Name, prefix)
			}
			target = filepath.Join(dest, filepath.FromSlash(rel))
		default:
			continue
		}
		if err := writeEntry(f, target); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func writeEntry(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	out, err := os.Create(target)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, rc)
	return errors.Join(err, out.Close())
}
