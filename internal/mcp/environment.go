package mcp

import (
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/lucasnoah/mcpforge/internal/mcpconfig"
)

// Environment is the view a function gets of the runtime while one of its
// steps executes. There is one per runtime; the current step advances as the
// pipeline runs.
type Environment struct {
	rt   *Runtime
	cur  *stepState
	args map[string]string
	log  zerolog.Logger
}

// StepName returns the name of the executing step.
func (e *Environment) StepName() string { return e.cur.step.Name }

// StepType returns the function type of the executing step.
func (e *Environment) StepType() string { return e.cur.step.Type }

// Args returns the step's arguments after output substitution.
func (e *Environment) Args() map[string]string { return e.args }

// Arg returns one substituted argument.
func (e *Environment) Arg(name string) (string, bool) {
	v, ok := e.args[name]
	return v, ok
}

// WorkDir is the step's private working directory.
func (e *Environment) WorkDir() string { return e.cur.workDir }

// File resolves name against the step's working directory. Absolute paths
// are returned unchanged.
func (e *Environment) File(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(e.cur.workDir, name)
}

// RootFile resolves name against the mcp root shared by all sides.
func (e *Environment) RootFile(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(e.rt.root, name)
}

// StepOutput returns the output of an already executed step.
func (e *Environment) StepOutput(name string) (string, bool) {
	s, ok := e.rt.steps[name]
	if !ok || !s.done {
		return "", false
	}
	return s.output, true
}

// OutputOfType returns the output of the most recently executed step of the
// given function type.
func (e *Environment) OutputOfType(typ string) (string, bool) {
	for i := len(e.rt.order) - 1; i >= 0; i-- {
		s := e.rt.order[i]
		if s.done && s.step.Type == typ {
			return s.output, true
		}
	}
	return "", false
}

// Config returns the parsed config.
func (e *Environment) Config() *mcpconfig.ConfigV2 { return e.rt.cfg.Config }

// Side returns the pipeline name being executed.
func (e *Environment) Side() string { return e.rt.cfg.Side }

// MCVersion returns the Minecraft version of the config.
func (e *Environment) MCVersion() string { return e.rt.cfg.Config.Version }

// Data returns the side's flattened data entries, with archive entries
// replaced by their extracted paths.
func (e *Environment) Data(key string) (string, bool) {
	v, ok := e.rt.data[key]
	return v, ok
}

// RawData returns a flattened data entry as written in config.json, e.g. an
// archive path.
func (e *Environment) RawData(key string) (string, bool) {
	v, ok := e.rt.rawData[key]
	return v, ok
}

// Logger returns a logger tagged with the current step.
func (e *Environment) Logger() zerolog.Logger { return e.log }
