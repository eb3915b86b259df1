package mcpconfig

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Stage names.
const (
	StageShared = "shared"
	StageSrc    = "src"
)

// DecompileType is the step type that starts the src stage when steps carry
// no explicit stage.
const DecompileType = "decompile"

// Step is one entry of a pipeline. Args never contain type, name or stage.
type Step struct {
	Name  string
	Type  string
	Stage string
	Args  map[string]string
}

// ArgNames returns the argument names in sorted order.
func (s Step) ArgNames() []string {
	names := make([]string, 0, len(s.Args))
	for k := range s.Args {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Pipeline is one side's steps split into the shared stage and the src
// stage that only runs when sources are requested.
type Pipeline struct {
	Side   string
	Shared []Step
	Src    []Step
}

// All returns the shared steps followed by the src steps.
func (p *Pipeline) All() []Step {
	out := make([]Step, 0, len(p.Shared)+len(p.Src))
	out = append(out, p.Shared...)
	return append(out, p.Src...)
}

// Function declares an external jar tool resolved from a maven repository.
type Function struct {
	Version     string   `json:"version" yaml:"version"`
	Repo        string   `json:"repo,omitempty" yaml:"repo,omitempty"`
	Args        []string `json:"args,omitempty" yaml:"args,omitempty"`
	JvmArgs     []string `json:"jvmargs,omitempty" yaml:"jvmargs,omitempty"`
	Env         EnvVars  `json:"envvars,omitempty" yaml:"envvars,omitempty"`
	JavaVersion int      `json:"java_version,omitempty" yaml:"java_version,omitempty"`
}

// EnvVars accepts either a JSON object or an array of KEY=VALUE strings.
type EnvVars map[string]string

func (e *EnvVars) UnmarshalJSON(data []byte) error {
	var obj map[string]string
	if err := json.Unmarshal(data, &obj); err == nil {
		*e = obj
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("envvars must be an object or an array of KEY=VALUE strings")
	}
	out := make(EnvVars, len(list))
	for _, kv := range list {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return fmt.Errorf("envvars entry %q is not KEY=VALUE", kv)
		}
		out[k] = v
	}
	*e = out
	return nil
}

// Environ renders the variables as sorted KEY=VALUE strings.
func (e EnvVars) Environ() []string {
	out := make([]string, 0, len(e))
	for k, v := range e {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// ConfigV2 is the parsed config.json. Spec 1 payloads are upgraded on load.
type ConfigV2 struct {
	Spec       int                 `yaml:"spec"`
	Version    string              `yaml:"version"`
	Official   bool                `yaml:"official"`
	JavaTarget int                 `yaml:"java_target"`
	Encoding   string              `yaml:"encoding"`
	Data       any                 `yaml:"data,omitempty"`
	Steps      map[string][]Step   `yaml:"steps"`
	Functions  map[string]Function `yaml:"functions,omitempty"`
	Libraries  map[string][]string `yaml:"libraries,omitempty"`
}

// Sides returns the pipeline names in sorted order.
func (c *ConfigV2) Sides() []string {
	out := make([]string, 0, len(c.Steps))
	for k := range c.Steps {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Pipeline splits the steps of side into stages. A step's explicit stage
// wins; otherwise the first decompile step and everything after it belong
// to the src stage.
func (c *ConfigV2) Pipeline(side string) (*Pipeline, error) {
	steps, ok := c.Steps[side]
	if !ok {
		return nil, formatErrf("no pipeline for side %q (have %s)", side, strings.Join(c.Sides(), ", "))
	}
	split := len(steps)
	for i, s := range steps {
		if s.Type == DecompileType {
			split = i
			break
		}
	}
	p := &Pipeline{Side: side}
	for i, s := range steps {
		stage := s.Stage
		if stage == "" {
			stage = StageShared
			if i >= split {
				stage = StageSrc
			}
		}
		if stage == StageSrc {
			p.Src = append(p.Src, s)
		} else {
			p.Shared = append(p.Shared, s)
		}
	}
	return p, nil
}
