package mcpconfig

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
)

// ConfigName is the entry holding the pipeline definition inside a config
// archive.
const ConfigName = "config.json"

// Defaults applied to spec 1 payloads and to spec 2 payloads that omit the
// fields.
const (
	DefaultJavaTarget = 8
	DefaultEncoding   = "UTF-8"
)

type rawConfig struct {
	Spec       *int                        `json:"spec"`
	Version    string                      `json:"version"`
	Data       any                         `json:"data"`
	Steps      map[string][]map[string]any `json:"steps"`
	Functions  map[string]Function         `json:"functions"`
	Libraries  map[string][]string         `json:"libraries"`
	Official   *bool                       `json:"official"`
	JavaTarget *int                        `json:"java_target"`
	Encoding   *string                     `json:"encoding"`
}

// LoadFile reads a config archive from disk.
func LoadFile(path string) (*ConfigV2, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config archive: %w", err)
	}
	return Load(data)
}

// Load parses the config.json held in a config archive.
func Load(archive []byte) (*ConfigV2, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, formatErr("open archive", err)
	}
	data, err := ReadEntry(zr, ConfigName)
	if err != nil {
		return nil, formatErr("read "+ConfigName, err)
	}
	return LoadJSON(data)
}

// ReadEntry returns the contents of one archive entry.
func ReadEntry(zr *zip.Reader, name string) ([]byte, error) {
	f, err := zr.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s not found in archive", name)
		}
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// LoadJSON parses a config.json payload. Spec 1 payloads are upgraded to
// the spec 2 shape with official=false, java_target=8 and encoding=UTF-8.
func LoadJSON(data []byte) (*ConfigV2, error) {
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, formatErr("parse "+ConfigName, err)
	}
	if raw.Spec == nil {
		return nil, formatErrf("missing spec field")
	}
	spec := *raw.Spec
	if spec != 1 && spec != 2 {
		return nil, formatErr("unsupported spec", &UnsupportedSpecError{Spec: spec})
	}

	cfg := &ConfigV2{
		Spec:       spec,
		Version:    raw.Version,
		JavaTarget: DefaultJavaTarget,
		Encoding:   DefaultEncoding,
		Data:       raw.Data,
		Steps:      make(map[string][]Step, len(raw.Steps)),
		Functions:  raw.Functions,
		Libraries:  raw.Libraries,
	}
	if cfg.Functions == nil {
		cfg.Functions = map[string]Function{}
	}
	if spec == 2 {
		if raw.Official != nil {
			cfg.Official = *raw.Official
		}
		if raw.JavaTarget != nil {
			cfg.JavaTarget = *raw.JavaTarget
		}
		if raw.Encoding != nil && *raw.Encoding != "" {
			cfg.Encoding = *raw.Encoding
		}
	}

	for side, objs := range raw.Steps {
		steps := make([]Step, 0, len(objs))
		seen := make(map[string]bool, len(objs))
		for i, obj := range objs {
			s, err := parseStep(obj)
			if err != nil {
				return nil, formatErr(fmt.Sprintf("steps.%s[%d]", side, i), err)
			}
			if seen[s.Name] {
				return nil, formatErrf("steps.%s[%d]: duplicate step name %q", side, i, s.Name)
			}
			seen[s.Name] = true
			steps = append(steps, s)
		}
		cfg.Steps[side] = steps
	}
	return cfg, nil
}

func parseStep(obj map[string]any) (Step, error) {
	var s Step
	typ, ok := obj["type"].(string)
	if !ok || typ == "" {
		return s, fmt.Errorf("missing string field \"type\"")
	}
	s.Type = typ
	s.Name = typ
	s.Args = make(map[string]string, len(obj))

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "type" {
			continue
		}
		v, ok := obj[k].(string)
		if !ok {
			return s, fmt.Errorf("field %q must be a string, got %T", k, obj[k])
		}
		switch k {
		case "name":
			if v != "" {
				s.Name = v
			}
		case "stage":
			if v != StageShared && v != StageSrc {
				return s, fmt.Errorf("stage must be %q or %q, got %q", StageShared, StageSrc, v)
			}
			s.Stage = v
		default:
			s.Args[k] = v
		}
	}
	return s, nil
}
