package mcp

import (
	"regexp"
	"strings"

	"github.com/lucasnoah/mcpforge/internal/mcpconfig"
)

var outputRef = regexp.MustCompile(`^\{(\w+)Output\}$`)

// SubstituteOutputs returns a fresh argument map for step. Values of the
// form {<name>Output} become the output path of step <name>, which must be
// present in outputs. Values of the form {<key>} naming an extracted data
// entry become its path. Anything else is copied verbatim. step.Args is
// never modified.
func SubstituteOutputs(step mcpconfig.Step, outputs, data map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(step.Args))
	for k, v := range step.Args {
		if m := outputRef.FindStringSubmatch(v); m != nil {
			path, ok := outputs[m[1]]
			if !ok {
				return nil, &MissingStepOutputError{Step: step.Name, Referenced: m[1]}
			}
			out[k] = path
			continue
		}
		if strings.HasPrefix(v, "{") && strings.HasSuffix(v, "}") {
			if path, ok := data[v[1:len(v)-1]]; ok {
				out[k] = path
				continue
			}
		}
		out[k] = v
	}
	return out, nil
}
