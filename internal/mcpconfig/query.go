package mcpconfig

import (
	"fmt"
	"strings"

	"github.com/ohler55/ojg/jp"
)

// Select evaluates a JSONPath expression against decoded JSON. Paths without
// a leading $ are taken relative to the root, so "libraries.client" and
// "$.libraries.client" are equivalent.
func Select(root any, path string) ([]any, error) {
	path = strings.TrimSpace(path)
	switch {
	case path == "":
		path = "$"
	case !strings.HasPrefix(path, "$"):
		path = "$." + path
	}
	x, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", path, err)
	}
	return x.Get(root), nil
}

// SelectString returns the first string matched by path.
func SelectString(root any, path string) (string, bool) {
	res, err := Select(root, path)
	if err != nil {
		return "", false
	}
	for _, v := range res {
		if s, ok := v.(string); ok {
			return s, true
		}
	}
	return "", false
}

// Query evaluates path against the config's data section.
func (c *ConfigV2) Query(path string) ([]any, error) {
	return Select(c.Data, path)
}

// DataString returns a string value of the data section.
func (c *ConfigV2) DataString(path string) (string, bool) {
	return SelectString(c.Data, path)
}

// DataMap returns a nested mapping of the data section.
func (c *ConfigV2) DataMap(path string) (map[string]any, bool) {
	res, err := c.Query(path)
	if err != nil || len(res) == 0 {
		return nil, false
	}
	m, ok := res[0].(map[string]any)
	return m, ok
}
