package mcpconfig

import "fmt"

// ConfigFormatError reports a config archive that cannot be used: missing
// config.json, malformed JSON, wrong field types or an unsupported spec.
type ConfigFormatError struct {
	Reason string
	Err    error
}

func (e *ConfigFormatError) Error() string {
	if e.Err == nil {
		return "invalid mcp config: " + e.Reason
	}
	return fmt.Sprintf("invalid mcp config: %s: %v", e.Reason, e.Err)
}

func (e *ConfigFormatError) Unwrap() error { return e.Err }

// UnsupportedSpecError is wrapped in a ConfigFormatError when the embedded
// spec number is not 1 or 2.
type UnsupportedSpecError struct {
	Spec int
}

func (e *UnsupportedSpecError) Error() string {
	return fmt.Sprintf("unsupported config spec %d (supported: 1, 2)", e.Spec)
}

func formatErr(reason string, err error) error {
	return &ConfigFormatError{Reason: reason, Err: err}
}

func formatErrf(format string, args ...any) error {
	return &ConfigFormatError{Reason: fmt.Sprintf(format, args...)}
}
