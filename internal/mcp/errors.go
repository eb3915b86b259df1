package mcp

import "fmt"

// UnknownFunctionError is returned by Validate when a step type is neither
// a built-in nor declared in the config's functions section.
type UnknownFunctionError struct {
	Step string
	Type string
}

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("step %q: unknown function type %q", e.Step, e.Type)
}

// MissingStepOutputError is returned when an argument references the output
// of a step that has not executed yet.
type MissingStepOutputError struct {
	Step       string
	Referenced string
}

func (e *MissingStepOutputError) Error() string {
	return fmt.Sprintf("step %q references output of %q, which has not executed", e.Step, e.Referenced)
}
