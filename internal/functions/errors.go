package functions

import "fmt"

// ExternalProcessError reports an external tool that exited non-zero.
type ExternalProcessError struct {
	Step     string
	ExitCode int
	Log      string
}

func (e *ExternalProcessError) Error() string {
	return fmt.Sprintf("step %q: external process exited with code %d (see %s)", e.Step, e.ExitCode, e.Log)
}

func missingArg(env interface{ StepName() string }, name string) error {
	return fmt.Errorf("step %q: missing argument %q", env.StepName(), name)
}
