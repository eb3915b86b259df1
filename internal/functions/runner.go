package functions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// Command is one external process invocation.
type Command struct {
	Dir  string
	Name string
	Args []string
	Env  []string
	// Output receives both stdout and stderr.
	Output io.Writer
}

// CommandRunner abstracts process execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (exitCode int, err error)
}

// ExecRunner implements CommandRunner with os/exec. The process is killed
// when ctx is cancelled.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, c Command) (int, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdout = c.Output
	cmd.Stderr = c.Output
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	if ctx.Err() != nil {
		return -1, fmt.Errorf("exec %s: %w", c.Name, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("exec %s: %w", c.Name, err)
}
