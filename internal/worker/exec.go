package worker

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// ExecResult captures one handler process invocation. ExitCode is the
// process exit status; a process that could not be started at all is
// reported through the error return instead.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// CommandRunner executes a handler command. The dispatcher imposes no
// timeout of its own; the external invoker owns the wall-clock budget,
// so the process blocks until the handler exits.
// Version: 1.0
type CommandRunner interface {
	Run(ctx context.Context, dir string, argv []string) (ExecResult, error)
}

// ProcessRunner runs handlers as child processes with the configured
// working directory, capturing stdout and stderr separately.
type ProcessRunner struct{}

// Run implements CommandRunner.
func (ProcessRunner) Run(ctx context.Context, dir string, argv []string) (ExecResult, error) {
	if len(argv) == 0 {
		return ExecResult{}, errors.New("empty handler command")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := ExecResult{
		Stdout:   strings.TrimSpace(stdout.String()),
		Stderr:   strings.TrimSpace(stderr.String()),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		// The process never ran (missing binary, bad dir, ...).
		return res, err
	}
}
