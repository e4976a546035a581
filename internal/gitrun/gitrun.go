// Package gitrun runs the git binary as a subprocess behind a small
// interface so callers can substitute a fake in tests.
package gitrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout is returned when a git command exceeds its deadline.
var ErrTimeout = errors.New("git command timed out")

// Result holds the outcome of a single git invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes git commands. The production implementation shells out;
// tests substitute a scripted fake.
type Runner interface {
	// Run executes git with the given args in dir, bounded by timeout.
	// A non-zero exit status is returned as an error alongside the Result.
	Run(ctx context.Context, dir string, timeout time.Duration, args ...string) (Result, error)
}

// ExecRunner runs git via os/exec.
type ExecRunner struct {
	// Env entries appended to the command environment, e.g. to disable
	// credential prompts. Nil inherits the process environment unchanged.
	Env []string
}

// NewExecRunner returns a runner that never falls back to interactive
// credential prompts; a missing credential fails the command instead of
// hanging the executor.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{
		Env: []string{
			"GIT_TERMINAL_PROMPT=0",
			"GIT_ASKPASS=true",
		},
	}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, dir string, timeout time.Duration, args ...string) (Result, error) {
	if len(args) == 0 {
		return Result{ExitCode: -1}, fmt.Errorf("git: no command specified")
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	if r.Env != nil {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		ExitCode: -1,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctx.Err() == context.DeadlineExceeded {
		return res, fmt.Errorf("git %s: %w after %s", args[0], ErrTimeout, timeout)
	}
	if err != nil {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = strings.TrimSpace(res.Stdout)
		}
		if msg == "" {
			msg = err.Error()
		}
		return res, fmt.Errorf("git %s failed: %w: %s", args[0], err, msg)
	}
	return res, nil
}

// Output runs the command and returns trimmed stdout.
func Output(ctx context.Context, r Runner, dir string, timeout time.Duration, args ...string) (string, error) {
	res, err := r.Run(ctx, dir, timeout, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// Succeeds runs the command and reports only whether it exited zero.
// Used for ref existence checks where exit status 1 is a normal answer.
func Succeeds(ctx context.Context, r Runner, dir string, timeout time.Duration, args ...string) bool {
	_, err := r.Run(ctx, dir, timeout, args...)
	return err == nil
}
