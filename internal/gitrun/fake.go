package gitrun

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Call records one invocation seen by a FakeRunner.
type Call struct {
	Dir  string
	Args []string
}

// Rule maps a command prefix to a scripted outcome.
type Rule struct {
	// Prefix is matched against the space-joined args ("worktree add", "clone --bare", ...).
	Prefix string
	Result Result
	Err    error
	// Fn, when set, computes the outcome instead of Result/Err.
	Fn func(dir string, args []string) (Result, error)
}

// FakeRunner is a scripted Runner for tests. Rules are matched in order;
// an unmatched command succeeds with empty output.
type FakeRunner struct {
	mu    sync.Mutex
	Rules []Rule
	Calls []Call
}

// On appends a rule returning the given stdout for commands matching prefix.
func (f *FakeRunner) On(prefix, stdout string) *FakeRunner {
	f.Rules = append(f.Rules, Rule{Prefix: prefix, Result: Result{Stdout: stdout}})
	return f
}

// Fail appends a rule returning err for commands matching prefix.
func (f *FakeRunner) Fail(prefix string, err error) *FakeRunner {
	f.Rules = append(f.Rules, Rule{Prefix: prefix, Result: Result{ExitCode: 1}, Err: err})
	return f
}

// Handle appends a rule with a callback for commands matching prefix.
func (f *FakeRunner) Handle(prefix string, fn func(dir string, args []string) (Result, error)) *FakeRunner {
	f.Rules = append(f.Rules, Rule{Prefix: prefix, Fn: fn})
	return f
}

// Run implements Runner.
func (f *FakeRunner) Run(_ context.Context, dir string, _ time.Duration, args ...string) (Result, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, Call{Dir: dir, Args: append([]string(nil), args...)})
	f.mu.Unlock()

	joined := strings.Join(args, " ")
	for _, rule := range f.Rules {
		if strings.HasPrefix(joined, rule.Prefix) {
			if rule.Fn != nil {
				return rule.Fn(dir, args)
			}
			return rule.Result, rule.Err
		}
	}
	return Result{}, nil
}

// CommandRan reports whether any recorded call starts with prefix.
func (f *FakeRunner) CommandRan(prefix string) bool {
	return f.CountRan(prefix) > 0
}

// CountRan returns how many recorded calls start with prefix.
func (f *FakeRunner) CountRan(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if strings.HasPrefix(strings.Join(c.Args, " "), prefix) {
			n++
		}
	}
	return n
}
