// Package logging configures the shared structured logger.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Setup builds the root logger. Each manager derives its own scoped logger
// via For().
func Setup(verbose bool, w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: true,
	})
}

// For returns a logger scoped to one subsystem (repo, worktree, feature, workspace).
func For(logger *log.Logger, scope string) *log.Logger {
	if logger == nil {
		logger = Setup(false, nil)
	}
	return logger.WithPrefix(scope)
}

// Discard returns a logger that writes nowhere; used by tests.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
