// Package worktree creates and removes isolated working directories linked
// to a shared bare repository.
package worktree

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"taskspace/internal/config"
	"taskspace/internal/gitrun"
)

// ErrBranchMissing is returned when the branch does not exist and creation
// was not allowed.
var ErrBranchMissing = errors.New("branch does not exist and creation is disabled")

// RefResolver answers branch and base-ref questions against a bare
// repository. *repo.Manager satisfies it.
type RefResolver interface {
	BranchExists(ctx context.Context, barePath, branch string) bool
	ResolveBaseRef(ctx context.Context, barePath, base string) (string, error)
}

// Manager runs worktree operations against bare repositories.
type Manager struct {
	cfg    *config.Config
	runner gitrun.Runner
	refs   RefResolver
	logger *log.Logger
}

// NewManager wires a Manager.
func NewManager(cfg *config.Config, runner gitrun.Runner, refs RefResolver, logger *log.Logger) *Manager {
	return &Manager{cfg: cfg, runner: runner, refs: refs, logger: logger}
}

// Create adds a worktree at path checked out on branch. Idempotent: an
// existing path is success without inspection, because (bare, branch) maps
// to exactly one path and that path is only ever created by us. When the
// branch does not exist it is created from baseBranch via the usual
// fallback chain, unless createBranch is false.
func (m *Manager) Create(ctx context.Context, barePath, path, branch string, createBranch bool, baseBranch string) error {
	if _, err := os.Stat(path); err == nil {
		m.logger.Debug("worktree already exists, reusing", "path", path)
		return nil
	}

	if m.refs.BranchExists(ctx, barePath, branch) {
		if _, err := m.runner.Run(ctx, barePath, m.cfg.WorktreeTimeout(),
			"worktree", "add", path, branch); err != nil {
			return fmt.Errorf("failed to add worktree for %s: %w", branch, err)
		}
		return nil
	}

	if !createBranch {
		return fmt.Errorf("%w: %s", ErrBranchMissing, branch)
	}

	baseRef, err := m.refs.ResolveBaseRef(ctx, barePath, baseBranch)
	if err != nil {
		return err
	}
	m.logger.Info("creating worktree with new branch", "branch", branch, "base", baseRef, "path", path)
	if _, err := m.runner.Run(ctx, barePath, m.cfg.WorktreeTimeout(),
		"worktree", "add", "-b", branch, path, baseRef); err != nil {
		return fmt.Errorf("failed to add worktree with new branch %s: %w", branch, err)
	}
	return nil
}

// Remove detaches a worktree. The native removal is tried first; when git's
// bookkeeping is inconsistent the directory is force-deleted and stale
// references pruned, so cleanup always converges.
func (m *Manager) Remove(ctx context.Context, barePath, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)

	if _, err := m.runner.Run(ctx, barePath, m.cfg.RemoveTimeout(), args...); err == nil {
		return nil
	} else {
		m.logger.Warn("git worktree remove failed, deleting directory", "path", path, "err", err)
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to delete worktree directory: %w", err)
	}
	if err := m.Prune(ctx, barePath); err != nil {
		m.logger.Warn("worktree prune failed", "bare", barePath, "err", err)
	}
	return nil
}

// Prune drops stale worktree bookkeeping from a bare repository.
func (m *Manager) Prune(ctx context.Context, barePath string) error {
	_, err := m.runner.Run(ctx, barePath, m.cfg.RemoveTimeout(), "worktree", "prune")
	return err
}

// Branch returns the branch checked out at a worktree path.
func (m *Manager) Branch(ctx context.Context, path string) (string, error) {
	return gitrun.Output(ctx, m.runner, path, m.cfg.QueryTimeout(),
		"rev-parse", "--abbrev-ref", "HEAD")
}

// Checkout switches a worktree to branch.
func (m *Manager) Checkout(ctx context.Context, path, branch string) error {
	if _, err := m.runner.Run(ctx, path, m.cfg.QueryTimeout(),
		"checkout", branch); err != nil {
		return fmt.Errorf("failed to checkout %s: %w", branch, err)
	}
	return nil
}

// Pull updates a worktree's branch from origin. Failure is non-fatal for
// callers: a branch created moments ago has no upstream to pull from yet.
func (m *Manager) Pull(ctx context.Context, path, branch string) error {
	_, err := m.runner.Run(ctx, path, m.cfg.FetchTimeout(),
		"pull", "origin", branch)
	return err
}
