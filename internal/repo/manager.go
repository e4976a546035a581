// Package repo maintains the shared cache of bare git repositories.
// A bare repository is cloned once per remote URL and fetched on every
// subsequent reference; many worktrees share its object store.
package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"taskspace/internal/config"
	"taskspace/internal/gitrun"
	"taskspace/internal/lockfile"
)

// ErrNoBaseRef is returned when no base reference in the fallback chain
// resolves.
var ErrNoBaseRef = errors.New("no base reference found")

// Manager owns the bare repository cache under {root}/repos.
type Manager struct {
	cfg          *config.Config
	runner       gitrun.Runner
	locker       *lockfile.Locker
	decrypter    Decrypter
	defaultLogin string
	logger       *log.Logger
}

// NewManager wires a Manager. A nil decrypter means tokens are plaintext.
func NewManager(cfg *config.Config, runner gitrun.Runner, locker *lockfile.Locker, dec Decrypter, logger *log.Logger) *Manager {
	if dec == nil {
		dec = PassthroughDecrypter{}
	}
	return &Manager{
		cfg:          cfg,
		runner:       runner,
		locker:       locker,
		decrypter:    dec,
		defaultLogin: cfg.DefaultLogin,
		logger:       logger,
	}
}

// BarePathFor returns the cache path for a remote URL without touching disk.
func (m *Manager) BarePathFor(gitURL string) (string, error) {
	return BarePath(m.cfg.ReposDir(), gitURL)
}

// EnsureBareRepo guarantees a usable bare repository for gitURL and returns
// its path. An existing cache is refreshed with a pruning fetch; fetch
// failure is non-fatal because a stale cache still serves worktrees. A
// missing cache is cloned, and clone failure is fatal.
func (m *Manager) EnsureBareRepo(ctx context.Context, gitURL string, creds Credentials) (string, error) {
	barePath, err := m.BarePathFor(gitURL)
	if err != nil {
		return "", err
	}

	lock, err := m.locker.Acquire(ctx, barePath)
	if err != nil {
		return barePath, err
	}
	defer lock.Release()

	if _, err := os.Stat(barePath); err == nil {
		if err := m.fetch(ctx, barePath); err != nil {
			m.logger.Warn("fetch failed, using cached objects", "url", gitURL, "err", err)
		}
		return barePath, nil
	}

	if err := m.clone(ctx, gitURL, barePath, creds); err != nil {
		return barePath, err
	}
	return barePath, nil
}

// fetch refreshes all refs in a bare repository, pruning deleted ones.
func (m *Manager) fetch(ctx context.Context, barePath string) error {
	_, err := m.runner.Run(ctx, barePath, m.cfg.FetchTimeout(),
		"fetch", "--all", "--prune")
	return err
}

// clone creates the bare cache. The clone lands in a staging sibling and is
// renamed into place on success, so an interrupted clone never leaves a
// half-populated cache path behind.
func (m *Manager) clone(ctx context.Context, gitURL, barePath string, creds Credentials) error {
	authURL, err := m.AuthenticatedURL(gitURL, creds)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(barePath), 0o755); err != nil {
		return fmt.Errorf("failed to create repo cache directory: %w", err)
	}

	staging := barePath + ".staging-" + uuid.NewString()[:8]
	defer os.RemoveAll(staging)

	m.logger.Info("cloning bare repository", "url", Redact(authURL), "path", barePath)
	if _, err := m.runner.Run(ctx, "", m.cfg.CloneTimeout(),
		"clone", "--bare", authURL, staging); err != nil {
		return fmt.Errorf("failed to clone %s: %w", gitURL, err)
	}

	if err := os.Rename(staging, barePath); err != nil {
		return fmt.Errorf("failed to move clone into place: %w", err)
	}
	return nil
}

// BranchExists checks local heads first, then remote-tracking refs.
func (m *Manager) BranchExists(ctx context.Context, barePath, branch string) bool {
	if gitrun.Succeeds(ctx, m.runner, barePath, m.cfg.QueryTimeout(),
		"show-ref", "--verify", "--quiet", "refs/heads/"+branch) {
		return true
	}
	return gitrun.Succeeds(ctx, m.runner, barePath, m.cfg.QueryTimeout(),
		"show-ref", "--verify", "--quiet", "refs/remotes/origin/"+branch)
}

// ResolveBaseRef resolves base to a concrete ref using the fallback chain:
// base locally, base remotely, then main and master each locally and
// remotely. The silent substitution of main/master for an absent requested
// base is long-standing behavior that callers depend on.
func (m *Manager) ResolveBaseRef(ctx context.Context, barePath, base string) (string, error) {
	var candidates []string
	add := func(name string) {
		candidates = append(candidates,
			"refs/heads/"+name,
			"refs/remotes/origin/"+name,
		)
	}
	if base != "" {
		add(base)
	}
	if base != "main" {
		add("main")
	}
	if base != "master" {
		add("master")
	}

	for _, ref := range candidates {
		if gitrun.Succeeds(ctx, m.runner, barePath, m.cfg.QueryTimeout(),
			"show-ref", "--verify", "--quiet", ref) {
			if base != "" && ref != "refs/heads/"+base && ref != "refs/remotes/origin/"+base {
				m.logger.Warn("base branch not found, falling back", "requested", base, "using", ref)
			}
			return ref, nil
		}
	}
	return "", fmt.Errorf("%w: tried %q then main/master in %s", ErrNoBaseRef, base, barePath)
}

// CreateBranch creates branch from the resolved base ref. Creating a branch
// that already exists is a no-op.
func (m *Manager) CreateBranch(ctx context.Context, barePath, branch, base string) error {
	if m.BranchExists(ctx, barePath, branch) {
		return nil
	}
	ref, err := m.ResolveBaseRef(ctx, barePath, base)
	if err != nil {
		return err
	}
	if _, err := m.runner.Run(ctx, barePath, m.cfg.QueryTimeout(),
		"branch", branch, ref); err != nil {
		return fmt.Errorf("failed to create branch %s from %s: %w", branch, ref, err)
	}
	return nil
}

// CloneBranch performs a traditional working clone of a single branch into
// dest. Used for ephemeral task workspaces that do not go through the bare
// cache.
func (m *Manager) CloneBranch(ctx context.Context, gitURL, dest, branch string, creds Credentials) error {
	authURL, err := m.AuthenticatedURL(gitURL, creds)
	if err != nil {
		return err
	}
	args := []string{"clone"}
	if branch != "" {
		args = append(args, "--branch", branch, "--single-branch")
	}
	args = append(args, authURL, dest)
	if _, err := m.runner.Run(ctx, "", m.cfg.CloneTimeout(), args...); err != nil {
		return fmt.Errorf("failed to clone %s: %w", gitURL, err)
	}
	return nil
}

// DeleteRepo removes a bare repository from the cache. Returns false when
// the path did not exist; that is an idempotent no-op, not an error.
func (m *Manager) DeleteRepo(barePath string) (bool, error) {
	if !strings.HasPrefix(barePath, m.cfg.ReposDir()+string(filepath.Separator)) {
		return false, fmt.Errorf("refusing to delete path outside repo cache: %s", barePath)
	}
	if _, err := os.Stat(barePath); os.IsNotExist(err) {
		return false, nil
	}
	if err := os.RemoveAll(barePath); err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", barePath, err)
	}
	return true, nil
}
