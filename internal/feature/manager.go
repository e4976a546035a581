// Package feature manages named, branch-scoped units of work that may span
// multiple repositories. Every repository in a feature is checked out on
// the identical branch name, in a worktree under the feature directory.
package feature

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"taskspace/internal/config"
	"taskspace/internal/lockfile"
	"taskspace/internal/repo"
	"taskspace/internal/worktree"
)

// ScratchDirName is the agent scratch subdirectory inside every feature.
const ScratchDirName = "_workspace"

var (
	// ErrFeatureNotFound is returned when a named feature has no directory
	// or no metadata sidecar.
	ErrFeatureNotFound = errors.New("feature not found")

	// ErrNoRepositories is returned when feature creation provisions zero
	// repositories out of a non-empty request.
	ErrNoRepositories = errors.New("no repositories could be provisioned")
)

// RepoSpec is one requested repository for a feature. Name is optional and
// defaults to the repository name from the URL.
type RepoSpec struct {
	GitURL string
	Name   string
}

// Manager provisions, reuses, and collects features.
type Manager struct {
	cfg    *config.Config
	repos  *repo.Manager
	trees  *worktree.Manager
	store  Store
	locker *lockfile.Locker
	logger *log.Logger
}

// NewManager wires a Manager.
func NewManager(cfg *config.Config, repos *repo.Manager, trees *worktree.Manager, store Store, locker *lockfile.Locker, logger *log.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		repos:  repos,
		trees:  trees,
		store:  store,
		locker: locker,
		logger: logger,
	}
}

// Dir returns the feature's directory.
func (m *Manager) Dir(name string) string {
	return filepath.Join(m.cfg.FeaturesDir(), name)
}

// ScratchDir returns the agent scratch directory inside a feature.
func (m *Manager) ScratchDir(name string) string {
	return filepath.Join(m.Dir(name), ScratchDirName)
}

// Exists reports whether a feature is live: both its directory and its
// metadata sidecar must be present. A directory without a sidecar is debris
// from a failed creation, not a feature.
func (m *Manager) Exists(name string) bool {
	if _, err := os.Stat(m.Dir(name)); err != nil {
		return false
	}
	return m.store.Exists(name)
}

// Get loads a feature's metadata.
func (m *Manager) Get(name string) (*Metadata, error) {
	if !m.Exists(name) {
		return nil, fmt.Errorf("%w: %s", ErrFeatureNotFound, name)
	}
	return m.store.Load(name)
}

// validateName guards both git and the filesystem. Slashes are legal in
// branch names but would nest the feature directory, so they are rejected
// for feature names.
func validateName(name string) error {
	if err := repo.ValidateBranchName(name); err != nil {
		return err
	}
	if strings.Contains(name, "/") {
		return fmt.Errorf("%w: feature name cannot contain '/'", repo.ErrInvalidBranchName)
	}
	return nil
}

// Create provisions a feature named name, with one worktree per requested
// repository, all on branch name, based on sourceBranch. Creation is
// idempotent: an existing feature only gets its access time refreshed and
// taskID appended.
//
// A failing repository is logged and skipped rather than aborting the
// feature; whichever repositories succeeded are recorded and usable.
func (m *Manager) Create(ctx context.Context, name string, specs []RepoSpec, taskID int64, sourceBranch string, creds repo.Credentials) (*Metadata, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	lock, err := m.locker.Acquire(ctx, "feature:"+name)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	if m.Exists(name) {
		return m.touch(name, taskID)
	}

	if err := os.MkdirAll(m.ScratchDir(name), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create feature directory: %w", err)
	}

	now := time.Now().UTC()
	meta := &Metadata{
		Name:          name,
		CreatedAt:     now,
		CreatedByTask: taskID,
		Tasks:         []int64{taskID},
		LastAccessed:  now,
	}

	for _, spec := range specs {
		entry, err := m.provisionRepository(ctx, name, spec, sourceBranch, creds)
		if err != nil {
			m.logger.Error("skipping repository", "feature", name, "url", spec.GitURL, "err", err)
			continue
		}
		meta.Repositories = append(meta.Repositories, entry)
	}

	if len(specs) > 0 && len(meta.Repositories) == 0 {
		// Nothing provisioned: remove the empty shell so Exists stays false.
		_ = os.RemoveAll(m.Dir(name))
		return nil, fmt.Errorf("%w for feature %s", ErrNoRepositories, name)
	}

	if err := m.store.Save(meta); err != nil {
		return nil, err
	}
	m.logger.Info("feature created", "name", name, "repos", len(meta.Repositories), "task", taskID)
	return meta, nil
}

// GetOrCreate reuses an existing feature, then provisions any requested
// repositories its metadata does not know yet. Already-provisioned
// worktrees are never touched.
func (m *Manager) GetOrCreate(ctx context.Context, name string, specs []RepoSpec, taskID int64, sourceBranch string, creds repo.Credentials) (*Metadata, error) {
	meta, err := m.Create(ctx, name, specs, taskID, sourceBranch, creds)
	if err != nil {
		return nil, err
	}

	var missing []RepoSpec
	for _, spec := range specs {
		if _, ok := meta.FindRepository(spec.GitURL); !ok {
			missing = append(missing, spec)
		}
	}
	if len(missing) == 0 {
		return meta, nil
	}

	lock, err := m.locker.Acquire(ctx, "feature:"+name)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	// Reload under the lock; another task may have added repositories.
	meta, err = m.store.Load(name)
	if err != nil {
		return nil, err
	}
	changed := false
	for _, spec := range missing {
		if _, ok := meta.FindRepository(spec.GitURL); ok {
			continue
		}
		entry, err := m.provisionRepository(ctx, name, spec, sourceBranch, creds)
		if err != nil {
			m.logger.Error("skipping additional repository", "feature", name, "url", spec.GitURL, "err", err)
			continue
		}
		meta.Repositories = append(meta.Repositories, entry)
		changed = true
	}
	if changed {
		meta.LastAccessed = time.Now().UTC()
		if err := m.store.Save(meta); err != nil {
			return nil, err
		}
	}
	return meta, nil
}

// provisionRepository ensures the bare cache and adds the feature's
// worktree for one repository.
func (m *Manager) provisionRepository(ctx context.Context, name string, spec RepoSpec, sourceBranch string, creds repo.Credentials) (Repository, error) {
	repoName := spec.Name
	if repoName == "" {
		var err error
		repoName, err = repo.RepoName(spec.GitURL)
		if err != nil {
			return Repository{}, err
		}
	}

	barePath, err := m.repos.EnsureBareRepo(ctx, spec.GitURL, creds)
	if err != nil {
		return Repository{}, err
	}

	wtPath := filepath.Join(m.Dir(name), repoName)
	if err := m.trees.Create(ctx, barePath, wtPath, name, true, sourceBranch); err != nil {
		return Repository{}, err
	}

	return Repository{
		Name:         repoName,
		GitURL:       spec.GitURL,
		Branch:       name,
		WorktreePath: wtPath,
		BareRepoPath: barePath,
		SourceBranch: sourceBranch,
	}, nil
}

// touch refreshes access time and associates taskID.
func (m *Manager) touch(name string, taskID int64) (*Metadata, error) {
	meta, err := m.store.Load(name)
	if err != nil {
		return nil, err
	}
	meta.LastAccessed = time.Now().UTC()
	if !meta.HasTask(taskID) {
		meta.Tasks = append(meta.Tasks, taskID)
	}
	if err := m.store.Save(meta); err != nil {
		return nil, err
	}
	m.logger.Debug("feature reused", "name", name, "task", taskID)
	return meta, nil
}

// Touch records access by taskID without provisioning anything.
func (m *Manager) Touch(ctx context.Context, name string, taskID int64) error {
	lock, err := m.locker.Acquire(ctx, "feature:"+name)
	if err != nil {
		return err
	}
	defer lock.Release()
	if !m.Exists(name) {
		return fmt.Errorf("%w: %s", ErrFeatureNotFound, name)
	}
	_, err = m.touch(name, taskID)
	return err
}

// Delete removes a feature. Worktrees are removed through the worktree
// manager before the directory tree goes, so the shared bare repositories
// are not left with orphaned worktree references. force bypasses git's
// uncommitted-change protection.
func (m *Manager) Delete(ctx context.Context, name string, force bool) error {
	lock, err := m.locker.Acquire(ctx, "feature:"+name)
	if err != nil {
		return err
	}
	defer lock.Release()

	if !m.Exists(name) {
		return fmt.Errorf("%w: %s", ErrFeatureNotFound, name)
	}
	meta, err := m.store.Load(name)
	if err != nil {
		return err
	}

	for _, r := range meta.Repositories {
		if err := m.trees.Remove(ctx, r.BareRepoPath, r.WorktreePath, force); err != nil {
			m.logger.Warn("failed to remove worktree", "feature", name, "repo", r.Name, "err", err)
		}
	}

	if err := os.RemoveAll(m.Dir(name)); err != nil {
		return fmt.Errorf("failed to delete feature directory: %w", err)
	}
	m.logger.Info("feature deleted", "name", name)
	return nil
}

// List returns metadata for every live feature.
func (m *Manager) List() ([]*Metadata, error) {
	names, err := m.store.Names()
	if err != nil {
		return nil, err
	}
	var metas []*Metadata
	for _, name := range names {
		meta, err := m.store.Load(name)
		if err != nil {
			m.logger.Warn("unreadable feature metadata", "name", name, "err", err)
			continue
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

// FindByTask returns the feature associated with taskID, if any. Linear in
// the number of live features, which stays small relative to tasks.
func (m *Manager) FindByTask(taskID int64) (*Metadata, bool) {
	metas, err := m.List()
	if err != nil {
		return nil, false
	}
	for _, meta := range metas {
		if meta.HasTask(taskID) {
			return meta, true
		}
	}
	return nil, false
}

// CleanupOld force-deletes features whose last access predates maxAge.
// Returns the deleted names.
func (m *Manager) CleanupOld(ctx context.Context, maxAge time.Duration) ([]string, error) {
	metas, err := m.List()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-maxAge)
	var deleted []string
	for _, meta := range metas {
		if !meta.LastAccessed.Before(cutoff) {
			continue
		}
		if err := m.Delete(ctx, meta.Name, true); err != nil {
			m.logger.Warn("failed to clean up feature", "name", meta.Name, "err", err)
			continue
		}
		m.logger.Info("cleaned up stale feature", "name", meta.Name, "last_accessed", meta.LastAccessed)
		deleted = append(deleted, meta.Name)
	}
	return deleted, nil
}
