package feature

import (
	"context"
	"os"
	"time"
)

// ReconcileResult reports how metadata was brought back in line with the
// filesystem.
type ReconcileResult struct {
	// DroppedRepos maps feature name to repository names whose worktree
	// directories vanished out from under the metadata.
	DroppedRepos map[string][]string
	// OrphanedDirs are feature directories with no metadata sidecar.
	OrphanedDirs []string
}

// Reconcile walks every live feature and drops metadata entries whose
// worktree directories no longer exist, pruning stale references from the
// affected bare repositories. Directories without a sidecar are reported
// but left alone; deleting them is an operator decision.
func (m *Manager) Reconcile(ctx context.Context) (ReconcileResult, error) {
	result := ReconcileResult{DroppedRepos: map[string][]string{}}

	entries, err := os.ReadDir(m.cfg.FeaturesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return result, err
	}
	for _, e := range entries {
		if e.IsDir() && !m.store.Exists(e.Name()) {
			result.OrphanedDirs = append(result.OrphanedDirs, m.Dir(e.Name()))
		}
	}

	metas, err := m.List()
	if err != nil {
		return result, err
	}
	for _, meta := range metas {
		kept := meta.Repositories[:0]
		var dropped []string
		for _, r := range meta.Repositories {
			if _, err := os.Stat(r.WorktreePath); err == nil {
				kept = append(kept, r)
				continue
			}
			dropped = append(dropped, r.Name)
			if err := m.trees.Prune(ctx, r.BareRepoPath); err != nil {
				m.logger.Warn("worktree prune failed during reconcile", "bare", r.BareRepoPath, "err", err)
			}
		}
		if len(dropped) == 0 {
			continue
		}
		meta.Repositories = kept
		meta.LastAccessed = time.Now().UTC()
		if err := m.store.Save(meta); err != nil {
			m.logger.Warn("failed to save reconciled metadata", "name", meta.Name, "err", err)
			continue
		}
		result.DroppedRepos[meta.Name] = dropped
		m.logger.Info("reconciled feature", "name", meta.Name, "dropped", dropped)
	}
	return result, nil
}
