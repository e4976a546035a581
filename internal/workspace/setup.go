// Package workspace is the orchestration entry point of the isolation
// subsystem: it decides between a feature workspace and an ephemeral task
// workspace, persists per-task metadata, and answers where on disk a task
// should work.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"taskspace/internal/config"
	"taskspace/internal/feature"
	"taskspace/internal/repo"
)

// ScratchDirName mirrors the feature scratch directory for task workspaces.
const ScratchDirName = "_workspace"

var (
	// ErrTaskNotFound is returned when no workspace is associated with a
	// task id.
	ErrTaskNotFound = errors.New("task workspace not found")

	// ErrPrimaryRepoFailed is returned when the repository the task was
	// created for could not be provisioned inside a feature.
	ErrPrimaryRepoFailed = errors.New("primary repository could not be provisioned")
)

// Request is everything the calling agent supplies for workspace setup.
type Request struct {
	TaskID int64
	// GitURL is the primary repository; empty for pure conversational
	// tasks with no code requirement.
	GitURL string
	// BranchName is the SOURCE branch: what a new feature branch is based
	// on, or what a plain task clone checks out. It is never the feature
	// name.
	BranchName string
	// FeatureBranch, when set, is the target feature (and branch) name
	// and switches setup onto the feature path.
	FeatureBranch string
	Prompt        string
	Credentials   repo.Credentials
	// AdditionalRepos join the feature alongside the primary repository.
	AdditionalRepos []feature.RepoSpec
}

// Result tells the caller where to work. It is produced fresh on every
// call and never persisted.
type Result struct {
	Success            bool
	WorkspacePath      string
	ProjectPath        string
	FeatureName        string
	ErrorMessage       string
	IsFeatureWorkspace bool
}

func failure(err error) Result {
	return Result{Success: false, ErrorMessage: err.Error()}
}

// Setup orchestrates workspace creation for one task.
type Setup struct {
	cfg      *config.Config
	repos    *repo.Manager
	features *feature.Manager
	tasks    TaskStore
	logger   *log.Logger
}

// NewSetup wires the orchestrator.
func NewSetup(cfg *config.Config, repos *repo.Manager, features *feature.Manager, tasks TaskStore, logger *log.Logger) *Setup {
	return &Setup{
		cfg:      cfg,
		repos:    repos,
		features: features,
		tasks:    tasks,
		logger:   logger,
	}
}

// TaskDir returns tasks/task-{id}.
func (s *Setup) TaskDir(taskID int64) string {
	return filepath.Join(s.cfg.TasksDir(), TaskDirName(taskID))
}

// SetupWorkspace provisions the workspace for a task. With a feature
// branch it delegates to the feature path; without one it creates an
// ephemeral task directory and, when a git URL is present, a plain
// single-branch clone. Clone failure on the task path is a warning, not an
// error: tasks without a code requirement still proceed.
func (s *Setup) SetupWorkspace(ctx context.Context, req Request) Result {
	if req.FeatureBranch != "" {
		return s.setupFeatureWorkspace(ctx, req)
	}
	return s.setupTaskWorkspace(ctx, req)
}

func (s *Setup) setupFeatureWorkspace(ctx context.Context, req Request) Result {
	specs := make([]feature.RepoSpec, 0, 1+len(req.AdditionalRepos))
	if req.GitURL != "" {
		specs = append(specs, feature.RepoSpec{GitURL: req.GitURL})
	}
	specs = append(specs, req.AdditionalRepos...)

	meta, err := s.features.GetOrCreate(ctx, req.FeatureBranch, specs, req.TaskID, req.BranchName, req.Credentials)
	if err != nil {
		return failure(err)
	}

	res := Result{
		Success:            true,
		WorkspacePath:      s.features.Dir(meta.Name),
		ProjectPath:        s.features.Dir(meta.Name),
		FeatureName:        meta.Name,
		IsFeatureWorkspace: true,
	}
	if req.GitURL != "" {
		entry, ok := meta.FindRepository(req.GitURL)
		if !ok {
			// Secondary repositories may fail quietly; the primary may not.
			return failure(fmt.Errorf("%w: %s", ErrPrimaryRepoFailed, req.GitURL))
		}
		res.ProjectPath = entry.WorktreePath
	}
	return res
}

func (s *Setup) setupTaskWorkspace(ctx context.Context, req Request) Result {
	taskDir := s.TaskDir(req.TaskID)
	if err := os.MkdirAll(filepath.Join(taskDir, ScratchDirName), 0o755); err != nil {
		return failure(fmt.Errorf("failed to create task directory: %w", err))
	}

	meta := &TaskMetadata{
		TaskID:     req.TaskID,
		CreatedAt:  time.Now().UTC(),
		Status:     StatusActive,
		Prompt:     req.Prompt,
		GitURL:     req.GitURL,
		BranchName: req.BranchName,
	}
	if err := s.tasks.Save(meta); err != nil {
		return failure(err)
	}

	res := Result{
		Success:       true,
		WorkspacePath: taskDir,
		ProjectPath:   taskDir,
	}

	if req.GitURL != "" {
		repoName, err := repo.RepoName(req.GitURL)
		if err != nil {
			return failure(err)
		}
		dest := filepath.Join(taskDir, repoName)
		if _, statErr := os.Stat(dest); statErr == nil {
			res.ProjectPath = dest
		} else if err := s.repos.CloneBranch(ctx, req.GitURL, dest, req.BranchName, req.Credentials); err != nil {
			s.logger.Warn("task clone failed, continuing without checkout", "task", req.TaskID, "url", req.GitURL, "err", err)
		} else {
			res.ProjectPath = dest
		}
	}

	s.logger.Info("task workspace ready", "task", req.TaskID, "path", res.ProjectPath)
	return res
}

// ConvertTaskToFeature promotes an ephemeral task workspace into a feature.
// The task's recorded source branch becomes the new feature's base, and the
// task metadata is rewritten in place to point at the feature. Used when an
// agent decides on a branch name mid-task.
func (s *Setup) ConvertTaskToFeature(ctx context.Context, taskID int64, featureName string, creds repo.Credentials) Result {
	meta, err := s.tasks.Load(taskID)
	if err != nil {
		return failure(fmt.Errorf("%w: %d", ErrTaskNotFound, taskID))
	}

	res := s.setupFeatureWorkspace(ctx, Request{
		TaskID:        taskID,
		GitURL:        meta.GitURL,
		BranchName:    meta.BranchName,
		FeatureBranch: featureName,
		Prompt:        meta.Prompt,
		Credentials:   creds,
	})
	if !res.Success {
		return res
	}

	meta.FeatureName = featureName
	meta.BranchName = featureName
	meta.Status = StatusConverted
	if err := s.tasks.Save(meta); err != nil {
		return failure(err)
	}
	s.logger.Info("task converted to feature", "task", taskID, "feature", featureName)
	return res
}

// CleanupTaskWorkspace removes one task directory. Missing directories are
// an idempotent no-op.
func (s *Setup) CleanupTaskWorkspace(taskID int64) error {
	taskDir := s.TaskDir(taskID)
	if _, err := os.Stat(taskDir); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(taskDir); err != nil {
		return fmt.Errorf("failed to remove task workspace: %w", err)
	}
	s.logger.Info("task workspace removed", "task", taskID)
	return nil
}

// CleanupOldTaskWorkspaces deletes task workspaces created before maxAge
// ago and returns the removed task ids.
func (s *Setup) CleanupOldTaskWorkspaces(maxAge time.Duration) ([]int64, error) {
	ids, err := s.tasks.IDs()
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().UTC().Add(-maxAge)
	var removed []int64
	for _, id := range ids {
		meta, err := s.tasks.Load(id)
		if err != nil {
			s.logger.Warn("unreadable task metadata", "task", id, "err", err)
			continue
		}
		if !meta.CreatedAt.Before(cutoff) {
			continue
		}
		if err := s.CleanupTaskWorkspace(id); err != nil {
			s.logger.Warn("failed to clean up task workspace", "task", id, "err", err)
			continue
		}
		removed = append(removed, id)
	}
	return removed, nil
}

// Info locates the workspace for a task: ephemeral task workspaces first,
// then every feature's task list.
type Info struct {
	TaskID        int64
	WorkspacePath string
	FeatureName   string
	IsFeature     bool
	Metadata      *TaskMetadata
}

// GetWorkspaceInfo returns where a task's workspace lives.
func (s *Setup) GetWorkspaceInfo(taskID int64) (Info, error) {
	if s.tasks.Exists(taskID) {
		meta, err := s.tasks.Load(taskID)
		if err != nil {
			return Info{}, err
		}
		return Info{
			TaskID:        taskID,
			WorkspacePath: s.TaskDir(taskID),
			FeatureName:   meta.FeatureName,
			Metadata:      meta,
		}, nil
	}

	if meta, ok := s.features.FindByTask(taskID); ok {
		return Info{
			TaskID:        taskID,
			WorkspacePath: s.features.Dir(meta.Name),
			FeatureName:   meta.Name,
			IsFeature:     true,
		}, nil
	}
	return Info{}, fmt.Errorf("%w: %d", ErrTaskNotFound, taskID)
}
