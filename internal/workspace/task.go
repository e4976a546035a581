package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// TaskMetadataFileName is the sidecar inside every task directory.
const TaskMetadataFileName = ".task.json"

// Task statuses.
const (
	StatusActive    = "active"
	StatusConverted = "converted"
)

// TaskMetadata is the persisted state of an ephemeral task workspace.
type TaskMetadata struct {
	TaskID      int64     `json:"task_id"`
	CreatedAt   time.Time `json:"created_at"`
	FeatureName string    `json:"feature_name,omitempty"`
	Status      string    `json:"status"`
	Prompt      string    `json:"prompt"`
	GitURL      string    `json:"git_url,omitempty"`
	BranchName  string    `json:"branch_name,omitempty"`
}

// TaskStore persists task metadata, mirroring feature.Store so the sidecar
// files can later be replaced without touching setup logic.
type TaskStore interface {
	Load(taskID int64) (*TaskMetadata, error)
	Save(meta *TaskMetadata) error
	Exists(taskID int64) bool
	Delete(taskID int64) error
	IDs() ([]int64, error)
}

type fsTaskStore struct {
	tasksDir string
}

// NewTaskStore returns the sidecar-file TaskStore rooted at tasksDir.
func NewTaskStore(tasksDir string) TaskStore {
	return &fsTaskStore{tasksDir: tasksDir}
}

// TaskDirName returns "task-{id}".
func TaskDirName(taskID int64) string {
	return fmt.Sprintf("task-%d", taskID)
}

func (s *fsTaskStore) path(taskID int64) string {
	return filepath.Join(s.tasksDir, TaskDirName(taskID), TaskMetadataFileName)
}

func (s *fsTaskStore) Load(taskID int64) (*TaskMetadata, error) {
	data, err := os.ReadFile(s.path(taskID))
	if err != nil {
		return nil, fmt.Errorf("failed to read task metadata: %w", err)
	}
	var meta TaskMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path(taskID), err)
	}
	return &meta, nil
}

func (s *fsTaskStore) Save(meta *TaskMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal task metadata: %w", err)
	}
	path := s.path(meta.TaskID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create task directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write task metadata: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace task metadata: %w", err)
	}
	return nil
}

func (s *fsTaskStore) Exists(taskID int64) bool {
	_, err := os.Stat(s.path(taskID))
	return err == nil
}

func (s *fsTaskStore) Delete(taskID int64) error {
	err := os.Remove(s.path(taskID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete task metadata: %w", err)
	}
	return nil
}

func (s *fsTaskStore) IDs() ([]int64, error) {
	entries, err := os.ReadDir(s.tasksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read tasks directory: %w", err)
	}
	var ids []int64
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "task-") {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(e.Name(), "task-"), 10, 64)
		if err != nil {
			continue
		}
		if s.Exists(id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
