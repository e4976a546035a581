package feature

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MetadataFileName is the sidecar carried inside every feature directory.
const MetadataFileName = ".feature.json"

// Repository records one provisioned checkout inside a feature.
type Repository struct {
	Name         string `json:"name"`
	GitURL       string `json:"git_url"`
	Branch       string `json:"branch"`
	WorktreePath string `json:"worktree_path"`
	BareRepoPath string `json:"bare_repo_path"`
	SourceBranch string `json:"source_branch"`
}

// Metadata is the persisted state of a feature. It is the source of truth
// for lifecycle decisions; every mutating operation keeps it consistent
// with what is actually on disk.
type Metadata struct {
	Name          string       `json:"name"`
	CreatedAt     time.Time    `json:"created_at"`
	CreatedByTask int64        `json:"created_by_task"`
	Repositories  []Repository `json:"repositories"`
	Tasks         []int64      `json:"tasks"`
	LastAccessed  time.Time    `json:"last_accessed"`
}

// HasTask reports whether taskID is already associated.
func (m *Metadata) HasTask(taskID int64) bool {
	for _, id := range m.Tasks {
		if id == taskID {
			return true
		}
	}
	return false
}

// FindRepository looks up a provisioned repository by URL.
func (m *Metadata) FindRepository(gitURL string) (Repository, bool) {
	for _, r := range m.Repositories {
		if r.GitURL == gitURL {
			return r, true
		}
	}
	return Repository{}, false
}

// Store persists feature metadata. The default implementation writes the
// JSON sidecar; it is an interface so the sidecar can later be swapped for
// an embedded store without touching Manager logic.
type Store interface {
	Load(name string) (*Metadata, error)
	Save(meta *Metadata) error
	Exists(name string) bool
	Delete(name string) error
	Names() ([]string, error)
}

// fsStore keeps one sidecar file per feature directory.
type fsStore struct {
	featuresDir string
}

// NewStore returns the sidecar-file Store rooted at featuresDir.
func NewStore(featuresDir string) Store {
	return &fsStore{featuresDir: featuresDir}
}

func (s *fsStore) path(name string) string {
	return filepath.Join(s.featuresDir, name, MetadataFileName)
}

func (s *fsStore) Load(name string) (*Metadata, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read feature metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path(name), err)
	}
	return &meta, nil
}

func (s *fsStore) Save(meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal feature metadata: %w", err)
	}
	path := s.path(meta.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create feature directory: %w", err)
	}
	// Write-then-rename keeps a crashed writer from leaving a truncated
	// sidecar that Exists() would treat as a live feature.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write feature metadata: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace feature metadata: %w", err)
	}
	return nil
}

func (s *fsStore) Exists(name string) bool {
	_, err := os.Stat(s.path(name))
	return err == nil
}

func (s *fsStore) Delete(name string) error {
	err := os.Remove(s.path(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete feature metadata: %w", err)
	}
	return nil
}

func (s *fsStore) Names() ([]string, error) {
	entries, err := os.ReadDir(s.featuresDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read features directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && s.Exists(e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
