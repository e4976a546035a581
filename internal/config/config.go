// Package config loads the taskspace configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

// Default subprocess timeouts. Clone is the slowest operation by far; the
// short query timeouts keep a wedged git from stalling the executor.
const (
	DefaultCloneTimeout    = 600 * time.Second
	DefaultFetchTimeout    = 300 * time.Second
	DefaultWorktreeTimeout = 120 * time.Second
	DefaultRemoveTimeout   = 60 * time.Second
	DefaultQueryTimeout    = 30 * time.Second
)

// Config holds every tunable of the workspace subsystem.
type Config struct {
	// RootDir is the base of the filesystem contract:
	// {root}/{repos,features,tasks,shared}.
	RootDir string `yaml:"root_dir"`

	// DefaultLogin is the username injected into authenticated HTTP(S)
	// clone URLs when the caller does not supply one.
	DefaultLogin string `yaml:"default_login"`

	// FeatureMaxAgeDays and TaskMaxAgeHours bound age-based cleanup.
	FeatureMaxAgeDays int `yaml:"feature_max_age_days"`
	TaskMaxAgeHours   int `yaml:"task_max_age_hours"`

	Timeouts Timeouts `yaml:"timeouts"`

	Verbose bool `yaml:"verbose"`
}

// Timeouts are per-operation subprocess deadlines, in seconds. Zero means
// the built-in default.
type Timeouts struct {
	CloneSec    int `yaml:"clone_sec"`
	FetchSec    int `yaml:"fetch_sec"`
	WorktreeSec int `yaml:"worktree_sec"`
	RemoveSec   int `yaml:"remove_sec"`
	QuerySec    int `yaml:"query_sec"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{
		DefaultLogin:      "oauth2",
		FeatureMaxAgeDays: 7,
		TaskMaxAgeHours:   24,
	}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.RootDir = filepath.Join(home, ".taskspace")
	}
	return cfg
}

// Load reads the config file at path, falling back to defaults when the
// file does not exist. The TASKSPACE_ROOT environment variable overrides
// root_dir either way.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if root := os.Getenv("TASKSPACE_ROOT"); root != "" {
		cfg.RootDir = root
	}
	if cfg.RootDir == "" {
		return nil, fmt.Errorf("%w: root_dir is required", ErrInvalidConfig)
	}
	if cfg.RootDir[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.RootDir = filepath.Join(home, cfg.RootDir[1:])
	}
	if cfg.DefaultLogin == "" {
		cfg.DefaultLogin = "oauth2"
	}
	if cfg.FeatureMaxAgeDays <= 0 {
		cfg.FeatureMaxAgeDays = 7
	}
	if cfg.TaskMaxAgeHours <= 0 {
		cfg.TaskMaxAgeHours = 24
	}
	return cfg, nil
}

// DefaultPath returns ~/.taskspace/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".taskspace", "config.yaml")
}

// ReposDir returns {root}/repos.
func (c *Config) ReposDir() string { return filepath.Join(c.RootDir, "repos") }

// FeaturesDir returns {root}/features.
func (c *Config) FeaturesDir() string { return filepath.Join(c.RootDir, "features") }

// TasksDir returns {root}/tasks.
func (c *Config) TasksDir() string { return filepath.Join(c.RootDir, "tasks") }

// SharedDir returns {root}/shared.
func (c *Config) SharedDir() string { return filepath.Join(c.RootDir, "shared") }

// LocksDir returns the directory holding advisory lock files.
func (c *Config) LocksDir() string { return filepath.Join(c.RootDir, ".locks") }

func secondsOr(sec int, fallback time.Duration) time.Duration {
	if sec <= 0 {
		return fallback
	}
	return time.Duration(sec) * time.Second
}

// CloneTimeout returns the bare-clone deadline.
func (c *Config) CloneTimeout() time.Duration {
	return secondsOr(c.Timeouts.CloneSec, DefaultCloneTimeout)
}

// FetchTimeout returns the fetch deadline.
func (c *Config) FetchTimeout() time.Duration {
	return secondsOr(c.Timeouts.FetchSec, DefaultFetchTimeout)
}

// WorktreeTimeout returns the worktree-add deadline.
func (c *Config) WorktreeTimeout() time.Duration {
	return secondsOr(c.Timeouts.WorktreeSec, DefaultWorktreeTimeout)
}

// RemoveTimeout returns the worktree-remove deadline.
func (c *Config) RemoveTimeout() time.Duration {
	return secondsOr(c.Timeouts.RemoveSec, DefaultRemoveTimeout)
}

// QueryTimeout returns the deadline for branch and ref queries.
func (c *Config) QueryTimeout() time.Duration {
	return secondsOr(c.Timeouts.QuerySec, DefaultQueryTimeout)
}

// FeatureMaxAge returns the age past which features are collected.
func (c *Config) FeatureMaxAge() time.Duration {
	return time.Duration(c.FeatureMaxAgeDays) * 24 * time.Hour
}

// TaskMaxAge returns the age past which task workspaces are collected.
func (c *Config) TaskMaxAge() time.Duration {
	return time.Duration(c.TaskMaxAgeHours) * time.Hour
}
