// Package app wires the managers together once per process. Nothing in the
// subsystem relies on ambient global state; everything flows from here.
package app

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"taskspace/internal/config"
	"taskspace/internal/feature"
	"taskspace/internal/gitrun"
	"taskspace/internal/lockfile"
	"taskspace/internal/logging"
	"taskspace/internal/repo"
	"taskspace/internal/worktree"
	"taskspace/internal/workspace"
)

// App holds the manager instances for one executor process.
type App struct {
	Config    *config.Config
	Repos     *repo.Manager
	Worktrees *worktree.Manager
	Features  *feature.Manager
	Setup     *workspace.Setup
	Logger    *log.Logger
}

// Options allow swapping collaborators; zero values mean production
// defaults.
type Options struct {
	Runner    gitrun.Runner
	Decrypter repo.Decrypter
	Logger    *log.Logger
}

// New builds the process-wide App from configuration.
func New(cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Setup(cfg.Verbose, nil)
	}
	runner := opts.Runner
	if runner == nil {
		runner = gitrun.NewExecRunner()
	}

	for _, dir := range []string{cfg.ReposDir(), cfg.FeaturesDir(), cfg.TasksDir(), cfg.SharedDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	locker := lockfile.New(cfg.LocksDir())
	repos := repo.NewManager(cfg, runner, locker, opts.Decrypter, logging.For(logger, "repo"))
	trees := worktree.NewManager(cfg, runner, repos, logging.For(logger, "worktree"))
	features := feature.NewManager(cfg, repos, trees, feature.NewStore(cfg.FeaturesDir()), locker, logging.For(logger, "feature"))
	setup := workspace.NewSetup(cfg, repos, features, workspace.NewTaskStore(cfg.TasksDir()), logging.For(logger, "workspace"))

	return &App{
		Config:    cfg,
		Repos:     repos,
		Worktrees: trees,
		Features:  features,
		Setup:     setup,
		Logger:    logger,
	}, nil
}
