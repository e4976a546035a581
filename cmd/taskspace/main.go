// Command taskspace drives the workspace isolation subsystem from the
// shell: set up a workspace for a task, convert it into a feature, inspect
// and collect features and task workspaces.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"taskspace/internal/app"
	"taskspace/internal/config"
	"taskspace/internal/feature"
	"taskspace/internal/repo"
	"taskspace/internal/workspace"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath string
		verbose    bool
	)

	rootCmd := &cobra.Command{
		Use:           "taskspace",
		Short:         "Isolated, reusable git workspaces for automated coding-agent tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	newApp := func() (*app.App, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		if verbose {
			cfg.Verbose = true
		}
		return app.New(cfg, app.Options{})
	}

	rootCmd.AddCommand(
		newSetupCmd(newApp),
		newConvertCmd(newApp),
		newFeatureCmd(newApp),
		newTaskCmd(newApp),
		newRepoCmd(newApp),
		newVersionCmd(),
	)

	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func newSetupCmd(newApp func() (*app.App, error)) *cobra.Command {
	var req workspace.Request
	var extraRepos []string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Set up the workspace for a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			for _, url := range extraRepos {
				req.AdditionalRepos = append(req.AdditionalRepos, feature.RepoSpec{GitURL: url})
			}
			req.Credentials = credentialsFromEnv()

			res := a.Setup.SetupWorkspace(cmd.Context(), req)
			if !res.Success {
				return fmt.Errorf("workspace setup failed: %s", res.ErrorMessage)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "workspace: %s\nproject:   %s\n", res.WorkspacePath, res.ProjectPath)
			if res.IsFeatureWorkspace {
				fmt.Fprintf(cmd.OutOrStdout(), "feature:   %s\n", res.FeatureName)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&req.TaskID, "task", 0, "task id")
	cmd.Flags().StringVar(&req.GitURL, "url", "", "primary repository URL")
	cmd.Flags().StringVar(&req.BranchName, "branch", "", "source branch")
	cmd.Flags().StringVar(&req.FeatureBranch, "feature", "", "feature branch name (enables the feature path)")
	cmd.Flags().StringVar(&req.Prompt, "prompt", "", "task prompt")
	cmd.Flags().StringArrayVar(&extraRepos, "repo", nil, "additional repository URL (repeatable)")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func newConvertCmd(newApp func() (*app.App, error)) *cobra.Command {
	var taskID int64
	var featureName string

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Promote a task workspace into a feature",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			res := a.Setup.ConvertTaskToFeature(cmd.Context(), taskID, featureName, credentialsFromEnv())
			if !res.Success {
				return fmt.Errorf("conversion failed: %s", res.ErrorMessage)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "feature %s ready at %s\n", res.FeatureName, res.WorkspacePath)
			return nil
		},
	}
	cmd.Flags().Int64Var(&taskID, "task", 0, "task id")
	cmd.Flags().StringVar(&featureName, "feature", "", "feature branch name")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("feature")
	return cmd
}

func newFeatureCmd(newApp func() (*app.App, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feature",
		Short: "Inspect and manage features",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List live features",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			metas, err := a.Features.List()
			if err != nil {
				return err
			}
			for _, m := range metas {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\trepos=%d\ttasks=%d\tlast_accessed=%s\n",
					m.Name, len(m.Repositories), len(m.Tasks), m.LastAccessed.Format("2006-01-02 15:04"))
			}
			return nil
		},
	})

	var force bool
	deleteCmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a feature and its worktrees",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			return a.Features.Delete(cmd.Context(), args[0], force)
		},
	}
	deleteCmd.Flags().BoolVar(&force, "force", false, "bypass uncommitted-change protection")
	cmd.AddCommand(deleteCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Delete features past the configured age",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			deleted, err := a.Features.CleanupOld(cmd.Context(), a.Config.FeatureMaxAge())
			if err != nil {
				return err
			}
			for _, name := range deleted {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reconcile",
		Short: "Drop metadata for worktrees that vanished from disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			res, err := a.Features.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			for name, repos := range res.DroppedRepos {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: dropped %v\n", name, repos)
			}
			for _, dir := range res.OrphanedDirs {
				fmt.Fprintf(cmd.OutOrStdout(), "orphaned: %s\n", dir)
			}
			return nil
		},
	})

	return cmd
}

func newTaskCmd(newApp func() (*app.App, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect and manage task workspaces",
	}

	var taskID int64
	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show where a task's workspace lives",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			info, err := a.Setup.GetWorkspaceInfo(taskID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "workspace: %s\n", info.WorkspacePath)
			if info.FeatureName != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "feature:   %s\n", info.FeatureName)
			}
			return nil
		},
	}
	infoCmd.Flags().Int64Var(&taskID, "task", 0, "task id")
	_ = infoCmd.MarkFlagRequired("task")
	cmd.AddCommand(infoCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Delete task workspaces past the configured age",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			removed, err := a.Setup.CleanupOldTaskWorkspaces(a.Config.TaskMaxAge())
			if err != nil {
				return err
			}
			for _, id := range removed {
				fmt.Fprintf(cmd.OutOrStdout(), "task-%d\n", id)
			}
			return nil
		},
	})

	return cmd
}

func newRepoCmd(newApp func() (*app.App, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Inspect the bare repository cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "path <url>",
		Short: "Print the cache path for a repository URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			path, err := a.Repos.BarePathFor(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "taskspace %s\n", version)
		},
	}
}

// credentialsFromEnv reads git credentials the way the executor passes
// them. Tokens never travel through argv.
func credentialsFromEnv() repo.Credentials {
	return repo.Credentials{
		Token: os.Getenv("TASKSPACE_GIT_TOKEN"),
		Login: os.Getenv("TASKSPACE_GIT_LOGIN"),
	}
}
