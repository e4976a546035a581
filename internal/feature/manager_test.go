package feature

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"taskspace/internal/config"
	"taskspace/internal/gitrun"
	"taskspace/internal/lockfile"
	"taskspace/internal/logging"
	"taskspace/internal/repo"
	"taskspace/internal/worktree"
)

// newFake scripts a runner whose clones and worktree adds materialize their
// destination directories, so filesystem checks behave like real git.
func newFake() *gitrun.FakeRunner {
	f := &gitrun.FakeRunner{}
	f.Handle("clone --bare", func(dir string, args []string) (gitrun.Result, error) {
		if err := os.MkdirAll(args[len(args)-1], 0o755); err != nil {
			return gitrun.Result{ExitCode: 1}, err
		}
		return gitrun.Result{}, nil
	})
	f.Handle("worktree add", func(dir string, args []string) (gitrun.Result, error) {
		path := args[2]
		if path == "-b" {
			path = args[4]
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return gitrun.Result{ExitCode: 1}, err
		}
		return gitrun.Result{}, nil
	})
	return f
}

func testFeatureManager(t *testing.T, fake *gitrun.FakeRunner) *Manager {
	t.Helper()
	cfg := config.Default()
	cfg.RootDir = t.TempDir()
	logger := logging.Discard()
	locker := lockfile.New(cfg.LocksDir())
	repos := repo.NewManager(cfg, fake, locker, nil, logger)
	trees := worktree.NewManager(cfg, fake, repos, logger)
	store := NewStore(cfg.FeaturesDir())
	return NewManager(cfg, repos, trees, store, locker, logger)
}

func TestCreateProvisionsRepositories(t *testing.T) {
	m := testFeatureManager(t, newFake())
	specs := []RepoSpec{
		{GitURL: "https://github.com/acme/api.git"},
		{GitURL: "https://github.com/acme/web.git"},
	}

	meta, err := m.Create(context.Background(), "checkout-flow", specs, 42, "main", repo.Credentials{})
	require.NoError(t, err)
	require.Len(t, meta.Repositories, 2)
	require.Equal(t, []int64{42}, meta.Tasks)
	require.Equal(t, int64(42), meta.CreatedByTask)

	require.True(t, m.Exists("checkout-flow"))
	require.DirExists(t, m.ScratchDir("checkout-flow"))
	for _, r := range meta.Repositories {
		require.Equal(t, "checkout-flow", r.Branch)
		require.Equal(t, "main", r.SourceBranch)
		require.DirExists(t, r.WorktreePath)
	}
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	fake := newFake()
	m := testFeatureManager(t, fake)
	specs := []RepoSpec{{GitURL: "https://github.com/acme/api.git"}}
	ctx := context.Background()

	first, err := m.GetOrCreate(ctx, "checkout-flow", specs, 1, "main", repo.Credentials{})
	require.NoError(t, err)

	second, err := m.GetOrCreate(ctx, "checkout-flow", specs, 1, "main", repo.Credentials{})
	require.NoError(t, err)

	require.Equal(t, first.Name, second.Name)
	require.Equal(t, []int64{1}, second.Tasks, "same task must not be recorded twice")
	require.Len(t, second.Repositories, 1)
	require.Equal(t, 1, fake.CountRan("clone --bare"))
}

func TestGetOrCreateAddsMissingRepository(t *testing.T) {
	fake := newFake()
	m := testFeatureManager(t, fake)
	ctx := context.Background()

	_, err := m.GetOrCreate(ctx, "checkout-flow",
		[]RepoSpec{{GitURL: "https://github.com/acme/api.git"}}, 1, "main", repo.Credentials{})
	require.NoError(t, err)

	meta, err := m.GetOrCreate(ctx, "checkout-flow",
		[]RepoSpec{
			{GitURL: "https://github.com/acme/api.git"},
			{GitURL: "https://github.com/acme/web.git"},
		}, 2, "main", repo.Credentials{})
	require.NoError(t, err)

	require.Len(t, meta.Repositories, 2)
	require.Equal(t, []int64{1, 2}, meta.Tasks)
	require.Equal(t, 2, fake.CountRan("clone --bare"), "existing repository must not be cloned again")
}

func TestCreateSkipsFailingRepository(t *testing.T) {
	fake := newFake()
	fake.Rules = append([]gitrun.Rule{{
		Prefix: "clone --bare https://github.com/acme/broken.git",
		Result: gitrun.Result{ExitCode: 1},
		Err:    errors.New("repository not found"),
	}}, fake.Rules...)
	m := testFeatureManager(t, fake)

	meta, err := m.Create(context.Background(), "checkout-flow",
		[]RepoSpec{
			{GitURL: "https://github.com/acme/api.git"},
			{GitURL: "https://github.com/acme/broken.git"},
		}, 1, "main", repo.Credentials{})
	require.NoError(t, err, "a failing secondary repository must not abort the feature")
	require.Len(t, meta.Repositories, 1)
	require.Equal(t, "api", meta.Repositories[0].Name)
}

func TestCreateFailsWhenNothingProvisions(t *testing.T) {
	fake := &gitrun.FakeRunner{}
	fake.Fail("clone", errors.New("network down"))
	m := testFeatureManager(t, fake)

	_, err := m.Create(context.Background(), "checkout-flow",
		[]RepoSpec{{GitURL: "https://github.com/acme/api.git"}}, 1, "main", repo.Credentials{})
	require.ErrorIs(t, err, ErrNoRepositories)
	require.False(t, m.Exists("checkout-flow"), "an empty shell must not survive")
}

func TestCreateRejectsSlashInName(t *testing.T) {
	m := testFeatureManager(t, newFake())

	_, err := m.Create(context.Background(), "nested/name", nil, 1, "main", repo.Credentials{})
	require.ErrorIs(t, err, repo.ErrInvalidBranchName)
}

func TestDelete(t *testing.T) {
	fake := newFake()
	m := testFeatureManager(t, fake)
	ctx := context.Background()

	_, err := m.Create(ctx, "checkout-flow",
		[]RepoSpec{{GitURL: "https://github.com/acme/api.git"}}, 1, "main", repo.Credentials{})
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, "checkout-flow", false))
	require.False(t, m.Exists("checkout-flow"))
	require.NoDirExists(t, m.Dir("checkout-flow"))
	require.True(t, fake.CommandRan("worktree remove"))

	err = m.Delete(ctx, "checkout-flow", false)
	require.ErrorIs(t, err, ErrFeatureNotFound)
}

func TestFindByTask(t *testing.T) {
	m := testFeatureManager(t, newFake())
	ctx := context.Background()

	_, err := m.Create(ctx, "checkout-flow",
		[]RepoSpec{{GitURL: "https://github.com/acme/api.git"}}, 7, "main", repo.Credentials{})
	require.NoError(t, err)

	meta, ok := m.FindByTask(7)
	require.True(t, ok)
	require.Equal(t, "checkout-flow", meta.Name)

	_, ok = m.FindByTask(8)
	require.False(t, ok)
}

func TestCleanupOld(t *testing.T) {
	m := testFeatureManager(t, newFake())
	ctx := context.Background()

	_, err := m.Create(ctx, "stale",
		[]RepoSpec{{GitURL: "https://github.com/acme/api.git"}}, 1, "main", repo.Credentials{})
	require.NoError(t, err)
	_, err = m.Create(ctx, "fresh",
		[]RepoSpec{{GitURL: "https://github.com/acme/web.git"}}, 2, "main", repo.Credentials{})
	require.NoError(t, err)

	// Age the first feature past the cutoff.
	meta, err := m.store.Load("stale")
	require.NoError(t, err)
	meta.LastAccessed = time.Now().UTC().Add(-8 * 24 * time.Hour)
	require.NoError(t, m.store.Save(meta))

	deleted, err := m.CleanupOld(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, []string{"stale"}, deleted)
	require.False(t, m.Exists("stale"))
	require.True(t, m.Exists("fresh"))
}

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())
	meta := &Metadata{
		Name:          "checkout-flow",
		CreatedAt:     time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		CreatedByTask: 1,
		Tasks:         []int64{1, 2},
		Repositories: []Repository{{
			Name:   "api",
			GitURL: "https://github.com/acme/api.git",
			Branch: "checkout-flow",
		}},
		LastAccessed: time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC),
	}

	require.False(t, store.Exists("checkout-flow"))
	require.NoError(t, store.Save(meta))
	require.True(t, store.Exists("checkout-flow"))

	got, err := store.Load("checkout-flow")
	require.NoError(t, err)
	require.Equal(t, meta, got)

	names, err := store.Names()
	require.NoError(t, err)
	require.Equal(t, []string{"checkout-flow"}, names)

	require.NoError(t, store.Delete("checkout-flow"))
	require.False(t, store.Exists("checkout-flow"))
	require.NoError(t, store.Delete("checkout-flow"))
}
