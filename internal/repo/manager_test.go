package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"taskspace/internal/gitrun"
)

// cloningFake scripts a runner whose bare clones materialize the staging
// directory, so the rename into place works like the real thing.
func cloningFake() *gitrun.FakeRunner {
	f := &gitrun.FakeRunner{}
	f.Handle("clone --bare", func(dir string, args []string) (gitrun.Result, error) {
		staging := args[len(args)-1]
		if err := os.MkdirAll(staging, 0o755); err != nil {
			return gitrun.Result{ExitCode: 1}, err
		}
		return gitrun.Result{}, nil
	})
	return f
}

func TestEnsureBareRepoIdempotent(t *testing.T) {
	fake := cloningFake()
	m := testManager(t, fake, nil)
	ctx := context.Background()

	first, err := m.EnsureBareRepo(ctx, "https://github.com/acme/widget.git", Credentials{})
	require.NoError(t, err)
	require.DirExists(t, first)

	second, err := m.EnsureBareRepo(ctx, "https://github.com/acme/widget.git", Credentials{})
	require.NoError(t, err)
	require.Equal(t, first, second)

	require.Equal(t, 1, fake.CountRan("clone --bare"), "second call must not clone again")
	require.True(t, fake.CommandRan("fetch --all --prune"), "second call must fetch")
}

func TestEnsureBareRepoFetchFailureNonFatal(t *testing.T) {
	fake := &gitrun.FakeRunner{}
	fake.Fail("fetch", errors.New("remote unreachable"))
	m := testManager(t, fake, nil)

	barePath, err := m.BarePathFor("https://github.com/acme/widget.git")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(barePath, 0o755))

	got, err := m.EnsureBareRepo(context.Background(), "https://github.com/acme/widget.git", Credentials{})
	require.NoError(t, err, "fetch failure on a cached repo is non-fatal")
	require.Equal(t, barePath, got)
}

func TestEnsureBareRepoCloneFailureFatal(t *testing.T) {
	fake := &gitrun.FakeRunner{}
	fake.Fail("clone", errors.New("authentication failed"))
	m := testManager(t, fake, nil)

	_, err := m.EnsureBareRepo(context.Background(), "https://github.com/acme/widget.git", Credentials{})
	require.Error(t, err)

	barePath, _ := m.BarePathFor("https://github.com/acme/widget.git")
	require.NoDirExists(t, barePath, "failed clone must not leave a cache path behind")
}

func TestCreateBranchFallsBackToMain(t *testing.T) {
	fake := &gitrun.FakeRunner{}
	fake.On("show-ref --verify --quiet refs/heads/main", "")
	fake.Fail("show-ref", errors.New("ref not found"))
	m := testManager(t, fake, nil)

	err := m.CreateBranch(context.Background(), "/cache/github.com/acme/widget.git", "feature-123", "develop")
	require.NoError(t, err, "must fall back to main when develop is absent")
	require.True(t, fake.CommandRan("branch feature-123 refs/heads/main"))
}

func TestResolveBaseRefNoCandidate(t *testing.T) {
	fake := &gitrun.FakeRunner{}
	fake.Fail("show-ref", errors.New("ref not found"))
	m := testManager(t, fake, nil)

	_, err := m.ResolveBaseRef(context.Background(), "/cache/x.git", "develop")
	require.ErrorIs(t, err, ErrNoBaseRef)
}

func TestDeleteRepo(t *testing.T) {
	m := testManager(t, &gitrun.FakeRunner{}, nil)

	barePath := filepath.Join(m.cfg.ReposDir(), "github.com", "acme", "widget.git")
	require.NoError(t, os.MkdirAll(barePath, 0o755))

	deleted, err := m.DeleteRepo(barePath)
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = m.DeleteRepo(barePath)
	require.NoError(t, err, "deleting a missing repo is a no-op")
	require.False(t, deleted)
}

func TestDeleteRepoRefusesOutsideCache(t *testing.T) {
	m := testManager(t, &gitrun.FakeRunner{}, nil)

	_, err := m.DeleteRepo("/etc")
	require.Error(t, err)
}
