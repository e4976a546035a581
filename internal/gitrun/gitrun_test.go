package gitrun

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFakeRunnerRules(t *testing.T) {
	f := &FakeRunner{}
	f.On("rev-parse", "main\n")
	f.Fail("show-ref", errors.New("ref not found"))

	ctx := context.Background()

	out, err := Output(ctx, f, "/srv/wt", time.Second, "rev-parse", "--abbrev-ref", "HEAD")
	require.NoError(t, err)
	require.Equal(t, "main", out, "Output trims trailing whitespace")

	require.False(t, Succeeds(ctx, f, "", time.Second, "show-ref", "--verify", "--quiet", "refs/heads/x"))
	require.True(t, Succeeds(ctx, f, "", time.Second, "status"), "unmatched commands succeed")

	require.Equal(t, 1, f.CountRan("rev-parse"))
	require.True(t, f.CommandRan("show-ref --verify"))
	require.False(t, f.CommandRan("clone"))
}

func TestFakeRunnerFirstRuleWins(t *testing.T) {
	f := &FakeRunner{}
	f.On("show-ref --verify --quiet refs/heads/main", "")
	f.Fail("show-ref", errors.New("ref not found"))

	ctx := context.Background()
	require.True(t, Succeeds(ctx, f, "", time.Second, "show-ref", "--verify", "--quiet", "refs/heads/main"))
	require.False(t, Succeeds(ctx, f, "", time.Second, "show-ref", "--verify", "--quiet", "refs/heads/dev"))
}

func TestFakeRunnerRecordsCalls(t *testing.T) {
	f := &FakeRunner{}
	_, err := f.Run(context.Background(), "/srv/bare.git", time.Second, "fetch", "--all", "--prune")
	require.NoError(t, err)

	require.Len(t, f.Calls, 1)
	require.Equal(t, "/srv/bare.git", f.Calls[0].Dir)
	require.Equal(t, []string{"fetch", "--all", "--prune"}, f.Calls[0].Args)
}

func TestExecRunnerRejectsEmptyArgs(t *testing.T) {
	r := NewExecRunner()
	res, err := r.Run(context.Background(), "", time.Second)
	require.Error(t, err)
	require.Equal(t, -1, res.ExitCode)
}
