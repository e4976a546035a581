package lockfile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	l := New(t.TempDir())
	ctx := context.Background()

	lock, err := l.Acquire(ctx, "/srv/repos/github.com/acme/widget.git")
	require.NoError(t, err)
	lock.Release()

	// Released locks are immediately reacquirable.
	lock, err = l.Acquire(ctx, "/srv/repos/github.com/acme/widget.git")
	require.NoError(t, err)
	lock.Release()
}

func TestAcquireBlocksUntilContextDone(t *testing.T) {
	l := New(t.TempDir())

	held, err := l.Acquire(context.Background(), "feature:checkout-flow")
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "feature:checkout-flow")
	require.Error(t, err, "a held lock must not be acquired twice")
}

func TestDistinctResourcesDoNotContend(t *testing.T) {
	l := New(t.TempDir())
	ctx := context.Background()

	a, err := l.Acquire(ctx, "feature:one")
	require.NoError(t, err)
	defer a.Release()

	b, err := l.Acquire(ctx, "feature:two")
	require.NoError(t, err)
	b.Release()
}

func TestReleaseNil(t *testing.T) {
	var lk *Lock
	lk.Release() // must not panic
}

func TestLockFileName(t *testing.T) {
	a := lockFileName("/srv/repos/github.com/acme/widget.git")
	b := lockFileName("/srv/repos/github.com/acme/other.git")
	require.NotEqual(t, a, b)
	require.Equal(t, a, lockFileName("/srv/repos/github.com/acme/widget.git"))

	// Names must be flat: no separators survive.
	require.Equal(t, a, filepath.Base(a))
	require.Contains(t, a, "widget.git")
}
