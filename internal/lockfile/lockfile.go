// Package lockfile serializes mutating operations across executor
// processes with advisory file locks. One lock file exists per resource:
// a bare repository path or a feature name. The disk may be a shared
// network volume, so in-process mutexes are not enough.
package lockfile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// retryDelay is how often a blocked acquire re-polls the lock.
const retryDelay = 100 * time.Millisecond

// Locker hands out named advisory locks backed by files under dir.
type Locker struct {
	dir string
}

// New returns a Locker storing lock files under dir.
func New(dir string) *Locker {
	return &Locker{dir: dir}
}

// Lock is a held advisory lock. Release it exactly once.
type Lock struct {
	fl *flock.Flock
}

// Acquire blocks until the named lock is held or ctx is done. Resource
// names may contain path separators; they are hashed into a flat file name.
func (l *Locker) Acquire(ctx context.Context, resource string) (*Lock, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	fl := flock.New(filepath.Join(l.dir, lockFileName(resource)))
	locked, err := fl.TryLockContext(ctx, retryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock for %s: %w", resource, err)
	}
	if !locked {
		return nil, fmt.Errorf("lock for %s not acquired", resource)
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock. Safe to call on a nil receiver.
func (lk *Lock) Release() {
	if lk == nil || lk.fl == nil {
		return
	}
	_ = lk.fl.Unlock()
}

// lockFileName derives a stable flat file name from an arbitrary resource
// string. A short prefix of the original is kept for debuggability.
func lockFileName(resource string) string {
	sum := sha256.Sum256([]byte(resource))
	base := filepath.Base(resource)
	if len(base) > 40 {
		base = base[:40]
	}
	return fmt.Sprintf("%s-%s.lock", sanitize(base), hex.EncodeToString(sum[:8]))
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
