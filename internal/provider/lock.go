package provider

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFileName is created in the data directory while a provider owns it.
const LockFileName = ".lock"

// dirLock is a cross-process exclusive lock on a data directory.
// Batch insertion assumes a single writer, so a second process must not open
// the same indexes.
type dirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

func newDirLock(dir string) *dirLock {
	lockPath := filepath.Join(dir, LockFileName)
	return &dirLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// tryLock acquires the lock without blocking. Returns false if another
// process holds it.
func (l *dirLock) tryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create data directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.locked = acquired
	return acquired, nil
}

// unlock releases the lock. Safe to call when not locked.
func (l *dirLock) unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
