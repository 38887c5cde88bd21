package validator

import (
	"sync"
)

// PathLockManager provides process-wide per-normalized-path advisory
// locks. Two independent top-level validations aliasing the same physical
// folder serialize on its lock, so a folder's reconciliation is never
// computed from two overlapping enumerations concurrently.
//
// A chain acquires locks in descent order and holds every ancestor for
// its whole subtree window. Two concurrent walks whose trees alias into
// each other can therefore acquire in opposite orders and deadlock;
// roots that share physical folders belong in one library, not two.
type PathLockManager struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

// NewPathLockManager creates an empty lock manager
func NewPathLockManager() *PathLockManager {
	return &PathLockManager{
		locks: make(map[string]*pathLock),
	}
}

// Acquire blocks until the lock for path is held. Empty paths are never
// locked. Every Acquire must be paired with a Release on all exit paths.
func (lm *PathLockManager) Acquire(path string) {
	if path == "" {
		return
	}

	lm.mu.Lock()
	lock, exists := lm.locks[path]
	if !exists {
		lock = &pathLock{}
		lm.locks[path] = lock
	}
	lock.refs++
	lm.mu.Unlock()

	lock.mu.Lock()
}

// Release unlocks the lock for path and discards it once no waiter remains
func (lm *PathLockManager) Release(path string) {
	if path == "" {
		return
	}

	lm.mu.Lock()
	lock, exists := lm.locks[path]
	if !exists {
		lm.mu.Unlock()
		return
	}
	lock.refs--
	if lock.refs <= 0 {
		delete(lm.locks, path)
	}
	lm.mu.Unlock()

	lock.mu.Unlock()
}

// ActiveLocks returns the number of paths with a held or pending lock
func (lm *PathLockManager) ActiveLocks() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.locks)
}
