package scheduler

import (
	"sort"
	"sync"
)

// ResourceLockManager provides mutual exclusion over named resources so
// tasks that declare the same exclusive resource tag never run concurrently.
// Keyed mutex pattern: each tag gets its own mutex, tasks touching disjoint
// tags proceed in parallel.
type ResourceLockManager struct {
	mu    sync.Mutex             // Guards the locks map itself
	locks map[string]*sync.Mutex // Per-resource mutexes
}

// NewResourceLockManager creates an empty manager.
func NewResourceLockManager() *ResourceLockManager {
	return &ResourceLockManager{
		locks: make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex for a resource, creating it on first access.
func (r *ResourceLockManager) lockFor(resource string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, exists := r.locks[resource]
	if !exists {
		l = &sync.Mutex{}
		r.locks[resource] = l
	}
	return l
}

// Lock acquires the mutex for a single resource, blocking until available.
func (r *ResourceLockManager) Lock(resource string) {
	r.lockFor(resource).Lock()
}

// Unlock releases the mutex for a single resource.
func (r *ResourceLockManager) Unlock(resource string) {
	r.mu.Lock()
	l, exists := r.locks[resource]
	r.mu.Unlock()

	if exists {
		l.Unlock()
	}
}

// TryLockAll attempts to acquire every resource without blocking.
// Resources are deduplicated and sorted lexicographically before acquisition
// to prevent deadlocks between concurrent claimants. If any resource is
// already held, the acquired prefix is released and false is returned,
// leaving the manager untouched; the caller retries on a later scheduling
// tick.
func (r *ResourceLockManager) TryLockAll(resources []string) bool {
	if len(resources) == 0 {
		return true
	}

	sorted := sortedUnique(resources)
	for i, resource := range sorted {
		if !r.lockFor(resource).TryLock() {
			// Back out in reverse order.
			for j := i - 1; j >= 0; j-- {
				r.Unlock(sorted[j])
			}
			return false
		}
	}
	return true
}

// UnlockAll releases every resource acquired by a successful TryLockAll,
// in reverse sorted order for symmetry.
func (r *ResourceLockManager) UnlockAll(resources []string) {
	if len(resources) == 0 {
		return
	}

	sorted := sortedUnique(resources)
	for i := len(sorted) - 1; i >= 0; i-- {
		r.Unlock(sorted[i])
	}
}

// sortedUnique returns the resource set sorted with duplicates removed, so a
// task declaring the same tag twice cannot self-deadlock or double-unlock.
func sortedUnique(resources []string) []string {
	out := make([]string, len(resources))
	copy(out, resources)
	sort.Strings(out)

	n := 0
	for i, s := range out {
		if i == 0 || s != out[i-1] {
			out[n] = s
			n++
		}
	}
	return out[:n]
}
