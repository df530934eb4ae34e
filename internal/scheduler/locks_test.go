package scheduler

import (
	"sync"
	"testing"
	"time"
)

// TestResourceLockManager_BasicLockUnlock verifies basic lock/unlock operations.
func TestResourceLockManager_BasicLockUnlock(t *testing.T) {
	mgr := NewResourceLockManager()

	mgr.Lock("database")
	mgr.Unlock("database")

	// Should be able to lock again after unlock
	mgr.Lock("database")
	mgr.Unlock("database")
}

// TestResourceLockManager_TryLockAll verifies non-blocking acquisition.
func TestResourceLockManager_TryLockAll(t *testing.T) {
	mgr := NewResourceLockManager()

	if !mgr.TryLockAll([]string{"schema", "api"}) {
		t.Fatal("TryLockAll on free resources should succeed")
	}

	// Any overlap with held resources fails.
	if mgr.TryLockAll([]string{"api", "docs"}) {
		t.Error("TryLockAll should fail while a requested resource is held")
	}

	// Disjoint set still succeeds.
	if !mgr.TryLockAll([]string{"docs"}) {
		t.Error("TryLockAll on a disjoint resource should succeed")
	}
	mgr.UnlockAll([]string{"docs"})

	mgr.UnlockAll([]string{"schema", "api"})
	if !mgr.TryLockAll([]string{"api", "docs"}) {
		t.Error("TryLockAll should succeed after UnlockAll released the overlap")
	}
	mgr.UnlockAll([]string{"api", "docs"})
}

// TestResourceLockManager_TryLockAllBacksOut verifies a failed acquisition
// releases everything it grabbed.
func TestResourceLockManager_TryLockAllBacksOut(t *testing.T) {
	mgr := NewResourceLockManager()

	// Hold "b" so TryLockAll([a b c]) acquires "a" then fails on "b".
	mgr.Lock("b")
	if mgr.TryLockAll([]string{"a", "b", "c"}) {
		t.Fatal("TryLockAll should fail while b is held")
	}
	mgr.Unlock("b")

	// If the backout leaked "a", this second attempt would fail.
	if !mgr.TryLockAll([]string{"a", "b", "c"}) {
		t.Error("TryLockAll should succeed after backout released partial acquisitions")
	}
	mgr.UnlockAll([]string{"a", "b", "c"})
}

// TestResourceLockManager_DisjointResourcesConcurrent verifies that holders of
// different resources never block each other.
func TestResourceLockManager_DisjointResourcesConcurrent(t *testing.T) {
	mgr := NewResourceLockManager()
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		if !mgr.TryLockAll([]string{"a"}) {
			t.Error("TryLockAll(a) should succeed")
			return
		}
		time.Sleep(20 * time.Millisecond)
		mgr.UnlockAll([]string{"a"})
	}()
	go func() {
		defer wg.Done()
		if !mgr.TryLockAll([]string{"b"}) {
			t.Error("TryLockAll(b) should succeed")
			return
		}
		time.Sleep(20 * time.Millisecond)
		mgr.UnlockAll([]string{"b"})
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("disjoint resource holders blocked each other")
	}
}

// TestResourceLockManager_EmptyResources verifies empty slices are a no-op.
func TestResourceLockManager_EmptyResources(t *testing.T) {
	mgr := NewResourceLockManager()

	if !mgr.TryLockAll(nil) {
		t.Error("TryLockAll(nil) should succeed")
	}
	mgr.UnlockAll(nil)
}

// TestResourceLockManager_DuplicateTags verifies a task declaring the same
// resource twice acquires it once and releases cleanly.
func TestResourceLockManager_DuplicateTags(t *testing.T) {
	mgr := NewResourceLockManager()

	if !mgr.TryLockAll([]string{"db", "db"}) {
		t.Fatal("TryLockAll with duplicate tags should succeed")
	}
	mgr.UnlockAll([]string{"db", "db"})

	if !mgr.TryLockAll([]string{"db"}) {
		t.Error("Resource should be free after UnlockAll")
	}
	mgr.UnlockAll([]string{"db"})
}
