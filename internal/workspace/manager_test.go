package workspace

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestCreate(t *testing.T) {
	m := NewManager(Config{Root: t.TempDir()})

	info, err := m.Create(7)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := os.Stat(info.Path); err != nil {
		t.Errorf("workspace directory does not exist: %v", err)
	}
	if info.TaskID != 7 {
		t.Errorf("expected TaskID 7, got %d", info.TaskID)
	}
	if filepath.Base(info.Path) != "task-7" {
		t.Errorf("expected directory task-7, got %s", filepath.Base(info.Path))
	}
}

func TestCreateDuplicate(t *testing.T) {
	m := NewManager(Config{Root: t.TempDir()})

	if _, err := m.Create(1); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	if _, err := m.Create(1); err == nil {
		t.Error("expected error creating duplicate workspace, got nil")
	}
}

func TestCollect(t *testing.T) {
	m := NewManager(Config{Root: t.TempDir()})

	info, err := m.Create(3)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Lay out a small artifact tree.
	if err := os.WriteFile(filepath.Join(info.Path, "report.txt"), []byte("ok"), 0644); err != nil {
		t.Fatalf("failed to write artifact: %v", err)
	}
	subdir := filepath.Join(info.Path, "out")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatalf("failed to create subdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(subdir, "result.json"), []byte("{}"), 0644); err != nil {
		t.Fatalf("failed to write artifact: %v", err)
	}

	artifacts, err := m.Collect(3)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	want := []string{filepath.Join("out", "result.json"), "report.txt"}
	if !reflect.DeepEqual(artifacts, want) {
		t.Errorf("Collect = %v, want %v", artifacts, want)
	}
}

func TestCollectUnknownTask(t *testing.T) {
	m := NewManager(Config{Root: t.TempDir()})

	if _, err := m.Collect(42); err == nil {
		t.Error("expected error collecting unknown workspace, got nil")
	}
}

func TestCleanup(t *testing.T) {
	m := NewManager(Config{Root: t.TempDir()})

	info, err := m.Create(5)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := m.Cleanup(5); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if _, err := os.Stat(info.Path); !os.IsNotExist(err) {
		t.Errorf("workspace directory still exists after Cleanup")
	}

	// Cleanup is not idempotent: the workspace is gone.
	if err := m.Cleanup(5); err == nil {
		t.Error("expected error on second Cleanup, got nil")
	}

	// The task id is free for reuse after cleanup.
	if _, err := m.Create(5); err != nil {
		t.Errorf("Create after Cleanup failed: %v", err)
	}
}

func TestCleanupAll(t *testing.T) {
	root := t.TempDir()
	m := NewManager(Config{Root: root})

	for _, id := range []int64{1, 2, 3} {
		if _, err := m.Create(id); err != nil {
			t.Fatalf("Create(%d) failed: %v", id, err)
		}
	}

	if err := m.CleanupAll(); err != nil {
		t.Fatalf("CleanupAll failed: %v", err)
	}
	if got := m.List(); len(got) != 0 {
		t.Errorf("expected no open workspaces after CleanupAll, got %d", len(got))
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("failed to read root: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty root after CleanupAll, found %d entries", len(entries))
	}
}

func TestList(t *testing.T) {
	m := NewManager(Config{Root: t.TempDir()})

	for _, id := range []int64{9, 2, 5} {
		if _, err := m.Create(id); err != nil {
			t.Fatalf("Create(%d) failed: %v", id, err)
		}
	}

	list := m.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 workspaces, got %d", len(list))
	}
	for i, want := range []int64{2, 5, 9} {
		if list[i].TaskID != want {
			t.Errorf("List[%d].TaskID = %d, want %d", i, list[i].TaskID, want)
		}
	}
}

func TestPrune(t *testing.T) {
	root := t.TempDir()

	// Simulate leftovers from an interrupted run.
	for _, stale := range []string{"task-100", "task-101"} {
		if err := os.MkdirAll(filepath.Join(root, stale), 0755); err != nil {
			t.Fatalf("failed to create stale dir: %v", err)
		}
	}
	// Directories that don't match the task naming are left alone.
	if err := os.MkdirAll(filepath.Join(root, "keep-me"), 0755); err != nil {
		t.Fatalf("failed to create unrelated dir: %v", err)
	}

	m := NewManager(Config{Root: root})
	live, err := m.Create(1)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := m.Prune(); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "task-100")); !os.IsNotExist(err) {
		t.Error("stale workspace task-100 survived Prune")
	}
	if _, err := os.Stat(filepath.Join(root, "task-101")); !os.IsNotExist(err) {
		t.Error("stale workspace task-101 survived Prune")
	}
	if _, err := os.Stat(live.Path); err != nil {
		t.Errorf("live workspace removed by Prune: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "keep-me")); err != nil {
		t.Errorf("unrelated directory removed by Prune: %v", err)
	}
}

func TestPruneMissingRoot(t *testing.T) {
	m := NewManager(Config{Root: filepath.Join(t.TempDir(), "never-created")})

	if err := m.Prune(); err != nil {
		t.Errorf("Prune on missing root should be a no-op, got %v", err)
	}
}
