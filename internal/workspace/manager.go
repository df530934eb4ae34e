package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Info holds the location of a task's scratch workspace.
type Info struct {
	Path      string
	TaskID    int64
	CreatedAt time.Time
}

// Config configures the workspace manager.
type Config struct {
	Root string // base directory for task workspaces (default ".conductor/workspaces")
}

// Manager hands out isolated scratch directories, one per task, so
// concurrently running tasks never write into each other's output. It tracks
// what it created and can collect artifacts and reclaim the directories.
type Manager struct {
	root string

	mu   sync.Mutex
	open map[int64]*Info
}

// NewManager creates a workspace manager rooted at cfg.Root.
func NewManager(cfg Config) *Manager {
	root := cfg.Root
	if root == "" {
		root = filepath.Join(".conductor", "workspaces")
	}
	return &Manager{
		root: root,
		open: make(map[int64]*Info),
	}
}

// Root returns the base directory workspaces are created under.
func (m *Manager) Root() string {
	return m.root
}

// Create allocates a fresh scratch directory for the given task.
// A second Create for the same task without an intervening Cleanup is an
// error: it would let two executions trample the same directory.
func (m *Manager) Create(taskID int64) (*Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.open[taskID]; exists {
		return nil, fmt.Errorf("workspace for task %d already exists", taskID)
	}

	path := filepath.Join(m.root, taskDirName(taskID))
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	info := &Info{
		Path:      path,
		TaskID:    taskID,
		CreatedAt: time.Now(),
	}
	m.open[taskID] = info
	return info, nil
}

// Collect walks the task's workspace and returns the relative paths of all
// regular files found there, sorted. Called after a successful execution to
// record what the task produced.
func (m *Manager) Collect(taskID int64) ([]string, error) {
	m.mu.Lock()
	info, ok := m.open[taskID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no workspace for task %d", taskID)
	}

	var artifacts []string
	err := filepath.WalkDir(info.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(info.Path, path)
		if err != nil {
			return err
		}
		artifacts = append(artifacts, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to collect artifacts: %w", err)
	}

	sort.Strings(artifacts)
	return artifacts, nil
}

// Cleanup removes the task's workspace directory and forgets it.
func (m *Manager) Cleanup(taskID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.open[taskID]
	if !ok {
		return fmt.Errorf("no workspace for task %d", taskID)
	}

	if err := os.RemoveAll(info.Path); err != nil {
		return fmt.Errorf("failed to remove workspace: %w", err)
	}
	delete(m.open, taskID)
	return nil
}

// CleanupAll removes every workspace this manager created. Used on shutdown.
func (m *Manager) CleanupAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []string
	for taskID, info := range m.open {
		if err := os.RemoveAll(info.Path); err != nil {
			errs = append(errs, fmt.Sprintf("task %d: %v", taskID, err))
			continue
		}
		delete(m.open, taskID)
	}
	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// List returns the currently open workspaces sorted by task id.
func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Info, 0, len(m.open))
	for _, info := range m.open {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

// Prune removes task directories under the root that no live workspace owns.
// These are leftovers from interrupted runs.
func (m *Manager) Prune() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read workspace root: %w", err)
	}

	live := make(map[string]struct{}, len(m.open))
	for taskID := range m.open {
		live[taskDirName(taskID)] = struct{}{}
	}

	var errs []string
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "task-") {
			continue
		}
		if _, ok := live[entry.Name()]; ok {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.root, entry.Name())); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", entry.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("prune errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func taskDirName(taskID int64) string {
	return fmt.Sprintf("task-%d", taskID)
}
