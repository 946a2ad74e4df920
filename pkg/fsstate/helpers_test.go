package fsstate

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// memStamps is a minimal in-memory Stamps implementation for tests. The
// real stores live in pkg/stamps, which imports this package.
type memStamps struct {
	mu     sync.Mutex
	stamps map[string]int64 // file + "|" + target key
	fail   bool             // when set, every call errors
}

func newMemStamps() *memStamps {
	return &memStamps{stamps: make(map[string]int64)}
}

func (m *memStamps) key(file string, t Target) string {
	return file + "|" + t.Key()
}

func (m *memStamps) GetStamp(file string, t Target) (int64, bool, error) {
	if m.fail {
		return 0, false, os.ErrPermission
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stamp, ok := m.stamps[m.key(file, t)]
	return stamp, ok, nil
}

func (m *memStamps) SaveStamp(file string, t Target, stamp int64) error {
	if m.fail {
		return os.ErrPermission
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stamps[m.key(file, t)] = stamp
	return nil
}

func (m *memStamps) RemoveStamp(file string, t Target) error {
	if m.fail {
		return os.ErrPermission
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stamps, m.key(file, t))
	return nil
}

func (m *memStamps) has(file string, t Target) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.stamps[m.key(file, t)]
	return ok
}

// scopeFunc adapts a function to CompileScope
type scopeFunc func(t Target, file string) bool

func (f scopeFunc) IsAffected(t Target, file string) bool { return f(t, file) }

// excludeFunc adapts a function to ExcludePatterns
type excludeFunc func(file string) bool

func (f excludeFunc) IsExcluded(file string) bool { return f(file) }

// writeFile creates a file with content under dir, returning its path
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create parent dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return filepath.ToSlash(path)
}

func prodTarget(id string) Target {
	return Target{ID: id, Kind: KindProduction}
}
