package fsstate

import (
	"fmt"
	"sync"
	"testing"
)

func TestMarkRecompile(t *testing.T) {
	delta := NewFilesDelta()
	rd := NewRootDescriptor("/src/core", prodTarget("core"), false, false, false)

	if !delta.MarkRecompile(rd, "/src/core/a.go") {
		t.Error("First mark should report newly dirty")
	}
	if delta.MarkRecompile(rd, "/src/core/a.go") {
		t.Error("Second mark of the same file should report already dirty")
	}

	snapshot := delta.Snapshot()
	files := snapshot[rd]
	if len(files) != 1 || files[0] != "/src/core/a.go" {
		t.Errorf("Expected exactly one dirty file, got %v", files)
	}
}

func TestClearRecompile(t *testing.T) {
	delta := NewFilesDelta()
	rd := NewRootDescriptor("/src/core", prodTarget("core"), false, false, false)

	if got := delta.ClearRecompile(rd); got != nil {
		t.Errorf("Clearing an empty delta should return nil, got %v", got)
	}

	delta.MarkRecompile(rd, "/src/core/a.go")
	delta.MarkRecompile(rd, "/src/core/b.go")

	files := delta.ClearRecompile(rd)
	if len(files) != 2 {
		t.Fatalf("Expected 2 cleared files, got %v", files)
	}
	if files[0] != "/src/core/a.go" || files[1] != "/src/core/b.go" {
		t.Errorf("Expected sorted file list, got %v", files)
	}
	if !delta.IsEmpty() {
		t.Error("Delta should be empty after clear")
	}
}

func TestMarkAfterClearSurvives(t *testing.T) {
	delta := NewFilesDelta()
	rd := NewRootDescriptor("/src/core", prodTarget("core"), false, false, false)

	delta.MarkRecompile(rd, "/src/core/a.go")
	delta.ClearRecompile(rd)
	delta.MarkRecompile(rd, "/src/core/a.go")

	files := delta.Snapshot()[rd]
	if len(files) != 1 {
		t.Errorf("Mark after clear must leave the file dirty, got %v", files)
	}
}

func TestRemove(t *testing.T) {
	delta := NewFilesDelta()
	rd := NewRootDescriptor("/src/core", prodTarget("core"), false, false, false)

	delta.MarkRecompile(rd, "/src/core/a.go")

	if !delta.Remove(rd, "/src/core/a.go") {
		t.Error("Remove should report the file was dirty")
	}
	if delta.Remove(rd, "/src/core/a.go") {
		t.Error("Second remove should report the file was not dirty")
	}
	if !delta.IsEmpty() {
		t.Error("Delta should be empty after removing its only file")
	}
}

func TestRebuildAllFlag(t *testing.T) {
	delta := NewFilesDelta()

	if delta.NeedRebuildAll() {
		t.Error("New delta should not need a full rebuild")
	}
	delta.MarkRebuildAll()
	if !delta.NeedRebuildAll() {
		t.Error("Flag should be set after MarkRebuildAll")
	}
	if delta.IsEmpty() {
		t.Error("Delta with rebuild-all pending is not empty")
	}
	delta.ClearRebuildAll()
	if delta.NeedRebuildAll() {
		t.Error("Flag should be reset after ClearRebuildAll")
	}
}

// Concurrent marks racing with repeated clears must never lose a file: after
// everything settles, the delta holds exactly the marks after the last clear.
func TestConcurrentMarkAndClear(t *testing.T) {
	delta := NewFilesDelta()
	rd := NewRootDescriptor("/src/core", prodTarget("core"), false, false, false)

	const fileCount = 1000
	var wg sync.WaitGroup
	cleared := make(chan []string, 64)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if files := delta.ClearRecompile(rd); files != nil {
				cleared <- files
			}
		}
	}()

	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := g; i < fileCount; i += 4 {
				delta.MarkRecompile(rd, fmt.Sprintf("/src/core/f%04d.go", i))
			}
		}(g)
	}

	wg.Wait()
	close(cleared)

	seen := make(map[string]int)
	for batch := range cleared {
		for _, f := range batch {
			seen[f]++
		}
	}
	for _, f := range delta.Snapshot()[rd] {
		seen[f]++
	}

	if len(seen) != fileCount {
		t.Errorf("Expected %d distinct files across clears and final state, got %d", fileCount, len(seen))
	}
	for f, n := range seen {
		if n != 1 {
			t.Errorf("File %s observed %d times, want exactly once", f, n)
		}
	}
}
