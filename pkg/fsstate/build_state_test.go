package fsstate

import (
	"os"
	"strings"
	"testing"
)

func TestAlwaysRescanMode(t *testing.T) {
	core := prodTarget("core")

	rescan := NewBuildFSState(true)
	if !rescan.MarkInitialScanPerformed(core) || !rescan.MarkInitialScanPerformed(core) {
		t.Error("Always-rescan mode must report a scan needed on every call")
	}

	trusting := NewBuildFSState(false)
	if !trusting.MarkInitialScanPerformed(core) {
		t.Error("First call should report a scan is needed")
	}
	if trusting.MarkInitialScanPerformed(core) {
		t.Error("Subsequent calls should report the scan already ran")
	}
}

func TestRoundRotation(t *testing.T) {
	state := NewBuildFSState(false)
	session := NewBuildSession()

	core := prodTarget("core")
	other := prodTarget("other")
	coreRoot := NewRootDescriptor("/src/core", core, false, false, false)
	genRoot := NewRootDescriptor("/src/core/gen", core, false, true, false)
	otherRoot := NewRootDescriptor("/src/other", other, false, false, false)

	// Dirty before the chunk build starts: the historical backlog
	state.MarkDirty(session, "/src/core/a.go", coreRoot, nil)

	state.BeforeChunkBuildStart(session, Chunk{Name: "core", Targets: []Target{core}})
	state.BeforeNextRoundStart(session)

	// Round 1 reads the persistent backlog (no last-round delta yet)
	files := state.SourcesToRecompile(session, core)[coreRoot]
	if len(files) != 1 || files[0] != "/src/core/a.go" {
		t.Fatalf("Round 1 should see the backlog, got %v", files)
	}

	// Round 1 generates a source, and an unrelated target gets dirtied by
	// a watcher event at the same time
	state.MarkDirty(session, "/src/core/gen/g.go", genRoot, nil)
	state.MarkDirty(session, "/src/other/x.go", otherRoot, nil)

	state.BeforeNextRoundStart(session)

	// Round 2 sees exactly what round 1 dirtied, not the backlog
	snapshot := state.SourcesToRecompile(session, core)
	if files := snapshot[genRoot]; len(files) != 1 || files[0] != "/src/core/gen/g.go" {
		t.Errorf("Round 2 should see only round 1's marks, got %v", snapshot)
	}
	if _, ok := snapshot[coreRoot]; ok {
		t.Errorf("Round 2 must not see the pre-chunk backlog, got %v", snapshot)
	}
	if _, ok := snapshot[otherRoot]; ok {
		t.Errorf("Marks for targets outside the chunk must not enter round data, got %v", snapshot)
	}

	// The unrelated target's persistent delta still has its mark
	state.ClearContextRoundData(session)
	state.ClearContextChunk(session)
	if files := state.SourcesToRecompile(session, other)[otherRoot]; len(files) != 1 {
		t.Errorf("Persistent delta of the unrelated target should keep its mark, got %v", files)
	}

	// And the backlog file is still pending for the next chunk build
	if files := state.SourcesToRecompile(session, core)[coreRoot]; len(files) != 1 {
		t.Errorf("Backlog should survive round bookkeeping, got %v", files)
	}
}

func TestMarkDirtyIfNotDeletedRoundRecording(t *testing.T) {
	state := NewBuildFSState(false)
	session := NewBuildSession()
	dir := t.TempDir()

	core := prodTarget("core")
	rd := NewRootDescriptor(dir, core, false, false, false)
	existing := writeFile(t, dir, "a.go", "package a")

	state.BeforeChunkBuildStart(session, Chunk{Name: "core", Targets: []Target{core}})
	state.BeforeNextRoundStart(session)

	if res, _ := state.MarkDirtyIfNotDeleted(session, existing, rd, nil); res != MarkedDirty {
		t.Fatalf("Expected MarkedDirty, got %v", res)
	}
	if res, _ := state.MarkDirtyIfNotDeleted(session, dir+"/gone.go", rd, nil); res != SkippedDeleted {
		t.Fatalf("Expected SkippedDeleted, got %v", res)
	}

	state.BeforeNextRoundStart(session)
	files := state.SourcesToRecompile(session, core)[rd]
	if len(files) != 1 || files[0] != existing {
		t.Errorf("Round delta should record only applied marks, got %v", files)
	}
}

func TestProcessFilesToRecompile(t *testing.T) {
	state := NewBuildFSState(false)
	core := prodTarget("core")
	rd := NewRootDescriptor("/src/core", core, false, false, false)

	state.MarkDirty(nil, "/src/core/a.txt", rd, nil)
	state.MarkDirty(nil, "/src/core/b.txt", rd, nil)

	var visited []string
	ok := state.ProcessFilesToRecompile(nil, core, nil, nil,
		func(target Target, file, rootPath string) bool {
			if target != core || rootPath != rd.RootID() {
				t.Errorf("Visitor got target=%v root=%s", target, rootPath)
			}
			visited = append(visited, file)
			return true
		})
	if !ok {
		t.Error("Full iteration should report true")
	}
	if len(visited) != 2 {
		t.Errorf("Expected both files visited, got %v", visited)
	}

	// A visitor that stops must abort the iteration; unvisited files stay
	// dirty
	visited = nil
	ok = state.ProcessFilesToRecompile(nil, core, nil, nil,
		func(target Target, file, rootPath string) bool {
			visited = append(visited, file)
			return false
		})
	if ok {
		t.Error("Stopped iteration should report false")
	}
	if len(visited) != 1 {
		t.Errorf("Iteration should stop right after the visitor declines, visited %v", visited)
	}
	if files := state.SourcesToRecompile(nil, core)[rd]; len(files) != 2 {
		t.Errorf("Aborting the iteration must not consume dirty marks, got %v", files)
	}
}

func TestProcessFilesToRecompileFiltering(t *testing.T) {
	state := NewBuildFSState(false)
	core := prodTarget("core")
	rd := NewRootDescriptor("/src/core", core, false, false, false)

	state.MarkDirty(nil, "/src/core/a.go", rd, nil)
	state.MarkDirty(nil, "/src/core/skip.go", rd, nil)
	state.MarkDirty(nil, "/src/core/excl.go", rd, nil)

	inScope := scopeFunc(func(_ Target, file string) bool {
		return !strings.HasSuffix(file, "skip.go")
	})
	excluded := excludeFunc(func(file string) bool {
		return strings.HasSuffix(file, "excl.go")
	})

	var visited []string
	ok := state.ProcessFilesToRecompile(nil, core, inScope, excluded,
		func(_ Target, file, _ string) bool {
			visited = append(visited, file)
			return true
		})
	if !ok {
		t.Error("Iteration should complete")
	}
	if len(visited) != 1 || visited[0] != "/src/core/a.go" {
		t.Errorf("Scope and excludes should filter the visit, got %v", visited)
	}
}

func TestMarkAllUpToDateStampsCleanFiles(t *testing.T) {
	state := NewBuildFSState(false)
	dir := t.TempDir()
	core := prodTarget("core")
	rd := NewRootDescriptor(dir, core, false, false, false)
	file := writeFile(t, dir, "a.go", "package a")

	info, err := os.Stat(file)
	if err != nil {
		t.Fatal(err)
	}
	mtime := info.ModTime().UnixMilli()

	store := newMemStamps()
	state.MarkDirty(nil, file, rd, store)

	// Compilation started after the file was last written
	marked, err := state.MarkAllUpToDate(nil, nil, rd, store, mtime+60_000)
	if err != nil {
		t.Fatalf("MarkAllUpToDate failed: %v", err)
	}
	if !marked {
		t.Error("Expected at least one file marked up to date")
	}
	if files := state.SourcesToRecompile(nil, core)[rd]; len(files) != 0 {
		t.Errorf("File should leave the dirty set, got %v", files)
	}
	if stamp, ok, _ := store.GetStamp(file, core); !ok || stamp != mtime {
		t.Errorf("Expected stamp %d, got %d (present=%t)", mtime, stamp, ok)
	}
}

func TestMarkAllUpToDateKeepsRacedFilesDirty(t *testing.T) {
	state := NewBuildFSState(false)
	dir := t.TempDir()
	core := prodTarget("core")
	rd := NewRootDescriptor(dir, core, false, false, false)
	file := writeFile(t, dir, "a.go", "package a")

	info, err := os.Stat(file)
	if err != nil {
		t.Fatal(err)
	}
	mtime := info.ModTime().UnixMilli()

	store := newMemStamps()
	state.MarkDirty(nil, file, rd, store)

	// The file's mtime is newer than the compilation start: it changed
	// while the compiler ran, so it must stay dirty and unstamped
	marked, err := state.MarkAllUpToDate(nil, nil, rd, store, mtime-60_000)
	if err != nil {
		t.Fatalf("MarkAllUpToDate failed: %v", err)
	}
	if marked {
		t.Error("A raced file must not be reported as marked up to date")
	}
	if files := state.SourcesToRecompile(nil, core)[rd]; len(files) != 1 {
		t.Errorf("Raced file should return to the dirty set, got %v", files)
	}
	if store.has(file, core) {
		t.Error("No stamp may be written for a raced file")
	}
}

func TestMarkAllUpToDateGeneratedRootIgnoresRace(t *testing.T) {
	state := NewBuildFSState(false)
	dir := t.TempDir()
	core := prodTarget("core")
	rd := NewRootDescriptor(dir, core, false, true, false) // generated sources
	file := writeFile(t, dir, "g.go", "package g")

	info, err := os.Stat(file)
	if err != nil {
		t.Fatal(err)
	}
	mtime := info.ModTime().UnixMilli()

	store := newMemStamps()
	state.MarkDirty(nil, file, rd, store)

	// Generated sources are written during compilation, so a newer mtime
	// is expected and still gets stamped
	marked, err := state.MarkAllUpToDate(nil, nil, rd, store, mtime-60_000)
	if err != nil {
		t.Fatalf("MarkAllUpToDate failed: %v", err)
	}
	if !marked {
		t.Error("Generated-root file should be stamped despite the newer mtime")
	}
	if files := state.SourcesToRecompile(nil, core)[rd]; len(files) != 0 {
		t.Errorf("Generated-root file should leave the dirty set, got %v", files)
	}
}

func TestMarkAllUpToDateExcludedAndOutOfScope(t *testing.T) {
	state := NewBuildFSState(false)
	dir := t.TempDir()
	core := prodTarget("core")
	rd := NewRootDescriptor(dir, core, false, false, false)

	excl := writeFile(t, dir, "excl.go", "package x")
	outside := writeFile(t, dir, "outside.go", "package x")

	store := newMemStamps()
	store.SaveStamp(excl, core, 42)
	state.Delta(core).MarkRecompile(rd, excl)
	state.Delta(core).MarkRecompile(rd, outside)

	inScope := scopeFunc(func(_ Target, file string) bool { return file != outside })
	excluded := excludeFunc(func(file string) bool { return file == excl })

	marked, err := state.MarkAllUpToDate(inScope, excluded, rd, store, 1<<62)
	if err != nil {
		t.Fatalf("MarkAllUpToDate failed: %v", err)
	}
	if marked {
		t.Error("Neither file should have been stamped up to date")
	}

	if store.has(excl, core) {
		t.Error("Excluded file must have its stamp removed")
	}
	files := state.SourcesToRecompile(nil, core)[rd]
	if len(files) != 1 || files[0] != outside {
		t.Errorf("Only the out-of-scope file should return to the dirty set, got %v", files)
	}
}

func TestMarkAllUpToDateStampFailureKeepsFileDirty(t *testing.T) {
	state := NewBuildFSState(false)
	dir := t.TempDir()
	core := prodTarget("core")
	rd := NewRootDescriptor(dir, core, false, false, false)
	file := writeFile(t, dir, "a.go", "package a")

	state.Delta(core).MarkRecompile(rd, file)

	store := newMemStamps()
	store.fail = true

	marked, err := state.MarkAllUpToDate(nil, nil, rd, store, 1<<62)
	if err == nil {
		t.Error("Expected an error when the stamp store fails")
	}
	if marked {
		t.Error("A failed stamp write must not count as marked")
	}
	if files := state.SourcesToRecompile(nil, core)[rd]; len(files) != 1 {
		t.Errorf("File with failed stamp write should stay dirty, got %v", files)
	}
}

func TestClearAllDropsRoundData(t *testing.T) {
	state := NewBuildFSState(false)
	session := NewBuildSession()
	core := prodTarget("core")
	rd := NewRootDescriptor("/src/core", core, false, false, false)

	state.BeforeChunkBuildStart(session, Chunk{Name: "core", Targets: []Target{core}})
	state.BeforeNextRoundStart(session)
	state.MarkDirty(session, "/src/core/a.go", rd, nil)
	state.BeforeNextRoundStart(session)

	state.ClearAll(session)

	if got := state.SourcesToRecompile(session, core); len(got) != 0 {
		t.Errorf("Expected nothing dirty after ClearAll, got %v", got)
	}
	if !state.MarkInitialScanPerformed(core) {
		t.Error("Scan flags should be reset by ClearAll")
	}
}
