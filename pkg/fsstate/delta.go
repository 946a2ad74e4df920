package fsstate

import (
	"sort"
	"sync"
)

// FilesDelta tracks the files that need recompilation, grouped by the source
// root that owns them. One instance covers one target (or one compilation
// round). A file appears under a root only if that root is the most specific
// root containing it; RootSet.FindRoot enforces this at attribution time.
//
// Individual marks lock only briefly, so they can interleave with an ongoing
// iteration of another delta. Read-then-mutate sequences over this delta's
// mapping must hold Lock for the whole sequence.
type FilesDelta struct {
	mu         sync.Mutex
	recompile  map[RootDescriptor]map[string]struct{}
	rebuildAll bool
}

// NewFilesDelta creates an empty delta.
func NewFilesDelta() *FilesDelta {
	return &FilesDelta{recompile: make(map[RootDescriptor]map[string]struct{})}
}

// Lock acquires the delta's lock. Callers iterating the live mapping from
// sources must hold it for the whole iteration.
func (d *FilesDelta) Lock() { d.mu.Lock() }

// Unlock releases the delta's lock.
func (d *FilesDelta) Unlock() { d.mu.Unlock() }

// MarkRecompile adds file to the dirty set for rd. Idempotent. Returns true
// if the file was not already dirty.
func (d *FilesDelta) MarkRecompile(rd RootDescriptor, file string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	files := d.recompile[rd]
	if files == nil {
		files = make(map[string]struct{})
		d.recompile[rd] = files
	}
	if _, dirty := files[file]; dirty {
		return false
	}
	files[file] = struct{}{}
	return true
}

// ClearRecompile removes and returns the dirty set for rd in one atomic
// step, or nil if nothing is dirty. Marks that race with the clear either
// land in the returned slice or stay in the delta for the next cycle; none
// are dropped.
func (d *FilesDelta) ClearRecompile(rd RootDescriptor) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	files := d.recompile[rd]
	if len(files) == 0 {
		return nil
	}
	delete(d.recompile, rd)
	out := make([]string, 0, len(files))
	for f := range files {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Remove drops a single file from rd's dirty set, reporting whether it was
// present. Used when the file itself has been deleted and no longer needs
// compiling.
func (d *FilesDelta) Remove(rd RootDescriptor, file string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	files := d.recompile[rd]
	if _, dirty := files[file]; !dirty {
		return false
	}
	delete(files, file)
	if len(files) == 0 {
		delete(d.recompile, rd)
	}
	return true
}

// sources returns the live root-to-files mapping. The caller must hold the
// delta lock while reading it.
func (d *FilesDelta) sources() map[RootDescriptor]map[string]struct{} {
	return d.recompile
}

// Snapshot returns a deep copy of the dirty mapping with sorted file lists,
// safe to read without holding the lock.
func (d *FilesDelta) Snapshot() map[RootDescriptor][]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[RootDescriptor][]string, len(d.recompile))
	for rd, files := range d.recompile {
		list := make([]string, 0, len(files))
		for f := range files {
			list = append(list, f)
		}
		sort.Strings(list)
		out[rd] = list
	}
	return out
}

// IsEmpty reports whether no file is dirty and no full rebuild is pending.
func (d *FilesDelta) IsEmpty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.recompile) == 0 && !d.rebuildAll
}

// MarkRebuildAll flags that every source of this delta's target must be
// recompiled regardless of individual dirty marks.
func (d *FilesDelta) MarkRebuildAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rebuildAll = true
}

// NeedRebuildAll reports whether a full recompilation was requested.
func (d *FilesDelta) NeedRebuildAll() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rebuildAll
}

// ClearRebuildAll resets the full-recompilation flag, typically after a scan
// has re-derived per-file dirtiness from disk.
func (d *FilesDelta) ClearRebuildAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rebuildAll = false
}
