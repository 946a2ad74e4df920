package fsstate

import (
	"fmt"
	"os"
	"sync"
)

// FSState tracks, per target, which files need recompiling and whether the
// initial directory scan has already run in this session. It exclusively
// owns the per-target deltas; deltas are created lazily, so querying a
// target nothing was recorded for simply reads as "nothing dirty".
//
// FSState lives for one build session. ClearAll resets it for a full
// rebuild.
type FSState struct {
	mu      sync.Mutex
	deltas  map[Target]*FilesDelta
	scanned map[Target]struct{}
}

// NewFSState creates an empty file-system state.
func NewFSState() *FSState {
	return &FSState{
		deltas:  make(map[Target]*FilesDelta),
		scanned: make(map[Target]struct{}),
	}
}

// Delta returns the target's files delta, creating an empty one on first
// use.
func (s *FSState) Delta(t Target) *FilesDelta {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.deltas[t]
	if d == nil {
		d = NewFilesDelta()
		s.deltas[t] = d
	}
	return d
}

// MarkInitialScanPerformed records that the initial scan for target has run
// and reports whether a scan is still needed, i.e. true exactly on the first
// call per target. After that the state trusts incremental change
// notifications.
func (s *FSState) MarkInitialScanPerformed(t Target) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.scanned[t]; done {
		return false
	}
	s.scanned[t] = struct{}{}
	return true
}

// SourcesToRecompile returns a snapshot of the target's dirty mapping, root
// to sorted file list.
func (s *FSState) SourcesToRecompile(t Target) map[RootDescriptor][]string {
	return s.Delta(t).Snapshot()
}

// MarkDirty records file as needing recompilation under root rd. On a fresh
// mark the stored stamp is dropped, so an interrupted build still sees the
// file as stale.
func (s *FSState) MarkDirty(file string, rd RootDescriptor, stamps Stamps) (MarkResult, error) {
	res := AlreadyDirty
	if s.Delta(rd.Target).MarkRecompile(rd, file) {
		res = MarkedDirty
	}
	if res == MarkedDirty && stamps != nil {
		if err := stamps.RemoveStamp(file, rd.Target); err != nil {
			return res, fmt.Errorf("removing stamp for %s: %w", file, err)
		}
	}
	return res, nil
}

// MarkDirtyIfNotDeleted is MarkDirty guarded by an existence probe: a file
// that is already gone must not re-enter the dirty set.
func (s *FSState) MarkDirtyIfNotDeleted(file string, rd RootDescriptor, stamps Stamps) (MarkResult, error) {
	if _, err := os.Stat(file); err != nil {
		if !os.IsNotExist(err) {
			return SkippedDeleted, fmt.Errorf("probing %s: %w", file, err)
		}
		return SkippedDeleted, nil
	}
	return s.MarkDirty(file, rd, stamps)
}

// MarkAllTargetsDirty flags a full recompilation for each given target,
// e.g. after the roots manifest itself changed. Per-file marks stay; the
// flag is cleared by the next scan.
func (s *FSState) MarkAllTargetsDirty(targets ...Target) {
	for _, t := range targets {
		s.Delta(t).MarkRebuildAll()
	}
}

// Targets returns the targets a delta exists for.
func (s *FSState) Targets() []Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Target, 0, len(s.deltas))
	for t := range s.deltas {
		out = append(out, t)
	}
	return out
}

// ClearAll drops every target's delta and scan flag. Used for full
// invalidation ("rebuild all").
func (s *FSState) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltas = make(map[Target]*FilesDelta)
	s.scanned = make(map[Target]struct{})
}
