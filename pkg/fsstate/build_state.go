package fsstate

import (
	"errors"
	"fmt"
	"os"

	"github.com/ritzau/build-state/pkg/logging"
)

// BuildFSState adds round awareness to FSState. During a multi-round chunk
// build (code generation feeding sources back into the same build), each
// round must see exactly what the previous round dirtied, not the whole
// historical backlog; BuildFSState keeps that round-scoped view on the
// BuildSession passed to every call.
//
// It composes FSState rather than specializing it: the embedded state keeps
// the persistent per-target deltas, and the session holds the optional round
// pair.
type BuildFSState struct {
	*FSState

	// When true, every build re-derives dirtiness by scanning the
	// filesystem and comparing stamps. When false, the first scan is
	// trusted and later dirtiness comes from external change
	// notifications. Environments that cannot trust notifications
	// (case-insensitive filesystems, external generators) set this.
	alwaysScanFS bool
}

// NewBuildFSState creates a round-aware file-system state.
func NewBuildFSState(alwaysScanFS bool) *BuildFSState {
	return &BuildFSState{FSState: NewFSState(), alwaysScanFS: alwaysScanFS}
}

// MarkInitialScanPerformed reports whether target still needs its initial
// scan. In always-rescan mode every call reports true, forcing a fresh
// directory walk each build.
func (s *BuildFSState) MarkInitialScanPerformed(t Target) bool {
	if s.alwaysScanFS {
		return true
	}
	return s.FSState.MarkInitialScanPerformed(t)
}

// readDelta picks the delta the next compilation round should read: the
// last round's delta when one exists for this session, else the target's
// persistent delta.
func (s *BuildFSState) readDelta(session *BuildSession, t Target) *FilesDelta {
	if session != nil {
		if last := session.lastRoundDelta(); last != nil {
			return last
		}
	}
	return s.Delta(t)
}

// SourcesToRecompile returns a snapshot of what the current round must
// recompile for target: the previous round's marks when a round is active,
// otherwise the persistent dirty set.
func (s *BuildFSState) SourcesToRecompile(session *BuildSession, t Target) map[RootDescriptor][]string {
	return s.readDelta(session, t).Snapshot()
}

// MarkDirty records file as dirty in the persistent delta and, when a round
// is active and rd's target belongs to the chunk being built, in the current
// round delta as well. Marks for targets outside the chunk never leak into
// round accounting.
func (s *BuildFSState) MarkDirty(session *BuildSession, file string, rd RootDescriptor, stamps Stamps) (MarkResult, error) {
	s.recordRoundMark(session, file, rd)
	return s.FSState.MarkDirty(file, rd, stamps)
}

// MarkDirtyIfNotDeleted is MarkDirty guarded by an existence probe; the
// round delta records the mark only when it was actually applied.
func (s *BuildFSState) MarkDirtyIfNotDeleted(session *BuildSession, file string, rd RootDescriptor, stamps Stamps) (MarkResult, error) {
	res, err := s.FSState.MarkDirtyIfNotDeleted(file, rd, stamps)
	if res.Applied() {
		s.recordRoundMark(session, file, rd)
	}
	return res, err
}

func (s *BuildFSState) recordRoundMark(session *BuildSession, file string, rd RootDescriptor) {
	if session == nil || !session.inContextTargets(rd.Target) {
		return
	}
	if round := session.currentRoundDelta(); round != nil {
		round.MarkRecompile(rd, file)
	}
}

// BeforeChunkBuildStart scopes the session to the chunk's targets. Round
// marks are recorded only for these targets until the chunk finishes.
func (s *BuildFSState) BeforeChunkBuildStart(session *BuildSession, chunk Chunk) {
	session.setContextTargets(chunk.Targets)
	logging.Debug("chunk build starting", "session", session.ID(), "chunk", chunk.Name)
}

// BeforeNextRoundStart rotates the session's round deltas: the current delta
// becomes the last-round view and a fresh current delta starts collecting.
// Must run on the goroutine driving this chunk's build.
func (s *BuildFSState) BeforeNextRoundStart(session *BuildSession) {
	session.rotateRounds()
}

// ClearContextRoundData drops both round deltas. Called when the chunk build
// finishes, successfully or not, so no round residue leaks into the next
// chunk.
func (s *BuildFSState) ClearContextRoundData(session *BuildSession) {
	if session != nil {
		session.clearRounds()
	}
}

// ClearContextChunk resets the session's chunk target scope.
func (s *BuildFSState) ClearContextChunk(session *BuildSession) {
	if session != nil {
		session.setContextTargets(nil)
	}
}

// ClearAll drops all per-target state plus any round data held by session.
func (s *BuildFSState) ClearAll(session *BuildSession) {
	s.ClearContextRoundData(session)
	s.ClearContextChunk(session)
	s.FSState.ClearAll()
}

// ProcessFilesToRecompile iterates the current dirty mapping for target,
// skipping files outside scope or matched by excludes, and invokes visit for
// the rest. Returns false if the visitor stopped the iteration early;
// unvisited files remain dirty. The delta's lock is held for the whole
// iteration, so the view is consistent; concurrent marks block briefly and
// land in the delta afterwards.
//
// The visitor must not mark files of the same delta dirty, or it will
// deadlock on the delta lock.
func (s *BuildFSState) ProcessFilesToRecompile(session *BuildSession, t Target, scope CompileScope, excludes ExcludePatterns, visit FileVisitor) bool {
	delta := s.readDelta(session, t)
	delta.Lock()
	defer delta.Unlock()
	for rd, files := range delta.sources() {
		rootPath := rd.RootID()
		for file := range files {
			if scope != nil && !scope.IsAffected(t, file) {
				continue
			}
			if excludes != nil && excludes.IsExcluded(file) {
				continue
			}
			if !visit(t, file, rootPath) {
				return false
			}
		}
	}
	return true
}

// MarkAllUpToDate reconciles rd's dirty set after its files were compiled.
// For each file atomically cleared from the set:
//
//   - excluded files get their stamp removed and stay out of the dirty set;
//   - files outside the compile scope were not compiled this time and are
//     re-marked dirty without a stamp;
//   - files whose on-disk mtime now exceeds compilationStart changed again
//     while the compiler ran; unless rd is a generated-sources root they are
//     re-marked dirty instead of stamped, since the artifact may no longer
//     match the source;
//   - everything else gets its current mtime persisted as "up to date".
//
// A stat or stamp failure re-marks that file dirty and does not stop the
// rest of the batch; the failures come back joined. Returns true iff at
// least one file was newly stamped up to date.
func (s *BuildFSState) MarkAllUpToDate(scope CompileScope, excludes ExcludePatterns, rd RootDescriptor, stamps Stamps, compilationStart int64) (bool, error) {
	delta := s.Delta(rd.Target)
	files := delta.ClearRecompile(rd)
	marked := false
	var errs []error
	for _, file := range files {
		if excludes != nil && excludes.IsExcluded(file) {
			if err := stamps.RemoveStamp(file, rd.Target); err != nil {
				delta.MarkRecompile(rd, file)
				errs = append(errs, fmt.Errorf("removing stamp for %s: %w", file, err))
			}
			continue
		}
		if scope != nil && !scope.IsAffected(rd.Target, file) {
			logging.Debug("outside compile scope, keeping dirty", "file", file)
			delta.MarkRecompile(rd, file)
			continue
		}
		info, err := os.Stat(file)
		if err != nil {
			delta.MarkRecompile(rd, file)
			errs = append(errs, fmt.Errorf("probing %s: %w", file, err))
			continue
		}
		stamp := info.ModTime().UnixMilli()
		if !rd.IsGenerated && stamp > compilationStart {
			// Touched again after compilation started; the compiled
			// output may not reflect the current content.
			logging.Debug("modified after compilation started, keeping dirty", "file", file)
			delta.MarkRecompile(rd, file)
			continue
		}
		if err := stamps.SaveStamp(file, rd.Target, stamp); err != nil {
			delta.MarkRecompile(rd, file)
			errs = append(errs, fmt.Errorf("saving stamp for %s: %w", file, err))
			continue
		}
		marked = true
	}
	return marked, errors.Join(errs...)
}
