package watcher

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ritzau/build-state/pkg/fsstate"
	"github.com/ritzau/build-state/pkg/logging"
)

// ApplyResult describes how a change batch affected the build state
type ApplyResult struct {
	Marked  int // files marked dirty
	Removed int // deleted files cleared from dirty sets
	Ignored int // paths outside every registered root
}

// Apply routes one batch of filesystem changes into the build state. Each
// path is attributed to the most specific root containing it; paths outside
// every root or matching an exclude pattern are ignored. Modified files are
// marked dirty (unless already gone again), deleted files are cleared from
// the dirty set and their stamps dropped.
//
// Per-path failures are collected and do not stop the rest of the batch.
func Apply(state *fsstate.BuildFSState, session *fsstate.BuildSession, roots *fsstate.RootSet, stamps fsstate.Stamps, excludes fsstate.ExcludePatterns, ev ChangeEvent) (ApplyResult, error) {
	var res ApplyResult
	var errs []error

	for _, path := range ev.Paths {
		// Normalized like the scan records them, so delta and stamp keys
		// line up across notification sources
		path = filepath.ToSlash(path)
		rd, ok := roots.FindRoot(path)
		if !ok {
			res.Ignored++
			continue
		}

		switch ev.Type {
		case ChangeModified:
			if excludes != nil && excludes.IsExcluded(path) {
				res.Ignored++
				continue
			}
			mark, err := state.MarkDirtyIfNotDeleted(session, path, rd, stamps)
			if err != nil {
				errs = append(errs, fmt.Errorf("marking %s: %w", path, err))
				continue
			}
			if mark == fsstate.MarkedDirty {
				res.Marked++
			}

		case ChangeDeleted:
			// The file no longer needs compiling; drop its dirty mark and
			// its stamp
			if state.Delta(rd.Target).Remove(rd, path) {
				res.Removed++
			}
			if stamps != nil {
				if err := stamps.RemoveStamp(path, rd.Target); err != nil {
					errs = append(errs, fmt.Errorf("removing stamp for %s: %w", path, err))
				}
			}
		}
	}

	logging.Debug("applied change batch",
		"marked", res.Marked, "removed", res.Removed, "ignored", res.Ignored)
	return res, errors.Join(errs...)
}
