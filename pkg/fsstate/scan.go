package fsstate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ritzau/build-state/pkg/logging"
)

// ScanResult summarizes one initial scan pass over a target's roots.
type ScanResult struct {
	Scanned int // files seen on disk
	Dirty   int // files marked for recompilation
	Removed int // stale stamps dropped for files no longer on disk
}

// stampLister is implemented by stamp stores that can enumerate the files
// they track for a target. Without it the scan still works; it just cannot
// prune stamps of deleted files.
type stampLister interface {
	TargetFiles(target Target) ([]string, error)
}

// ScanTarget performs the initial scan for target if the state says one is
// still needed. Every file under the target's non-temporary roots is
// compared against its recorded stamp; a missing or different stamp marks it
// dirty. Excluded files are never marked and have any stale stamp dropped.
// Stamps for files that have disappeared from disk are removed.
//
// A successful scan also resets the target's rebuild-all flag, since
// per-file dirtiness has just been re-derived from disk.
func ScanTarget(state *BuildFSState, session *BuildSession, roots *RootSet, t Target, stamps Stamps, excludes ExcludePatterns) (ScanResult, error) {
	var res ScanResult
	if !state.MarkInitialScanPerformed(t) {
		return res, nil
	}

	var errs []error
	for _, rd := range roots.ByTarget(t) {
		if rd.IsTemp {
			continue
		}
		if err := scanRoot(state, session, rd, stamps, excludes, &res); err != nil {
			errs = append(errs, err)
		}
	}

	if lister, ok := stamps.(stampLister); ok {
		removed, err := pruneStamps(lister, stamps, t)
		res.Removed = removed
		if err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		state.Delta(t).ClearRebuildAll()
	}
	logging.Debug("initial scan finished", "target", t.Key(),
		"scanned", res.Scanned, "dirty", res.Dirty, "staleStamps", res.Removed)
	return res, errors.Join(errs...)
}

func scanRoot(state *BuildFSState, session *BuildSession, rd RootDescriptor, stamps Stamps, excludes ExcludePatterns, res *ScanResult) error {
	err := filepath.WalkDir(rd.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == rd.Root {
				// A generated-sources root may not exist before the
				// first compilation.
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		path = filepath.ToSlash(path)
		if excludes != nil && excludes.IsExcluded(path) {
			// Excluded files are never compiled, so they carry no stamp
			if stamps != nil {
				if err := stamps.RemoveStamp(path, rd.Target); err != nil {
					return err
				}
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		res.Scanned++
		mtime := info.ModTime().UnixMilli()
		if stamps != nil {
			stored, ok, err := stamps.GetStamp(path, rd.Target)
			if err != nil {
				return err
			}
			if ok && stored == mtime {
				return nil // unchanged since last successful compile
			}
		}
		res.Dirty++
		_, err = state.MarkDirty(session, path, rd, stamps)
		return err
	})
	if err != nil {
		return fmt.Errorf("scanning root %s: %w", rd.Root, err)
	}
	return nil
}

// pruneStamps removes stamps recorded for files that no longer exist. Such
// files need no recompilation, only their bookkeeping dropped.
func pruneStamps(lister stampLister, stamps Stamps, t Target) (int, error) {
	files, err := lister.TargetFiles(t)
	if err != nil {
		return 0, fmt.Errorf("listing stamps for %s: %w", t.Key(), err)
	}
	removed := 0
	var errs []error
	for _, file := range files {
		if _, err := os.Stat(file); err == nil || !os.IsNotExist(err) {
			continue
		}
		if err := stamps.RemoveStamp(file, t); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
