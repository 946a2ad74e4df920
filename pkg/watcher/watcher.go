package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ritzau/build-state/pkg/fsstate"
	"github.com/ritzau/build-state/pkg/logging"
)

// ChangeType classifies a batch of file system changes
type ChangeType int

const (
	// ChangeModified covers created and written files; both mean the file
	// needs recompiling.
	ChangeModified ChangeType = iota
	// ChangeDeleted covers removed and renamed-away files.
	ChangeDeleted
)

// ChangeEvent represents a batch of file system changes of one kind
type ChangeEvent struct {
	Type      ChangeType
	Paths     []string
	Timestamp time.Time
}

// RootWatcher watches the registered source roots for file changes and
// emits batched ChangeEvents. It is the external-notification source that
// lets the build trust incremental dirtiness after the initial scan.
type RootWatcher struct {
	watcher *fsnotify.Watcher
	roots   *fsstate.RootSet
	events  chan ChangeEvent
}

// NewRootWatcher creates a watcher over the given root set
func NewRootWatcher(roots *fsstate.RootSet) (*RootWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &RootWatcher{
		watcher: w,
		roots:   roots,
		events:  make(chan ChangeEvent, 100),
	}, nil
}

// WatchFile registers the directory containing path, so changes to that
// single file are reported even when it lies outside every source root.
// Used for the roots manifest itself.
func (rw *RootWatcher) WatchFile(path string) error {
	if err := rw.watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	return nil
}

// Start begins watching for file changes
func (rw *RootWatcher) Start(ctx context.Context) error {
	count := 0
	for _, rd := range rw.roots.Roots() {
		if rd.IsTemp {
			continue
		}
		n, err := rw.watchTree(rd.Root)
		if err != nil {
			logging.Warn("failed to watch root", "root", rd.Root, "error", err)
			continue
		}
		count += n
	}
	logging.Info("watching source roots", "directories", count)

	go rw.processEvents(ctx)
	return nil
}

// watchTree adds dir and all its subdirectories to the watcher. fsnotify is
// not recursive, so every directory is registered individually.
func (rw *RootWatcher) watchTree(dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				// Generated roots may not exist yet
				return filepath.SkipAll
			}
			return nil // skip directories we can't access
		}
		if !d.IsDir() {
			return nil
		}
		if err := rw.watcher.Add(path); err != nil {
			logging.Warn("failed to watch directory", "path", path, "error", err)
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("failed to walk root %s: %w", dir, err)
	}
	return count, nil
}

// processEvents classifies raw fsnotify events and batches them by kind
func (rw *RootWatcher) processEvents(ctx context.Context) {
	var modified []string
	var deleted []string

	flushTimer := time.NewTimer(100 * time.Millisecond)
	flushTimer.Stop()

	flush := func() {
		// Deletions go first so a delete+recreate pair within one batch
		// settles as dirty, not as gone
		if len(deleted) > 0 {
			rw.events <- ChangeEvent{Type: ChangeDeleted, Paths: deleted, Timestamp: time.Now()}
			deleted = nil
		}
		if len(modified) > 0 {
			rw.events <- ChangeEvent{Type: ChangeModified, Paths: modified, Timestamp: time.Now()}
			modified = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			rw.watcher.Close()
			close(rw.events)
			return

		case event, ok := <-rw.watcher.Events:
			if !ok {
				return
			}

			switch {
			case event.Op.Has(fsnotify.Create):
				// A new directory must be watched too; walk it to catch
				// trees moved in wholesale
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if _, err := rw.watchTree(event.Name); err != nil {
						logging.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
					continue
				}
				modified = append(modified, event.Name)
				flushTimer.Reset(100 * time.Millisecond)
			case event.Op.Has(fsnotify.Write):
				modified = append(modified, event.Name)
				flushTimer.Reset(100 * time.Millisecond)
			case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
				deleted = append(deleted, event.Name)
				flushTimer.Reset(100 * time.Millisecond)
			}

		case <-flushTimer.C:
			flush()

		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("watcher error", "error", err)
		}
	}
}

// Events returns the channel of change events
func (rw *RootWatcher) Events() <-chan ChangeEvent {
	return rw.events
}

// Stop stops the watcher. Cancelling the Start context does the same and
// additionally closes the event channel.
func (rw *RootWatcher) Stop() error {
	return rw.watcher.Close()
}
