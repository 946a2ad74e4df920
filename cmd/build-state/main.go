package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ritzau/build-state/pkg/config"
	"github.com/ritzau/build-state/pkg/fsstate"
	"github.com/ritzau/build-state/pkg/logging"
	"github.com/ritzau/build-state/pkg/output"
	"github.com/ritzau/build-state/pkg/pubsub"
	"github.com/ritzau/build-state/pkg/scope"
	"github.com/ritzau/build-state/pkg/stamps"
	"github.com/ritzau/build-state/pkg/watcher"
	"github.com/ritzau/build-state/pkg/web"
)

func main() {
	flags := pflag.NewFlagSet("build-state", pflag.ExitOnError)
	flags.String("workspace", ".", "Path to the workspace root")
	flags.String("manifest", "build-state.toml", "Roots manifest, relative to the workspace")
	flags.String("cache_dir", ".build-state", "Build cache directory for the stamp database")
	flags.Bool("no_persist", false, "Keep stamps in memory only")
	flags.Bool("always_rescan", false, "Re-derive dirtiness from disk on every run")
	flags.Bool("watch", false, "Keep running and apply filesystem notifications")
	flags.Bool("web", false, "Serve the debug HTTP API")
	flags.Int("port", 8080, "Debug server port (only used with --web)")
	flags.String("verbosity", "info", "Log level: debug, info, warn or error")
	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logging.SetLevel(parseLevel(cfg.Verbosity))

	if err := run(cfg); err != nil {
		logging.Fatal("build-state failed", "error", err)
	}
}

func run(cfg *config.Config) error {
	manifestPath := cfg.Manifest
	if !filepath.IsAbs(manifestPath) {
		manifestPath = filepath.Join(cfg.Workspace, manifestPath)
	}
	manifest, err := config.LoadManifest(manifestPath)
	if err != nil {
		return err
	}
	roots := manifest.RootSet(cfg.Workspace)
	excludes, err := scope.NewGlobExcludes(manifest.Excludes...)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	state := fsstate.NewBuildFSState(cfg.AlwaysRescan)
	session := fsstate.NewBuildSession()
	ctx := logging.WithSessionID(context.Background(), session.ID())

	// Initial scan: reconcile on-disk mtimes against recorded stamps
	for _, t := range roots.Targets() {
		res, err := fsstate.ScanTarget(state, session, roots, t, store, excludes)
		if err != nil {
			logging.WarnContext(ctx, "initial scan had errors", "target", t.Key(), "error", err)
		}
		logging.InfoContext(ctx, "scanned target",
			"target", t.Key(), "files", res.Scanned, "dirty", res.Dirty)
	}

	output.PrintDirtyReport(cfg.Workspace, state, roots)

	if !cfg.Watch && !cfg.Web {
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var server *web.Server
	if cfg.Web {
		server = web.NewServer(state, roots)
		defer server.Close()
		go func() {
			if err := server.Start(cfg.Port); err != nil {
				logging.Fatal("debug server failed", "error", err)
			}
		}()
	}

	if !cfg.Watch {
		<-ctx.Done()
		return nil
	}

	rw, err := watcher.NewRootWatcher(roots)
	if err != nil {
		return err
	}
	if err := rw.Start(ctx); err != nil {
		return err
	}
	if err := rw.WatchFile(manifestPath); err != nil {
		logging.WarnContext(ctx, "cannot watch manifest", "path", manifestPath, "error", err)
	}
	debouncer := watcher.NewDebouncer(rw.Events(),
		time.Duration(cfg.QuietMillis)*time.Millisecond,
		time.Duration(cfg.MaxWaitMs)*time.Millisecond)
	debouncer.Start(ctx)

	for ev := range debouncer.Output() {
		if batchTouches(ev.Paths, manifestPath) {
			// The project model itself changed; per-file bookkeeping can no
			// longer be trusted
			state.MarkAllTargetsDirty(roots.Targets()...)
			logging.InfoContext(ctx, "manifest changed, flagging full rebuild",
				"manifest", manifestPath)
		}
		res, err := watcher.Apply(state, session, roots, store, excludes, ev)
		if err != nil {
			logging.WarnContext(ctx, "change batch applied with errors", "error", err)
		}
		if server != nil {
			server.PublishChangeBatch(pubsub.ChangeBatch{
				Kind:    changeKind(ev.Type),
				Paths:   ev.Paths,
				Marked:  res.Marked,
				Removed: res.Removed,
			})
		}
	}
	return nil
}

func openStore(cfg *config.Config) (fsstate.Stamps, func(), error) {
	if cfg.NoPersist {
		return stamps.NewMemoryStore(), func() {}, nil
	}
	dbPath := filepath.Join(cfg.CacheDir, "stamps.db")
	store, err := stamps.OpenSQLite(dbPath)
	if err != nil {
		return nil, nil, err
	}
	logging.Debug("opened stamp store", "path", dbPath)
	return store, func() { store.Close() }, nil
}

func batchTouches(paths []string, target string) bool {
	for _, p := range paths {
		if filepath.Clean(p) == filepath.Clean(target) {
			return true
		}
	}
	return false
}

func changeKind(t watcher.ChangeType) string {
	if t == watcher.ChangeDeleted {
		return "deleted"
	}
	return "modified"
}

func parseLevel(verbosity string) slog.Level {
	switch verbosity {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
