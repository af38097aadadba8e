// Package main provides codalexd, the long-running counterpart to the
// codalex CLI: it opens a repository once, watches it for changes, keeps
// the index reconciled in the background, and serves the same five MCP
// tool operations the one-shot CLI exposes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/brindle-dev/codalex/internal/bootstrap"
	"github.com/brindle-dev/codalex/internal/facade"
	"github.com/brindle-dev/codalex/internal/index"
	"github.com/brindle-dev/codalex/internal/logging"
	"github.com/brindle-dev/codalex/internal/watcher"
)

func main() {
	dir := flag.String("dir", ".", "repository directory to serve")
	debug := flag.Bool("debug", false, "enable debug logging to ~/.codalex/logs/")
	flag.Parse()

	// codalexd always ends up serving facade.Server over stdio (see the
	// errgroup wiring below), so its logging must never touch stdout or
	// stderr the way the plain CLI's debug mode does.
	level := "info"
	if *debug {
		level = "debug"
	}
	cleanup, err := logging.SetupMCPModeWithLevel(level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "setup logging:", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *dir); err != nil {
		slog.Error("codalexd exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, dir string) error {
	app, err := bootstrap.Open(ctx, dir)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	defer func() { _ = app.Close() }()

	slog.Info("indexing repository", slog.String("root", app.RepoRoot))
	if _, err := app.Index.IndexRepository(ctx, app.RepositoryID, app.RepoRoot, index.IndexOptions{}); err != nil {
		return fmt.Errorf("initial index: %w", err)
	}

	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	if err := w.Start(ctx, app.RepoRoot); err != nil {
		return fmt.Errorf("watch repository: %w", err)
	}
	defer func() { _ = w.Stop() }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reconcile(gctx, app, w)
		return nil
	})
	g.Go(func() error {
		return facade.NewServer(app.Facade).Serve(gctx)
	})

	return g.Wait()
}

// reconcile drains the watcher's debounced event batches and reindexes
// the affected paths, restricting each call to the files the batch named
// rather than rescanning the whole repository (spec.md §4.8's reason for
// debouncing in the first place). OpRename events go through
// Engine.HandleRename so a pure rename (P8: same content hash) costs zero
// parser and zero embedding-provider calls instead of a full rescan.
func reconcile(ctx context.Context, app *bootstrap.App, w *watcher.HybridWatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-w.Events():
			if !ok {
				return
			}
			// IndexRepository only runs deleteMissing (dropping store rows
			// for files gone from disk) when Paths is empty, so any plain
			// delete in this batch forces a full reconciliation instead of
			// the narrower per-path update. Renames are handled directly
			// below and excluded from both the full-reconcile trigger and
			// the restricted-path list.
			opts := index.IndexOptions{}
			needsFull := false
			paths := make([]string, 0, len(batch))
			for _, ev := range batch {
				if ev.Operation == watcher.OpRename {
					abs := filepath.Join(app.RepoRoot, filepath.FromSlash(ev.Path))
					if _, err := app.Index.HandleRename(ctx, app.RepositoryID, app.RepoRoot, abs, ev.OldPath); err != nil {
						slog.Error("handle rename", slog.String("old", ev.OldPath), slog.String("new", ev.Path), slog.String("error", err.Error()))
					}
					continue
				}
				if ev.Operation == watcher.OpDelete {
					needsFull = true
				}
				paths = append(paths, ev.Path)
			}
			if !needsFull {
				opts.Paths = paths
			}
			if len(paths) > 0 || needsFull {
				if _, err := app.Index.IndexRepository(ctx, app.RepositoryID, app.RepoRoot, opts); err != nil {
					slog.Error("reindex after change", slog.String("error", err.Error()))
				}
			}
		case err, ok := <-w.Errors():
			if !ok {
				continue
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}
