package index

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/brindle-dev/codalex/internal/scanner"
)

// Checkpoint is the lightweight progress marker IndexRepository persists in
// the store's meta table while a batch is in flight (SPEC_FULL.md
// "Resumable/checkpointed indexing"), so a crashed or cancelled reindex
// leaves its partial progress readable through GetCheckpoint instead of
// silently losing state; get_status does not read it. It is not a wire response shape — it backs an
// ambient resilience feature, not a sixth tool operation.
type Checkpoint struct {
	Stage string `json:"stage"`
	Total int    `json:"total"`
	Done  int    `json:"done"`
}

func checkpointKey(repositoryID string) string {
	return "checkpoint:" + repositoryID
}

// GetCheckpoint returns the last checkpoint persisted for repositoryID, if
// any (a finished reindex overwrites its checkpoint with Stage "done").
func GetCheckpoint(ctx context.Context, s interface {
	GetState(ctx context.Context, key string) (string, bool, error)
}, repositoryID string) (Checkpoint, bool, error) {
	raw, found, err := s.GetState(ctx, checkpointKey(repositoryID))
	if err != nil || !found {
		return Checkpoint{}, false, err
	}
	var cp Checkpoint
	if err := json.Unmarshal([]byte(raw), &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("decode checkpoint: %w", err)
	}
	return cp, true, nil
}

func (e *Engine) setCheckpoint(ctx context.Context, repositoryID string, cp Checkpoint) {
	raw, err := json.Marshal(cp)
	if err != nil {
		return
	}
	txn, err := e.deps.Store.BeginWrite(ctx)
	if err != nil {
		return
	}
	if err := e.deps.Store.SetState(ctx, txn, checkpointKey(repositoryID), string(raw)); err != nil {
		_ = e.deps.Store.Abort(txn)
		return
	}
	_ = e.deps.Store.Commit(txn)
}

func (e *Engine) clearCheckpoint(ctx context.Context, repositoryID string) {
	e.setCheckpoint(ctx, repositoryID, Checkpoint{Stage: "done"})
}

// IndexRepository enumerates repoRoot's working tree (respecting ignore
// patterns), reconciles it against the store, and deletes rows for paths
// no longer present on disk (spec.md §4.4 "Reconciliation"). The pool reads
// and parses files in parallel; commits are serialized by the store's
// single-writer transaction (spec.md §4.4 "Concurrency").
func (e *Engine) IndexRepository(ctx context.Context, repositoryID, repoRoot string, opts IndexOptions) (*BatchResult, error) {
	e.setCheckpoint(ctx, repositoryID, Checkpoint{Stage: "scan"})

	s, err := scanner.New()
	if err != nil {
		return nil, fmt.Errorf("new scanner: %w", err)
	}
	results, err := s.Scan(ctx, &scanner.ScanOptions{
		RootDir:          repoRoot,
		RespectGitignore: true,
		Workers:          e.cfg.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	onDisk := make(map[string]bool)
	var paths []string
	for res := range results {
		if res.Error != nil {
			continue
		}
		if len(opts.Paths) > 0 && !containsPath(opts.Paths, res.File.Path) {
			continue
		}
		onDisk[res.File.Path] = true
		paths = append(paths, res.File.Path)
	}

	e.setCheckpoint(ctx, repositoryID, Checkpoint{Stage: "index", Total: len(paths)})

	result := &BatchResult{}
	resultCh := make(chan FileOutcome, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, e.cfg.Workers)
	for _, relPath := range paths {
		relPath := relPath
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			abs := filepath.Join(repoRoot, filepath.FromSlash(relPath))
			resultCh <- e.IndexFile(gctx, repositoryID, repoRoot, abs, opts.Force)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(resultCh)
	}()
	const checkpointStride = 25
	done := 0
	for o := range resultCh {
		result.record(o)
		done++
		if done%checkpointStride == 0 {
			e.setCheckpoint(ctx, repositoryID, Checkpoint{Stage: "index", Total: len(paths), Done: done})
		}
	}

	if len(opts.Paths) == 0 {
		if err := e.deleteMissing(ctx, repositoryID, onDisk); err != nil {
			return result, err
		}
	}

	e.clearCheckpoint(ctx, repositoryID)
	return result, nil
}

// deleteMissing removes store rows (and vectors) for any File no longer
// present on disk.
func (e *Engine) deleteMissing(ctx context.Context, repositoryID string, onDisk map[string]bool) error {
	iter, err := e.deps.Store.IterateRepositoryFiles(ctx, repositoryID)
	if err != nil {
		return fmt.Errorf("iterate repository files: %w", err)
	}
	defer iter.Close()

	var stale []string
	for {
		f, ok, err := iter.Next()
		if err != nil {
			return fmt.Errorf("iterate: %w", err)
		}
		if !ok {
			break
		}
		if !onDisk[f.RelativePath] {
			stale = append(stale, f.RelativePath)
		}
	}

	for _, relPath := range stale {
		txn, err := e.deps.Store.BeginWrite(ctx)
		if err != nil {
			return fmt.Errorf("begin write: %w", err)
		}
		if err := e.deps.Store.DeleteFile(ctx, txn, repositoryID, relPath); err != nil {
			_ = e.deps.Store.Abort(txn)
			return fmt.Errorf("delete file: %w", err)
		}
		if err := e.deps.Store.Commit(txn); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		if e.deps.Vectors != nil {
			if err := e.deps.Vectors.HandleDelete(ctx, repositoryID, relPath); err != nil {
				return fmt.Errorf("delete vectors: %w", err)
			}
		}
	}
	return nil
}

func containsPath(paths []string, p string) bool {
	for _, candidate := range paths {
		if candidate == p {
			return true
		}
	}
	return false
}
