package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/brindle-dev/codalex/internal/chunk"
	"github.com/brindle-dev/codalex/internal/identity"
	"github.com/brindle-dev/codalex/internal/plugin"
	"github.com/brindle-dev/codalex/internal/store"
)

// Engine drives files-on-disk → storage with at-most-once semantics per
// content (spec.md §4.4).
type Engine struct {
	deps Deps
	cfg  Config
}

// New builds an Engine. Deps.Store, Deps.Plugins and Deps.Hashes are
// required; Deps.Vectors and Deps.Ignore are optional.
func New(deps Deps, cfg Config) *Engine {
	return &Engine{deps: deps, cfg: cfg.withDefaults()}
}

// IndexFile runs the 8-step per-file algorithm of spec.md §4.4 for one
// on-disk path. repoRoot is the repository's absolute root; absPath is the
// file's absolute path (may be outside repoRoot, in which case it errors
// with OutsidePathError via identity.Resolve).
func (e *Engine) IndexFile(ctx context.Context, repositoryID, repoRoot, absPath string, force bool) FileOutcome {
	relativePath, err := identity.Resolve(repoRoot, absPath)
	if err != nil {
		return FileOutcome{RelativePath: absPath, Status: StatusErrored, Err: err}
	}
	outcome := FileOutcome{RelativePath: relativePath}

	// Step 1: ignore patterns.
	if e.deps.Ignore != nil && e.deps.Ignore.Match(relativePath, false) {
		outcome.Status = StatusSkipped
		outcome.Reason = "ignored"
		return outcome
	}

	// Step 2: stat fast path.
	stat, err := identity.Stat(absPath)
	if err != nil {
		outcome.Status = StatusErrored
		outcome.Err = fmt.Errorf("stat: %w", err)
		return outcome
	}
	if stat.Size > e.cfg.MaxFileSize {
		outcome.Status = StatusSkipped
		outcome.Reason = "too_large"
		return outcome
	}

	existing, found, err := e.deps.Store.GetFile(ctx, repositoryID, relativePath)
	if err != nil {
		outcome.Status = StatusErrored
		outcome.Err = fmt.Errorf("get file: %w", err)
		return outcome
	}

	// Step 3: unchanged (size, mtime) fast path.
	if found && !force {
		prior := identity.FileStat{Size: existing.Size, MtimeNs: existing.MtimeNs}
		if prior.Unchanged(stat) {
			outcome.Status = StatusUnchanged
			return outcome
		}
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		outcome.Status = StatusErrored
		outcome.Err = fmt.Errorf("read: %w", err)
		return outcome
	}

	// Step 4: content-hash fast path.
	contentHash, err := e.deps.Hashes.ContentHash(absPath)
	if err != nil {
		outcome.Status = StatusErrored
		outcome.Err = fmt.Errorf("hash: %w", err)
		return outcome
	}
	if found && existing.ContentHash == contentHash {
		txn, err := e.deps.Store.BeginWrite(ctx)
		if err != nil {
			outcome.Status = StatusErrored
			outcome.Err = fmt.Errorf("begin write: %w", err)
			return outcome
		}
		if err := e.deps.Store.TouchFile(ctx, txn, existing.ID, stat.Size, stat.MtimeNs); err != nil {
			_ = e.deps.Store.Abort(txn)
			outcome.Status = StatusErrored
			outcome.Err = err
			return outcome
		}
		if err := e.deps.Store.Commit(txn); err != nil {
			outcome.Status = StatusErrored
			outcome.Err = err
			return outcome
		}
		outcome.Status = StatusUnchanged
		return outcome
	}

	// Steps 5-6: plugin selection, parse under a wall-clock bound with a
	// fallback demotion on timeout.
	result, language, indexErr := e.parse(ctx, relativePath, content)

	// Step 7: transactional upsert + FTS + symbols.
	file := store.File{
		RepositoryID: repositoryID,
		RelativePath: relativePath,
		ContentHash:  contentHash,
		Language:     language,
		Size:         stat.Size,
		MtimeNs:      stat.MtimeNs,
		IndexError:   indexErr,
	}

	var previousChunks map[int]store.ChunkRecord
	if found && e.deps.Vectors != nil {
		previousChunks, _ = e.deps.Store.ChunkRecords(ctx, existing.ID)
	}

	txn, err := e.deps.Store.BeginWrite(ctx)
	if err != nil {
		outcome.Status = StatusErrored
		outcome.Err = fmt.Errorf("begin write: %w", err)
		return outcome
	}
	fileID, err := e.deps.Store.UpsertFile(ctx, txn, file)
	if err != nil {
		_ = e.deps.Store.Abort(txn)
		outcome.Status = StatusErrored
		outcome.Err = fmt.Errorf("upsert file: %w", err)
		return outcome
	}
	if err := e.deps.Store.ReplaceFTSDocument(ctx, txn, fileID, string(content), store.FTSCode); err != nil {
		_ = e.deps.Store.Abort(txn)
		outcome.Status = StatusErrored
		outcome.Err = fmt.Errorf("replace code fts: %w", err)
		return outcome
	}
	if err := e.deps.Store.ReplaceFTSDocument(ctx, txn, fileID, symbolDocument(result.Symbols), store.FTSSymbol); err != nil {
		_ = e.deps.Store.Abort(txn)
		outcome.Status = StatusErrored
		outcome.Err = fmt.Errorf("replace symbol fts: %w", err)
		return outcome
	}
	if err := e.deps.Store.InsertSymbols(ctx, txn, fileID, result.Symbols); err != nil {
		_ = e.deps.Store.Abort(txn)
		outcome.Status = StatusErrored
		outcome.Err = fmt.Errorf("insert symbols: %w", err)
		return outcome
	}
	if err := e.deps.Store.Commit(txn); err != nil {
		outcome.Status = StatusErrored
		outcome.Err = fmt.Errorf("commit: %w", err)
		return outcome
	}

	// Step 8: enqueue chunks for embedding, outside the metadata
	// transaction since it may call a network provider.
	if e.deps.Vectors != nil {
		if err := e.embed(ctx, repositoryID, fileID, file, content, previousChunks); err != nil {
			outcome.Status = StatusIndexed
			outcome.Reason = "embed_error"
			outcome.Err = err
			return outcome
		}
	}

	outcome.Status = StatusIndexed
	if indexErr != "" {
		outcome.Reason = indexErr
	}
	return outcome
}

// HandleRename implements spec.md §4.8's move contract and P8: if
// newAbsPath's content hash equals the hash stored for oldRelativePath, it
// performs an in-place rename in storage and moves the existing vectors
// without re-parsing or re-embedding. Otherwise it falls back to deleting
// the old row and indexing the new path fresh, the "otherwise treat as
// delete(old) + create(new)" branch of §4.8.
func (e *Engine) HandleRename(ctx context.Context, repositoryID, repoRoot, newAbsPath, oldRelativePath string) (FileOutcome, error) {
	newRelativePath, err := identity.Resolve(repoRoot, newAbsPath)
	if err != nil {
		return FileOutcome{RelativePath: newAbsPath, Status: StatusErrored, Err: err}, err
	}

	existing, found, err := e.deps.Store.GetFile(ctx, repositoryID, oldRelativePath)
	if err != nil || !found {
		outcome := e.IndexFile(ctx, repositoryID, repoRoot, newAbsPath, false)
		return outcome, outcome.Err
	}

	newHash, err := e.deps.Hashes.ContentHash(newAbsPath)
	if err != nil {
		return FileOutcome{RelativePath: newRelativePath, Status: StatusErrored, Err: err}, err
	}
	if newHash != existing.ContentHash {
		if delErr := e.deleteTxn(ctx, repositoryID, oldRelativePath); delErr != nil {
			return FileOutcome{RelativePath: newRelativePath, Status: StatusErrored, Err: delErr}, delErr
		}
		if e.deps.Vectors != nil {
			_ = e.deps.Vectors.HandleDelete(ctx, repositoryID, oldRelativePath)
		}
		outcome := e.IndexFile(ctx, repositoryID, repoRoot, newAbsPath, false)
		return outcome, outcome.Err
	}

	stat, err := identity.Stat(newAbsPath)
	if err != nil {
		return FileOutcome{RelativePath: newRelativePath, Status: StatusErrored, Err: err}, err
	}

	txn, err := e.deps.Store.BeginWrite(ctx)
	if err != nil {
		return FileOutcome{RelativePath: newRelativePath, Status: StatusErrored, Err: err}, err
	}
	if err := e.deps.Store.RenameFile(ctx, txn, repositoryID, oldRelativePath, newRelativePath); err != nil {
		_ = e.deps.Store.Abort(txn)
		return FileOutcome{RelativePath: newRelativePath, Status: StatusErrored, Err: err}, err
	}
	if err := e.deps.Store.TouchFile(ctx, txn, existing.ID, stat.Size, stat.MtimeNs); err != nil {
		_ = e.deps.Store.Abort(txn)
		return FileOutcome{RelativePath: newRelativePath, Status: StatusErrored, Err: err}, err
	}
	if err := e.deps.Store.Commit(txn); err != nil {
		return FileOutcome{RelativePath: newRelativePath, Status: StatusErrored, Err: err}, err
	}

	if e.deps.Vectors != nil {
		previous, err := e.deps.Store.ChunkRecords(ctx, existing.ID)
		if err != nil {
			return FileOutcome{RelativePath: newRelativePath, Status: StatusIndexed, Reason: "embed_error", Err: err}, nil
		}
		records, err := e.deps.Vectors.HandleMove(ctx, repositoryID, oldRelativePath, newRelativePath, previous)
		if err != nil {
			return FileOutcome{RelativePath: newRelativePath, Status: StatusIndexed, Reason: "embed_error", Err: err}, nil
		}
		chunkTxn, err := e.deps.Store.BeginWrite(ctx)
		if err != nil {
			return FileOutcome{RelativePath: newRelativePath, Status: StatusIndexed, Reason: "embed_error", Err: err}, nil
		}
		if err := e.deps.Store.ReplaceChunkRecords(ctx, chunkTxn, existing.ID, records); err != nil {
			_ = e.deps.Store.Abort(chunkTxn)
			return FileOutcome{RelativePath: newRelativePath, Status: StatusIndexed, Reason: "embed_error", Err: err}, nil
		}
		if err := e.deps.Store.Commit(chunkTxn); err != nil {
			return FileOutcome{RelativePath: newRelativePath, Status: StatusIndexed, Reason: "embed_error", Err: err}, nil
		}
	}

	return FileOutcome{RelativePath: newRelativePath, Status: StatusIndexed}, nil
}

func (e *Engine) deleteTxn(ctx context.Context, repositoryID, relativePath string) error {
	txn, err := e.deps.Store.BeginWrite(ctx)
	if err != nil {
		return err
	}
	if err := e.deps.Store.DeleteFile(ctx, txn, repositoryID, relativePath); err != nil {
		_ = e.deps.Store.Abort(txn)
		return err
	}
	return e.deps.Store.Commit(txn)
}

func (e *Engine) embed(ctx context.Context, repositoryID string, fileID int64, file store.File, content []byte, previous map[int]store.ChunkRecord) error {
	chunks := chunk.Split(file.RelativePath, content, e.deps.ChunkOpts)
	file.ID = fileID
	records, err := e.deps.Vectors.IndexChunks(ctx, repositoryID, file, chunks, previous)
	if err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}
	txn, err := e.deps.Store.BeginWrite(ctx)
	if err != nil {
		return fmt.Errorf("begin write: %w", err)
	}
	if err := e.deps.Store.ReplaceChunkRecords(ctx, txn, fileID, records); err != nil {
		_ = e.deps.Store.Abort(txn)
		return fmt.Errorf("replace chunk records: %w", err)
	}
	return e.deps.Store.Commit(txn)
}

// parse selects a plugin via the registry and parses content under
// ParseTimeout, demoting to the generic fallback on a first timeout and
// recording index_error=timeout if the fallback also times out (spec.md
// §4.4 step 6).
func (e *Engine) parse(ctx context.Context, relativePath string, content []byte) (plugin.ParseResult, string, string) {
	p, err := e.deps.Plugins.Get(ctx, relativePath)
	if err != nil || p == nil {
		p = e.deps.Plugins.Fallback()
	}

	result, timedOut := e.parseWithTimeout(ctx, p, relativePath, content)
	if !timedOut {
		return result, p.LanguageTag(), ""
	}

	fallback := e.deps.Plugins.Fallback()
	if fallback == p {
		return plugin.ParseResult{}, p.LanguageTag(), "timeout"
	}
	result, timedOut = e.parseWithTimeout(ctx, fallback, relativePath, content)
	if timedOut {
		return plugin.ParseResult{}, fallback.LanguageTag(), "timeout"
	}
	return result, fallback.LanguageTag(), ""
}

func (e *Engine) parseWithTimeout(ctx context.Context, p plugin.Plugin, relativePath string, content []byte) (plugin.ParseResult, bool) {
	parseCtx, cancel := context.WithTimeout(ctx, e.cfg.ParseTimeout)
	defer cancel()

	type result struct {
		res plugin.ParseResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- result{err: fmt.Errorf("plugin %q parse panicked: %v", p.LanguageTag(), rec)}
			}
		}()
		res, err := p.Parse(parseCtx, content, relativePath)
		done <- result{res: res, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return plugin.ParseResult{}, errors.Is(r.err, context.DeadlineExceeded)
		}
		return r.res, false
	case <-parseCtx.Done():
		return plugin.ParseResult{}, true
	}
}

// symbolDocument builds the fts_symbol searchable text blob: each symbol's
// name, signature and enclosing scope, one per line (spec.md §3 "FTS
// Posting").
func symbolDocument(symbols []store.Symbol) string {
	var b strings.Builder
	for _, s := range symbols {
		b.WriteString(s.Name)
		b.WriteByte(' ')
		if s.Signature != "" {
			b.WriteString(s.Signature)
			b.WriteByte(' ')
		}
		if s.ParentName != "" {
			b.WriteString(s.ParentName)
			b.WriteByte(' ')
		}
		b.WriteString(string(s.Kind))
		b.WriteByte('\n')
	}
	return b.String()
}
