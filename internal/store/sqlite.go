package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	codalexerrors "github.com/brindle-dev/codalex/internal/errors"
)

// SQLiteStore implements Store on top of database/sql + SQLite for
// relational data and two bleve indices (fts_code, fts_symbol) for
// full-text search (spec.md §4.2). Writes are serialized through a single
// in-process mutex (writerMu) plus an advisory cross-process file lock, so
// that "single writer, many readers" (spec.md §5) holds both within and
// across processes.
type SQLiteStore struct {
	db     *sql.DB
	code   *ftsIndex
	symbol *ftsIndex
	lock   *processLock

	writerMu sync.Mutex
	nextTxID int64

	// pendingFTS accumulates FTS side-effects for the in-flight write
	// transaction; they are applied after the SQL transaction commits so a
	// rollback never leaves stray bleve documents behind.
	pendingFTSMu sync.Mutex
	pendingFTS   map[int64][]ftsOp
}

type ftsOp struct {
	kind   FTSKind
	fileID int64
	delete bool
	text   string
}

// Open opens (or creates) the store rooted at dataDir, which holds
// current.db, the two FTS index directories, and an advisory lock file
// (spec.md §6.3 "A single directory per repository").
func Open(ctx context.Context, dataDir string) (*SQLiteStore, error) {
	lock, err := acquireProcessLock(filepath.Join(dataDir, "current.db.lock"))
	if err != nil {
		return nil, err
	}

	dsn := filepath.Join(dataDir, "current.db")
	db, err := sql.Open(sqlDriverName, dsn+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		_ = lock.release()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; readers multiplex over this one connection's WAL snapshot

	if err := openAndMigrate(ctx, db); err != nil {
		_ = db.Close()
		_ = lock.release()
		return nil, err
	}

	code, err := openFTSIndex(filepath.Join(dataDir, "fts_code"))
	if err != nil {
		_ = db.Close()
		_ = lock.release()
		return nil, err
	}
	symbol, err := openFTSIndex(filepath.Join(dataDir, "fts_symbol"))
	if err != nil {
		_ = code.close()
		_ = db.Close()
		_ = lock.release()
		return nil, err
	}

	return &SQLiteStore{
		db:         db,
		code:       code,
		symbol:     symbol,
		lock:       lock,
		pendingFTS: make(map[int64][]ftsOp),
	}, nil
}

func (s *SQLiteStore) Close() error {
	var errs []error
	if err := s.code.close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.symbol.close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.lock.release(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("close store: %v", errs)
	}
	return nil
}

// BeginWrite blocks until any prior writer has committed or aborted, then
// opens a new SQL transaction. Readers are never blocked by this: SQLite's
// WAL mode lets them read the last-committed snapshot throughout.
func (s *SQLiteStore) BeginWrite(ctx context.Context) (*WriteTxn, error) {
	s.writerMu.Lock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.writerMu.Unlock()
		return nil, fmt.Errorf("begin write: %w", err)
	}
	id := atomic.AddInt64(&s.nextTxID, 1)
	s.pendingFTSMu.Lock()
	s.pendingFTS[id] = nil
	s.pendingFTSMu.Unlock()
	return &WriteTxn{id: id, tx: tx}, nil
}

func (s *SQLiteStore) sqlTx(txn *WriteTxn) *sql.Tx {
	return txn.tx.(*sql.Tx)
}

// Commit commits the SQL transaction and then applies the FTS side effects
// staged during it. If the disk is full at SQL-commit time, the
// pre-transaction state is left intact and StorageExhausted is returned
// (spec.md §4.2 "Failure semantics").
func (s *SQLiteStore) Commit(txn *WriteTxn) error {
	defer s.writerMu.Unlock()
	defer s.clearPending(txn.id)

	if err := txn.tx.Commit(); err != nil {
		if isDiskFullError(err) {
			return codalexerrors.StorageExhausted(err)
		}
		return fmt.Errorf("commit: %w", err)
	}

	s.pendingFTSMu.Lock()
	ops := s.pendingFTS[txn.id]
	s.pendingFTSMu.Unlock()

	for _, op := range ops {
		idx := s.code
		if op.kind == FTSSymbol {
			idx = s.symbol
		}
		var err error
		if op.delete {
			err = idx.delete(op.fileID)
		} else {
			err = idx.replace(op.fileID, op.text)
		}
		if err != nil {
			// The SQL transaction is already durable; a stray FTS index is a
			// search-quality defect, not a correctness one, and is repaired by
			// the consistency checker on the next reconciliation pass.
			return fmt.Errorf("apply fts op (file %d): %w", op.fileID, err)
		}
	}
	return nil
}

func (s *SQLiteStore) clearPending(txID int64) {
	s.pendingFTSMu.Lock()
	delete(s.pendingFTS, txID)
	s.pendingFTSMu.Unlock()
}

func (s *SQLiteStore) Abort(txn *WriteTxn) error {
	defer s.writerMu.Unlock()
	defer s.clearPending(txn.id)
	return txn.tx.Rollback()
}

func isDiskFullError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "disk") || strings.Contains(msg, "no space")
}

// UpsertFile inserts or replaces f and, in the same SQL transaction, deletes
// its existing Symbols rows (and stages FTS deletes) so InsertSymbols /
// ReplaceFTSDocument start from a clean slate (spec.md §4.2).
func (s *SQLiteStore) UpsertFile(ctx context.Context, txn *WriteTxn, f File) (int64, error) {
	tx := s.sqlTx(txn)

	var fileID int64
	row := tx.QueryRowContext(ctx,
		`SELECT id FROM files WHERE repository_id = ? AND relative_path = ?`,
		f.RepositoryID, f.RelativePath)
	err := row.Scan(&fileID)

	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO repositories(id, created_ns) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
			f.RepositoryID, time.Now().UnixNano()); err != nil {
			return 0, fmt.Errorf("ensure repository row: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO files(repository_id, relative_path, content_hash, language, size, mtime_ns, index_error, indexed_ns)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			f.RepositoryID, f.RelativePath, f.ContentHash, f.Language, f.Size, f.MtimeNs, f.IndexError, time.Now().UnixNano())
		if err != nil {
			return 0, fmt.Errorf("insert file: %w", err)
		}
		fileID, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("file id: %w", err)
		}
		return fileID, nil
	case err != nil:
		return 0, fmt.Errorf("lookup file: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM symbols WHERE file_id = ?`, fileID); err != nil {
		return 0, fmt.Errorf("clear symbols: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return 0, fmt.Errorf("clear chunks: %w", err)
	}
	s.stageFTSDelete(txn.id, fileID, FTSCode)
	s.stageFTSDelete(txn.id, fileID, FTSSymbol)

	if _, err := tx.ExecContext(ctx,
		`UPDATE files SET content_hash = ?, language = ?, size = ?, mtime_ns = ?, index_error = ?, indexed_ns = ?
		 WHERE id = ?`,
		f.ContentHash, f.Language, f.Size, f.MtimeNs, f.IndexError, time.Now().UnixNano(), fileID); err != nil {
		return 0, fmt.Errorf("update file: %w", err)
	}
	return fileID, nil
}

func (s *SQLiteStore) TouchFile(ctx context.Context, txn *WriteTxn, fileID int64, size, mtimeNs int64) error {
	tx := s.sqlTx(txn)
	if _, err := tx.ExecContext(ctx,
		`UPDATE files SET size = ?, mtime_ns = ?, indexed_ns = ? WHERE id = ?`,
		size, mtimeNs, time.Now().UnixNano(), fileID); err != nil {
		return fmt.Errorf("touch file: %w", err)
	}
	return nil
}

func (s *SQLiteStore) InsertSymbols(ctx context.Context, txn *WriteTxn, fileID int64, symbols []Symbol) error {
	if len(symbols) == 0 {
		return nil
	}
	tx := s.sqlTx(txn)
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO symbols(file_id, name, name_lower, kind, signature, start_line, end_line, start_col, end_col, parent_name)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(file_id, name, kind, start_line) DO UPDATE SET
		   signature = excluded.signature, end_line = excluded.end_line,
		   start_col = excluded.start_col, end_col = excluded.end_col, parent_name = excluded.parent_name`)
	if err != nil {
		return fmt.Errorf("prepare symbol insert: %w", err)
	}
	defer stmt.Close()

	for _, sym := range symbols {
		if _, err := stmt.ExecContext(ctx, fileID, sym.Name, strings.ToLower(sym.Name), string(sym.Kind),
			sym.Signature, sym.StartLine, sym.EndLine, sym.StartCol, sym.EndCol, sym.ParentName); err != nil {
			return fmt.Errorf("insert symbol %s: %w", sym.Name, err)
		}
	}
	return nil
}

func (s *SQLiteStore) ReplaceFTSDocument(ctx context.Context, txn *WriteTxn, fileID int64, text string, kind FTSKind) error {
	s.stageFTSReplace(txn.id, fileID, kind, text)
	return nil
}

func (s *SQLiteStore) stageFTSReplace(txID, fileID int64, kind FTSKind, text string) {
	s.pendingFTSMu.Lock()
	defer s.pendingFTSMu.Unlock()
	s.pendingFTS[txID] = append(s.pendingFTS[txID], ftsOp{kind: kind, fileID: fileID, text: text})
}

func (s *SQLiteStore) stageFTSDelete(txID, fileID int64, kind FTSKind) {
	s.pendingFTSMu.Lock()
	defer s.pendingFTSMu.Unlock()
	s.pendingFTS[txID] = append(s.pendingFTS[txID], ftsOp{kind: kind, fileID: fileID, delete: true})
}

func (s *SQLiteStore) DeleteFile(ctx context.Context, txn *WriteTxn, repositoryID, relativePath string) error {
	tx := s.sqlTx(txn)
	var fileID int64
	row := tx.QueryRowContext(ctx, `SELECT id FROM files WHERE repository_id = ? AND relative_path = ?`, repositoryID, relativePath)
	if err := row.Scan(&fileID); err == sql.ErrNoRows {
		return nil
	} else if err != nil {
		return fmt.Errorf("lookup file for delete: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM symbols WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("cascade delete symbols: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("cascade delete chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	s.stageFTSDelete(txn.id, fileID, FTSCode)
	s.stageFTSDelete(txn.id, fileID, FTSSymbol)
	return nil
}

// RenameFile performs an in-place rename without touching Symbols or FTS
// content, used by the watcher's move-optimization path (spec.md §4.8,
// P8): same content hash, different path, zero parser/embedder calls.
func (s *SQLiteStore) RenameFile(ctx context.Context, txn *WriteTxn, repositoryID, oldPath, newPath string) error {
	tx := s.sqlTx(txn)
	res, err := tx.ExecContext(ctx,
		`UPDATE files SET relative_path = ? WHERE repository_id = ? AND relative_path = ?`,
		newPath, repositoryID, oldPath)
	if err != nil {
		return fmt.Errorf("rename file: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rename file: no row for %s/%s", repositoryID, oldPath)
	}
	return nil
}

// LookupSymbol implements the exact -> case-insensitive -> prefix fallback
// chain (spec.md §4.2): each stage only runs if the previous one produced no
// rows, and kind filters every stage when kind != SymbolKindAnyWild.
func (s *SQLiteStore) LookupSymbol(ctx context.Context, repositoryID, name string, kind SymbolKind, limit int) ([]Hit, error) {
	stages := []struct {
		where string
		arg   string
	}{
		{"sy.name = ?", name},
		{"sy.name_lower = ?", strings.ToLower(name)},
		{"sy.name_lower LIKE ? ESCAPE '\\'", likePrefix(strings.ToLower(name)) + "%"},
	}

	for _, stage := range stages {
		hits, err := s.querySymbols(ctx, repositoryID, stage.where, stage.arg, kind, limit)
		if err != nil {
			return nil, err
		}
		if len(hits) > 0 {
			return hits, nil
		}
	}
	return nil, nil
}

func likePrefix(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return r.Replace(s)
}

func (s *SQLiteStore) querySymbols(ctx context.Context, repositoryID, where, arg string, kind SymbolKind, limit int) ([]Hit, error) {
	query := `
		SELECT f.relative_path, sy.start_line, sy.end_line, sy.kind, sy.signature
		FROM symbols sy JOIN files f ON f.id = sy.file_id
		WHERE f.repository_id = ? AND ` + where
	args := []any{repositoryID, arg}
	if kind != SymbolKindAnyWild && kind != "" {
		query += ` AND sy.kind = ?`
		args = append(args, string(kind))
	}
	// spec.md §4.2: "Ties are broken by (shorter path first, lower line
	// number first)", so path length is the primary sort key, not the
	// path string itself.
	query += ` ORDER BY LENGTH(f.relative_path), f.relative_path, sy.start_line LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lookup symbol: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.RelativePath, &h.Line, &h.EndLine, &h.Kind, &h.Signature); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		h.Snippet = h.Signature
		h.Source = "symbol"
		h.Score = 1.0
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// SearchFTS runs a bag-of-terms query against either the code or symbol
// index and joins the results back to file metadata. timeout bounds the
// bleve search itself (spec.md §4.5.5's per-stage deadlines).
func (s *SQLiteStore) SearchFTS(ctx context.Context, repositoryID, query string, kind FTSKind, limit int, timeout time.Duration) ([]Hit, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	idx := s.code
	source := "fts_code"
	if kind == FTSSymbol {
		idx = s.symbol
		source = "fts_symbol"
	}

	parsed := parseQuery(query)
	raw, err := idx.search(ctx, parsed, limit*4) // over-fetch since repo filtering happens after
	if err != nil {
		return nil, fmt.Errorf("search fts: %w", err)
	}

	var hits []Hit
	for _, h := range raw {
		var fileRepo, path string
		row := s.db.QueryRowContext(ctx, `SELECT repository_id, relative_path FROM files WHERE id = ?`, h.FileID)
		if err := row.Scan(&fileRepo, &path); err == sql.ErrNoRows {
			continue // stale posting; consistency checker will repair it
		} else if err != nil {
			return nil, fmt.Errorf("join fts hit: %w", err)
		}
		if fileRepo != repositoryID {
			continue
		}
		hits = append(hits, Hit{
			RelativePath: path,
			Score:        h.Score,
			Source:       source,
		})
		if len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

func (s *SQLiteStore) GetFile(ctx context.Context, repositoryID, relativePath string) (*File, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, content_hash, language, size, mtime_ns, index_error, indexed_ns
		 FROM files WHERE repository_id = ? AND relative_path = ?`,
		repositoryID, relativePath)

	var f File
	var indexedNs int64
	f.RepositoryID = repositoryID
	f.RelativePath = relativePath
	err := row.Scan(&f.ID, &f.ContentHash, &f.Language, &f.Size, &f.MtimeNs, &f.IndexError, &indexedNs)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get file: %w", err)
	}
	f.IndexedAt = time.Unix(0, indexedNs)
	return &f, true, nil
}

type sqlFileIterator struct {
	rows *sql.Rows
}

func (it *sqlFileIterator) Next() (File, bool, error) {
	if !it.rows.Next() {
		return File{}, false, it.rows.Err()
	}
	var f File
	var indexedNs int64
	if err := it.rows.Scan(&f.ID, &f.RepositoryID, &f.RelativePath, &f.ContentHash, &f.Language, &f.Size, &f.MtimeNs, &f.IndexError, &indexedNs); err != nil {
		return File{}, false, fmt.Errorf("scan file: %w", err)
	}
	f.IndexedAt = time.Unix(0, indexedNs)
	return f, true, nil
}

func (it *sqlFileIterator) Close() error {
	return it.rows.Close()
}

func (s *SQLiteStore) IterateRepositoryFiles(ctx context.Context, repositoryID string) (FileIterator, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, repository_id, relative_path, content_hash, language, size, mtime_ns, index_error, indexed_ns
		 FROM files WHERE repository_id = ? ORDER BY relative_path`, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("iterate repository files: %w", err)
	}
	return &sqlFileIterator{rows: rows}, nil
}

func (s *SQLiteStore) RepositoryStats(ctx context.Context, repositoryID string) (RepositoryStats, error) {
	stats := RepositoryStats{RepositoryID: repositoryID}

	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(MAX(indexed_ns), 0) FROM files WHERE repository_id = ?`, repositoryID)
	if err := row.Scan(&stats.Files, &stats.LastIndexedNs); err != nil {
		return stats, fmt.Errorf("count files: %w", err)
	}

	row = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM symbols sy JOIN files f ON f.id = sy.file_id WHERE f.repository_id = ?`, repositoryID)
	if err := row.Scan(&stats.Symbols); err != nil {
		return stats, fmt.Errorf("count symbols: %w", err)
	}
	return stats, nil
}

// ListRepositories returns every distinct repository_id with at least one
// indexed File, used by get_status to enumerate repositories (spec.md
// §6.1).
func (s *SQLiteStore) ListRepositories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT repository_id FROM files ORDER BY repository_id`)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan repository id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool, error) {
	var v string
	row := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, "user:"+key)
	err := row.Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get state: %w", err)
	}
	return v, true, nil
}

func (s *SQLiteStore) SetState(ctx context.Context, txn *WriteTxn, key, value string) error {
	tx := s.sqlTx(txn)
	_, err := tx.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		"user:"+key, value)
	return err
}

// ChunkRecords returns fileID's chunk bookkeeping keyed by chunk index. A
// caller that needs to dedup against an in-flight UpsertFile (which clears
// this table) must read it before opening that write transaction.
func (s *SQLiteStore) ChunkRecords(ctx context.Context, fileID int64) (map[int]ChunkRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_index, chunk_hash, start_line, end_line, vector_id, embed_pending
		 FROM chunks WHERE file_id = ?`, fileID)
	if err != nil {
		return nil, fmt.Errorf("chunk records: %w", err)
	}
	defer rows.Close()

	out := make(map[int]ChunkRecord)
	for rows.Next() {
		var r ChunkRecord
		var pending int
		r.FileID = fileID
		if err := rows.Scan(&r.ChunkIndex, &r.ChunkHash, &r.StartLine, &r.EndLine, &r.VectorID, &pending); err != nil {
			return nil, fmt.Errorf("scan chunk record: %w", err)
		}
		r.EmbedPending = pending != 0
		out[r.ChunkIndex] = r
	}
	return out, rows.Err()
}

// ReplaceChunkRecords clears and rewrites fileID's chunk bookkeeping,
// mirroring UpsertFile's clean-slate approach to Symbols.
func (s *SQLiteStore) ReplaceChunkRecords(ctx context.Context, txn *WriteTxn, fileID int64, records []ChunkRecord) error {
	tx := s.sqlTx(txn)
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("clear chunk records: %w", err)
	}
	if len(records) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks(file_id, chunk_index, chunk_hash, start_line, end_line, vector_id, embed_pending)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		pending := 0
		if r.EmbedPending {
			pending = 1
		}
		if _, err := stmt.ExecContext(ctx, fileID, r.ChunkIndex, r.ChunkHash, r.StartLine, r.EndLine, r.VectorID, pending); err != nil {
			return fmt.Errorf("insert chunk record %d: %w", r.ChunkIndex, err)
		}
	}
	return nil
}

// UpdateChunkEmbedding updates one chunk row's vector_id/embed_pending.
func (s *SQLiteStore) UpdateChunkEmbedding(ctx context.Context, txn *WriteTxn, fileID int64, chunkIndex int, vectorID string, pending bool) error {
	tx := s.sqlTx(txn)
	p := 0
	if pending {
		p = 1
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE chunks SET vector_id = ?, embed_pending = ? WHERE file_id = ? AND chunk_index = ?`,
		vectorID, p, fileID, chunkIndex)
	return err
}

// PendingChunks returns up to limit chunks still marked embed_pending
// across all repositories, for the background retry sweep (spec.md §4.7
// "Provider failure").
func (s *SQLiteStore) PendingChunks(ctx context.Context, limit int) ([]PendingChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.file_id, c.chunk_index, c.chunk_hash, c.start_line, c.end_line, c.vector_id,
		        f.repository_id, f.relative_path
		 FROM chunks c JOIN files f ON f.id = c.file_id
		 WHERE c.embed_pending = 1
		 ORDER BY c.file_id, c.chunk_index LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("pending chunks: %w", err)
	}
	defer rows.Close()

	var out []PendingChunk
	for rows.Next() {
		var p PendingChunk
		if err := rows.Scan(&p.FileID, &p.ChunkIndex, &p.ChunkHash, &p.StartLine, &p.EndLine, &p.VectorID,
			&p.RepositoryID, &p.RelativePath); err != nil {
			return nil, fmt.Errorf("scan pending chunk: %w", err)
		}
		p.EmbedPending = true
		out = append(out, p)
	}
	return out, rows.Err()
}
