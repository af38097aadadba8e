package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// InconsistencyType categorizes a detected cross-store divergence between
// SQLite's files table (source of truth) and the two bleve FTS indices
// (spec.md §3 "FTS Posting" invariant). Narrowed to the two FTS indices
// since this store has no separate vector store of its own (see
// internal/vector).
type InconsistencyType int

const (
	InconsistencyOrphanCode InconsistencyType = iota
	InconsistencyOrphanSymbol
	InconsistencyMissingCode
	InconsistencyMissingSymbol
)

func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanCode:
		return "orphan_fts_code"
	case InconsistencyOrphanSymbol:
		return "orphan_fts_symbol"
	case InconsistencyMissingCode:
		return "missing_fts_code"
	case InconsistencyMissingSymbol:
		return "missing_fts_symbol"
	default:
		return "unknown"
	}
}

// Inconsistency is one detected divergence, identified by the surrogate
// file id shared across SQLite rows and FTS document ids.
type Inconsistency struct {
	Type    InconsistencyType
	FileID  int64
	Details string
}

type ConsistencyReport struct {
	Checked         int
	Inconsistencies []Inconsistency
	Duration        time.Duration
}

// CheckConsistency compares the set of file ids known to SQLite against the
// set of document ids known to each FTS index. It is read-only and safe to
// run concurrently with queries; it should not be run concurrently with a
// write transaction, since bleve's doc count can move mid-scan otherwise.
func (s *SQLiteStore) CheckConsistency(ctx context.Context) (*ConsistencyReport, error) {
	start := time.Now()

	fileIDs, err := s.allFileIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list file ids: %w", err)
	}

	codeIDs, err := s.code.allDocIDs()
	if err != nil {
		slog.Warn("consistency check: failed to list fts_code ids", slog.String("error", err.Error()))
	}
	symbolIDs, err := s.symbol.allDocIDs()
	if err != nil {
		slog.Warn("consistency check: failed to list fts_symbol ids", slog.String("error", err.Error()))
	}

	var issues []Inconsistency
	for id := range codeIDs {
		if !fileIDs[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanCode, FileID: id, Details: "fts_code entry without matching file row"})
		}
	}
	for id := range symbolIDs {
		if !fileIDs[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanSymbol, FileID: id, Details: "fts_symbol entry without matching file row"})
		}
	}
	for id := range fileIDs {
		if !codeIDs[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyMissingCode, FileID: id, Details: "file row missing from fts_code"})
		}
		if !symbolIDs[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyMissingSymbol, FileID: id, Details: "file row missing from fts_symbol"})
		}
	}

	return &ConsistencyReport{
		Checked:         len(fileIDs),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// Repair deletes orphaned FTS documents outright (cheap, safe, and the file
// row is already gone so there is nothing to reconstruct) and logs missing
// entries, which require the file to be reconciled back through the normal
// indexing path rather than a standalone repair.
func (s *SQLiteStore) Repair(ctx context.Context, issues []Inconsistency) error {
	var missing int
	for _, issue := range issues {
		switch issue.Type {
		case InconsistencyOrphanCode:
			if err := s.code.delete(issue.FileID); err != nil {
				slog.Warn("failed to delete orphan fts_code entry", slog.Int64("file_id", issue.FileID), slog.String("error", err.Error()))
			}
		case InconsistencyOrphanSymbol:
			if err := s.symbol.delete(issue.FileID); err != nil {
				slog.Warn("failed to delete orphan fts_symbol entry", slog.Int64("file_id", issue.FileID), slog.String("error", err.Error()))
			}
		case InconsistencyMissingCode, InconsistencyMissingSymbol:
			missing++
		}
	}
	if missing > 0 {
		slog.Warn("index has files missing FTS postings, reindex to repair", slog.Int("missing_count", missing))
	}
	return nil
}

func (s *SQLiteStore) allFileIDs(ctx context.Context) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM files`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}
