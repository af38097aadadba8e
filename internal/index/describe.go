package index

import (
	"os"
	"path/filepath"
)

// DiskUsage reports the on-disk footprint of one repository's persisted
// index (spec.md §6.3 "a single directory per repository"): the relational/
// FTS store, and the vector subtree when semantic search is enabled. This
// is not one of the five wire tool operations (spec.md §6.1) — it is the
// "index info / stats introspection" supplement named in SPEC_FULL.md,
// used by tests that want to assert an index actually wrote bytes to disk
// rather than just returning counts; get_status does not call it.
type DiskUsage struct {
	DBBytes     int64
	FTSBytes    int64
	VectorBytes int64
}

// Total sums the usage breakdown.
func (d DiskUsage) Total() int64 {
	return d.DBBytes + d.FTSBytes + d.VectorBytes
}

// DescribeIndex walks dataDir (the directory store.Open and vector
// Store.Save/Load operate on) and sizes its three components. A missing
// dataDir (not yet indexed) is reported as a zero-valued DiskUsage rather
// than an error, matching spec.md §7's "empty result is preferred over
// error" stance for the not-found case.
func DescribeIndex(dataDir string) (DiskUsage, error) {
	var usage DiskUsage
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		return usage, nil
	}

	dbBytes, err := dirSize(dataDir, func(rel string) bool {
		return rel == "current.db" || rel == "current.db-wal" || rel == "current.db-shm"
	})
	if err != nil {
		return usage, err
	}
	usage.DBBytes = dbBytes

	ftsBytes, err := dirSize(dataDir, func(rel string) bool {
		return rel == "fts_code" || rel == "fts_symbol" ||
			hasPrefixDir(rel, "fts_code") || hasPrefixDir(rel, "fts_symbol")
	})
	if err != nil {
		return usage, err
	}
	usage.FTSBytes = ftsBytes

	vectorDir := filepath.Join(dataDir, "vectors")
	if _, err := os.Stat(vectorDir); err == nil {
		vb, err := dirSize(vectorDir, func(string) bool { return true })
		if err != nil {
			return usage, err
		}
		usage.VectorBytes = vb
	}

	return usage, nil
}

func hasPrefixDir(rel, prefix string) bool {
	return len(rel) > len(prefix) && rel[:len(prefix)+1] == prefix+string(filepath.Separator)
}

func dirSize(root string, include func(rel string) bool) (int64, error) {
	var total int64
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if include(rel) {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
