// Package identity implements the path/identity model (spec.md §4.1): it
// turns any on-disk path into a stable, repository-relative key, computes
// content hashes for change detection, and derives a portable repository
// identifier so that the same repository checked out at two different
// absolute paths produces bitwise-identical Files, Symbols and Embedding
// payloads.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	codalexerrors "github.com/brindle-dev/codalex/internal/errors"
)

// Resolve converts any path (absolute or relative to root) into a
// repository-relative, forward-slash, POSIX-style key. It fails with
// OutsidePathError if the resolved absolute path — after symlink
// expansion — is not under repoRoot. Symlinks are never followed out of
// the repository.
func Resolve(repoRoot, anyPath string) (string, error) {
	root, err := filepath.Abs(repoRoot)
	if err != nil {
		return "", fmt.Errorf("resolve repo root: %w", err)
	}
	root, err = filepath.EvalSymlinks(root)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("eval repo root symlinks: %w", err)
	}

	abs := anyPath
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, anyPath)
	}
	abs = filepath.Clean(abs)

	// Expand symlinks on whatever prefix of the path actually exists; a
	// file slated for creation (e.g. during a rename) may not exist yet.
	resolved, err := evalExistingPrefix(abs)
	if err != nil {
		return "", fmt.Errorf("eval path symlinks: %w", err)
	}

	rel, err := filepath.Rel(root, resolved)
	if err != nil {
		return "", codalexerrors.OutsidePathError(anyPath, repoRoot)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", codalexerrors.OutsidePathError(anyPath, repoRoot)
	}

	rel = filepath.ToSlash(rel)
	rel = strings.TrimPrefix(rel, "./")
	return rel, nil
}

// evalExistingPrefix resolves symlinks on the longest existing prefix of
// path, leaving any non-existent suffix untouched.
func evalExistingPrefix(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}
	parent := filepath.Dir(path)
	if parent == path {
		return path, nil
	}
	resolvedParent, err := evalExistingPrefix(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(path)), nil
}

// statKey is the cache key for the content-hash cache: a file's hash is
// valid only as long as its (path, mtime, size) triple is unchanged.
type statKey struct {
	path    string
	mtimeNs int64
	size    int64
}

// HashCache is an LRU-bounded cache of content hashes keyed by
// (absolute_path, mtime_ns, size), so that re-hashing an unchanged file
// during reconciliation is free.
type HashCache struct {
	mu    sync.Mutex
	cache *lru.Cache[statKey, string]
}

// NewHashCache creates a hash cache bounded to capacity entries.
func NewHashCache(capacity int) *HashCache {
	if capacity <= 0 {
		capacity = 4096
	}
	c, _ := lru.New[statKey, string](capacity)
	return &HashCache{cache: c}
}

// ContentHash returns the hex-encoded SHA-256 of path's bytes, consulting
// the cache first. The hash is a strong (256-bit) content-addressable
// digest, comfortably exceeding spec.md's 128-bit floor.
func (h *HashCache) ContentHash(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	key := statKey{path: path, mtimeNs: info.ModTime().UnixNano(), size: info.Size()}

	h.mu.Lock()
	if v, ok := h.cache.Get(key); ok {
		h.mu.Unlock()
		return v, nil
	}
	h.mu.Unlock()

	sum, err := hashFile(path)
	if err != nil {
		return "", err
	}

	h.mu.Lock()
	h.cache.Add(key, sum)
	h.mu.Unlock()
	return sum, nil
}

func hashFile(path string) (string, error) {
	// Opening the file is retried once on EINTR (spec.md §6.2); the reads in
	// io.Copy go through os.File, which already retries EINTR itself.
	var f *os.File
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		f, err = os.Open(path)
		if err == nil {
			break
		}
		if !isEINTR(err) {
			return "", err
		}
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ContentHashUncached computes a content hash without consulting any cache;
// used by callers (e.g. the watcher's move detection) that already know the
// stat triple changed and want a one-shot hash.
func ContentHashUncached(path string) (string, error) {
	return hashFile(path)
}

// StableRootHash derives a stable id from a canonical absolute path, used
// when a repository has no git remote (spec.md §4.1).
func StableRootHash(absRoot string) string {
	clean := filepath.Clean(absRoot)
	sum := sha256.Sum256([]byte(clean))
	return hex.EncodeToString(sum[:])
}

// FileStat is the minimal (size, mtime_ns) pair used for the indexing
// engine's fast-path change check (spec.md §4.4 step 3).
type FileStat struct {
	Size    int64
	MtimeNs int64
}

// Stat reads path's size and mtime without hashing.
func Stat(path string) (FileStat, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileStat{}, err
	}
	return FileStat{Size: info.Size(), MtimeNs: info.ModTime().UnixNano()}, nil
}

// Unchanged reports whether a and b describe the same (size, mtime) pair.
func (a FileStat) Unchanged(b FileStat) bool {
	return a.Size == b.Size && a.MtimeNs == b.MtimeNs
}
