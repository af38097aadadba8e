package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brindle-dev/codalex/internal/identity"
	"github.com/brindle-dev/codalex/internal/plugin"
	"github.com/brindle-dev/codalex/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, store.Store, string) {
	t.Helper()
	dataDir := t.TempDir()
	st, err := store.Open(context.Background(), dataDir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	registry, err := plugin.NewRegistry(plugin.DefaultFactories(), plugin.NewFallback())
	require.NoError(t, err)
	t.Cleanup(registry.Close)

	repoRoot := t.TempDir()
	e := New(Deps{
		Store:   st,
		Plugins: registry,
		Hashes:  identity.NewHashCache(64),
	}, Config{})
	return e, st, repoRoot
}

func writeFile(t *testing.T, root, relPath, content string) string {
	t.Helper()
	abs := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	return abs
}

func TestIndexFileInsertsSymbolsAndFTS(t *testing.T) {
	e, st, root := newTestEngine(t)
	ctx := context.Background()
	abs := writeFile(t, root, "main.go", "package main\n\nfunc Hello() {}\n")

	outcome := e.IndexFile(ctx, "repo", root, abs, false)
	require.NoError(t, outcome.Err)
	assert.Equal(t, StatusIndexed, outcome.Status)

	hits, err := st.LookupSymbol(ctx, "repo", "Hello", store.SymbolKindAnyWild, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "main.go", hits[0].RelativePath)
}

func TestIndexFileFastPathSkipsUnchangedStat(t *testing.T) {
	e, _, root := newTestEngine(t)
	ctx := context.Background()
	abs := writeFile(t, root, "main.go", "package main\n\nfunc Hello() {}\n")

	first := e.IndexFile(ctx, "repo", root, abs, false)
	require.NoError(t, first.Err)
	require.Equal(t, StatusIndexed, first.Status)

	second := e.IndexFile(ctx, "repo", root, abs, false)
	require.NoError(t, second.Err)
	assert.Equal(t, StatusUnchanged, second.Status)
}

func TestIndexFileReparsesOnContentChange(t *testing.T) {
	e, st, root := newTestEngine(t)
	ctx := context.Background()
	abs := writeFile(t, root, "main.go", "package main\n\nfunc Hello() {}\n")
	require.NoError(t, e.IndexFile(ctx, "repo", root, abs, false).Err)

	// Touch mtime forward and change content so both fast paths miss.
	writeFile(t, root, "main.go", "package main\n\nfunc Goodbye() {}\n")
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(abs, future, future))

	outcome := e.IndexFile(ctx, "repo", root, abs, false)
	require.NoError(t, outcome.Err)
	assert.Equal(t, StatusIndexed, outcome.Status)

	hits, err := st.LookupSymbol(ctx, "repo", "Goodbye", store.SymbolKindAnyWild, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = st.LookupSymbol(ctx, "repo", "Hello", store.SymbolKindAnyWild, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndexRepositoryDeletesMissingFiles(t *testing.T) {
	e, st, root := newTestEngine(t)
	ctx := context.Background()
	writeFile(t, root, "a.go", "package main\n\nfunc A() {}\n")

	_, err := e.IndexRepository(ctx, "repo", root, IndexOptions{})
	require.NoError(t, err)

	hits, err := st.LookupSymbol(ctx, "repo", "A", store.SymbolKindAnyWild, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	require.NoError(t, os.Remove(filepath.Join(root, "a.go")))
	_, err = e.IndexRepository(ctx, "repo", root, IndexOptions{})
	require.NoError(t, err)

	hits, err = st.LookupSymbol(ctx, "repo", "A", store.SymbolKindAnyWild, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

// TestHandleRenamePureMoveRenamesInPlace covers P8: a rename with an
// unchanged content hash must update the File row's path in place and
// leave the Symbol still discoverable under the new path, with no second
// parse (verified indirectly: the symbol survives even though Hello's
// Parse pass only ever ran once, at the original IndexFile call).
func TestHandleRenamePureMoveRenamesInPlace(t *testing.T) {
	e, st, root := newTestEngine(t)
	ctx := context.Background()
	abs := writeFile(t, root, "src/parser.go", "package main\n\nfunc Hello() {}\n")
	require.NoError(t, e.IndexFile(ctx, "repo", root, abs, false).Err)

	newAbs := filepath.Join(root, "src/lex/parser.go")
	require.NoError(t, os.MkdirAll(filepath.Dir(newAbs), 0o755))
	require.NoError(t, os.Rename(abs, newAbs))

	outcome, err := e.HandleRename(ctx, "repo", root, newAbs, "src/parser.go")
	require.NoError(t, err)
	assert.Equal(t, StatusIndexed, outcome.Status)
	assert.Equal(t, "src/lex/parser.go", outcome.RelativePath)

	hits, err := st.LookupSymbol(ctx, "repo", "Hello", store.SymbolKindAnyWild, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "src/lex/parser.go", hits[0].RelativePath)

	_, found, err := st.GetFile(ctx, "repo", "src/parser.go")
	require.NoError(t, err)
	assert.False(t, found, "old path must no longer resolve")
}

// TestHandleRenameContentChangedFallsBackToReindex covers the "otherwise"
// branch of spec.md §4.8: a rename whose content also changed must not
// use the cheap in-place path, since the old Symbols would then describe
// the wrong bytes.
func TestHandleRenameContentChangedFallsBackToReindex(t *testing.T) {
	e, st, root := newTestEngine(t)
	ctx := context.Background()
	abs := writeFile(t, root, "src/parser.go", "package main\n\nfunc Hello() {}\n")
	require.NoError(t, e.IndexFile(ctx, "repo", root, abs, false).Err)

	newAbs := filepath.Join(root, "src/lex/parser.go")
	require.NoError(t, os.MkdirAll(filepath.Dir(newAbs), 0o755))
	require.NoError(t, os.Remove(abs))
	require.NoError(t, os.WriteFile(newAbs, []byte("package main\n\nfunc Goodbye() {}\n"), 0o644))

	outcome, err := e.HandleRename(ctx, "repo", root, newAbs, "src/parser.go")
	require.NoError(t, err)
	assert.Equal(t, StatusIndexed, outcome.Status)

	hits, err := st.LookupSymbol(ctx, "repo", "Goodbye", store.SymbolKindAnyWild, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "src/lex/parser.go", hits[0].RelativePath)

	_, found, err := st.GetFile(ctx, "repo", "src/parser.go")
	require.NoError(t, err)
	assert.False(t, found)
}
