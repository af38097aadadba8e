// Package index drives the indexing engine (spec.md §4.4): per-file
// parse → extract → persist, chunk → embed enqueue, a bounded worker pool,
// and reconciliation between disk and the store.
package index

import (
	"time"

	"github.com/brindle-dev/codalex/internal/chunk"
	"github.com/brindle-dev/codalex/internal/gitignore"
	"github.com/brindle-dev/codalex/internal/identity"
	"github.com/brindle-dev/codalex/internal/plugin"
	"github.com/brindle-dev/codalex/internal/store"
	"github.com/brindle-dev/codalex/internal/vector"
)

// Default tuning values named in spec.md §4.4.
const (
	DefaultMaxFileSize  = 10 << 20 // 10 MiB
	DefaultParseTimeout = 30 * time.Second
)

// Status classifies one file's outcome in a batch (spec.md §4.4 "indexed,
// unchanged, skipped, errored").
type Status string

const (
	StatusIndexed   Status = "indexed"
	StatusUnchanged Status = "unchanged"
	StatusSkipped   Status = "skipped"
	StatusErrored   Status = "errored"
)

// FileOutcome is one file's result within a batch.
type FileOutcome struct {
	RelativePath string
	Status       Status
	Reason       string // ignored | too_large | timeout | embed_error | ""; a plugin parse error other than a timeout leaves it "" and is not recorded
	Err          error
}

// BatchResult summarizes a full index_repository call (spec.md §4.4).
type BatchResult struct {
	Indexed   int
	Unchanged int
	Skipped   int
	Errored   int
	Errors    []FileOutcome
}

func (r *BatchResult) record(o FileOutcome) {
	switch o.Status {
	case StatusIndexed:
		r.Indexed++
	case StatusUnchanged:
		r.Unchanged++
	case StatusSkipped:
		r.Skipped++
	case StatusErrored:
		r.Errored++
		r.Errors = append(r.Errors, o)
	}
}

// Deps are the Engine's collaborators. Vectors is optional: a nil Pipeline
// disables embedding enqueue entirely, matching spec.md §4.4 step 8's
// "if embeddings are enabled".
type Deps struct {
	Store    store.Store
	Plugins  *plugin.Registry
	Vectors  *vector.Pipeline
	Hashes   *identity.HashCache
	Ignore   *gitignore.Matcher
	ChunkOpts chunk.Options
}

// Config tunes the engine's per-file and per-batch bounds.
type Config struct {
	MaxFileSize  int64
	ParseTimeout time.Duration
	Workers      int
}

func (c Config) withDefaults() Config {
	if c.MaxFileSize == 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.ParseTimeout == 0 {
		c.ParseTimeout = DefaultParseTimeout
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	return c
}

// IndexOptions parameters one index_repository call (spec.md §4.4
// "Reconciliation").
type IndexOptions struct {
	Force bool
	Paths []string // restrict to these repository-relative paths, if non-empty
}
