package store

import (
	"fmt"

	"github.com/gofrs/flock"
)

// processLock is an advisory, cross-process file lock guarding current.db
// against a second writer process opening the same index directory. It
// backs the single-writer invariant of spec.md §4.2/§5 across process
// boundaries; SQLiteStore.writerMu (sqlite.go) handles goroutine-level
// serialization within one process.
type processLock struct {
	fl *flock.Flock
}

func acquireProcessLock(lockPath string) (*processLock, error) {
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire index lock %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("index at %s is locked by another process", lockPath)
	}
	return &processLock{fl: fl}, nil
}

func (p *processLock) release() error {
	if p == nil || p.fl == nil {
		return nil
	}
	return p.fl.Unlock()
}
