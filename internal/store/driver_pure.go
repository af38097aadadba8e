//go:build !cgo

package store

// modernc.org/sqlite is a pure-Go SQLite driver; it backs current.db when
// the binary is built with CGO_ENABLED=0 (e.g. cross-compiled release
// builds), trading some performance for a single static binary.
import (
	_ "modernc.org/sqlite"
)

const sqlDriverName = "sqlite"
