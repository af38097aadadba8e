//go:build cgo

package store

// Blank import registers the driver with database/sql. The CGO-backed
// mattn/go-sqlite3 is preferred when cgo is available since it is the more
// mature, widely-deployed binding; driver_pure.go's pure-Go modernc.org/sqlite
// is the fallback for CGO_ENABLED=0 builds, so the same storage layer code
// works however the binary was built.
import (
	_ "github.com/mattn/go-sqlite3"
)

const sqlDriverName = "sqlite3"
