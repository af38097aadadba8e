package identity

import (
	"errors"
	"syscall"
)

// isEINTR reports whether err is (or wraps) a POSIX EINTR. spec.md §6.2
// requires exactly one retry for reads that fail this way.
func isEINTR(err error) bool {
	return errors.Is(err, syscall.EINTR)
}
