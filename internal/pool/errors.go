package pool

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"net"
	"syscall"

	"github.com/cockroachdb/errors"
)

var (
	// ErrPoolTimeout is returned when no connection becomes available within
	// the lease timeout.
	ErrPoolTimeout = errors.New("pool: timed out waiting for a connection")

	// ErrPoolUnavailable is returned when the backing store could not be
	// reached after all initialization attempts.
	ErrPoolUnavailable = errors.New("pool: backing store unavailable")
)

// IsConnectionError reports whether err means the connection itself is
// unusable, as opposed to a query or constraint failure.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.IsAny(err, driver.ErrBadConn, sql.ErrConnDone, io.ErrUnexpectedEOF,
		syscall.ECONNRESET, syscall.EPIPE, syscall.ECONNREFUSED, syscall.ECONNABORTED) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func timeoutError(waited string) error {
	return errors.WithHint(
		errors.WithDetailf(ErrPoolTimeout, "waited %s for a lease", waited),
		"raise database.pool.max_size or database.pool.lease_timeout",
	)
}

func unavailableError(cause error, attempts int) error {
	err := errors.Mark(errors.Wrapf(cause, "initializing pool after %d attempts", attempts), ErrPoolUnavailable)
	return errors.WithHint(err, "check that the backing store is reachable and the credentials are valid")
}
