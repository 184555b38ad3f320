package store

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/lib/pq"
)

// Normalized store errors. Callers branch on these with errors.Is to pick a
// retry cadence: connectivity loss is retried with backoff, a rejected
// write is not retried at all (the next fetch cycle produces a fresh batch).
var (
	ErrUnavailable = errors.New("STORE_UNAVAILABLE")
	ErrWriteFailed = errors.New("STORE_WRITE_FAILED")
)

// Postgres error classes that indicate the connection, not the statement,
// is the problem.
var connectionErrorClasses = map[string]bool{
	"08": true, // connection exception
	"53": true, // insufficient resources
	"57": true, // operator intervention (shutdown, crash)
	"58": true, // system error
}

// classifyError maps a driver error onto one of the normalized sentinels,
// preserving the original as wrapped detail.
func classifyError(err error, kind error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if connectionErrorClasses[string(pqErr.Code.Class())] {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return fmt.Errorf("%w: %v", kind, err)
	}

	return fmt.Errorf("%w: %v", kind, err)
}

// classifyReadError normalizes errors from read-side queries.
func classifyReadError(err error) error {
	return classifyError(err, ErrUnavailable)
}

// classifyWriteError normalizes errors from the append path.
func classifyWriteError(err error) error {
	return classifyError(err, ErrWriteFailed)
}

// IsUnavailable reports whether err indicates store connectivity loss.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
