package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrUnavailable marks a storage failure that persisted through the reconnect attempt.
var ErrUnavailable = errors.New("storage unavailable")

// Retry runs fn and, when it fails with a transient connection error, runs it exactly once more.
// A transient failure on the second attempt is returned wrapped in ErrUnavailable; any other
// error is returned as is. fn must be safe to repeat (a whole transaction, not half of one).
func Retry(ctx context.Context, transient func(error) bool, fn func(context.Context) error) error {
	if transient == nil {
		transient = IsTransient
	}
	err := fn(ctx)
	if err == nil || !transient(err) {
		return err
	}
	if ctx.Err() != nil {
		return err
	}
	err = fn(ctx)
	if err != nil && transient(err) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

// IsTransient reports whether err looks like a dropped or refused connection rather than a
// statement error.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception; 57P01..57P03: server shutting down / cannot connect now.
		return len(pgErr.Code) == 5 && (pgErr.Code[:2] == "08" || pgErr.Code == "57P01" || pgErr.Code == "57P02" || pgErr.Code == "57P03")
	}
	return pgconn.SafeToRetry(err)
}
