package downloader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
)

// ErrUnsupportedScheme is returned for URLs no handler serves. It is not
// retried.
var ErrUnsupportedScheme = errors.New("unsupported scheme")

var (
	errIdleTimeout = errors.New("no data received within timeout")

	// errResumeMismatch means the local file was discarded because it did
	// not match the server's copy. The next attempt starts without delay.
	errResumeMismatch = errors.New("local data does not match remote resource")
)

// StatusError reports a response outside the 2xx range.
// Immutable
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status: %s", e.Status)
}

// ExhaustedError is returned when every attempt for a resource failed.
// Immutable
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth another attempt. Network
// failures and bad statuses are; local filesystem errors, cancellation and
// unsupported schemes are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrUnsupportedScheme) {
		return false
	}
	var pathErr *fs.PathError
	return !errors.As(err, &pathErr)
}
