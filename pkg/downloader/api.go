// Package downloader fetches remote resources into local files. Partial
// files are resumed with HTTP range requests, and failed attempts are
// retried after a fixed delay. Progress is reported through a display.Task.
package downloader

import (
	"context"
	"log/slog"
	"time"

	"coursedl/pkg/common"
	"coursedl/pkg/display"
)

// Fetcher retrieves one resource into a local file.
type Fetcher interface {
	// Fetch downloads res into dest, resuming from the bytes already on disk.
	// task may be nil. The returned error is nil on success, an
	// *ExhaustedError once every attempt failed, or a non-retryable error.
	Fetch(ctx context.Context, res common.Resource, dest string, task display.Task) error
}

// SchemeHandler performs a single download attempt for the URL schemes it
// serves. Retrying and locking are handled by the Fetcher that owns it.
type SchemeHandler interface {
	// Fetch makes one attempt to bring dest up to date with res.
	Fetch(ctx context.Context, res common.Resource, dest string, task display.Task) error
	// Schemes returns the URL schemes (e.g. "http", "https") handled.
	Schemes() []string
}

// Options configures retries and transfers.
// Immutable
type Options struct {
	// Timeout bounds connecting and waiting for response headers, and is
	// the longest a body read may stall. Zero disables it.
	Timeout time.Duration
	// Attempts is the total number of tries per Fetch, including the first.
	Attempts int
	// Delay is the pause between attempts.
	Delay time.Duration
	// ChunkSize is the size of each read from the response body and write
	// to the file.
	ChunkSize int64
	// StrictResume discards local data that does not line up with what
	// the server sends back for a range request.
	StrictResume bool
	// Logger receives retry and resume diagnostics. Nil discards them.
	Logger *slog.Logger
}

// DefaultOptions returns the stock transfer settings.
func DefaultOptions() Options {
	return Options{
		Timeout:   30 * time.Second,
		Attempts:  3,
		Delay:     5 * time.Second,
		ChunkSize: 8192,
	}
}

func (o Options) normalized() Options {
	if o.Attempts < 1 {
		o.Attempts = 1
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultOptions().ChunkSize
	}
	if o.Delay < 0 {
		o.Delay = 0
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}
