package downloader

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"coursedl/pkg/common"
	"coursedl/pkg/display"
	"coursedl/pkg/filelock"
)

// manager routes a resource to the handler for its URL scheme and retries
// failed attempts.
// Mutable
type manager struct {
	handlers map[string]SchemeHandler
	opts     Options
}

// New returns a Fetcher serving http and https with the given options.
func New(opts Options) Fetcher {
	m := newManager(opts)
	m.Register(NewHTTPHandler(m.opts))
	return m
}

func newManager(opts Options) *manager {
	return &manager{
		handlers: make(map[string]SchemeHandler),
		opts:     opts.normalized(),
	}
}

// Register makes h responsible for its schemes, replacing earlier handlers.
func (m *manager) Register(h SchemeHandler) {
	for _, scheme := range h.Schemes() {
		m.handlers[scheme] = h
	}
}

func (m *manager) Fetch(ctx context.Context, res common.Resource, dest string, task display.Task) error {
	if task == nil {
		task = display.NopTask()
	}

	u, err := url.Parse(res.URL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", res.URL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	handler, ok := m.handlers[scheme]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}

	unlock, err := filelock.Lock(ctx, dest)
	if err != nil {
		return err
	}
	defer unlock()

	log := m.opts.Logger.With("resource", res.String())

	var lastErr error
	for attempt := 1; attempt <= m.opts.Attempts; attempt++ {
		if attempt > 1 && !errors.Is(lastErr, errResumeMismatch) {
			log.Warn("Retrying download", "attempt", attempt, "of", m.opts.Attempts, "delay", m.opts.Delay, "error", lastErr)
			if err := sleep(ctx, m.opts.Delay); err != nil {
				return err
			}
		}

		err := handler.Fetch(ctx, res, dest, task)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("download %s interrupted: %w", res, ctx.Err())
		}
		if !IsTransient(err) {
			return err
		}
		log.Debug("Attempt failed", "attempt", attempt, "error", err)
		lastErr = err
	}
	return &ExhaustedError{Attempts: m.opts.Attempts, Err: lastErr}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
