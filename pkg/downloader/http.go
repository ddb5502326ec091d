package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"coursedl/pkg/common"
	"coursedl/pkg/display"
)

// httpHandler appends the remaining bytes of a resource to its local file.
// Immutable
type httpHandler struct {
	client *http.Client
	opts   Options
}

// NewHTTPHandler returns the handler for http and https URLs.
func NewHTTPHandler(opts Options) SchemeHandler {
	opts = opts.normalized()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: opts.Timeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = opts.Timeout
	transport.ResponseHeaderTimeout = opts.Timeout

	return &httpHandler{
		// No client timeout: it would cap the whole transfer. Body reads
		// are bounded by the idle watchdog instead.
		client: &http.Client{Transport: transport},
		opts:   opts,
	}
}

func (h *httpHandler) Schemes() []string {
	return []string{"http", "https"}
}

func (h *httpHandler) Fetch(ctx context.Context, res common.Resource, dest string, task display.Task) error {
	if task == nil {
		task = display.NopTask()
	}
	log := h.opts.Logger.With("resource", res.String())

	offset, err := localSize(dest)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, res.URL, nil)
	if err != nil {
		return fmt.Errorf("invalid request for %s: %w", res.URL, err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		log.Debug("Resuming download", "offset", offset)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0 {
		if h.opts.StrictResume {
			if total, ok := unsatisfiedTotal(resp.Header.Get("Content-Range")); ok && total != offset {
				log.Warn("Local file does not match remote size, restarting", "local", offset, "remote", total)
				return discard(dest)
			}
		}
		log.Debug("Already complete", "size", offset)
		task.SetTotal(offset)
		task.SetCompleted(offset)
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_APPEND
	if offset > 0 && h.opts.StrictResume {
		switch resp.StatusCode {
		case http.StatusOK:
			log.Warn("Server ignored range request, restarting from zero")
			flags |= os.O_TRUNC
			offset = 0
		case http.StatusPartialContent:
			if start, ok := rangeStart(resp.Header.Get("Content-Range")); ok && start != offset {
				log.Warn("Server resumed at the wrong offset, restarting", "local", offset, "remote", start)
				return discard(dest)
			}
		}
	}

	var total int64
	if resp.ContentLength >= 0 {
		total = resp.ContentLength + offset
	}
	task.SetTotal(total)
	task.SetCompleted(offset)

	f, err := os.OpenFile(dest, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to open destination: %w", err)
	}
	defer f.Close()

	body := io.Reader(resp.Body)
	if h.opts.Timeout > 0 {
		ir := newIdleReader(resp.Body, h.opts.Timeout, cancel)
		defer ir.stop()
		body = ir
	}

	buf := make([]byte, h.opts.ChunkSize)
	for {
		n, rerr := readChunk(body, buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				return fmt.Errorf("failed to write destination: %w", err)
			}
			task.Advance(int64(n))
		}
		if errors.Is(rerr, io.EOF) {
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("reading response body: %w", rerr)
		}
	}
}

// localSize returns the length of path, or 0 when it does not exist.
func localSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to inspect destination: %w", err)
	}
	return info.Size(), nil
}

func discard(path string) error {
	if err := os.Truncate(path, 0); err != nil {
		return fmt.Errorf("failed to reset destination: %w", err)
	}
	return errResumeMismatch
}

// readChunk fills buf unless the reader fails or ends first.
func readChunk(r io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// rangeStart parses the first byte position of "bytes a-b/n".
func rangeStart(header string) (int64, bool) {
	spec, ok := strings.CutPrefix(header, "bytes ")
	if !ok {
		return 0, false
	}
	first, _, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, false
	}
	start, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
	return start, err == nil
}

// unsatisfiedTotal parses the complete length of "bytes */n".
func unsatisfiedTotal(header string) (int64, bool) {
	spec, ok := strings.CutPrefix(header, "bytes */")
	if !ok {
		return 0, false
	}
	total, err := strconv.ParseInt(strings.TrimSpace(spec), 10, 64)
	return total, err == nil
}

// idleReader cancels the request when no Read completes within timeout.
// Mutable
type idleReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
	fired   atomic.Bool
}

func newIdleReader(r io.Reader, timeout time.Duration, cancel context.CancelFunc) *idleReader {
	ir := &idleReader{r: r, timeout: timeout}
	ir.timer = time.AfterFunc(timeout, func() {
		ir.fired.Store(true)
		cancel()
	})
	return ir
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if ir.fired.Load() {
		return n, errIdleTimeout
	}
	ir.timer.Reset(ir.timeout)
	return n, err
}

func (ir *idleReader) stop() {
	ir.timer.Stop()
}
