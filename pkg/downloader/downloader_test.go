package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"coursedl/pkg/common"

	"github.com/google/uuid"
)

type mockTask struct {
	mu        sync.Mutex
	total     int64
	completed int64
	advanced  int64
}

func (m *mockTask) ID() uuid.UUID { return uuid.Nil }
func (m *mockTask) Done()         {}

func (m *mockTask) SetTotal(total int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total = total
}

func (m *mockTask) SetCompleted(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = n
}

func (m *mockTask) Advance(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed += n
	m.advanced += n
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

// rangeServer serves content with full Range support and records every
// Range header it sees.
func rangeServer(t *testing.T, content []byte) (*httptest.Server, *[]string) {
	t.Helper()
	var mu sync.Mutex
	var ranges []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ranges = append(ranges, r.Header.Get("Range"))
		mu.Unlock()
		http.ServeContent(w, r, "course.zip", time.Time{}, bytes.NewReader(content))
	}))
	t.Cleanup(ts.Close)
	return ts, &ranges
}

func testOptions() Options {
	return Options{
		Timeout:   5 * time.Second,
		Attempts:  3,
		Delay:     10 * time.Millisecond,
		ChunkSize: 64,
	}
}

func resource(url string) common.Resource {
	return common.Resource{Seq: 1, Title: "Intro", URL: url}
}

func TestFetchFresh(t *testing.T) {
	content := payload(1000)
	ts, ranges := rangeServer(t, content)
	dest := filepath.Join(t.TempDir(), "01 - Intro.zip")

	task := &mockTask{}
	if err := New(testOptions()).Fetch(context.Background(), resource(ts.URL), dest, task); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("Content mismatch: got %d bytes", len(got))
	}
	if (*ranges)[0] != "" {
		t.Errorf("Fresh download must not send Range, got %q", (*ranges)[0])
	}
	if task.total != 1000 || task.completed != 1000 {
		t.Errorf("Expected task 1000/1000, got %d/%d", task.completed, task.total)
	}
	if _, err := os.Stat(dest + ".lock"); !os.IsNotExist(err) {
		t.Errorf("Lock file should be removed after fetch")
	}
}

func TestFetchResume(t *testing.T) {
	content := payload(1000)
	ts, ranges := rangeServer(t, content)
	dest := filepath.Join(t.TempDir(), "01 - Intro.zip")
	if err := os.WriteFile(dest, content[:300], 0644); err != nil {
		t.Fatal(err)
	}

	task := &mockTask{}
	if err := New(testOptions()).Fetch(context.Background(), resource(ts.URL), dest, task); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	got, _ := os.ReadFile(dest)
	if !bytes.Equal(got, content) {
		t.Errorf("Resumed file differs from remote content")
	}
	if (*ranges)[0] != "bytes=300-" {
		t.Errorf("Expected Range bytes=300-, got %q", (*ranges)[0])
	}
	if task.advanced != 700 {
		t.Errorf("Expected 700 new bytes, got %d", task.advanced)
	}
	if task.total != 1000 {
		t.Errorf("Expected total 1000, got %d", task.total)
	}
}

func TestFetchLeftoverLock(t *testing.T) {
	content := payload(1000)
	ts, ranges := rangeServer(t, content)
	dest := filepath.Join(t.TempDir(), "01 - Intro.zip")
	stale := time.Now().Add(-24*time.Hour).Format(time.RFC3339) + " " + strconv.Itoa(os.Getpid())
	if err := os.WriteFile(dest+".lock", []byte(stale), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := New(testOptions()).Fetch(ctx, resource(ts.URL), dest, &mockTask{}); err != nil {
		t.Fatalf("Fetch blocked on a leftover lock: %v", err)
	}
	if len(*ranges) != 1 {
		t.Errorf("Expected 1 request, got %d", len(*ranges))
	}
	got, _ := os.ReadFile(dest)
	if !bytes.Equal(got, content) {
		t.Errorf("Content mismatch: got %d bytes", len(got))
	}
}

func TestFetchAlreadyComplete(t *testing.T) {
	content := payload(1000)
	ts, _ := rangeServer(t, content)
	dest := filepath.Join(t.TempDir(), "01 - Intro.zip")
	if err := os.WriteFile(dest, content, 0644); err != nil {
		t.Fatal(err)
	}

	task := &mockTask{}
	if err := New(testOptions()).Fetch(context.Background(), resource(ts.URL), dest, task); err != nil {
		t.Fatalf("Fetch of complete file failed: %v", err)
	}

	got, _ := os.ReadFile(dest)
	if !bytes.Equal(got, content) {
		t.Errorf("Complete file was modified")
	}
	if task.advanced != 0 {
		t.Errorf("Expected no bytes written, got %d", task.advanced)
	}
}

func TestFetchRetryBound(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	opts := testOptions()
	opts.Delay = 50 * time.Millisecond
	dest := filepath.Join(t.TempDir(), "01 - Intro.zip")

	start := time.Now()
	err := New(opts).Fetch(context.Background(), resource(ts.URL), dest, nil)
	elapsed := time.Since(start)

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Expected ExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", exhausted.Attempts)
	}
	if n := requests.Load(); n != 3 {
		t.Errorf("Expected exactly 3 requests, got %d", n)
	}
	if elapsed < 100*time.Millisecond {
		t.Errorf("Expected at least two delays, finished in %v", elapsed)
	}

	var status *StatusError
	if !errors.As(err, &status) || status.Code != http.StatusInternalServerError {
		t.Errorf("Expected wrapped 500 StatusError, got %v", err)
	}
}

func TestFetchRecoversFromReset(t *testing.T) {
	content := payload(1000)
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			conn, buf, err := w.(http.Hijacker).Hijack()
			if err != nil {
				t.Errorf("hijack: %v", err)
				return
			}
			fmt.Fprintf(buf, "HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n", len(content))
			buf.Write(content[:400])
			buf.Flush()
			conn.Close()
			return
		}
		http.ServeContent(w, r, "course.zip", time.Time{}, bytes.NewReader(content))
	}))
	defer ts.Close()

	dest := filepath.Join(t.TempDir(), "01 - Intro.zip")
	if err := New(testOptions()).Fetch(context.Background(), resource(ts.URL), dest, nil); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	got, _ := os.ReadFile(dest)
	if !bytes.Equal(got, content) {
		t.Errorf("File after reset differs from remote content (%d bytes)", len(got))
	}
	if n := requests.Load(); n != 2 {
		t.Errorf("Expected 2 requests, got %d", n)
	}
}

func TestFetchZeroLength(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	dest := filepath.Join(t.TempDir(), "empty.zip")
	if err := New(testOptions()).Fetch(context.Background(), resource(ts.URL), dest, nil); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("Expected empty file to exist: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("Expected size 0, got %d", info.Size())
	}
}

// ignoringServer always answers 200 with the full body.
func ignoringServer(t *testing.T, content []byte) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(len(content)))
		w.Write(content)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestFetchRangeIgnored(t *testing.T) {
	content := payload(1000)
	garbage := bytes.Repeat([]byte{0xff}, 300)

	tests := []struct {
		name   string
		strict bool
		want   []byte
	}{
		{"trusting", false, append(append([]byte{}, garbage...), content...)},
		{"strict", true, content},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := ignoringServer(t, content)
			dest := filepath.Join(t.TempDir(), "01 - Intro.zip")
			if err := os.WriteFile(dest, garbage, 0644); err != nil {
				t.Fatal(err)
			}

			opts := testOptions()
			opts.StrictResume = tt.strict
			if err := New(opts).Fetch(context.Background(), resource(ts.URL), dest, nil); err != nil {
				t.Fatalf("Fetch failed: %v", err)
			}
			got, _ := os.ReadFile(dest)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Got %d bytes, want %d", len(got), len(tt.want))
			}
		})
	}
}

func TestFetchLocalLarger(t *testing.T) {
	content := payload(1000)
	local := payload(1500)

	tests := []struct {
		name   string
		strict bool
		want   []byte
	}{
		{"trusting", false, local},
		{"strict", true, content},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := rangeServer(t, content)
			dest := filepath.Join(t.TempDir(), "01 - Intro.zip")
			if err := os.WriteFile(dest, local, 0644); err != nil {
				t.Fatal(err)
			}

			opts := testOptions()
			opts.StrictResume = tt.strict
			opts.Delay = time.Hour
			if err := New(opts).Fetch(context.Background(), resource(ts.URL), dest, nil); err != nil {
				t.Fatalf("Fetch failed: %v", err)
			}
			got, _ := os.ReadFile(dest)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Got %d bytes, want %d", len(got), len(tt.want))
			}
		})
	}
}

func TestFetchIdleTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.WriteHeader(http.StatusOK)
		w.Write(payload(100))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer ts.Close()

	opts := testOptions()
	opts.Timeout = 200 * time.Millisecond
	opts.Attempts = 1
	dest := filepath.Join(t.TempDir(), "stall.zip")

	start := time.Now()
	err := New(opts).Fetch(context.Background(), resource(ts.URL), dest, nil)
	if !errors.Is(err, errIdleTimeout) {
		t.Fatalf("Expected idle timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Idle timeout took too long: %v", elapsed)
	}
	info, _ := os.Stat(dest)
	if info == nil || info.Size() != 100 {
		t.Errorf("Expected the 100 received bytes to be kept")
	}
}

func TestFetchCancelledDuringDelay(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	opts := testOptions()
	opts.Delay = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := New(opts).Fetch(ctx, resource(ts.URL), filepath.Join(t.TempDir(), "x.zip"), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestUnsupportedScheme(t *testing.T) {
	res := common.Resource{Seq: 1, Title: "Intro", URL: "ftp://example.com/intro.zip"}
	err := New(testOptions()).Fetch(context.Background(), res, filepath.Join(t.TempDir(), "x.zip"), nil)
	if !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("Expected unsupported scheme error, got: %v", err)
	}
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		t.Errorf("Unsupported scheme must not be retried")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"status", &StatusError{Code: 503, Status: "503 Service Unavailable"}, true},
		{"idle", errIdleTimeout, true},
		{"canceled", fmt.Errorf("wrapped: %w", context.Canceled), false},
		{"scheme", ErrUnsupportedScheme, false},
		{"path", &os.PathError{Op: "open", Path: "/x", Err: os.ErrPermission}, false},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Errorf("IsTransient(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestContentRangeParsing(t *testing.T) {
	if start, ok := rangeStart("bytes 300-999/1000"); !ok || start != 300 {
		t.Errorf("rangeStart = %d, %v", start, ok)
	}
	if _, ok := rangeStart("garbage"); ok {
		t.Error("rangeStart accepted garbage")
	}
	if total, ok := unsatisfiedTotal("bytes */1000"); !ok || total != 1000 {
		t.Errorf("unsatisfiedTotal = %d, %v", total, ok)
	}
	if _, ok := unsatisfiedTotal("bytes 0-1/2"); ok {
		t.Error("unsatisfiedTotal accepted a satisfied range")
	}
}
