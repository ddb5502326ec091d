package orchestrator

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"coursedl/pkg/common"
	"coursedl/pkg/display"
	"coursedl/pkg/downloader"
)

// fetchFunc adapts a function to downloader.Fetcher.
type fetchFunc func(ctx context.Context, res common.Resource, dest string, task display.Task) error

func (f fetchFunc) Fetch(ctx context.Context, res common.Resource, dest string, task display.Task) error {
	return f(ctx, res, dest, task)
}

func fastOptions() downloader.Options {
	return downloader.Options{
		Timeout:   5 * time.Second,
		Attempts:  3,
		Delay:     10 * time.Millisecond,
		ChunkSize: 8192,
	}
}

func TestRunEndToEnd(t *testing.T) {
	bodies := map[string][]byte{
		"/intro.zip":    bytes.Repeat([]byte("a"), 1000),
		"/advanced.zip": bytes.Repeat([]byte("b"), 2000),
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, r.URL.Path, time.Time{}, bytes.NewReader(bodies[r.URL.Path]))
	}))
	defer ts.Close()

	dir := filepath.Join(t.TempDir(), "downloads")
	resources := []common.Resource{
		{Seq: 1, Title: "Intro", URL: ts.URL + "/intro.zip"},
		{Seq: 2, Title: "Advanced", URL: ts.URL + "/advanced.zip"},
	}

	o := New(downloader.New(fastOptions()), Options{Dir: dir, Workers: 2})
	s := o.Run(context.Background(), resources)

	if !s.OK() {
		t.Fatalf("Expected success, failed: %v", s.Failed)
	}
	if len(s.Succeeded) != 2 || s.Succeeded[0] != 1 || s.Succeeded[1] != 2 {
		t.Errorf("Expected Succeeded [1 2], got %v", s.Succeeded)
	}
	for name, size := range map[string]int64{"01 - Intro.zip": 1000, "02 - Advanced.zip": 2000} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Errorf("Missing %s: %v", name, err)
			continue
		}
		if info.Size() != size {
			t.Errorf("%s: expected %d bytes, got %d", name, size, info.Size())
		}
	}
}

func TestRunIsolatesExhausted(t *testing.T) {
	var resetHits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken.zip" {
			resetHits.Add(1)
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				conn.Close()
			}
			return
		}
		w.Write(bytes.Repeat([]byte("x"), 500))
	}))
	defer ts.Close()

	resources := []common.Resource{
		{Seq: 1, Title: "Intro", URL: ts.URL + "/intro.zip"},
		{Seq: 2, Title: "Broken", URL: ts.URL + "/broken.zip"},
	}
	o := New(downloader.New(fastOptions()), Options{Dir: t.TempDir(), Workers: 2})
	s := o.Run(context.Background(), resources)

	if len(s.Succeeded) != 1 || s.Succeeded[0] != 1 {
		t.Errorf("Expected Succeeded [1], got %v", s.Succeeded)
	}
	var exhausted *downloader.ExhaustedError
	if !errors.As(s.Failed[2], &exhausted) {
		t.Fatalf("Expected resource 2 exhausted, got %v", s.Failed[2])
	}
	if exhausted.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", exhausted.Attempts)
	}
	// The transport may replay a request that failed before any response
	// byte on a fresh connection, so count at least 3.
	if n := resetHits.Load(); n < 3 {
		t.Errorf("Expected at least 3 requests to the broken endpoint, got %d", n)
	}
	if s.OK() {
		t.Error("Summary must not be OK with a failure")
	}
}

func TestRunConcurrencyBound(t *testing.T) {
	var inFlight, peak atomic.Int32
	f := fetchFunc(func(ctx context.Context, res common.Resource, dest string, task display.Task) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})

	var resources []common.Resource
	for i := 1; i <= 12; i++ {
		resources = append(resources, common.Resource{Seq: i, Title: "R", URL: "http://x"})
	}

	s := New(f, Options{Dir: t.TempDir(), Workers: 3}).Run(context.Background(), resources)
	if !s.OK() || len(s.Succeeded) != 12 {
		t.Fatalf("Expected 12 successes, got %v / %v", s.Succeeded, s.Failed)
	}
	if p := peak.Load(); p > 3 {
		t.Errorf("Expected at most 3 concurrent fetches, saw %d", p)
	}
}

func TestRunDuplicates(t *testing.T) {
	var calls atomic.Int32
	var fetched sync.Map
	f := fetchFunc(func(ctx context.Context, res common.Resource, dest string, task display.Task) error {
		calls.Add(1)
		fetched.Store(res.URL, true)
		return nil
	})

	resources := []common.Resource{
		{Seq: 1, Title: "Intro", URL: "http://a"},
		{Seq: 2, Title: "Other", URL: "http://b"},
		{Seq: 1, Title: "Intro", URL: "http://c"},
	}
	s := New(f, Options{Dir: t.TempDir(), Workers: 2}).Run(context.Background(), resources)

	if calls.Load() != 2 {
		t.Errorf("Expected 2 fetches, got %d", calls.Load())
	}
	if _, ok := fetched.Load("http://a"); !ok {
		t.Errorf("The first resource for seq 1 should be fetched")
	}
	if len(s.Succeeded) != 2 || s.Succeeded[0] != 1 || s.Succeeded[1] != 2 {
		t.Errorf("Expected Succeeded [1 2], got %v", s.Succeeded)
	}
	if len(s.Failed) != 0 {
		t.Errorf("Expected no failures, got %v", s.Failed)
	}
	if len(s.Duplicates) != 1 || s.Duplicates[0] != resources[2] {
		t.Errorf("Expected the third resource set aside, got %+v", s.Duplicates)
	}
	if s.OK() {
		t.Errorf("A run with duplicates should not report OK")
	}
}

func TestRunDuplicateSeqDifferentTitles(t *testing.T) {
	f := fetchFunc(func(ctx context.Context, res common.Resource, dest string, task display.Task) error {
		if res.Title == "Broken" {
			return errors.New("boom")
		}
		return nil
	})

	for _, order := range [][]string{{"Intro", "Broken"}, {"Broken", "Intro"}} {
		t.Run(strings.Join(order, "-"), func(t *testing.T) {
			resources := []common.Resource{
				{Seq: 1, Title: order[0], URL: "http://x/" + order[0] + ".zip"},
				{Seq: 1, Title: order[1], URL: "http://x/" + order[1] + ".zip"},
			}
			s := New(f, Options{Dir: t.TempDir(), Workers: 2}).Run(context.Background(), resources)

			_, failed := s.Failed[1]
			succeeded := slices.Contains(s.Succeeded, 1)
			if failed == succeeded {
				t.Errorf("Seq 1 must be exactly one of succeeded or failed: %v / %v", s.Succeeded, s.Failed)
			}
			if wantFailed := order[0] == "Broken"; failed != wantFailed {
				t.Errorf("Seq 1 outcome should come from %q, failed=%v", order[0], failed)
			}
			if len(s.Succeeded)+len(s.Failed) != 1 || len(s.Duplicates) != 1 {
				t.Errorf("Unexpected summary %+v", s)
			}

			rows := s.Report(resources).Table.Rows
			if rows[1][2] != "duplicate" {
				t.Errorf("Second row status = %q, want duplicate", rows[1][2])
			}
		})
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{}, 10)
	f := fetchFunc(func(ctx context.Context, res common.Resource, dest string, task display.Task) error {
		started <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	})

	resources := []common.Resource{
		{Seq: 1, Title: "A", URL: "http://a"},
		{Seq: 2, Title: "B", URL: "http://b"},
		{Seq: 3, Title: "C", URL: "http://c"},
	}

	done := make(chan *Summary)
	go func() {
		done <- New(f, Options{Dir: t.TempDir(), Workers: 1}).Run(ctx, resources)
	}()

	<-started
	cancel()

	select {
	case s := <-done:
		if len(s.Failed) != 3 {
			t.Fatalf("Expected all 3 failed, got %v", s.Failed)
		}
		for seq, err := range s.Failed {
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Seq %d: expected context.Canceled, got %v", seq, err)
			}
		}
		if len(started) != 0 {
			t.Errorf("Queued resources must not start after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunMkdirFailure(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	f := fetchFunc(func(context.Context, common.Resource, string, display.Task) error {
		calls.Add(1)
		return nil
	})
	resources := []common.Resource{{Seq: 1, Title: "A", URL: "http://a"}, {Seq: 2, Title: "B", URL: "http://b"}}
	s := New(f, Options{Dir: filepath.Join(file, "sub"), Workers: 2}).Run(context.Background(), resources)

	if len(s.Failed) != 2 || calls.Load() != 0 {
		t.Errorf("Expected every resource failed without fetching, got %v (calls %d)", s.Failed, calls.Load())
	}
}

func TestRunExtract(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("lesson.txt")
	w.Write([]byte("hello"))
	zw.Close()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	}))
	defer ts.Close()

	dir := t.TempDir()
	resources := []common.Resource{{Seq: 1, Title: "Intro", URL: ts.URL + "/intro.zip"}}
	s := New(downloader.New(fastOptions()), Options{Dir: dir, Workers: 1, Extract: true}).Run(context.Background(), resources)
	if !s.OK() {
		t.Fatalf("Run failed: %v", s.Failed)
	}

	content, err := os.ReadFile(filepath.Join(dir, "01 - Intro", "lesson.txt"))
	if err != nil || string(content) != "hello" {
		t.Errorf("Expected extracted lesson.txt, got %q (%v)", content, err)
	}
}

func TestRunReportsProgress(t *testing.T) {
	f := fetchFunc(func(ctx context.Context, res common.Resource, dest string, task display.Task) error {
		task.SetTotal(10)
		task.Advance(10)
		return nil
	})
	var out bytes.Buffer
	d := display.NewWriterDisplay(&out, 0)

	resources := []common.Resource{{Seq: 1, Title: "Intro", URL: "http://a"}}
	New(f, Options{Dir: t.TempDir(), Workers: 1, Display: d}).Run(context.Background(), resources)

	for _, want := range []string{"[Overall] started", "[1 - Intro] Done", "[Overall] Done 1/1"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected %q in display output:\n%s", want, out.String())
		}
	}
}

func TestSummaryReport(t *testing.T) {
	s := &Summary{
		Succeeded: []int{1},
		Failed: map[int]error{
			2: &downloader.ExhaustedError{Attempts: 3, Err: errors.New("reset")},
			3: errors.New("disk full"),
		},
	}
	resources := []common.Resource{
		{Seq: 1, Title: "Intro"}, {Seq: 2, Title: "Advanced"}, {Seq: 3, Title: "Tools"}, {Seq: 4, Title: "Extra"},
	}
	out := s.Report(resources)

	want := []string{"ok", "exhausted", "failed", "skipped"}
	for i, row := range out.Table.Rows {
		if row[2] != want[i] {
			t.Errorf("Row %d status = %q, want %q", i, row[2], want[i])
		}
	}
	if out.Message != "1 downloaded, 2 failed" {
		t.Errorf("Unexpected message %q", out.Message)
	}

	s.Duplicates = []common.Resource{{Seq: 1, Title: "Intro again"}}
	out = s.Report(append(resources, s.Duplicates...))
	if last := out.Table.Rows[len(out.Table.Rows)-1]; last[2] != "duplicate" {
		t.Errorf("Duplicate row status = %q", last[2])
	}
	if out.Table.Rows[0][2] != "ok" {
		t.Errorf("First seq 1 row status = %q, want ok", out.Table.Rows[0][2])
	}
	if out.Message != "1 downloaded, 2 failed, 1 duplicate" {
		t.Errorf("Unexpected message %q", out.Message)
	}
}

func TestDestPath(t *testing.T) {
	got := DestPath("downloads", common.Resource{Seq: 3, Title: "Go / Rust", URL: "http://x/a.tar.gz"})
	if want := filepath.Join("downloads", "03 - Go _ Rust.tar.gz"); got != want {
		t.Errorf("DestPath = %q, want %q", got, want)
	}
}
