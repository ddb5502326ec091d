package display

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// closeWithin fails the test if d.Close does not return in time.
func closeWithin(t *testing.T, d Display, limit time.Duration) {
	t.Helper()
	closed := make(chan struct{})
	go func() {
		d.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(limit):
		t.Fatal("Close did not return")
	}
}

func TestTUIDisplay(t *testing.T) {
	buf := &bytes.Buffer{}
	d := NewTUI(buf)

	task := d.StartTask("01 - Intro", 100, UnitBytes)
	if task.ID() == uuid.Nil {
		t.Errorf("Expected a task id")
	}
	other := d.StartTask("02 - Advanced", 0, UnitBytes)
	if len(d.(*tuiDisplay).snapshots()) != 2 {
		t.Fatalf("Expected 2 live tasks")
	}

	task.Advance(100)
	task.Done()
	task.Done()
	if live := d.(*tuiDisplay).snapshots(); len(live) != 1 || live[0].name != "02 - Advanced" {
		t.Errorf("Finished task should leave the live area, got %+v", live)
	}
	d.Print("hello\n")
	other.Done()

	closeWithin(t, d, 5*time.Second)

	output := buf.String()
	for _, want := range []string{"✓", "01 - Intro", "100 B / 100 B", "hello", "02 - Advanced"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in output:\n%q", want, output)
		}
	}
	// Once the program has exited, lines go straight to the writer.
	d.Print("after close")
	if !strings.HasSuffix(buf.String(), "after close\n") {
		t.Errorf("Expected direct output after Close, got %q", buf.String())
	}

	closeWithin(t, d, time.Second)
}

func TestTUIDisplayCloseIdle(t *testing.T) {
	buf := &bytes.Buffer{}
	d := NewTUI(buf)
	closeWithin(t, d, 5*time.Second)

	d.LogWriter().Write([]byte("level=WARN msg=late\n"))
	if !strings.Contains(buf.String(), "msg=late") {
		t.Errorf("Expected log line after Close, got %q", buf.String())
	}
}
