// Package display implementation for line-oriented terminal output.
package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"coursedl/pkg/common"
)

// consoleDisplay writes one line per event. It never moves the cursor, so
// it is suitable for pipes and log files.
// Mutable
type consoleDisplay struct {
	mu       sync.Mutex
	out      io.Writer
	interval time.Duration
}

// NewConsole creates a Display that writes to standard error.
func NewConsole() Display {
	return NewWriterDisplay(os.Stderr, time.Second)
}

// NewWriterDisplay creates a Display that writes to the provided io.Writer.
// Progress lines for one task are emitted at most once per interval.
func NewWriterDisplay(w io.Writer, interval time.Duration) Display {
	return &consoleDisplay{
		out:      w,
		interval: interval,
	}
}

// consoleTask reports progress through its parent display.
// Mutable
type consoleTask struct {
	*tracker
	d          *consoleDisplay
	lastReport time.Time
}

func (d *consoleDisplay) StartTask(name string, total int64, unit Unit) Task {
	t := &consoleTask{tracker: newTracker(name, total, unit), d: d}
	d.mu.Lock()
	defer d.mu.Unlock()
	t.lastReport = time.Now()
	fmt.Fprintf(d.out, "[%s] started\n", name)
	return t
}

func (t *consoleTask) SetCompleted(n int64) {
	t.tracker.SetCompleted(n)
	t.d.report(t, false)
}

func (t *consoleTask) Advance(n int64) {
	t.tracker.Advance(n)
	t.d.report(t, false)
}

func (t *consoleTask) Done() {
	if !t.markDone() {
		return
	}
	t.d.report(t, true)
}

func (d *consoleDisplay) report(t *consoleTask, final bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if !final && now.Sub(t.lastReport) < d.interval {
		return
	}
	t.lastReport = now

	s := t.snapshot()
	switch {
	case final:
		fmt.Fprintf(d.out, "[%s] Done %s in %s\n", s.name, s.Counters(), s.elapsed.Round(time.Millisecond))
	case s.Fraction() >= 0:
		fmt.Fprintf(d.out, "[%s] %3.0f%% %s\n", s.name, s.Fraction()*100, s.Counters())
	default:
		fmt.Fprintf(d.out, "[%s] %s\n", s.name, s.Counters())
	}
}

// LogWriter returns a writer that serializes log lines with progress lines.
func (d *consoleDisplay) LogWriter() io.Writer {
	return &lockedWriter{mu: &d.mu, w: d.out}
}

// Print writes a message directly to the output writer.
func (d *consoleDisplay) Print(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprint(d.out, msg)
}

// RenderOutput displays structured data from an Output struct to the console.
func (d *consoleDisplay) RenderOutput(out *common.Output) {
	d.Print(FormatOutput(out))
}

func (d *consoleDisplay) Close() {}

// lockedWriter serializes writes through a shared mutex.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// FormatOutput renders an Output as plain text.
func FormatOutput(out *common.Output) string {
	if out == nil {
		return ""
	}

	var sb strings.Builder
	if out.Message != "" {
		sb.WriteString(out.Message + "\n")
	}

	for _, kv := range out.KV {
		fmt.Fprintf(&sb, "%-12s %s\n", kv.Key+":", kv.Value)
	}

	if out.Table != nil {
		renderTable(&sb, out.Table)
	}
	return sb.String()
}

func renderTable(sb *strings.Builder, t *common.Table) {
	if len(t.Header) == 0 {
		return
	}

	// Simple column width calculation
	widths := make([]int, len(t.Header))
	for i, h := range t.Header {
		widths[i] = len(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	for i, h := range t.Header {
		fmt.Fprintf(sb, "%-*s  ", widths[i], h)
	}
	sb.WriteString("\n")

	totalWidth := 0
	for _, w := range widths {
		totalWidth += w + 2
	}
	sb.WriteString(strings.Repeat("-", totalWidth) + "\n")

	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(sb, "%-*s  ", widths[i], cell)
			}
		}
		sb.WriteString("\n")
	}
}
