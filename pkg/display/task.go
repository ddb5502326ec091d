package display

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// tracker holds the counters shared by the console and TUI tasks.
// Mutable
type tracker struct {
	id        uuid.UUID
	name      string
	unit      Unit
	start     time.Time
	total     atomic.Int64
	completed atomic.Int64
	done      atomic.Bool
}

func newTracker(name string, total int64, unit Unit) *tracker {
	t := &tracker{
		id:    uuid.New(),
		name:  name,
		unit:  unit,
		start: time.Now(),
	}
	t.total.Store(total)
	return t
}

func (t *tracker) ID() uuid.UUID        { return t.id }
func (t *tracker) SetTotal(total int64) { t.total.Store(total) }
func (t *tracker) SetCompleted(n int64) { t.completed.Store(n) }
func (t *tracker) Advance(n int64)      { t.completed.Add(n) }

// markDone reports whether this call is the one that finished the task.
func (t *tracker) markDone() bool { return t.done.CompareAndSwap(false, true) }

// snapshot is a consistent copy of a tracker's counters.
type snapshot struct {
	name      string
	unit      Unit
	total     int64
	completed int64
	elapsed   time.Duration
}

func (t *tracker) snapshot() snapshot {
	return snapshot{
		name:      t.name,
		unit:      t.unit,
		total:     t.total.Load(),
		completed: t.completed.Load(),
		elapsed:   time.Since(t.start),
	}
}

// Fraction returns completion in [0,1], or -1 when the total is unknown.
func (s snapshot) Fraction() float64 {
	if s.total <= 0 {
		return -1
	}
	f := float64(s.completed) / float64(s.total)
	if f > 1 {
		f = 1
	}
	return f
}

// Counters formats "done / total (speed)" for the task's unit.
func (s snapshot) Counters() string {
	if s.unit == UnitItems {
		if s.total > 0 {
			return fmt.Sprintf("%d/%d", s.completed, s.total)
		}
		return fmt.Sprintf("%d", s.completed)
	}

	speed := ""
	if secs := s.elapsed.Seconds(); secs > 0 {
		speed = fmt.Sprintf(" (%s/s)", humanize.Bytes(uint64(float64(s.completed)/secs)))
	}
	if s.total > 0 {
		return fmt.Sprintf("%s / %s%s", humanize.Bytes(uint64(s.completed)), humanize.Bytes(uint64(s.total)), speed)
	}
	return fmt.Sprintf("%s downloaded%s", humanize.Bytes(uint64(s.completed)), speed)
}

// nopTask is a Task that records nothing.
// Immutable
type nopTask struct {
	id uuid.UUID
}

// NopTask returns a Task that ignores every event.
func NopTask() Task {
	return nopTask{id: uuid.New()}
}

func (n nopTask) ID() uuid.UUID    { return n.id }
func (nopTask) SetTotal(int64)     {}
func (nopTask) SetCompleted(int64) {}
func (nopTask) Advance(int64)      {}
func (nopTask) Done()              {}
