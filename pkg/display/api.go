// Package display renders progress and output for coursedl.
//
// A Display is the sink for progress events: callers register a Task per
// unit of work and advance it as bytes (or items) complete. Every
// implementation is safe for concurrent use by many download workers.
package display

import (
	"io"

	"coursedl/pkg/common"

	"github.com/google/uuid"
)

// Unit tells a display how to format a task's counters.
type Unit int

const (
	// UnitBytes formats counters as byte sizes.
	UnitBytes Unit = iota
	// UnitItems formats counters as plain counts.
	UnitItems
)

// Task represents a unit of work that can be monitored.
type Task interface {
	// ID returns the identifier assigned when the task was registered.
	ID() uuid.UUID
	// SetTotal updates the expected total. Zero or negative means unknown.
	SetTotal(total int64)
	// SetCompleted sets the completed counter to an absolute value.
	SetCompleted(n int64)
	// Advance adds n to the completed counter.
	Advance(n int64)
	// Done marks the task as finished and removes it from live rendering.
	// It is the responsibility of the caller who created the task via StartTask.
	Done()
}

// Display handles the visualization of tasks and logs.
type Display interface {
	// StartTask registers a new tracked Task. total may be zero when unknown.
	StartTask(name string, total int64, unit Unit) Task
	// LogWriter returns a writer for log lines that does not corrupt the
	// progress rendering.
	LogWriter() io.Writer
	// Print adds a primary output message (e.g. table, info) to the display.
	Print(msg string)
	// RenderOutput prints structured output.
	RenderOutput(out *common.Output)
	// Close stops live rendering and flushes the final state.
	Close()
}
