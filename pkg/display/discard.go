package display

import (
	"fmt"
	"io"
	"sync"

	"coursedl/pkg/common"
)

// quietDisplay drops progress events but still passes logs and output
// through to its writer.
// Immutable
type quietDisplay struct {
	mu  *sync.Mutex
	out io.Writer
}

// NewQuiet returns a Display that renders no progress. Logs and printed
// output still go to w.
func NewQuiet(w io.Writer) Display {
	return &quietDisplay{mu: &sync.Mutex{}, out: w}
}

// Discard returns a Display that drops everything.
func Discard() Display {
	return NewQuiet(io.Discard)
}

func (d *quietDisplay) StartTask(string, int64, Unit) Task {
	return NopTask()
}

func (d *quietDisplay) LogWriter() io.Writer {
	return &lockedWriter{mu: d.mu, w: d.out}
}

func (d *quietDisplay) Close() {}

func (d *quietDisplay) Print(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprint(d.out, msg)
}

func (d *quietDisplay) RenderOutput(out *common.Output) {
	d.Print(FormatOutput(out))
}
