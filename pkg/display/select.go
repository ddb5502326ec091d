package display

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Display modes accepted by New.
const (
	ModeAuto  = "auto"
	ModeTUI   = "tui"
	ModePlain = "plain"
	ModeNone  = "none"
)

// New builds the Display for mode writing to w. In auto mode the TUI is
// used only when w is a terminal.
func New(mode string, w io.Writer) (Display, error) {
	switch mode {
	case ModeAuto, "":
		if IsTerminal(w) {
			return NewTUI(w), nil
		}
		return NewWriterDisplay(w, time.Second), nil
	case ModeTUI:
		return NewTUI(w), nil
	case ModePlain:
		return NewWriterDisplay(w, time.Second), nil
	case ModeNone:
		return NewQuiet(w), nil
	default:
		return nil, fmt.Errorf("unknown display mode %q", mode)
	}
}

// IsTerminal reports whether w is a character device.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
