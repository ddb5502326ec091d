package display

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"coursedl/pkg/common"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	tuiRefresh    = 200 * time.Millisecond
	tuiLabelWidth = 36
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Faint(true)
	doneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)

// tuiDisplay renders live progress bars with a bubbletea program. Finished
// tasks are printed above the live area and dropped from it.
// Mutable
type tuiDisplay struct {
	mu        sync.Mutex
	tasks     []*tuiTask
	out       io.Writer
	program   *tea.Program
	done      chan struct{}
	closeOnce sync.Once
}

// tuiTask is a tracked task owned by a tuiDisplay.
type tuiTask struct {
	*tracker
	d *tuiDisplay
}

func (t *tuiTask) Done() {
	if !t.markDone() {
		return
	}
	t.d.finish(t)
}

// NewTUI starts a bubbletea program writing to w. Close must be called to
// restore the terminal.
func NewTUI(w io.Writer) Display {
	d := &tuiDisplay{
		out:  w,
		done: make(chan struct{}),
	}
	m := tuiModel{
		d:   d,
		bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(30), progress.WithoutPercentage()),
	}
	d.program = tea.NewProgram(m, tea.WithOutput(w), tea.WithInput(nil), tea.WithoutSignalHandler())

	go func() {
		defer close(d.done)
		if _, err := d.program.Run(); err != nil {
			fmt.Fprintf(w, "progress display stopped: %v\n", err)
		}
	}()
	return d
}

func (d *tuiDisplay) StartTask(name string, total int64, unit Unit) Task {
	t := &tuiTask{tracker: newTracker(name, total, unit), d: d}
	d.mu.Lock()
	d.tasks = append(d.tasks, t)
	d.mu.Unlock()
	return t
}

func (d *tuiDisplay) finish(t *tuiTask) {
	d.mu.Lock()
	for i, other := range d.tasks {
		if other == t {
			d.tasks = append(d.tasks[:i], d.tasks[i+1:]...)
			break
		}
	}
	d.mu.Unlock()

	s := t.snapshot()
	d.println(fmt.Sprintf("%s %s %s", doneStyle.Render("✓"), s.name, dimStyle.Render(s.Counters())))
}

func (d *tuiDisplay) snapshots() []snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]snapshot, 0, len(d.tasks))
	for _, t := range d.tasks {
		out = append(out, t.snapshot())
	}
	return out
}

// println prints a line above the live area, or directly once the program
// has exited.
func (d *tuiDisplay) println(line string) {
	select {
	case <-d.done:
		d.mu.Lock()
		fmt.Fprintln(d.out, line)
		d.mu.Unlock()
	default:
		d.program.Send(tea.Println(line)())
	}
}

func (d *tuiDisplay) LogWriter() io.Writer {
	return tuiLogWriter{d: d}
}

func (d *tuiDisplay) Print(msg string) {
	for _, line := range strings.Split(strings.TrimRight(msg, "\n"), "\n") {
		d.println(line)
	}
}

func (d *tuiDisplay) RenderOutput(out *common.Output) {
	if s := FormatOutput(out); s != "" {
		d.Print(s)
	}
}

func (d *tuiDisplay) Close() {
	d.closeOnce.Do(func() {
		d.program.Send(closeMsg{})
		<-d.done
	})
}

// tuiLogWriter turns log output into lines printed above the progress bars.
type tuiLogWriter struct {
	d *tuiDisplay
}

func (w tuiLogWriter) Write(p []byte) (int, error) {
	w.d.Print(string(p))
	return len(p), nil
}

type tickMsg time.Time

type closeMsg struct{}

// tuiModel is the bubbletea model; the task list lives in the display and
// is sampled on every tick.
type tuiModel struct {
	d       *tuiDisplay
	bar     progress.Model
	closing bool
}

func tick() tea.Cmd {
	return tea.Tick(tuiRefresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m tuiModel) Init() tea.Cmd {
	return tick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if m.closing {
			return m, nil
		}
		return m, tick()
	case closeMsg:
		m.closing = true
		return m, tea.Quit
	case tea.WindowSizeMsg:
		width := msg.Width - tuiLabelWidth - 40
		if width < 10 {
			width = 10
		}
		if width > 60 {
			width = 60
		}
		m.bar.Width = width
	}
	return m, nil
}

func (m tuiModel) View() string {
	var sb strings.Builder
	for _, s := range m.d.snapshots() {
		bar := dimStyle.Render(strings.Repeat("·", m.bar.Width))
		if f := s.Fraction(); f >= 0 {
			bar = m.bar.ViewAs(f)
		}
		fmt.Fprintf(&sb, "%s %s %s\n", labelStyle.Render(fitLabel(s.name, tuiLabelWidth)), bar, dimStyle.Render(s.Counters()))
	}
	return sb.String()
}

// fitLabel truncates or pads name to exactly width cells.
func fitLabel(name string, width int) string {
	if lipgloss.Width(name) > width {
		runes := []rune(name)
		for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
			runes = runes[:len(runes)-1]
		}
		name = string(runes) + "…"
	}
	return name + strings.Repeat(" ", max(0, width-lipgloss.Width(name)))
}
