package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hkuds/autopy/internal/refine"
)

const maxSummaryLen = 72

// eventMsg carries a loop event into the Bubble Tea program.
type eventMsg refine.Event

// doneMsg stops the progress view.
type doneMsg struct{}

// progressModel is the Bubble Tea model for the run progress view.
type progressModel struct {
	spinner   spinner.Model
	max       int
	iteration int
	state     refine.State
	lines     []string
	done      bool
}

func newProgressModel(maxIterations int) progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	return progressModel{spinner: s, max: maxIterations, state: refine.StateGenerating}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		if msg.Record != nil {
			m.lines = append(m.lines, summarizeRecord(*msg.Record))
			return m, nil
		}
		m.iteration = msg.Iteration
		m.state = msg.State
		return m, nil

	case doneMsg:
		m.done = true
		return m, tea.Quit
	}

	return m, nil
}

func (m progressModel) View() string {
	var sb strings.Builder
	for _, line := range m.lines {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	if m.done {
		return sb.String()
	}

	iteration := m.iteration
	if iteration == 0 {
		iteration = 1
	}
	sb.WriteString(fmt.Sprintf("%s Iteration %d/%d · %s\n", m.spinner.View(), iteration, m.max, m.state))
	return sb.String()
}

// summarizeRecord renders one finished iteration as a single line.
func summarizeRecord(rec refine.IterationRecord) string {
	prefix := fmt.Sprintf("#%d", rec.Index)
	switch {
	case rec.Error != "":
		return errorStyle.Render("✗") + " " + prefix + " " + truncate(firstLine(rec.Error), maxSummaryLen)
	case rec.Result == nil:
		return warningStyle.Render("?") + " " + prefix
	case rec.Result.Success():
		return successStyle.Render("✓") + " " + prefix + " " + subtitleStyle.Render(fmt.Sprintf("ran in %s", rec.Result.Duration.Round(time.Millisecond)))
	default:
		f := rec.Result.Failure
		return errorStyle.Render("✗") + " " + prefix + " " + truncate(f.Kind.String()+": "+lastLine(f.Message), maxSummaryLen)
	}
}

// Progress shows a live spinner and per-iteration summaries while a run is
// in progress. Observe is safe to pass as a refine.Observer.
type Progress struct {
	program  *tea.Program
	finished chan struct{}
}

// NewProgress creates a progress view writing to w.
func NewProgress(w io.Writer, maxIterations int) *Progress {
	return &Progress{
		program: tea.NewProgram(
			newProgressModel(maxIterations),
			tea.WithOutput(w),
			tea.WithInput(nil),
			tea.WithoutSignalHandler(),
		),
		finished: make(chan struct{}),
	}
}

// Start runs the view in the background.
func (p *Progress) Start() {
	go func() {
		defer close(p.finished)
		_, _ = p.program.Run()
	}()
}

// Observe forwards a loop event to the view.
func (p *Progress) Observe(ev refine.Event) {
	p.program.Send(eventMsg(ev))
}

// Stop ends the view and waits for the final frame to be written.
func (p *Progress) Stop() {
	p.program.Send(doneMsg{})
	<-p.finished
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// lastLine returns the last non-empty line, which for a traceback is the
// exception itself.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
