// SPDX-License-Identifier: MPL-2.0

package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

const (
	progressBarWidth = 40
	updateBuffer     = 64
	stopTimeout      = 500 * time.Millisecond

	// plainStep is the percentage step between plain progress lines.
	plainStep = 10
	// plainUnknownStep is the byte step between plain progress lines when
	// the size is unknown.
	plainUnknownStep = 5 << 20
)

//nolint:gochecknoglobals // Shared display styles.
var (
	stageStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F8F8F2"))
	countStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6272A4"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF79C6"))
	boxStyle     = lipgloss.NewStyle().Padding(0, 1)
)

type (
	stageMsg   string
	sizeMsg    int64
	writtenMsg int64
	doneMsg    struct{}

	progressModel struct {
		spinner spinner.Model
		bar     progress.Model
		stage   string
		total   int64
		written int64
		sizing  bool
		done    bool
		updates chan tea.Msg
	}

	// ProgressDisplay renders download progress with Bubble Tea. Its
	// SizeKnown and Progress methods never block: updates that do not fit the
	// buffer are dropped.
	ProgressDisplay struct {
		program *tea.Program
		model   *progressModel
		out     io.Writer
		done    chan struct{}
		mu      sync.Mutex
		stopped bool
	}

	// PlainProgress writes progress as plain lines for logs and pipes.
	PlainProgress struct {
		mu       sync.Mutex
		out      io.Writer
		total    int64
		lastStep int64
	}
)

func newProgressModel() *progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	return &progressModel{
		spinner: s,
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(progressBarWidth),
		),
		updates: make(chan tea.Msg, updateBuffer),
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForUpdate())
}

func (m *progressModel) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		return <-m.updates
	}
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stageMsg:
		m.stage = string(msg)
		m.sizing = false
		return m, m.waitForUpdate()
	case sizeMsg:
		m.total = int64(msg)
		m.written = 0
		m.sizing = true
		return m, m.waitForUpdate()
	case writtenMsg:
		m.written = int64(msg)
		return m, m.waitForUpdate()
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	switch {
	case m.sizing && m.total > 0:
		b.WriteString(m.bar.ViewAs(m.percent()))
		b.WriteString(" ")
		b.WriteString(countStyle.Render(fmt.Sprintf("%s / %s",
			humanize.IBytes(uint64(m.written)), humanize.IBytes(uint64(m.total)))))
	case m.sizing:
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
		b.WriteString(stageStyle.Render("Downloading " + humanize.IBytes(uint64(m.written))))
	default:
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
		b.WriteString(stageStyle.Render(m.stage))
	}
	return boxStyle.Render(b.String())
}

func (m *progressModel) percent() float64 {
	if m.total <= 0 {
		return 0
	}
	return min(float64(m.written)/float64(m.total), 1)
}

func (m *progressModel) send(msg tea.Msg) {
	select {
	case m.updates <- msg:
	default:
		// Drop if the display is behind.
	}
}

// NewProgressDisplay starts an inline display on w. It leaves stdin and
// signals alone so Ctrl+C still cancels the command context.
func NewProgressDisplay(w io.Writer) *ProgressDisplay {
	model := newProgressModel()
	program := tea.NewProgram(model,
		tea.WithOutput(w),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)

	d := &ProgressDisplay{
		program: program,
		model:   model,
		out:     w,
		done:    make(chan struct{}),
	}
	go func() {
		_, _ = program.Run()
		close(d.done)
	}()
	return d
}

// Stage shows a spinner with text until the next download starts.
func (d *ProgressDisplay) Stage(text string) {
	if d.active() {
		d.model.send(stageMsg(text))
	}
}

// SizeKnown switches the display to a byte counter for a new download.
func (d *ProgressDisplay) SizeKnown(total int64) {
	if d.active() {
		d.model.send(sizeMsg(total))
	}
}

// Progress updates the byte counter.
func (d *ProgressDisplay) Progress(written int64) {
	if d.active() {
		d.model.send(writtenMsg(written))
	}
}

// Stop ends the display and clears its line. It is safe to call twice.
func (d *ProgressDisplay) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	d.model.send(doneMsg{})
	select {
	case <-d.done:
	case <-time.After(stopTimeout):
		d.program.Kill()
	}
	_, _ = fmt.Fprint(d.out, "\r\033[K")
}

func (d *ProgressDisplay) active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.stopped
}

// NewPlainProgress creates a PlainProgress writing to w.
func NewPlainProgress(w io.Writer) *PlainProgress {
	return &PlainProgress{out: w}
}

// Stage prints text on its own line.
func (p *PlainProgress) Stage(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(p.out, text)
}

// SizeKnown starts a new download.
func (p *PlainProgress) SizeKnown(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
	p.lastStep = 0
	if total > 0 {
		_, _ = fmt.Fprintf(p.out, "downloading %s\n", humanize.IBytes(uint64(total)))
	} else {
		_, _ = fmt.Fprintln(p.out, "downloading (size unknown)")
	}
}

// Progress prints a line every plainStep percent, or every plainUnknownStep
// bytes when the size is unknown.
func (p *PlainProgress) Progress(written int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.total > 0 {
		step := written * 100 / p.total / plainStep
		if step <= p.lastStep {
			return
		}
		p.lastStep = step
		_, _ = fmt.Fprintf(p.out, "  %3d%%  %s / %s\n", min(step*plainStep, 100),
			humanize.IBytes(uint64(written)), humanize.IBytes(uint64(p.total)))
		return
	}

	step := written / plainUnknownStep
	if step <= p.lastStep {
		return
	}
	p.lastStep = step
	_, _ = fmt.Fprintf(p.out, "  %s\n", humanize.IBytes(uint64(written)))
}

// Stop is a no-op; it lets PlainProgress stand in for ProgressDisplay.
func (p *PlainProgress) Stop() {}
