package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/dkoosis/runledger/internal/supervisor"
	"github.com/dkoosis/runledger/pkg/render"
	"github.com/dkoosis/runledger/pkg/result"
)

const (
	tailLines     = 8
	updateBacklog = 256
	defaultWidth  = 80
)

// TUI draws a spinner, the running case, a tally and the last few lines of
// output. Ctrl+C or q cancels the run; a second press leaves the view.
type TUI struct {
	out   io.Writer
	theme render.Theme

	updates chan update
	exited  chan struct{}
	handle  atomic.Pointer[supervisor.Handle]

	started atomic.Bool
	done    chan struct{}
	err     error

	exitOnce sync.Once
}

// NewTUI returns a TUI writing to out.
func NewTUI(out io.Writer, theme render.Theme) *TUI {
	return &TUI{
		out:     out,
		theme:   theme,
		updates: make(chan update, updateBacklog),
		exited:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// update is one item for the model. Exactly one field is set.
type update struct {
	line      *string
	caseStart *supervisor.CaseStart
	caseEnd   *supervisor.CaseEnd
	runEnd    *supervisor.RunEnd
}

func (t *TUI) OnCaseStart(e supervisor.CaseStart) { t.send(update{caseStart: &e}) }
func (t *TUI) OnCaseEnd(e supervisor.CaseEnd)     { t.send(update{caseEnd: &e}) }
func (t *TUI) OnRunEnd(e supervisor.RunEnd)       { t.send(update{runEnd: &e}) }

// send hands u to the model, or drops it once the view has exited.
func (t *TUI) send(u update) bool {
	select {
	case t.updates <- u:
		return true
	case <-t.exited:
		return false
	}
}

// Follow starts the program and streams h's lines into it.
func (t *TUI) Follow(ctx context.Context, h *supervisor.Handle) {
	t.handle.Store(h)
	if !t.started.CompareAndSwap(false, true) {
		return
	}

	m := newModel(t.theme, t.updates, func() {
		if h := t.handle.Load(); h != nil {
			h.Cancel()
		}
	})
	program := tea.NewProgram(m, tea.WithContext(ctx), tea.WithOutput(t.out))

	go func() {
		defer close(t.done)
		_, err := program.Run()
		t.exitOnce.Do(func() { close(t.exited) })
		if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			t.err = fmt.Errorf("live view: %w", err)
		}
	}()
	go func() {
		for line := range h.Lines() {
			if !t.send(update{line: &line}) {
				return
			}
		}
	}()
}

// Wait blocks until the program exits. It returns at once when Follow was
// never called.
func (t *TUI) Wait() error {
	if !t.started.Load() {
		return nil
	}
	<-t.done
	return t.err
}

type updateMsg update
type closedMsg struct{}

type model struct {
	theme   render.Theme
	spinner spinner.Model
	updates <-chan update
	cancel  func()

	start      time.Time
	width      int
	current    string
	counts     tally
	tail       []string
	cancelling bool
	done       bool
	res        supervisor.Result
}

func newModel(theme render.Theme, updates <-chan update, cancel func()) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Primary
	return model{
		theme:   theme,
		spinner: sp,
		updates: updates,
		cancel:  cancel,
		start:   time.Now(),
		width:   defaultWidth,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.listenUpdates(), m.spinner.Tick)
}

func (m model) listenUpdates() tea.Cmd {
	return func() tea.Msg {
		u, ok := <-m.updates
		if !ok {
			return closedMsg{}
		}
		return updateMsg(u)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.done || m.cancelling {
				return m, tea.Quit
			}
			m.cancelling = true
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = max(msg.Width, 20)
		return m, nil
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case closedMsg:
		return m, tea.Quit
	case updateMsg:
		m = m.apply(update(msg))
		if m.done {
			return m, tea.Quit
		}
		return m, m.listenUpdates()
	}
	return m, nil
}

func (m model) apply(u update) model {
	switch {
	case u.line != nil:
		m.tail = append(m.tail, *u.line)
		if len(m.tail) > tailLines {
			m.tail = m.tail[len(m.tail)-tailLines:]
		}
	case u.caseStart != nil:
		m.current = u.caseStart.ID
	case u.caseEnd != nil:
		m.counts.add(u.caseEnd.Outcome)
		if u.caseEnd.ID == m.current && u.caseEnd.Outcome != result.Rerun {
			m.current = ""
		}
	case u.runEnd != nil:
		m.done = true
		m.current = ""
		m.res = u.runEnd.Result
	}
	return m
}

func (m model) View() string {
	var sb strings.Builder
	if m.done {
		sb.WriteString(endLine(m.theme, m.res))
		sb.WriteString("  ")
		sb.WriteString(m.counts.render(m.theme))
		sb.WriteString("\n")
		return sb.String()
	}

	status := "running"
	if m.cancelling {
		status = "cancelling"
	}
	sb.WriteString(m.spinner.View())
	sb.WriteString(" ")
	sb.WriteString(m.theme.Bold.Render(status))
	sb.WriteString(m.theme.Muted.Render(fmt.Sprintf("  %s  ", time.Since(m.start).Round(100*time.Millisecond))))
	sb.WriteString(m.counts.render(m.theme))
	sb.WriteString("\n")

	if m.current != "" {
		sb.WriteString(m.theme.Primary.Render("  ▸ " + runewidth.Truncate(m.current, m.width-4, "…")))
		sb.WriteString("\n")
	}
	lines := make([]string, 0, len(m.tail))
	for _, l := range m.tail {
		lines = append(lines, m.theme.Muted.Render("  "+runewidth.Truncate(l, m.width-2, "…")))
	}
	sb.WriteString(lipgloss.JoinVertical(lipgloss.Left, lines...))
	if len(lines) > 0 {
		sb.WriteString("\n")
	}
	return sb.String()
}
