package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// TaskState is the coarse lifecycle stage reported to the progress view.
type TaskState uint8

const (
	StateQueued TaskState = iota
	StateWaiting
	StateDone
	StateFailed
)

func (s TaskState) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateWaiting:
		return "waiting"
	case StateDone:
		return "done"
	case StateFailed:
		return "error"
	default:
		return ""
	}
}

func (s TaskState) finished() bool { return s == StateDone || s == StateFailed }

// TaskEvent reports a state change of one task.
type TaskEvent struct {
	ID     uint64
	Name   string
	State  TaskState
	Detail string
}

const recentRows = 8

type progressModel struct {
	title   string
	total   int
	events  <-chan TaskEvent
	spinner spinner.Model
	prog    progress.Model
	states  map[uint64]TaskState
	counts  [StateFailed + 1]int
	recent  []TaskEvent
	width   int
	done    bool
}

type eventMsg TaskEvent
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders the progress of
// total tasks from the events channel. The model quits when events is closed.
func NewProgressModel(title string, total int, events <-chan TaskEvent) tea.Model {
	return newProgressModel(title, total, events)
}

func newProgressModel(title string, total int, events <-chan TaskEvent) *progressModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	return &progressModel{
		title:   title,
		total:   total,
		events:  events,
		spinner: sp,
		prog:    prog,
		states:  make(map[uint64]TaskState, total),
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(TaskEvent(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil
	case progress.FrameMsg:
		progressModel, cmd := m.prog.Update(msg)
		m.prog = progressModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := fmt.Sprintf("%s (%d/%d)", m.title, m.finished(), m.total)
	if m.done {
		header = "done: " + header
	} else {
		header = fmt.Sprintf("%s %s", m.spinner.View(), header)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	for _, st := range []TaskState{StateQueued, StateWaiting, StateDone, StateFailed} {
		fmt.Fprintf(&b, "  %s %d\n", styleStatus(st).Render(fmt.Sprintf("%8s", st)), m.counts[st])
	}
	b.WriteString("\n")

	nameWidth := m.width - 14
	if nameWidth < 20 {
		nameWidth = 20
	}
	for _, ev := range m.recent {
		label := ev.Name
		if label == "" {
			label = fmt.Sprintf("task#%d", ev.ID)
		}
		if ev.Detail != "" {
			label += " " + ev.Detail
		}
		status := styleStatus(ev.State).Render(fmt.Sprintf("%8s", ev.State))
		fmt.Fprintf(&b, "  %s %s\n", status, truncate(label, nameWidth))
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")
	return b.String()
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) applyEvent(ev TaskEvent) tea.Cmd {
	if int(ev.State) >= len(m.counts) {
		return nil
	}
	prev, seen := m.states[ev.ID]
	if seen {
		if prev.finished() {
			return nil
		}
		m.counts[prev]--
	}
	m.states[ev.ID] = ev.State
	m.counts[ev.State]++

	if ev.State.finished() {
		m.recent = append(m.recent, ev)
		if len(m.recent) > recentRows {
			m.recent = m.recent[len(m.recent)-recentRows:]
		}
	}
	if m.total <= 0 {
		return nil
	}
	return m.prog.SetPercent(float64(m.finished()) / float64(m.total))
}

func (m *progressModel) finished() int {
	return m.counts[StateDone] + m.counts[StateFailed]
}

func styleStatus(st TaskState) lipgloss.Style {
	switch st {
	case StateDone:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case StateFailed:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case StateWaiting:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width-3, "...")
}
