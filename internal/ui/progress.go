package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"shadekit/internal/shader"
)

type progressModel struct {
	title    string
	events   <-chan shader.Event
	spinner  spinner.Model
	prog     progress.Model
	items    []shaderItem
	index    map[string]int
	phase    string
	width    int
	finished int
	done     bool
}

type shaderItem struct {
	name    string
	status  shader.Status
	elapsed string
}

type eventMsg shader.Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders one line per
// shader until events is closed.
func NewProgressModel(title string, shaders []string, events <-chan shader.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	items := make([]shaderItem, 0, len(shaders))
	index := make(map[string]int, len(shaders))
	for i, name := range shaders {
		items = append(items, shaderItem{name: name, status: shader.StatusQueued})
		index[name] = i
	}
	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		items:   items,
		index:   index,
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(shader.Event(msg))
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
	case progress.FrameMsg:
		pm, cmd := m.prog.Update(msg)
		m.prog = pm.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	if len(m.items) == 0 {
		return ""
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := m.title
	if m.phase != "" {
		header = fmt.Sprintf("%s (%s)", header, m.phase)
	}
	if m.done {
		header = "done: " + header
	} else {
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	const statusWidth, timeWidth = 10, 10
	nameWidth := max(m.width-statusWidth-timeWidth-6, 20)
	for _, item := range m.items {
		status := styleStatus(item.status).Render(fmt.Sprintf("%*s", statusWidth, item.status))
		fmt.Fprintf(&b, "  %s %s %*s\n", status, pad(truncate(item.name, nameWidth), nameWidth), timeWidth, item.elapsed)
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

func (m *progressModel) applyEvent(ev shader.Event) tea.Cmd {
	if ev.Shader == "" {
		if ev.Status == shader.StatusWorking {
			m.phase = string(ev.Stage)
		}
		return nil
	}
	idx, ok := m.index[ev.Shader]
	if !ok {
		return nil
	}
	item := &m.items[idx]
	wasFinal := final(item.status)
	item.status = ev.Status
	if ev.Elapsed > 0 {
		item.elapsed = ev.Elapsed.Round(time.Millisecond).String()
	}
	if final(ev.Status) && !wasFinal {
		m.finished++
	}
	return m.prog.SetPercent(float64(m.finished) / float64(len(m.items)))
}

func final(s shader.Status) bool {
	switch s {
	case shader.StatusDone, shader.StatusFailed, shader.StatusCancelled:
		return true
	}
	return false
}

func styleStatus(s shader.Status) lipgloss.Style {
	switch s {
	case shader.StatusDone:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case shader.StatusFailed:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case shader.StatusCancelled:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	case shader.StatusWorking:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}

func pad(value string, width int) string {
	return runewidth.FillRight(value, width)
}
