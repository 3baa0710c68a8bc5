// Package tui is the terminal front end. Its update loop is the owning
// goroutine of one session: every tick drives Session.Tick and the screen
// is a projection of the published view.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jerhadf/voice-computer-use/internal/gateway"
	"github.com/jerhadf/voice-computer-use/internal/types"
)

const (
	maxToolInput  = 200
	maxToolOutput = 400
)

type tickMsg time.Time

// Model is the bubbletea model for one session.
type Model struct {
	session  *gateway.Session
	interval time.Duration
	inbox    <-chan string

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	rendered int
	ready    bool
	width    int
}

// New creates a Model that drives session every interval.
func New(session *gateway.Session, interval time.Duration) Model {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ti := textinput.New()
	ti.Placeholder = "Tell the computer what to do..."
	ti.Prompt = "› "
	ti.CharLimit = 4000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		session:  session,
		interval: interval,
		input:    ti,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		rendered: -1,
	}
}

// WithInbox makes the model submit text received on ch, e.g. from the HTTP
// server, on each tick.
func (m Model) WithInbox(ch <-chan string) Model {
	m.inbox = ch
	return m
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, tick(m.interval))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-4, 1)
		m.input.Width = max(msg.Width-4, 10)
		m.ready = true
		m.rendered = -1
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if text := strings.TrimSpace(m.input.Value()); text != "" {
				m.session.SubmitUserInput(text)
				m.input.Reset()
				m.session.Tick()
				m.refresh()
			}
			return m, nil
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tickMsg:
		m.drainInbox()
		if m.session.Tick() {
			m.refresh()
		}
		return m, tick(m.interval)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) drainInbox() {
	for {
		select {
		case text, ok := <-m.inbox:
			if !ok {
				m.inbox = nil
				return
			}
			m.session.SubmitUserInput(text)
		default:
			return
		}
	}
}

// refresh re-renders the transcript when the log has grown.
func (m *Model) refresh() {
	view := m.session.View()
	if len(view.Events) == m.rendered {
		return
	}
	m.rendered = len(view.Events)
	lines := make([]string, 0, len(view.Events))
	for _, ev := range view.Events {
		lines = append(lines, RenderEvent(ev))
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "starting..."
	}
	view := m.session.View()
	status := fmt.Sprintf("%s  cursor %d/%d  runs %d", view.State, view.Cursor, len(view.Events), view.Runs)
	if view.Failures > 0 {
		status += errorStyle.Render(fmt.Sprintf("  failures %d", view.Failures))
	}
	if view.State == gateway.StateRunning {
		status = m.spinner.View() + " " + status
	}

	return strings.Join([]string{
		headerStyle.Render("voicepilot") + statusStyle.Render("  "+string(view.SessionKey)),
		m.viewport.View(),
		statusStyle.Render(status),
		m.input.View(),
	}, "\n")
}

// RenderEvent formats one log entry as a single styled line.
func RenderEvent(ev types.Event) string {
	switch ev.Kind {
	case types.KindUserInput:
		return userStyle.Render("you › ") + ev.Text
	case types.KindAssistantOutput:
		return assistantStyle.Render("assistant › " + ev.Text)
	case types.KindToolUse:
		if ev.ToolUse == nil {
			return ""
		}
		return toolStyle.Render(fmt.Sprintf("⚙ %s %s", ev.ToolUse.Name, truncate(string(ev.ToolUse.Input), maxToolInput)))
	case types.KindToolResult:
		if ev.ToolResult == nil {
			return ""
		}
		r := ev.ToolResult
		if r.Failed() {
			return errorStyle.Render("↳ error: " + truncate(r.Error, maxToolOutput))
		}
		var parts []string
		if r.System != "" {
			parts = append(parts, "["+r.System+"]")
		}
		if r.Output != "" {
			parts = append(parts, truncate(r.Output, maxToolOutput))
		}
		if len(r.Image) > 0 {
			parts = append(parts, fmt.Sprintf("[screenshot %d bytes]", len(r.Image)))
		}
		return resultStyle.Render("↳ " + strings.Join(parts, " "))
	case types.KindError:
		return errorStyle.Render("✗ " + ev.Detail)
	}
	return ""
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
