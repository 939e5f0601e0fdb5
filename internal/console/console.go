// Package console renders a live session transcript in the terminal and
// forwards typed input to the session.
package console

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	orchestration "github.com/koscakluka/ema-realtime/core"
	"github.com/koscakluka/ema-realtime/core/events"
	"github.com/koscakluka/ema-realtime/core/transcript"
	"github.com/muesli/reflow/wordwrap"
)

// chrome is the number of rows used by everything but the transcript.
const chrome = 6

type Session interface {
	ID() string
	State() orchestration.State
	Transcript() []transcript.Turn
	SubmitText(text string) error
	Close()
}

type Model struct {
	session Session
	styles  styles

	timeline viewport.Model
	input    textinput.Model
	width    int

	status string
	err    string
}

func NewModel(session Session) Model {
	input := textinput.New()
	input.Placeholder = "Type a message and press enter"
	input.Prompt = "> "
	input.CharLimit = 500
	input.Focus()

	return Model{
		session:  session,
		styles:   defaultStyles(),
		timeline: viewport.New(0, 0),
		input:    input,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.timeline.Width = msg.Width
		m.timeline.Height = max(msg.Height-chrome, 1)
		m.input.Width = max(msg.Width-6, 10)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.session.Close()
			return m, tea.Quit
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if text == "" {
				return m, nil
			}
			if err := m.session.SubmitText(text); err != nil {
				m.err = err.Error()
			} else {
				m.err = ""
			}
			m.refresh()
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.timeline, cmd = m.timeline.Update(msg)
			return m, cmd
		}

	case EventMsg:
		quit := m.observe(msg.Event)
		m.refresh()
		if quit {
			return m, tea.Quit
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// observe updates the status line and reports whether the console should
// exit.
func (m *Model) observe(event events.Event) bool {
	switch e := event.(type) {
	case events.SessionStateChanged:
		m.status = ""
	case events.UserSpeechStarted:
		m.status = "listening..."
	case events.ToolCallStarted:
		m.status = fmt.Sprintf("calling %s", e.Name)
	case events.ToolCallFailed:
		m.status = fmt.Sprintf("%s failed: %s", e.Name, e.Error)
	case events.TurnCancelled:
		m.status = "interrupted"
	case events.AssistantResponseFinal:
		m.status = ""
	case events.SessionFailed:
		m.err = e.Error
	case events.SessionClosed:
		return true
	}
	return false
}

func (m *Model) refresh() {
	m.timeline.SetContent(m.render(m.session.Transcript()))
	m.timeline.GotoBottom()
}

func (m Model) render(turns []transcript.Turn) string {
	width := m.width
	if width <= 0 {
		width = 80
	}

	var b strings.Builder
	for _, turn := range turns {
		label := m.styles.speakers[turn.Speaker].Render(speakerLabel(turn))
		text := turn.Text
		if turn.InFlight() && text == "" {
			text = "..."
		}
		b.WriteString(label)
		b.WriteString("\n")
		b.WriteString(wordwrap.String(text, max(width-2, 10)))
		if turn.Truncated {
			b.WriteString(" ")
			b.WriteString(m.styles.truncated.Render("(interrupted)"))
		}
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func speakerLabel(turn transcript.Turn) string {
	switch turn.Speaker {
	case transcript.SpeakerUser:
		return "you"
	case transcript.SpeakerAgent:
		return "shams"
	case transcript.SpeakerTool:
		return "tool " + turn.ToolName
	}
	return string(turn.Speaker)
}

func (m Model) View() string {
	header := m.styles.header.Render("shams") + m.styles.state.Render(m.session.State().String())

	footer := m.styles.footer.Render(m.status)
	if m.err != "" {
		footer = m.styles.err.Render(m.err)
	}

	return strings.Join([]string{
		header,
		m.timeline.View(),
		m.styles.input.Render(m.input.View()),
		footer,
	}, "\n")
}

// Run shows the console until the user quits, the session closes or ctx is
// cancelled. Events handed to sink are delivered to the console while it
// runs.
func Run(ctx context.Context, session Session, sink *Sink) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(NewModel(session), tea.WithAltScreen(), tea.WithContext(ctx))
	if sink != nil {
		go sink.pump(ctx, program)
	}

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		logger.Error("console stopped", "session", session.ID(), "error", err)
		return fmt.Errorf("failed to run console: %w", err)
	}
	return nil
}
