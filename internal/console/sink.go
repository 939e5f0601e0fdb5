package console

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/koscakluka/ema-realtime/core/events"
)

// EventMsg delivers a session event to the console program.
type EventMsg struct {
	Event events.Event
}

// Sink buffers session events for the console. Handle never blocks the
// session; events that do not fit the buffer are dropped since the console
// reads the transcript from the session itself.
type Sink struct {
	events chan events.Event
}

func NewSink(capacity int) *Sink {
	if capacity <= 0 {
		capacity = 64
	}
	return &Sink{events: make(chan events.Event, capacity)}
}

func (s *Sink) Handle(event events.Event) {
	if event.Kind() == events.KindAssistantSpeechFrame {
		return
	}
	select {
	case s.events <- event:
	default:
	}
}

func (s *Sink) pump(ctx context.Context, program *tea.Program) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-s.events:
			program.Send(EventMsg{Event: event})
		}
	}
}
