package orchestration

import (
	"time"

	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/events"
	"github.com/koscakluka/ema-realtime/core/tools"
	"github.com/koscakluka/ema-realtime/core/turndetection"
)

const (
	DefaultReconnectAttempts = 3
	DefaultReconnectBase     = 500 * time.Millisecond
	DefaultReconnectMax      = 8 * time.Second
	DefaultTemperature       = 0.8

	inboxCapacity = 256
)

type SessionOption func(*Session)

// WithSessionID overrides the generated session id, typically with the id of
// the job the session serves.
func WithSessionID(id string) SessionOption {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// WithInstructions sets the system prompt sent to the model on every
// connection.
func WithInstructions(instructions string) SessionOption {
	return func(s *Session) {
		s.instructions = instructions
	}
}

// WithGreeting sets the instructions for the reply the agent opens the
// session with.
func WithGreeting(instructions string) SessionOption {
	return func(s *Session) {
		s.greeting = instructions
	}
}

// WithTools registers tools in the session's own registry.
func WithTools(toolset ...tools.Tool) SessionOption {
	return func(s *Session) {
		s.tools = append(s.tools, toolset...)
	}
}

// WithRegistry uses a prepared registry instead of an empty one. Tools passed
// with WithTools are added to it.
func WithRegistry(registry *tools.Registry) SessionOption {
	return func(s *Session) {
		s.registry = registry
	}
}

func WithVAD(vad turndetection.VAD) SessionOption {
	return func(s *Session) {
		s.vad = vad
	}
}

func WithModelConfig(modelID, voiceID string, temperature float64) SessionOption {
	return func(s *Session) {
		s.modelID = modelID
		s.voiceID = voiceID
		s.temperature = temperature
	}
}

// WithEncodings sets the encoding of captured audio and of audio played back
// into the room.
func WithEncodings(input, output audio.EncodingInfo) SessionOption {
	return func(s *Session) {
		s.inputEncoding = input
		s.outputEncoding = output
	}
}

func WithToolTimeout(timeout time.Duration) SessionOption {
	return func(s *Session) {
		s.toolTimeout = timeout
	}
}

// WithReconnectPolicy bounds reconnects after transient model failures:
// attempts consecutive failures are retried with exponential backoff starting
// at base and capped at max.
func WithReconnectPolicy(attempts uint64, base, max time.Duration) SessionOption {
	return func(s *Session) {
		s.reconnectAttempts = attempts
		if base > 0 {
			s.reconnectBase = base
		}
		if max > 0 {
			s.reconnectMax = max
		}
	}
}

// WithBargeIn controls whether the user speaking over the agent cancels its
// reply. With barge-in disabled the utterance is answered after the reply.
func WithBargeIn(enabled bool) SessionOption {
	return func(s *Session) {
		s.bargeIn = enabled
	}
}

func WithEventHandler(handler events.Handler) SessionOption {
	return func(s *Session) {
		s.eventHandler = handler
	}
}
