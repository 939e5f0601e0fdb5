package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/koscakluka/ema-realtime/core/realtime"
	"google.golang.org/genai"
)

var errStreamClosed = errors.New("gemini live stream closed")

type received struct {
	msg realtime.Message
	err error
}

// stream adapts a Gemini Live session. Gemini has no response ids, so the
// stream numbers responses itself and moves to the next id whenever a turn
// completes, is interrupted, or ends in tool calls.
type stream struct {
	session   liveSession
	inputMIME string

	mu          sync.Mutex
	responseSeq int
	hasOutput   bool

	received  chan received
	closed    chan struct{}
	closeOnce sync.Once
}

func newStream(session liveSession, inputMIME string) *stream {
	s := &stream{
		session:     session,
		inputMIME:   inputMIME,
		responseSeq: 1,
		received:    make(chan received, 64),
		closed:      make(chan struct{}),
	}
	go s.readMessages()
	return s
}

func (s *stream) SendAudio(frame []byte) error {
	return s.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: frame, MIMEType: s.inputMIME},
	})
}

func (s *stream) SendText(text string) error {
	return s.session.SendClientContent(genai.LiveClientContentInput{
		Turns: []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
	})
}

// CommitInput is a no-op: Gemini detects the end of user speech itself.
func (s *stream) CommitInput() error {
	return nil
}

// CreateResponse sends instructions as a user turn. Without instructions it
// does nothing, since Gemini resumes on its own once tool responses arrive.
func (s *stream) CreateResponse(instructions string) error {
	if instructions == "" {
		return nil
	}
	return s.SendText(instructions)
}

// CancelResponse is a no-op: Gemini stops talking when it hears the user and
// reports the interruption.
func (s *stream) CancelResponse() error {
	return nil
}

func (s *stream) SendToolResult(callID, name, output string) error {
	return s.session.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: []*genai.FunctionResponse{{
			ID:       callID,
			Name:     name,
			Response: map[string]any{"result": output},
		}},
	})
}

func (s *stream) Recv(ctx context.Context) (realtime.Message, error) {
	select {
	case r, ok := <-s.received:
		if !ok {
			return realtime.Message{}, errStreamClosed
		}
		return r.msg, r.err
	case <-ctx.Done():
		return realtime.Message{}, ctx.Err()
	}
}

func (s *stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.session.Close()
	})
	return err
}

func (s *stream) readMessages() {
	defer close(s.received)
	for {
		serverMsg, err := s.session.Receive()
		if err != nil {
			select {
			case <-s.closed:
			default:
				s.deliver(received{err: realtime.NewTransientError("connection_lost", err)})
			}
			return
		}

		for _, msg := range s.translate(serverMsg) {
			if !s.deliver(received{msg: msg}) {
				return
			}
		}
	}
}

func (s *stream) deliver(r received) bool {
	select {
	case s.received <- r:
		return true
	case <-s.closed:
		return false
	}
}

func (s *stream) translate(serverMsg *genai.LiveServerMessage) []realtime.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := []realtime.Message{}
	responseID := fmt.Sprintf("r%d", s.responseSeq)

	if content := serverMsg.ServerContent; content != nil {
		if content.ModelTurn != nil {
			for _, part := range content.ModelTurn.Parts {
				if part == nil || part.Thought {
					continue
				}
				if part.InlineData != nil && strings.HasPrefix(part.InlineData.MIMEType, "audio/") && len(part.InlineData.Data) > 0 {
					messages = append(messages, realtime.Message{Type: realtime.MessageAudioDelta, ResponseID: responseID, Audio: part.InlineData.Data})
				}
				if part.Text != "" && content.OutputTranscription == nil {
					messages = append(messages, realtime.Message{Type: realtime.MessageTextDelta, ResponseID: responseID, Text: part.Text})
				}
			}
		}
		if transcription := content.OutputTranscription; transcription != nil && transcription.Text != "" {
			messages = append(messages, realtime.Message{Type: realtime.MessageTextDelta, ResponseID: responseID, Text: transcription.Text})
		}
		if len(messages) > 0 {
			s.hasOutput = true
		}

		switch {
		case content.Interrupted:
			if s.hasOutput {
				messages = append(messages, realtime.Message{Type: realtime.MessageInterrupted, ResponseID: responseID})
				s.advance()
			}
		case content.TurnComplete:
			if s.hasOutput {
				messages = append(messages, realtime.Message{Type: realtime.MessageResponseDone, ResponseID: responseID})
				s.advance()
			}
		}
	}

	if toolCall := serverMsg.ToolCall; toolCall != nil && len(toolCall.FunctionCalls) > 0 {
		for _, call := range toolCall.FunctionCalls {
			if call == nil {
				continue
			}
			arguments, err := json.Marshal(call.Args)
			if err != nil || call.Args == nil {
				arguments = json.RawMessage(`{}`)
			}
			messages = append(messages, realtime.Message{
				Type:       realtime.MessageFunctionCall,
				ResponseID: responseID,
				CallID:     call.ID,
				Name:       call.Name,
				Arguments:  arguments,
			})
		}
		messages = append(messages, realtime.Message{Type: realtime.MessageResponseDone, ResponseID: responseID})
		s.advance()
	}

	if serverMsg.GoAway != nil {
		messages = append(messages, realtime.Message{
			Type: realtime.MessageError,
			Err:  realtime.NewTransientError("go_away", errors.New("gemini live is closing the connection")),
		})
	}

	return messages
}

func (s *stream) advance() {
	s.responseSeq++
	s.hasOutput = false
}
