package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-realtime/core/realtime"
)

const (
	pingInterval = 30 * time.Second
	readTimeout  = 120 * time.Second
)

var errStreamClosed = errors.New("openai realtime stream closed")

type received struct {
	msg realtime.Message
	err error
}

type stream struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	received  chan received
	closed    chan struct{}
	closeOnce sync.Once
}

func newStream(conn *websocket.Conn) *stream {
	s := &stream{
		conn:     conn,
		received: make(chan received, 64),
		closed:   make(chan struct{}),
	}
	conn.SetPingHandler(func(appData string) error {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})
	go s.readMessages()
	go s.keepAlive()
	return s
}

func (s *stream) configure(setup realtime.Setup) error {
	wireTools, err := functionTools(setup.Tools)
	if err != nil {
		return err
	}
	voice := setup.VoiceID
	if voice == "" {
		voice = DefaultVoice
	}

	return s.send(sessionUpdate{
		Type: "session.update",
		Session: sessionConfig{
			Modalities:              []string{"text", "audio"},
			Instructions:            setup.Instructions,
			Voice:                   voice,
			InputAudioFormat:        "pcm16",
			OutputAudioFormat:       "pcm16",
			InputAudioTranscription: &transcriptionConfig{Model: "whisper-1"},
			Tools:                   wireTools,
			ToolChoice:              "auto",
			Temperature:             setup.Temperature,
		},
	})
}

func (s *stream) send(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	select {
	case <-s.closed:
		return errStreamClosed
	default:
	}
	if err := s.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("failed to write to realtime api: %w", err)
	}
	return nil
}

func (s *stream) SendAudio(frame []byte) error {
	return s.send(audioAppend{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(frame),
	})
}

func (s *stream) SendText(text string) error {
	return s.send(itemCreate{
		Type: "conversation.item.create",
		Item: item{
			Type:    "message",
			Role:    "user",
			Content: []itemContent{{Type: "input_text", Text: text}},
		},
	})
}

// CommitInput commits the buffered user audio and asks for an answer, since
// server side turn detection is disabled.
func (s *stream) CommitInput() error {
	if err := s.send(simpleEvent{Type: "input_audio_buffer.commit"}); err != nil {
		return err
	}
	return s.send(responseCreate{Type: "response.create"})
}

func (s *stream) CreateResponse(instructions string) error {
	event := responseCreate{Type: "response.create"}
	if instructions != "" {
		event.Response = &responseConfig{Instructions: instructions}
	}
	return s.send(event)
}

func (s *stream) CancelResponse() error {
	return s.send(simpleEvent{Type: "response.cancel"})
}

func (s *stream) SendToolResult(callID, _ string, output string) error {
	return s.send(itemCreate{
		Type: "conversation.item.create",
		Item: item{Type: "function_call_output", CallID: callID, Output: output},
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
		s.writeMu.Lock()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *stream) readMessages() {
	defer close(s.received)
	for {
		s.conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closed:
			default:
				s.deliver(received{err: realtime.NewTransientError("connection_lost", err)})
			}
			return
		}

		msg, ok := translate(data)
		if !ok {
			continue
		}
		if !s.deliver(received{msg: msg}) {
			return
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

func (s *stream) keepAlive() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			s.writeMu.Unlock()
			if err != nil {
				logger.Debug("failed to ping realtime api", "error", err)
				return
			}
		}
	}
}

func translate(data []byte) (realtime.Message, bool) {
	event, err := decodeServerEvent(data)
	if err != nil {
		logger.Warn("failed to decode realtime event", "error", err)
		return realtime.Message{}, false
	}

	switch event.Type {
	case "response.created":
		if event.Response == nil {
			return realtime.Message{}, false
		}
		return realtime.Message{Type: realtime.MessageResponseStarted, ResponseID: event.Response.ID}, true

	case "response.audio.delta":
		audio, err := base64.StdEncoding.DecodeString(event.Delta)
		if err != nil {
			logger.Warn("failed to decode audio delta", "error", err)
			return realtime.Message{}, false
		}
		return realtime.Message{Type: realtime.MessageAudioDelta, ResponseID: event.ResponseID, Audio: audio}, true

	case "response.audio_transcript.delta", "response.text.delta":
		return realtime.Message{Type: realtime.MessageTextDelta, ResponseID: event.ResponseID, Text: event.Delta}, true

	case "response.function_call_arguments.done":
		arguments := json.RawMessage(event.Arguments)
		if len(arguments) == 0 {
			arguments = json.RawMessage(`{}`)
		}
		return realtime.Message{
			Type:       realtime.MessageFunctionCall,
			ResponseID: event.ResponseID,
			CallID:     event.CallID,
			Name:       event.Name,
			Arguments:  arguments,
		}, true

	case "response.done":
		if event.Response == nil {
			return realtime.Message{}, false
		}
		return realtime.Message{Type: realtime.MessageResponseDone, ResponseID: event.Response.ID}, true

	case "error":
		if event.Error == nil {
			return realtime.Message{}, false
		}
		modelErr, ok := classifyError(event.Error)
		if !ok {
			logger.Warn("realtime api rejected a command", "type", event.Error.Type, "code", event.Error.Code, "message", event.Error.Message)
			return realtime.Message{}, false
		}
		return realtime.Message{Type: realtime.MessageError, Err: modelErr}, true
	}

	return realtime.Message{}, false
}
