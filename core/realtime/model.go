package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/tools"
)

// Setup is sent to the model when a connection is opened.
type Setup struct {
	Instructions string
	Tools        []tools.Spec

	ModelID     string
	VoiceID     string
	Temperature float64

	InputEncoding  audio.EncodingInfo
	OutputEncoding audio.EncodingInfo
}

func (s Setup) Validate() error {
	if s.Temperature < 0 || s.Temperature > 2 {
		return fmt.Errorf("%w: %v", ErrInvalidTemperature, s.Temperature)
	}
	return nil
}

// Model opens streaming connections to a realtime speech model.
type Model interface {
	Dial(ctx context.Context, setup Setup) (Stream, error)
}

// Stream is one live connection to the model. Send methods may be called
// concurrently with Recv.
type Stream interface {
	SendAudio(frame []byte) error
	SendText(text string) error
	// CommitInput marks the end of the user's utterance.
	CommitInput() error
	// CreateResponse asks the model to respond. Empty instructions resume
	// generation after tool results were submitted.
	CreateResponse(instructions string) error
	CancelResponse() error
	SendToolResult(callID, name, output string) error
	Recv(ctx context.Context) (Message, error)
	Close() error
}

type MessageType string

const (
	MessageResponseStarted MessageType = "response.started"
	MessageAudioDelta      MessageType = "response.audio_delta"
	MessageTextDelta       MessageType = "response.text_delta"
	MessageFunctionCall    MessageType = "response.function_call"
	MessageResponseDone    MessageType = "response.done"
	MessageInterrupted     MessageType = "response.interrupted"
	MessageError           MessageType = "error"
)

// Message is a wire frame translated by an adapter into provider-neutral
// form. Every output message carries the id of the response it belongs to.
type Message struct {
	Type       MessageType
	ResponseID string

	Text  string
	Audio []byte

	CallID    string
	Name      string
	Arguments json.RawMessage

	Err error
}
