package realtime

import (
	"encoding/json"

	"github.com/koscakluka/ema-realtime/core/events"
)

const (
	KindPartialUtterance  events.Kind = "model.partial_utterance"
	KindFinalUtterance    events.Kind = "model.final_utterance"
	KindToolCallRequested events.Kind = "model.tool_call_requested"
	KindToolRoundComplete events.Kind = "model.tool_round_complete"
	KindModelFailed       events.Kind = "model.failed"
)

// PartialUtterance is a piece of reply output, text or audio or both.
type PartialUtterance struct {
	events.Base
	ReplyID string
	Text    string
	Audio   []byte
}

// FinalUtterance closes a reply. Interrupted is set when the model stopped
// the reply on its own.
type FinalUtterance struct {
	events.Base
	ReplyID     string
	Text        string
	Interrupted bool
}

type ToolCallRequested struct {
	events.Base
	ReplyID string
	CallID  string
	Name    string
	Args    json.RawMessage
}

// ToolRoundComplete reports that a response finished after requesting tools.
// The reply continues once every requested result was submitted.
type ToolRoundComplete struct {
	events.Base
	ReplyID string
	Calls   int
}

// ModelFailed reports a failure of the connection with the given generation.
type ModelFailed struct {
	events.Base
	Generation int
	Err        *ModelError
}

func newPartialUtterance(replyID, text string, audio []byte) PartialUtterance {
	return PartialUtterance{Base: events.NewBase(KindPartialUtterance), ReplyID: replyID, Text: text, Audio: audio}
}

func newFinalUtterance(replyID, text string, interrupted bool) FinalUtterance {
	return FinalUtterance{Base: events.NewBase(KindFinalUtterance), ReplyID: replyID, Text: text, Interrupted: interrupted}
}

func newToolCallRequested(replyID, callID, name string, args json.RawMessage) ToolCallRequested {
	return ToolCallRequested{Base: events.NewBase(KindToolCallRequested), ReplyID: replyID, CallID: callID, Name: name, Args: args}
}

func newToolRoundComplete(replyID string, calls int) ToolRoundComplete {
	return ToolRoundComplete{Base: events.NewBase(KindToolRoundComplete), ReplyID: replyID, Calls: calls}
}

func NewModelFailed(generation int, err *ModelError) ModelFailed {
	return ModelFailed{Base: events.NewBase(KindModelFailed), Generation: generation, Err: err}
}
