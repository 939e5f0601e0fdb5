package observe

import (
	"time"

	"github.com/koscakluka/ema-realtime/core/events"
	"github.com/koscakluka/ema-realtime/core/transcript"
)

type SessionView struct {
	ID            string `json:"id"`
	State         string `json:"state"`
	ActiveReplyID string `json:"active_reply_id,omitempty"`
	Turns         int    `json:"turns"`
}

type TurnView struct {
	Seq              uint64             `json:"seq"`
	Speaker          transcript.Speaker `json:"speaker"`
	Text             string             `json:"text"`
	AudioBytes       int                `json:"audio_bytes,omitempty"`
	ToolInvocationID string             `json:"tool_invocation_id,omitempty"`
	ToolName         string             `json:"tool_name,omitempty"`
	Truncated        bool               `json:"truncated"`
	InFlight         bool               `json:"in_flight"`
	StartedAt        time.Time          `json:"started_at"`
	EndedAt          *time.Time         `json:"ended_at,omitempty"`
}

type EventView struct {
	ID   string       `json:"id"`
	At   time.Time    `json:"at"`
	Kind events.Kind  `json:"kind"`
	Data events.Event `json:"data"`
}
