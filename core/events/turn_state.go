package events

// KindTurnCancelled identifies turn cancellation.
const KindTurnCancelled Kind = "turn_state.cancelled"

// TurnCancelled marks cancellation of the current reply.
type TurnCancelled struct {
	Base
	ReplyID string
}

// NewTurnCancelled creates a turn cancelled event.
func NewTurnCancelled(replyID string) TurnCancelled {
	return TurnCancelled{Base: NewBase(KindTurnCancelled), ReplyID: replyID}
}
