package events

const (
	// KindAssistantResponseStarted identifies the start of a model reply.
	KindAssistantResponseStarted Kind = "assistant_response.started"
	// KindAssistantResponseSegment identifies streamed assistant response text.
	KindAssistantResponseSegment Kind = "assistant_response.segment"
	// KindAssistantResponseFinal identifies assistant response stream completion.
	KindAssistantResponseFinal Kind = "assistant_response.final"
)

// AssistantResponseStarted marks the first output of a reply.
type AssistantResponseStarted struct {
	Base
	ReplyID string
}

// NewAssistantResponseStarted creates an assistant response started event.
func NewAssistantResponseStarted(replyID string) AssistantResponseStarted {
	return AssistantResponseStarted{Base: NewBase(KindAssistantResponseStarted), ReplyID: replyID}
}

// AssistantResponseSegment carries a streamed assistant response text segment.
type AssistantResponseSegment struct {
	Base
	ReplyID string
	Segment string
}

// NewAssistantResponseSegment creates an assistant response segment event.
func NewAssistantResponseSegment(replyID, segment string) AssistantResponseSegment {
	return AssistantResponseSegment{Base: NewBase(KindAssistantResponseSegment), ReplyID: replyID, Segment: segment}
}

// AssistantResponseFinal marks assistant response stream completion.
type AssistantResponseFinal struct {
	Base
	ReplyID   string
	Text      string
	Truncated bool
}

// NewAssistantResponseFinal creates an assistant response final event.
func NewAssistantResponseFinal(replyID, text string, truncated bool) AssistantResponseFinal {
	return AssistantResponseFinal{Base: NewBase(KindAssistantResponseFinal), ReplyID: replyID, Text: text, Truncated: truncated}
}
