package events

// KindAssistantSpeechFrame identifies assistant speech audio.
const KindAssistantSpeechFrame Kind = "assistant_speech.frame"

// AssistantSpeechFrame carries an assistant speech audio frame.
type AssistantSpeechFrame struct {
	Base
	ReplyID string
	Audio   []byte
}

// NewAssistantSpeechFrame creates an assistant speech audio frame event.
func NewAssistantSpeechFrame(replyID string, audio []byte) AssistantSpeechFrame {
	return AssistantSpeechFrame{Base: NewBase(KindAssistantSpeechFrame), ReplyID: replyID, Audio: audio}
}
