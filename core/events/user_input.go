package events

import "time"

const (
	// KindUserSpeechStarted identifies start of user speech activity.
	KindUserSpeechStarted Kind = "user_input.speech_started"
	// KindUserSpeechEnded identifies end of user speech activity.
	KindUserSpeechEnded Kind = "user_input.speech_ended"
)

// UserSpeechStarted marks when user speech activity starts.
type UserSpeechStarted struct {
	Base
	BargeIn bool
}

// NewUserSpeechStarted creates a user speech started event.
func NewUserSpeechStarted(bargeIn bool) UserSpeechStarted {
	return UserSpeechStarted{Base: NewBase(KindUserSpeechStarted), BargeIn: bargeIn}
}

// UserSpeechEnded marks when user speech activity ends.
type UserSpeechEnded struct {
	Base
	Transcript string
	Duration   time.Duration
}

// NewUserSpeechEnded creates a user speech ended event.
func NewUserSpeechEnded(transcript string, duration time.Duration) UserSpeechEnded {
	return UserSpeechEnded{Base: NewBase(KindUserSpeechEnded), Transcript: transcript, Duration: duration}
}
