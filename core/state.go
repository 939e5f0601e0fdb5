package orchestration

type State int32

const (
	StateConnecting State = iota
	StateActive
	StateSpeaking
	StateListening
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateSpeaking:
		return "speaking"
	case StateListening:
		return "listening"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Open reports whether the session still accepts conversation events.
func (s State) Open() bool {
	return s == StateActive || s == StateSpeaking || s == StateListening
}
