package events

const (
	// KindSessionStateChanged identifies a session lifecycle transition.
	KindSessionStateChanged Kind = "session.state_changed"
	// KindSessionFailed identifies a terminal session failure.
	KindSessionFailed Kind = "session.failed"
	// KindSessionClosed identifies the end of a session.
	KindSessionClosed Kind = "session.closed"
)

// SessionStateChanged marks a lifecycle transition.
type SessionStateChanged struct {
	Base
	SessionID string
	From      string
	To        string
}

// NewSessionStateChanged creates a session state changed event.
func NewSessionStateChanged(sessionID, from, to string) SessionStateChanged {
	return SessionStateChanged{Base: NewBase(KindSessionStateChanged), SessionID: sessionID, From: from, To: to}
}

// SessionFailed carries the error that ended the session.
type SessionFailed struct {
	Base
	SessionID string
	Error     string
}

// NewSessionFailed creates a session failed event.
func NewSessionFailed(sessionID, err string) SessionFailed {
	return SessionFailed{Base: NewBase(KindSessionFailed), SessionID: sessionID, Error: err}
}

// SessionClosed marks that the session released its resources.
type SessionClosed struct {
	Base
	SessionID string
}

// NewSessionClosed creates a session closed event.
func NewSessionClosed(sessionID string) SessionClosed {
	return SessionClosed{Base: NewBase(KindSessionClosed), SessionID: sessionID}
}
