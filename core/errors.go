package orchestration

import (
	"errors"
	"fmt"
)

var (
	ErrSessionClosed  = errors.New("session is closed")
	ErrSessionRunning = errors.New("session is already running")
)

// SessionFailedError is the terminal failure of a session. It wraps the
// model error that could not be recovered from.
type SessionFailedError struct {
	SessionID string
	Err       error
}

func (e *SessionFailedError) Error() string {
	return fmt.Sprintf("session %s failed: %v", e.SessionID, e.Err)
}

func (e *SessionFailedError) Unwrap() error { return e.Err }
