package orchestration

import "context"

// Room is the live audio channel a session talks through. The session
// connects and disconnects it but does not own its lifetime beyond that.
type Room interface {
	Connect(ctx context.Context) error
	Disconnect() error
	// Capture delivers microphone frames until ctx is cancelled.
	Capture(ctx context.Context, onFrame func(frame []byte)) error
	Play(frame []byte) error
	// ClearPlayback drops audio that was queued but not played yet.
	ClearPlayback()
}

// Job is a unit of work handed to Entrypoint by a job runner.
type Job interface {
	ID() string
	Room() Room
}
