package events

import "time"

type Kind string

// Event is anything a session publishes to observers or routes through its
// dispatch loop.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

// NewBaseAt creates a base stamped with a known time, such as the moment a
// detector observed activity.
func NewBaseAt(kind Kind, at time.Time) Base {
	if at.IsZero() {
		at = time.Now()
	}
	return Base{kind: kind, timestamp: at}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}

// Handler receives observer events. Handlers are called from the session's
// dispatch loop and must not block.
type Handler func(Event)
