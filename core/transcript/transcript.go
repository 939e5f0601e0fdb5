package transcript

import (
	"errors"
	"slices"
	"sync"
	"time"
)

type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
	SpeakerTool  Speaker = "tool"
)

var (
	ErrAgentTurnOpen   = errors.New("an agent turn is already in flight")
	ErrNoAgentTurn     = errors.New("no agent turn in flight")
	ErrAgentTurnAppend = errors.New("agent turns must be opened, not appended")
)

// Turn is a single entry of the conversation log. A turn whose EndedAt is nil
// is still in flight; only the agent can have an in-flight turn.
type Turn struct {
	Seq     uint64
	Speaker Speaker
	Text    string

	// AudioBytes counts the audio streamed for the turn.
	AudioBytes int

	ToolInvocationID string
	ToolName         string

	Truncated bool
	StartedAt time.Time
	EndedAt   *time.Time
}

func (t Turn) InFlight() bool {
	return t.EndedAt == nil
}

// Transcript is the append-only log of a session. Sequence numbers are
// assigned when a turn is appended or opened and are strictly increasing.
type Transcript struct {
	mu      sync.RWMutex
	turns   []Turn
	lastSeq uint64

	hasOpen bool
	open    int
}

func New() *Transcript {
	return &Transcript{}
}

// Append records a finished user or tool turn and returns its sequence number.
func (t *Transcript) Append(speaker Speaker, text string, at time.Time) (uint64, error) {
	return t.append(Turn{Speaker: speaker, Text: text, StartedAt: at})
}

// AppendTool records the result of a settled tool invocation.
func (t *Transcript) AppendTool(invocationID, tool, text string, at time.Time) (uint64, error) {
	return t.append(Turn{Speaker: SpeakerTool, Text: text, ToolInvocationID: invocationID, ToolName: tool, StartedAt: at})
}

func (t *Transcript) append(turn Turn) (uint64, error) {
	if turn.Speaker == SpeakerAgent {
		return 0, ErrAgentTurnAppend
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	turn.Seq = t.reserveSeq()
	ended := turn.StartedAt
	turn.EndedAt = &ended
	t.turns = append(t.turns, turn)
	return turn.Seq, nil
}

// OpenAgentTurn starts the single in-flight agent turn.
func (t *Transcript) OpenAgentTurn(at time.Time) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.hasOpen {
		return 0, ErrAgentTurnOpen
	}
	turn := Turn{Seq: t.reserveSeq(), Speaker: SpeakerAgent, StartedAt: at}
	t.turns = append(t.turns, turn)
	t.hasOpen = true
	t.open = len(t.turns) - 1
	return turn.Seq, nil
}

func (t *Transcript) AgentTurnOpen() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hasOpen
}

// AppendAgentText extends the in-flight agent turn.
func (t *Transcript) AppendAgentText(text string, audioBytes int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.hasOpen {
		return ErrNoAgentTurn
	}
	t.turns[t.open].Text += text
	t.turns[t.open].AudioBytes += audioBytes
	return nil
}

// CloseAgentTurn freezes the in-flight agent turn. When text is non-empty it
// replaces the accumulated text.
func (t *Transcript) CloseAgentTurn(text string, truncated bool, at time.Time) (Turn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.hasOpen {
		return Turn{}, ErrNoAgentTurn
	}
	turn := &t.turns[t.open]
	if text != "" {
		turn.Text = text
	}
	turn.Truncated = truncated
	ended := at
	turn.EndedAt = &ended
	t.hasOpen = false
	return *turn, nil
}

func (t *Transcript) reserveSeq() uint64 {
	t.lastSeq++
	return t.lastSeq
}

// Snapshot returns a copy of the log in sequence order that shares nothing
// with the transcript.
func (t *Transcript) Snapshot() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snapshot := slices.Clone(t.turns)
	for i := range snapshot {
		if snapshot[i].EndedAt != nil {
			ended := *snapshot[i].EndedAt
			snapshot[i].EndedAt = &ended
		}
	}
	return snapshot
}

func (t *Transcript) LastSeq() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastSeq
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}
