package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/koscakluka/ema-realtime/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type reply struct {
	id                   string
	text                 strings.Builder
	awaitingContinuation bool
}

type responseState struct {
	replyID   string
	toolCalls int
	cancelled bool
}

// Bridge translates between the session and a realtime model stream. It
// groups model responses into replies: a response that requested tools keeps
// its reply open and the continuation after the tool results reuses the
// reply id.
type Bridge struct {
	model Model
	setup Setup

	mu         sync.Mutex
	stream     Stream
	generation int
	closed     bool

	replySeq  int
	reply     *reply
	responses map[string]*responseState

	// requested counts responses asked for but not started yet; discard is
	// how many of those to drop because their reply was cancelled.
	requested int
	discard   int
}

func NewBridge(model Model, setup Setup) (*Bridge, error) {
	if err := setup.Validate(); err != nil {
		return nil, err
	}
	return &Bridge{model: model, setup: setup, responses: map[string]*responseState{}}, nil
}

func (b *Bridge) Setup() Setup {
	return b.setup
}

// Connect dials the model. It returns the generation of the new connection,
// which Run uses to tell a deliberate replacement from a failure.
func (b *Bridge) Connect(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "connect model")
	defer span.End()
	span.SetAttributes(attribute.String("model.id", b.setup.ModelID))

	stream, err := b.model.Dial(ctx, b.setup)
	if err != nil {
		err = fmt.Errorf("failed to connect to realtime model: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		stream.Close()
		return 0, ErrNotConnected
	}
	b.stream = stream
	b.generation++
	b.resetLocked()
	return b.generation, nil
}

// Reconnect drops the current connection and dials again with the same
// setup. Any reply in progress is abandoned.
func (b *Bridge) Reconnect(ctx context.Context) (int, error) {
	b.mu.Lock()
	old := b.stream
	b.stream = nil
	b.generation++
	b.resetLocked()
	b.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			logger.Debug("failed to close previous model stream", "error", err)
		}
	}
	return b.Connect(ctx)
}

func (b *Bridge) Close() error {
	b.mu.Lock()
	stream := b.stream
	b.stream = nil
	b.closed = true
	b.generation++
	b.mu.Unlock()

	if stream == nil {
		return nil
	}
	return stream.Close()
}

func (b *Bridge) resetLocked() {
	b.reply = nil
	b.responses = map[string]*responseState{}
	b.requested = 0
	b.discard = 0
}

// Run reads the connection of the given generation and emits bridge events
// until it fails, is replaced or ctx is cancelled. A failure is reported as a
// ModelFailed event; a deliberate replacement is not.
func (b *Bridge) Run(ctx context.Context, generation int, emit func(events.Event)) error {
	b.mu.Lock()
	stream := b.stream
	current := b.generation
	b.mu.Unlock()
	if stream == nil || current != generation {
		return ErrNotConnected
	}

	for {
		msg, err := stream.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !b.isCurrent(generation) {
				return nil
			}
			modelErr := AsModelError(err)
			logger.Warn("model stream failed", "error", modelErr)
			emit(NewModelFailed(generation, modelErr))
			return modelErr
		}

		b.mu.Lock()
		if b.generation != generation {
			b.mu.Unlock()
			return nil
		}
		translated := b.translateLocked(generation, msg)
		b.mu.Unlock()

		for _, event := range translated {
			emit(event)
		}
	}
}

func (b *Bridge) isCurrent(generation int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation == generation && !b.closed
}

func (b *Bridge) translateLocked(generation int, msg Message) []events.Event {
	if msg.Type == MessageError {
		if msg.Err == nil {
			msg.Err = errors.New("unspecified model error")
		}
		return []events.Event{NewModelFailed(generation, AsModelError(msg.Err))}
	}

	state, ok := b.responses[msg.ResponseID]
	if !ok {
		if (msg.Type == MessageResponseDone || msg.Type == MessageInterrupted) && b.reply == nil {
			return nil
		}
		state = b.startResponseLocked(msg.ResponseID)
	}
	if state.cancelled {
		if msg.Type == MessageResponseDone || msg.Type == MessageInterrupted {
			delete(b.responses, msg.ResponseID)
		}
		return nil
	}

	switch msg.Type {
	case MessageAudioDelta, MessageTextDelta:
		if msg.Text == "" && len(msg.Audio) == 0 {
			return nil
		}
		b.reply.text.WriteString(msg.Text)
		return []events.Event{newPartialUtterance(state.replyID, msg.Text, msg.Audio)}

	case MessageFunctionCall:
		state.toolCalls++
		return []events.Event{newToolCallRequested(state.replyID, msg.CallID, msg.Name, msg.Arguments)}

	case MessageResponseDone:
		delete(b.responses, msg.ResponseID)
		if state.toolCalls > 0 {
			b.reply.awaitingContinuation = true
			return []events.Event{newToolRoundComplete(state.replyID, state.toolCalls)}
		}
		if b.activeResponsesLocked(state.replyID) > 0 {
			return nil
		}
		final := newFinalUtterance(state.replyID, b.reply.text.String(), false)
		b.reply = nil
		return []events.Event{final}

	case MessageInterrupted:
		delete(b.responses, msg.ResponseID)
		final := newFinalUtterance(state.replyID, b.reply.text.String(), true)
		b.reply = nil
		return []events.Event{final}
	}

	return nil
}

func (b *Bridge) startResponseLocked(responseID string) *responseState {
	state := &responseState{}
	b.responses[responseID] = state
	if b.requested > 0 {
		b.requested--
	}

	if b.discard > 0 {
		b.discard--
		state.cancelled = true
		if b.stream != nil {
			if err := b.stream.CancelResponse(); err != nil {
				logger.Debug("failed to cancel discarded response", "error", err)
			}
		}
		return state
	}

	if b.reply == nil {
		b.replySeq++
		b.reply = &reply{id: fmt.Sprintf("reply_%d", b.replySeq)}
	}
	b.reply.awaitingContinuation = false
	state.replyID = b.reply.id
	return state
}

func (b *Bridge) activeResponsesLocked(replyID string) int {
	active := 0
	for _, state := range b.responses {
		if state.replyID == replyID && !state.cancelled {
			active++
		}
	}
	return active
}

// ActiveReplyID returns the reply currently being produced, or "".
func (b *Bridge) ActiveReplyID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.reply == nil {
		return ""
	}
	return b.reply.id
}

func (b *Bridge) currentStream() (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stream == nil {
		return nil, ErrNotConnected
	}
	return b.stream, nil
}

// StartReply asks the model to speak, following instructions when given.
func (b *Bridge) StartReply(instructions string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stream == nil {
		return ErrNotConnected
	}
	if err := b.stream.CreateResponse(instructions); err != nil {
		return fmt.Errorf("failed to start reply: %w", err)
	}
	b.requested++
	return nil
}

// ContinueReply resumes generation after every tool result of the reply was
// submitted.
func (b *Bridge) ContinueReply() error {
	return b.StartReply("")
}

// CancelReply stops the reply in progress. Every message that still arrives
// for its responses is dropped, as are responses that were requested but had
// not started yet. It returns the id of the cancelled reply, if any.
func (b *Bridge) CancelReply() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stream == nil {
		return "", ErrNotConnected
	}

	replyID := ""
	if b.reply != nil {
		replyID = b.reply.id
		for _, state := range b.responses {
			if state.replyID == replyID {
				state.cancelled = true
			}
		}
		b.reply = nil
	}
	b.discard += b.requested
	b.requested = 0

	if replyID == "" {
		return "", nil
	}
	if err := b.stream.CancelResponse(); err != nil {
		return replyID, fmt.Errorf("failed to cancel reply: %w", err)
	}
	return replyID, nil
}

func (b *Bridge) SubmitToolResult(callID, name, output string) error {
	stream, err := b.currentStream()
	if err != nil {
		return err
	}
	if err := stream.SendToolResult(callID, name, output); err != nil {
		return fmt.Errorf("failed to submit tool result: %w", err)
	}
	return nil
}

func (b *Bridge) SendAudio(frame []byte) error {
	stream, err := b.currentStream()
	if err != nil {
		return err
	}
	return stream.SendAudio(frame)
}

// ForwardUserInput sends a recognised user utterance as text.
func (b *Bridge) ForwardUserInput(text string) error {
	stream, err := b.currentStream()
	if err != nil {
		return err
	}
	if err := stream.SendText(text); err != nil {
		return fmt.Errorf("failed to forward user input: %w", err)
	}
	return nil
}

// CommitUserInput ends the user's utterance so the model can answer it.
func (b *Bridge) CommitUserInput() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stream == nil {
		return ErrNotConnected
	}
	if err := b.stream.CommitInput(); err != nil {
		return fmt.Errorf("failed to commit user input: %w", err)
	}
	return nil
}
