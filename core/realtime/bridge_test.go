package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-realtime/core/events"
)

type fakeStream struct {
	mu       sync.Mutex
	calls    []string
	messages chan Message
	closed   chan struct{}
	once     sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{messages: make(chan Message, 32), closed: make(chan struct{})}
}

func (s *fakeStream) record(call string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	return nil
}

func (s *fakeStream) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeStream) SendAudio([]byte) error { return s.record("audio") }
func (s *fakeStream) SendText(text string) error { return s.record("text:" + text) }
func (s *fakeStream) CommitInput() error { return s.record("commit") }
func (s *fakeStream) CreateResponse(i string) error { return s.record("create:" + i) }
func (s *fakeStream) CancelResponse() error { return s.record("cancel") }
func (s *fakeStream) SendToolResult(c, n, o string) error {
	return s.record("result:" + c + ":" + o)
}

func (s *fakeStream) Recv(ctx context.Context) (Message, error) {
	select {
	case msg := <-s.messages:
		return msg, nil
	case <-s.closed:
		return Message{}, errors.New("stream closed")
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type fakeModel struct {
	mu      sync.Mutex
	streams []*fakeStream
	err     error
}

func (m *fakeModel) Dial(ctx context.Context, setup Setup) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	stream := newFakeStream()
	m.streams = append(m.streams, stream)
	return stream, nil
}

func (m *fakeModel) stream(i int) *fakeStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams[i]
}

func startBridge(t *testing.T) (*Bridge, *fakeModel, chan events.Event) {
	t.Helper()
	model := &fakeModel{}
	bridge, err := NewBridge(model, Setup{Temperature: 0.8})
	if err != nil {
		t.Fatalf("failed to create bridge: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	generation, err := bridge.Connect(ctx)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	emitted := make(chan events.Event, 32)
	go bridge.Run(ctx, generation, func(event events.Event) { emitted <- event })
	return bridge, model, emitted
}

func next(t *testing.T, emitted chan events.Event) events.Event {
	t.Helper()
	select {
	case event := <-emitted:
		return event
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for bridge event")
	}
	return nil
}

func expectNone(t *testing.T, emitted chan events.Event) {
	t.Helper()
	select {
	case event := <-emitted:
		t.Fatalf("expected no event, got %T %+v", event, event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNewBridgeRejectsTemperatureOutOfRange(t *testing.T) {
	for _, temperature := range []float64{-0.1, 2.1} {
		if _, err := NewBridge(&fakeModel{}, Setup{Temperature: temperature}); !errors.Is(err, ErrInvalidTemperature) {
			t.Fatalf("expected ErrInvalidTemperature for %v, got %v", temperature, err)
		}
	}
}

func TestCommandsRequireConnection(t *testing.T) {
	bridge, err := NewBridge(&fakeModel{}, Setup{})
	if err != nil {
		t.Fatalf("failed to create bridge: %v", err)
	}
	if err := bridge.StartReply("hi"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if _, err := bridge.CancelReply(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := bridge.SendAudio([]byte{1}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestResponseBecomesReply(t *testing.T) {
	bridge, model, emitted := startBridge(t)
	stream := model.stream(0)

	if err := bridge.StartReply("greet"); err != nil {
		t.Fatalf("failed to start reply: %v", err)
	}
	stream.messages <- Message{Type: MessageResponseStarted, ResponseID: "resp_1"}
	stream.messages <- Message{Type: MessageTextDelta, ResponseID: "resp_1", Text: "Ahlan "}
	stream.messages <- Message{Type: MessageAudioDelta, ResponseID: "resp_1", Audio: []byte{1, 2}}
	stream.messages <- Message{Type: MessageTextDelta, ResponseID: "resp_1", Text: "ya basha"}
	stream.messages <- Message{Type: MessageResponseDone, ResponseID: "resp_1"}

	first := next(t, emitted).(PartialUtterance)
	if first.ReplyID == "" || first.Text != "Ahlan " {
		t.Fatalf("unexpected partial %+v", first)
	}
	audio := next(t, emitted).(PartialUtterance)
	if len(audio.Audio) != 2 || audio.ReplyID != first.ReplyID {
		t.Fatalf("unexpected audio partial %+v", audio)
	}
	next(t, emitted)
	final := next(t, emitted).(FinalUtterance)
	if final.ReplyID != first.ReplyID || final.Text != "Ahlan ya basha" || final.Interrupted {
		t.Fatalf("unexpected final %+v", final)
	}
	if bridge.ActiveReplyID() != "" {
		t.Fatalf("expected no active reply after final")
	}
	if calls := stream.Calls(); len(calls) != 1 || calls[0] != "create:greet" {
		t.Fatalf("unexpected stream calls %v", calls)
	}
}

func TestToolCallKeepsReplyOpenAcrossContinuation(t *testing.T) {
	bridge, model, emitted := startBridge(t)
	stream := model.stream(0)

	stream.messages <- Message{Type: MessageResponseStarted, ResponseID: "resp_1"}
	stream.messages <- Message{Type: MessageFunctionCall, ResponseID: "resp_1", CallID: "call_1", Name: "get_time", Arguments: json.RawMessage(`{}`)}
	stream.messages <- Message{Type: MessageResponseDone, ResponseID: "resp_1"}

	call := next(t, emitted).(ToolCallRequested)
	if call.CallID != "call_1" || call.Name != "get_time" {
		t.Fatalf("unexpected tool call %+v", call)
	}
	round := next(t, emitted).(ToolRoundComplete)
	if round.ReplyID != call.ReplyID || round.Calls != 1 {
		t.Fatalf("unexpected tool round %+v", round)
	}
	expectNone(t, emitted)
	if bridge.ActiveReplyID() != call.ReplyID {
		t.Fatalf("expected reply %q to stay open", call.ReplyID)
	}

	bridge.SubmitToolResult("call_1", "get_time", "14:05")
	bridge.ContinueReply()
	stream.messages <- Message{Type: MessageResponseStarted, ResponseID: "resp_2"}
	stream.messages <- Message{Type: MessageTextDelta, ResponseID: "resp_2", Text: "It's 14:05"}
	stream.messages <- Message{Type: MessageResponseDone, ResponseID: "resp_2"}

	partial := next(t, emitted).(PartialUtterance)
	if partial.ReplyID != call.ReplyID {
		t.Fatalf("expected continuation to keep reply %q, got %q", call.ReplyID, partial.ReplyID)
	}
	final := next(t, emitted).(FinalUtterance)
	if final.ReplyID != call.ReplyID || final.Text != "It's 14:05" {
		t.Fatalf("unexpected final %+v", final)
	}
}

func TestCancelReplyDropsRemainingMessages(t *testing.T) {
	bridge, model, emitted := startBridge(t)
	stream := model.stream(0)

	stream.messages <- Message{Type: MessageTextDelta, ResponseID: "resp_1", Text: "Once upon"}
	partial := next(t, emitted).(PartialUtterance)

	replyID, err := bridge.CancelReply()
	if err != nil {
		t.Fatalf("failed to cancel reply: %v", err)
	}
	if replyID != partial.ReplyID {
		t.Fatalf("expected cancelled reply %q, got %q", partial.ReplyID, replyID)
	}

	stream.messages <- Message{Type: MessageTextDelta, ResponseID: "resp_1", Text: " a time"}
	stream.messages <- Message{Type: MessageFunctionCall, ResponseID: "resp_1", CallID: "call_9", Name: "get_time"}
	stream.messages <- Message{Type: MessageResponseDone, ResponseID: "resp_1"}
	expectNone(t, emitted)

	stream.messages <- Message{Type: MessageTextDelta, ResponseID: "resp_2", Text: "Yes?"}
	fresh := next(t, emitted).(PartialUtterance)
	if fresh.ReplyID == replyID {
		t.Fatalf("expected a new reply after cancellation")
	}

	calls := stream.Calls()
	if len(calls) == 0 || calls[len(calls)-1] != "cancel" {
		t.Fatalf("expected cancel to reach the stream, got %v", calls)
	}
}

func TestCancelReplyDiscardsRequestedContinuation(t *testing.T) {
	bridge, model, emitted := startBridge(t)
	stream := model.stream(0)

	stream.messages <- Message{Type: MessageFunctionCall, ResponseID: "resp_1", CallID: "call_1", Name: "get_time"}
	stream.messages <- Message{Type: MessageResponseDone, ResponseID: "resp_1"}
	next(t, emitted)
	next(t, emitted)

	bridge.ContinueReply()
	if _, err := bridge.CancelReply(); err != nil {
		t.Fatalf("failed to cancel reply: %v", err)
	}

	stream.messages <- Message{Type: MessageTextDelta, ResponseID: "resp_2", Text: "It's 14:05"}
	stream.messages <- Message{Type: MessageResponseDone, ResponseID: "resp_2"}
	expectNone(t, emitted)
}

func TestInterruptedResponseIsFinal(t *testing.T) {
	_, model, emitted := startBridge(t)
	stream := model.stream(0)

	stream.messages <- Message{Type: MessageTextDelta, ResponseID: "r1", Text: "Hello"}
	stream.messages <- Message{Type: MessageInterrupted, ResponseID: "r1"}

	next(t, emitted)
	final := next(t, emitted).(FinalUtterance)
	if !final.Interrupted || final.Text != "Hello" {
		t.Fatalf("unexpected final %+v", final)
	}
}

func TestStreamFailureBecomesTransientModelError(t *testing.T) {
	_, model, emitted := startBridge(t)
	model.stream(0).Close()

	failed := next(t, emitted).(ModelFailed)
	if !failed.Err.Transient() || failed.Generation != 1 {
		t.Fatalf("unexpected failure %+v", failed)
	}
}

func TestErrorMessageKeepsClassification(t *testing.T) {
	_, model, emitted := startBridge(t)
	model.stream(0).messages <- Message{Type: MessageError, Err: NewPersistentError("invalid_api_key", errors.New("bad key"))}

	failed := next(t, emitted).(ModelFailed)
	if failed.Err.Transient() || failed.Err.Code != "invalid_api_key" {
		t.Fatalf("unexpected failure %+v", failed)
	}
}

func TestReconnectReplacesStreamSilently(t *testing.T) {
	bridge, model, emitted := startBridge(t)

	generation, err := bridge.Reconnect(context.Background())
	if err != nil {
		t.Fatalf("failed to reconnect: %v", err)
	}
	if generation <= 1 {
		t.Fatalf("expected a new generation, got %d", generation)
	}
	expectNone(t, emitted)

	if err := bridge.StartReply("again"); err != nil {
		t.Fatalf("failed to start reply: %v", err)
	}
	if calls := model.stream(1).Calls(); len(calls) != 1 || calls[0] != "create:again" {
		t.Fatalf("expected commands on the new stream, got %v", calls)
	}
}
