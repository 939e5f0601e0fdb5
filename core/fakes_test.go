package orchestration

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-realtime/core/events"
	"github.com/koscakluka/ema-realtime/core/realtime"
	"github.com/koscakluka/ema-realtime/core/turndetection"
)

type fakeRoom struct {
	mu           sync.Mutex
	connectErr   error
	connected    bool
	disconnected bool
	played       int
	cleared      int
}

func (r *fakeRoom) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connectErr != nil {
		return r.connectErr
	}
	r.connected = true
	return nil
}

func (r *fakeRoom) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected = true
	return nil
}

func (r *fakeRoom) Capture(ctx context.Context, onFrame func([]byte)) error {
	<-ctx.Done()
	return nil
}

func (r *fakeRoom) Play(frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.played++
	return nil
}

func (r *fakeRoom) ClearPlayback() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared++
}

func (r *fakeRoom) snapshot() (played, cleared int, disconnected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.played, r.cleared, r.disconnected
}

type fakeVAD struct {
	ready      chan struct{}
	once       sync.Once
	mu         sync.Mutex
	onActivity func(turndetection.Activity)
}

func newFakeVAD() *fakeVAD {
	return &fakeVAD{ready: make(chan struct{})}
}

func (v *fakeVAD) Stream(ctx context.Context, onActivity func(turndetection.Activity)) error {
	v.mu.Lock()
	v.onActivity = onActivity
	v.mu.Unlock()
	v.once.Do(func() { close(v.ready) })
	<-ctx.Done()
	return nil
}

func (v *fakeVAD) SendAudio([]byte) error { return nil }

func (v *fakeVAD) observe(t *testing.T, speaking bool, text string) {
	t.Helper()
	select {
	case <-v.ready:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for voice activity stream")
	}
	v.mu.Lock()
	onActivity := v.onActivity
	v.mu.Unlock()
	onActivity(turndetection.Activity{Speaking: speaking, At: time.Now(), Transcript: text})
}

type fakeStream struct {
	mu       sync.Mutex
	calls    []string
	messages chan realtime.Message
	failWith error
	closed   chan struct{}
	once     sync.Once
}

func newFakeStream(failWith error) *fakeStream {
	return &fakeStream{
		messages: make(chan realtime.Message, 64),
		failWith: failWith,
		closed:   make(chan struct{}),
	}
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

func (s *fakeStream) SendAudio([]byte) error { return nil }
func (s *fakeStream) SendText(text string) error { return s.record("text:" + text) }
func (s *fakeStream) CommitInput() error { return s.record("commit") }
func (s *fakeStream) CreateResponse(i string) error { return s.record("create:" + i) }
func (s *fakeStream) CancelResponse() error { return s.record("cancel") }
func (s *fakeStream) SendToolResult(c, n, o string) error {
	return s.record("result:" + c + ":" + o)
}

func (s *fakeStream) Recv(ctx context.Context) (realtime.Message, error) {
	if s.failWith != nil {
		return realtime.Message{}, s.failWith
	}
	select {
	case msg := <-s.messages:
		return msg, nil
	case <-s.closed:
		return realtime.Message{}, realtime.NewTransientError("", context.Canceled)
	case <-ctx.Done():
		return realtime.Message{}, ctx.Err()
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) send(messages ...realtime.Message) {
	for _, msg := range messages {
		s.messages <- msg
	}
}

type fakeModel struct {
	mu      sync.Mutex
	streams   []*fakeStream
	setups    []realtime.Setup
	dialTimes []time.Time
	// failures returns the error the n-th connection (1-based) fails with
	// as soon as it is read.
	failures func(n int) error
}

func (m *fakeModel) Dial(ctx context.Context, setup realtime.Setup) (realtime.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var failWith error
	if m.failures != nil {
		failWith = m.failures(len(m.streams) + 1)
	}
	stream := newFakeStream(failWith)
	m.streams = append(m.streams, stream)
	m.setups = append(m.setups, setup)
	m.dialTimes = append(m.dialTimes, time.Now())
	return stream, nil
}

func (m *fakeModel) dialedAt() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.dialTimes...)
}

func (m *fakeModel) dials() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

func (m *fakeModel) stream(t *testing.T, i int) *fakeStream {
	t.Helper()
	eventually(t, func() bool { return m.dials() > i })
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams[i]
}

type recorder struct {
	events chan events.Event
}

func newRecorder() *recorder {
	return &recorder{events: make(chan events.Event, 1024)}
}

func (r *recorder) handle(event events.Event) {
	r.events <- event
}

// waitFor reads recorded events until one of the given kind arrives.
func (r *recorder) waitFor(t *testing.T, kind events.Kind) events.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-r.events:
			if event.Kind() == kind {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
			return nil
		}
	}
}

func eventually(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func hasCall(stream *fakeStream, prefix string) bool {
	for _, call := range stream.Calls() {
		if strings.HasPrefix(call, prefix) {
			return true
		}
	}
	return false
}

func countCalls(stream *fakeStream, prefix string) int {
	count := 0
	for _, call := range stream.Calls() {
		if strings.HasPrefix(call, prefix) {
			count++
		}
	}
	return count
}

type harness struct {
	session *Session
	room    *fakeRoom
	model   *fakeModel
	vad     *fakeVAD
	events  *recorder
	result  chan error
}

func startSession(t *testing.T, model *fakeModel, opts ...SessionOption) *harness {
	t.Helper()
	h := &harness{
		room:   &fakeRoom{},
		model:  model,
		vad:    newFakeVAD(),
		events: newRecorder(),
		result: make(chan error, 1),
	}
	opts = append([]SessionOption{
		WithGreeting("greet"),
		WithVAD(h.vad),
		WithEventHandler(h.events.handle),
		WithReconnectPolicy(3, time.Millisecond, 4*time.Millisecond),
	}, opts...)

	session, err := NewSession(h.room, model, opts...)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	h.session = session

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		session.Close()
		cancel()
		<-session.Done()
	})
	go func() { h.result <- session.Run(ctx) }()
	return h
}

func (h *harness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.result:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for session to end")
		return nil
	}
}

// greeted waits for the greeting request and returns the first stream.
func (h *harness) greeted(t *testing.T) *fakeStream {
	t.Helper()
	stream := h.model.stream(t, 0)
	eventually(t, func() bool { return hasCall(stream, "create:greet") })
	return stream
}
