package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/events"
	"github.com/koscakluka/ema-realtime/core/realtime"
	"github.com/koscakluka/ema-realtime/core/tools"
	"github.com/koscakluka/ema-realtime/core/transcript"
	"github.com/koscakluka/ema-realtime/core/turndetection"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const (
	kindUserText          events.Kind = "session.user_text"
	kindInvocationSettled events.Kind = "session.invocation_settled"
	kindReconnected       events.Kind = "session.reconnected"
)

// userText is typed input submitted through SubmitText.
type userText struct {
	events.Base
	text string
}

type invocationSettled struct {
	events.Base
	invocation tools.Invocation
}

type reconnected struct {
	events.Base
	generation int
	err        error
}

type pendingInvocation struct {
	callID  string
	name    string
	replyID string
}

// heldUtterance is user input that arrived while the agent held the floor
// with barge-in disabled.
type heldUtterance struct {
	text  string
	at    time.Time
	typed bool
}

// Session binds one room to one realtime model connection. All conversation
// state is owned by the dispatch loop started by Run; the exported accessors
// are safe to call from any goroutine.
type Session struct {
	id    string
	room  Room
	model realtime.Model

	instructions   string
	greeting       string
	tools          []tools.Tool
	registry       *tools.Registry
	vad            turndetection.VAD
	modelID        string
	voiceID        string
	temperature    float64
	inputEncoding  audio.EncodingInfo
	outputEncoding audio.EncodingInfo
	toolTimeout    time.Duration
	bargeIn        bool
	eventHandler   events.Handler

	reconnectAttempts uint64
	reconnectBase     time.Duration
	reconnectMax      time.Duration

	bridge     *realtime.Bridge
	dispatcher *tools.Dispatcher
	detector   *turndetection.Detector
	transcript *transcript.Transcript

	state   atomic.Int32
	started atomic.Bool

	replyMu     sync.Mutex
	activeReply string

	inbox     chan events.Event
	closeCh   chan struct{}
	closeOnce sync.Once
	done      chan struct{}

	// Owned by the dispatch loop.
	ctx              context.Context
	cancel           context.CancelFunc
	generation       int
	greeted          bool
	failures         int
	backoff          retry.Backoff
	failure          *SessionFailedError
	outstanding      map[string]pendingInvocation
	cancelledReplies map[string]struct{}
	roundComplete    bool
	held             []heldUtterance

	bargeInCounter   metric.Int64Counter
	reconnectCounter metric.Int64Counter
}

func NewSession(room Room, model realtime.Model, opts ...SessionOption) (*Session, error) {
	if room == nil {
		return nil, errors.New("session requires a room")
	}
	if model == nil {
		return nil, errors.New("session requires a realtime model")
	}

	s := &Session{
		id:                uuid.NewString(),
		room:              room,
		model:             model,
		temperature:       DefaultTemperature,
		inputEncoding:     audio.GetDefaultEncodingInfo(),
		outputEncoding:    audio.EncodingInfo{SampleRate: 24000, Format: audio.EncodingLinear16},
		bargeIn:           true,
		reconnectAttempts: DefaultReconnectAttempts,
		reconnectBase:     DefaultReconnectBase,
		reconnectMax:      DefaultReconnectMax,
		transcript:        transcript.New(),
		inbox:             make(chan events.Event, inboxCapacity),
		closeCh:           make(chan struct{}),
		done:              make(chan struct{}),
		outstanding:       map[string]pendingInvocation{},
		cancelledReplies:  map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(s)
	}

	registry := s.registry
	if registry == nil {
		var err error
		if registry, err = tools.NewRegistry(); err != nil {
			return nil, fmt.Errorf("failed to create tool registry: %w", err)
		}
	}
	for _, tool := range s.tools {
		if err := registry.Register(tool); err != nil {
			return nil, fmt.Errorf("failed to register tool: %w", err)
		}
	}
	registry.Freeze()
	s.registry = registry

	var dispatcherOpts []tools.DispatcherOption
	if s.toolTimeout > 0 {
		dispatcherOpts = append(dispatcherOpts, tools.WithDefaultTimeout(s.toolTimeout))
	}
	s.dispatcher = tools.NewDispatcher(registry, dispatcherOpts...)

	bridge, err := realtime.NewBridge(model, realtime.Setup{
		Instructions:   s.instructions,
		Tools:          registry.Manifest(),
		ModelID:        s.modelID,
		VoiceID:        s.voiceID,
		Temperature:    s.temperature,
		InputEncoding:  s.inputEncoding,
		OutputEncoding: s.outputEncoding,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation bridge: %w", err)
	}
	s.bridge = bridge

	s.detector = turndetection.NewDetector(turndetection.WithFloorProbe(func() bool {
		return s.State() == StateSpeaking
	}))
	s.backoff = s.newBackoff()

	if s.bargeInCounter, err = meter.Int64Counter("session.barge_ins",
		metric.WithDescription("Agent replies cancelled by the user speaking")); err != nil {
		logger.Warn("failed to create barge-in counter", "error", err)
	}
	if s.reconnectCounter, err = meter.Int64Counter("session.reconnects",
		metric.WithDescription("Model reconnect attempts after transient failures")); err != nil {
		logger.Warn("failed to create reconnect counter", "error", err)
	}
	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// ActiveReplyID returns the reply the agent is currently speaking, or "".
func (s *Session) ActiveReplyID() string {
	s.replyMu.Lock()
	defer s.replyMu.Unlock()
	return s.activeReply
}

// Transcript returns a snapshot of the conversation so far.
func (s *Session) Transcript() []transcript.Turn {
	return s.transcript.Snapshot()
}

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close requests teardown and returns immediately. Outstanding tool
// invocations are cancelled, not awaited.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closeCh)
	})
}

// SubmitText feeds typed user input into the conversation as if it had been
// spoken.
func (s *Session) SubmitText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if s.State() == StateClosed {
		return ErrSessionClosed
	}
	select {
	case s.inbox <- userText{Base: events.NewBase(kindUserText), text: text}:
		return nil
	case <-s.closeCh:
		return ErrSessionClosed
	case <-s.done:
		return ErrSessionClosed
	}
}

// Run connects the room and the model and drives the conversation until the
// session is closed, ctx is cancelled or the model fails for good. A model
// failure is returned as *SessionFailedError. Run may be called once.
func (s *Session) Run(ctx context.Context) (err error) {
	if !s.started.CompareAndSwap(false, true) {
		return ErrSessionRunning
	}
	defer close(s.done)

	ctx, span := tracer.Start(ctx, "session")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", s.id))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.ctx, s.cancel = ctx, cancel
	go func() {
		select {
		case <-s.closeCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.room.Connect(ctx); err != nil {
		s.setState(StateClosed)
		s.notify(events.NewSessionClosed(s.id))
		if s.closeRequested() {
			return nil
		}
		return fmt.Errorf("failed to connect room: %w", err)
	}
	s.setState(StateActive)
	logger.Info("session connected", "session_id", s.id)

	s.startCapture(ctx)
	if s.vad != nil {
		go func() {
			if err := s.detector.Run(ctx, s.vad, s.post); err != nil {
				logger.Warn("turn detection stopped", "session_id", s.id, "error", err)
			}
		}()
	}

	if generation, err := s.bridge.Connect(ctx); err != nil {
		s.handleModelFailure(realtime.AsModelError(err))
	} else {
		s.connected(generation)
	}

	return s.loop(ctx)
}

func (s *Session) loop(ctx context.Context) error {
	completions := s.dispatcher.Completions()
	for {
		if s.failure != nil {
			s.teardown()
			return s.failure
		}

		var batch []events.Event
		select {
		case <-ctx.Done():
			s.teardown()
			if s.closeRequested() {
				return nil
			}
			return ctx.Err()
		case event := <-s.inbox:
			batch = append(batch, event)
		case invocation := <-completions:
			batch = append(batch, invocationSettled{Base: events.NewBase(kindInvocationSettled), invocation: invocation})
		}

		s.process(ctx, s.drain(batch, completions))
	}
}

// drain collects everything that is already pending and orders it so tool
// requests are handled before user input that is waiting in the same cycle.
func (s *Session) drain(batch []events.Event, completions <-chan tools.Invocation) []events.Event {
	for {
		select {
		case event := <-s.inbox:
			batch = append(batch, event)
			continue
		case invocation := <-completions:
			batch = append(batch, invocationSettled{Base: events.NewBase(kindInvocationSettled), invocation: invocation})
			continue
		default:
		}
		break
	}
	return deferUserInput(batch)
}

// deferredInput is user input that was pending in the same cycle as a tool
// request. The tool request came from the agent's earlier output, so the
// input is answered after that reply instead of cutting it off.
type deferredInput struct {
	events.Event
}

// deferUserInput moves user input that precedes the last tool request of the
// batch to just after it. Model and tool events keep their arrival order.
func deferUserInput(batch []events.Event) []events.Event {
	last := -1
	for i, event := range batch {
		if _, ok := event.(realtime.ToolCallRequested); ok {
			last = i
		}
	}
	if last < 0 {
		return batch
	}

	ordered := make([]events.Event, 0, len(batch))
	var deferred []events.Event
	for i, event := range batch {
		if i < last && isUserInput(event) {
			deferred = append(deferred, deferredInput{Event: event})
			continue
		}
		ordered = append(ordered, event)
		if i == last {
			ordered = append(ordered, deferred...)
		}
	}
	return ordered
}

func isUserInput(event events.Event) bool {
	switch event.(type) {
	case turndetection.SpeechEnded, userText:
		return true
	}
	return false
}

func (s *Session) process(ctx context.Context, batch []events.Event) {
	_, span := tracer.Start(ctx, "dispatch cycle")
	defer span.End()
	span.SetAttributes(attribute.Int("cycle.events", len(batch)))

	for _, event := range batch {
		if s.failure != nil {
			return
		}

		switch e := event.(type) {
		case reconnected:
			s.onReconnected(e)
			continue
		case realtime.ModelFailed:
			s.onModelFailed(e)
			continue
		}

		if !s.State().Open() {
			logger.Debug("dropping event while session is not active", "kind", event.Kind(), "state", s.State().String())
			continue
		}

		switch e := event.(type) {
		case turndetection.SpeechStarted:
			s.onSpeechStarted(e)
		case turndetection.SpeechEnded:
			s.onSpeechEnded(e)
		case userText:
			s.onUserText(e)
		case deferredInput:
			s.onDeferredInput(e)
		case realtime.PartialUtterance:
			s.onPartialUtterance(e)
		case realtime.ToolCallRequested:
			s.onToolCallRequested(ctx, e)
		case realtime.ToolRoundComplete:
			s.onToolRoundComplete(e)
		case invocationSettled:
			s.onInvocationSettled(e)
		case realtime.FinalUtterance:
			s.onFinalUtterance(e)
		default:
			logger.Debug("ignoring unknown event", "kind", event.Kind())
		}
	}
}

func (s *Session) onSpeechStarted(e turndetection.SpeechStarted) {
	s.notify(events.NewUserSpeechStarted(e.BargeIn))
	if s.State() == StateSpeaking && s.bargeIn {
		s.interrupt(e.At())
	}
}

func (s *Session) onSpeechEnded(e turndetection.SpeechEnded) {
	s.notify(events.NewUserSpeechEnded(e.Transcript, e.Duration))
	utterance := heldUtterance{text: e.Transcript, at: e.At()}
	if s.State() == StateSpeaking {
		if !s.bargeIn {
			s.held = append(s.held, utterance)
			return
		}
		s.interrupt(e.At())
	}
	s.acceptUtterance(utterance)
}

func (s *Session) onUserText(e userText) {
	utterance := heldUtterance{text: e.text, at: e.Timestamp(), typed: true}
	if s.State() == StateSpeaking {
		if !s.bargeIn {
			s.held = append(s.held, utterance)
			return
		}
		s.interrupt(e.Timestamp())
	}
	s.acceptUtterance(utterance)
}

func (s *Session) onDeferredInput(e deferredInput) {
	var utterance heldUtterance
	switch input := e.Event.(type) {
	case turndetection.SpeechEnded:
		s.notify(events.NewUserSpeechEnded(input.Transcript, input.Duration))
		utterance = heldUtterance{text: input.Transcript, at: input.At()}
	case userText:
		utterance = heldUtterance{text: input.text, at: input.Timestamp(), typed: true}
	default:
		return
	}
	if s.State() == StateSpeaking {
		s.held = append(s.held, utterance)
		return
	}
	s.acceptUtterance(utterance)
}

// acceptUtterance records a user turn and hands it to the model. Spoken input
// already reached the model as audio and only needs committing.
func (s *Session) acceptUtterance(utterance heldUtterance) {
	if _, err := s.transcript.Append(transcript.SpeakerUser, utterance.text, utterance.at); err != nil {
		logger.Warn("failed to record user turn", "error", err)
	}

	if utterance.typed {
		if err := s.bridge.ForwardUserInput(utterance.text); err != nil {
			logger.Warn("failed to forward user input", "error", err)
		} else if err := s.bridge.StartReply(""); err != nil {
			logger.Warn("failed to request reply", "error", err)
		}
	} else if err := s.bridge.CommitUserInput(); err != nil {
		logger.Warn("failed to commit user input", "error", err)
	}

	if s.State() == StateActive {
		s.setState(StateListening)
	}
}

func (s *Session) onPartialUtterance(e realtime.PartialUtterance) {
	if s.replyCancelled(e.ReplyID) {
		return
	}
	s.resetBackoff()
	s.ensureAgentTurn(e.ReplyID, e.Timestamp())

	if err := s.transcript.AppendAgentText(e.Text, len(e.Audio)); err != nil {
		logger.Warn("failed to record agent output", "error", err)
	}
	if e.Text != "" {
		s.notify(events.NewAssistantResponseSegment(e.ReplyID, e.Text))
	}
	if len(e.Audio) > 0 {
		if err := s.room.Play(e.Audio); err != nil {
			logger.Warn("failed to play agent audio", "error", err)
		}
		s.notify(events.NewAssistantSpeechFrame(e.ReplyID, e.Audio))
	}
}

func (s *Session) onToolCallRequested(ctx context.Context, e realtime.ToolCallRequested) {
	if s.replyCancelled(e.ReplyID) {
		return
	}
	s.resetBackoff()
	s.ensureAgentTurn(e.ReplyID, e.Timestamp())

	handle, err := s.dispatcher.Invoke(ctx, e.CallID, e.Name, e.Args)
	if err != nil {
		logger.Warn("tool call rejected", "tool", e.Name, "call_id", e.CallID, "error", err)
		result := tools.FallbackResult(e.Name, err)
		s.notify(events.NewToolCallFailed("", e.Name, err.Error()))
		s.recordToolTurn("", e.Name, result, time.Now())
		s.submitToolResult(e.CallID, e.Name, result)
		return
	}

	s.outstanding[handle.ID()] = pendingInvocation{callID: e.CallID, name: e.Name, replyID: e.ReplyID}
	s.notify(events.NewToolCallStarted(handle.ID(), e.CallID, e.Name, string(e.Args)))
}

func (s *Session) onToolRoundComplete(e realtime.ToolRoundComplete) {
	if s.replyCancelled(e.ReplyID) || e.ReplyID != s.ActiveReplyID() {
		return
	}
	s.roundComplete = true
	s.continueReply()
}

func (s *Session) onInvocationSettled(e invocationSettled) {
	invocation := e.invocation
	pending, ok := s.outstanding[invocation.ID]
	if !ok {
		logger.Debug("dropping result of abandoned tool invocation", "invocation_id", invocation.ID, "tool", invocation.Tool)
		return
	}
	delete(s.outstanding, invocation.ID)

	result := invocation.Result
	if invocation.Status == tools.StatusFailed {
		result = tools.FallbackResult(invocation.Tool, invocation.Err)
		s.notify(events.NewToolCallFailed(invocation.ID, invocation.Tool, invocation.Err.Error()))
	} else {
		s.notify(events.NewToolCallCompleted(invocation.ID, invocation.Tool, result))
	}

	s.recordToolTurn(invocation.ID, invocation.Tool, result, invocation.CompletedAt)
	s.submitToolResult(pending.callID, pending.name, result)
	s.continueReply()
}

func (s *Session) onFinalUtterance(e realtime.FinalUtterance) {
	if s.replyCancelled(e.ReplyID) {
		delete(s.cancelledReplies, e.ReplyID)
		return
	}
	s.resetBackoff()
	if s.outstandingFor(e.ReplyID) > 0 {
		logger.Debug("ignoring final utterance while tools are outstanding", "reply_id", e.ReplyID)
		return
	}

	if !s.transcript.AgentTurnOpen() {
		if e.Text == "" {
			return
		}
		s.ensureAgentTurn(e.ReplyID, e.Timestamp())
	} else if e.ReplyID != s.ActiveReplyID() {
		return
	}

	s.closeAgentTurn(e.Text, e.Interrupted, e.Timestamp())
	s.setState(StateListening)
	s.releaseHeld()
}

func (s *Session) releaseHeld() {
	held := s.held
	s.held = nil
	for _, utterance := range held {
		s.acceptUtterance(utterance)
	}
}

// ensureAgentTurn gives the floor to the agent for replyID. A turn still open
// for an earlier reply is closed first.
func (s *Session) ensureAgentTurn(replyID string, at time.Time) {
	if s.transcript.AgentTurnOpen() {
		if s.ActiveReplyID() == replyID {
			return
		}
		s.closeAgentTurn("", false, at)
	}

	if _, err := s.transcript.OpenAgentTurn(at); err != nil {
		logger.Warn("failed to open agent turn", "error", err)
		return
	}
	s.roundComplete = false
	s.setActiveReply(replyID)
	// Model events arrive in stream order, so nothing from a reply cancelled
	// before this one can still be pending.
	clear(s.cancelledReplies)
	s.notify(events.NewAssistantResponseStarted(replyID))
	s.setState(StateSpeaking)
}

func (s *Session) closeAgentTurn(text string, truncated bool, at time.Time) {
	replyID := s.ActiveReplyID()
	s.setActiveReply("")
	s.roundComplete = false
	if !s.transcript.AgentTurnOpen() {
		return
	}
	turn, err := s.transcript.CloseAgentTurn(text, truncated, at)
	if err != nil {
		logger.Warn("failed to close agent turn", "error", err)
		return
	}
	s.notify(events.NewAssistantResponseFinal(replyID, turn.Text, truncated))
}

// interrupt cancels the agent's reply because the user took the floor.
func (s *Session) interrupt(at time.Time) {
	activeReply := s.ActiveReplyID()
	replyID, err := s.bridge.CancelReply()
	if err != nil {
		logger.Warn("failed to cancel reply", "error", err)
	}
	if replyID == "" {
		replyID = activeReply
	}
	for _, id := range []string{replyID, activeReply} {
		if id != "" {
			s.cancelledReplies[id] = struct{}{}
		}
	}

	s.cancelOutstanding()
	s.closeAgentTurn("", true, at)
	s.room.ClearPlayback()
	if s.bargeInCounter != nil {
		s.bargeInCounter.Add(s.ctx, 1)
	}
	s.notify(events.NewTurnCancelled(replyID))
	s.setState(StateListening)
	s.releaseHeld()
}

func (s *Session) cancelOutstanding() {
	for id, pending := range s.outstanding {
		s.dispatcher.Cancel(id)
		delete(s.outstanding, id)
		s.notify(events.NewToolCallCancelled(id, pending.name))
	}
	s.roundComplete = false
}

func (s *Session) outstandingFor(replyID string) int {
	count := 0
	for _, pending := range s.outstanding {
		if pending.replyID == replyID {
			count++
		}
	}
	return count
}

// continueReply resumes the reply once the model finished requesting tools
// and every result was submitted.
func (s *Session) continueReply() {
	replyID := s.ActiveReplyID()
	if !s.roundComplete || replyID == "" || s.outstandingFor(replyID) > 0 {
		return
	}
	s.roundComplete = false
	if err := s.bridge.ContinueReply(); err != nil {
		logger.Warn("failed to continue reply", "reply_id", replyID, "error", err)
	}
}

func (s *Session) recordToolTurn(invocationID, tool, result string, at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}
	if _, err := s.transcript.AppendTool(invocationID, tool, result, at); err != nil {
		logger.Warn("failed to record tool turn", "tool", tool, "error", err)
	}
}

func (s *Session) submitToolResult(callID, name, result string) {
	if err := s.bridge.SubmitToolResult(callID, name, result); err != nil {
		logger.Warn("failed to submit tool result", "tool", name, "call_id", callID, "error", err)
	}
}

func (s *Session) replyCancelled(replyID string) bool {
	_, ok := s.cancelledReplies[replyID]
	return ok
}

func (s *Session) onModelFailed(e realtime.ModelFailed) {
	if s.generation == 0 || e.Generation != s.generation {
		return
	}
	s.handleModelFailure(e.Err)
}

// handleModelFailure abandons the current connection. Transient failures are
// retried with backoff until the policy is exhausted.
func (s *Session) handleModelFailure(err *realtime.ModelError) {
	s.generation = 0
	if !err.Transient() {
		logger.Error("model failed", "session_id", s.id, "error", err)
		s.fail(err)
		return
	}

	s.setState(StateClosing)
	s.cancelOutstanding()
	s.closeAgentTurn("", true, time.Now())
	s.room.ClearPlayback()
	clear(s.cancelledReplies)

	delay, stop := s.backoff.Next()
	if stop {
		logger.Error("model failed, reconnect attempts exhausted", "session_id", s.id, "failures", s.failures+1, "error", err)
		s.fail(err)
		return
	}
	s.failures++
	if s.reconnectCounter != nil {
		s.reconnectCounter.Add(s.ctx, 1)
	}
	logger.Warn("model connection lost, reconnecting", "session_id", s.id, "attempt", s.failures, "delay", delay, "error", err)
	go s.reconnect(s.ctx, s.failures, delay)
}

func (s *Session) reconnect(ctx context.Context, attempt int, delay time.Duration) {
	ctx, span := tracer.Start(ctx, "reconnect")
	defer span.End()
	span.SetAttributes(attribute.Int("reconnect.attempt", attempt))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	generation, err := s.bridge.Reconnect(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.post(reconnected{Base: events.NewBase(kindReconnected), generation: generation, err: err})
}

func (s *Session) onReconnected(e reconnected) {
	if s.State() != StateClosing || s.failure != nil {
		return
	}
	if e.err != nil {
		s.handleModelFailure(realtime.AsModelError(e.err))
		return
	}
	s.setState(StateActive)
	s.connected(e.generation)
}

// connected starts reading a new model connection. The greeting is only ever
// requested on the first connection of the session.
func (s *Session) connected(generation int) {
	s.generation = generation
	go func() {
		if err := s.bridge.Run(s.ctx, generation, s.post); err != nil && !errors.Is(err, context.Canceled) {
			logger.Debug("model stream ended", "generation", generation, "error", err)
		}
	}()

	if s.greeted {
		return
	}
	if err := s.bridge.StartReply(s.greeting); err != nil {
		logger.Warn("failed to request greeting", "error", err)
		return
	}
	s.greeted = true
}

func (s *Session) newBackoff() retry.Backoff {
	backoff := retry.NewExponential(s.reconnectBase)
	backoff = retry.WithCappedDuration(s.reconnectMax, backoff)
	return retry.WithMaxRetries(s.reconnectAttempts, backoff)
}

// resetBackoff is called whenever model output flows, which ends a run of
// consecutive failures.
func (s *Session) resetBackoff() {
	if s.failures == 0 {
		return
	}
	s.failures = 0
	s.backoff = s.newBackoff()
}

func (s *Session) fail(err error) {
	s.failure = &SessionFailedError{SessionID: s.id, Err: err}
	s.notify(events.NewSessionFailed(s.id, err.Error()))
}

func (s *Session) startCapture(ctx context.Context) {
	go func() {
		err := s.room.Capture(ctx, func(frame []byte) {
			if err := s.bridge.SendAudio(frame); err != nil && !errors.Is(err, realtime.ErrNotConnected) {
				logger.Debug("failed to send audio to model", "error", err)
			}
			if s.vad != nil {
				if err := s.vad.SendAudio(frame); err != nil {
					logger.Debug("failed to send audio to voice activity detector", "error", err)
				}
			}
		})
		if err != nil && ctx.Err() == nil {
			logger.Error("audio capture stopped", "session_id", s.id, "error", err)
		}
	}()
}

func (s *Session) teardown() {
	s.setState(StateClosing)
	s.cancelOutstanding()
	s.dispatcher.Close()
	s.closeAgentTurn("", true, time.Now())
	s.held = nil

	if err := s.bridge.Close(); err != nil {
		logger.Warn("failed to close model connection", "error", err)
	}
	s.cancel()
	if err := s.room.Disconnect(); err != nil {
		logger.Warn("failed to disconnect room", "error", err)
	}

	s.setState(StateClosed)
	s.notify(events.NewSessionClosed(s.id))
	logger.Info("session closed", "session_id", s.id)
}

// post hands an event from a producer goroutine to the dispatch loop.
func (s *Session) post(event events.Event) {
	select {
	case s.inbox <- event:
	case <-s.closeCh:
	case <-s.done:
	}
}

func (s *Session) closeRequested() bool {
	select {
	case <-s.closeCh:
		return true
	default:
		return false
	}
}

func (s *Session) setState(to State) {
	from := State(s.state.Swap(int32(to)))
	if from == to {
		return
	}
	logger.Debug("session state changed", "session_id", s.id, "from", from.String(), "to", to.String())
	s.notify(events.NewSessionStateChanged(s.id, from.String(), to.String()))
}

func (s *Session) setActiveReply(replyID string) {
	s.replyMu.Lock()
	s.activeReply = replyID
	s.replyMu.Unlock()
}

func (s *Session) notify(event events.Event) {
	if s.eventHandler != nil {
		s.eventHandler(event)
	}
}
