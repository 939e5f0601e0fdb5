package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const (
	DefaultTimeout          = 10 * time.Second
	defaultCompletionBuffer = 64
)

var ErrDispatcherClosed = errors.New("tool dispatcher is closed")

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// Invocation is a single execution of a tool requested by the model.
type Invocation struct {
	ID          string
	CallID      string
	Tool        string
	RawArgs     json.RawMessage
	Status      Status
	Result      string
	Err         error
	RequestedAt time.Time
	CompletedAt time.Time
}

// Handle tracks a running invocation. The first terminal status wins; later
// outcomes are discarded.
type Handle struct {
	mu         sync.Mutex
	invocation Invocation
	cancel     context.CancelFunc
	done       chan struct{}
}

func (h *Handle) ID() string {
	return h.invocation.ID
}

func (h *Handle) Snapshot() Invocation {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.invocation
}

// Done is closed once the invocation reaches a terminal status.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) setStatus(status Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.invocation.Status.Terminal() {
		h.invocation.Status = status
	}
}

func (h *Handle) settle(status Status, result string, err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.invocation.Status.Terminal() {
		return false
	}
	h.invocation.Status = status
	h.invocation.Result = result
	h.invocation.Err = err
	h.invocation.CompletedAt = time.Now()
	close(h.done)
	return true
}

type DispatcherOption func(*Dispatcher)

// WithDefaultTimeout sets the timeout for tools that do not declare their own.
func WithDefaultTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.defaultTimeout = timeout
		}
	}
}

func WithCompletionBuffer(size int) DispatcherOption {
	return func(d *Dispatcher) {
		if size >= 0 {
			d.completionBuffer = size
		}
	}
}

// Dispatcher executes tool invocations concurrently and reports each settled,
// non-cancelled invocation exactly once on Completions.
type Dispatcher struct {
	registry         *Registry
	defaultTimeout   time.Duration
	completionBuffer int

	completions chan Invocation
	closed      chan struct{}
	closeOnce   sync.Once

	mu       sync.Mutex
	inflight map[string]*Handle

	invocationCounter metric.Int64Counter
}

func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry:         registry,
		defaultTimeout:   DefaultTimeout,
		completionBuffer: defaultCompletionBuffer,
		closed:           make(chan struct{}),
		inflight:         map[string]*Handle{},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.completions = make(chan Invocation, d.completionBuffer)

	counter, err := meter.Int64Counter("tools.invocations",
		metric.WithDescription("Tool invocations by final status"))
	if err != nil {
		logger.Warn("failed to create tool invocation counter", "error", err)
	}
	d.invocationCounter = counter
	return d
}

func (d *Dispatcher) Completions() <-chan Invocation {
	return d.completions
}

// Invoke validates the request and starts the tool in its own goroutine. It
// never waits for the handler. Unknown tools and invalid arguments are
// returned as errors and the handler is never started.
func (d *Dispatcher) Invoke(ctx context.Context, callID, name string, rawArgs json.RawMessage) (*Handle, error) {
	select {
	case <-d.closed:
		return nil, ErrDispatcherClosed
	default:
	}

	tool, err := d.registry.Resolve(name)
	if err != nil {
		d.count(ctx, name, "rejected")
		return nil, err
	}
	args, err := parseArgs(tool, rawArgs)
	if err != nil {
		d.count(ctx, name, "rejected")
		return nil, err
	}

	timeout := d.defaultTimeout
	if tool.Timeout > 0 {
		timeout = tool.Timeout
	}

	invocationCtx, cancel := context.WithCancel(ctx)
	handle := &Handle{
		invocation: Invocation{
			ID:          uuid.NewString(),
			CallID:      callID,
			Tool:        tool.Name,
			RawArgs:     append(json.RawMessage(nil), rawArgs...),
			Status:      StatusPending,
			RequestedAt: time.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	d.mu.Lock()
	d.inflight[handle.ID()] = handle
	d.mu.Unlock()

	handle.setStatus(StatusRunning)
	go d.run(invocationCtx, handle, tool, args, timeout)
	return handle, nil
}

func (d *Dispatcher) run(ctx context.Context, handle *Handle, tool Tool, args Args, timeout time.Duration) {
	ctx, span := tracer.Start(ctx, "execute tool")
	defer span.End()
	span.SetAttributes(
		attribute.String("tool.name", tool.Name),
		attribute.String("tool.invocation_id", handle.ID()),
	)

	type outcome struct {
		result string
		err    error
	}
	outcomes := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				outcomes <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		result, err := tool.Handler.Call(ctx, args)
		outcomes <- outcome{result: result, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-outcomes:
		if out.err != nil {
			handle.settle(StatusFailed, "", executionError(tool.Name, out.err))
		} else {
			handle.settle(StatusSucceeded, out.result, nil)
		}
	case <-timer.C:
		handle.settle(StatusFailed, "", &ToolTimeoutError{Tool: tool.Name, Timeout: timeout})
	case <-handle.done:
	}
	handle.cancel()
	d.forget(handle.ID())

	invocation := handle.Snapshot()
	d.count(ctx, tool.Name, string(invocation.Status))
	switch invocation.Status {
	case StatusCancelled:
		span.SetAttributes(attribute.Bool("tool.cancelled", true))
		return
	case StatusFailed:
		span.RecordError(invocation.Err)
		span.SetStatus(codes.Error, invocation.Err.Error())
	}

	select {
	case d.completions <- invocation:
	case <-d.closed:
	}
}

func executionError(tool string, err error) error {
	var executionErr *ToolExecutionError
	if errors.As(err, &executionErr) {
		return executionErr
	}
	return &ToolExecutionError{Tool: tool, Message: err.Error(), Err: err}
}

// Cancel marks an in-flight invocation cancelled and cancels its handler
// context. It reports false if the invocation already settled.
func (d *Dispatcher) Cancel(id string) bool {
	d.mu.Lock()
	handle, ok := d.inflight[id]
	delete(d.inflight, id)
	d.mu.Unlock()
	if !ok {
		return false
	}

	if !handle.settle(StatusCancelled, "", nil) {
		return false
	}
	handle.cancel()
	return true
}

func (d *Dispatcher) CancelAll() int {
	d.mu.Lock()
	ids := make([]string, 0, len(d.inflight))
	for id := range d.inflight {
		ids = append(ids, id)
	}
	d.mu.Unlock()

	cancelled := 0
	for _, id := range ids {
		if d.Cancel(id) {
			cancelled++
		}
	}
	return cancelled
}

func (d *Dispatcher) Outstanding() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

// Close cancels every in-flight invocation without waiting for handlers and
// stops delivering completions.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.closed)
		d.CancelAll()
	})
}

func (d *Dispatcher) forget(id string) {
	d.mu.Lock()
	delete(d.inflight, id)
	d.mu.Unlock()
}

func (d *Dispatcher) count(ctx context.Context, tool, status string) {
	if d.invocationCounter == nil {
		return
	}
	d.invocationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool.name", tool),
		attribute.String("status", status),
	))
}
