// Package observe serves a read-only HTTP view of a running session: its
// state, its transcript and the most recent session events.
package observe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	orchestration "github.com/koscakluka/ema-realtime/core"
	"github.com/koscakluka/ema-realtime/core/events"
	"github.com/koscakluka/ema-realtime/core/transcript"
)

const defaultEventLimit = 200

type Session interface {
	ID() string
	State() orchestration.State
	ActiveReplyID() string
	Transcript() []transcript.Turn
}

type Option func(*Observer)

// WithEventLimit sets how many recent events are kept.
func WithEventLimit(limit int) Option {
	return func(o *Observer) {
		if limit > 0 {
			o.limit = limit
		}
	}
}

type Observer struct {
	app   *fiber.App
	limit int

	mu      sync.RWMutex
	session Session
	recent  []EventView
}

func New(opts ...Option) *Observer {
	o := &Observer{limit: defaultEventLimit}
	for _, opt := range opts {
		opt(o)
	}
	o.recent = make([]EventView, 0, o.limit)

	app := fiber.New(fiber.Config{
		AppName:               "shams observer",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())
	app.Use(logRequests)

	api := app.Group("/api")
	api.Get("/session", o.handleSession)
	api.Get("/transcript", o.handleTranscript)
	api.Get("/events", o.handleEvents)

	o.app = app
	return o
}

// Bind sets the session the observer reports on. Requests made before a
// session is bound are answered with 503.
func (o *Observer) Bind(session Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.session = session
}

// Handle records a session event. Speech frames are not kept.
func (o *Observer) Handle(event events.Event) {
	if event.Kind() == events.KindAssistantSpeechFrame {
		return
	}

	view := EventView{ID: uuid.NewString(), At: event.Timestamp(), Kind: event.Kind(), Data: event}

	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.recent) == o.limit {
		copy(o.recent, o.recent[1:])
		o.recent = o.recent[:len(o.recent)-1]
	}
	o.recent = append(o.recent, view)
}

func (o *Observer) App() *fiber.App {
	return o.app
}

func (o *Observer) Listen(addr string) error {
	logger.Info("observer listening", "addr", addr)
	if err := o.app.Listen(addr); err != nil {
		return fmt.Errorf("failed to serve observer: %w", err)
	}
	return nil
}

func (o *Observer) Shutdown(ctx context.Context) error {
	if err := o.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shut down observer: %w", err)
	}
	return nil
}

func (o *Observer) bound() (Session, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.session, o.session != nil
}

func (o *Observer) handleSession(c *fiber.Ctx) error {
	session, ok := o.bound()
	if !ok {
		return fiber.NewError(fiber.StatusServiceUnavailable, "no session")
	}
	return c.JSON(SessionView{
		ID:            session.ID(),
		State:         session.State().String(),
		ActiveReplyID: session.ActiveReplyID(),
		Turns:         len(session.Transcript()),
	})
}

func (o *Observer) handleTranscript(c *fiber.Ctx) error {
	session, ok := o.bound()
	if !ok {
		return fiber.NewError(fiber.StatusServiceUnavailable, "no session")
	}

	turns := session.Transcript()
	views := make([]TurnView, 0, len(turns))
	if err := copier.Copy(&views, turns); err != nil {
		return fmt.Errorf("failed to copy transcript: %w", err)
	}
	for i := range views {
		views[i].InFlight = turns[i].InFlight()
	}
	return c.JSON(views)
}

func (o *Observer) handleEvents(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", o.limit)
	if limit <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be positive")
	}

	o.mu.RLock()
	start := max(len(o.recent)-limit, 0)
	recent := append([]EventView(nil), o.recent[start:]...)
	o.mu.RUnlock()

	return c.JSON(recent)
}

func logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	logger.Debug("observer request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration", time.Since(start),
	)
	return err
}
