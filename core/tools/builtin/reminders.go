package builtin

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-realtime/core/tools"
)

const maxReminderDelay = 24 * time.Hour

var ErrRemindersStopped = errors.New("reminders are stopped")

type Reminder struct {
	ID    string
	Text  string
	DueAt time.Time
}

// Reminders keeps reminders in memory for the lifetime of a session and
// calls onDue when one falls due.
type Reminders struct {
	onDue func(Reminder)
	now   func() time.Time

	mu      sync.Mutex
	pending map[string]Reminder
	timers  map[string]*time.Timer
	stopped bool
}

func NewReminders(onDue func(Reminder)) *Reminders {
	return &Reminders{
		onDue:   onDue,
		now:     time.Now,
		pending: map[string]Reminder{},
		timers:  map[string]*time.Timer{},
	}
}

// Tool is the set_reminder tool backed by r.
func (r *Reminders) Tool() tools.Tool {
	return tools.NewTool("set_reminder", "Set a reminder that fires after the given number of minutes.", r.call,
		tools.Required("reminder", tools.TypeString, "What to remind the user about"),
		tools.Required("minutes", tools.TypeInteger, "Minutes from now"),
	)
}

func (r *Reminders) call(_ context.Context, args tools.Args) (string, error) {
	minutes := args.Int("minutes")
	if maxMinutes := int64(maxReminderDelay / time.Minute); minutes <= 0 || minutes > maxMinutes {
		return "", fmt.Errorf("reminder minutes must be between 1 and %d, got %d", maxMinutes, minutes)
	}
	reminder, err := r.Schedule(args.String("reminder"), time.Duration(minutes)*time.Minute)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Reminder %q set for %s.", reminder.Text, reminder.DueAt.Format("15:04")), nil
}

// Schedule registers a reminder due after delay.
func (r *Reminders) Schedule(text string, delay time.Duration) (Reminder, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reminder{}, fmt.Errorf("reminder text is empty")
	}
	if delay <= 0 || delay > maxReminderDelay {
		return Reminder{}, fmt.Errorf("reminder delay must be positive and at most %s, got %s", maxReminderDelay, delay)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return Reminder{}, ErrRemindersStopped
	}

	reminder := Reminder{ID: uuid.NewString(), Text: text, DueAt: r.now().Add(delay)}
	r.pending[reminder.ID] = reminder
	r.timers[reminder.ID] = time.AfterFunc(delay, func() { r.fire(reminder.ID) })
	logger.Info("reminder scheduled", "id", reminder.ID, "due_at", reminder.DueAt)
	return reminder, nil
}

func (r *Reminders) fire(id string) {
	r.mu.Lock()
	reminder, ok := r.pending[id]
	delete(r.pending, id)
	delete(r.timers, id)
	stopped := r.stopped
	r.mu.Unlock()

	if !ok || stopped {
		return
	}
	if r.onDue != nil {
		r.onDue(reminder)
	}
}

// Pending returns the reminders that have not fired yet, soonest first.
func (r *Reminders) Pending() []Reminder {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending := make([]Reminder, 0, len(r.pending))
	for _, reminder := range r.pending {
		pending = append(pending, reminder)
	}
	slices.SortFunc(pending, func(a, b Reminder) int {
		return a.DueAt.Compare(b.DueAt)
	})
	return pending
}

// Stop cancels every pending reminder.
func (r *Reminders) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	for id, timer := range r.timers {
		timer.Stop()
		delete(r.timers, id)
		delete(r.pending, id)
	}
}
