package builtin

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/koscakluka/ema-realtime/core/tools"
)

func TestReminderFiresWhenDue(t *testing.T) {
	due := make(chan Reminder, 1)
	reminders := NewReminders(func(reminder Reminder) { due <- reminder })
	defer reminders.Stop()

	scheduled, err := reminders.Schedule("drink water", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("failed to schedule reminder: %v", err)
	}

	select {
	case fired := <-due:
		if fired.ID != scheduled.ID || fired.Text != "drink water" {
			t.Fatalf("unexpected reminder %+v", fired)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for reminder")
	}
	if pending := reminders.Pending(); len(pending) != 0 {
		t.Fatalf("expected no pending reminders, got %+v", pending)
	}
}

func TestSetReminderTool(t *testing.T) {
	reminders := NewReminders(nil)
	defer reminders.Stop()

	tool := reminders.Tool()
	result, err := tool.Handler.Call(context.Background(), tools.Args{"reminder": "call mama", "minutes": json.Number("5")})
	if err != nil {
		t.Fatalf("failed to set reminder: %v", err)
	}
	if !strings.Contains(result, "call mama") {
		t.Fatalf("unexpected result %q", result)
	}

	pending := reminders.Pending()
	if len(pending) != 1 || pending[0].Text != "call mama" {
		t.Fatalf("unexpected pending reminders %+v", pending)
	}
	if until := time.Until(pending[0].DueAt); until < 4*time.Minute || until > 5*time.Minute {
		t.Fatalf("expected reminder in about five minutes, got %s", until)
	}
}

func TestSetReminderToolRejectsOutOfRangeMinutes(t *testing.T) {
	reminders := NewReminders(nil)
	defer reminders.Stop()
	tool := reminders.Tool()

	testCases := []struct {
		name    string
		minutes json.Number
	}{
		{name: "zero", minutes: "0"},
		{name: "negative", minutes: "-5"},
		{name: "just over a day", minutes: "1441"},
		{name: "wraps to five minutes", minutes: "9007199254740997"},
		{name: "max int64", minutes: "9223372036854775807"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := tool.Handler.Call(context.Background(), tools.Args{"reminder": "tea", "minutes": testCase.minutes})
			if err == nil {
				t.Fatalf("expected an error for %s minutes", testCase.minutes)
			}
			if pending := reminders.Pending(); len(pending) != 0 {
				t.Fatalf("expected no pending reminders, got %+v", pending)
			}
		})
	}
}

func TestScheduleRejectsInvalidReminders(t *testing.T) {
	reminders := NewReminders(nil)

	testCases := []struct {
		name  string
		text  string
		delay time.Duration
	}{
		{name: "empty text", text: " ", delay: time.Minute},
		{name: "no delay", text: "tea", delay: 0},
		{name: "too far", text: "tea", delay: 48 * time.Hour},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := reminders.Schedule(testCase.text, testCase.delay); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}

	reminders.Stop()
	if _, err := reminders.Schedule("tea", time.Minute); err != ErrRemindersStopped {
		t.Fatalf("expected ErrRemindersStopped, got %v", err)
	}
}

func TestStopCancelsPendingReminders(t *testing.T) {
	fired := make(chan Reminder, 1)
	reminders := NewReminders(func(reminder Reminder) { fired <- reminder })
	if _, err := reminders.Schedule("stretch", 20*time.Millisecond); err != nil {
		t.Fatalf("failed to schedule reminder: %v", err)
	}
	reminders.Stop()

	select {
	case reminder := <-fired:
		t.Fatalf("reminder %+v fired after stop", reminder)
	case <-time.After(100 * time.Millisecond):
	}
}
