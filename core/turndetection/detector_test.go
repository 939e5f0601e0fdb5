package turndetection

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koscakluka/ema-realtime/core/events"
)

func TestObserveSuppressesDuplicates(t *testing.T) {
	detector := NewDetector()
	start := time.Now()

	testCases := []struct {
		name     string
		activity Activity
		expected events.Kind
	}{
		{name: "idle while idle", activity: Activity{Speaking: false, At: start}},
		{name: "speech starts", activity: Activity{Speaking: true, At: start}, expected: KindSpeechStarted},
		{name: "still speaking", activity: Activity{Speaking: true, At: start.Add(100 * time.Millisecond), Transcript: "what's the"}},
		{name: "speech ends", activity: Activity{Speaking: false, At: start.Add(time.Second), Transcript: "weather"}, expected: KindSpeechEnded},
		{name: "still idle", activity: Activity{Speaking: false, At: start.Add(2 * time.Second)}},
	}

	for _, testCase := range testCases {
		event, ok := detector.Observe(testCase.activity)
		if testCase.expected == "" {
			if ok {
				t.Fatalf("%s: expected no event, got %q", testCase.name, event.Kind())
			}
			continue
		}
		if !ok || event.Kind() != testCase.expected {
			t.Fatalf("%s: expected %q, got %v", testCase.name, testCase.expected, event)
		}
		if ended, isEnded := event.(SpeechEnded); isEnded {
			if ended.Duration != time.Second {
				t.Fatalf("expected one second of speech, got %s", ended.Duration)
			}
			if ended.Transcript != "what's the weather" {
				t.Fatalf("unexpected transcript %q", ended.Transcript)
			}
			if !ended.At().Equal(start.Add(time.Second)) {
				t.Fatalf("expected end at observation time, got %s", ended.At())
			}
		}
	}
}

func TestObserveFlagsBargeInWhenAgentHoldsFloor(t *testing.T) {
	var agentSpeaking atomic.Bool
	detector := NewDetector(WithFloorProbe(agentSpeaking.Load))

	event, _ := detector.Observe(Activity{Speaking: true})
	if event.(SpeechStarted).BargeIn {
		t.Fatalf("expected no barge-in while agent is silent")
	}
	detector.Observe(Activity{Speaking: false})

	agentSpeaking.Store(true)
	event, _ = detector.Observe(Activity{Speaking: true})
	if !event.(SpeechStarted).BargeIn {
		t.Fatalf("expected barge-in while agent is speaking")
	}
	if !detector.Speaking() {
		t.Fatalf("expected detector to report user speaking")
	}
}

type scriptedVAD struct {
	activities []Activity
	err        error
}

func (v *scriptedVAD) Stream(ctx context.Context, onActivity func(Activity)) error {
	for _, activity := range v.activities {
		onActivity(activity)
	}
	if v.err != nil {
		return v.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (v *scriptedVAD) SendAudio([]byte) error { return nil }

func TestRunEmitsBoundaries(t *testing.T) {
	vad := &scriptedVAD{activities: []Activity{
		{Speaking: true},
		{Speaking: true},
		{Speaking: false, Transcript: "hello"},
	}}
	detector := NewDetector()

	emitted := make(chan events.Event, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- detector.Run(ctx, vad, func(event events.Event) { emitted <- event }) }()

	for _, expected := range []events.Kind{KindSpeechStarted, KindSpeechEnded} {
		select {
		case event := <-emitted:
			if event.Kind() != expected {
				t.Fatalf("expected %q, got %q", expected, event.Kind())
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", expected)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean stop on cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for Run to return")
	}
}

func TestRunReportsCapabilityFailure(t *testing.T) {
	failure := errors.New("socket closed")
	detector := NewDetector()

	err := detector.Run(context.Background(), &scriptedVAD{err: failure}, func(events.Event) {})
	if !errors.Is(err, failure) {
		t.Fatalf("expected capability failure, got %v", err)
	}
}
