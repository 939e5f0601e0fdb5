package turndetection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/koscakluka/ema-realtime/core/events"
	"go.opentelemetry.io/otel/codes"
)

// Activity is a single voice activity observation. Transcript carries the
// recognised text when the capability provides one.
type Activity struct {
	Speaking   bool
	At         time.Time
	Transcript string
}

// VAD is the voice activity detection capability. Stream blocks until ctx is
// cancelled or the capability fails, reporting observations to onActivity.
type VAD interface {
	Stream(ctx context.Context, onActivity func(Activity)) error
	SendAudio(frame []byte) error
}

const (
	KindSpeechStarted events.Kind = "turn_detection.speech_started"
	KindSpeechEnded   events.Kind = "turn_detection.speech_ended"
)

// SpeechStarted is emitted when the user starts speaking. BargeIn is set when
// the agent held the floor at that moment.
type SpeechStarted struct {
	events.Base
	BargeIn bool
}

func (e SpeechStarted) At() time.Time { return e.Timestamp() }

// SpeechEnded is emitted when the user stops speaking.
type SpeechEnded struct {
	events.Base
	Duration   time.Duration
	Transcript string
}

func (e SpeechEnded) At() time.Time { return e.Timestamp() }

type DetectorOption func(*Detector)

// WithFloorProbe tells the detector how to find out whether the agent is
// currently speaking.
func WithFloorProbe(probe func() bool) DetectorOption {
	return func(d *Detector) {
		d.agentSpeaking = probe
	}
}

// Detector turns raw voice activity into speech boundaries. Repeated
// observations of the same state are suppressed.
type Detector struct {
	mu         sync.Mutex
	speaking   bool
	startedAt  time.Time
	transcript []string

	agentSpeaking func() bool
}

func NewDetector(opts ...DetectorOption) *Detector {
	d := &Detector{agentSpeaking: func() bool { return false }}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Detector) Speaking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speaking
}

// Observe folds one observation into the detector state and returns the
// boundary event it produces, if any.
func (d *Detector) Observe(activity Activity) (events.Event, bool) {
	at := activity.At
	if at.IsZero() {
		at = time.Now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if activity.Speaking {
		if text := strings.TrimSpace(activity.Transcript); text != "" {
			d.transcript = append(d.transcript, text)
		}
		if d.speaking {
			return nil, false
		}
		d.speaking = true
		d.startedAt = at
		return SpeechStarted{
			Base:    events.NewBaseAt(KindSpeechStarted, at),
			BargeIn: d.agentSpeaking(),
		}, true
	}

	if !d.speaking {
		return nil, false
	}
	if text := strings.TrimSpace(activity.Transcript); text != "" {
		d.transcript = append(d.transcript, text)
	}
	d.speaking = false
	ended := SpeechEnded{
		Base:       events.NewBaseAt(KindSpeechEnded, at),
		Duration:   at.Sub(d.startedAt),
		Transcript: strings.Join(d.transcript, " "),
	}
	d.transcript = nil
	return ended, true
}

// Run streams the capability and emits every boundary it detects until ctx is
// cancelled.
func (d *Detector) Run(ctx context.Context, vad VAD, emit func(events.Event)) error {
	ctx, span := tracer.Start(ctx, "detect turns")
	defer span.End()

	err := vad.Stream(ctx, func(activity Activity) {
		if event, ok := d.Observe(activity); ok {
			emit(event)
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		err = fmt.Errorf("failed to stream voice activity: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("voice activity stream stopped", "error", err)
		return err
	}
	return nil
}
