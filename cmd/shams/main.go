// Command shams runs a voice session with the Shams assistant on the local
// microphone and speaker.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	orchestration "github.com/koscakluka/ema-realtime/core"
	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/audio/miniaudio"
	"github.com/koscakluka/ema-realtime/core/events"
	"github.com/koscakluka/ema-realtime/core/realtime"
	"github.com/koscakluka/ema-realtime/core/realtime/gemini"
	"github.com/koscakluka/ema-realtime/core/realtime/openai"
	"github.com/koscakluka/ema-realtime/core/tools/builtin"
	"github.com/koscakluka/ema-realtime/core/turndetection/deepgram"
	"github.com/koscakluka/ema-realtime/internal/config"
	"github.com/koscakluka/ema-realtime/internal/console"
	"github.com/koscakluka/ema-realtime/internal/observe"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

var logger = otelslog.NewLogger("github.com/koscakluka/ema-realtime/cmd/shams")

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	model, input, output, err := newModel(ctx, cfg)
	if err != nil {
		return err
	}

	var handlers []events.Handler
	var sink *console.Sink
	if cfg.Console {
		sink = console.NewSink(256)
		handlers = append(handlers, sink.Handle)
	}
	var observer *observe.Observer
	if cfg.ObserveAddr != "" {
		observer = observe.New()
		handlers = append(handlers, observer.Handle)
	}

	var session *orchestration.Session
	reminders := builtin.NewReminders(func(reminder builtin.Reminder) {
		if err := session.SubmitText("تذكير: " + reminder.Text); err != nil {
			logger.Warn("failed to deliver reminder", "reminder_id", reminder.ID, "error", err)
		}
	})
	defer reminders.Stop()

	opts := []orchestration.SessionOption{
		orchestration.WithInstructions(cfg.Instructions),
		orchestration.WithGreeting(cfg.Greeting),
		orchestration.WithModelConfig(cfg.Model, cfg.Voice, cfg.Temperature),
		orchestration.WithEncodings(input, output),
		orchestration.WithToolTimeout(cfg.ToolTimeout),
		orchestration.WithBargeIn(cfg.BargeIn),
		orchestration.WithTools(builtin.Weather(), builtin.Clock(), reminders.Tool()),
		orchestration.WithEventHandler(func(event events.Event) {
			for _, handle := range handlers {
				handle(event)
			}
		}),
	}

	if cfg.DeepgramAPIKey != "" {
		vad, err := deepgram.NewVAD(
			deepgram.WithAPIKey(cfg.DeepgramAPIKey),
			deepgram.WithEncoding(input),
			deepgram.WithLanguage(cfg.Language),
		)
		if err != nil {
			return fmt.Errorf("failed to create voice activity detector: %w", err)
		}
		opts = append(opts, orchestration.WithVAD(vad))
	} else {
		logger.Warn("DEEPGRAM_API_KEY not set, only typed input will end user turns")
	}

	room := miniaudio.NewRoom(miniaudio.WithInputEncoding(input), miniaudio.WithOutputEncoding(output))
	session, err = orchestration.NewSession(room, model, opts...)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	if observer != nil {
		observer.Bind(session)
		go func() {
			if err := observer.Listen(cfg.ObserveAddr); err != nil {
				logger.Error("observer stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := observer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("failed to shut down observer", "error", err)
			}
		}()
	}

	result := make(chan error, 1)
	go func() { result <- session.Run(ctx) }()

	if cfg.Console {
		if err := console.Run(ctx, session, sink); err != nil {
			session.Close()
			<-result
			return err
		}
		session.Close()
	}

	err = <-result
	var failed *orchestration.SessionFailedError
	if errors.As(err, &failed) {
		return fmt.Errorf("session %s failed: %w", failed.SessionID, failed.Err)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newModel picks the realtime model and the audio formats it speaks.
func newModel(ctx context.Context, cfg config.Config) (realtime.Model, audio.EncodingInfo, audio.EncodingInfo, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		model, err := openai.NewModel(openai.WithAPIKey(cfg.OpenAIAPIKey))
		if err != nil {
			return nil, audio.EncodingInfo{}, audio.EncodingInfo{}, fmt.Errorf("failed to create openai model: %w", err)
		}
		encoding := audio.EncodingInfo{SampleRate: openai.SampleRate, Format: audio.EncodingLinear16}
		return model, encoding, encoding, nil
	default:
		model, err := gemini.NewModel(ctx, gemini.WithAPIKey(cfg.GoogleAPIKey))
		if err != nil {
			return nil, audio.EncodingInfo{}, audio.EncodingInfo{}, fmt.Errorf("failed to create gemini model: %w", err)
		}
		output := audio.EncodingInfo{SampleRate: gemini.OutputSampleRate, Format: audio.EncodingLinear16}
		return model, audio.GetDefaultEncodingInfo(), output, nil
	}
}
