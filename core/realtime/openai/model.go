package openai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/realtime"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultURL   = "wss://api.openai.com/v1/realtime"
	DefaultModel = "gpt-4o-realtime-preview"
	DefaultVoice = "alloy"

	// SampleRate is the only rate the pcm16 format accepts.
	SampleRate = 24000
)

type Option func(*Model)

func WithAPIKey(apiKey string) Option {
	return func(m *Model) {
		m.apiKey = apiKey
	}
}

// WithURL overrides the realtime endpoint.
func WithURL(endpoint string) Option {
	return func(m *Model) {
		m.endpoint = endpoint
	}
}

func WithHandshakeTimeout(timeout time.Duration) Option {
	return func(m *Model) {
		m.dialer.HandshakeTimeout = timeout
	}
}

// Model connects to the OpenAI Realtime API over a websocket.
type Model struct {
	apiKey   string
	endpoint string
	dialer   websocket.Dialer
}

func NewModel(opts ...Option) (*Model, error) {
	m := &Model{
		endpoint: defaultURL,
		dialer:   websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.apiKey == "" {
		return nil, fmt.Errorf("openai api key not found")
	}
	return m, nil
}

func (m *Model) Dial(ctx context.Context, setup realtime.Setup) (realtime.Stream, error) {
	ctx, span := tracer.Start(ctx, "dial openai realtime")
	defer span.End()

	modelID := setup.ModelID
	if modelID == "" {
		modelID = DefaultModel
	}
	span.SetAttributes(attribute.String("model.id", modelID))

	if err := checkEncoding(setup.InputEncoding); err != nil {
		return nil, fmt.Errorf("invalid input encoding: %w", err)
	}
	if err := checkEncoding(setup.OutputEncoding); err != nil {
		return nil, fmt.Errorf("invalid output encoding: %w", err)
	}

	endpoint, err := url.Parse(m.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid realtime url: %w", err)
	}
	query := endpoint.Query()
	query.Set("model", modelID)
	endpoint.RawQuery = query.Encode()

	conn, _, err := m.dialer.DialContext(ctx, endpoint.String(), http.Header{
		"Authorization": {"Bearer " + m.apiKey},
		"OpenAI-Beta":   {"realtime=v1"},
	})
	if err != nil {
		err = fmt.Errorf("failed to connect to realtime api: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s := newStream(conn)
	if err := s.configure(setup); err != nil {
		s.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return s, nil
}

func checkEncoding(encoding audio.EncodingInfo) error {
	if encoding.IsZero() {
		return nil
	}
	if encoding.Format != audio.EncodingLinear16 || encoding.SampleRate != SampleRate {
		return fmt.Errorf("only %d Hz linear16 audio is supported, got %d Hz %s",
			SampleRate, encoding.SampleRate, encoding.Format.Name())
	}
	return nil
}
