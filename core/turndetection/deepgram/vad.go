package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/turndetection"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultListenURL = "wss://api.deepgram.com/v1/listen"

var ErrNotStreaming = errors.New("deepgram stream is not open")

type Option func(*VAD)

func WithAPIKey(apiKey string) Option {
	return func(v *VAD) {
		v.apiKey = apiKey
	}
}

// WithURL overrides the listen endpoint.
func WithURL(listenURL string) Option {
	return func(v *VAD) {
		v.listenURL = listenURL
	}
}

func WithEncoding(encoding audio.EncodingInfo) Option {
	return func(v *VAD) {
		v.encoding = encoding
	}
}

func WithLanguage(language string) Option {
	return func(v *VAD) {
		v.language = language
	}
}

func WithModel(model string) Option {
	return func(v *VAD) {
		v.model = model
	}
}

// VAD detects speech boundaries with Deepgram's streaming voice activity
// events. Recognised text is attached to the observations so the detector can
// hand the utterance to the model as text as well as audio.
type VAD struct {
	apiKey    string
	listenURL string
	encoding  audio.EncodingInfo
	language  string
	model     string

	connMu    sync.Mutex
	conn      *websocket.Conn
	lastMsgTs time.Time

	inSegment bool
}

func NewVAD(opts ...Option) (*VAD, error) {
	v := &VAD{
		listenURL: defaultListenURL,
		encoding:  audio.GetDefaultEncodingInfo(),
		language:  "en-US",
		model:     "nova-3",
	}
	for _, opt := range opts {
		opt(v)
	}

	if v.apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not found")
	}
	if _, err := convertEncoding(v.encoding); err != nil {
		return nil, fmt.Errorf("invalid encoding: %w", err)
	}
	return v, nil
}

func (v *VAD) Stream(ctx context.Context, onActivity func(turndetection.Activity)) error {
	ctx, span := tracer.Start(ctx, "stream voice activity")
	defer span.End()
	span.SetAttributes(attribute.String("deepgram.model", v.model))

	conn, err := v.connect(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to open websocket: %w", err)
	}
	v.setConn(conn)
	v.inSegment = false
	defer func() {
		v.setConn(nil)
		conn.Close()
	}()

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go v.generateSilence(streamCtx)
	go func() {
		<-streamCtx.Done()
		v.closeStream()
		conn.Close()
	}()

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			err = fmt.Errorf("failed to read deepgram websocket message: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		if msgType != websocket.BinaryMessage {
			v.processMessage(msg, onActivity)
		}
	}
}

func (v *VAD) connect(ctx context.Context) (*websocket.Conn, error) {
	encoding, err := convertEncoding(v.encoding)
	if err != nil {
		return nil, fmt.Errorf("invalid encoding: %w", err)
	}

	listenURL, err := url.Parse(v.listenURL)
	if err != nil {
		return nil, fmt.Errorf("invalid listen url: %w", err)
	}
	queryParams := listenURL.Query()
	queryParams.Set("encoding", encoding.Format)
	queryParams.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", v.model)
	queryParams.Set("language", v.language)
	queryParams.Set("smart_format", "true")
	queryParams.Set("utterance_end_ms", "1000")
	queryParams.Set("interim_results", "true")
	queryParams.Set("endpointing", "300")
	queryParams.Set("vad_events", "true")
	listenURL.RawQuery = queryParams.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, listenURL.String(),
		http.Header{"Authorization": {"Token " + v.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}

func (v *VAD) setConn(conn *websocket.Conn) {
	v.connMu.Lock()
	defer v.connMu.Unlock()
	v.conn = conn
	v.lastMsgTs = time.Now()
}

func (v *VAD) SendAudio(frame []byte) error {
	v.connMu.Lock()
	defer v.connMu.Unlock()

	if v.conn == nil {
		return ErrNotStreaming
	}
	v.lastMsgTs = time.Now()
	if err := v.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

func (v *VAD) closeStream() {
	v.connMu.Lock()
	defer v.connMu.Unlock()

	if v.conn == nil {
		return
	}
	if err := v.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		logger.Debug("failed to close deepgram stream", "error", err)
	}
}

func (v *VAD) processMessage(msg []byte, onActivity func(turndetection.Activity)) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("failed to unmarshal deepgram message", "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("failed to unmarshal deepgram message", "error", err)
			return
		}
		transcript := ""
		if len(msgResp.Channel.Alternatives) > 0 {
			transcript = strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
		}

		switch {
		case msgResp.IsFinal && transcript != "":
			v.inSegment = true
			onActivity(turndetection.Activity{Speaking: true, At: time.Now(), Transcript: transcript})
		case !msgResp.IsFinal && transcript != "" && !v.inSegment:
			v.inSegment = true
			onActivity(turndetection.Activity{Speaking: true, At: time.Now()})
		}
		if msgResp.IsFinal && msgResp.SpeechFinal && v.inSegment {
			v.inSegment = false
			onActivity(turndetection.Activity{Speaking: false, At: time.Now()})
		}

	case api.TypeUtteranceEndResponse:
		if v.inSegment {
			v.inSegment = false
			onActivity(turndetection.Activity{Speaking: false, At: time.Now()})
		}

	case api.TypeSpeechStartedResponse:
		if !v.inSegment {
			v.inSegment = true
			onActivity(turndetection.Activity{Speaking: true, At: time.Now()})
		}
	}
}
