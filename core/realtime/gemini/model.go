package gemini

import (
	"context"
	"fmt"

	"github.com/koscakluka/ema-realtime/core/audio"
	"github.com/koscakluka/ema-realtime/core/realtime"
	"github.com/koscakluka/ema-realtime/core/tools"
	"github.com/koscakluka/ema-realtime/internal/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/genai"
)

const (
	DefaultModel = "gemini-2.0-flash-exp"
	DefaultVoice = "Puck"

	// OutputSampleRate is the rate of the 16 bit PCM audio Gemini Live speaks.
	OutputSampleRate = 24000
)

// liveSession is the part of *genai.Session the adapter uses.
type liveSession interface {
	SendClientContent(input genai.LiveClientContentInput) error
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	SendToolResponse(input genai.LiveToolResponseInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

type connectFunc func(ctx context.Context, model string, config *genai.LiveConnectConfig) (liveSession, error)

type Option func(*options)

type options struct {
	apiKey string
}

func WithAPIKey(apiKey string) Option {
	return func(o *options) {
		o.apiKey = apiKey
	}
}

// Model connects to the Gemini Live API.
type Model struct {
	connect connectFunc
}

func NewModel(ctx context.Context, opts ...Option) (*Model, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.apiKey == "" {
		return nil, fmt.Errorf("google api key not found")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  o.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Model{
		connect: func(ctx context.Context, model string, config *genai.LiveConnectConfig) (liveSession, error) {
			session, err := client.Live.Connect(ctx, model, config)
			if err != nil {
				return nil, err
			}
			return session, nil
		},
	}, nil
}

func (m *Model) Dial(ctx context.Context, setup realtime.Setup) (realtime.Stream, error) {
	ctx, span := tracer.Start(ctx, "dial gemini live")
	defer span.End()

	modelID := setup.ModelID
	if modelID == "" {
		modelID = DefaultModel
	}
	span.SetAttributes(attribute.String("model.id", modelID))

	input := setup.InputEncoding
	if input.IsZero() {
		input = audio.GetDefaultEncodingInfo()
	}
	if input.Format != audio.EncodingLinear16 {
		return nil, fmt.Errorf("unsupported input encoding %q", input.Format.Name())
	}
	if output := setup.OutputEncoding; !output.IsZero() &&
		(output.Format != audio.EncodingLinear16 || output.SampleRate != OutputSampleRate) {
		return nil, fmt.Errorf("only %d Hz linear16 output is supported", OutputSampleRate)
	}

	session, err := m.connect(ctx, modelID, connectConfig(setup))
	if err != nil {
		err = fmt.Errorf("failed to connect to gemini live: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return newStream(session, input.MIMEType()), nil
}

func connectConfig(setup realtime.Setup) *genai.LiveConnectConfig {
	voice := setup.VoiceID
	if voice == "" {
		voice = DefaultVoice
	}

	config := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		Temperature:        utils.Ptr(float32(setup.Temperature)),
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if setup.Instructions != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: setup.Instructions}}}
	}
	if len(setup.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: functionDeclarations(setup.Tools)}}
	}
	return config
}

func functionDeclarations(manifest []tools.Spec) []*genai.FunctionDeclaration {
	declarations := make([]*genai.FunctionDeclaration, 0, len(manifest))
	for _, spec := range manifest {
		declaration := &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
		}
		if len(spec.Parameters) > 0 {
			schema := &genai.Schema{
				Type:       genai.TypeObject,
				Properties: map[string]*genai.Schema{},
			}
			for _, parameter := range spec.Parameters {
				schema.Properties[parameter.Name] = &genai.Schema{
					Type:        schemaType(parameter.Type),
					Description: parameter.Description,
				}
				schema.PropertyOrdering = append(schema.PropertyOrdering, parameter.Name)
				if parameter.Required {
					schema.Required = append(schema.Required, parameter.Name)
				}
			}
			declaration.Parameters = schema
		}
		declarations = append(declarations, declaration)
	}
	return declarations
}

func schemaType(paramType tools.ParamType) genai.Type {
	switch paramType {
	case tools.TypeInteger:
		return genai.TypeInteger
	case tools.TypeNumber:
		return genai.TypeNumber
	case tools.TypeBoolean:
		return genai.TypeBoolean
	}
	return genai.TypeString
}
