package openai

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-realtime/core/tools"
)

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Modalities              []string             `json:"modalities"`
	Instructions            string               `json:"instructions,omitempty"`
	Voice                   string               `json:"voice,omitempty"`
	InputAudioFormat        string               `json:"input_audio_format"`
	OutputAudioFormat       string               `json:"output_audio_format"`
	InputAudioTranscription *transcriptionConfig `json:"input_audio_transcription,omitempty"`
	// TurnDetection is always null: speech boundaries come from the session.
	TurnDetection *struct{}      `json:"turn_detection"`
	Tools         []functionTool `json:"tools"`
	ToolChoice    string         `json:"tool_choice"`
	Temperature   float64        `json:"temperature"`
}

type transcriptionConfig struct {
	Model string `json:"model"`
}

type functionTool struct {
	Type            string             `json:"type"`
	Name            string             `json:"name"`
	Description     string             `json:"description"`
	ParameterSchema *jsonschema.Schema `json:"parameters"`
}

func functionTools(manifest []tools.Spec) ([]functionTool, error) {
	wireTools := make([]functionTool, 0, len(manifest))
	for _, spec := range manifest {
		wireTool := functionTool{Type: "function"}
		if err := copier.Copy(&wireTool, &spec); err != nil {
			return nil, fmt.Errorf("failed to convert tool %q: %w", spec.Name, err)
		}
		wireTool.ParameterSchema = spec.JSONSchema()
		wireTools = append(wireTools, wireTool)
	}
	return wireTools, nil
}

type audioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type simpleEvent struct {
	Type string `json:"type"`
}

type responseCreate struct {
	Type     string          `json:"type"`
	Response *responseConfig `json:"response,omitempty"`
}

type responseConfig struct {
	Instructions string `json:"instructions,omitempty"`
}

type itemCreate struct {
	Type string `json:"type"`
	Item item   `json:"item"`
}

type item struct {
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	Content []itemContent `json:"content,omitempty"`
	CallID  string        `json:"call_id,omitempty"`
	Output  string        `json:"output,omitempty"`
}

type itemContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// serverEvent covers the fields of every server event the adapter reads.
type serverEvent struct {
	Type       string `json:"type"`
	ResponseID string `json:"response_id"`
	Delta      string `json:"delta"`

	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`

	Response *struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"response"`

	Error *apiError `json:"error"`
}

type apiError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	EventID string `json:"event_id"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func decodeServerEvent(data []byte) (serverEvent, error) {
	var event serverEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return serverEvent{}, fmt.Errorf("failed to unmarshal server event: %w", err)
	}
	return event, nil
}
