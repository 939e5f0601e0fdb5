package tools

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseArgsValidation(t *testing.T) {
	tool := echoTool("set_reminder",
		Required("reminder", TypeString, "what to remind"),
		Required("minutes", TypeInteger, "minutes from now"),
		Optional("urgent", TypeBoolean, ""),
		Optional("volume", TypeNumber, ""),
	)

	testCases := []struct {
		name          string
		raw           string
		expectedField string
		expectErr     bool
	}{
		{name: "valid", raw: `{"reminder":"tea","minutes":5}`},
		{name: "valid with optionals", raw: `{"reminder":"tea","minutes":5.0,"urgent":true,"volume":0.5}`},
		{name: "missing required", raw: `{"minutes":5}`, expectErr: true, expectedField: "reminder"},
		{name: "null required", raw: `{"reminder":null,"minutes":5}`, expectErr: true, expectedField: "reminder"},
		{name: "wrong type", raw: `{"reminder":"tea","minutes":"five"}`, expectErr: true, expectedField: "minutes"},
		{name: "fractional integer", raw: `{"reminder":"tea","minutes":1.5}`, expectErr: true, expectedField: "minutes"},
		{name: "unexpected argument", raw: `{"reminder":"tea","minutes":5,"zeta":1,"alpha":2}`, expectErr: true, expectedField: "alpha"},
		{name: "declared before unexpected", raw: `{"extra":1}`, expectErr: true, expectedField: "reminder"},
		{name: "not an object", raw: `[1,2]`, expectErr: true},
		{name: "empty payload", raw: ``, expectErr: true, expectedField: "reminder"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			args, err := parseArgs(tool, json.RawMessage(testCase.raw))
			if !testCase.expectErr {
				if err != nil {
					t.Fatalf("expected valid arguments, got %v", err)
				}
				if args.String("reminder") != "tea" || args.Int("minutes") != 5 {
					t.Fatalf("unexpected parsed arguments: %#v", args)
				}
				return
			}

			var invalidErr *InvalidArgumentsError
			if !errors.As(err, &invalidErr) {
				t.Fatalf("expected InvalidArgumentsError, got %v", err)
			}
			if invalidErr.Field != testCase.expectedField {
				t.Fatalf("expected field %q, got %q", testCase.expectedField, invalidErr.Field)
			}
		})
	}
}

func TestParseArgsWithoutParameters(t *testing.T) {
	tool := echoTool("get_time")

	for _, raw := range []string{``, `null`, `{}`} {
		if _, err := parseArgs(tool, json.RawMessage(raw)); err != nil {
			t.Fatalf("expected %q to be accepted, got %v", raw, err)
		}
	}
}

func TestSpecJSONSchema(t *testing.T) {
	spec := echoTool("get_weather",
		Required("location", TypeString, "The city"),
		Optional("units", TypeString, "metric or imperial"),
	).Spec()

	encoded, err := json.Marshal(spec.JSONSchema())
	if err != nil {
		t.Fatalf("failed to marshal schema: %v", err)
	}

	var decoded struct {
		Type                 string                     `json:"type"`
		Required             []string                   `json:"required"`
		AdditionalProperties bool                       `json:"additionalProperties"`
		Properties           map[string]json.RawMessage `json:"properties"`
	}
	decoded.AdditionalProperties = true
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("failed to decode schema: %v", err)
	}
	if decoded.Type != "object" {
		t.Fatalf("expected object schema, got %q", decoded.Type)
	}
	if len(decoded.Required) != 1 || decoded.Required[0] != "location" {
		t.Fatalf("expected only location to be required, got %v", decoded.Required)
	}
	if decoded.AdditionalProperties {
		t.Fatalf("expected additional properties to be rejected")
	}
	if len(decoded.Properties) != 2 {
		t.Fatalf("expected two properties, got %d", len(decoded.Properties))
	}
	if strings.Index(string(encoded), `"location"`) > strings.Index(string(encoded), `"units"`) {
		t.Fatalf("expected properties in declaration order: %s", encoded)
	}
}
