package config

import (
	"errors"
	"testing"
	"time"
)

func env(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil, env(map[string]string{"GOOGLE_API_KEY": "g-key"}))
	if err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}

	if cfg.Provider != ProviderGemini || cfg.Model != DefaultGeminiModel || cfg.Voice != DefaultGeminiVoice {
		t.Fatalf("unexpected model defaults %+v", cfg)
	}
	if cfg.Temperature != 0.8 || cfg.ToolTimeout != 10*time.Second || cfg.Language != DefaultLanguage {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Instructions != DefaultInstructions || cfg.Greeting != DefaultGreeting {
		t.Fatalf("expected the default persona")
	}
	if cfg.APIKey() != "g-key" || !cfg.Console || !cfg.BargeIn || cfg.ObserveAddr != "" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestParseFlagsOverrideEnvironment(t *testing.T) {
	cfg, err := Parse(
		[]string{"-provider", "openai", "-temperature", "1.1", "-observe", ":9090", "-console=false", "-barge-in=false"},
		env(map[string]string{"OPENAI_API_KEY": "o-key", "SHAMS_PROVIDER": "gemini", "SHAMS_VOICE": "verse"}),
	)
	if err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}
	if cfg.Provider != ProviderOpenAI || cfg.Model != DefaultOpenAIModel || cfg.Voice != "verse" {
		t.Fatalf("unexpected provider settings %+v", cfg)
	}
	if cfg.Temperature != 1.1 || cfg.ObserveAddr != ":9090" || cfg.Console || cfg.BargeIn {
		t.Fatalf("unexpected flag values %+v", cfg)
	}
	if cfg.APIKey() != "o-key" {
		t.Fatalf("expected the openai key, got %q", cfg.APIKey())
	}
}

func TestParseRejectsInvalidConfig(t *testing.T) {
	testCases := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{name: "missing gemini key", env: map[string]string{}},
		{name: "missing openai key", env: map[string]string{"SHAMS_PROVIDER": "openai", "GOOGLE_API_KEY": "g"}},
		{name: "unknown provider", env: map[string]string{"SHAMS_PROVIDER": "llama", "GOOGLE_API_KEY": "g"}},
		{name: "temperature too high", env: map[string]string{"SHAMS_TEMPERATURE": "2.5", "GOOGLE_API_KEY": "g"}},
		{name: "temperature not a number", env: map[string]string{"SHAMS_TEMPERATURE": "warm", "GOOGLE_API_KEY": "g"}},
		{name: "bad tool timeout", env: map[string]string{"SHAMS_TOOL_TIMEOUT": "soon", "GOOGLE_API_KEY": "g"}},
		{name: "unknown flag", args: []string{"-nope"}, env: map[string]string{"GOOGLE_API_KEY": "g"}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := Parse(testCase.args, env(testCase.env)); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
