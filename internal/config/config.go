package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
)

const (
	DefaultGeminiModel = "gemini-2.0-flash-exp"
	DefaultGeminiVoice = "Puck"
	DefaultOpenAIModel = "gpt-4o-realtime-preview"
	DefaultOpenAIVoice = "alloy"
	DefaultTemperature = 0.8
	DefaultLanguage    = "multi"
	DefaultToolTimeout = 10 * time.Second
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Provider Provider

	GoogleAPIKey   string
	OpenAIAPIKey   string
	DeepgramAPIKey string

	Model       string
	Voice       string
	Temperature float64
	Language    string

	Instructions string
	Greeting     string
	ToolTimeout  time.Duration
	BargeIn      bool

	// ObserveAddr enables the read-only HTTP observer when set.
	ObserveAddr string
	Console     bool
}

// APIKey returns the key of the configured provider.
func (c Config) APIKey() string {
	if c.Provider == ProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.GoogleAPIKey
}

// Load reads .env when present, then the environment and the command line.
// Flags take precedence over the environment.
func Load(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	return Parse(args, os.LookupEnv)
}

func Parse(args []string, lookup func(string) (string, bool)) (Config, error) {
	getEnv := func(key, defaultValue string) string {
		if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
		return defaultValue
	}

	var cfg Config
	var provider, temperature, toolTimeout string
	flags := flag.NewFlagSet("shams", flag.ContinueOnError)
	flags.StringVar(&provider, "provider", getEnv("SHAMS_PROVIDER", string(ProviderGemini)), "Realtime model provider (gemini or openai)")
	flags.StringVar(&cfg.Model, "model", getEnv("SHAMS_MODEL", ""), "Realtime model id")
	flags.StringVar(&cfg.Voice, "voice", getEnv("SHAMS_VOICE", ""), "Voice of the agent")
	flags.StringVar(&temperature, "temperature", getEnv("SHAMS_TEMPERATURE", strconv.FormatFloat(DefaultTemperature, 'f', -1, 64)), "Sampling temperature between 0 and 2")
	flags.StringVar(&cfg.Language, "language", getEnv("SHAMS_LANGUAGE", DefaultLanguage), "Speech recognition language for turn detection")
	flags.StringVar(&toolTimeout, "tool-timeout", getEnv("SHAMS_TOOL_TIMEOUT", DefaultToolTimeout.String()), "Default tool timeout")
	flags.BoolVar(&cfg.BargeIn, "barge-in", getEnv("SHAMS_BARGE_IN", "true") == "true", "Let the user interrupt the agent by speaking")
	flags.StringVar(&cfg.ObserveAddr, "observe", getEnv("SHAMS_OBSERVE_ADDR", ""), "Address of the HTTP observer, e.g. :8080")
	flags.BoolVar(&cfg.Console, "console", getEnv("SHAMS_CONSOLE", "true") == "true", "Show the terminal transcript viewer")
	if err := flags.Parse(args); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	cfg.Provider = Provider(strings.ToLower(provider))
	cfg.GoogleAPIKey = getEnv("GOOGLE_API_KEY", "")
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", "")
	cfg.DeepgramAPIKey = getEnv("DEEPGRAM_API_KEY", "")
	cfg.Instructions = getEnv("SHAMS_INSTRUCTIONS", DefaultInstructions)
	cfg.Greeting = getEnv("SHAMS_GREETING", DefaultGreeting)

	var err error
	if cfg.Temperature, err = strconv.ParseFloat(temperature, 64); err != nil {
		return Config{}, fmt.Errorf("%w: temperature %q is not a number", ErrInvalidConfig, temperature)
	}
	if cfg.ToolTimeout, err = time.ParseDuration(toolTimeout); err != nil {
		return Config{}, fmt.Errorf("%w: tool timeout %q is not a duration", ErrInvalidConfig, toolTimeout)
	}

	switch cfg.Provider {
	case ProviderGemini:
		cfg.Model = orDefault(cfg.Model, DefaultGeminiModel)
		cfg.Voice = orDefault(cfg.Voice, DefaultGeminiVoice)
	case ProviderOpenAI:
		cfg.Model = orDefault(cfg.Model, DefaultOpenAIModel)
		cfg.Voice = orDefault(cfg.Voice, DefaultOpenAIVoice)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Provider {
	case ProviderGemini:
		if c.GoogleAPIKey == "" {
			return fmt.Errorf("%w: GOOGLE_API_KEY is required for the gemini provider", ErrInvalidConfig)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is required for the openai provider", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature must be between 0 and 2, got %v", ErrInvalidConfig, c.Temperature)
	}
	if c.ToolTimeout <= 0 {
		return fmt.Errorf("%w: tool timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

func orDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
