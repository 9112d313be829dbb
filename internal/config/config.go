package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/mgpai22/vaani/internal/logging"
	"github.com/mgpai22/vaani/internal/segment"
	"github.com/mgpai22/vaani/internal/summarize"
	"github.com/mgpai22/vaani/internal/transcribe"
)

// Config holds all configuration for vaani. Command line flags override
// the values loaded here.
type Config struct {
	// Transcription
	TranscribeProvider string `envconfig:"VAANI_TRANSCRIBE_PROVIDER" default:"assemblyai"` // assemblyai, openai
	TranscribeBaseURL  string `envconfig:"VAANI_TRANSCRIBE_BASE_URL" default:""`           // empty uses the provider default
	TranscribeModel    string `envconfig:"VAANI_TRANSCRIBE_MODEL" default:""`              // openai only
	TranscribeLanguage string `envconfig:"VAANI_TRANSCRIBE_LANGUAGE" default:""`           // empty enables detection
	AssemblyAIAPIKey   string `envconfig:"ASSEMBLYAI_API_KEY"`

	// Polling and transport retry
	PollInterval        time.Duration `envconfig:"VAANI_POLL_INTERVAL" default:"3s"`
	PollTimeout         time.Duration `envconfig:"VAANI_POLL_TIMEOUT" default:"30m"`
	PollMaxAttempts     int           `envconfig:"VAANI_POLL_MAX_ATTEMPTS" default:"0"` // 0 = bounded by timeout only
	RetryMaxAttempts    uint          `envconfig:"VAANI_RETRY_MAX_ATTEMPTS" default:"5"`
	RetryInitialBackoff time.Duration `envconfig:"VAANI_RETRY_INITIAL_BACKOFF" default:"500ms"`
	RetryMaxBackoff     time.Duration `envconfig:"VAANI_RETRY_MAX_BACKOFF" default:"10s"`

	// Summaries
	SummarizeProvider string `envconfig:"VAANI_SUMMARIZE_PROVIDER" default:"gemini"` // gemini, openai, anthropic
	SummarizeModel    string `envconfig:"VAANI_SUMMARIZE_MODEL" default:""`
	SummarizeBaseURL  string `envconfig:"VAANI_SUMMARIZE_BASE_URL" default:""`
	GeminiAPIKey      string `envconfig:"GEMINI_API_KEY"`
	OpenAIAPIKey      string `envconfig:"OPENAI_API_KEY"`
	AnthropicAPIKey   string `envconfig:"ANTHROPIC_API_KEY"`

	// Segmentation
	SegmentThreshold   time.Duration `envconfig:"VAANI_SEGMENT_THRESHOLD" default:"30s"`
	SegmentMode        string        `envconfig:"VAANI_SEGMENT_MODE" default:"truncated"` // truncated, strict
	SegmentConcurrency int           `envconfig:"VAANI_SEGMENT_CONCURRENCY" default:"4"`

	// Media tools; empty paths are looked up on PATH, then downloaded
	FFmpegPath  string `envconfig:"VAANI_FFMPEG_PATH" default:""`
	FFprobePath string `envconfig:"VAANI_FFPROBE_PATH" default:""`

	// Server
	Port         string        `envconfig:"PORT" default:"8080"`
	MaxUploadMB  int64         `envconfig:"VAANI_MAX_UPLOAD_MB" default:"200"`
	WorkDir      string        `envconfig:"VAANI_WORK_DIR" default:""` // empty uses the system temp dir
	RunRetention time.Duration `envconfig:"VAANI_RUN_RETENTION" default:"1h"`

	// Observability
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"` // debug, info, warn, error
}

// Load reads configuration from environment variables.
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that providers and modes are known and that the selected
// providers have credentials.
func (c *Config) Validate() error {
	tp, err := transcribe.ParseProvider(c.TranscribeProvider)
	if err != nil {
		return err
	}
	if c.TranscribeAPIKey() == "" {
		return fmt.Errorf("%s API key is required: set %s", tp, transcribeKeyEnv(tp))
	}

	sp, err := summarize.ParseProvider(c.SummarizeProvider)
	if err != nil {
		return err
	}
	if c.SummarizeAPIKey() == "" {
		return fmt.Errorf("%s API key is required: set %s", sp, summarizeKeyEnv(sp))
	}

	if _, err := segment.ParseMode(c.SegmentMode); err != nil {
		return err
	}
	if c.SegmentThreshold < time.Second {
		return fmt.Errorf("segment threshold must be at least 1s, got %v", c.SegmentThreshold)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	return nil
}

func transcribeKeyEnv(p transcribe.Provider) string {
	if p == transcribe.ProviderOpenAI {
		return "OPENAI_API_KEY"
	}
	return "ASSEMBLYAI_API_KEY"
}

func summarizeKeyEnv(p summarize.Provider) string {
	switch p {
	case summarize.ProviderOpenAI:
		return "OPENAI_API_KEY"
	case summarize.ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return "GEMINI_API_KEY"
	}
}

// TranscribeAPIKey returns the credential for the selected transcription
// provider.
func (c *Config) TranscribeAPIKey() string {
	p, _ := transcribe.ParseProvider(c.TranscribeProvider)
	if p == transcribe.ProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.AssemblyAIAPIKey
}

func (c *Config) SummarizeAPIKey() string {
	p, _ := summarize.ParseProvider(c.SummarizeProvider)
	switch p {
	case summarize.ProviderOpenAI:
		return c.OpenAIAPIKey
	case summarize.ProviderAnthropic:
		return c.AnthropicAPIKey
	default:
		return c.GeminiAPIKey
	}
}

func (c *Config) PollConfig() transcribe.PollConfig {
	return transcribe.PollConfig{
		Interval: c.PollInterval,
		MaxWait:  c.PollTimeout,
		MaxPolls: c.PollMaxAttempts,
		Retry: transcribe.RetryConfig{
			InitialInterval:     c.RetryInitialBackoff,
			MaxInterval:         c.RetryMaxBackoff,
			Multiplier:          2,
			RandomizationFactor: 0.5,
			MaxTries:            c.RetryMaxAttempts,
		},
	}
}

func (c *Config) TranscribeOptions(logger *logging.Logger) transcribe.Options {
	return transcribe.Options{
		BaseURL:  c.TranscribeBaseURL,
		Model:    c.TranscribeModel,
		Language: c.TranscribeLanguage,
		Poll:     c.PollConfig(),
		Logger:   logger,
	}
}

func (c *Config) SummarizeOptions() summarize.Options {
	return summarize.Options{
		Model:   c.SummarizeModel,
		BaseURL: c.SummarizeBaseURL,
	}
}

func (c *Config) SegmentOptions() (segment.Options, error) {
	mode, err := segment.ParseMode(c.SegmentMode)
	if err != nil {
		return segment.Options{}, err
	}
	return segment.Options{
		Threshold:   c.SegmentThreshold,
		Mode:        mode,
		Concurrency: c.SegmentConcurrency,
	}, nil
}
