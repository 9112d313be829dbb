package transcribe

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mgpai22/vaani/internal/logging"
)

// WordTiming marks when a single spoken word occurs in the recording.
// Times are milliseconds from the start of the audio.
type WordTiming struct {
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
}

// job status as reported by the provider
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Job is a transcription job as observed through polling. Text and Words
// are set only when completed, Error only when the job failed.
type Job struct {
	ID            string       `json:"id"`
	Status        Status       `json:"status"`
	Text          string       `json:"text,omitempty"`
	Words         []WordTiming `json:"words,omitempty"`
	Error         string       `json:"error,omitempty"`
	LanguageCode  string       `json:"language_code,omitempty"`
	AudioDuration float64      `json:"audio_duration,omitempty"`
}

// Terminal reports whether the job can no longer change.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusError
}

// Transcriber turns a local recording into a completed Job. Upload returns
// an opaque reference that Transcribe accepts.
type Transcriber interface {
	Upload(ctx context.Context, audioPath string) (string, error)
	Transcribe(ctx context.Context, audioRef string) (*Job, error)
}

// transcription service provider
type Provider string

const (
	ProviderAssemblyAI Provider = "assemblyai"
	ProviderOpenAI     Provider = "openai"
)

// ParseProvider maps a user supplied name onto a Provider.
func ParseProvider(name string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(name))) {
	case "", ProviderAssemblyAI:
		return ProviderAssemblyAI, nil
	case ProviderOpenAI:
		return ProviderOpenAI, nil
	default:
		return "", fmt.Errorf("unsupported transcription provider: %s", name)
	}
}

// transcription options
type Options struct {
	BaseURL    string // provider endpoint, empty for the default
	Model      string
	Language   string // expected language; empty enables detection
	Poll       PollConfig
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// creates transcriber based on provider
func Factory(
	ctx context.Context,
	provider Provider,
	apiKey string,
	opts Options,
) (Transcriber, error) {
	switch provider {
	case ProviderAssemblyAI:
		return NewAssemblyAITranscriber(AssemblyAIConfig{
			APIKey:       apiKey,
			BaseURL:      opts.BaseURL,
			LanguageCode: opts.Language,
			HTTPClient:   opts.HTTPClient,
		}, opts.Poll, opts.Logger)
	case ProviderOpenAI:
		return NewOpenAITranscriber(ctx, apiKey, opts)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}
