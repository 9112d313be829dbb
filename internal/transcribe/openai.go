package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/mgpai22/vaani/internal/logging"
)

// implements Transcriber using the OpenAI Audio API with word timestamps.
// The API is synchronous, so Upload only validates the local file and the
// returned reference is the path itself.
type OpenAITranscriber struct {
	client  openai.Client
	model   string
	options Options
	logger  *logging.Logger
}

// word from the verbose_json response
type whisperWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// verbose_json response structure from Whisper
type whisperVerboseResponse struct {
	Text     string        `json:"text"`
	Words    []whisperWord `json:"words"`
	Language string        `json:"language"`
	Duration float64       `json:"duration"`
}

func NewOpenAITranscriber(
	ctx context.Context,
	apiKey string,
	opts Options,
) (*OpenAITranscriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	client := openai.NewClient(reqOpts...)

	model := opts.Model
	if model == "" {
		model = "whisper-1"
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	return &OpenAITranscriber{
		client:  client,
		model:   model,
		options: opts,
		logger:  logger,
	}, nil
}

func (t *OpenAITranscriber) Upload(ctx context.Context, audioPath string) (string, error) {
	if _, err := os.Stat(audioPath); os.IsNotExist(err) {
		return "", fmt.Errorf("audio file not found: %s", audioPath)
	}
	return audioPath, nil
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, audioRef string) (*Job, error) {
	file, err := os.Open(audioRef)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	params := openai.AudioTranscriptionNewParams{
		File:                   file,
		Model:                  openai.AudioModel(t.model),
		ResponseFormat:         openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"word"},
	}

	if t.options.Language != "" {
		params.Language = openai.String(t.options.Language)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// the synchronous API has no job status; a failed call is the
		// equivalent of a job ending in error
		return nil, &FailureError{Message: err.Error()}
	}

	job, err := parseVerboseJSONResponse(resp.RawJSON())
	if err != nil {
		return nil, &FailureError{Message: err.Error()}
	}

	t.logger.Infow("Transcription completed",
		"job_id", job.ID,
		"words", len(job.Words),
		"language", job.LanguageCode,
	)

	return job, nil
}

// converts a verbose_json body into a completed Job with word timings
func parseVerboseJSONResponse(rawJSON string) (*Job, error) {
	if rawJSON == "" {
		return nil, fmt.Errorf("empty response")
	}

	var verboseResp whisperVerboseResponse
	if err := json.Unmarshal([]byte(rawJSON), &verboseResp); err != nil {
		return nil, fmt.Errorf("failed to parse verbose_json response: %w", err)
	}

	if verboseResp.Text == "" && len(verboseResp.Words) == 0 {
		return nil, fmt.Errorf("no words or text in response")
	}

	words := make([]WordTiming, 0, len(verboseResp.Words))
	for _, w := range verboseResp.Words {
		text := strings.TrimSpace(w.Word)
		if text == "" {
			continue
		}
		words = append(words, WordTiming{
			Start: secondsToMillis(w.Start),
			End:   secondsToMillis(w.End),
			Text:  text,
		})
	}

	return &Job{
		ID:            uuid.NewString(),
		Status:        StatusCompleted,
		Text:          strings.TrimSpace(verboseResp.Text),
		Words:         words,
		LanguageCode:  verboseResp.Language,
		AudioDuration: verboseResp.Duration,
	}, nil
}

func secondsToMillis(s float64) int64 {
	return int64(math.Round(s * 1000))
}
