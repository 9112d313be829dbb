package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mgpai22/vaani/internal/logging"
)

const (
	DefaultAssemblyAIBaseURL = "https://api.assemblyai.com"

	uploadPath     = "/v2/upload"
	transcriptPath = "/v2/transcript"

	defaultHTTPTimeout = 10 * time.Minute
	maxErrorBody       = 512
)

// AssemblyAIConfig holds credentials and endpoint for the AssemblyAI API.
type AssemblyAIConfig struct {
	APIKey       string
	BaseURL      string
	LanguageCode string // pins the language; empty enables detection
	HTTPClient   *http.Client
}

// AssemblyAIClient talks to the AssemblyAI v2 REST API.
type AssemblyAIClient struct {
	apiKey       string
	baseURL      string
	languageCode string
	http         *http.Client
}

func NewAssemblyAIClient(cfg AssemblyAIConfig) (*AssemblyAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultAssemblyAIBaseURL
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return &AssemblyAIClient{
		apiKey:       cfg.APIKey,
		baseURL:      baseURL,
		languageCode: cfg.LanguageCode,
		http:         hc,
	}, nil
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type submitRequest struct {
	AudioURL          string `json:"audio_url"`
	LanguageDetection bool   `json:"language_detection,omitempty"`
	LanguageCode      string `json:"language_code,omitempty"`
}

// Upload streams the file body to the ingestion endpoint and returns the
// URL the provider stored it under.
func (c *AssemblyAIClient) Upload(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, f)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if info, err := f.Stat(); err == nil {
		req.ContentLength = info.Size()
	}

	var out uploadResponse
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	if out.UploadURL == "" {
		return "", fmt.Errorf("upload failed: response has no upload_url")
	}

	return out.UploadURL, nil
}

// Submit creates a transcript job for audioURL with language detection
// enabled unless the client was configured with a language code.
func (c *AssemblyAIClient) Submit(ctx context.Context, audioURL string) (string, error) {
	body := submitRequest{AudioURL: audioURL, LanguageDetection: true}
	if c.languageCode != "" {
		body = submitRequest{AudioURL: audioURL, LanguageCode: c.languageCode}
	}
	return c.submit(ctx, body)
}

func (c *AssemblyAIClient) submit(ctx context.Context, body submitRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+transcriptPath,
		bytes.NewReader(payload),
	)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var job Job
	if err := c.do(req, &job); err != nil {
		return "", err
	}
	if job.ID == "" {
		return "", fmt.Errorf("submit response has no id")
	}

	return job.ID, nil
}

// Get fetches the current state of a transcript job.
func (c *AssemblyAIClient) Get(ctx context.Context, id string) (*Job, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.baseURL+transcriptPath+"/"+id,
		nil,
	)
	if err != nil {
		return nil, err
	}

	var job Job
	if err := c.do(req, &job); err != nil {
		return nil, err
	}
	if job.ID == "" {
		job.ID = id
	}

	return &job, nil
}

func (c *AssemblyAIClient) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(b)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// implements Transcriber using AssemblyAI upload plus a polled job
type AssemblyAITranscriber struct {
	client *AssemblyAIClient
	poller *Poller
	retry  RetryConfig
	logger *logging.Logger
}

func NewAssemblyAITranscriber(
	cfg AssemblyAIConfig,
	poll PollConfig,
	logger *logging.Logger,
) (*AssemblyAITranscriber, error) {
	client, err := NewAssemblyAIClient(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &AssemblyAITranscriber{
		client: client,
		poller: NewPoller(client, poll, logger),
		retry:  poll.withDefaults().Retry,
		logger: logger,
	}, nil
}

// Upload retries transient failures, reopening the file on each attempt.
func (t *AssemblyAITranscriber) Upload(ctx context.Context, audioPath string) (string, error) {
	if _, err := os.Stat(audioPath); os.IsNotExist(err) {
		return "", fmt.Errorf("audio file not found: %s", audioPath)
	}

	url, err := withRetry(ctx, t.retry, t.logger, "upload", func() (string, error) {
		return t.client.Upload(ctx, audioPath)
	})
	if err != nil {
		return "", err
	}

	t.logger.Debugw("Uploaded audio", "path", audioPath)
	return url, nil
}

// Transcribe submits the uploaded audio and waits for a terminal state.
func (t *AssemblyAITranscriber) Transcribe(ctx context.Context, audioRef string) (*Job, error) {
	return t.poller.SubmitAndWait(ctx, audioRef)
}
