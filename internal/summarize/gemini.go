package summarize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.0-flash"

// implements Summarizer using Google Gemini
type GeminiSummarizer struct {
	client *genai.Client
	model  string
}

func NewGeminiSummarizer(
	ctx context.Context,
	apiKey string,
	opts Options,
) (*GeminiSummarizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	return &GeminiSummarizer{
		client: client,
		model:  model,
	}, nil
}

func (s *GeminiSummarizer) Summarize(
	ctx context.Context,
	text string,
	lang Language,
) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(BuildPrompt(text, lang)),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	started := time.Now()
	result, err := s.client.Models.GenerateContent(ctx, s.model, contents, nil)
	return observe(ProviderGemini, lang, started, geminiText(result), err)
}

func geminiText(result *genai.GenerateContentResponse) string {
	if result == nil {
		return ""
	}

	var sb strings.Builder
	for _, candidate := range result.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" && !part.Thought {
				sb.WriteString(part.Text)
			}
		}
		// first candidate with text wins
		if sb.Len() > 0 {
			break
		}
	}
	return sb.String()
}
