package summarize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 4096

// implements Summarizer using Anthropic Claude
type AnthropicSummarizer struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

func NewAnthropicSummarizer(
	ctx context.Context,
	apiKey string,
	opts Options,
) (*AnthropicSummarizer, error) {
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

	model := anthropic.Model(opts.Model)
	if opts.Model == "" {
		model = anthropic.ModelClaudeHaiku4_5
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	return &AnthropicSummarizer{
		client:    anthropic.NewClient(reqOpts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (s *AnthropicSummarizer) Summarize(
	ctx context.Context,
	text string,
	lang Language,
) (string, error) {
	started := time.Now()
	message, err := s.client.Messages.New(
		ctx,
		anthropic.MessageNewParams{
			Model:     s.model,
			MaxTokens: s.maxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(
					anthropic.NewTextBlock(BuildPrompt(text, lang)),
				),
			},
		},
	)
	return observe(ProviderAnthropic, lang, started, anthropicText(message), err)
}

func anthropicText(message *anthropic.Message) string {
	if message == nil {
		return ""
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}
