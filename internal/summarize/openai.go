package summarize

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const DefaultOpenAIModel = "gpt-5-mini"

// implements Summarizer using OpenAI Chat Completions
type OpenAISummarizer struct {
	client openai.Client
	model  string
}

func NewOpenAISummarizer(
	ctx context.Context,
	apiKey string,
	opts Options,
) (*OpenAISummarizer, error) {
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

	model := opts.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	return &OpenAISummarizer{
		client: openai.NewClient(reqOpts...),
		model:  model,
	}, nil
}

func (s *OpenAISummarizer) Summarize(
	ctx context.Context,
	text string,
	lang Language,
) (string, error) {
	started := time.Now()
	completion, err := s.client.Chat.Completions.New(
		ctx,
		openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(BuildPrompt(text, lang)),
			},
			Model: s.model,
		},
	)
	return observe(ProviderOpenAI, lang, started, openAIText(completion), err)
}

func openAIText(completion *openai.ChatCompletion) string {
	if completion == nil || len(completion.Choices) == 0 {
		return ""
	}
	return completion.Choices[0].Message.Content
}
