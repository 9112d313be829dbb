// Package summarize asks a generative-text provider for a three-part
// summary of a lecture transcript.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// target language of a summary
type Language string

const (
	English Language = "english"
	Hindi   Language = "hindi"
)

// Languages lists every supported summary language in report order.
var Languages = []Language{English, Hindi}

func ParseLanguage(s string) (Language, error) {
	switch Language(strings.ToLower(strings.TrimSpace(s))) {
	case English:
		return English, nil
	case Hindi:
		return Hindi, nil
	default:
		return "", fmt.Errorf("unsupported summary language %q: use english or hindi", s)
	}
}

// interface for transcript summarization
type Summarizer interface {
	Summarize(ctx context.Context, text string, lang Language) (string, error)
}

// generative-text provider
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

func ParseProvider(name string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return ProviderGemini, nil
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic:
		return p, nil
	default:
		return "", fmt.Errorf("unsupported summarization provider: %s", name)
	}
}

type Options struct {
	Model      string
	BaseURL    string
	MaxTokens  int64 // anthropic only (default 4096)
	HTTPClient *http.Client
}

// creates Summarizer based on provider
func Factory(
	ctx context.Context,
	provider Provider,
	apiKey string,
	opts Options,
) (Summarizer, error) {
	switch provider {
	case ProviderGemini:
		return NewGeminiSummarizer(ctx, apiKey, opts)
	case ProviderOpenAI:
		return NewOpenAISummarizer(ctx, apiKey, opts)
	case ProviderAnthropic:
		return NewAnthropicSummarizer(ctx, apiKey, opts)
	default:
		return nil, fmt.Errorf("unsupported summarization provider: %s", provider)
	}
}

// BuildPrompt creates the summary prompt for LLM providers
func BuildPrompt(text string, lang Language) string {
	var sb strings.Builder

	sb.WriteString("This is a Transcript of a discussion on a topic related to Science or Maths. ")
	sb.WriteString("According to the content, you need to tell me 3 things\n")
	sb.WriteString("1. What is the summary of the text?\n")
	sb.WriteString("2. What are some important topics or points or formulas covered in the text?\n")
	sb.WriteString("3. Is there any discussion of an upcoming assignment or a homework? ")
	sb.WriteString("If yes, do tell the important dates.\n")
	fmt.Fprintf(&sb,
		"Give answers in 3 different paragraph in %s and do not give any introduction or conclusion\n",
		strings.ToUpper(string(lang)),
	)
	sb.WriteString("the content:\n")
	sb.WriteString(text)

	return sb.String()
}

// Pair holds one summary per language.
type Pair struct {
	English string `json:"english,omitempty"`
	Hindi   string `json:"hindi,omitempty"`
}

// Set stores summary under lang.
func (p *Pair) Set(lang Language, summary string) {
	switch lang {
	case English:
		p.English = summary
	case Hindi:
		p.Hindi = summary
	}
}

// SummarizePair requests the English and Hindi summaries independently.
// Whatever succeeded is returned alongside the joined failures.
func SummarizePair(ctx context.Context, s Summarizer, text string) (Pair, error) {
	var (
		pair Pair
		errs []error
	)
	for _, lang := range Languages {
		summary, err := s.Summarize(ctx, text, lang)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		pair.Set(lang, summary)
	}
	return pair, errors.Join(errs...)
}

var (
	providerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaani_summarize_requests_total",
		Help: "Summarization provider calls by provider and outcome.",
	}, []string{"provider", "outcome"})

	providerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vaani_summarize_request_duration_seconds",
		Help:    "Summarization provider call latency.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
	}, []string{"provider"})
)

// observe records a provider call and normalizes its result.
func observe(
	provider Provider,
	lang Language,
	started time.Time,
	text string,
	err error,
) (string, error) {
	providerLatency.WithLabelValues(string(provider)).Observe(time.Since(started).Seconds())

	text = strings.TrimSpace(text)
	if err == nil && text == "" {
		err = errEmptyResponse
	}
	if err != nil {
		providerRequests.WithLabelValues(string(provider), "error").Inc()
		return "", &Error{Language: lang, Provider: provider, Err: err}
	}

	providerRequests.WithLabelValues(string(provider), "ok").Inc()
	return text, nil
}
