package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mgpai22/vaani/internal/audio"
	"github.com/mgpai22/vaani/internal/config"
	ffmpegbin "github.com/mgpai22/vaani/internal/ffmpeg"
	"github.com/mgpai22/vaani/internal/pipeline"
	"github.com/mgpai22/vaani/internal/segment"
	"github.com/mgpai22/vaani/internal/subtitle"
	"github.com/mgpai22/vaani/internal/summarize"
	"github.com/mgpai22/vaani/internal/transcribe"
)

func addTranscribeFlags(cmd *cobra.Command) {
	cmd.Flags().
		String("transcribe-provider", "", "Transcription provider (assemblyai, openai)")
	cmd.Flags().
		String("transcribe-model", "", "Transcription model (openai only)")
	cmd.Flags().
		String("transcribe-key", "", "Transcription API key (or set ASSEMBLYAI_API_KEY/OPENAI_API_KEY env var)")
	cmd.Flags().
		Duration("poll-interval", 0, "Delay between transcript status checks (default from VAANI_POLL_INTERVAL)")
	cmd.Flags().
		Duration("poll-timeout", 0, "Give up waiting for a transcript after this long (default from VAANI_POLL_TIMEOUT)")
}

func addSummarizeFlags(cmd *cobra.Command) {
	cmd.Flags().
		String("provider", "", "Summarization provider (gemini, openai, anthropic)")
	cmd.Flags().
		String("model", "", "Summarization model (provider-specific, uses sensible defaults)")
	cmd.Flags().
		StringP("api-key", "k", "", "Summarization API key (or set GEMINI_API_KEY/OPENAI_API_KEY/ANTHROPIC_API_KEY env var)")
}

func addSegmentFlags(cmd *cobra.Command) {
	cmd.Flags().
		Duration("threshold", 0, "Target clip length (default from VAANI_SEGMENT_THRESHOLD, 30s)")
	cmd.Flags().
		Bool("strict", false, "Compare clip lengths in milliseconds instead of whole seconds")
	cmd.Flags().
		Int("concurrency", 0, "Number of clips encoded in parallel (default from VAANI_SEGMENT_CONCURRENCY)")
}

// applyTranscribeFlags overlays transcription flags that were set onto c.
func applyTranscribeFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()

	if v, _ := flags.GetString("transcribe-provider"); v != "" {
		c.TranscribeProvider = v
	}
	if v, _ := flags.GetString("transcribe-model"); v != "" {
		c.TranscribeModel = v
	}
	if v, _ := flags.GetString("language"); v != "" {
		c.TranscribeLanguage = v
	}
	if v, _ := flags.GetDuration("poll-interval"); v > 0 {
		c.PollInterval = v
	}
	if v, _ := flags.GetDuration("poll-timeout"); v > 0 {
		c.PollTimeout = v
	}

	if key, _ := flags.GetString("transcribe-key"); key != "" {
		p, err := transcribe.ParseProvider(c.TranscribeProvider)
		if err != nil {
			return err
		}
		switch p {
		case transcribe.ProviderOpenAI:
			c.OpenAIAPIKey = key
		default:
			c.AssemblyAIAPIKey = key
		}
	}
	return nil
}

// applySummarizeFlags overlays summarization flags that were set onto c.
func applySummarizeFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()

	if v, _ := flags.GetString("provider"); v != "" {
		c.SummarizeProvider = v
	}
	if v, _ := flags.GetString("model"); v != "" {
		c.SummarizeModel = v
	}

	if key, _ := flags.GetString("api-key"); key != "" {
		p, err := summarize.ParseProvider(c.SummarizeProvider)
		if err != nil {
			return err
		}
		switch p {
		case summarize.ProviderOpenAI:
			c.OpenAIAPIKey = key
		case summarize.ProviderAnthropic:
			c.AnthropicAPIKey = key
		default:
			c.GeminiAPIKey = key
		}
	}
	return nil
}

// applySegmentFlags overlays segmentation flags that were set onto c.
func applySegmentFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()

	if v, _ := flags.GetDuration("threshold"); v > 0 {
		c.SegmentThreshold = v
	}
	if strict, _ := flags.GetBool("strict"); strict {
		c.SegmentMode = string(segment.ModeStrict)
	}
	if v, _ := flags.GetInt("concurrency"); v > 0 {
		c.SegmentConcurrency = v
	}
}

func newTranscriber(ctx context.Context, c *config.Config) (transcribe.Transcriber, error) {
	p, err := transcribe.ParseProvider(c.TranscribeProvider)
	if err != nil {
		return nil, err
	}
	t, err := transcribe.Factory(ctx, p, c.TranscribeAPIKey(), c.TranscribeOptions(logger.Named("transcribe")))
	if err != nil {
		return nil, fmt.Errorf("failed to create transcriber: %w", err)
	}
	return t, nil
}

func newSummarizer(ctx context.Context, c *config.Config) (summarize.Summarizer, error) {
	p, err := summarize.ParseProvider(c.SummarizeProvider)
	if err != nil {
		return nil, err
	}
	s, err := summarize.Factory(ctx, p, c.SummarizeAPIKey(), c.SummarizeOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create summarizer: %w", err)
	}
	return s, nil
}

func newSegmenter(c *config.Config, codec segment.Codec) (*segment.Segmenter, error) {
	opts, err := c.SegmentOptions()
	if err != nil {
		return nil, err
	}
	return segment.New(codec, opts, logger.Named("segment")), nil
}

// newCodec locates ffmpeg and ffprobe once, honouring the configured paths.
func newCodec(c *config.Config) (*audio.Codec, error) {
	paths, err := ffmpegbin.NewResolver(ffmpegbin.BinaryPaths{
		FFmpeg:  c.FFmpegPath,
		FFprobe: c.FFprobePath,
	}).Resolve()
	if err != nil {
		return nil, fmt.Errorf("failed to locate ffmpeg: %w", err)
	}
	return audio.NewCodec(paths), nil
}

// newRunner wires every collaborator from c. Clips go to clipDir when it
// is set.
func newRunner(ctx context.Context, c *config.Config, clipDir string) (*pipeline.Runner, error) {
	codec, err := newCodec(c)
	if err != nil {
		return nil, err
	}

	transcriber, err := newTranscriber(ctx, c)
	if err != nil {
		return nil, err
	}
	summarizer, err := newSummarizer(ctx, c)
	if err != nil {
		return nil, err
	}
	segmenter, err := newSegmenter(c, codec)
	if err != nil {
		return nil, err
	}

	return pipeline.NewRunner(pipeline.Deps{
		Extractor:   codec,
		Transcriber: transcriber,
		Segmenter:   segmenter,
		Summarizer:  summarizer,
		Logger:      logger.Named("pipeline"),
	}, pipeline.Options{
		WorkRoot: c.WorkDir,
		ClipDir:  clipDir,
	})
}

// loadWords reads word timings saved from a transcription: either a bare
// JSON array or a transcript object with a "words" field.
func loadWords(path string) ([]transcribe.WordTiming, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read word timings: %w", err)
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var words []transcribe.WordTiming
		if err := json.Unmarshal(data, &words); err != nil {
			return nil, fmt.Errorf("failed to parse word timings: %w", err)
		}
		return words, nil
	}

	var transcript struct {
		Words []transcribe.WordTiming `json:"words"`
	}
	if err := json.Unmarshal(data, &transcript); err != nil {
		return nil, fmt.Errorf("failed to parse word timings: %w", err)
	}
	return transcript.Words, nil
}

// captionPath picks where captions for input are written.
func captionPath(input, outputPath, outputDir string, format subtitle.Format) string {
	if outputPath != "" {
		return outputPath
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)) + subtitle.ExtensionFor(format)
	if outputDir != "" {
		return filepath.Join(outputDir, base)
	}
	return filepath.Join(filepath.Dir(input), base)
}

// parseCaptionFlags returns the caption format, or "" when captions were
// not requested.
func parseCaptionFlags(cmd *cobra.Command) (subtitle.Format, subtitle.CueStyle, error) {
	formatStr, _ := cmd.Flags().GetString("captions")
	styleStr, _ := cmd.Flags().GetString("caption-style")

	style, err := subtitle.ParseCueStyle(styleStr)
	if err != nil {
		return "", "", err
	}
	if formatStr == "" {
		return "", style, nil
	}
	format, err := subtitle.ParseFormat(formatStr)
	if err != nil {
		return "", "", err
	}
	return format, style, nil
}

func addCaptionFlags(cmd *cobra.Command) {
	cmd.Flags().
		String("captions", "", "Also write captions in this format (srt, vtt)")
	cmd.Flags().
		String("caption-style", "clips", "Caption cues: one per clip (clips) or short word groups (words)")
}

func writeCaptions(
	format subtitle.Format,
	style subtitle.CueStyle,
	clips []segment.Clip,
	words []transcribe.WordTiming,
	path string,
) (int, error) {
	sub := subtitle.NewDefaultGenerator().Generate(style, clips, words)
	if err := subtitle.WriteFile(sub, format, path); err != nil {
		return 0, fmt.Errorf("failed to write captions: %w", err)
	}
	return len(sub.Entries), nil
}
