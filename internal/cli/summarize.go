package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mgpai22/vaani/internal/summarize"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize [transcript_file]",
	Short: "Summarize a saved transcript in English and Hindi",
	Long: `Summarize a plain-text transcript without transcribing again.

Both summaries are requested independently; if one fails the other is
still printed.

Examples:
  vaani summarize transcript.txt
  vaani summarize transcript.txt --summary-language hindi
  vaani summarize transcript.txt --provider openai -o summary.md`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runSummarize,
}

func init() {
	rootCmd.AddCommand(summarizeCmd)

	addSummarizeFlags(summarizeCmd)
	summarizeCmd.Flags().
		String("summary-language", "both", "Summary language (english, hindi, both)")
}

func runSummarize(cmd *cobra.Command, args []string) error {
	transcriptPath := args[0]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := applySummarizeFlags(cmd, cfg); err != nil {
		return err
	}
	if cfg.SummarizeAPIKey() == "" {
		return fmt.Errorf("%s API key is required: use --api-key flag or set it in the environment", cfg.SummarizeProvider)
	}

	langStr, _ := cmd.Flags().GetString("summary-language")
	langs, err := summaryLanguages(langStr)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(transcriptPath)
	if err != nil {
		return fmt.Errorf("failed to read transcript: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return fmt.Errorf("transcript is empty: %s", transcriptPath)
	}

	summarizer, err := newSummarizer(ctx, cfg)
	if err != nil {
		return err
	}

	logger.Infow("Summarizing transcript",
		"transcript", transcriptPath,
		"provider", cfg.SummarizeProvider,
		"languages", langs,
	)

	var (
		pair summarize.Pair
		errs []string
	)
	if len(langs) == len(summarize.Languages) {
		pair, err = summarize.SummarizePair(ctx, summarizer, text)
		if err != nil {
			errs = append(errs, err.Error())
		}
	} else {
		summary, err := summarizer.Summarize(ctx, text, langs[0])
		if err != nil {
			return err
		}
		pair.Set(langs[0], summary)
	}

	out := formatSummaries(pair)
	outputPath, _ := cmd.Flags().GetString("output")
	if outputPath != "" {
		if err := os.WriteFile(outputPath, []byte(out), 0644); err != nil {
			return fmt.Errorf("failed to write summaries: %w", err)
		}
		absOutput, _ := filepath.Abs(outputPath)
		fmt.Printf("Summaries written: %s\n", absOutput)
	} else {
		fmt.Print(out)
	}

	if len(errs) > 0 {
		return fmt.Errorf("summarization finished with errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func summaryLanguages(s string) ([]summarize.Language, error) {
	if strings.EqualFold(strings.TrimSpace(s), "both") || strings.TrimSpace(s) == "" {
		return summarize.Languages, nil
	}
	lang, err := summarize.ParseLanguage(s)
	if err != nil {
		return nil, err
	}
	return []summarize.Language{lang}, nil
}

// formatSummaries renders whichever summaries were produced as markdown.
func formatSummaries(pair summarize.Pair) string {
	var sb strings.Builder
	for _, s := range []struct{ title, text string }{
		{"Summary in English", pair.English},
		{"Summary in Hindi", pair.Hindi},
	} {
		if s.text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "## %s\n\n%s\n", s.title, s.text)
	}
	return sb.String()
}
