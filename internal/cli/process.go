package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mgpai22/vaani/internal/pipeline"
)

var processCmd = &cobra.Command{
	Use:   "process [media_file]",
	Short: "Transcribe, clip and summarize a lecture recording",
	Long: `Run the full pipeline on an audio or video file.

The recording is uploaded for transcription with word timings, cut into
clips of roughly the threshold length at word boundaries, and summarized
in English and Hindi. Each stage is reported as it finishes; a failed
stage does not discard what earlier or independent stages produced.

Clips are kept only when --output-dir is given.

Examples:
  vaani process lecture.mp3
  vaani process lecture.mp4 --output-dir clips --captions vtt
  vaani process lecture.mp3 --threshold 45s --strict --provider anthropic
  vaani process lecture.mp3 --transcribe-provider openai --poll-timeout 10m`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	addTranscribeFlags(processCmd)
	addSummarizeFlags(processCmd)
	addSegmentFlags(processCmd)
	addCaptionFlags(processCmd)
	processCmd.Flags().
		String("output-dir", "", "Keep clips in this directory (otherwise they are removed on exit)")
}

func runProcess(cmd *cobra.Command, args []string) error {
	input := args[0]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := applyTranscribeFlags(cmd, cfg); err != nil {
		return err
	}
	if err := applySummarizeFlags(cmd, cfg); err != nil {
		return err
	}
	applySegmentFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	captionFormat, captionStyle, err := parseCaptionFlags(cmd)
	if err != nil {
		return err
	}

	outputDir, _ := cmd.Flags().GetString("output-dir")
	outputPath, _ := cmd.Flags().GetString("output")
	if outputDir != "" {
		if outputDir, err = filepath.Abs(outputDir); err != nil {
			return fmt.Errorf("invalid output directory: %w", err)
		}
	}

	runner, err := newRunner(ctx, cfg, outputDir)
	if err != nil {
		return err
	}

	logger.Infow("Starting processing",
		"input", input,
		"transcribe_provider", cfg.TranscribeProvider,
		"summarize_provider", cfg.SummarizeProvider,
		"threshold", cfg.SegmentThreshold.String(),
		"mode", cfg.SegmentMode,
	)

	fmt.Printf("Processing %s\n", input)
	rep, runErr := runner.Run(ctx, input, func(res pipeline.StageResult, _ *pipeline.Report) {
		printStage(res)
	})
	if rep == nil {
		return runErr
	}
	defer func() {
		if err := rep.Cleanup(); err != nil {
			logger.Warnw("Failed to clean up", "error", err)
		}
	}()

	printReport(rep, outputDir != "")

	if captionFormat != "" && rep.Transcript != nil {
		path := captionPath(input, outputPath, outputDir, captionFormat)
		n, err := writeCaptions(captionFormat, captionStyle, rep.Clips, rep.Transcript.Words, path)
		if err != nil {
			return err
		}
		absPath, _ := filepath.Abs(path)
		fmt.Printf("\nCaptions written: %s (%d cues)\n", absPath, n)
	}

	if runErr != nil {
		return fmt.Errorf("processing finished with errors: %w", runErr)
	}
	return nil
}

func printStage(res pipeline.StageResult) {
	line := fmt.Sprintf("  %-18s %-8s %s", res.Stage, res.Status, res.Duration.Round(time.Millisecond))
	if res.Error != "" {
		line += "  " + res.Error
	}
	fmt.Println(line)
}

func printReport(rep *pipeline.Report, keepClips bool) {
	if rep.Transcript != nil {
		fmt.Println("\nTranscript")
		if rep.Transcript.LanguageCode != "" {
			fmt.Printf("  Language: %s\n", rep.Transcript.LanguageCode)
		}
		fmt.Printf("  Words: %d\n\n", len(rep.Transcript.Words))
		fmt.Println(rep.Transcript.Text)
	}

	if len(rep.Clips) > 0 {
		fmt.Printf("\nAudio clips (%d)\n", len(rep.Clips))
		for _, c := range rep.Clips {
			loc := c.Path
			if !keepClips {
				loc = filepath.Base(c.Path)
			}
			fmt.Printf("  %3d  %s - %s  %s\n",
				c.Index+1,
				c.Start().Round(time.Second),
				c.End().Round(time.Second),
				loc,
			)
		}
		if !keepClips {
			fmt.Println("  (use --output-dir to keep clips)")
		}
	}

	printSummary("Summary in English", rep.Summaries.English)
	printSummary("Summary in Hindi", rep.Summaries.Hindi)
}

func printSummary(title, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	fmt.Printf("\n%s\n\n%s\n", title, text)
}
