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

	"github.com/mgpai22/vaani/internal/audio"
)

var segmentCmd = &cobra.Command{
	Use:   "segment [audio_file] [words.json]",
	Short: "Cut a recording into clips from saved word timings",
	Long: `Segment an audio file into clips using word timings from an earlier
transcription, without calling any provider.

The word file is either a JSON array of {"start","end","text"} objects
(milliseconds) or a saved AssemblyAI transcript with a "words" field.

Examples:
  vaani segment lecture.mp3 transcript.json
  vaani segment lecture.mp3 words.json --output-dir clips --threshold 45s
  vaani segment lecture.mp3 words.json --captions srt --caption-style words`,
	Args:         cobra.ExactArgs(2),
	SilenceUsage: true,
	RunE:         runSegment,
}

func init() {
	rootCmd.AddCommand(segmentCmd)

	addSegmentFlags(segmentCmd)
	addCaptionFlags(segmentCmd)
	segmentCmd.Flags().
		String("output-dir", "", "Directory for clips (default: <audio>_clips next to the input)")
}

func runSegment(cmd *cobra.Command, args []string) error {
	audioPath, wordsPath := args[0], args[1]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !audio.IsAudioFile(audioPath) {
		return fmt.Errorf("unsupported file type: %s (expected audio file)", filepath.Ext(audioPath))
	}

	applySegmentFlags(cmd, cfg)

	captionFormat, captionStyle, err := parseCaptionFlags(cmd)
	if err != nil {
		return err
	}

	words, err := loadWords(wordsPath)
	if err != nil {
		return err
	}

	outputDir, _ := cmd.Flags().GetString("output-dir")
	if outputDir == "" {
		outputDir = strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + "_clips"
	}

	codec, err := newCodec(cfg)
	if err != nil {
		return err
	}
	segmenter, err := newSegmenter(cfg, codec)
	if err != nil {
		return err
	}

	logger.Infow("Segmenting audio",
		"audio", audioPath,
		"words", len(words),
		"output_dir", outputDir,
	)

	started := time.Now()
	clips, err := segmenter.Segment(ctx, audioPath, words, outputDir)
	if err != nil {
		return err
	}

	absDir, _ := filepath.Abs(outputDir)
	fmt.Printf("Clips written: %s\n", absDir)
	fmt.Printf("  Clips: %d\n", len(clips))
	fmt.Printf("  Took: %s\n", time.Since(started).Round(time.Millisecond))
	for _, c := range clips {
		fmt.Printf("  %3d  %s - %s  %s\n",
			c.Index+1,
			c.Start().Round(time.Second),
			c.End().Round(time.Second),
			filepath.Base(c.Path),
		)
	}

	if captionFormat != "" {
		outputPath, _ := cmd.Flags().GetString("output")
		path := captionPath(audioPath, outputPath, outputDir, captionFormat)
		n, err := writeCaptions(captionFormat, captionStyle, clips, words, path)
		if err != nil {
			return err
		}
		fmt.Printf("Captions written: %s (%d cues)\n", path, n)
	}

	return nil
}
