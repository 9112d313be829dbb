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

	"github.com/mgpai22/vaani/internal/audio"
)

var extractCmd = &cobra.Command{
	Use:   "extract [media_file]",
	Short: "Extract or compress the audio track of a recording",
	Long: `Extract the audio track from a video file (or re-encode an audio file)
and save it as a separate audio file.

The defaults produce the small mono mp3 used for transcription uploads.

Supported output formats: mp3, aac, wav.

Examples:
  vaani extract lecture.mp4
  vaani extract lecture.mp4 -o lecture.mp3
  vaani extract lecture.webm --format wav --sample-rate 44100 --channels 2`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	defaults := audio.DefaultCompressionOptions()
	extractCmd.Flags().
		StringP("format", "f", defaults.Format, "Output audio format (mp3, aac, wav)")
	extractCmd.Flags().
		IntP("sample-rate", "r", defaults.SampleRate, "Sample rate in Hz (e.g., 16000, 44100, 48000)")
	extractCmd.Flags().
		IntP("channels", "c", defaults.Channels, "Number of audio channels (1=mono, 2=stereo)")
	extractCmd.Flags().
		StringP("bitrate", "b", defaults.Bitrate, "Bitrate for lossy formats (e.g., 64k, 128k)")
}

func runExtract(cmd *cobra.Command, args []string) error {
	mediaPath := args[0]

	format, _ := cmd.Flags().GetString("format")
	sampleRate, _ := cmd.Flags().GetInt("sample-rate")
	channels, _ := cmd.Flags().GetInt("channels")
	bitrate, _ := cmd.Flags().GetString("bitrate")
	outputPath, _ := cmd.Flags().GetString("output")

	if !audio.IsMediaFile(mediaPath) {
		return fmt.Errorf("unsupported file type: %s (expected audio or video file)", filepath.Ext(mediaPath))
	}

	validFormats := map[string]bool{
		"mp3": true,
		"aac": true,
		"wav": true,
	}
	if !validFormats[format] {
		return fmt.Errorf(
			"invalid format %q: supported formats are mp3, aac, wav",
			format,
		)
	}

	if outputPath == "" {
		outputPath = strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath)) + audio.ExtensionFor(format)
	}
	if filepath.Clean(outputPath) == filepath.Clean(mediaPath) {
		return fmt.Errorf("output would overwrite the input: use -o to choose another path")
	}

	logger.Infow("Extracting audio",
		"input", mediaPath,
		"output", outputPath,
		"format", format,
		"sample_rate", sampleRate,
		"channels", channels,
	)

	opts := audio.EncodeOptions{
		Format:     format,
		SampleRate: sampleRate,
		Channels:   channels,
		Bitrate:    bitrate,
	}

	codec, err := newCodec(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := codec.Compress(ctx, mediaPath, outputPath, opts); err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	absOutput, _ := filepath.Abs(outputPath)
	fmt.Printf("Audio extracted successfully: %s\n", absOutput)

	return nil
}
