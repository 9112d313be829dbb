package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	ffmpegbin "github.com/mgpai22/vaani/internal/ffmpeg"
)

// ErrNoAudioStream is returned by Probe when the container decodes but
// carries no audio.
var ErrNoAudioStream = errors.New("no audio stream")

// settings for encoding audio
type EncodeOptions struct {
	Format     string // Output format (mp3, aac, etc.)
	SampleRate int    // Sample rate in Hz, 0 keeps the source rate
	Channels   int    // Number of channels, 0 keeps the source layout
	Bitrate    string // Bitrate (e.g., "64k", "128k")
}

// defaults for upload: small mono mp3 is enough for speech recognition
func DefaultCompressionOptions() EncodeOptions {
	return EncodeOptions{
		Format:     "mp3",
		SampleRate: 16000,
		Channels:   1,
		Bitrate:    "64k",
	}
}

// defaults for exported clips, meant for playback
func DefaultClipOptions() EncodeOptions {
	return EncodeOptions{
		Format:  "mp3",
		Bitrate: "128k",
	}
}

// JSON output from ffprobe
type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Codec probes and encodes audio through the ffmpeg binaries.
type Codec struct {
	paths ffmpegbin.BinaryPaths
}

// NewCodec returns a Codec that runs the binaries at paths.
func NewCodec(paths ffmpegbin.BinaryPaths) *Codec {
	return &Codec{paths: paths}
}

// Probe decodes the container header and returns the duration of the
// audio. It fails when the file is missing, undecodable or has no audio.
func (c *Codec) Probe(ctx context.Context, filePath string) (time.Duration, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return 0, fmt.Errorf("file not found: %s", filePath)
	}

	cmd := exec.CommandContext(ctx, c.paths.FFprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)

	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbeOutput(out.Bytes())
}

func parseProbeOutput(data []byte) (time.Duration, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	hasAudio := false
	for _, s := range probe.Streams {
		if s.CodecType == "audio" {
			hasAudio = true
			break
		}
	}
	if !hasAudio {
		return 0, ErrNoAudioStream
	}

	var seconds float64
	if _, err := fmt.Sscanf(probe.Format.Duration, "%f", &seconds); err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}

// ExtractClip re-encodes the [start, end) range of inputPath into
// outputPath. The range is applied as input options so ffmpeg seeks to
// start instead of decoding everything before it; re-encoding keeps the
// cut exact.
func (c *Codec) ExtractClip(
	ctx context.Context,
	inputPath, outputPath string,
	start, end time.Duration,
	opts EncodeOptions,
) error {
	if end < start {
		return fmt.Errorf("clip end %v before start %v", end, start)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	stream := ffmpeg.Input(inputPath, clipInputArgs(start, end)).
		Output(outputPath, encodeArgs(opts))
	if err := c.run(ctx, stream); err != nil {
		return fmt.Errorf("clip encode failed: %w", err)
	}

	return nil
}

// Compress re-encodes inputPath with the given options. Video streams are
// dropped, so this also extracts the audio track from video containers.
func (c *Codec) Compress(
	ctx context.Context,
	inputPath, outputPath string,
	opts EncodeOptions,
) error {
	if _, err := os.Stat(inputPath); os.IsNotExist(err) {
		return fmt.Errorf("input file not found: %s", inputPath)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	stream := ffmpeg.Input(inputPath).Output(outputPath, encodeArgs(opts))
	if err := c.run(ctx, stream); err != nil {
		return fmt.Errorf("compression failed: %w", err)
	}

	return nil
}

// run executes stream with the configured ffmpeg. Cancelling ctx kills the
// process and the context error is returned.
func (c *Codec) run(ctx context.Context, stream *ffmpeg.Stream) error {
	compiled := stream.OverWriteOutput().SetFfmpegPath(c.paths.FFmpeg).Compile()

	cmd := exec.CommandContext(ctx, c.paths.FFmpeg, compiled.Args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if msg := lastLine(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// clipInputArgs seeks the input to start and reads end-start of it.
func clipInputArgs(start, end time.Duration) ffmpeg.KwArgs {
	return ffmpeg.KwArgs{
		"ss": start.Seconds(),
		"t":  (end - start).Seconds(),
	}
}

func encodeArgs(opts EncodeOptions) ffmpeg.KwArgs {
	kwargs := ffmpeg.KwArgs{
		"vn": "", // No video
		"y":  "", // Overwrite output
	}
	if opts.SampleRate > 0 {
		kwargs["ar"] = opts.SampleRate
	}
	if opts.Channels > 0 {
		kwargs["ac"] = opts.Channels
	}

	switch opts.Format {
	case "aac":
		kwargs["acodec"] = "aac"
	case "wav":
		kwargs["acodec"] = "pcm_s16le"
	default:
		kwargs["acodec"] = "libmp3lame"
	}

	if opts.Bitrate != "" && opts.Format != "wav" {
		kwargs["b:a"] = opts.Bitrate
	}

	return kwargs
}

// ExtensionFor returns the file extension for an encode format.
func ExtensionFor(format string) string {
	switch format {
	case "aac":
		return ".aac"
	case "wav":
		return ".wav"
	default:
		return ".mp3"
	}
}

// checks if the file is a video based on extension
func IsVideoFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	videoExts := map[string]bool{
		".mp4":  true,
		".mkv":  true,
		".avi":  true,
		".mov":  true,
		".webm": true,
		".m4v":  true,
		".mpeg": true,
		".mpg":  true,
		".3gp":  true,
	}
	return videoExts[ext]
}

// checks if the file is an audio file based on extension
func IsAudioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	audioExts := map[string]bool{
		".mp3":  true,
		".wav":  true,
		".aac":  true,
		".flac": true,
		".ogg":  true,
		".opus": true,
		".m4a":  true,
		".weba": true,
		".aiff": true,
	}
	return audioExts[ext]
}

// checks if the file is either audio or video
func IsMediaFile(path string) bool {
	return IsAudioFile(path) || IsVideoFile(path)
}

// RemoveFiles deletes the given files, ignoring ones already gone. It
// returns the last error seen.
func RemoveFiles(paths []string) error {
	var lastErr error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			lastErr = err
		}
	}
	return lastErr
}
