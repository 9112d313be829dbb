package segment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mgpai22/vaani/internal/audio"
	"github.com/mgpai22/vaani/internal/logging"
	"github.com/mgpai22/vaani/internal/transcribe"
)

// ErrSegmentationFailed matches every segmentation failure.
var ErrSegmentationFailed = errors.New("segmentation failed")

// Error wraps the cause of a segmentation failure.
type Error struct {
	Source string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("segmentation of %s failed: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrSegmentationFailed }

// Codec is the decode/encode collaborator.
type Codec interface {
	Probe(ctx context.Context, path string) (time.Duration, error)
	ExtractClip(
		ctx context.Context,
		inputPath, outputPath string,
		start, end time.Duration,
		opts audio.EncodeOptions,
	) error
}

// Segmenter plans clips and writes them as audio files.
type Segmenter struct {
	codec    Codec
	opts     Options
	encoding audio.EncodeOptions
	logger   *logging.Logger
}

func New(codec Codec, opts Options, logger *logging.Logger) *Segmenter {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Segmenter{
		codec:    codec,
		opts:     opts.withDefaults(),
		encoding: audio.DefaultClipOptions(),
		logger:   logger,
	}
}

// Options returns the effective options after defaults.
func (s *Segmenter) Options() Options { return s.opts }

// Segment writes clip_<index> files for audioPath into outputDir. A source
// that cannot be decoded, or a clip that cannot be encoded, fails the
// whole call with an *Error.
func (s *Segmenter) Segment(
	ctx context.Context,
	audioPath string,
	words []transcribe.WordTiming,
	outputDir string,
) ([]Clip, error) {
	duration, err := s.codec.Probe(ctx, audioPath)
	if err != nil {
		return nil, &Error{Source: audioPath, Err: fmt.Errorf("decode source: %w", err)}
	}

	clips := Plan(words, s.opts)
	if len(clips) == 0 {
		s.logger.Infow("No words to segment", "source", audioPath)
		return clips, nil
	}

	if last := clips[len(clips)-1]; last.End() > duration+time.Second {
		s.logger.Warnw("Word timings run past the end of the audio",
			"last_word_end", last.End().String(),
			"duration", duration.String(),
		)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, &Error{Source: audioPath, Err: fmt.Errorf("create output directory: %w", err)}
	}

	s.logger.Infow("Writing clips",
		"count", len(clips),
		"threshold", s.opts.Threshold.String(),
		"mode", s.opts.Mode,
	)

	if err := s.writeClips(ctx, audioPath, outputDir, clips); err != nil {
		return nil, &Error{Source: audioPath, Err: err}
	}

	return clips, nil
}

// writeClips encodes clips with bounded concurrency, filling in Path.
func (s *Segmenter) writeClips(
	ctx context.Context,
	audioPath, outputDir string,
	clips []Clip,
) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		firstErr error
		wg       sync.WaitGroup
	)

	// semaphore limits concurrent ffmpeg processes
	sem := make(chan struct{}, s.opts.Concurrency)
	ext := audio.ExtensionFor(s.encoding.Format)

	for i := range clips {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(c *Clip) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}

			path := filepath.Join(outputDir, fmt.Sprintf("clip_%d%s", c.Index, ext))
			err := s.codec.ExtractClip(ctx, audioPath, path, c.Start(), c.End(), s.encoding)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("encode clip %d: %w", c.Index, err)
					cancel()
				}
				return
			}
			c.Path = path
		}(&clips[i])
	}

	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// Paths lists the files written for clips.
func Paths(clips []Clip) []string {
	paths := make([]string, 0, len(clips))
	for _, c := range clips {
		if c.Path != "" {
			paths = append(paths, c.Path)
		}
	}
	return paths
}
