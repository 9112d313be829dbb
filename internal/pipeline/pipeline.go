// Package pipeline runs a recording through preparation, transcription,
// segmentation and both summaries, reporting each stage as it finishes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mgpai22/vaani/internal/audio"
	"github.com/mgpai22/vaani/internal/logging"
	"github.com/mgpai22/vaani/internal/segment"
	"github.com/mgpai22/vaani/internal/summarize"
	"github.com/mgpai22/vaani/internal/transcribe"
)

var (
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vaani_pipeline_stage_duration_seconds",
		Help:    "Pipeline stage duration by stage and status.",
		Buckets: prometheus.ExponentialBuckets(0.05, 3, 10),
	}, []string{"stage", "status"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaani_pipeline_runs_total",
		Help: "Completed pipeline runs by outcome.",
	}, []string{"outcome"})
)

// skipReason marks a stage that had nothing to do.
type skipReason string

func (s skipReason) Error() string { return string(s) }

// Extractor pulls the audio track out of a container.
type Extractor interface {
	Compress(ctx context.Context, inputPath, outputPath string, opts audio.EncodeOptions) error
}

// ClipWriter segments a recording into clip files.
type ClipWriter interface {
	Segment(
		ctx context.Context,
		audioPath string,
		words []transcribe.WordTiming,
		outputDir string,
	) ([]segment.Clip, error)
}

// Observer receives each stage result together with a snapshot of the
// report so far. The snapshot is not modified afterwards.
type Observer func(result StageResult, progress *Report)

type Deps struct {
	Extractor   Extractor
	Transcriber transcribe.Transcriber
	Segmenter   ClipWriter
	Summarizer  summarize.Summarizer
	Logger      *logging.Logger
}

type Options struct {
	WorkRoot string // parent of per-run work directories (default: system temp)
	ClipDir  string // clips go here instead of the work directory when set
}

type Runner struct {
	deps  Deps
	opts  Options
	newID func() string
}

func NewRunner(deps Deps, opts Options) (*Runner, error) {
	switch {
	case deps.Extractor == nil:
		return nil, fmt.Errorf("extractor is required")
	case deps.Transcriber == nil:
		return nil, fmt.Errorf("transcriber is required")
	case deps.Segmenter == nil:
		return nil, fmt.Errorf("segmenter is required")
	case deps.Summarizer == nil:
		return nil, fmt.Errorf("summarizer is required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	if opts.WorkRoot == "" {
		opts.WorkRoot = filepath.Join(os.TempDir(), "vaani")
	}
	return &Runner{deps: deps, opts: opts, newID: uuid.NewString}, nil
}

// NewRun allocates a run id and its work directory.
func (r *Runner) NewRun() (*Report, error) {
	id := r.newID()
	dir := filepath.Join(r.opts.WorkRoot, "run-"+id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	return &Report{RunID: id, WorkDir: dir, Clips: []segment.Clip{}}, nil
}

// Run processes input in a fresh run. The report holds whatever succeeded
// and the error joins every stage failure. The caller owns the work
// directory and should call Report.Cleanup.
func (r *Runner) Run(ctx context.Context, input string, observe Observer) (*Report, error) {
	rep, err := r.NewRun()
	if err != nil {
		return nil, err
	}
	return rep, r.Execute(ctx, rep, input, observe)
}

// Execute runs every stage against a report from NewRun.
func (r *Runner) Execute(ctx context.Context, rep *Report, input string, observe Observer) error {
	if observe == nil {
		observe = func(StageResult, *Report) {}
	}

	rep.Input = input
	rep.StartedAt = time.Now()
	logger := r.deps.Logger.With("run_id", rep.RunID)

	logger.Infow("Starting run", "input", input)

	var errs []error
	step := func(stage Stage, ready bool, fn func(context.Context) error) {
		res := StageResult{Stage: stage}
		started := time.Now()

		switch {
		case !ready:
			res.Status = StatusSkipped
			res.Error = "an earlier stage did not complete"
		case ctx.Err() != nil:
			res.Status = StatusFailed
			res.Err = ctx.Err()
		default:
			res.Err = fn(ctx)
			var skip skipReason
			switch {
			case errors.As(res.Err, &skip):
				res.Status = StatusSkipped
				res.Error = string(skip)
				res.Err = nil
			case res.Err != nil:
				res.Status = StatusFailed
			default:
				res.Status = StatusOK
			}
		}
		res.Duration = time.Since(started)

		if res.Status == StatusFailed {
			res.Error = res.Err.Error()
			errs = append(errs, &StageError{Stage: stage, Err: res.Err})
			logger.Errorw("Stage failed", "stage", stage, "error", res.Err)
		} else {
			logger.Infow("Stage finished",
				"stage", stage,
				"status", res.Status,
				"duration", res.Duration.String(),
			)
		}

		stageDuration.WithLabelValues(string(stage), string(res.Status)).Observe(res.Duration.Seconds())
		rep.Stages = append(rep.Stages, res)
		observe(res, rep.clone())
	}

	step(StagePrepare, true, func(ctx context.Context) error {
		return r.prepare(ctx, rep, input)
	})

	step(StageUpload, rep.AudioPath != "", func(ctx context.Context) error {
		ref, err := r.deps.Transcriber.Upload(ctx, rep.AudioPath)
		if err != nil {
			return err
		}
		rep.UploadRef = ref
		return nil
	})

	step(StageTranscribe, rep.UploadRef != "", func(ctx context.Context) error {
		job, err := r.deps.Transcriber.Transcribe(ctx, rep.UploadRef)
		if err != nil {
			return err
		}
		rep.Transcript = job
		logger.Infow("Transcript ready",
			"words", len(job.Words),
			"language", job.LanguageCode,
		)
		return nil
	})

	transcribed := rep.Transcript != nil

	step(StageSegment, transcribed, func(ctx context.Context) error {
		clipDir := r.opts.ClipDir
		if clipDir == "" {
			clipDir = filepath.Join(rep.WorkDir, "clips")
		}
		clips, err := r.deps.Segmenter.Segment(ctx, rep.AudioPath, rep.Transcript.Words, clipDir)
		if err != nil {
			return err
		}
		rep.Clips = clips
		return nil
	})

	for _, lang := range summarize.Languages {
		stage := StageSummarizeEnglish
		if lang == summarize.Hindi {
			stage = StageSummarizeHindi
		}
		step(stage, transcribed, func(ctx context.Context) error {
			summary, err := r.deps.Summarizer.Summarize(ctx, rep.Transcript.Text, lang)
			if err != nil {
				return err
			}
			rep.Summaries.Set(lang, summary)
			return nil
		})
	}

	rep.FinishedAt = time.Now()

	outcome := "ok"
	if len(errs) > 0 {
		outcome = "failed"
	}
	runsTotal.WithLabelValues(outcome).Inc()
	logger.Infow("Run finished",
		"outcome", outcome,
		"duration", rep.FinishedAt.Sub(rep.StartedAt).String(),
	)

	return errors.Join(errs...)
}

// prepare validates the input and extracts audio from video containers.
// Audio files are used as they are.
func (r *Runner) prepare(ctx context.Context, rep *Report, input string) error {
	info, err := os.Stat(input)
	if err != nil {
		return fmt.Errorf("input not readable: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("input is a directory: %s", input)
	}
	if !audio.IsMediaFile(input) {
		return fmt.Errorf("unsupported file type: %s (expected audio or video file)", filepath.Ext(input))
	}

	if !audio.IsVideoFile(input) {
		rep.AudioPath = input
		return skipReason("input is already audio")
	}

	opts := audio.DefaultClipOptions()
	out := filepath.Join(rep.WorkDir, "audio"+audio.ExtensionFor(opts.Format))
	if err := r.deps.Extractor.Compress(ctx, input, out, opts); err != nil {
		return fmt.Errorf("failed to extract audio: %w", err)
	}
	rep.AudioPath = out
	return nil
}
