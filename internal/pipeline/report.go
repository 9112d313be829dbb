package pipeline

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/mgpai22/vaani/internal/segment"
	"github.com/mgpai22/vaani/internal/summarize"
	"github.com/mgpai22/vaani/internal/transcribe"
)

type Stage string

const (
	StagePrepare          Stage = "prepare"
	StageUpload           Stage = "upload"
	StageTranscribe       Stage = "transcribe"
	StageSegment          Stage = "segment"
	StageSummarizeEnglish Stage = "summarize_english"
	StageSummarizeHindi   Stage = "summarize_hindi"
)

// Stages lists every stage in execution order.
var Stages = []Stage{
	StagePrepare,
	StageUpload,
	StageTranscribe,
	StageSegment,
	StageSummarizeEnglish,
	StageSummarizeHindi,
}

type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// StageResult is the outcome of one stage. Skipped stages carry the
// reason in Error.
type StageResult struct {
	Stage    Stage         `json:"stage"`
	Status   Status        `json:"status"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// StageError ties a failure to the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Report collects everything a run produced. Fields are filled in as
// stages complete; a failed stage leaves its fields empty.
type Report struct {
	RunID      string          `json:"run_id"`
	Input      string          `json:"input"`
	WorkDir    string          `json:"-"`
	AudioPath  string          `json:"-"`
	UploadRef  string          `json:"-"`
	Transcript *transcribe.Job `json:"transcript,omitempty"`
	Clips      []segment.Clip  `json:"clips"`
	Summaries  summarize.Pair  `json:"summaries"`
	Stages     []StageResult   `json:"stages"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at,omitzero"`
}

// Done reports whether every stage has produced a result.
func (r *Report) Done() bool {
	return len(r.Stages) == len(Stages)
}

// Succeeded reports whether the run finished without a failed stage.
func (r *Report) Succeeded() bool {
	if !r.Done() {
		return false
	}
	for _, s := range r.Stages {
		if s.Status == StatusFailed {
			return false
		}
	}
	return true
}

// Result returns the result recorded for stage, if any.
func (r *Report) Result(stage Stage) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Stage == stage {
			return s, true
		}
	}
	return StageResult{}, false
}

// Summary returns the summary for lang, empty if it was not produced.
func (r *Report) Summary(lang summarize.Language) string {
	if lang == summarize.Hindi {
		return r.Summaries.Hindi
	}
	return r.Summaries.English
}

// Cleanup removes the run's work directory and everything in it. Clips
// written to a caller supplied directory are kept.
func (r *Report) Cleanup() error {
	if r.WorkDir == "" {
		return nil
	}
	if err := os.RemoveAll(r.WorkDir); err != nil {
		return fmt.Errorf("failed to remove work directory: %w", err)
	}
	return nil
}

// clone copies the report so observers can keep it while the run goes on.
func (r *Report) clone() *Report {
	c := *r
	c.Stages = slices.Clone(r.Stages)
	c.Clips = slices.Clone(r.Clips)
	return &c
}
