package transcribe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mgpai22/vaani/internal/logging"
)

// State is the poller's view of a job. It mirrors the provider statuses
// and adds StateTimedOut, which only the poller can enter.
type State string

const (
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateError      State = "error"
	StateTimedOut   State = "timed_out"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateError || s == StateTimedOut
}

const (
	DefaultPollInterval = 3 * time.Second
	DefaultPollMaxWait  = 30 * time.Minute
)

var (
	pollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaani_transcript_polls_total",
		Help: "Transcript status polls by observed status",
	}, []string{"status"})

	transportRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaani_transcribe_transport_retries_total",
		Help: "Retried provider calls by operation",
	}, []string{"op"})
)

var errPollDeadline = errors.New("poll deadline exceeded")

// RetryConfig bounds retries of transient transport errors.
type RetryConfig struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
	MaxTries            uint
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		Multiplier:          2,
		RandomizationFactor: 0.5,
		MaxTries:            5,
	}
}

// PollConfig controls the polling cadence and its bounds. MaxPolls of zero
// leaves the poll count unbounded; MaxWait still applies.
type PollConfig struct {
	Interval time.Duration
	MaxWait  time.Duration
	MaxPolls int
	Retry    RetryConfig
}

func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval: DefaultPollInterval,
		MaxWait:  DefaultPollMaxWait,
		Retry:    DefaultRetryConfig(),
	}
}

func (c PollConfig) withDefaults() PollConfig {
	def := DefaultPollConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.MaxWait <= 0 {
		c.MaxWait = def.MaxWait
	}
	if c.Retry.InitialInterval <= 0 {
		c.Retry.InitialInterval = def.Retry.InitialInterval
	}
	if c.Retry.MaxInterval <= 0 {
		c.Retry.MaxInterval = def.Retry.MaxInterval
	}
	if c.Retry.Multiplier <= 0 {
		c.Retry.Multiplier = def.Retry.Multiplier
	}
	if c.Retry.RandomizationFactor < 0 {
		c.Retry.RandomizationFactor = 0
	}
	if c.Retry.MaxTries == 0 {
		c.Retry.MaxTries = def.Retry.MaxTries
	}
	return c
}

// JobAPI is the provider surface the poller needs.
type JobAPI interface {
	Submit(ctx context.Context, audioURL string) (string, error)
	Get(ctx context.Context, id string) (*Job, error)
}

// Poller submits a job and polls it until it reaches a terminal state.
type Poller struct {
	api    JobAPI
	cfg    PollConfig
	logger *logging.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewPoller(api JobAPI, cfg PollConfig, logger *logging.Logger) *Poller {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Poller{
		api:    api,
		cfg:    cfg.withDefaults(),
		logger: logger,
		sleep:  sleepContext,
		now:    time.Now,
	}
}

// SubmitAndWait creates a job for audioURL and blocks until it completes,
// fails, or the poll bounds are exhausted.
func (p *Poller) SubmitAndWait(ctx context.Context, audioURL string) (*Job, error) {
	id, err := withRetry(ctx, p.cfg.Retry, p.logger, "submit", func() (string, error) {
		return p.api.Submit(ctx, audioURL)
	})
	if err != nil {
		return nil, fmt.Errorf("submit transcript: %w", err)
	}

	p.logger.Infow("Submitted transcription job", "job_id", id)
	return p.Wait(ctx, id)
}

// Wait polls an existing job. A completed job is returned as is; a failed
// job yields a *FailureError and exhausting the bounds a *TimeoutError.
func (p *Poller) Wait(ctx context.Context, id string) (*Job, error) {
	ctx, cancel := context.WithTimeoutCause(ctx, p.cfg.MaxWait, errPollDeadline)
	defer cancel()

	started := p.now()
	state := StateQueued
	polls := 0

	timedOut := func() error {
		p.logger.Warnw("Transcription polling timed out",
			"job_id", id,
			"state", state,
			"polls", polls,
		)
		prev := state
		state = StateTimedOut
		return &TimeoutError{
			JobID:     id,
			LastState: prev,
			Polls:     polls,
			Elapsed:   p.now().Sub(started),
		}
	}

	for {
		job, err := withRetry(ctx, p.cfg.Retry, p.logger, "poll", func() (*Job, error) {
			return p.api.Get(ctx, id)
		})
		if err != nil {
			if isDeadline(ctx, err) {
				return nil, timedOut()
			}
			return nil, fmt.Errorf("poll transcript %s: %w", id, err)
		}
		polls++
		pollsTotal.WithLabelValues(string(job.Status)).Inc()

		next, err := transition(state, job.Status)
		if err != nil {
			return nil, fmt.Errorf("poll transcript %s: %w", id, err)
		}
		if next != state {
			p.logger.Debugw("Transcription job state changed",
				"job_id", id,
				"from", state,
				"to", next,
			)
		}
		state = next

		switch state {
		case StateCompleted:
			p.logger.Infow("Transcription completed",
				"job_id", id,
				"words", len(job.Words),
				"language", job.LanguageCode,
				"polls", polls,
			)
			return job, nil
		case StateError:
			return nil, &FailureError{JobID: id, Message: job.Error}
		}

		if p.cfg.MaxPolls > 0 && polls >= p.cfg.MaxPolls {
			return nil, timedOut()
		}

		if err := p.sleep(ctx, p.cfg.Interval); err != nil {
			if isDeadline(ctx, err) {
				return nil, timedOut()
			}
			return nil, err
		}
	}
}

// transition validates a provider status against the current state. A
// job may report queued again while processing; that keeps it processing.
func transition(from State, status Status) (State, error) {
	switch status {
	case StatusQueued:
		if from == StateProcessing {
			return StateProcessing, nil
		}
		return StateQueued, nil
	case StatusProcessing:
		return StateProcessing, nil
	case StatusCompleted:
		return StateCompleted, nil
	case StatusError:
		return StateError, nil
	default:
		return from, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
}

func isDeadline(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return errors.Is(context.Cause(ctx), errPollDeadline)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// withRetry runs fn with exponential backoff and jitter, retrying only
// transient errors.
func withRetry[T any](
	ctx context.Context,
	cfg RetryConfig,
	logger *logging.Logger,
	op string,
	fn func() (T, error),
) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval
	b.Multiplier = cfg.Multiplier
	b.RandomizationFactor = cfg.RandomizationFactor

	tries := cfg.MaxTries
	if tries == 0 {
		tries = 1
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err != nil && !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			transportRetries.WithLabelValues(op).Inc()
			logger.Warnw("Retrying provider call",
				"op", op,
				"error", err,
				"wait", wait,
			)
		}),
	)
}
