package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

var (
	// ErrTranscriptionFailed matches jobs the provider finished with status error.
	ErrTranscriptionFailed = errors.New("transcription failed")
	// ErrTimedOut matches jobs that did not reach a terminal state in time.
	ErrTimedOut = errors.New("transcription timed out")
	// ErrUnknownStatus is returned for statuses outside the job lifecycle.
	ErrUnknownStatus = errors.New("unknown job status")
)

// FailureError carries the provider's message for a failed job.
type FailureError struct {
	JobID   string
	Message string
}

func (e *FailureError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("transcription failed: %s", e.Message)
	}
	return fmt.Sprintf("transcription %s failed: %s", e.JobID, e.Message)
}

func (e *FailureError) Is(target error) bool {
	return target == ErrTranscriptionFailed
}

// TimeoutError records how far polling got before giving up.
type TimeoutError struct {
	JobID     string
	LastState State
	Polls     int
	Elapsed   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf(
		"transcription %s timed out after %d polls (%s) in state %s",
		e.JobID,
		e.Polls,
		e.Elapsed.Round(time.Millisecond),
		e.LastState,
	)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimedOut
}

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider http %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed if repeated.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError ||
		e.StatusCode == http.StatusTooManyRequests
}

// IsTransient reports whether err is worth retrying: 5xx and 429
// responses, network errors and truncated bodies. Context errors never are.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, io.ErrUnexpectedEOF)
}
