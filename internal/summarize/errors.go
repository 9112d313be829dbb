package summarize

import (
	"errors"
	"fmt"
)

// ErrSummarizationFailed matches every summarization failure.
var ErrSummarizationFailed = errors.New("summarization failed")

var errEmptyResponse = errors.New("no text in provider response")

// Error reports a failed summary for one language.
type Error struct {
	Language Language
	Provider Provider
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s summary via %s failed: %v", e.Language, e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrSummarizationFailed }
