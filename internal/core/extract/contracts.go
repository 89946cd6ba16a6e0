package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/joseph-ayodele/media-converter/internal/core/media"
)

// Backend turns a media descriptor into text. Every call opens its own stream from the descriptor.
// Failures are reported as *BackendError, never as an empty Outcome.
type Backend interface {
	Name() string
	Extract(ctx context.Context, d media.Descriptor) (Outcome, error)
}

// Confidence is a [0,100] quality estimate. The zero value is unknown.
type Confidence struct {
	Value int
	Known bool
}

// KnownConfidence builds a known confidence clamped to [0,100].
func KnownConfidence(v int) Confidence {
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return Confidence{Value: v, Known: true}
}

// UnknownConfidence is reported when the backend has no native score.
var UnknownConfidence = Confidence{}

func (c Confidence) String() string {
	if !c.Known {
		return "unknown"
	}
	return fmt.Sprintf("%d", c.Value)
}

// Outcome is what one backend produced for one descriptor.
type Outcome struct {
	Text       string
	Confidence Confidence
	Backend    string
	Pages      int
	Language   string
	Note       string
}

// BackendError wraps a failure inside one backend.
// Recoverable means a different backend could plausibly succeed on the same input.
type BackendError struct {
	Backend     string
	Cause       error
	Recoverable bool
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Backend, e.Cause)
}

func (e *BackendError) Unwrap() error {
	return e.Cause
}

// Fail wraps cause as a BackendError. Oversize input and cancellation are never recoverable.
func Fail(backend string, cause error, recoverable bool) *BackendError {
	if errors.Is(cause, media.ErrOversize) || errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		recoverable = false
	}
	return &BackendError{Backend: backend, Cause: cause, Recoverable: recoverable}
}

// AsBackendError converts any error returned by a backend into a *BackendError.
func AsBackendError(backend string, err error) *BackendError {
	var be *BackendError
	if errors.As(err, &be) {
		return be
	}
	return Fail(backend, err, true)
}
