package convert

import (
	"context"
	"errors"

	"github.com/joseph-ayodele/media-converter/internal/core/extract"
	"github.com/joseph-ayodele/media-converter/internal/core/media"
)

// ErrorCode classifies why a conversion did not succeed.
type ErrorCode string

const (
	UnsupportedFormat  ErrorCode = "UNSUPPORTED_FORMAT"
	OversizeInput      ErrorCode = "OVERSIZE_INPUT"
	BackendFailure     ErrorCode = "BACKEND_FAILURE"
	NoContentExtracted ErrorCode = "NO_CONTENT_EXTRACTED"
	Canceled           ErrorCode = "CANCELED"
	InvalidInput       ErrorCode = "INVALID_INPUT"
)

// Error is a conversion failure as surfaced in a Result.
type Error struct {
	Code    ErrorCode
	Backend string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// backendError maps a backend failure to its code. Streams cut off at the
// size limit report OVERSIZE_INPUT and cancellations report CANCELED.
func backendError(be *extract.BackendError) *Error {
	code := BackendFailure
	switch {
	case errors.Is(be, media.ErrOversize):
		code = OversizeInput
	case errors.Is(be, context.Canceled), errors.Is(be, context.DeadlineExceeded):
		code = Canceled
	}
	return &Error{Code: code, Backend: be.Backend, Message: be.Error(), Cause: be}
}
