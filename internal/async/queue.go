package async

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/media-converter/internal/core/classify"
	"github.com/joseph-ayodele/media-converter/internal/core/convert"
	"github.com/joseph-ayodele/media-converter/internal/core/media"
)

// ErrQueueClosed is returned by Enqueue once Shutdown has started.
var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one recorded conversion waiting for a worker.
type Job struct {
	JobID       uuid.UUID
	Request     convert.Request
	Descriptor  media.Descriptor
	Strategy    classify.Strategy // empty = classify by content type
	SubmittedAt time.Time
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
