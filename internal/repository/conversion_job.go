package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/media-converter/constants"
	"github.com/joseph-ayodele/media-converter/internal/core/convert"
)

var ErrJobNotFound = errors.New("conversion job not found")

// ConversionJob is one row of conversion_job.
type ConversionJob struct {
	ID            uuid.UUID
	TenantID      string
	DocumentID    string
	RequestID     string
	Filename      string
	ContentType   string
	Status        constants.JobStatus
	Strategy      string
	Method        string
	Confidence    *int
	UsedFallback  bool
	ElapsedMs     int64
	ExtractedText string
	ErrorCode     string
	ErrorMessage  string
	CreatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
}

// ConversionStatus is the result status of a finished job, empty while it is pending.
func (j *ConversionJob) ConversionStatus() constants.ConversionStatus {
	switch j.Status {
	case constants.JobStatusSuccess:
		return constants.ConversionSuccess
	case constants.JobStatusNotSupported:
		return constants.ConversionNotSupported
	case constants.JobStatusFailed:
		return constants.ConversionFailed
	}
	return ""
}

// NewJob describes a conversion to record before it runs.
type NewJob struct {
	TenantID    string
	DocumentID  string
	RequestID   string
	Filename    string
	ContentType string
}

type ConversionJobRepository interface {
	// Create inserts a QUEUED job.
	Create(ctx context.Context, in NewJob) (*ConversionJob, error)
	// Start moves a job to RUNNING.
	Start(ctx context.Context, id uuid.UUID) error
	// Finish stores the result and its terminal status.
	Finish(ctx context.Context, id uuid.UUID, res convert.Result) error
	Get(ctx context.Context, id uuid.UUID) (*ConversionJob, error)
}
