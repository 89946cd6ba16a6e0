package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joseph-ayodele/media-converter/constants"
	"github.com/joseph-ayodele/media-converter/internal/core/convert"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS conversion_job (
	id             UUID PRIMARY KEY,
	tenant_id      TEXT NOT NULL,
	document_id    TEXT NOT NULL,
	request_id     TEXT NOT NULL DEFAULT '',
	filename       TEXT NOT NULL DEFAULT '',
	content_type   TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	strategy       TEXT NOT NULL DEFAULT '',
	method         TEXT NOT NULL DEFAULT '',
	confidence     INTEGER,
	used_fallback  BOOLEAN NOT NULL DEFAULT FALSE,
	elapsed_ms     BIGINT NOT NULL DEFAULT 0,
	extracted_text TEXT NOT NULL DEFAULT '',
	error_code     TEXT NOT NULL DEFAULT '',
	error_message  TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at     TIMESTAMPTZ,
	finished_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS conversion_job_tenant_document_idx ON conversion_job (tenant_id, document_id);`

type pgJobRepo struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewConversionJobRepository(pool *pgxpool.Pool, logger *slog.Logger) ConversionJobRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &pgJobRepo{pool: pool, logger: logger}
}

// EnsureSchema creates conversion_job when missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, pgSchema)
	return err
}

func (r *pgJobRepo) Create(ctx context.Context, in NewJob) (*ConversionJob, error) {
	job := &ConversionJob{
		ID:          uuid.New(),
		TenantID:    in.TenantID,
		DocumentID:  in.DocumentID,
		RequestID:   in.RequestID,
		Filename:    in.Filename,
		ContentType: in.ContentType,
		Status:      constants.JobStatusQueued,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := r.pool.Exec(ctx, `
INSERT INTO conversion_job (id, tenant_id, document_id, request_id, filename, content_type, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.TenantID, job.DocumentID, job.RequestID, job.Filename, job.ContentType, string(job.Status), job.CreatedAt)
	if err != nil {
		r.logger.Error("conversion_job create failed", "document_id", in.DocumentID, "error", err)
		return nil, err
	}
	r.logger.Info("conversion_job created", "job_id", job.ID, "document_id", in.DocumentID, "tenant_id", in.TenantID)
	return job, nil
}

func (r *pgJobRepo) Start(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE conversion_job SET status = $2, started_at = $3 WHERE id = $1`,
		id, string(constants.JobStatusRunning), time.Now().UTC())
	if err != nil {
		r.logger.Error("conversion_job start failed", "job_id", id, "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *pgJobRepo) Finish(ctx context.Context, id uuid.UUID, res convert.Result) error {
	status := constants.JobStatusFor(res.Status)
	tag, err := r.pool.Exec(ctx, `
UPDATE conversion_job
SET status = $2, strategy = $3, method = $4, confidence = $5, used_fallback = $6, elapsed_ms = $7,
    extracted_text = $8, error_code = $9, error_message = $10, finished_at = $11
WHERE id = $1`,
		id, string(status), string(res.Strategy), res.Method, res.Confidence, res.UsedFallback, res.ElapsedMs,
		res.ExtractedText, string(res.ErrorCode), res.ErrorMessage, time.Now().UTC())
	if err != nil {
		r.logger.Error("conversion_job finish failed", "job_id", id, "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	r.logger.Info("conversion_job finished", "job_id", id, "status", status, "method", res.Method)
	return nil
}

func (r *pgJobRepo) Get(ctx context.Context, id uuid.UUID) (*ConversionJob, error) {
	var (
		job    ConversionJob
		status string
	)
	err := r.pool.QueryRow(ctx, `
SELECT id, tenant_id, document_id, request_id, filename, content_type, status, strategy, method, confidence,
       used_fallback, elapsed_ms, extracted_text, error_code, error_message, created_at, started_at, finished_at
FROM conversion_job WHERE id = $1`, id).Scan(
		&job.ID, &job.TenantID, &job.DocumentID, &job.RequestID, &job.Filename, &job.ContentType, &status,
		&job.Strategy, &job.Method, &job.Confidence, &job.UsedFallback, &job.ElapsedMs, &job.ExtractedText,
		&job.ErrorCode, &job.ErrorMessage, &job.CreatedAt, &job.StartedAt, &job.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversion_job %s: %w", id, err)
	}
	job.Status = constants.JobStatus(status)
	return &job, nil
}
