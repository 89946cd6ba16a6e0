package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/media-converter/constants"
	"github.com/joseph-ayodele/media-converter/internal/core/convert"
)

// timestamps are unix milliseconds in sqlite
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversion_job (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL,
	document_id    TEXT NOT NULL,
	request_id     TEXT NOT NULL DEFAULT '',
	filename       TEXT NOT NULL DEFAULT '',
	content_type   TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	strategy       TEXT NOT NULL DEFAULT '',
	method         TEXT NOT NULL DEFAULT '',
	confidence     INTEGER,
	used_fallback  INTEGER NOT NULL DEFAULT 0,
	elapsed_ms     INTEGER NOT NULL DEFAULT 0,
	extracted_text TEXT NOT NULL DEFAULT '',
	error_code     TEXT NOT NULL DEFAULT '',
	error_message  TEXT NOT NULL DEFAULT '',
	created_at     INTEGER NOT NULL,
	started_at     INTEGER,
	finished_at    INTEGER
);
CREATE INDEX IF NOT EXISTS conversion_job_tenant_document_idx ON conversion_job (tenant_id, document_id);`

type sqliteJobRepo struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteConversionJobRepository stores jobs in an embedded database.
func NewSQLiteConversionJobRepository(db *sql.DB, logger *slog.Logger) ConversionJobRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &sqliteJobRepo{db: db, logger: logger}
}

// EnsureSQLiteSchema creates conversion_job when missing.
func EnsureSQLiteSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, sqliteSchema)
	return err
}

func (r *sqliteJobRepo) Create(ctx context.Context, in NewJob) (*ConversionJob, error) {
	job := &ConversionJob{
		ID:          uuid.New(),
		TenantID:    in.TenantID,
		DocumentID:  in.DocumentID,
		RequestID:   in.RequestID,
		Filename:    in.Filename,
		ContentType: in.ContentType,
		Status:      constants.JobStatusQueued,
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO conversion_job (id, tenant_id, document_id, request_id, filename, content_type, status, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID.String(), job.TenantID, job.DocumentID, job.RequestID, job.Filename, job.ContentType,
		string(job.Status), job.CreatedAt.UnixMilli())
	if err != nil {
		r.logger.Error("conversion_job create failed", "document_id", in.DocumentID, "error", err)
		return nil, err
	}
	r.logger.Info("conversion_job created", "job_id", job.ID, "document_id", in.DocumentID, "tenant_id", in.TenantID)
	return job, nil
}

func (r *sqliteJobRepo) Start(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE conversion_job SET status = ?, started_at = ? WHERE id = ?`,
		string(constants.JobStatusRunning), time.Now().UnixMilli(), id.String())
	if err != nil {
		r.logger.Error("conversion_job start failed", "job_id", id, "error", err)
		return err
	}
	return requireRow(res)
}

func (r *sqliteJobRepo) Finish(ctx context.Context, id uuid.UUID, out convert.Result) error {
	status := constants.JobStatusFor(out.Status)
	var conf sql.NullInt64
	if out.Confidence != nil {
		conf = sql.NullInt64{Int64: int64(*out.Confidence), Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE conversion_job
SET status = ?, strategy = ?, method = ?, confidence = ?, used_fallback = ?, elapsed_ms = ?,
    extracted_text = ?, error_code = ?, error_message = ?, finished_at = ?
WHERE id = ?`,
		string(status), string(out.Strategy), out.Method, conf, out.UsedFallback, out.ElapsedMs,
		out.ExtractedText, string(out.ErrorCode), out.ErrorMessage, time.Now().UnixMilli(), id.String())
	if err != nil {
		r.logger.Error("conversion_job finish failed", "job_id", id, "error", err)
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	r.logger.Info("conversion_job finished", "job_id", id, "status", status, "method", out.Method)
	return nil
}

func (r *sqliteJobRepo) Get(ctx context.Context, id uuid.UUID) (*ConversionJob, error) {
	var (
		job               ConversionJob
		rawID, status     string
		conf              sql.NullInt64
		created           int64
		started, finished sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, document_id, request_id, filename, content_type, status, strategy, method, confidence,
       used_fallback, elapsed_ms, extracted_text, error_code, error_message, created_at, started_at, finished_at
FROM conversion_job WHERE id = ?`, id.String()).Scan(
		&rawID, &job.TenantID, &job.DocumentID, &job.RequestID, &job.Filename, &job.ContentType, &status,
		&job.Strategy, &job.Method, &conf, &job.UsedFallback, &job.ElapsedMs, &job.ExtractedText,
		&job.ErrorCode, &job.ErrorMessage, &created, &started, &finished,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversion_job %s: %w", id, err)
	}
	if job.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("conversion_job %q: bad id: %w", rawID, err)
	}
	job.Status = constants.JobStatus(status)
	if conf.Valid {
		v := int(conf.Int64)
		job.Confidence = &v
	}
	job.CreatedAt = time.UnixMilli(created).UTC()
	job.StartedAt = millisPtr(started)
	job.FinishedAt = millisPtr(finished)
	return &job, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

func millisPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
