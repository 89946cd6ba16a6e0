// Package conversion ties the upstream metadata lookup, the orchestrator, the
// job repository and the async queue together.
package conversion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/media-converter/constants"
	"github.com/joseph-ayodele/media-converter/internal/async"
	"github.com/joseph-ayodele/media-converter/internal/common"
	"github.com/joseph-ayodele/media-converter/internal/core/classify"
	"github.com/joseph-ayodele/media-converter/internal/core/convert"
	"github.com/joseph-ayodele/media-converter/internal/core/media"
	"github.com/joseph-ayodele/media-converter/internal/repository"
	"github.com/joseph-ayodele/media-converter/internal/upstream"
)

// Converter is the orchestrator surface the service drives.
type Converter interface {
	Convert(ctx context.Context, req convert.Request, d media.Descriptor) convert.Result
	ConvertAs(ctx context.Context, req convert.Request, d media.Descriptor, s classify.Strategy) convert.Result
}

// Service handles conversion business logic. Documents, jobs and queue are
// optional; operations needing a missing one fail with ErrUnavailable.
type Service struct {
	conv      Converter
	documents upstream.DocumentFetcher
	jobs      repository.ConversionJobRepository
	queue     async.Queue
	http      *http.Client
	logger    *slog.Logger
}

type Option func(*Service)

func WithDocuments(f upstream.DocumentFetcher) Option {
	return func(s *Service) { s.documents = f }
}

func WithJobs(r repository.ConversionJobRepository) Option {
	return func(s *Service) { s.jobs = r }
}

func WithQueue(q async.Queue) Option {
	return func(s *Service) { s.queue = q }
}

// WithHTTPClient sets the client used to download document content.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.http = c }
}

func NewService(conv Converter, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{conv: conv, logger: logger}
	for _, o := range opts {
		o(s)
	}
	if s.http == nil {
		s.http = &http.Client{Timeout: 2 * time.Minute}
	}
	return s
}

// BytesRequest is an inline conversion.
type BytesRequest struct {
	Request     convert.Request
	DocumentID  string
	Filename    string
	ContentType string
	Data        []byte
	Strategy    classify.Strategy
}

// ConvertBytes converts an inline payload. The result is persisted when a
// job repository is configured.
func (s *Service) ConvertBytes(ctx context.Context, in BytesRequest) (convert.Result, error) {
	if err := validateStrategy(in.Strategy); err != nil {
		return convert.Result{}, err
	}
	id := in.DocumentID
	if id == "" {
		id = uuid.NewString()
	}
	d := media.Descriptor{
		ID:          id,
		Filename:    in.Filename,
		ContentType: contentTypeOf(in.ContentType, in.Filename),
		Size:        int64(len(in.Data)),
		Source:      media.BytesSource(in.Data),
	}
	return s.run(ctx, in.Request, d, in.Strategy)
}

// ConvertDocument looks the document up upstream and converts its content.
func (s *Service) ConvertDocument(ctx context.Context, req convert.Request, documentID string, strategy classify.Strategy) (convert.Result, error) {
	if err := validateStrategy(strategy); err != nil {
		return convert.Result{}, err
	}
	d, err := s.describe(ctx, req, documentID)
	if err != nil {
		return convert.Result{}, err
	}
	return s.run(ctx, req, d, strategy)
}

// Submit records a QUEUED job for the document and hands it to the queue.
func (s *Service) Submit(ctx context.Context, req convert.Request, documentID string, strategy classify.Strategy) (*repository.ConversionJob, error) {
	if s.jobs == nil || s.queue == nil {
		return nil, common.NewAppError("UNAVAILABLE", "async conversion is not configured", common.ErrUnavailable)
	}
	if err := validateStrategy(strategy); err != nil {
		return nil, err
	}
	d, err := s.describe(ctx, req, documentID)
	if err != nil {
		return nil, err
	}
	job, err := s.jobs.Create(ctx, newJob(req, d))
	if err != nil {
		return nil, common.NewAppError("DATABASE", "create conversion job", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}
	err = s.queue.Enqueue(ctx, async.Job{JobID: job.ID, Request: req, Descriptor: d, Strategy: strategy})
	if err != nil {
		s.logger.Error("failed to enqueue conversion job", "job_id", job.ID, "error", err)
		if errors.Is(err, async.ErrQueueClosed) {
			err = fmt.Errorf("%w: %v", common.ErrUnavailable, err)
		}
		s.failJob(job.ID, err)
		return nil, common.NewAppError("ENQUEUE", "enqueue conversion job", err)
	}
	s.logger.Info("conversion job submitted", "job_id", job.ID, "document_id", documentID, "tenant_id", req.TenantID)
	return job, nil
}

// GetJob returns a job owned by tenantID. Jobs of other tenants are reported
// as not found.
func (s *Service) GetJob(ctx context.Context, tenantID string, id uuid.UUID) (*repository.ConversionJob, error) {
	if s.jobs == nil {
		return nil, common.NewAppError("UNAVAILABLE", "job store is not configured", common.ErrUnavailable)
	}
	job, err := s.jobs.Get(ctx, id)
	if errors.Is(err, repository.ErrJobNotFound) {
		return nil, common.NewAppError("NOT_FOUND", fmt.Sprintf("job %s not found", id), common.ErrNotFound)
	}
	if err != nil {
		return nil, common.NewAppError("DATABASE", "get conversion job", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}
	if job.TenantID != tenantID {
		s.logger.Warn("job requested by another tenant", "job_id", id, "tenant_id", tenantID)
		return nil, common.NewAppError("NOT_FOUND", fmt.Sprintf("job %s not found", id), common.ErrNotFound)
	}
	return job, nil
}

func (s *Service) describe(ctx context.Context, req convert.Request, documentID string) (media.Descriptor, error) {
	if s.documents == nil {
		return media.Descriptor{}, common.NewAppError("UNAVAILABLE", "document lookup is not configured", common.ErrUnavailable)
	}
	doc, err := s.documents.GetDocument(ctx, req.TenantID, documentID)
	switch {
	case errors.Is(err, upstream.ErrDocumentNotFound):
		return media.Descriptor{}, common.NewAppError("NOT_FOUND", fmt.Sprintf("document %s not found", documentID), common.ErrNotFound)
	case errors.Is(err, upstream.ErrAccessDenied):
		return media.Descriptor{}, common.NewAppError("ACCESS_DENIED", fmt.Sprintf("access to document %s denied", documentID), common.ErrUnauthorized)
	case err != nil:
		return media.Descriptor{}, common.NewAppError("UPSTREAM", "get document", fmt.Errorf("%w: %v", common.ErrUnavailable, err))
	}

	src := media.NewHTTPSource(doc.DownloadURL, s.http, s.logger)
	size, err := src.Length(ctx)
	if err != nil {
		s.logger.Warn("content length unavailable", "document_id", documentID, "error", err)
		size = media.UnknownSize
	}
	return media.Descriptor{
		ID:          doc.ID,
		Filename:    doc.Filename,
		ContentType: contentTypeOf(doc.ContentType, doc.Filename),
		Size:        size,
		Source:      src,
	}, nil
}

// run converts synchronously and records the job when a repository is set.
// Repository failures are logged; the conversion result is still returned.
func (s *Service) run(ctx context.Context, req convert.Request, d media.Descriptor, strategy classify.Strategy) (convert.Result, error) {
	var jobID uuid.UUID
	if s.jobs != nil {
		job, err := s.jobs.Create(ctx, newJob(req, d))
		if err != nil {
			s.logger.Error("failed to record conversion job", "document_id", d.ID, "error", err)
		} else {
			jobID = job.ID
			if err := s.jobs.Start(ctx, jobID); err != nil {
				s.logger.Error("failed to mark job running", "job_id", jobID, "error", err)
			}
		}
	}

	var res convert.Result
	if strategy != "" {
		res = s.conv.ConvertAs(ctx, req, d, strategy)
	} else {
		res = s.conv.Convert(ctx, req, d)
	}

	if jobID != uuid.Nil {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := s.jobs.Finish(fctx, jobID, res); err != nil {
			s.logger.Error("failed to record job result", "job_id", jobID, "error", err)
		}
	}
	return res, nil
}

func (s *Service) failJob(id uuid.UUID, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res := convert.Result{
		Status:       constants.ConversionFailed,
		ErrorCode:    convert.BackendFailure,
		ErrorMessage: "enqueue failed: " + cause.Error(),
	}
	if err := s.jobs.Finish(ctx, id, res); err != nil {
		s.logger.Error("failed to mark job failed", "job_id", id, "error", err)
	}
}

func newJob(req convert.Request, d media.Descriptor) repository.NewJob {
	return repository.NewJob{
		TenantID:    req.TenantID,
		DocumentID:  d.ID,
		RequestID:   req.RequestID,
		Filename:    d.Filename,
		ContentType: d.ContentType,
	}
}

// contentTypeOf prefers the declared type and falls back to the file extension.
func contentTypeOf(declared, filename string) string {
	if ct := constants.NormalizeMIME(declared); ct != "" && ct != "application/octet-stream" {
		return declared
	}
	if ct := constants.MIMEFromExt(filepath.Ext(filename)); ct != "" {
		return ct
	}
	return declared
}

// ParseStrategy accepts an empty string, meaning classify by content type.
func ParseStrategy(s string) (classify.Strategy, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	st, err := classify.Parse(s)
	if err != nil {
		return "", common.NewAppError("INVALID_STRATEGY", err.Error(), common.ErrInvalidInput)
	}
	return st, nil
}

func validateStrategy(s classify.Strategy) error {
	if s == "" {
		return nil
	}
	_, err := ParseStrategy(string(s))
	return err
}
