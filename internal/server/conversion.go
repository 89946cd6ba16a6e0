package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/media-converter/internal/common"
	"github.com/joseph-ayodele/media-converter/internal/core/classify"
	"github.com/joseph-ayodele/media-converter/internal/core/convert"
	"github.com/joseph-ayodele/media-converter/internal/repository"
	"github.com/joseph-ayodele/media-converter/internal/services/conversion"
)

// maxInlineBytes bounds the base64-decoded payload of Convert.
const maxInlineBytes = 64 << 20

// Conversions is the service layer behind the grpc handlers.
type Conversions interface {
	ConvertBytes(ctx context.Context, in conversion.BytesRequest) (convert.Result, error)
	ConvertDocument(ctx context.Context, req convert.Request, documentID string, strategy classify.Strategy) (convert.Result, error)
	Submit(ctx context.Context, req convert.Request, documentID string, strategy classify.Strategy) (*repository.ConversionJob, error)
	GetJob(ctx context.Context, tenantID string, id uuid.UUID) (*repository.ConversionJob, error)
}

type ConversionServer struct {
	svc    Conversions
	logger *slog.Logger
}

var _ ConversionServiceServer = (*ConversionServer)(nil)

func NewConversionServer(svc Conversions, logger *slog.Logger) *ConversionServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversionServer{svc: svc, logger: logger}
}

var strategies = []string{
	string(classify.TextOnly), string(classify.OCR), string(classify.OCRWithFallback), string(classify.Speech),
}

// Convert converts inline content.
// Request fields: data (base64), filename, content_type, document_id, strategy.
func (s *ConversionServer) Convert(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	data, err := base64.StdEncoding.DecodeString(str(in, "data"))
	if err != nil {
		return nil, common.InvalidArgumentErrorf("data must be base64: %v", err)
	}
	v := common.NewValidator().
		Field("data", data, common.NotEmpty).
		Field("filename", str(in, "filename"), common.MaxLen(512)).
		Field("strategy", str(in, "strategy"), common.OneOf(strategies...))
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}
	if len(data) > maxInlineBytes {
		return nil, common.InvalidArgumentErrorf("data exceeds %d bytes; use ConvertDocument", maxInlineBytes)
	}
	strategy, err := conversion.ParseStrategy(str(in, "strategy"))
	if err != nil {
		return nil, common.ToStatus(err)
	}

	res, err := s.svc.ConvertBytes(ctx, conversion.BytesRequest{
		Request:     requestFrom(ctx),
		DocumentID:  str(in, "document_id"),
		Filename:    str(in, "filename"),
		ContentType: str(in, "content_type"),
		Data:        data,
		Strategy:    strategy,
	})
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return toStruct(res)
}

// ConvertDocument converts a document known to the upstream service.
// Request fields: document_id, strategy.
func (s *ConversionServer) ConvertDocument(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	documentID, strategy, err := documentArgs(in)
	if err != nil {
		return nil, err
	}
	res, err := s.svc.ConvertDocument(ctx, requestFrom(ctx), documentID, strategy)
	if err != nil {
		s.logger.Warn("convert document failed", "document_id", documentID, "error", err)
		return nil, common.ToStatus(err)
	}
	return toStruct(res)
}

// Submit queues a document conversion and returns the QUEUED job.
// Request fields: document_id, strategy.
func (s *ConversionServer) Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	documentID, strategy, err := documentArgs(in)
	if err != nil {
		return nil, err
	}
	job, err := s.svc.Submit(ctx, requestFrom(ctx), documentID, strategy)
	if err != nil {
		s.logger.Warn("submit failed", "document_id", documentID, "error", err)
		return nil, common.ToStatus(err)
	}
	return toStruct(jobView(job))
}

// GetJob returns a job of the calling tenant. Request fields: job_id.
func (s *ConversionServer) GetJob(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	v := common.NewValidator().Field("job_id", str(in, "job_id"), common.Required, common.UUID)
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}
	id := uuid.MustParse(str(in, "job_id"))
	job, err := s.svc.GetJob(ctx, common.TenantIDFromContext(ctx), id)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return toStruct(jobView(job))
}

func documentArgs(in *structpb.Struct) (string, classify.Strategy, error) {
	documentID := str(in, "document_id")
	v := common.NewValidator().
		Field("document_id", documentID, common.Required, common.MaxLen(256)).
		Field("strategy", str(in, "strategy"), common.OneOf(strategies...))
	if err := common.ValidateAndReturnError(v); err != nil {
		return "", "", err
	}
	strategy, err := conversion.ParseStrategy(str(in, "strategy"))
	if err != nil {
		return "", "", common.ToStatus(err)
	}
	return documentID, strategy, nil
}

func requestFrom(ctx context.Context) convert.Request {
	return convert.Request{
		RequestID: common.RequestIDFromContext(ctx),
		TenantID:  common.TenantIDFromContext(ctx),
	}
}

func str(in *structpb.Struct, key string) string {
	if v, ok := in.GetFields()[key]; ok {
		return strings.TrimSpace(v.GetStringValue())
	}
	return ""
}

type job struct {
	ID         string          `json:"jobId"`
	DocumentID string          `json:"documentId"`
	Status     string          `json:"status"`
	CreatedAt  string          `json:"createdAt"`
	StartedAt  string          `json:"startedAt,omitempty"`
	FinishedAt string          `json:"finishedAt,omitempty"`
	Result     *convert.Result `json:"result,omitempty"`
}

func jobView(j *repository.ConversionJob) job {
	out := job{
		ID:         j.ID.String(),
		DocumentID: j.DocumentID,
		Status:     string(j.Status),
		CreatedAt:  j.CreatedAt.Format(time.RFC3339Nano),
	}
	if j.StartedAt != nil {
		out.StartedAt = j.StartedAt.Format(time.RFC3339Nano)
	}
	if j.FinishedAt != nil {
		out.FinishedAt = j.FinishedAt.Format(time.RFC3339Nano)
		out.Result = &convert.Result{
			ID:            j.DocumentID,
			ExtractedText: j.ExtractedText,
			Status:        j.ConversionStatus(),
			Method:        j.Method,
			Strategy:      classify.Strategy(j.Strategy),
			Confidence:    j.Confidence,
			UsedFallback:  j.UsedFallback,
			ElapsedMs:     j.ElapsedMs,
			ErrorCode:     convert.ErrorCode(j.ErrorCode),
			ErrorMessage:  j.ErrorMessage,
		}
	}
	return out
}

// toStruct converts a value through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, common.InternalErrorf("encode response: %v", err)
	}
	m := map[string]any{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, common.InternalErrorf("encode response: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, common.InternalErrorf("encode response: %v", err)
	}
	return out, nil
}
