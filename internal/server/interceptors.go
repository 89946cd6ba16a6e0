package server

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/media-converter/internal/common"
)

const (
	TenantHeader    = "x-tenant-id"
	RequestIDHeader = "x-request-id"
)

// RequestContext copies tenant and request ids from incoming metadata into the context.
func RequestContext() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		ctx = common.WithTenantID(ctx, firstValue(md, TenantHeader))
		rid := firstValue(md, RequestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		ctx = common.WithRequestID(ctx, rid)
		return next(ctx, req)
	}
}

// Logging logs each call with its duration and status code.
func Logging(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		attrs := []any{
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", common.RequestIDFromContext(ctx),
		}
		if err != nil {
			logger.Warn("grpc call failed", append(attrs, "error", err)...)
		} else {
			logger.Info("grpc call", attrs...)
		}
		return resp, err
	}
}

func firstValue(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}
