package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/media-converter/internal/common"
	"github.com/joseph-ayodele/media-converter/internal/core"
	coreasync "github.com/joseph-ayodele/media-converter/internal/core/async"
	repo "github.com/joseph-ayodele/media-converter/internal/repository"
	"github.com/joseph-ayodele/media-converter/internal/server"
	"github.com/joseph-ayodele/media-converter/internal/services/conversion"
	"github.com/joseph-ayodele/media-converter/internal/upstream"
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(2)
	}
	logger := common.NewLogger(os.Stdout, cfg.Server.LogFormat, cfg.Server.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(2)
	}
	addr := cfg.Server.GRPCAddr
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := core.NewEngine(ctx, cfg, core.Options{}, logger)
	if err != nil {
		logger.Error("failed to build conversion engine", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Warn("failed to close engine", "error", err)
		}
	}()

	opts := []conversion.Option{}

	jobs, closeJobs, err := openJobs(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open job store", "error", err)
		os.Exit(1)
	}
	defer closeJobs()

	var queue *coreasync.ConversionQueue
	if jobs != nil {
		queue = coreasync.NewConversionQueue(engine, jobs, logger,
			coreasync.WithWorkers(cfg.Queue.Workers),
			coreasync.WithQueueSize(cfg.Queue.Size),
			coreasync.WithProcessTimeout(cfg.Queue.ProcessTimeout),
		)
		opts = append(opts, conversion.WithJobs(jobs), conversion.WithQueue(queue))
	} else {
		logger.Warn("no database configured; job persistence and async submit are disabled")
	}

	if cfg.Upstream.BaseURL != "" {
		docs, err := upstream.NewClient(upstream.Config{
			BaseURL:      cfg.Upstream.BaseURL,
			DocumentPath: cfg.Upstream.DocumentPath,
			TenantHeader: cfg.Upstream.TenantHeader,
			Timeout:      cfg.Upstream.Timeout,
		}, nil, logger)
		if err != nil {
			logger.Error("failed to create upstream client", "error", err)
			os.Exit(1)
		}
		opts = append(opts, conversion.WithDocuments(docs))
	} else {
		logger.Warn("UPSTREAM_BASE_URL not set; document conversions are disabled")
	}

	svc := conversion.NewService(engine, logger, opts...)
	grpcServer, healthServer := server.New(svc, logger, grpc.MaxRecvMsgSize(96<<20))

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", addr, "error", err)
		os.Exit(1)
	}
	logger.Info("media-converter listening", "addr", addr)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	grpcServer.GracefulStop()
	if queue != nil {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Queue.ProcessTimeout+10*time.Second)
		queue.Shutdown(sctx)
		cancel()
	}
}

// openJobs opens Postgres when a DSN is set, else sqlite when a path is set.
// With neither it returns a nil repository.
func openJobs(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (repo.ConversionJobRepository, func(), error) {
	switch {
	case cfg.DSN != "":
		pool, err := repo.Open(ctx, repo.Config{
			DSN:              cfg.DSN,
			MaxConns:         cfg.MaxConns,
			MinConns:         cfg.MinConns,
			MaxConnLifetime:  cfg.MaxConnLifetime,
			MaxConnIdleTime:  cfg.MaxConnIdleTime,
			DialTimeout:      cfg.DialTimeout,
			StatementTimeout: cfg.StatementTimeout,
		}, logger)
		if err != nil {
			return nil, func() {}, err
		}
		if err := repo.HealthCheck(ctx, pool, 5*time.Second, logger); err != nil {
			pool.Close()
			return nil, func() {}, err
		}
		if err := repo.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, func() {}, err
		}
		return repo.NewConversionJobRepository(pool, logger), func() { repo.Close(pool, logger) }, nil

	case cfg.SQLitePath != "":
		db, err := repo.OpenSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, func() {}, err
		}
		if err := repo.EnsureSQLiteSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, func() {}, err
		}
		return repo.NewSQLiteConversionJobRepository(db, logger), closeSQL(db, logger), nil
	}
	return nil, func() {}, nil
}

func closeSQL(db *sql.DB, logger *slog.Logger) func() {
	return func() {
		if err := db.Close(); err != nil {
			logger.Warn("failed to close sqlite database", "error", err)
		}
	}
}
