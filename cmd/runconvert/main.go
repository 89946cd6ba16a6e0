// Command runconvert converts one local file and prints the result as JSON.
// With -addr it calls a running media-converter instead of converting in process.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/media-converter/constants"
	"github.com/joseph-ayodele/media-converter/internal/common"
	"github.com/joseph-ayodele/media-converter/internal/core"
	"github.com/joseph-ayodele/media-converter/internal/core/classify"
	"github.com/joseph-ayodele/media-converter/internal/core/convert"
	"github.com/joseph-ayodele/media-converter/internal/core/media"
	"github.com/joseph-ayodele/media-converter/internal/server"
	"github.com/joseph-ayodele/media-converter/internal/services/conversion"
)

func main() {
	var (
		contentType = flag.String("type", "", "content type; guessed from the extension when empty")
		strategy    = flag.String("strategy", "", "force a strategy: TEXT_ONLY, OCR, OCR_WITH_FALLBACK, SPEECH")
		tenant      = flag.String("tenant", "local", "tenant id")
		addr        = flag.String("addr", "", "media-converter grpc address; empty converts locally")
		timeout     = flag.Duration("timeout", 3*time.Minute, "overall timeout")
	)
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: runconvert [flags] <file>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg, err := common.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := common.NewLogger(os.Stderr, cfg.Server.LogFormat, cfg.Server.LogLevel)
	slog.SetDefault(logger)

	st, err := conversion.ParseStrategy(*strategy)
	if err != nil {
		logger.Error("invalid strategy", "strategy", *strategy, "error", err)
		os.Exit(2)
	}
	ct := *contentType
	if ct == "" {
		ct = constants.MIMEFromExt(filepath.Ext(path))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var out any
	if *addr != "" {
		out, err = remote(ctx, *addr, *tenant, path, ct, string(st))
	} else {
		out, err = local(ctx, cfg, logger, *tenant, path, ct, st)
	}
	if err != nil {
		logger.Error("conversion failed", "file", path, "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Error("failed to write result", "error", err)
		os.Exit(1)
	}
}

func local(ctx context.Context, cfg *common.Config, logger *slog.Logger, tenant, path, ct string, st classify.Strategy) (convert.Result, error) {
	if err := cfg.Validate(); err != nil {
		return convert.Result{}, err
	}
	engine, err := core.NewEngine(ctx, cfg, core.Options{}, logger)
	if err != nil {
		return convert.Result{}, err
	}
	defer engine.Close()

	d, err := media.NewFileDescriptor(uuid.NewString(), path, ct)
	if err != nil {
		return convert.Result{}, err
	}
	req := convert.Request{RequestID: uuid.NewString(), TenantID: tenant}
	if st != "" {
		return engine.ConvertAs(ctx, req, d, st), nil
	}
	return engine.Convert(ctx, req, d), nil
}

func remote(ctx context.Context, addr, tenant, path, ct, st string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	in, err := structpb.NewStruct(map[string]any{
		"data":         base64.StdEncoding.EncodeToString(data),
		"filename":     filepath.Base(path),
		"content_type": ct,
		"strategy":     st,
	})
	if err != nil {
		return nil, err
	}
	ctx = metadata.AppendToOutgoingContext(ctx, server.TenantHeader, tenant, server.RequestIDHeader, uuid.NewString())
	res, err := server.NewConversionServiceClient(conn).Convert(ctx, in, grpc.MaxCallSendMsgSize(96<<20))
	if err != nil {
		return nil, err
	}
	b, err := protojson.Marshal(res)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
