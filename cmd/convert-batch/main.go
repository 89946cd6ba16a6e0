// Command convert-batch converts every supported file under a directory and
// writes <file>.convert.json next to each one. With -watch it keeps running and
// converts files as they appear.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joseph-ayodele/media-converter/internal/common"
	"github.com/joseph-ayodele/media-converter/internal/core"
	"github.com/joseph-ayodele/media-converter/internal/export"
	"github.com/joseph-ayodele/media-converter/internal/ingest"
	"github.com/joseph-ayodele/media-converter/internal/services/conversion"
)

func main() {
	var (
		root       = flag.String("root", "", "directory to convert (required)")
		exts       = flag.String("exts", "", "comma-separated extensions to include; empty = all known types")
		strategy   = flag.String("strategy", "", "force a strategy for every file")
		tenant     = flag.String("tenant", "local", "tenant id recorded in results")
		skipHidden = flag.Bool("skip-hidden", true, "skip dot files and directories")
		force      = flag.Bool("force", false, "reconvert files with an up-to-date sidecar")
		watch      = flag.Bool("watch", false, "keep watching the directory after the initial pass")
		debounce   = flag.Duration("debounce", 500*time.Millisecond, "wait for writes to settle before converting")
		report     = flag.String("report", "", "write an XLSX summary of the pass to this path")
	)
	flag.Parse()
	if strings.TrimSpace(*root) == "" {
		fmt.Fprintln(os.Stderr, "usage: convert-batch -root DIR [-watch]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := common.NewLogger(os.Stdout, cfg.Server.LogFormat, cfg.Server.LogLevel)
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(2)
	}
	st, err := conversion.ParseStrategy(*strategy)
	if err != nil {
		logger.Error("invalid strategy", "strategy", *strategy, "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := core.NewEngine(ctx, cfg, core.Options{}, logger)
	if err != nil {
		logger.Error("failed to build conversion engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	batch := ingest.NewBatch(engine, ingest.Config{
		TenantID:    *tenant,
		AllowedExts: extSet(*exts),
		SkipHidden:  *skipHidden,
		Force:       *force,
		Strategy:    st,
	}, logger)

	if *watch {
		err := batch.Watch(ctx, ingest.WatchConfig{Roots: []string{*root}, InitialScan: true, Debounce: *debounce})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("watch failed", "error", err)
			os.Exit(1)
		}
		return
	}

	results, stats, err := batch.ConvertDirectory(ctx, *root)
	if err != nil {
		logger.Error("directory conversion failed", "root", *root, "error", err)
		os.Exit(1)
	}
	for _, r := range results {
		if r.Err != "" {
			logger.Warn("file not converted", "path", r.Path, "error", r.Err)
		}
	}
	if *report != "" {
		b, err := export.BatchReportXLSX(results, logger)
		if err == nil {
			err = os.WriteFile(*report, b, 0o644)
		}
		if err != nil {
			logger.Error("failed to write report", "path", *report, "error", err)
			os.Exit(1)
		}
	}
	if stats.Failed > 0 {
		os.Exit(3)
	}
}

func extSet(s string) map[string]struct{} {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	out := map[string]struct{}{}
	for _, e := range strings.Split(s, ",") {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			out[e] = struct{}{}
		}
	}
	return out
}
