// Package ingest converts files found on the local filesystem and writes each
// result next to its source as a JSON sidecar.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/media-converter/constants"
	"github.com/joseph-ayodele/media-converter/internal/core/classify"
	"github.com/joseph-ayodele/media-converter/internal/core/convert"
	"github.com/joseph-ayodele/media-converter/internal/core/media"
)

// SidecarSuffix is appended to a source path to name its result file.
const SidecarSuffix = ".convert.json"

// Converter is the orchestrator surface a batch drives.
type Converter interface {
	Convert(ctx context.Context, req convert.Request, d media.Descriptor) convert.Result
	ConvertAs(ctx context.Context, req convert.Request, d media.Descriptor, s classify.Strategy) convert.Result
}

type Config struct {
	TenantID    string
	AllowedExts map[string]struct{} // lowercased sans '.'; nil = every extension with a known content type
	SkipHidden  bool
	Force       bool              // convert even when the sidecar is up to date
	Strategy    classify.Strategy // empty = classify by content type
}

// Batch converts files one at a time.
type Batch struct {
	conv   Converter
	cfg    Config
	logger *slog.Logger
}

func NewBatch(conv Converter, cfg Config, logger *slog.Logger) *Batch {
	if logger == nil {
		logger = slog.Default()
	}
	return &Batch{conv: conv, cfg: cfg, logger: logger}
}

// FileResult summarizes one converted (or skipped) file.
type FileResult struct {
	Path         string
	HashHex      string
	Status       constants.ConversionStatus
	Strategy     classify.Strategy
	Method       string
	Confidence   *int
	UsedFallback bool
	ElapsedMs    int64
	Chars        int
	Skipped      bool
	Err          string
}

// SidecarPath names the result file for path.
func SidecarPath(path string) string { return path + SidecarSuffix }

// Accepts reports whether path is a candidate for conversion.
func (b *Batch) Accepts(path string) bool {
	if strings.HasSuffix(path, SidecarSuffix) {
		return false
	}
	if b.cfg.SkipHidden && IsHidden(path) {
		return false
	}
	ext := constants.NormalizeExt(filepath.Ext(path))
	if b.cfg.AllowedExts != nil {
		_, ok := b.cfg.AllowedExts[ext]
		return ok
	}
	return constants.MIMEFromExt(ext) != ""
}

// ConvertFile converts path and writes its sidecar. Conversion failures are
// recorded in the sidecar; only filesystem errors are returned.
func (b *Batch) ConvertFile(ctx context.Context, path string) (FileResult, error) {
	out := FileResult{Path: path}
	sidecar := SidecarPath(path)
	if !b.cfg.Force && upToDate(path, sidecar) {
		out.Skipped = true
		b.logger.Debug("sidecar up to date, skipping", "path", path)
		return out, nil
	}

	hash, err := hashFile(path)
	if err != nil {
		return out, err
	}
	out.HashHex = hash

	d, err := media.NewFileDescriptor(hash, path, constants.MIMEFromExt(filepath.Ext(path)))
	if err != nil {
		return out, err
	}
	req := convert.Request{RequestID: uuid.NewString(), TenantID: b.cfg.TenantID}
	var res convert.Result
	if b.cfg.Strategy != "" {
		res = b.conv.ConvertAs(ctx, req, d, b.cfg.Strategy)
	} else {
		res = b.conv.Convert(ctx, req, d)
	}
	out.Status = res.Status
	out.Strategy = res.Strategy
	out.Method = res.Method
	out.Confidence = res.Confidence
	out.UsedFallback = res.UsedFallback
	out.ElapsedMs = res.ElapsedMs
	out.Chars = utf8.RuneCountInString(res.ExtractedText)
	if !res.Succeeded() {
		out.Err = res.ErrorMessage
	}

	if err := writeSidecar(sidecar, res); err != nil {
		return out, err
	}
	b.logger.Info("file converted", "path", path, "status", res.Status, "method", res.Method, "elapsed_ms", res.ElapsedMs)
	return out, nil
}

// upToDate reports whether sidecar exists and is not older than path.
func upToDate(path, sidecar string) bool {
	sc, err := os.Stat(sidecar)
	if err != nil {
		return false
	}
	src, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !sc.ModTime().Before(src.ModTime())
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeSidecar writes through a temp file so readers never see partial JSON.
func writeSidecar(path string, res convert.Result) error {
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".convert-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write sidecar %s: %w", path, err)
	}
	return nil
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}
