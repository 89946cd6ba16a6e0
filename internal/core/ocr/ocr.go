package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/media-converter/constants"
	"github.com/joseph-ayodele/media-converter/internal/core/extract"
	"github.com/joseph-ayodele/media-converter/internal/core/media"
	"github.com/joseph-ayodele/media-converter/internal/core/runner"
)

const Name = "tesseract-ocr"

type Config struct {
	Languages   []string // default ["eng"]
	TessdataDir string
	PSM         int // e.g., 6 is good for uniform block of text

	Pdftoppm string // binary name or absolute path; if empty -> "pdftoppm"
	DPI      int    // rasterization DPI for scanned PDFs, default 300
	MaxPages int    // 0 = no limit

	HeicConverter    string // heif-convert | magick | sips
	ArtifactCacheDir string // empty disables the converted-image cache

	MaxBytes int64 // 0 = no limit
}

// Backend recognizes text in images and scanned PDFs.
type Backend struct {
	cfg        Config
	recognizer Recognizer
	runner     runner.Runner
	logger     *slog.Logger
}

func NewBackend(cfg Config, recognizer Recognizer, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"eng"}
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if recognizer == nil {
		recognizer = NewTesseract(cfg.Languages, cfg.PSM, cfg.TessdataDir)
	}
	return &Backend{cfg: cfg, recognizer: recognizer, runner: runner.Exec{}, logger: logger}
}

// WithRunner swaps the command runner (tests).
func (b *Backend) WithRunner(r runner.Runner) *Backend {
	b.runner = r
	return b
}

func (b *Backend) Name() string { return Name }

func (b *Backend) Extract(ctx context.Context, d media.Descriptor) (extract.Outcome, error) {
	start := time.Now()
	ct := constants.NormalizeMIME(d.ContentType)
	b.logger.Debug("starting ocr extraction", "id", d.ID, "content_type", ct)

	var (
		pages []Recognition
		warns []string
		err   error
	)
	if ct == constants.MIMETypePDF {
		pages, warns, err = b.extractPDF(ctx, d)
	} else {
		var rec Recognition
		rec, warns, err = b.extractImage(ctx, d, ct)
		pages = []Recognition{rec}
	}
	if err != nil {
		b.logger.Warn("ocr extraction failed", "id", d.ID, "content_type", ct, "error", err)
		return extract.Outcome{}, extract.Fail(Name, err, true)
	}

	texts := make([]string, 0, len(pages))
	for _, p := range pages {
		texts = append(texts, p.Text)
	}
	text := Normalize(strings.Join(texts, "\n\f\n"))
	conf := meanConfidence(pages)

	b.logger.Debug("ocr extraction done",
		"id", d.ID,
		"pages", len(pages),
		"chars", len(text),
		"confidence", conf.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return extract.Outcome{
		Text:       text,
		Confidence: conf,
		Backend:    Name,
		Pages:      len(pages),
		Language:   strings.Join(b.cfg.Languages, "+"),
		Note:       strings.Join(warns, "; "),
	}, nil
}

func (b *Backend) extractImage(ctx context.Context, d media.Descriptor, ct string) (Recognition, []string, error) {
	data, err := d.ReadAll(ctx, b.cfg.MaxBytes)
	if err != nil {
		return Recognition{}, nil, fmt.Errorf("read image: %w", err)
	}
	var warns []string
	if constants.IsHEIC(ct) {
		data, err = b.heicToPNG(ctx, data)
		if err != nil {
			return Recognition{}, nil, err
		}
		warns = append(warns, "heic converted to png")
	}
	data, err = normalizeImage(ct, data)
	if err != nil {
		return Recognition{}, nil, err
	}
	rec, err := b.recognizer.Recognize(ctx, data)
	if err != nil {
		return Recognition{}, warns, fmt.Errorf("recognize: %w", err)
	}
	return rec, warns, nil
}

// meanConfidence averages the known page confidences; unknown when no page has one.
func meanConfidence(pages []Recognition) extract.Confidence {
	var sum, n int
	for _, p := range pages {
		if p.Confidence.Known {
			sum += p.Confidence.Value
			n++
		}
	}
	if n == 0 {
		return extract.UnknownConfidence
	}
	return extract.KnownConfidence(sum / n)
}
