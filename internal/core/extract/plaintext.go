package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/media-converter/constants"
	"github.com/joseph-ayodele/media-converter/internal/core/media"
	"github.com/joseph-ayodele/media-converter/internal/core/runner"
)

const PlainTextName = "plain-text"

// ErrMalformed marks input that does not parse as its declared format.
var ErrMalformed = errors.New("malformed document")

type PlainTextConfig struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	MaxBytes  int64  // read cap per stream, 0 = no limit
}

// PlainText extracts text structurally from text-bearing formats. It either
// fully succeeds or fails, so its confidence is fixed at 100.
type PlainText struct {
	cfg    PlainTextConfig
	runner runner.Runner
	logger *slog.Logger
}

func NewPlainText(cfg PlainTextConfig, logger *slog.Logger) *PlainText {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	return &PlainText{cfg: cfg, runner: runner.Exec{}, logger: logger}
}

// WithRunner swaps the command runner (tests).
func (p *PlainText) WithRunner(r runner.Runner) *PlainText {
	p.runner = r
	return p
}

func (p *PlainText) Name() string { return PlainTextName }

func (p *PlainText) Extract(ctx context.Context, d media.Descriptor) (Outcome, error) {
	start := time.Now()
	ct := constants.NormalizeMIME(d.ContentType)
	p.logger.Debug("starting plain text extraction", "id", d.ID, "content_type", ct)

	if ct == constants.MIMETypePDF {
		text, pages, err := p.pdfToText(ctx, d)
		if err != nil {
			return Outcome{}, Fail(PlainTextName, err, true)
		}
		return p.outcome(text, pages, "pdf text layer", start), nil
	}

	data, err := d.ReadAll(ctx, p.cfg.MaxBytes)
	if err != nil {
		return Outcome{}, Fail(PlainTextName, fmt.Errorf("read input: %w", err), true)
	}

	var (
		text string
		note string
	)
	switch ct {
	case constants.MIMETypeDOCX:
		text, err = docxText(data)
	case constants.MIMETypePPTX:
		text, err = pptxText(data)
	case constants.MIMETypeODT:
		text, err = odtText(data)
	case constants.MIMETypeXLSX:
		text, err = xlsxText(data)
	case constants.MIMETypeHTML, "application/xhtml+xml", constants.MIMETypeXML, "text/xml":
		text, err = markupText(data)
	case constants.MIMETypeRTF, "text/rtf":
		text = rtfText(data)
	case constants.MIMETypeJSON:
		text, note = jsonText(data)
	case constants.MIMETypeDOC, constants.MIMETypeXLS, constants.MIMETypePPT:
		text = printableRuns(data)
		note = "legacy binary format: printable runs only"
	default:
		text, note = decodeText(data)
	}
	if err != nil {
		p.logger.Warn("plain text parse failed", "id", d.ID, "content_type", ct, "error", err)
		return Outcome{}, Fail(PlainTextName, fmt.Errorf("%w: %v", ErrMalformed, err), true)
	}
	return p.outcome(text, 0, note, start), nil
}

func (p *PlainText) outcome(text string, pages int, note string, start time.Time) Outcome {
	text = strings.TrimSpace(text)
	p.logger.Debug("plain text extraction done", "chars", len(text), "pages", pages, "duration_ms", time.Since(start).Milliseconds())
	return Outcome{
		Text:       text,
		Confidence: KnownConfidence(100),
		Backend:    PlainTextName,
		Pages:      pages,
		Note:       note,
	}
}

func (p *PlainText) pdfToText(ctx context.Context, d media.Descriptor) (string, int, error) {
	path, cleanup, err := d.Spool(ctx, p.cfg.MaxBytes, ".pdf")
	defer cleanup()
	if err != nil {
		return "", 0, fmt.Errorf("spool pdf: %w", err)
	}
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := p.runner.Run(ctx, p.cfg.Pdftotext, p.logger, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", 0, fmt.Errorf("pdftotext: %w: %s", err, runner.Truncate(string(errb), 512))
	}
	text := string(out)
	// A form-feed \f is used as page separator by default
	pages := 1 + strings.Count(strings.TrimRight(text, "\f\n"), "\f")
	return text, pages, nil
}
