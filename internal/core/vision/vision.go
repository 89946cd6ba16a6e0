package vision

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joseph-ayodele/media-converter/constants"
	"github.com/joseph-ayodele/media-converter/internal/core/extract"
	"github.com/joseph-ayodele/media-converter/internal/core/gemini"
	"github.com/joseph-ayodele/media-converter/internal/core/media"
)

const Name = "vision-ocr"

const instruction = `You are a document OCR engine. Transcribe every piece of text visible in the supplied image or document verbatim.
Keep the reading order and line breaks. Do not translate, summarize, correct or explain.
Respond with JSON only: {"text": "<transcription>", "confidence": <integer 0-100 estimating transcription accuracy>}.
If there is no legible text respond with {"text": "", "confidence": 0}.`

type Config struct {
	MaxBytes int64 // 0 = no limit
}

// Backend is the secondary OCR path backed by a multimodal model.
// It reads its own stream and does not depend on the primary backend having run.
type Backend struct {
	cfg    Config
	gen    gemini.Generator
	logger *slog.Logger
}

func NewBackend(cfg Config, gen gemini.Generator, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{cfg: cfg, gen: gen, logger: logger}
}

func (b *Backend) Name() string { return Name }

func (b *Backend) Extract(ctx context.Context, d media.Descriptor) (extract.Outcome, error) {
	start := time.Now()
	data, err := d.ReadAll(ctx, b.cfg.MaxBytes)
	if err != nil {
		return extract.Outcome{}, extract.Fail(Name, fmt.Errorf("read input: %w", err), true)
	}
	if len(data) == 0 {
		return extract.Outcome{}, extract.Fail(Name, fmt.Errorf("empty input"), false)
	}

	mimeType := constants.NormalizeMIME(d.ContentType)
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	raw, err := b.gen.Generate(ctx, gemini.Request{
		Instruction: instruction,
		Prompt:      "Transcribe the text in this file.",
		MIMEType:    mimeType,
		Data:        data,
		JSON:        true,
	})
	if err != nil {
		b.logger.Warn("vision ocr failed", "id", d.ID, "mime_type", mimeType, "error", err)
		return extract.Outcome{}, extract.Fail(Name, err, true)
	}
	text, conf, err := gemini.ParseTextResponse(raw)
	if err != nil {
		return extract.Outcome{}, extract.Fail(Name, err, true)
	}

	b.logger.Debug("vision ocr done",
		"id", d.ID,
		"chars", len(text),
		"confidence", conf.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return extract.Outcome{
		Text:       text,
		Confidence: conf,
		Backend:    Name,
		Pages:      1,
	}, nil
}
