package speech

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/media-converter/constants"
	"github.com/joseph-ayodele/media-converter/internal/core/extract"
	"github.com/joseph-ayodele/media-converter/internal/core/gemini"
	"github.com/joseph-ayodele/media-converter/internal/core/media"
)

const Name = "speech-to-text"

type Config struct {
	Language string // BCP-47, default "en-US"
	MaxBytes int64  // 0 = no limit
}

// Audio is one transcription request.
type Audio struct {
	Data        []byte
	ContentType string
	Encoding    Encoding
	Language    string
}

type Transcript struct {
	Text       string
	Confidence extract.Confidence
}

// Transcriber turns audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, a Audio) (Transcript, error)
}

// Backend transcribes audio. Content types without a known encoding fail before any bytes are read.
type Backend struct {
	cfg         Config
	transcriber Transcriber
	logger      *slog.Logger
}

func NewBackend(cfg Config, t Transcriber, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	return &Backend{cfg: cfg, transcriber: t, logger: logger}
}

func (b *Backend) Name() string { return Name }

func (b *Backend) Extract(ctx context.Context, d media.Descriptor) (extract.Outcome, error) {
	start := time.Now()
	enc, err := EncodingFor(d.ContentType)
	if err != nil {
		b.logger.Warn("speech encoding not supported", "id", d.ID, "content_type", d.ContentType)
		return extract.Outcome{}, extract.Fail(Name, err, false)
	}

	data, err := d.ReadAll(ctx, b.cfg.MaxBytes)
	if err != nil {
		return extract.Outcome{}, extract.Fail(Name, fmt.Errorf("read audio: %w", err), false)
	}

	tr, err := b.transcriber.Transcribe(ctx, Audio{
		Data:        data,
		ContentType: constants.NormalizeMIME(d.ContentType),
		Encoding:    enc,
		Language:    b.cfg.Language,
	})
	if err != nil {
		b.logger.Warn("transcription failed", "id", d.ID, "encoding", enc, "error", err)
		return extract.Outcome{}, extract.Fail(Name, err, false)
	}

	b.logger.Debug("transcription done",
		"id", d.ID,
		"encoding", enc,
		"chars", len(tr.Text),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return extract.Outcome{
		Text:       tr.Text,
		Confidence: tr.Confidence,
		Backend:    Name,
		Language:   b.cfg.Language,
	}, nil
}

// GeminiTranscriber transcribes through a multimodal Gemini model.
type GeminiTranscriber struct {
	gen gemini.Generator
}

func NewGeminiTranscriber(gen gemini.Generator) *GeminiTranscriber {
	return &GeminiTranscriber{gen: gen}
}

const transcribeInstruction = `You are a speech-to-text engine. Transcribe the supplied audio verbatim with automatic punctuation.
Do not translate, summarize or describe sounds.
Respond with JSON only: {"text": "<transcript>", "confidence": <integer 0-100 estimating transcription accuracy>}.
If nothing intelligible is spoken respond with {"text": "", "confidence": 0}.`

func (g *GeminiTranscriber) Transcribe(ctx context.Context, a Audio) (Transcript, error) {
	raw, err := g.gen.Generate(ctx, gemini.Request{
		Instruction: transcribeInstruction,
		Prompt:      fmt.Sprintf("Audio encoding: %s. Spoken language: %s.", a.Encoding, a.Language),
		MIMEType:    a.ContentType,
		Data:        a.Data,
		JSON:        true,
	})
	if err != nil {
		return Transcript{}, err
	}
	text, conf, err := gemini.ParseTextResponse(raw)
	if err != nil {
		return Transcript{}, err
	}
	return Transcript{Text: text, Confidence: conf}, nil
}
