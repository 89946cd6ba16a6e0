// Package core assembles the conversion engine from configuration.
package core

import (
	"context"
	"errors"
	"log/slog"

	"github.com/joseph-ayodele/media-converter/internal/common"
	"github.com/joseph-ayodele/media-converter/internal/core/convert"
	"github.com/joseph-ayodele/media-converter/internal/core/extract"
	"github.com/joseph-ayodele/media-converter/internal/core/gemini"
	"github.com/joseph-ayodele/media-converter/internal/core/ocr"
	"github.com/joseph-ayodele/media-converter/internal/core/speech"
	"github.com/joseph-ayodele/media-converter/internal/core/vision"
)

// Engine owns the orchestrator and the clients its backends hold.
type Engine struct {
	*convert.Orchestrator
	closers []func() error
}

// Options override pieces of the engine, mostly for tests and local runs.
type Options struct {
	Recognizer ocr.Recognizer   // nil = tesseract
	Generator  gemini.Generator // nil = Gemini client from config
}

// NewEngine builds every backend the configuration enables. Vision and speech
// are left out when disabled, which makes their strategies unsupported or
// disables the fallback.
func NewEngine(ctx context.Context, cfg *common.Config, opts Options, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{}
	maxBytes := cfg.Conversion.MaxBytes()

	backends := convert.Backends{
		PlainText: extract.NewPlainText(extract.PlainTextConfig{
			Pdftotext: cfg.Conversion.Pdftotext,
			MaxBytes:  maxBytes,
		}, logger),
		OCR: ocr.NewBackend(ocr.Config{
			Languages:        cfg.OCR.Languages,
			TessdataDir:      cfg.OCR.TessdataDir,
			PSM:              cfg.OCR.PSM,
			Pdftoppm:         cfg.OCR.Pdftoppm,
			DPI:              cfg.OCR.DPI,
			MaxPages:         cfg.OCR.MaxPages,
			HeicConverter:    cfg.OCR.HeicConverter,
			ArtifactCacheDir: cfg.OCR.ArtifactCacheDir,
			MaxBytes:         maxBytes,
		}, opts.Recognizer, logger),
	}

	if cfg.Vision.Enabled || cfg.Speech.Enabled {
		gen := opts.Generator
		if gen == nil {
			client, err := gemini.NewClient(ctx, cfg.Vision.APIKey, cfg.Vision.Model, logger)
			if err != nil {
				return nil, err
			}
			e.closers = append(e.closers, client.Close)
			gen = client
		}
		gen = gemini.WithTimeout(gen, cfg.Vision.Timeout)

		if cfg.Vision.Enabled {
			backends.Vision = vision.NewBackend(vision.Config{MaxBytes: maxBytes}, gen, logger)
		}
		if cfg.Speech.Enabled {
			backends.Speech = speech.NewBackend(speech.Config{
				Language: cfg.Speech.Language,
				MaxBytes: maxBytes,
			}, speech.NewGeminiTranscriber(gen), logger)
		}
	}

	e.Orchestrator = convert.NewOrchestrator(convert.Config{
		MaxBytes:          maxBytes,
		FallbackThreshold: cfg.Conversion.FallbackThreshold,
	}, backends, logger)

	logger.Info("conversion engine ready",
		"max_bytes", maxBytes,
		"fallback_threshold", e.Orchestrator.Config().FallbackThreshold,
		"vision", backends.Vision != nil,
		"speech", backends.Speech != nil,
		"ocr_languages", cfg.OCR.Languages)
	return e, nil
}

// Close releases the model clients.
func (e *Engine) Close() error {
	var errs []error
	for _, c := range e.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
