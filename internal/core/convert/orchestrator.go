// Package convert runs one media descriptor through classification, primary
// extraction, scoring and the optional vision fallback, and assembles the result.
package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/media-converter/internal/core/classify"
	"github.com/joseph-ayodele/media-converter/internal/core/confidence"
	"github.com/joseph-ayodele/media-converter/internal/core/extract"
	"github.com/joseph-ayodele/media-converter/internal/core/media"
)

const DefaultFallbackThreshold = 75

type Config struct {
	MaxBytes          int64 // 0 = no limit
	FallbackThreshold int   // primary OCR confidence below this runs the fallback
}

// Backends is the closed set of extractors. A nil entry leaves its strategy unsupported.
type Backends struct {
	PlainText extract.Backend
	OCR       extract.Backend
	Speech    extract.Backend
	Vision    extract.Backend
}

// Request carries caller identity for logging. It is passed explicitly on every call.
type Request struct {
	RequestID string
	TenantID  string
}

// State is a step of a single conversion.
type State string

const (
	StateClassifying        State = "CLASSIFYING"
	StatePrimaryExtracting  State = "PRIMARY_EXTRACTING"
	StateScoring            State = "SCORING"
	StateFallbackExtracting State = "FALLBACK_EXTRACTING"
	StateAssembling         State = "ASSEMBLING"
	StateDone               State = "DONE"
	StateErrored            State = "ERRORED"
)

// Orchestrator is stateless across calls and safe for concurrent use.
type Orchestrator struct {
	cfg      Config
	backends Backends
	logger   *slog.Logger
}

func NewOrchestrator(cfg Config, backends Backends, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FallbackThreshold <= 0 {
		cfg.FallbackThreshold = DefaultFallbackThreshold
	}
	if cfg.FallbackThreshold > 100 {
		cfg.FallbackThreshold = 100
	}
	return &Orchestrator{cfg: cfg, backends: backends, logger: logger}
}

func (o *Orchestrator) Config() Config { return o.cfg }

// Convert classifies d by its content type and converts it. It never panics
// and never returns an error: every failure is a FAILED or NOT_SUPPORTED result.
// d is closed before Convert returns.
func (o *Orchestrator) Convert(ctx context.Context, req Request, d media.Descriptor) Result {
	return o.run(ctx, req, d, nil)
}

// ConvertAs converts d with an explicit strategy, e.g. OCR for a PDF known to be a scan.
func (o *Orchestrator) ConvertAs(ctx context.Context, req Request, d media.Descriptor, s classify.Strategy) Result {
	return o.run(ctx, req, d, &s)
}

// run is one pass through the state machine:
//
//	CLASSIFYING -> PRIMARY_EXTRACTING -> (SCORING) -> (FALLBACK_EXTRACTING) -> ASSEMBLING -> DONE
//
// with ERRORED reachable from every state.
func (o *Orchestrator) run(ctx context.Context, req Request, d media.Descriptor, forced *classify.Strategy) Result {
	a := newAssembly(d.ID, time.Now())
	logger := o.logger.With("request_id", req.RequestID, "tenant_id", req.TenantID, "document_id", d.ID)
	defer func() {
		if err := d.Close(); err != nil {
			logger.Warn("failed to close media source", "error", err)
		}
	}()

	if err := o.admit(d); err != nil {
		logger.Warn("conversion rejected", "code", err.Code, "size", d.Size, "max_bytes", o.cfg.MaxBytes)
		a.fail(err)
		return o.finish(logger, a)
	}
	d = d.WithLimit(o.cfg.MaxBytes)

	// CLASSIFYING
	o.enter(logger, StateClassifying)
	if forced != nil {
		a.strategy = *forced
		a.note(fmt.Sprintf("strategy %s requested explicitly", *forced))
	} else {
		a.strategy = classify.Classify(d.ContentType)
	}
	primary := o.primaryFor(a.strategy)
	if primary == nil {
		o.enter(logger, StateErrored)
		a.fail(newError(UnsupportedFormat,
			fmt.Sprintf("no backend available for strategy %s (content type %q)", a.strategy, d.ContentType)))
		return o.finish(logger, a)
	}
	if o.canceled(ctx, a) {
		return o.finish(logger, a)
	}

	// PRIMARY_EXTRACTING
	o.enter(logger, StatePrimaryExtracting)
	a.method = primary.Name()
	out, be := o.invoke(ctx, primary, d)
	if be != nil {
		logger.Warn("primary backend failed", "backend", be.Backend, "recoverable", be.Recoverable, "error", be.Cause)
		if o.canceled(ctx, a) {
			return o.finish(logger, a)
		}
		if o.canFallback(a.strategy) && be.Recoverable {
			a.note(fmt.Sprintf("fallback triggered: primary %s failed: %v", be.Backend, be.Cause))
			o.fallback(ctx, logger, a, d, nil, be)
			return o.finish(logger, a)
		}
		o.enter(logger, StateErrored)
		a.fail(backendError(be))
		return o.finish(logger, a)
	}

	if !a.strategy.Scored() {
		if !hasText(out.Text) {
			o.enter(logger, StateErrored)
			a.fail(&Error{Code: NoContentExtracted, Backend: out.Backend, Message: fmt.Sprintf("%s extracted no text", out.Backend)})
			return o.finish(logger, a)
		}
		a.succeed(out, confPtr(out.Confidence))
		return o.finish(logger, a)
	}

	// SCORING
	o.enter(logger, StateScoring)
	if !out.Confidence.Known {
		out.Confidence = extract.KnownConfidence(confidence.Score(out.Text))
		a.note(fmt.Sprintf("%s reported no confidence; heuristic score %d", out.Backend, out.Confidence.Value))
	}
	lowConfidence := out.Confidence.Value < o.cfg.FallbackThreshold
	if (lowConfidence || !hasText(out.Text)) && o.canFallback(a.strategy) {
		if o.canceled(ctx, a) {
			return o.finish(logger, a)
		}
		if lowConfidence {
			a.note(fmt.Sprintf("fallback triggered: primary confidence %d < threshold %d", out.Confidence.Value, o.cfg.FallbackThreshold))
		} else {
			a.note(fmt.Sprintf("fallback triggered: primary %s extracted no text", out.Backend))
		}
		o.fallback(ctx, logger, a, d, &out, nil)
		return o.finish(logger, a)
	}
	if !hasText(out.Text) {
		o.enter(logger, StateErrored)
		a.fail(&Error{Code: NoContentExtracted, Backend: out.Backend, Message: fmt.Sprintf("%s extracted no text", out.Backend)})
		return o.finish(logger, a)
	}
	a.succeed(out, confPtr(out.Confidence))
	return o.finish(logger, a)
}

// fallback runs the vision backend on a fresh stream. Exactly one of primary
// and primaryErr is set. A fallback with non-empty text supersedes the primary;
// otherwise non-empty primary text is kept.
func (o *Orchestrator) fallback(ctx context.Context, logger *slog.Logger, a *assembly, d media.Descriptor, primary *extract.Outcome, primaryErr *extract.BackendError) {
	o.enter(logger, StateFallbackExtracting)
	a.usedFallback = true
	a.method = o.backends.Vision.Name()
	out, be := o.invoke(ctx, o.backends.Vision, d)

	if be == nil && hasText(out.Text) {
		// confidence of the fallback stays unknown when it reports none
		a.succeed(out, confPtr(out.Confidence))
		return
	}
	if be != nil {
		logger.Warn("fallback backend failed", "backend", be.Backend, "error", be.Cause)
		a.note(fmt.Sprintf("fallback %s failed: %v", be.Backend, be.Cause))
	} else {
		a.note(fmt.Sprintf("fallback %s extracted no text", out.Backend))
	}

	if primary != nil && hasText(primary.Text) {
		a.note("kept primary result")
		a.succeed(*primary, confPtr(primary.Confidence))
		return
	}

	o.enter(logger, StateErrored)
	switch {
	case primaryErr != nil && be != nil:
		err := backendError(be)
		err.Message = fmt.Sprintf("all backends failed: %s; %s", primaryErr.Error(), be.Error())
		a.fail(err)
	case be != nil:
		a.fail(backendError(be))
	case primaryErr != nil:
		a.fail(backendError(primaryErr))
	default:
		a.fail(newError(NoContentExtracted, "no backend extracted any text"))
	}
}

// invoke runs one backend. Panics are converted into a BackendError.
func (o *Orchestrator) invoke(ctx context.Context, b extract.Backend, d media.Descriptor) (out extract.Outcome, be *extract.BackendError) {
	name := b.Name()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("backend panicked", "backend", name, "panic", r)
			out = extract.Outcome{}
			be = extract.Fail(name, fmt.Errorf("panic: %v", r), true)
		}
	}()
	out, err := b.Extract(ctx, d)
	o.logger.Debug("backend returned", "backend", name, "duration_ms", time.Since(start).Milliseconds(), "error", err)
	if err != nil {
		return extract.Outcome{}, extract.AsBackendError(name, err)
	}
	if out.Backend == "" {
		out.Backend = name
	}
	return out, nil
}

// admit rejects inputs before any backend runs.
func (o *Orchestrator) admit(d media.Descriptor) *Error {
	if d.Source == nil {
		return newError(InvalidInput, "media descriptor has no byte source")
	}
	if o.cfg.MaxBytes > 0 && d.SizeKnown() && d.Size > o.cfg.MaxBytes {
		return newError(OversizeInput, fmt.Sprintf("input size %d exceeds maximum %d bytes", d.Size, o.cfg.MaxBytes))
	}
	return nil
}

func (o *Orchestrator) primaryFor(s classify.Strategy) extract.Backend {
	switch s {
	case classify.TextOnly:
		return o.backends.PlainText
	case classify.OCR, classify.OCRWithFallback:
		return o.backends.OCR
	case classify.Speech:
		return o.backends.Speech
	default:
		return nil
	}
}

func (o *Orchestrator) canFallback(s classify.Strategy) bool {
	return s.HasFallback() && o.backends.Vision != nil
}

// canceled is the checkpoint between backend calls.
func (o *Orchestrator) canceled(ctx context.Context, a *assembly) bool {
	err := ctx.Err()
	if err == nil {
		return false
	}
	msg := "conversion canceled"
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "conversion deadline exceeded"
	}
	a.fail(&Error{Code: Canceled, Message: msg, Cause: err})
	return true
}

func (o *Orchestrator) enter(logger *slog.Logger, s State) {
	logger.Debug("conversion state", "state", s)
}

func (o *Orchestrator) finish(logger *slog.Logger, a *assembly) Result {
	o.enter(logger, StateAssembling)
	r := a.result()
	attrs := []any{
		"status", r.Status,
		"strategy", r.Strategy,
		"method", r.Method,
		"used_fallback", r.UsedFallback,
		"elapsed_ms", r.ElapsedMs,
	}
	if r.Confidence != nil {
		attrs = append(attrs, "confidence", *r.Confidence)
	}
	if r.ErrorCode != "" {
		attrs = append(attrs, "error_code", r.ErrorCode, "error", r.ErrorMessage)
		logger.Warn("conversion failed", attrs...)
	} else {
		logger.Info("conversion done", attrs...)
	}
	o.enter(logger, StateDone)
	return r
}
