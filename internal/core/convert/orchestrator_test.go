package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/media-converter/constants"
	"github.com/joseph-ayodele/media-converter/internal/core/classify"
	"github.com/joseph-ayodele/media-converter/internal/core/extract"
	"github.com/joseph-ayodele/media-converter/internal/core/media"
	"github.com/joseph-ayodele/media-converter/internal/core/speech"
)

type fakeBackend struct {
	name    string
	outcome extract.Outcome
	err     error
	panics  bool
	calls   atomic.Int32
	read    []byte
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Extract(ctx context.Context, d media.Descriptor) (extract.Outcome, error) {
	f.calls.Add(1)
	data, err := d.ReadAll(ctx, 0)
	if err != nil {
		return extract.Outcome{}, extract.Fail(f.name, err, true)
	}
	f.read = data
	if f.panics {
		panic("boom")
	}
	if f.err != nil {
		return extract.Outcome{}, f.err
	}
	out := f.outcome
	out.Backend = f.name
	return out, nil
}

// countingSource counts streams opened and whether the source was released.
type countingSource struct {
	data   []byte
	opens  atomic.Int32
	closes atomic.Int32
}

func (s *countingSource) Open(context.Context) (io.ReadCloser, error) {
	s.opens.Add(1)
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

func (s *countingSource) Close() error {
	s.closes.Add(1)
	return nil
}

type fakeRunner struct{ stdout string }

func (f fakeRunner) Run(context.Context, string, *slog.Logger, ...string) ([]byte, []byte, error) {
	return []byte(f.stdout), nil, nil
}

type noTranscriber struct{ calls atomic.Int32 }

func (n *noTranscriber) Transcribe(context.Context, speech.Audio) (speech.Transcript, error) {
	n.calls.Add(1)
	return speech.Transcript{}, errors.New("must not be called")
}

type fixture struct {
	plain  *fakeBackend
	ocr    *fakeBackend
	speech *fakeBackend
	vision *fakeBackend
}

func newFixture() *fixture {
	return &fixture{
		plain:  &fakeBackend{name: extract.PlainTextName, outcome: extract.Outcome{Text: "plain text", Confidence: extract.KnownConfidence(100)}},
		ocr:    &fakeBackend{name: "tesseract-ocr", outcome: extract.Outcome{Text: "ocr text", Confidence: extract.KnownConfidence(90)}},
		speech: &fakeBackend{name: speech.Name, outcome: extract.Outcome{Text: "spoken words"}},
		vision: &fakeBackend{name: "vision-ocr", outcome: extract.Outcome{Text: "vision text"}},
	}
}

func (f *fixture) orchestrator(cfg Config) *Orchestrator {
	return NewOrchestrator(cfg, Backends{PlainText: f.plain, OCR: f.ocr, Speech: f.speech, Vision: f.vision}, nil)
}

func desc(ct string, data string) media.Descriptor {
	return media.Descriptor{ID: "doc-1", Filename: "f", ContentType: ct, Size: int64(len(data)), Source: media.BytesSource(data)}
}

var req = Request{RequestID: "req-1", TenantID: "tenant-1"}

func TestScenario_PlainText(t *testing.T) {
	o := NewOrchestrator(Config{}, Backends{PlainText: extract.NewPlainText(extract.PlainTextConfig{}, nil)}, nil)

	r := o.Convert(context.Background(), req, desc("text/plain", "Hello world"))
	assert.Equal(t, constants.ConversionSuccess, r.Status)
	assert.Equal(t, "plain-text", r.Method)
	assert.Equal(t, "Hello world", r.ExtractedText)
	assert.False(t, r.UsedFallback)
	assert.Equal(t, classify.TextOnly, r.Strategy)
	require.NotNil(t, r.Confidence)
	assert.Equal(t, 100, *r.Confidence)
	assert.Empty(t, r.ErrorMessage)
}

func TestScenario_PDFFastPath(t *testing.T) {
	plain := extract.NewPlainText(extract.PlainTextConfig{}, nil).WithRunner(fakeRunner{stdout: "Invoice #123\n\f"})
	f := newFixture()
	o := NewOrchestrator(Config{}, Backends{PlainText: plain, OCR: f.ocr, Vision: f.vision}, nil)

	r := o.Convert(context.Background(), req, desc("application/pdf", "%PDF-1.7"))
	assert.Equal(t, constants.ConversionSuccess, r.Status)
	assert.Equal(t, "Invoice #123", r.ExtractedText)
	assert.False(t, r.UsedFallback)
	assert.Zero(t, f.ocr.calls.Load())
	assert.Zero(t, f.vision.calls.Load())
}

func TestScenario_LowConfidenceImageUsesFallback(t *testing.T) {
	f := newFixture()
	// "ab!!!" scores 40: two alphanumerics out of five runes
	f.ocr.outcome = extract.Outcome{Text: "ab!!!"}
	f.vision.outcome = extract.Outcome{Text: "Total: 99.00"}

	r := f.orchestrator(Config{FallbackThreshold: 75}).Convert(context.Background(), req, desc("image/png", "png"))
	assert.Equal(t, constants.ConversionSuccess, r.Status)
	assert.Equal(t, "Total: 99.00", r.ExtractedText)
	assert.True(t, r.UsedFallback)
	assert.Equal(t, "vision-ocr", r.Method)
	assert.Nil(t, r.Confidence, "fallback reported no confidence")
	assert.Contains(t, r.Notes, "fallback triggered: primary confidence 40 < threshold 75")
	assert.Equal(t, int32(1), f.vision.calls.Load())
}

func TestScenario_BothOCRBackendsFail(t *testing.T) {
	f := newFixture()
	f.ocr.err = extract.Fail("tesseract-ocr", errors.New("engine crashed"), true)
	f.vision.err = extract.Fail("vision-ocr", errors.New("quota exceeded"), true)

	r := f.orchestrator(Config{}).Convert(context.Background(), req, desc("image/jpeg", "jpg"))
	assert.Equal(t, constants.ConversionFailed, r.Status)
	assert.Equal(t, BackendFailure, r.ErrorCode)
	assert.NotEmpty(t, r.ErrorMessage)
	assert.Contains(t, r.ErrorMessage, "engine crashed")
	assert.Contains(t, r.ErrorMessage, "quota exceeded")
	assert.True(t, r.UsedFallback)
	assert.Empty(t, r.ExtractedText)
	assert.Equal(t, int32(1), f.vision.calls.Load())
}

func TestScenario_UnknownAudioCodec(t *testing.T) {
	tr := &noTranscriber{}
	o := NewOrchestrator(Config{}, Backends{Speech: speech.NewBackend(speech.Config{}, tr, nil)}, nil)

	r := o.Convert(context.Background(), req, desc("audio/unknown-codec", "RIFF"))
	assert.Equal(t, constants.ConversionFailed, r.Status)
	assert.Equal(t, classify.Speech, r.Strategy)
	assert.Contains(t, r.ErrorMessage, "unsupported audio encoding")
	assert.False(t, r.UsedFallback)
	assert.Zero(t, tr.calls.Load())
}

func TestScenario_EmptyContentType(t *testing.T) {
	f := newFixture()
	r := f.orchestrator(Config{}).Convert(context.Background(), req, desc("", "\x00\x01 arbitrary \xff bytes"))
	assert.Equal(t, classify.TextOnly, r.Strategy)
	assert.Equal(t, constants.ConversionSuccess, r.Status)
	assert.Equal(t, int32(1), f.plain.calls.Load())

	real := NewOrchestrator(Config{}, Backends{PlainText: extract.NewPlainText(extract.PlainTextConfig{}, nil)}, nil)
	r = real.Convert(context.Background(), req, desc("", "\x00\x01 arbitrary \xff bytes"))
	assert.Equal(t, constants.ConversionSuccess, r.Status)
	assert.Contains(t, r.ExtractedText, "arbitrary")
}

func TestTextTypesNeverUseOCROrSpeech(t *testing.T) {
	types := []string{
		constants.MIMETypeDOCX, constants.MIMETypeXLSX, constants.MIMETypePPTX, constants.MIMETypeTXT,
		constants.MIMETypeRTF, constants.MIMETypeHTML, constants.MIMETypeJSON, constants.MIMETypeCSV,
	}
	for _, ct := range types {
		t.Run(ct, func(t *testing.T) {
			f := newFixture()
			r := f.orchestrator(Config{}).Convert(context.Background(), req, desc(ct, "content"))
			assert.Equal(t, classify.TextOnly, r.Strategy)
			assert.Equal(t, int32(1), f.plain.calls.Load())
			assert.Zero(t, f.ocr.calls.Load())
			assert.Zero(t, f.speech.calls.Load())
			assert.Zero(t, f.vision.calls.Load())
		})
	}
}

func TestConfidentImageSkipsFallback(t *testing.T) {
	for _, ct := range []string{"image/png", "image/jpeg", "image/tiff", "image/heic"} {
		t.Run(ct, func(t *testing.T) {
			f := newFixture()
			f.ocr.outcome = extract.Outcome{Text: "clear scan", Confidence: extract.KnownConfidence(75)}
			r := f.orchestrator(Config{FallbackThreshold: 75}).Convert(context.Background(), req, desc(ct, "img"))

			assert.Equal(t, classify.OCRWithFallback, r.Strategy)
			assert.Equal(t, constants.ConversionSuccess, r.Status)
			assert.Equal(t, "clear scan", r.ExtractedText)
			assert.False(t, r.UsedFallback)
			require.NotNil(t, r.Confidence)
			assert.Equal(t, 75, *r.Confidence)
			assert.Zero(t, f.vision.calls.Load())
		})
	}
}

func TestHeuristicScoreAboveThresholdSkipsFallback(t *testing.T) {
	f := newFixture()
	f.ocr.outcome = extract.Outcome{Text: "Invoice 12345 paid in full by customer account 987 thank you"}
	r := f.orchestrator(Config{}).Convert(context.Background(), req, desc("image/png", "img"))

	assert.False(t, r.UsedFallback)
	require.NotNil(t, r.Confidence)
	assert.GreaterOrEqual(t, *r.Confidence, DefaultFallbackThreshold)
	assert.Zero(t, f.vision.calls.Load())
}

func TestPrimaryFailureRunsFallbackOnce(t *testing.T) {
	f := newFixture()
	f.ocr.err = errors.New("tesseract missing")
	f.vision.outcome = extract.Outcome{Text: "recovered", Confidence: extract.KnownConfidence(88)}

	r := f.orchestrator(Config{}).Convert(context.Background(), req, desc("image/png", "img"))
	assert.Equal(t, constants.ConversionSuccess, r.Status)
	assert.Equal(t, "recovered", r.ExtractedText)
	assert.True(t, r.UsedFallback)
	require.NotNil(t, r.Confidence)
	assert.Equal(t, 88, *r.Confidence)
	assert.Equal(t, int32(1), f.vision.calls.Load())
}

func TestNonRecoverablePrimaryFailureSkipsFallback(t *testing.T) {
	f := newFixture()
	f.ocr.err = extract.Fail("tesseract-ocr", errors.New("corrupt"), false)

	r := f.orchestrator(Config{}).Convert(context.Background(), req, desc("image/png", "img"))
	assert.Equal(t, constants.ConversionFailed, r.Status)
	assert.Equal(t, BackendFailure, r.ErrorCode)
	assert.False(t, r.UsedFallback)
	assert.Zero(t, f.vision.calls.Load())
}

func TestFallbackFailureKeepsPrimaryText(t *testing.T) {
	f := newFixture()
	f.ocr.outcome = extract.Outcome{Text: "ab!!!"}
	f.vision.err = errors.New("unavailable")

	r := f.orchestrator(Config{}).Convert(context.Background(), req, desc("image/png", "img"))
	assert.Equal(t, constants.ConversionSuccess, r.Status)
	assert.Equal(t, "ab!!!", r.ExtractedText)
	assert.Equal(t, "tesseract-ocr", r.Method)
	assert.True(t, r.UsedFallback)
	require.NotNil(t, r.Confidence)
	assert.Equal(t, 40, *r.Confidence)
	assert.Contains(t, r.Notes, "kept primary result")
}

func TestEmptyFallbackKeepsPrimaryText(t *testing.T) {
	f := newFixture()
	f.ocr.outcome = extract.Outcome{Text: "ab!!!", Confidence: extract.KnownConfidence(30)}
	f.vision.outcome = extract.Outcome{Text: "   ", Confidence: extract.KnownConfidence(99)}

	r := f.orchestrator(Config{}).Convert(context.Background(), req, desc("image/png", "img"))
	assert.Equal(t, constants.ConversionSuccess, r.Status)
	assert.Equal(t, "ab!!!", r.ExtractedText)
	assert.True(t, r.UsedFallback)
}

func TestNothingExtractedAnywhere(t *testing.T) {
	f := newFixture()
	f.ocr.outcome = extract.Outcome{Text: ""}
	f.vision.outcome = extract.Outcome{Text: ""}

	r := f.orchestrator(Config{}).Convert(context.Background(), req, desc("image/png", "img"))
	assert.Equal(t, constants.ConversionFailed, r.Status)
	assert.Equal(t, NoContentExtracted, r.ErrorCode)
	assert.True(t, r.UsedFallback)
}

func TestConfidentButEmptyOCRStillTriesFallback(t *testing.T) {
	f := newFixture()
	f.ocr.outcome = extract.Outcome{Text: "   ", Confidence: extract.KnownConfidence(95)}

	r := f.orchestrator(Config{}).Convert(context.Background(), req, desc("image/png", "img"))
	assert.Equal(t, constants.ConversionSuccess, r.Status)
	assert.True(t, r.UsedFallback)
	assert.Equal(t, "vision text", r.ExtractedText)
	assert.Equal(t, int32(1), f.vision.calls.Load())
	assert.Contains(t, r.Notes, "fallback triggered: primary tesseract-ocr extracted no text")
}

func TestConfidentButEmptyOCRWithEmptyFallbackIsNoContent(t *testing.T) {
	f := newFixture()
	f.ocr.outcome = extract.Outcome{Text: "", Confidence: extract.KnownConfidence(95)}
	f.vision.outcome = extract.Outcome{Text: " "}

	r := f.orchestrator(Config{}).Convert(context.Background(), req, desc("image/png", "img"))
	assert.Equal(t, constants.ConversionFailed, r.Status)
	assert.Equal(t, NoContentExtracted, r.ErrorCode)
	assert.True(t, r.UsedFallback)
	assert.Equal(t, int32(1), f.vision.calls.Load())
}

func TestEmptyPlainTextIsNoContent(t *testing.T) {
	f := newFixture()
	f.plain.outcome = extract.Outcome{Text: " \n "}

	r := f.orchestrator(Config{}).Convert(context.Background(), req, desc("text/plain", "   "))
	assert.Equal(t, constants.ConversionFailed, r.Status)
	assert.Equal(t, NoContentExtracted, r.ErrorCode)
	assert.NotEmpty(t, r.ErrorMessage)
}

func TestFallbackAndPrimaryReadIndependentStreams(t *testing.T) {
	f := newFixture()
	f.ocr.outcome = extract.Outcome{Text: "??"}
	src := &countingSource{data: []byte("image-bytes")}
	d := media.Descriptor{ID: "x", ContentType: "image/png", Size: media.UnknownSize, Source: src}

	r := f.orchestrator(Config{}).Convert(context.Background(), req, d)
	assert.True(t, r.UsedFallback)
	assert.Equal(t, int32(2), src.opens.Load())
	assert.Equal(t, []byte("image-bytes"), f.ocr.read)
	assert.Equal(t, []byte("image-bytes"), f.vision.read)
	assert.Equal(t, int32(1), src.closes.Load(), "source released at end of call")
}

func TestOversizeDeclaredRejectedBeforeClassification(t *testing.T) {
	f := newFixture()
	src := &countingSource{data: []byte("0123456789")}
	d := media.Descriptor{ID: "big", ContentType: "image/png", Size: 10, Source: src}

	r := f.orchestrator(Config{MaxBytes: 5}).Convert(context.Background(), req, d)
	assert.Equal(t, constants.ConversionFailed, r.Status)
	assert.Equal(t, OversizeInput, r.ErrorCode)
	assert.Empty(t, r.Strategy)
	assert.Zero(t, src.opens.Load())
	assert.Zero(t, f.ocr.calls.Load())
	assert.Equal(t, int32(1), src.closes.Load())
}

func TestOversizeUndeclaredFailsWhileStreaming(t *testing.T) {
	f := newFixture()
	d := media.Descriptor{ID: "big", ContentType: "image/png", Size: media.UnknownSize, Source: media.BytesSource("0123456789")}

	r := f.orchestrator(Config{MaxBytes: 5}).Convert(context.Background(), req, d)
	assert.Equal(t, constants.ConversionFailed, r.Status)
	assert.Equal(t, OversizeInput, r.ErrorCode)
	assert.False(t, r.UsedFallback, "oversize is never recoverable")
	assert.Zero(t, f.vision.calls.Load())
}

func TestMissingBackendIsNotSupported(t *testing.T) {
	f := newFixture()
	o := NewOrchestrator(Config{}, Backends{PlainText: f.plain}, nil)

	r := o.Convert(context.Background(), req, desc("audio/mpeg", "id3"))
	assert.Equal(t, constants.ConversionNotSupported, r.Status)
	assert.Equal(t, UnsupportedFormat, r.ErrorCode)
	assert.Zero(t, f.plain.calls.Load())
}

func TestMissingSourceIsInvalid(t *testing.T) {
	f := newFixture()
	r := f.orchestrator(Config{}).Convert(context.Background(), req, media.Descriptor{ID: "x", ContentType: "text/plain"})
	assert.Equal(t, constants.ConversionFailed, r.Status)
	assert.Equal(t, InvalidInput, r.ErrorCode)
}

func TestBackendPanicBecomesFailure(t *testing.T) {
	f := newFixture()
	f.plain.panics = true

	var r Result
	require.NotPanics(t, func() {
		r = f.orchestrator(Config{}).Convert(context.Background(), req, desc("text/plain", "x"))
	})
	assert.Equal(t, constants.ConversionFailed, r.Status)
	assert.Equal(t, BackendFailure, r.ErrorCode)
	assert.Contains(t, r.ErrorMessage, "panic")
}

func TestPanickingOCRFallsBack(t *testing.T) {
	f := newFixture()
	f.ocr.panics = true

	r := f.orchestrator(Config{}).Convert(context.Background(), req, desc("image/png", "img"))
	assert.Equal(t, constants.ConversionSuccess, r.Status)
	assert.Equal(t, "vision text", r.ExtractedText)
	assert.True(t, r.UsedFallback)
}

func TestCanceledBeforeExtraction(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := f.orchestrator(Config{}).Convert(ctx, req, desc("text/plain", "x"))
	assert.Equal(t, constants.ConversionFailed, r.Status)
	assert.Equal(t, Canceled, r.ErrorCode)
	assert.Zero(t, f.plain.calls.Load())
}

// cancelingBackend cancels the call while it runs, like a client disconnecting mid-OCR.
type cancelingBackend struct {
	fakeBackend
	cancel context.CancelFunc
}

func (c *cancelingBackend) Extract(ctx context.Context, d media.Descriptor) (extract.Outcome, error) {
	c.cancel()
	return c.fakeBackend.Extract(context.Background(), d)
}

func TestCanceledBetweenPrimaryAndFallback(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ocr := &cancelingBackend{fakeBackend: fakeBackend{name: "tesseract-ocr", outcome: extract.Outcome{Text: "!!"}}, cancel: cancel}
	o := NewOrchestrator(Config{}, Backends{OCR: ocr, Vision: f.vision}, nil)

	r := o.Convert(ctx, req, desc("image/png", "img"))
	assert.Equal(t, Canceled, r.ErrorCode)
	assert.False(t, r.UsedFallback)
	assert.Zero(t, f.vision.calls.Load())
}

func TestConvertAsOCRForScannedPDF(t *testing.T) {
	f := newFixture()
	f.ocr.outcome = extract.Outcome{Text: "scanned page", Confidence: extract.KnownConfidence(20)}

	r := f.orchestrator(Config{}).ConvertAs(context.Background(), req, desc("application/pdf", "%PDF"), classify.OCR)
	assert.Equal(t, classify.OCR, r.Strategy)
	assert.Equal(t, constants.ConversionSuccess, r.Status)
	assert.Equal(t, "scanned page", r.ExtractedText)
	assert.False(t, r.UsedFallback, "explicit OCR has no fallback")
	assert.Zero(t, f.plain.calls.Load())
	assert.Zero(t, f.vision.calls.Load())
}

func TestSpeechSkipsScoring(t *testing.T) {
	f := newFixture()
	f.speech.outcome = extract.Outcome{Text: "uh hm ok"}

	r := f.orchestrator(Config{}).Convert(context.Background(), req, desc("audio/wav", "RIFF"))
	assert.Equal(t, constants.ConversionSuccess, r.Status)
	assert.Equal(t, speech.Name, r.Method)
	assert.Nil(t, r.Confidence)
	assert.False(t, r.UsedFallback)
	assert.Zero(t, f.vision.calls.Load())
}

func TestConvertIsIdempotent(t *testing.T) {
	o := NewOrchestrator(Config{}, Backends{PlainText: extract.NewPlainText(extract.PlainTextConfig{}, nil)}, nil)
	d := desc("text/html", "<p>same</p><p>input</p>")

	first := o.Convert(context.Background(), req, d)
	second := o.Convert(context.Background(), req, d)
	assert.Equal(t, first.ExtractedText, second.ExtractedText)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Confidence, second.Confidence)
}

func TestResultJSONShape(t *testing.T) {
	f := newFixture()
	r := f.orchestrator(Config{}).Convert(context.Background(), req, desc("text/plain", "x"))

	raw, err := json.Marshal(r)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	for _, k := range []string{"id", "extractedText", "status", "method", "strategy", "confidence", "usedFallback", "elapsedMs"} {
		assert.Contains(t, m, k)
	}
	assert.NotContains(t, m, "errorMessage")
	assert.GreaterOrEqual(t, r.ElapsedMs, int64(0))
}

func TestThresholdDefaults(t *testing.T) {
	assert.Equal(t, DefaultFallbackThreshold, NewOrchestrator(Config{}, Backends{}, nil).Config().FallbackThreshold)
	assert.Equal(t, 100, NewOrchestrator(Config{FallbackThreshold: 250}, Backends{}, nil).Config().FallbackThreshold)
}
