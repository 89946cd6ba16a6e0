// Package classify maps a content type to the extraction strategy used for it.
package classify

import (
	"fmt"
	"strings"

	"github.com/joseph-ayodele/media-converter/constants"
)

// Strategy is the extraction pipeline chosen for an input.
type Strategy string

const (
	TextOnly        Strategy = "TEXT_ONLY"
	OCR             Strategy = "OCR"
	OCRWithFallback Strategy = "OCR_WITH_FALLBACK"
	Speech          Strategy = "SPEECH"
)

// HasFallback reports whether the strategy may escalate to the vision fallback.
func (s Strategy) HasFallback() bool { return s == OCRWithFallback }

// Scored reports whether outcomes of this strategy go through confidence scoring.
func (s Strategy) Scored() bool { return s == OCR || s == OCRWithFallback }

// Parse resolves a strategy name, case-insensitively.
func Parse(s string) (Strategy, error) {
	switch st := Strategy(strings.ToUpper(strings.TrimSpace(s))); st {
	case TextOnly, OCR, OCRWithFallback, Speech:
		return st, nil
	default:
		return "", fmt.Errorf("unknown strategy %q", s)
	}
}

// Classify picks the strategy for a content type. It is total: anything it
// does not recognize is treated as text so no request is blocked on its type.
//
// PDFs always take the text path; callers that know an input is a scan
// escalate with an explicit OCR strategy.
func Classify(contentType string) Strategy {
	ct := constants.NormalizeMIME(contentType)
	switch {
	case ct == "":
		return TextOnly
	case isTextBased(ct):
		return TextOnly
	case strings.HasPrefix(ct, "image/"):
		return OCRWithFallback
	case ct == constants.MIMETypePDF:
		return TextOnly
	case strings.HasPrefix(ct, "audio/"):
		return Speech
	default:
		return TextOnly
	}
}

func isTextBased(ct string) bool {
	if _, ok := constants.TextBasedMIMETypes[ct]; ok {
		return true
	}
	return strings.HasPrefix(ct, "text/") || strings.HasSuffix(ct, "+json") || strings.HasSuffix(ct, "+xml")
}
