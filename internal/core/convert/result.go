package convert

import (
	"strings"
	"time"

	"github.com/joseph-ayodele/media-converter/constants"
	"github.com/joseph-ayodele/media-converter/internal/core/classify"
	"github.com/joseph-ayodele/media-converter/internal/core/extract"
)

// Result is the outward record of one conversion.
type Result struct {
	ID            string                     `json:"id"`
	ExtractedText string                     `json:"extractedText"`
	Status        constants.ConversionStatus `json:"status"`
	Method        string                     `json:"method,omitempty"`
	Strategy      classify.Strategy          `json:"strategy,omitempty"`
	Confidence    *int                       `json:"confidence,omitempty"`
	UsedFallback  bool                       `json:"usedFallback"`
	ElapsedMs     int64                      `json:"elapsedMs"`
	Pages         int                        `json:"pages,omitempty"`
	Language      string                     `json:"language,omitempty"`
	ErrorCode     ErrorCode                  `json:"errorCode,omitempty"`
	ErrorMessage  string                     `json:"errorMessage,omitempty"`
	Notes         []string                   `json:"notes,omitempty"`
}

// Succeeded reports whether the result carries extracted text.
func (r Result) Succeeded() bool { return r.Status == constants.ConversionSuccess }

// assembly accumulates what happened during one call; result() builds the
// Result the same way on every path.
type assembly struct {
	id           string
	start        time.Time
	strategy     classify.Strategy
	method       string
	outcome      *extract.Outcome
	confidence   *int
	usedFallback bool
	status       constants.ConversionStatus
	err          *Error
	notes        []string
}

func newAssembly(id string, start time.Time) *assembly {
	return &assembly{id: id, start: start}
}

func (a *assembly) note(s string) {
	a.notes = append(a.notes, s)
}

func (a *assembly) succeed(out extract.Outcome, conf *int) {
	a.outcome = &out
	a.method = out.Backend
	a.confidence = conf
	a.status = constants.ConversionSuccess
	a.err = nil
}

func (a *assembly) fail(err *Error) {
	a.outcome = nil
	a.confidence = nil
	a.status = constants.ConversionFailed
	if err.Code == UnsupportedFormat {
		a.status = constants.ConversionNotSupported
	}
	a.err = err
}

func (a *assembly) result() Result {
	r := Result{
		ID:           a.id,
		Status:       a.status,
		Method:       a.method,
		Strategy:     a.strategy,
		Confidence:   a.confidence,
		UsedFallback: a.usedFallback,
		Notes:        a.notes,
	}
	if a.outcome != nil {
		r.ExtractedText = a.outcome.Text
		r.Pages = a.outcome.Pages
		r.Language = a.outcome.Language
		if a.outcome.Note != "" {
			r.Notes = append(r.Notes, a.outcome.Backend+": "+a.outcome.Note)
		}
	}
	if a.err != nil {
		r.ErrorCode = a.err.Code
		r.ErrorMessage = a.err.Error()
		if strings.TrimSpace(r.ErrorMessage) == "" {
			r.ErrorMessage = string(a.err.Code)
		}
	}
	r.ElapsedMs = time.Since(a.start).Milliseconds()
	return r
}

func confPtr(c extract.Confidence) *int {
	if !c.Known {
		return nil
	}
	v := c.Value
	return &v
}

func hasText(s string) bool { return strings.TrimSpace(s) != "" }
