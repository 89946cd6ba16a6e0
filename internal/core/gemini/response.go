package gemini

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/media-converter/internal/common"
	"github.com/joseph-ayodele/media-converter/internal/core/extract"
)

// TextResponse is the JSON shape both transcription prompts ask for.
type TextResponse struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

var textResponseSchema = map[string]any{
	"$schema":  "https://json-schema.org/draft/2020-12/schema",
	"type":     "object",
	"required": []any{"text"},
	"properties": map[string]any{
		"text":       map[string]any{"type": "string"},
		"confidence": map[string]any{"type": "number"},
	},
}

var compiledTextResponse = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return common.CompileSchema("text_response.json", textResponseSchema)
})

// ParseTextResponse decodes a TextResponse. A missing, malformed or out of
// range confidence is unknown; a missing text is an error.
func ParseTextResponse(raw string) (string, extract.Confidence, error) {
	doc, err := sanitizeTextResponse([]byte(StripCodeFences(strings.TrimSpace(raw))))
	if err != nil {
		return "", extract.UnknownConfidence, fmt.Errorf("gemini: bad JSON: %w", err)
	}
	schema, err := compiledTextResponse()
	if err != nil {
		return "", extract.UnknownConfidence, err
	}
	if err := common.ValidateJSON(schema, doc); err != nil {
		return "", extract.UnknownConfidence, fmt.Errorf("gemini: %w", err)
	}

	var out TextResponse
	if err := json.Unmarshal(doc, &out); err != nil {
		return "", extract.UnknownConfidence, fmt.Errorf("gemini: bad JSON: %w", err)
	}
	conf := extract.UnknownConfidence
	if out.Confidence != nil {
		if c := int(math.Round(*out.Confidence)); c >= 0 && c <= 100 {
			conf = extract.KnownConfidence(c)
		}
	}
	return strings.TrimSpace(out.Text), conf, nil
}

// sanitizeTextResponse drops a confidence that is not a number and removes
// unknown keys, so only the text decides whether the response is usable.
func sanitizeTextResponse(raw []byte) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if v, ok := m["confidence"]; ok {
		if _, isNum := v.(float64); !isNum {
			delete(m, "confidence")
		}
	}
	for k := range m {
		if k != "text" && k != "confidence" {
			delete(m, k)
		}
	}
	return json.Marshal(m)
}

// StripCodeFences removes a surrounding ``` or ```json fence.
func StripCodeFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
