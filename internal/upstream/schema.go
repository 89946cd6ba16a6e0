package upstream

// documentSchema is the contract for the document lookup response.
var documentSchema = map[string]any{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type":    "object",
	"required": []any{
		"documentId", "mimeType", "downloadUrl",
	},
	"properties": map[string]any{
		"documentId":       map[string]any{"type": "string", "minLength": 1},
		"originalFileName": map[string]any{"type": []any{"string", "null"}},
		"mimeType":         map[string]any{"type": "string"},
		"documentType":     map[string]any{"type": []any{"string", "null"}},
		"createdAt":        map[string]any{"type": []any{"integer", "null"}, "minimum": 0},
		"downloadUrl":      map[string]any{"type": "string", "minLength": 1},
	},
}
