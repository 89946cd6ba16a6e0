package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultModel = "gemini-1.5-flash"

// ErrEmptyResponse is returned when the model produced no text part.
var ErrEmptyResponse = errors.New("gemini: empty response")

// Request is one multimodal prompt: an instruction, a user prompt and an optional media blob.
type Request struct {
	Instruction string
	Prompt      string
	MIMEType    string
	Data        []byte
	JSON        bool // ask for application/json output
}

// Generator sends a prompt to a generative model and returns its first text part.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Client is a Generator backed by the Gemini API.
type Client struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

func NewClient(ctx context.Context, apiKey, model string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{client: cl, model: model, logger: logger}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Model() string { return c.model }

func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	m := c.client.GenerativeModel(c.model)
	if m == nil {
		return "", fmt.Errorf("gemini: model is nil")
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: ptrFloat32(0),
	}
	if req.JSON {
		m.GenerationConfig.ResponseMIMEType = "application/json"
	}
	if req.Instruction != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.Instruction)}}
	}

	parts := []genai.Part{genai.Text(req.Prompt)}
	if len(req.Data) > 0 {
		parts = append(parts, &genai.Blob{MIMEType: req.MIMEType, Data: req.Data})
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		c.logger.Error("gemini request failed", "model", c.model, "mime_type", req.MIMEType, "error", err)
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	txt := firstText(resp)
	c.logger.Debug("gemini request done",
		"model", c.model,
		"mime_type", req.MIMEType,
		"bytes", len(req.Data),
		"chars", len(txt),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if txt == "" {
		return "", ErrEmptyResponse
	}
	return txt, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }

type timeoutGenerator struct {
	gen     Generator
	timeout time.Duration
}

// WithTimeout bounds every Generate call of gen by d. A non-positive d returns gen.
func WithTimeout(gen Generator, d time.Duration) Generator {
	if d <= 0 {
		return gen
	}
	return timeoutGenerator{gen: gen, timeout: d}
}

func (t timeoutGenerator) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.gen.Generate(ctx, req)
}
