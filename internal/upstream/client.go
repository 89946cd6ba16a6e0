// Package upstream looks up document metadata in the workflow orchestrator.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/media-converter/internal/common"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrAccessDenied     = errors.New("access to document denied")
)

// maxBody caps the metadata response size.
const maxBody = 1 << 20

type Config struct {
	BaseURL      string
	DocumentPath string // contains {documentId}
	TenantHeader string
	Timeout      time.Duration
}

// Document is the metadata needed to fetch and convert one document.
type Document struct {
	ID           string    `json:"documentId"`
	Filename     string    `json:"originalFileName"`
	ContentType  string    `json:"mimeType"`
	DocumentType string    `json:"documentType"`
	CreatedAt    time.Time `json:"-"`
	DownloadURL  string    `json:"downloadUrl"`
}

// DocumentFetcher is what the conversion service needs from the upstream.
type DocumentFetcher interface {
	GetDocument(ctx context.Context, tenantID, documentID string) (*Document, error)
}

type Client struct {
	cfg    Config
	http   *http.Client
	schema *jsonschema.Schema
	logger *slog.Logger
}

func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("upstream base url is required")
	}
	if cfg.DocumentPath == "" {
		cfg.DocumentPath = "/api/v1/documents/{documentId}"
	}
	if cfg.TenantHeader == "" {
		cfg.TenantHeader = "X-Tenant-ID"
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	schema, err := common.CompileSchema("document.json", documentSchema)
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, http: httpClient, schema: schema, logger: logger}, nil
}

func (c *Client) GetDocument(ctx context.Context, tenantID, documentID string) (*Document, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") +
		strings.ReplaceAll(c.cfg.DocumentPath, "{documentId}", url.PathEscape(documentID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build document request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if tenantID != "" {
		req.Header.Set(c.cfg.TenantHeader, tenantID)
	}

	c.logger.Info("getting document from orchestrator", "document_id", documentID, "tenant_id", tenantID)
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("failed to get document", "document_id", documentID, "error", err)
		return nil, fmt.Errorf("get document %s: %w", documentID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrDocumentNotFound
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrAccessDenied
	case resp.StatusCode/100 != 2:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("get document %s: status %d: %s", documentID, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read document response: %w", err)
	}
	if err := common.ValidateJSON(c.schema, body); err != nil {
		c.logger.Error("invalid document response", "document_id", documentID, "error", err)
		return nil, fmt.Errorf("document %s: %w", documentID, err)
	}

	var raw struct {
		Document
		CreatedAt *int64 `json:"createdAt"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode document response: %w", err)
	}
	doc := raw.Document
	if raw.CreatedAt != nil {
		doc.CreatedAt = time.UnixMilli(*raw.CreatedAt).UTC()
	}
	c.logger.Info("successfully got document", "document_id", doc.ID, "mime_type", doc.ContentType)
	return &doc, nil
}
