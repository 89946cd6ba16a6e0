package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// BytesSource serves streams over an in-memory payload.
type BytesSource []byte

func (b BytesSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// FileSource opens the file at Path for every stream.
type FileSource struct {
	Path string
}

func (f FileSource) Open(context.Context) (io.ReadCloser, error) {
	return os.Open(f.Path)
}

// NewFileDescriptor builds a descriptor for a local file with its declared size.
func NewFileDescriptor(id, path, contentType string) (Descriptor, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Descriptor{}, err
	}
	if st.IsDir() {
		return Descriptor{}, fmt.Errorf("%s is a directory", path)
	}
	return Descriptor{
		ID:          id,
		Filename:    st.Name(),
		ContentType: contentType,
		Size:        st.Size(),
		Source:      FileSource{Path: path},
	}, nil
}

// HTTPSource downloads URL with a new GET request for every stream.
type HTTPSource struct {
	URL    string
	Client *http.Client
	Logger *slog.Logger
}

func NewHTTPSource(url string, client *http.Client, logger *slog.Logger) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSource{URL: url, Client: client, Logger: logger}
}

func (s *HTTPSource) Open(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("download: non-2xx status: %d", resp.StatusCode)
	}
	s.Logger.Debug("download stream opened", "status", resp.StatusCode, "content_length", resp.ContentLength)
	return resp.Body, nil
}

// Length asks the server for the content length with a HEAD request.
// It returns UnknownSize when the server does not declare one.
func (s *HTTPSource) Length(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.URL, nil)
	if err != nil {
		return UnknownSize, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return UnknownSize, err
	}
	_ = resp.Body.Close()
	if resp.StatusCode/100 != 2 || resp.ContentLength < 0 {
		return UnknownSize, nil
	}
	return resp.ContentLength, nil
}
