package media

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// UnknownSize marks a descriptor whose byte length was not declared.
const UnknownSize int64 = -1

// ErrOversize is returned by a limited stream once more than the allowed bytes were read.
var ErrOversize = errors.New("input exceeds maximum size")

// ByteSource opens independent, sequential, single-use streams over the same content.
// Each Open call must return a fresh stream; callers close what they open.
type ByteSource interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Descriptor describes one input to convert. It is owned by a single conversion call.
type Descriptor struct {
	ID          string
	Filename    string
	ContentType string
	Size        int64 // UnknownSize when not declared
	Source      ByteSource
}

// SizeKnown reports whether the descriptor carries a declared length.
func (d Descriptor) SizeKnown() bool { return d.Size >= 0 }

// Open opens a fresh stream from the descriptor's source.
func (d Descriptor) Open(ctx context.Context) (io.ReadCloser, error) {
	if d.Source == nil {
		return nil, fmt.Errorf("descriptor %q has no byte source", d.ID)
	}
	return d.Source.Open(ctx)
}

// ReadAll opens a fresh stream and reads it fully, failing with ErrOversize past limit (0 = no limit).
func (d Descriptor) ReadAll(ctx context.Context, limit int64) ([]byte, error) {
	rc, err := d.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(LimitStream(rc, limit))
}

// WithLimit returns a copy of d whose streams fail with ErrOversize after limit bytes.
func (d Descriptor) WithLimit(limit int64) Descriptor {
	if limit <= 0 || d.Source == nil {
		return d
	}
	d.Source = limitedSource{src: d.Source, limit: limit}
	return d
}

// Close releases the underlying source when it holds resources.
func (d Descriptor) Close() error {
	if c, ok := d.Source.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type limitedSource struct {
	src   ByteSource
	limit int64
}

func (s limitedSource) Open(ctx context.Context) (io.ReadCloser, error) {
	rc, err := s.src.Open(ctx)
	if err != nil {
		return nil, err
	}
	return struct {
		io.Reader
		io.Closer
	}{LimitStream(rc, s.limit), rc}, nil
}

func (s limitedSource) Close() error {
	if c, ok := s.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// LimitStream wraps r so that reading more than limit bytes yields ErrOversize.
func LimitStream(r io.Reader, limit int64) io.Reader {
	if limit <= 0 {
		return r
	}
	return &limitReader{r: r, remaining: limit}
}

type limitReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, ErrOversize
	}
	// read one byte past the limit to tell "exactly limit" from "over limit"
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n + int(l.remaining), ErrOversize
	}
	return n, err
}
