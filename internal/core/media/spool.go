package media

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// Spool copies a fresh stream of d into a temp file for tools that need a path.
// The returned cleanup removes the file; it is safe to call when err != nil.
func (d Descriptor) Spool(ctx context.Context, limit int64, ext string) (string, func(), error) {
	noop := func() {}
	tmpDir, err := os.MkdirTemp("", "mc-spool-*")
	if err != nil {
		return "", noop, err
	}
	cleanup := func() { _ = os.RemoveAll(tmpDir) }

	rc, err := d.Open(ctx)
	if err != nil {
		return "", cleanup, err
	}
	defer rc.Close()

	path := filepath.Join(tmpDir, "input"+ext)
	f, err := os.Create(path)
	if err != nil {
		return "", cleanup, err
	}
	if _, err := io.Copy(f, LimitStream(rc, limit)); err != nil {
		_ = f.Close()
		return "", cleanup, err
	}
	if err := f.Close(); err != nil {
		return "", cleanup, err
	}
	return path, cleanup, nil
}
