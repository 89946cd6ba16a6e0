package ocr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/media-converter/internal/core/runner"
)

// heicToPNG converts HEIC/HEIF bytes to PNG with the configured converter.
// When ArtifactCacheDir is set the PNG is persisted (and reused) at
//
//	{ArtifactCacheDir}/{sha256(data)}.png
func (b *Backend) heicToPNG(ctx context.Context, data []byte) ([]byte, error) {
	sum := sha256.Sum256(data)
	hashHex := hex.EncodeToString(sum[:])

	var cached string
	if b.cfg.ArtifactCacheDir != "" {
		cached = filepath.Join(b.cfg.ArtifactCacheDir, hashHex+".png")
		if png, err := os.ReadFile(cached); err == nil {
			b.logger.Debug("using cached heic->png", "cache", cached)
			return png, nil
		}
	}

	tmpDir, err := os.MkdirTemp("", "mc-heic-*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	in := filepath.Join(tmpDir, "input.heic")
	out := filepath.Join(tmpDir, "page.png")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, err
	}

	var args []string
	switch b.cfg.HeicConverter {
	case "heif-convert", "magick":
		args = []string{in, out}
	case "sips":
		args = []string{"-s", "format", "png", in, "--out", out}
	default:
		return nil, fmt.Errorf("HEIC not supported: set ocr.Config.HeicConverter to one of: heif-convert | magick | sips")
	}
	if _, errb, err := b.runner.Run(ctx, b.cfg.HeicConverter, b.logger, args...); err != nil {
		return nil, fmt.Errorf("%s convert failed: %w: %s", b.cfg.HeicConverter, err, runner.Truncate(string(errb), 512))
	}

	png, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("HEIC conversion produced no output: %v", err)
	}

	if cached != "" {
		if err := persistArtifact(b.cfg.ArtifactCacheDir, cached, png); err != nil {
			b.logger.Warn("failed to cache heic->png", "cache", cached, "error", err)
		} else {
			b.logger.Debug("cached heic->png", "cache", cached)
		}
	}
	return png, nil
}

// persistArtifact writes through a temp file and renames so readers never see a partial PNG.
func persistArtifact(dir, path string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".heic-*.png")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		// another worker may have written it first
		if st, statErr := os.Stat(path); statErr == nil && !st.IsDir() {
			return nil
		}
		return err
	}
	return nil
}
