package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/joseph-ayodele/media-converter/internal/core/media"
	"github.com/joseph-ayodele/media-converter/internal/core/runner"
)

// extractPDF rasterizes each page with pdftoppm and recognizes the pages in order.
// Pages that fail recognition are skipped with a warning.
func (b *Backend) extractPDF(ctx context.Context, d media.Descriptor) ([]Recognition, []string, error) {
	path, cleanup, err := d.Spool(ctx, b.cfg.MaxBytes, ".pdf")
	defer cleanup()
	if err != nil {
		return nil, nil, fmt.Errorf("spool pdf: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "mc-pp-*")
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			b.logger.Warn("failed to remove temp dir", "dir", tmpDir, "error", err)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png [-l N] <in.pdf> <tmp/page>
	args := []string{"-r", strconv.Itoa(b.cfg.DPI), "-png"}
	if b.cfg.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(b.cfg.MaxPages))
	}
	args = append(args, path, prefix)
	if _, errb, err := b.runner.Run(ctx, b.cfg.Pdftoppm, b.logger, args...); err != nil {
		return nil, nil, fmt.Errorf("pdftoppm: %w: %s", err, runner.Truncate(string(errb), 512))
	}

	// collect generated pngs (page-1.png, page-2.png, ... zero padded by pdftoppm)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if b.cfg.MaxPages > 0 && len(matches) > b.cfg.MaxPages {
		matches = matches[:b.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return nil, nil, fmt.Errorf("pdftoppm produced no images")
	}

	var (
		pages []Recognition
		warns []string
	)
	for i, img := range matches {
		if err := ctx.Err(); err != nil {
			return nil, warns, err
		}
		data, err := os.ReadFile(img)
		if err != nil {
			warns = append(warns, fmt.Sprintf("page %d: %v", i+1, err))
			continue
		}
		rec, err := b.recognizer.Recognize(ctx, data)
		if err != nil {
			warns = append(warns, fmt.Sprintf("page %d: %v", i+1, err))
			continue
		}
		pages = append(pages, rec)
	}
	if len(pages) == 0 {
		return nil, warns, fmt.Errorf("no page of %d recognized", len(matches))
	}
	return pages, warns, nil
}
