package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/media-converter/constants"
)

type DirStats struct {
	Scanned   uint32
	Matched   uint32
	Succeeded uint32
	Skipped   uint32
	Failed    uint32
}

// ConvertDirectory walks root and converts every accepted file. A file whose
// conversion does not succeed counts as failed; the walk continues.
func (b *Batch) ConvertDirectory(ctx context.Context, root string) ([]FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var results []FileResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if d.IsDir() {
			if path != root && b.cfg.SkipHidden && IsHidden(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if !b.Accepts(path) {
			return nil
		}
		stats.Matched++

		res, err := b.ConvertFile(ctx, path)
		switch {
		case err != nil:
			res.Err = err.Error()
			stats.Failed++
		case res.Skipped:
			stats.Skipped++
		case res.Status == constants.ConversionSuccess:
			stats.Succeeded++
		default:
			stats.Failed++
		}
		results = append(results, res)
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	b.logger.Info("directory converted", "root", root,
		"scanned", stats.Scanned, "matched", stats.Matched, "succeeded", stats.Succeeded,
		"skipped", stats.Skipped, "failed", stats.Failed)
	return results, stats, nil
}
