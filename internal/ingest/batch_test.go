package ingest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/media-converter/constants"
	"github.com/joseph-ayodele/media-converter/internal/core/classify"
	"github.com/joseph-ayodele/media-converter/internal/core/convert"
	"github.com/joseph-ayodele/media-converter/internal/core/media"
)

// echoConverter returns the file content as text; "fail" content fails.
type echoConverter struct {
	mu    sync.Mutex
	seen  []string
	force classify.Strategy
}

func (e *echoConverter) Convert(ctx context.Context, req convert.Request, d media.Descriptor) convert.Result {
	return e.ConvertAs(ctx, req, d, "")
}

func (e *echoConverter) ConvertAs(ctx context.Context, _ convert.Request, d media.Descriptor, s classify.Strategy) convert.Result {
	defer d.Close()
	e.mu.Lock()
	e.seen = append(e.seen, d.Filename)
	e.force = s
	e.mu.Unlock()
	b, _ := d.ReadAll(ctx, 0)
	if string(b) == "fail" {
		return convert.Result{ID: d.ID, Status: constants.ConversionFailed, ErrorCode: convert.BackendFailure, ErrorMessage: "boom"}
	}
	return convert.Result{ID: d.ID, Status: constants.ConversionSuccess, ExtractedText: string(b), Strategy: classify.TextOnly}
}

func (e *echoConverter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.seen)
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readSidecar(t *testing.T, path string) convert.Result {
	t.Helper()
	b, err := os.ReadFile(SidecarPath(path))
	require.NoError(t, err)
	var res convert.Result
	require.NoError(t, json.Unmarshal(b, &res))
	return res
}

func TestConvertDirectory(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "a.txt"), "alpha")
	write(t, filepath.Join(root, "sub", "b.md"), "beta")
	write(t, filepath.Join(root, "sub", "bad.csv"), "fail")
	write(t, filepath.Join(root, "noext"), "ignored")
	write(t, filepath.Join(root, ".hidden", "c.txt"), "hidden")

	conv := &echoConverter{}
	b := NewBatch(conv, Config{SkipHidden: true}, nil)

	results, stats, err := b.ConvertDirectory(context.Background(), root)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, uint32(3), stats.Matched)
	assert.Equal(t, uint32(2), stats.Succeeded)
	assert.Equal(t, uint32(1), stats.Failed)

	res := readSidecar(t, filepath.Join(root, "a.txt"))
	assert.Equal(t, "alpha", res.ExtractedText)
	assert.Equal(t, constants.ConversionSuccess, res.Status)
	assert.Len(t, res.ID, 64)
	assert.Equal(t, "boom", readSidecar(t, filepath.Join(root, "sub", "bad.csv")).ErrorMessage)

	// second run skips up-to-date sidecars, and never picks up the sidecars themselves
	_, stats, err = b.ConvertDirectory(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), stats.Skipped)
	assert.Equal(t, 3, conv.count())
}

func TestConvertFile_ForceAndStrategy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.pdf")
	write(t, path, "%PDF")
	conv := &echoConverter{}
	b := NewBatch(conv, Config{Force: true, Strategy: classify.OCR}, nil)

	_, err := b.ConvertFile(context.Background(), path)
	require.NoError(t, err)
	res, err := b.ConvertFile(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 2, conv.count())
	assert.Equal(t, classify.OCR, conv.force)
}

func TestAccepts(t *testing.T) {
	b := NewBatch(&echoConverter{}, Config{SkipHidden: true}, nil)
	assert.True(t, b.Accepts("/x/a.PDF"))
	assert.False(t, b.Accepts("/x/a.pdf"+SidecarSuffix))
	assert.False(t, b.Accepts("/x/.a.pdf"))
	assert.False(t, b.Accepts("/x/a.unknownext"))

	only := NewBatch(&echoConverter{}, Config{AllowedExts: map[string]struct{}{"png": {}}}, nil)
	assert.True(t, only.Accepts("a.png"))
	assert.False(t, only.Accepts("a.pdf"))
}

func TestConvertDirectory_EmptyRoot(t *testing.T) {
	_, _, err := NewBatch(&echoConverter{}, Config{}, nil).ConvertDirectory(context.Background(), " ")
	assert.Error(t, err)
}

func TestWatch(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "existing.txt"), "already here")

	conv := &echoConverter{}
	b := NewBatch(conv, Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- b.Watch(ctx, WatchConfig{Roots: []string{root}, InitialScan: true, Debounce: 20 * time.Millisecond})
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(SidecarPath(filepath.Join(root, "existing.txt")))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	write(t, filepath.Join(root, "new.txt"), "fresh")
	require.Eventually(t, func() bool {
		_, err := os.Stat(SidecarPath(filepath.Join(root, "new.txt")))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "fresh", readSidecar(t, filepath.Join(root, "new.txt")).ExtractedText)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestStartWatcher_NoRoots(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{}, func(string) bool { return true }, nil)
	assert.Error(t, err)
}
