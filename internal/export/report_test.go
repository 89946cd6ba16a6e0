package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/media-converter/constants"
	"github.com/joseph-ayodele/media-converter/internal/core/classify"
	"github.com/joseph-ayodele/media-converter/internal/ingest"
)

func TestBatchReportXLSX(t *testing.T) {
	conf := 88
	b, err := BatchReportXLSX([]ingest.FileResult{
		{Path: "/in/a.png", Status: constants.ConversionSuccess, Strategy: classify.OCRWithFallback, Method: "vision-ocr", Confidence: &conf, UsedFallback: true, Chars: 12, HashHex: "ab"},
		{Path: "/in/b.txt", Skipped: true},
		{Path: "/in/c.wav", Status: constants.ConversionFailed, Err: strings.Repeat("x", 300)},
	}, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, headers, rows[0])
	assert.Equal(t, []string{"/in/a.png", "SUCCESS", "OCR_WITH_FALLBACK", "vision-ocr", "88", "TRUE", "12", "0", "ab"}, rows[1])
	assert.Equal(t, "SKIPPED", rows[2][1])
	assert.Len(t, []rune(rows[3][9]), 200)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
}
