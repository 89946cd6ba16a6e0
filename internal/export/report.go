// Package export renders batch conversion summaries as spreadsheets.
package export

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/media-converter/internal/ingest"
)

const sheet = "Conversions"

var headers = []string{
	"File",
	"Status",
	"Strategy",
	"Method",
	"Confidence",
	"Used Fallback",
	"Characters",
	"Elapsed (ms)",
	"SHA-256",
	"Error",
}

// BatchReportXLSX returns an XLSX workbook (as bytes) with one row per file.
func BatchReportXLSX(results []ingest.FileResult, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range results {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		status := string(r.Status)
		if r.Skipped {
			status = "SKIPPED"
		}
		write(1, r.Path)
		write(2, status)
		write(3, string(r.Strategy))
		write(4, r.Method)
		if r.Confidence != nil {
			write(5, *r.Confidence)
		}
		write(6, r.UsedFallback)
		write(7, r.Chars)
		write(8, r.ElapsedMs)
		write(9, r.HashHex)
		write(10, truncate(r.Err, 200))
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 60) // path
	_ = f.SetColWidth(sheet, "B", "D", 20)
	_ = f.SetColWidth(sheet, "I", "I", 66) // hash
	_ = f.SetColWidth(sheet, "J", "J", 60) // error

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	logger.Info("batch report written", "rows", len(results), "elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
