package extract

import (
	"bytes"
	"strings"
	"unicode"
	"unicode/utf8"
)

// minRunLength is the shortest printable run kept from binary input.
const minRunLength = 4

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText treats data as text. Valid UTF-8 is returned as is; anything else
// is reduced to its printable runs.
func decodeText(data []byte) (string, string) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return strings.ReplaceAll(string(data), "\x00", ""), ""
	}
	return printableRuns(data), "binary input: printable runs only"
}

// printableRuns keeps sequences of at least minRunLength printable runes.
func printableRuns(data []byte) string {
	var (
		out strings.Builder
		run strings.Builder
		n   int
	)
	flush := func() {
		if n >= minRunLength {
			if out.Len() > 0 {
				out.WriteString("\n")
			}
			out.WriteString(strings.TrimSpace(run.String()))
		}
		run.Reset()
		n = 0
	}
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		data = data[size:]
		if r != utf8.RuneError && (unicode.IsPrint(r) || r == '\t') {
			run.WriteRune(r)
			n++
			continue
		}
		flush()
	}
	flush()
	return out.String()
}
