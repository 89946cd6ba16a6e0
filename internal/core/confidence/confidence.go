// Package confidence scores extracted text when a backend reports no native confidence.
package confidence

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// StructureMinLength is the rune count a text must exceed to earn the structure bonus.
	StructureMinLength = 50
	// StructureBonus is added to texts that look like running prose.
	StructureBonus = 10
)

// Score returns a deterministic [0,100] quality estimate for text:
// the share of letters and digits among all runes, plus a bonus for long,
// whitespace-separated text.
func Score(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	total := utf8.RuneCountInString(text)
	alnum := 0
	hasSpace := false
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			alnum++
		case unicode.IsSpace(r):
			hasSpace = true
		}
	}

	score := alnum * 100 / total
	if hasSpace && total > StructureMinLength {
		score += StructureBonus
	}
	if score > 100 {
		score = 100
	}
	return score
}
