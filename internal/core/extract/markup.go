package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var reBlankRuns = regexp.MustCompile(`\n\s*\n+`)

func markupText(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse markup: %w", err)
	}
	doc.Find("script, style, noscript, head").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	var lines []string
	for _, ln := range strings.Split(doc.Text(), "\n") {
		lines = append(lines, strings.Join(strings.Fields(ln), " "))
	}
	text := strings.Join(lines, "\n")
	return reBlankRuns.ReplaceAllString(text, "\n\n"), nil
}

func jsonText(data []byte) (string, string) {
	text, note := decodeText(data)
	var out bytes.Buffer
	if err := json.Indent(&out, []byte(text), "", "  "); err != nil {
		return text, "invalid json: returned as text"
	}
	return out.String(), note
}

// rtfText drops control words, destinations and braces, keeping the text runs.
func rtfText(data []byte) string {
	s := string(data)
	var b strings.Builder
	// skipDepth > 0 while inside an ignorable destination group
	depth, skipDepth := 0, 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '{':
			depth++
			if skipDepth == 0 && isIgnorableGroup(s[i+1:]) {
				skipDepth = depth
			}
		case '}':
			if skipDepth == depth {
				skipDepth = 0
			}
			depth--
		case '\\':
			word, param, next := rtfControl(s, i+1)
			i = next - 1
			if skipDepth > 0 {
				continue
			}
			switch word {
			case "par", "line", "row":
				b.WriteString("\n")
			case "tab", "cell":
				b.WriteString("\t")
			case "'":
				if v, err := strconv.ParseUint(param, 16, 8); err == nil {
					b.WriteRune(rune(v))
				}
			case "u":
				if v, err := strconv.Atoi(param); err == nil {
					if v < 0 {
						v += 65536
					}
					b.WriteRune(rune(v))
					// skip the ANSI substitute character
					if next < len(s) && s[next] == '?' {
						i++
					}
				}
			case "\\", "{", "}":
				b.WriteString(word)
			}
		case '\r', '\n':
		default:
			if skipDepth == 0 {
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}

func isIgnorableGroup(rest string) bool {
	if strings.HasPrefix(rest, "\\*") {
		return true
	}
	for _, dest := range []string{"\\fonttbl", "\\colortbl", "\\stylesheet", "\\info", "\\pict", "\\header", "\\footer"} {
		if strings.HasPrefix(rest, dest) {
			return true
		}
	}
	return false
}

// rtfControl parses the control word starting at s[i] (just after the backslash).
// It returns the word, its numeric or hex parameter and the index after it.
func rtfControl(s string, i int) (string, string, int) {
	if i >= len(s) {
		return "", "", i
	}
	c := s[i]
	if c == '\'' {
		end := i + 3
		if end > len(s) {
			end = len(s)
		}
		return "'", s[i+1 : end], end
	}
	if !isASCIILetter(c) {
		return string(c), "", i + 1
	}
	j := i
	for j < len(s) && isASCIILetter(s[j]) {
		j++
	}
	word := s[i:j]
	k := j
	if k < len(s) && (s[k] == '-' || isASCIIDigit(s[k])) {
		k++
		for k < len(s) && isASCIIDigit(s[k]) {
			k++
		}
	}
	param := s[j:k]
	if k < len(s) && s[k] == ' ' {
		k++
	}
	return word, param, k
}

func isASCIILetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isASCIIDigit(c byte) bool  { return c >= '0' && c <= '9' }
