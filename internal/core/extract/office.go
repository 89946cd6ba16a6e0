package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var reSlideName = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	return zipXMLText(zr, []string{"word/document.xml"}, map[string]bool{"t": true})
}

func pptxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pptx: %w", err)
	}
	type slide struct {
		n    int
		name string
	}
	var slides []slide
	for _, f := range zr.File {
		if m := reSlideName.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slide{n: n, name: f.Name})
		}
	}
	if len(slides) == 0 {
		return "", fmt.Errorf("pptx has no slides")
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })
	names := make([]string, len(slides))
	for i, s := range slides {
		names[i] = s.name
	}
	return zipXMLText(zr, names, map[string]bool{"t": true})
}

func odtText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open odt: %w", err)
	}
	return zipXMLText(zr, []string{"content.xml"}, map[string]bool{"p": true, "h": true, "span": true})
}

// zipXMLText concatenates the character data found inside textual elements of
// the named parts. Paragraph ends become newlines and tab elements become tabs.
func zipXMLText(zr *zip.Reader, parts []string, textElems map[string]bool) (string, error) {
	var b strings.Builder
	for _, name := range parts {
		f, err := zr.Open(name)
		if err != nil {
			return "", fmt.Errorf("open %s: %w", name, err)
		}
		err = xmlText(f, textElems, &b)
		_ = f.Close()
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", name, err)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

func xmlText(r io.Reader, textElems map[string]bool, b *strings.Builder) error {
	dec := xml.NewDecoder(r)
	depth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case textElems[t.Name.Local]:
				depth++
			case t.Name.Local == "tab":
				b.WriteString("\t")
			case t.Name.Local == "br" || t.Name.Local == "line-break":
				b.WriteString("\n")
			}
		case xml.EndElement:
			if textElems[t.Name.Local] && depth > 0 {
				depth--
			}
			if t.Name.Local == "p" || t.Name.Local == "h" {
				b.WriteString("\n")
			}
		case xml.CharData:
			if depth > 0 {
				b.Write(t)
			}
		}
	}
}

func xlsxText(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		b.WriteString(sheet)
		b.WriteString("\n")
		for _, row := range rows {
			b.WriteString(strings.TrimRight(strings.Join(row, "\t"), "\t"))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}
