package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/media-converter/constants"
	"github.com/joseph-ayodele/media-converter/internal/core/media"
)

type fakeRunner struct {
	stdout []byte
	stderr []byte
	err    error
	calls  [][]string
}

func (f *fakeRunner) Run(_ context.Context, name string, _ *slog.Logger, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.stdout, f.stderr, f.err
}

func desc(ct string, data []byte) media.Descriptor {
	return media.Descriptor{ID: "d1", ContentType: ct, Size: int64(len(data)), Source: media.BytesSource(data)}
}

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestPlainText_TextFormats(t *testing.T) {
	p := NewPlainText(PlainTextConfig{}, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		ct   string
		data string
		want string
	}{
		{"plain", "text/plain; charset=utf-8", "hello world\n", "hello world"},
		{"csv", constants.MIMETypeCSV, "a,b\n1,2\n", "a,b\n1,2"},
		{"markdown", "text/markdown", "# Title\n\nbody", "# Title\n\nbody"},
		{"bom stripped", constants.MIMETypeTXT, "\xEF\xBB\xBFhi there", "hi there"},
		{"html", constants.MIMETypeHTML, "<html><head><title>x</title><style>p{}</style></head><body><p>Hello</p><script>var a;</script><p>World</p></body></html>", "Hello\nWorld"},
		{"rtf", constants.MIMETypeRTF, `{\rtf1\ansi{\fonttbl{\f0 Arial;}}\f0 Hello\par World\'21}`, "Hello\nWorld!"},
		{"json", constants.MIMETypeJSON, `{"a":1}`, "{\n  \"a\": 1\n}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := p.Extract(ctx, desc(tt.ct, []byte(tt.data)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Text)
			assert.Equal(t, KnownConfidence(100), out.Confidence)
			assert.Equal(t, PlainTextName, out.Backend)
		})
	}
}

func TestPlainText_InvalidJSONStillReturnsText(t *testing.T) {
	p := NewPlainText(PlainTextConfig{}, nil)
	out, err := p.Extract(context.Background(), desc(constants.MIMETypeJSON, []byte(`{"a":`)))
	require.NoError(t, err)
	assert.Equal(t, `{"a":`, out.Text)
	assert.Contains(t, out.Note, "invalid json")
}

func TestPlainText_Docx(t *testing.T) {
	doc := `<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		`<w:p><w:r><w:t>Invoice</w:t><w:tab/><w:t>42</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Total due</w:t></w:r></w:p></w:body></w:document>`
	data := zipOf(t, map[string]string{"word/document.xml": doc})

	out, err := NewPlainText(PlainTextConfig{}, nil).Extract(context.Background(), desc(constants.MIMETypeDOCX, data))
	require.NoError(t, err)
	assert.Equal(t, "Invoice\t42\nTotal due", out.Text)
}

func TestPlainText_PptxSlidesInOrder(t *testing.T) {
	slide := func(s string) string {
		return `<p:sld xmlns:p="p" xmlns:a="a"><p:txBody><a:p><a:r><a:t>` + s + `</a:t></a:r></a:p></p:txBody></p:sld>`
	}
	data := zipOf(t, map[string]string{
		"ppt/slides/slide10.xml": slide("ten"),
		"ppt/slides/slide2.xml":  slide("two"),
		"ppt/slides/slide1.xml":  slide("one"),
	})

	out, err := NewPlainText(PlainTextConfig{}, nil).Extract(context.Background(), desc(constants.MIMETypePPTX, data))
	require.NoError(t, err)
	assert.Equal(t, "one\n\ntwo\n\nten", out.Text)
}

func TestPlainText_Odt(t *testing.T) {
	content := `<office:document-content xmlns:office="o" xmlns:text="t"><office:body><office:text>` +
		`<text:h>Heading</text:h><text:p>Some <text:span>styled</text:span> text</text:p>` +
		`</office:text></office:body></office:document-content>`
	data := zipOf(t, map[string]string{"content.xml": content})

	out, err := NewPlainText(PlainTextConfig{}, nil).Extract(context.Background(), desc(constants.MIMETypeODT, data))
	require.NoError(t, err)
	assert.Equal(t, "Heading\nSome styled text", out.Text)
}

func TestPlainText_Xlsx(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "item"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "price"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "coffee"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 3))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out, err := NewPlainText(PlainTextConfig{}, nil).Extract(context.Background(), desc(constants.MIMETypeXLSX, buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "Sheet1\nitem\tprice\ncoffee\t3", out.Text)
}

func TestPlainText_MalformedArchiveFails(t *testing.T) {
	_, err := NewPlainText(PlainTextConfig{}, nil).Extract(context.Background(), desc(constants.MIMETypeDOCX, []byte("not a zip")))
	require.Error(t, err)

	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, PlainTextName, be.Backend)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestPlainText_BinaryAndUnknown(t *testing.T) {
	p := NewPlainText(PlainTextConfig{}, nil)
	data := append([]byte{0xff, 0xfe, 0x00}, []byte("readable text\x00\x01ab\x02more words")...)

	out, err := p.Extract(context.Background(), desc("", data))
	require.NoError(t, err)
	assert.Equal(t, "readable text\nmore words", out.Text)
	assert.NotEmpty(t, out.Note)

	out, err = p.Extract(context.Background(), desc(constants.MIMETypeDOC, []byte("\x00\x00Word body text\x00\x00")))
	require.NoError(t, err)
	assert.Equal(t, "Word body text", out.Text)
}

func TestPlainText_PdfUsesPdftotext(t *testing.T) {
	r := &fakeRunner{stdout: []byte("page one\n\fpage two\n\f")}
	p := NewPlainText(PlainTextConfig{Pdftotext: "/usr/bin/pdftotext"}, nil).WithRunner(r)

	out, err := p.Extract(context.Background(), desc(constants.MIMETypePDF, []byte("%PDF-1.4")))
	require.NoError(t, err)
	assert.Equal(t, "page one\n\fpage two", out.Text)
	assert.Equal(t, 2, out.Pages)
	require.Len(t, r.calls, 1)
	assert.Equal(t, "/usr/bin/pdftotext", r.calls[0][0])
	assert.Equal(t, "-", r.calls[0][len(r.calls[0])-1])
}

func TestPlainText_PdftotextFailure(t *testing.T) {
	r := &fakeRunner{stderr: []byte("Syntax Error"), err: errors.New("exit status 1")}
	p := NewPlainText(PlainTextConfig{}, nil).WithRunner(r)

	_, err := p.Extract(context.Background(), desc(constants.MIMETypePDF, []byte("junk")))
	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Contains(t, be.Error(), "Syntax Error")
}

func TestPlainText_OversizeIsNotRecoverable(t *testing.T) {
	p := NewPlainText(PlainTextConfig{MaxBytes: 4}, nil)
	_, err := p.Extract(context.Background(), desc(constants.MIMETypeTXT, []byte("too many bytes")))

	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.False(t, be.Recoverable)
	assert.ErrorIs(t, err, media.ErrOversize)
}

func TestPrintableRuns(t *testing.T) {
	assert.Equal(t, "", printableRuns([]byte{0, 1, 2, 'a', 'b', 0}))
	assert.Equal(t, "abcd", printableRuns([]byte{0, 'a', 'b', 'c', 'd', 0}))
}

func TestFail_ForcesNonRecoverable(t *testing.T) {
	assert.False(t, Fail("x", context.Canceled, true).Recoverable)
	assert.False(t, Fail("x", media.ErrOversize, true).Recoverable)
	assert.True(t, Fail("x", errors.New("boom"), true).Recoverable)

	be := AsBackendError("y", errors.New("plain"))
	assert.Equal(t, "y", be.Backend)
	assert.True(t, be.Recoverable)
}
