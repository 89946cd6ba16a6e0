package constants

import (
	"mime"
	"strings"
)

// Supported MIME types.
const (
	MIMETypePDF  = "application/pdf"
	MIMETypeDOC  = "application/msword"
	MIMETypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMETypeXLS  = "application/vnd.ms-excel"
	MIMETypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MIMETypePPT  = "application/vnd.ms-powerpoint"
	MIMETypePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	MIMETypeODT  = "application/vnd.oasis.opendocument.text"
	MIMETypeTXT  = "text/plain"
	MIMETypeCSV  = "text/csv"
	MIMETypeRTF  = "application/rtf"
	MIMETypeHTML = "text/html"
	MIMETypeXML  = "application/xml"
	MIMETypeJSON = "application/json"

	MIMETypeJPEG = "image/jpeg"
	MIMETypePNG  = "image/png"
	MIMETypeTIFF = "image/tiff"
	MIMETypeBMP  = "image/bmp"
	MIMETypeGIF  = "image/gif"
	MIMETypeWEBP = "image/webp"
	MIMETypeHEIC = "image/heic"
	MIMETypeHEIF = "image/heif"

	MIMETypeMP3  = "audio/mpeg"
	MIMETypeWAV  = "audio/wav"
	MIMETypeM4A  = "audio/mp4"
	MIMETypeAAC  = "audio/aac"
	MIMETypeFLAC = "audio/flac"
	MIMETypeOGG  = "audio/ogg"
	MIMETypeAMR  = "audio/amr"
	MIMETypeWEBM = "audio/webm"
)

// TextBasedMIMETypes are parsed structurally without OCR.
var TextBasedMIMETypes = map[string]struct{}{
	MIMETypeDOC:             {},
	MIMETypeDOCX:            {},
	MIMETypeXLS:             {},
	MIMETypeXLSX:            {},
	MIMETypePPT:             {},
	MIMETypePPTX:            {},
	MIMETypeODT:             {},
	MIMETypeTXT:             {},
	MIMETypeCSV:             {},
	MIMETypeRTF:             {},
	"text/rtf":              {},
	MIMETypeHTML:            {},
	"application/xhtml+xml": {},
	MIMETypeXML:             {},
	"text/xml":              {},
	"text/markdown":         {},
	MIMETypeJSON:            {},
}

var extToMIME = map[string]string{
	"pdf":  MIMETypePDF,
	"doc":  MIMETypeDOC,
	"docx": MIMETypeDOCX,
	"xls":  MIMETypeXLS,
	"xlsx": MIMETypeXLSX,
	"ppt":  MIMETypePPT,
	"pptx": MIMETypePPTX,
	"odt":  MIMETypeODT,
	"txt":  MIMETypeTXT,
	"csv":  MIMETypeCSV,
	"rtf":  MIMETypeRTF,
	"htm":  MIMETypeHTML,
	"html": MIMETypeHTML,
	"xml":  MIMETypeXML,
	"md":   "text/markdown",
	"json": MIMETypeJSON,
	"jpg":  MIMETypeJPEG,
	"jpeg": MIMETypeJPEG,
	"png":  MIMETypePNG,
	"tif":  MIMETypeTIFF,
	"tiff": MIMETypeTIFF,
	"bmp":  MIMETypeBMP,
	"gif":  MIMETypeGIF,
	"webp": MIMETypeWEBP,
	"heic": MIMETypeHEIC,
	"heif": MIMETypeHEIF,
	"mp3":  MIMETypeMP3,
	"wav":  MIMETypeWAV,
	"m4a":  MIMETypeM4A,
	"aac":  MIMETypeAAC,
	"flac": MIMETypeFLAC,
	"ogg":  MIMETypeOGG,
	"opus": MIMETypeOGG,
	"amr":  MIMETypeAMR,
	"webm": MIMETypeWEBM,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// NormalizeMIME lowercases a content type and drops any parameters ("; charset=...").
func NormalizeMIME(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}

// MIMEFromExt maps a file extension to its content type, or "" when unknown.
func MIMEFromExt(ext string) string {
	return extToMIME[NormalizeExt(ext)]
}

// IsHEIC reports whether the content type needs conversion before OCR.
func IsHEIC(contentType string) bool {
	ct := NormalizeMIME(contentType)
	return ct == MIMETypeHEIC || ct == MIMETypeHEIF
}
