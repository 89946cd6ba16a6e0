package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/png"
	"io"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/joseph-ayodele/media-converter/constants"
)

type readImageFunc func(io.Reader) (image.Image, error)

// reencodeTypes are decoded and handed to tesseract as PNG.
var reencodeTypes = map[string]readImageFunc{
	constants.MIMETypeBMP:  bmp.Decode,
	"image/x-ms-bmp":       bmp.Decode,
	constants.MIMETypeTIFF: tiff.Decode,
	constants.MIMETypeWEBP: webp.Decode,
	constants.MIMETypeGIF:  gif.Decode,
}

// normalizeImage converts formats leptonica may lack support for into PNG.
// Anything else is passed through untouched.
func normalizeImage(contentType string, data []byte) ([]byte, error) {
	readImage, ok := reencodeTypes[contentType]
	if !ok {
		return data, nil
	}
	img, err := readImage(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", contentType, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
