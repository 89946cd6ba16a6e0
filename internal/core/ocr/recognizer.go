package ocr

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/joseph-ayodele/media-converter/internal/core/extract"
)

// Recognition is the text found in one image.
type Recognition struct {
	Text       string
	Confidence extract.Confidence
}

// Recognizer runs OCR over one encoded image.
type Recognizer interface {
	Recognize(ctx context.Context, img []byte) (Recognition, error)
}

// Tesseract recognizes images with libtesseract through gosseract.
type Tesseract struct {
	languages     []string
	psm           int
	tessdata      string
	clientFactory func() *gosseract.Client
}

func NewTesseract(languages []string, psm int, tessdataDir string) *Tesseract {
	return &Tesseract{languages: languages, psm: psm, tessdata: tessdataDir, clientFactory: gosseract.NewClient}
}

func (t *Tesseract) Recognize(ctx context.Context, img []byte) (Recognition, error) {
	if err := ctx.Err(); err != nil {
		return Recognition{}, err
	}
	c := t.clientFactory()
	defer c.Close()

	if t.tessdata != "" {
		if err := c.SetTessdataPrefix(t.tessdata); err != nil {
			return Recognition{}, fmt.Errorf("set tessdata: %w", err)
		}
	}
	if len(t.languages) > 0 {
		if err := c.SetLanguage(t.languages...); err != nil {
			return Recognition{}, fmt.Errorf("set languages: %w", err)
		}
	}
	if t.psm > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(t.psm)); err != nil {
			return Recognition{}, fmt.Errorf("set psm: %w", err)
		}
	}
	if err := c.SetImageFromBytes(img); err != nil {
		return Recognition{}, fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return Recognition{}, fmt.Errorf("recognize text: %w", err)
	}
	return Recognition{Text: text, Confidence: wordConfidence(c)}, nil
}

// wordConfidence is the mean tesseract confidence over recognized words.
func wordConfidence(c *gosseract.Client) extract.Confidence {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return extract.UnknownConfidence
	}
	var sum float64
	var n int
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" {
			continue
		}
		sum += b.Confidence
		n++
	}
	if n == 0 {
		return extract.UnknownConfidence
	}
	return extract.KnownConfidence(int(math.Round(sum / float64(n))))
}
