package speech

import (
	"fmt"

	"github.com/joseph-ayodele/media-converter/constants"
)

// Encoding is the audio encoding hint handed to the transcriber.
type Encoding string

const (
	EncodingMP3      Encoding = "MP3"
	EncodingLinear16 Encoding = "LINEAR16"
	EncodingFLAC     Encoding = "FLAC"
	EncodingOggOpus  Encoding = "OGG_OPUS"
	EncodingAMR      Encoding = "AMR"
	EncodingWebmOpus Encoding = "WEBM_OPUS"
)

var encodings = map[string]Encoding{
	constants.MIMETypeMP3:  EncodingMP3,
	"audio/mp3":            EncodingMP3,
	constants.MIMETypeM4A:  EncodingMP3,
	"audio/x-m4a":          EncodingMP3,
	"audio/m4a":            EncodingMP3,
	constants.MIMETypeAAC:  EncodingMP3,
	constants.MIMETypeWAV:  EncodingLinear16,
	"audio/x-wav":          EncodingLinear16,
	"audio/wave":           EncodingLinear16,
	constants.MIMETypeFLAC: EncodingFLAC,
	"audio/x-flac":         EncodingFLAC,
	constants.MIMETypeOGG:  EncodingOggOpus,
	"audio/opus":           EncodingOggOpus,
	constants.MIMETypeAMR:  EncodingAMR,
	constants.MIMETypeWEBM: EncodingWebmOpus,
}

// UnsupportedEncodingError reports an audio content type with no known encoding.
type UnsupportedEncodingError struct {
	ContentType string
}

func (e *UnsupportedEncodingError) Error() string {
	return fmt.Sprintf("unsupported audio encoding for content type %q", e.ContentType)
}

// EncodingFor maps a normalized audio content type to its encoding.
func EncodingFor(contentType string) (Encoding, error) {
	ct := constants.NormalizeMIME(contentType)
	if enc, ok := encodings[ct]; ok {
		return enc, nil
	}
	return "", &UnsupportedEncodingError{ContentType: contentType}
}
