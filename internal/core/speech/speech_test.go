package speech

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/media-converter/internal/core/extract"
	"github.com/joseph-ayodele/media-converter/internal/core/gemini"
	"github.com/joseph-ayodele/media-converter/internal/core/media"
)

type fakeTranscriber struct {
	tr    Transcript
	err   error
	calls []Audio
}

func (f *fakeTranscriber) Transcribe(_ context.Context, a Audio) (Transcript, error) {
	f.calls = append(f.calls, a)
	return f.tr, f.err
}

type fakeGenerator struct {
	reply string
	req   gemini.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req gemini.Request) (string, error) {
	f.req = req
	return f.reply, nil
}

func desc(ct string) media.Descriptor {
	return media.Descriptor{ID: "a1", ContentType: ct, Size: media.UnknownSize, Source: media.BytesSource("audio-bytes")}
}

func TestEncodingFor(t *testing.T) {
	tests := []struct {
		ct   string
		want Encoding
	}{
		{"audio/mpeg", EncodingMP3},
		{"audio/wav", EncodingLinear16},
		{"audio/flac", EncodingFLAC},
		{"audio/mp4", EncodingMP3},
		{"audio/aac", EncodingMP3},
		{"audio/ogg; codecs=opus", EncodingOggOpus},
		{"audio/amr", EncodingAMR},
		{"AUDIO/WEBM", EncodingWebmOpus},
	}
	for _, tt := range tests {
		t.Run(tt.ct, func(t *testing.T) {
			got, err := EncodingFor(tt.ct)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := EncodingFor("audio/unknown-codec")
	var ue *UnsupportedEncodingError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "audio/unknown-codec", ue.ContentType)
}

func TestBackend_UnsupportedEncoding(t *testing.T) {
	tr := &fakeTranscriber{}
	_, err := NewBackend(Config{}, tr, nil).Extract(context.Background(), desc("audio/unknown-codec"))

	var be *extract.BackendError
	require.ErrorAs(t, err, &be)
	assert.False(t, be.Recoverable)
	var ue *UnsupportedEncodingError
	assert.ErrorAs(t, err, &ue)
	assert.Empty(t, tr.calls, "transcriber must not run without an encoding")
}

func TestBackend_Transcribes(t *testing.T) {
	tr := &fakeTranscriber{tr: Transcript{Text: "hello there", Confidence: extract.KnownConfidence(87)}}
	out, err := NewBackend(Config{Language: "de-DE"}, tr, nil).Extract(context.Background(), desc("audio/x-wav"))
	require.NoError(t, err)

	assert.Equal(t, "hello there", out.Text)
	assert.Equal(t, Name, out.Backend)
	assert.Equal(t, "de-DE", out.Language)
	require.Len(t, tr.calls, 1)
	assert.Equal(t, EncodingLinear16, tr.calls[0].Encoding)
	assert.Equal(t, []byte("audio-bytes"), tr.calls[0].Data)
}

func TestBackend_TranscriberError(t *testing.T) {
	tr := &fakeTranscriber{err: errors.New("quota exceeded")}
	_, err := NewBackend(Config{}, tr, nil).Extract(context.Background(), desc("audio/flac"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestGeminiTranscriber(t *testing.T) {
	gen := &fakeGenerator{reply: `{"text":"good morning","confidence":80}`}
	got, err := NewGeminiTranscriber(gen).Transcribe(context.Background(), Audio{
		Data: []byte("x"), ContentType: "audio/mpeg", Encoding: EncodingMP3, Language: "en-US",
	})
	require.NoError(t, err)
	assert.Equal(t, "good morning", got.Text)
	assert.Equal(t, extract.KnownConfidence(80), got.Confidence)
	assert.Equal(t, "audio/mpeg", gen.req.MIMEType)
	assert.Contains(t, gen.req.Prompt, "MP3")
}
