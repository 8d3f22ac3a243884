package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voicekhata/backend/internal/config"
	"go.uber.org/zap"
)

type fakeRecognizer struct {
	resp    *speechpb.RecognizeResponse
	err     error
	lastReq *speechpb.RecognizeRequest
}

func (f *fakeRecognizer) Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
	f.lastReq = req
	return f.resp, f.err
}

func newTestTranscriber(rec *fakeRecognizer) *TranscriptionService {
	return &TranscriptionService{
		recognizer: rec,
		cfg: &config.SpeechConfig{
			Enabled:                  true,
			LanguageCode:             "hi-IN",
			AlternativeLanguageCodes: []string{"en-IN"},
			Timeout:                  time.Second,
		},
		log: zap.NewNop(),
	}
}

func TestTranscriptionService_Transcribe(t *testing.T) {
	ctx := context.Background()

	t.Run("joins result alternatives", func(t *testing.T) {
		rec := &fakeRecognizer{resp: &speechpb.RecognizeResponse{
			Results: []*speechpb.SpeechRecognitionResult{
				{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "Ramesh ko"}}},
				{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "200 udhaar"}}},
			},
		}}

		text, err := newTestTranscriber(rec).Transcribe(ctx, AudioInput{Content: []byte{1, 2, 3}})
		require.NoError(t, err)
		assert.Equal(t, "Ramesh ko 200 udhaar", text)
		assert.Equal(t, "hi-IN", rec.lastReq.Config.LanguageCode)
		assert.Equal(t, []string{"en-IN"}, rec.lastReq.Config.AlternativeLanguageCodes)
		assert.Equal(t, speechpb.RecognitionConfig_OGG_OPUS, rec.lastReq.Config.Encoding)
	})

	t.Run("empty audio", func(t *testing.T) {
		_, err := newTestTranscriber(&fakeRecognizer{}).Transcribe(ctx, AudioInput{})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("unsupported encoding", func(t *testing.T) {
		_, err := newTestTranscriber(&fakeRecognizer{}).Transcribe(ctx, AudioInput{Content: []byte{1}, Encoding: "aiff"})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("recognizer failure", func(t *testing.T) {
		rec := &fakeRecognizer{err: errors.New("deadline exceeded")}
		_, err := newTestTranscriber(rec).Transcribe(ctx, AudioInput{Content: []byte{1}})
		assert.ErrorIs(t, err, ErrExternalService)
	})

	t.Run("no results", func(t *testing.T) {
		rec := &fakeRecognizer{resp: &speechpb.RecognizeResponse{}}
		_, err := newTestTranscriber(rec).Transcribe(ctx, AudioInput{Content: []byte{1}})
		assert.ErrorIs(t, err, ErrExternalService)
	})
}

func TestParseEncoding(t *testing.T) {
	enc, err := parseEncoding("linear16")
	require.NoError(t, err)
	assert.Equal(t, speechpb.RecognitionConfig_LINEAR16, enc)

	_, err = parseEncoding("aiff")
	assert.Error(t, err)
}
