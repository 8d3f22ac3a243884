package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/voicekhata/backend/internal/config"
	"go.uber.org/zap"
)

// AudioInput is a voice note as received from the transport.
type AudioInput struct {
	Content    []byte
	Encoding   string
	SampleRate int
}

// Transcriber turns a voice note into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio AudioInput) (string, error)
}

type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)
}

type speechClient struct {
	client *speech.Client
}

func (c speechClient) Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
	return c.client.Recognize(ctx, req)
}

// TranscriptionService transcribes Hindi and Indian English voice notes with
// Google Cloud Speech-to-Text.
type TranscriptionService struct {
	recognizer recognizer
	closer     func() error
	cfg        *config.SpeechConfig
	log        *zap.Logger
}

// NewTranscriptionService connects to Speech-to-Text. It returns nil when
// speech is disabled or no credentials are available; callers then reply
// that voice notes cannot be read.
func NewTranscriptionService(ctx context.Context, cfg *config.SpeechConfig, log *zap.Logger) *TranscriptionService {
	if !cfg.Enabled {
		return nil
	}
	client, err := speech.NewClient(ctx)
	if err != nil {
		log.Warn("speech client unavailable, voice notes disabled", zap.Error(err))
		return nil
	}
	return &TranscriptionService{
		recognizer: speechClient{client: client},
		closer:     client.Close,
		cfg:        cfg,
		log:        log.Named("speech"),
	}
}

func (s *TranscriptionService) Transcribe(ctx context.Context, audio AudioInput) (string, error) {
	if len(audio.Content) == 0 {
		return "", fmt.Errorf("%w: audio data is empty", ErrValidation)
	}

	encoding, err := parseEncoding(audio.Encoding)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}

	rc := &speechpb.RecognitionConfig{
		Encoding:                   encoding,
		LanguageCode:               s.cfg.LanguageCode,
		AlternativeLanguageCodes:   s.cfg.AlternativeLanguageCodes,
		EnableAutomaticPunctuation: true,
		Model:                      "latest_short",
	}
	if audio.SampleRate > 0 {
		rc.SampleRateHertz = int32(audio.SampleRate)
	}

	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	startTime := time.Now()
	resp, err := s.recognizer.Recognize(timeoutCtx, &speechpb.RecognizeRequest{
		Config: rc,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio.Content},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: recognition failed: %v", ErrExternalService, err)
	}

	var transcript strings.Builder
	for _, result := range resp.GetResults() {
		if alternatives := result.GetAlternatives(); len(alternatives) > 0 {
			transcript.WriteString(alternatives[0].GetTranscript())
			transcript.WriteString(" ")
		}
	}

	text := strings.TrimSpace(transcript.String())
	if text == "" {
		return "", fmt.Errorf("%w: no transcription results", ErrExternalService)
	}

	s.log.Debug("voice note transcribed",
		zap.Int("bytes", len(audio.Content)),
		zap.Duration("took", time.Since(startTime)))
	return text, nil
}

// parseEncoding maps the transport's encoding name. Empty means OGG_OPUS,
// the format WhatsApp voice notes arrive in.
func parseEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch strings.ToUpper(encoding) {
	case "", "OGG_OPUS", "OGG", "OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "LINEAR16", "WAV":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "AMR":
		return speechpb.RecognitionConfig_AMR, nil
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB, nil
	case "WEBM_OPUS", "WEBM":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

func (s *TranscriptionService) Close() error {
	if s != nil && s.closer != nil {
		return s.closer()
	}
	return nil
}
