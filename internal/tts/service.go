package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/nadzzz/speechviz/internal/apperr"
)

// User-facing speech errors.
const (
	MsgMissingKey    = "Server configuration error: API key is missing."
	MsgGenerateRetry = "Failed to generate speech. Please try again."
	msgStatusPrefix  = "Error generating speech: "
)

// Timing describes one generation. InputLength counts UTF-16 code units,
// as a browser counts string length.
type Timing struct {
	ElapsedSeconds float64 `json:"elapsedSeconds"`
	InputLength    int     `json:"inputLength"`
}

// SpeechResponse is what the speech endpoint returns: audio and timing, or
// an error message.
type SpeechResponse struct {
	AudioBase64 string  `json:"audioBase64,omitempty"`
	Timing      *Timing `json:"timing,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// Service is the server-side speech action.
type Service struct {
	synth Synthesizer
	opts  SynthesizeOpts
	log   *slog.Logger
	now   func() time.Time
}

// NewService wraps synth.
func NewService(synth Synthesizer, opts SynthesizeOpts, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		synth: synth,
		opts:  opts,
		log:   log.With("component", "tts"),
		now:   time.Now,
	}
}

// Generate synthesizes input and returns it base64-encoded. On failure the
// response carries the user-facing message and the error carries its kind
// and detail.
func (s *Service) Generate(ctx context.Context, input string) (*SpeechResponse, error) {
	start := s.now()

	if c, ok := s.synth.(CredentialChecker); ok && !c.HasCredentials() {
		s.log.Error("tts api key is not set")
		return s.fail(apperr.E(apperr.KindConfigMissing, MsgMissingKey, nil))
	}
	if strings.TrimSpace(input) == "" {
		return s.fail(apperr.E(apperr.KindInputInvalid, "Text is required.", nil))
	}

	res, err := s.synth.Synthesize(ctx, input, s.opts)
	if err != nil {
		var status *StatusError
		if errors.As(err, &status) {
			s.log.Error("tts provider error", "status", status.StatusCode, "error", err)
			return s.fail(apperr.E(apperr.KindProviderError, msgStatusPrefix+status.StatusText(), err))
		}
		s.log.Error("generating speech", "error", err)
		return s.fail(apperr.E(apperr.KindTransport, MsgGenerateRetry, err))
	}

	audio := base64.StdEncoding.EncodeToString(res.Audio)
	timing := &Timing{
		ElapsedSeconds: s.now().Sub(start).Seconds(),
		InputLength:    len(utf16.Encode([]rune(input))),
	}
	s.log.Info("speech generated", "input_length", timing.InputLength, "audio_bytes", len(res.Audio), "elapsed_seconds", timing.ElapsedSeconds)
	return &SpeechResponse{AudioBase64: audio, Timing: timing}, nil
}

func (s *Service) fail(err *apperr.Error) (*SpeechResponse, error) {
	return &SpeechResponse{Error: err.Message}, err
}

// Close closes the synthesizer.
func (s *Service) Close() error { return s.synth.Close() }
