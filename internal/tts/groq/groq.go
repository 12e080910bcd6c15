// Package groq implements the TTS Synthesizer against Groq's
// OpenAI-compatible speech endpoint.
package groq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nadzzz/speechviz/internal/config"
	"github.com/nadzzz/speechviz/internal/tts"
	"github.com/nadzzz/speechviz/internal/wavfile"
)

// Synthesizer implements tts.Synthesizer using POST /audio/speech.
type Synthesizer struct {
	client *openai.Client
	apiKey string
	model  string
	voice  string
}

// New creates a Groq synthesizer from config.
func New(cfg config.GroqConfig) *Synthesizer {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Synthesizer{
		client: openai.NewClientWithConfig(oc),
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		voice:  cfg.Voice,
	}
}

// HasCredentials implements tts.CredentialChecker.
func (s *Synthesizer) HasCredentials() bool { return s.apiKey != "" }

// Synthesize requests WAV audio for text.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.SynthesizeOpts) (*tts.SynthesizeResult, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text for synthesis")
	}
	voice := opts.Voice
	if voice == "" {
		voice = s.voice
	}

	slog.Debug("groq synthesize", "text_length", len(text), "model", s.model, "voice", voice)

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormat("wav"),
	})
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("reading speech response: %w", err)
	}

	result := &tts.SynthesizeResult{Audio: audio, ContentType: wavfile.MIMEType}
	if info, err := wavfile.Inspect(audio); err == nil {
		result.SampleRate = info.SampleRate
		result.Channels = info.Channels
	}
	return result, nil
}

// Close is a no-op.
func (s *Synthesizer) Close() error { return nil }

// classify turns go-openai failures carrying an HTTP status into
// tts.StatusError.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &tts.StatusError{Provider: "groq", StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &tts.StatusError{Provider: "groq", StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return fmt.Errorf("groq speech request: %w", err)
}
