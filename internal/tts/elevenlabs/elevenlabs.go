// Package elevenlabs implements the TTS Synthesizer using the ElevenLabs API.
//
// Audio is requested as raw 16-bit PCM and wrapped in a WAV container so the
// studio can play and visualize it like any other backend's output.
package elevenlabs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/haguro/elevenlabs-go"

	"github.com/nadzzz/speechviz/internal/config"
	"github.com/nadzzz/speechviz/internal/tts"
	"github.com/nadzzz/speechviz/internal/wavfile"
)

// speechAPI is the part of the ElevenLabs client we use.
type speechAPI interface {
	TextToSpeech(voiceID string, req elevenlabs.TextToSpeechRequest, queries ...elevenlabs.QueryFunc) ([]byte, error)
}

// Synthesizer implements tts.Synthesizer.
type Synthesizer struct {
	apiKey     string
	voiceID    string
	modelID    string
	sampleRate int
	timeout    time.Duration

	newClient func(ctx context.Context) speechAPI
}

// New creates an ElevenLabs synthesizer from config.
func New(cfg config.ElevenLabsConfig) *Synthesizer {
	rate := cfg.SampleRate
	switch rate {
	case 16000, 22050, 24000, 44100:
	default:
		rate = 22050
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := &Synthesizer{
		apiKey:     cfg.APIKey,
		voiceID:    cfg.VoiceID,
		modelID:    cfg.ModelID,
		sampleRate: rate,
		timeout:    timeout,
	}
	s.newClient = func(ctx context.Context) speechAPI {
		return elevenlabs.NewClient(ctx, s.apiKey, s.timeout)
	}
	return s
}

// HasCredentials implements tts.CredentialChecker.
func (s *Synthesizer) HasCredentials() bool { return s.apiKey != "" }

// Synthesize converts text to speech and returns it as WAV.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.SynthesizeOpts) (*tts.SynthesizeResult, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text for synthesis")
	}
	voice := opts.Voice
	if voice == "" {
		voice = s.voiceID
	}

	slog.Debug("elevenlabs synthesize", "text_length", len(text), "voice", voice, "model", s.modelID)

	pcm, err := s.newClient(ctx).TextToSpeech(voice, elevenlabs.TextToSpeechRequest{
		Text:    text,
		ModelID: s.modelID,
	}, elevenlabs.OutputFormat(fmt.Sprintf("pcm_%d", s.sampleRate)))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs tts: %w", err)
	}

	wav, err := wavfile.FromPCM(pcm, s.sampleRate, 1, 2)
	if err != nil {
		return nil, fmt.Errorf("wrapping pcm: %w", err)
	}
	return &tts.SynthesizeResult{
		Audio:       wav,
		ContentType: wavfile.MIMEType,
		SampleRate:  s.sampleRate,
		Channels:    1,
	}, nil
}

// Close is a no-op; clients are per request.
func (s *Synthesizer) Close() error { return nil }
