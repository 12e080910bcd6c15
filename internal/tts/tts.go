// Package tts defines the interface for text-to-speech synthesis and the
// server-side wrapper that turns a synthesis into a speech response.
//
// Backends live in subpackages: groq (OpenAI-compatible speech endpoint),
// elevenlabs, piper (Wyoming protocol) and native (speaks through the local
// audio output instead of returning audio).
package tts

import (
	"context"
	"fmt"
	"net/http"
)

// SynthesizeOpts controls synthesis behavior.
type SynthesizeOpts struct {
	// Language is the ISO-639-1 code (e.g., "en", "fr", "es") to select the voice.
	Language string

	// Voice overrides the backend's configured voice.
	Voice string
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	// Synthesize generates a WAV file from the given text.
	Synthesize(ctx context.Context, text string, opts SynthesizeOpts) (*SynthesizeResult, error)

	// Close releases any resources held by the synthesizer.
	Close() error
}

// CredentialChecker is implemented by synthesizers that need credentials.
type CredentialChecker interface {
	// HasCredentials reports whether the backend is configured to call out.
	HasCredentials() bool
}

// SynthesizeResult holds the output of TTS synthesis.
type SynthesizeResult struct {
	// Audio is the synthesized audio as a WAV file.
	Audio []byte

	// ContentType is the MIME type of the audio (e.g., "audio/wav").
	ContentType string

	// SampleRate is the audio sample rate in Hz (e.g., 22050).
	SampleRate int

	// Channels is the number of audio channels (typically 1).
	Channels int
}

// StatusError reports a non-success HTTP status from a provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: status %d", e.Provider, e.StatusCode)
}

func (e *StatusError) Unwrap() error { return e.Err }

// StatusText is the reason phrase for the status code.
func (e *StatusError) StatusText() string {
	if text := http.StatusText(e.StatusCode); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", e.StatusCode)
}
