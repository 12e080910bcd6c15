package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/speechviz/internal/apperr"
)

type fakeSynth struct {
	audio  []byte
	err    error
	noKey  bool
	calls  int
	closed bool
}

func (f *fakeSynth) Synthesize(_ context.Context, text string, _ SynthesizeOpts) (*SynthesizeResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &SynthesizeResult{Audio: f.audio, ContentType: "audio/wav"}, nil
}

func (f *fakeSynth) Close() error {
	f.closed = true
	return nil
}

func (f *fakeSynth) HasCredentials() bool { return !f.noKey }

// stepClock advances by step on every reading.
func stepClock(step time.Duration) func() time.Time {
	t := time.Unix(0, 0)
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

func TestGenerate(t *testing.T) {
	payload := append([]byte("RIFF"), make([]byte, 42)...)
	synth := &fakeSynth{audio: payload}
	svc := NewService(synth, SynthesizeOpts{}, nil)
	svc.now = stepClock(1500 * time.Millisecond)

	resp, err := svc.Generate(t.Context(), "Hello world")
	require.NoError(t, err)
	assert.Empty(t, resp.Error)
	require.NotNil(t, resp.Timing)
	assert.Equal(t, 11, resp.Timing.InputLength)
	assert.InDelta(t, 1.5, resp.Timing.ElapsedSeconds, 1e-9)

	decoded, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
	require.NoError(t, err)
	assert.Len(t, decoded, len(payload))
	assert.Equal(t, payload, decoded)
}

func TestGenerateInputLengthCountsUTF16(t *testing.T) {
	svc := NewService(&fakeSynth{audio: []byte{1}}, SynthesizeOpts{}, nil)
	resp, err := svc.Generate(t.Context(), "héllo 🎵")
	require.NoError(t, err)
	assert.Equal(t, 8, resp.Timing.InputLength)
}

func TestGenerateMissingKey(t *testing.T) {
	synth := &fakeSynth{noKey: true}
	svc := NewService(synth, SynthesizeOpts{}, nil)

	resp, err := svc.Generate(t.Context(), "Hello")
	assert.ErrorIs(t, err, apperr.ErrConfigMissing)
	assert.Equal(t, MsgMissingKey, resp.Error)
	assert.Empty(t, resp.AudioBase64)
	assert.Zero(t, synth.calls)
}

func TestGenerateProviderStatus(t *testing.T) {
	synth := &fakeSynth{err: &StatusError{Provider: "groq", StatusCode: 429}}
	svc := NewService(synth, SynthesizeOpts{}, nil)

	resp, err := svc.Generate(t.Context(), "Hello")
	assert.Equal(t, apperr.KindProviderError, apperr.KindOf(err))
	assert.Equal(t, "Error generating speech: Too Many Requests", resp.Error)
}

func TestGenerateTransportFailure(t *testing.T) {
	synth := &fakeSynth{err: errors.New("dial tcp: connection refused")}
	svc := NewService(synth, SynthesizeOpts{}, nil)

	resp, err := svc.Generate(t.Context(), "Hello")
	assert.Equal(t, apperr.KindTransport, apperr.KindOf(err))
	assert.Equal(t, MsgGenerateRetry, resp.Error)
	assert.NotContains(t, resp.Error, "connection refused", "detail stays in the logs")
}

func TestGenerateEmptyInput(t *testing.T) {
	synth := &fakeSynth{}
	svc := NewService(synth, SynthesizeOpts{}, nil)

	_, err := svc.Generate(t.Context(), "   ")
	assert.ErrorIs(t, err, apperr.ErrInputInvalid)
	assert.Zero(t, synth.calls)
}

func TestServiceClose(t *testing.T) {
	synth := &fakeSynth{}
	require.NoError(t, NewService(synth, SynthesizeOpts{}, nil).Close())
	assert.True(t, synth.closed)
}

func TestStatusError(t *testing.T) {
	err := &StatusError{Provider: "groq", StatusCode: 503, Err: errors.New("down")}
	assert.Equal(t, "Service Unavailable", err.StatusText())
	assert.Contains(t, err.Error(), "status 503")
	assert.Equal(t, "status 799", (&StatusError{StatusCode: 799}).StatusText())
}
