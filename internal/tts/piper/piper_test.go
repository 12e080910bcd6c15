package piper

import (
	"bufio"
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/speechviz/internal/config"
	"github.com/nadzzz/speechviz/internal/tts"
	"github.com/nadzzz/speechviz/internal/wavfile"
)

// fakePiper answers one synthesize request with the given events.
func fakePiper(t *testing.T, reply func(conn net.Conn, req *event)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		req, _, err := readEvent(bufio.NewReader(conn))
		if err != nil {
			return
		}
		reply(conn, req)
	}()
	return ln.Addr().String()
}

func TestSynthesize(t *testing.T) {
	reqs := make(chan *event, 1)
	addr := fakePiper(t, func(conn net.Conn, req *event) {
		reqs <- req
		_ = writeEvent(conn, event{Type: "audio-start", Data: map[string]any{"rate": 16000, "width": 2, "channels": 1}}, nil)
		_ = writeEvent(conn, event{Type: "audio-chunk"}, []byte{1, 0, 2, 0})
		_ = writeEvent(conn, event{Type: "audio-chunk"}, []byte{3, 0})
		_ = writeEvent(conn, event{Type: "audio-stop"}, nil)
	})

	s := New(config.PiperConfig{Endpoint: "tcp://" + addr})
	res, err := s.Synthesize(t.Context(), "Hello world", tts.SynthesizeOpts{})
	require.NoError(t, err)

	got := <-reqs
	assert.Equal(t, "synthesize", got.Type)
	assert.Equal(t, "Hello world", got.Data["text"])
	assert.Equal(t, map[string]any{"name": "en_US-lessac-medium"}, got.Data["voice"])

	assert.Equal(t, 16000, res.SampleRate)
	info, err := wavfile.Inspect(res.Audio)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Frames)
}

func TestSynthesizePerLanguage(t *testing.T) {
	reqs := make(chan *event, 1)
	addr := fakePiper(t, func(conn net.Conn, req *event) {
		reqs <- req
		_ = writeEvent(conn, event{Type: "audio-stop"}, nil)
	})

	s := New(config.PiperConfig{
		Endpoints: map[string]string{"fr": addr},
		Voices:    map[string]string{"fr": "fr_FR-custom"},
	})
	_, err := s.Synthesize(t.Context(), "Bonjour", tts.SynthesizeOpts{Language: "fr"})
	require.NoError(t, err)
	got := <-reqs
	assert.Equal(t, map[string]any{"name": "fr_FR-custom"}, got.Data["voice"])
}

func TestSynthesizeServerError(t *testing.T) {
	addr := fakePiper(t, func(conn net.Conn, _ *event) {
		_ = writeEvent(conn, event{Type: "error", Data: map[string]any{"text": "voice not found"}}, nil)
	})

	s := New(config.PiperConfig{Endpoint: addr})
	_, err := s.Synthesize(t.Context(), "hi", tts.SynthesizeOpts{})
	assert.ErrorContains(t, err, "voice not found")
}

func TestSynthesizeNoEndpoint(t *testing.T) {
	s := New(config.PiperConfig{})
	_, err := s.Synthesize(t.Context(), "hi", tts.SynthesizeOpts{Language: "de"})
	assert.ErrorContains(t, err, "no piper endpoint")

	_, err = s.Synthesize(t.Context(), "", tts.SynthesizeOpts{})
	assert.Error(t, err)
}

func TestEventRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeEvent(&buf, event{Type: "audio-chunk", Data: map[string]any{"rate": 22050}}, []byte("pcm")))

	evt, payload, err := readEvent(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, "audio-chunk", evt.Type)
	assert.Equal(t, 22050, intField(evt.Data, "rate", 0))
	assert.Equal(t, []byte("pcm"), payload)
}

func TestReadEventBadHeader(t *testing.T) {
	_, _, err := readEvent(bufio.NewReader(bytes.NewBufferString("garbage\n")))
	assert.ErrorContains(t, err, "invalid wyoming header")
}

func TestReadEventLengthsOutOfRange(t *testing.T) {
	for _, header := range []string{
		"-5 0\n{}\n",
		"2 -1\n{}\n",
		"2000000 0\n",
		"2 100000000\n{}\n",
	} {
		_, _, err := readEvent(bufio.NewReader(bytes.NewBufferString(header)))
		assert.ErrorContains(t, err, "out of range", header)
	}
}
