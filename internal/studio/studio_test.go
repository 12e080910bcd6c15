package studio

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/speechviz/internal/apperr"
	"github.com/nadzzz/speechviz/internal/blobstore"
	"github.com/nadzzz/speechviz/internal/events"
	"github.com/nadzzz/speechviz/internal/host"
	"github.com/nadzzz/speechviz/internal/host/headless"
	"github.com/nadzzz/speechviz/internal/tts"
	"github.com/nadzzz/speechviz/internal/wavfile"
)

type fakeGenerator struct {
	mu    sync.Mutex
	calls []string
	gates map[string]chan struct{}
	audio []byte
	raw   string
	err   error
}

func (g *fakeGenerator) Generate(ctx context.Context, text string) (*tts.SpeechResponse, error) {
	g.mu.Lock()
	g.calls = append(g.calls, text)
	gate := g.gates[text]
	g.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.err != nil {
		return &tts.SpeechResponse{Error: "boom"}, g.err
	}
	payload := g.raw
	if payload == "" {
		payload = base64.StdEncoding.EncodeToString(g.audio)
	}
	return &tts.SpeechResponse{
		AudioBase64: payload,
		Timing:      &tts.Timing{ElapsedSeconds: 0.5, InputLength: len(text)},
	}, nil
}

type fakeSpeaker struct{ spoken []string }

func (s *fakeSpeaker) Speak(_ context.Context, text string) error {
	s.spoken = append(s.spoken, text)
	return nil
}

type harness struct {
	orch   *Orchestrator
	gen    *fakeGenerator
	blobs  *blobstore.Store
	doc    *headless.Document
	signal *events.Signal
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	loop := headless.NewLoop(200)
	go loop.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-loop.Done()
	})

	blobs := blobstore.New(time.Minute)
	t.Cleanup(blobs.Close)

	// One second, so playback outlives the assertions.
	audio, err := wavfile.Encode(make([]int, 8000), 8000, 1, 16)
	require.NoError(t, err)

	h := &harness{
		gen:    &fakeGenerator{audio: audio, gates: map[string]chan struct{}{}},
		blobs:  blobs,
		doc:    headless.NewDocument(loop, blobs),
		signal: events.NewSignal("regenerated"),
	}
	h.orch = New(Config{
		Speech:      h.gen,
		Blobs:       blobs,
		Exec:        loop,
		Element:     func() host.MediaElement { return h.doc.MediaElement("audio-player") },
		Regenerated: h.signal,
	})
	return h
}

func TestGenerateLoadsAudio(t *testing.T) {
	h := newHarness(t)

	res, err := h.orch.Generate(context.Background(), "Hello world")
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.False(t, res.Native)
	assert.Equal(t, res.AudioURL, h.orch.Current())
	assert.Equal(t, 11, res.Timing.InputLength)
	assert.Equal(t, res.Timing, h.orch.Timing())

	el, ok := h.doc.Lookup("audio-player")
	require.True(t, ok)
	assert.Equal(t, res.AudioURL, el.Src())

	assert.Equal(t, 1, h.signal.Fired())
	assert.Equal(t, 1, h.blobs.Created())
	assert.Equal(t, 0, h.blobs.Released())
	assert.Equal(t, 1, h.blobs.Live())
}

func TestRegenerateReleasesPrevious(t *testing.T) {
	h := newHarness(t)

	first, err := h.orch.Generate(context.Background(), "one")
	require.NoError(t, err)
	second, err := h.orch.Generate(context.Background(), "two")
	require.NoError(t, err)

	assert.NotEqual(t, first.AudioURL, second.AudioURL)
	_, ok := h.blobs.Resolve(first.AudioURL)
	assert.False(t, ok)
	_, ok = h.blobs.Resolve(second.AudioURL)
	assert.True(t, ok)

	assert.Equal(t, 2, h.signal.Fired())
	assert.Equal(t, 2, h.blobs.Created())
	assert.Equal(t, 1, h.blobs.Released())

	h.orch.Close()
	assert.Equal(t, 0, h.blobs.Live())
	assert.Empty(t, h.orch.Current())
}

func TestSupersededGenerationIsDiscarded(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.gen.gates["slow"] = gate

	errc := make(chan error, 1)
	go func() {
		_, err := h.orch.Generate(context.Background(), "slow")
		errc <- err
	}()
	require.Eventually(t, func() bool {
		h.gen.mu.Lock()
		defer h.gen.mu.Unlock()
		return len(h.gen.calls) == 1
	}, time.Second, 5*time.Millisecond)

	fast, err := h.orch.Generate(context.Background(), "fast")
	require.NoError(t, err)

	close(gate)
	assert.ErrorIs(t, <-errc, ErrSuperseded)

	assert.Equal(t, fast.AudioURL, h.orch.Current())
	assert.Equal(t, 1, h.blobs.Created())
	assert.Equal(t, 1, h.signal.Fired())
}

func TestGenerateBlankIsNoop(t *testing.T) {
	h := newHarness(t)

	res, err := h.orch.Generate(context.Background(), "  \n")
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Empty(t, h.gen.calls)
	assert.Equal(t, 0, h.signal.Fired())
}

func TestGenerateDecodeErrors(t *testing.T) {
	for name, raw := range map[string]string{
		"base64": "not base64!",
		"wav":    base64.StdEncoding.EncodeToString([]byte("definitely not a wav")),
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.gen.raw = raw

			_, err := h.orch.Generate(context.Background(), "hi")
			require.Error(t, err)
			assert.Equal(t, apperr.KindDecodeError, apperr.KindOf(err))
			assert.Equal(t, 0, h.blobs.Created())
			assert.Equal(t, 0, h.signal.Fired())
		})
	}
}

func TestGenerateProviderError(t *testing.T) {
	h := newHarness(t)
	h.gen.err = apperr.E(apperr.KindProviderError, "Error generating speech: Bad Request", errors.New("400"))

	_, err := h.orch.Generate(context.Background(), "hi")
	assert.Equal(t, apperr.KindProviderError, apperr.KindOf(err))
	assert.Empty(t, h.orch.Current())
}

func TestGenerateNative(t *testing.T) {
	h := newHarness(t)
	speaker := &fakeSpeaker{}
	h.orch.native = speaker

	res, err := h.orch.Generate(context.Background(), "hola")
	require.NoError(t, err)
	assert.True(t, res.Native)
	assert.Empty(t, res.AudioURL)
	assert.Equal(t, []string{"hola"}, speaker.spoken)
	assert.Empty(t, h.gen.calls)
	assert.Equal(t, 0, h.signal.Fired())
}

func TestPlayPause(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.orch.Play(), host.ErrNoSource)

	_, err := h.orch.Generate(context.Background(), "hello")
	require.NoError(t, err)
	require.NoError(t, h.orch.Play())

	el, _ := h.doc.Lookup("audio-player")
	assert.False(t, el.Paused())
	require.NoError(t, h.orch.Pause())
	assert.True(t, el.Paused())
}

// brokenElement fails every load once broken is set.
type brokenElement struct {
	host.MediaElement
	broken bool
}

func (e *brokenElement) SetSrc(url string) error {
	if e.broken {
		return errors.New("unsupported media")
	}
	return e.MediaElement.SetSrc(url)
}

func TestFailedLoadKeepsPreviousArtifact(t *testing.T) {
	h := newHarness(t)
	el := &brokenElement{MediaElement: h.doc.MediaElement("audio-player")}
	h.orch.element = func() host.MediaElement { return el }

	first, err := h.orch.Generate(context.Background(), "one")
	require.NoError(t, err)

	el.broken = true
	res, err := h.orch.Generate(context.Background(), "two")
	assert.Nil(t, res)
	assert.Equal(t, apperr.KindDecodeError, apperr.KindOf(err))

	assert.Equal(t, first.AudioURL, h.orch.Current())
	assert.Equal(t, first.Timing, h.orch.Timing())
	assert.Equal(t, first.AudioURL, el.Src())
	_, ok := h.blobs.Resolve(first.AudioURL)
	assert.True(t, ok)

	assert.Equal(t, 1, h.signal.Fired())
	assert.Equal(t, 2, h.blobs.Created())
	assert.Equal(t, 1, h.blobs.Released())
	assert.Equal(t, 1, h.blobs.Live())
}
