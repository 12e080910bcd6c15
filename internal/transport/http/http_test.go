package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/speechviz/internal/apperr"
	"github.com/nadzzz/speechviz/internal/blobstore"
	"github.com/nadzzz/speechviz/internal/config"
	"github.com/nadzzz/speechviz/internal/studio"
	"github.com/nadzzz/speechviz/internal/transcription"
	"github.com/nadzzz/speechviz/internal/tts"
	"github.com/nadzzz/speechviz/internal/visualizer"
)

type fakeSpeech struct {
	resp *tts.SpeechResponse
	err  error
}

func (f *fakeSpeech) Generate(context.Context, string) (*tts.SpeechResponse, error) {
	return f.resp, f.err
}

type fakeStudio struct {
	res     *studio.Result
	err     error
	texts   []string
	playErr error
	played  int
	paused  int
}

func (f *fakeStudio) Generate(_ context.Context, text string) (*studio.Result, error) {
	f.texts = append(f.texts, text)
	return f.res, f.err
}

func (f *fakeStudio) Play() error  { f.played++; return f.playErr }
func (f *fakeStudio) Pause() error { f.paused++; return nil }

type fakeTranscriber struct {
	max  int64
	text string
	err  error
	got  []byte
	size int64
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio io.Reader, size int64) (string, error) {
	f.got, _ = io.ReadAll(audio)
	f.size = size
	return f.text, f.err
}

func (f *fakeTranscriber) MaxFileBytes() int64 { return f.max }

type fakeVisualizer struct {
	mu      sync.Mutex
	snap    visualizer.Snapshot
	resizes [][2]int
}

func (f *fakeVisualizer) Snapshot() (visualizer.Snapshot, error) { return f.snap, nil }

func (f *fakeVisualizer) Resize(w, h int) error {
	if w <= 0 || h <= 0 {
		return apperr.E(apperr.KindInputInvalid, "Invalid canvas size.", nil)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resizes = append(f.resizes, [2]int{w, h})
	return nil
}

func (f *fakeVisualizer) EncodePNG(w io.Writer) error {
	_, err := w.Write([]byte("\x89PNG"))
	return err
}

func (f *fakeVisualizer) resized() [][2]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][2]int(nil), f.resizes...)
}

type fixture struct {
	speech *fakeSpeech
	studio *fakeStudio
	trans  *fakeTranscriber
	vis    *fakeVisualizer
	blobs  *blobstore.Store
	h      http.Handler
}

func newFixture(t *testing.T, cfg config.HTTPConfig) *fixture {
	t.Helper()
	f := &fixture{
		speech: &fakeSpeech{},
		studio: &fakeStudio{},
		trans:  &fakeTranscriber{max: 1 << 10},
		vis: &fakeVisualizer{snap: visualizer.Snapshot{
			State: visualizer.StateIdle, Placeholder: true, Bars: visualizer.Placeholder(), Width: 800, Height: 300,
		}},
		blobs: blobstore.New(time.Minute),
	}
	t.Cleanup(f.blobs.Close)
	f.h = New(cfg, Deps{
		Speech:        f.speech,
		Studio:        f.studio,
		Transcriber:   f.trans,
		Visualizer:    f.vis,
		Media:         f.blobs,
		SampleTexts:   []string{"Hello world"},
		FrameInterval: 5 * time.Millisecond,
	}).Handler()
	return f
}

func (f *fixture) do(method, path, contentType string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestSpeech(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{})
	f.speech.resp = &tts.SpeechResponse{AudioBase64: "UklGRg==", Timing: &tts.Timing{ElapsedSeconds: 0.4, InputLength: 11}}

	rec := f.do(http.MethodPost, "/api/speech", "application/json", strings.NewReader(`{"text":"Hello world"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode[tts.SpeechResponse](t, rec)
	assert.Equal(t, "UklGRg==", resp.AudioBase64)
	assert.Equal(t, 11, resp.Timing.InputLength)
}

func TestSpeechErrors(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{})
	f.speech.resp = &tts.SpeechResponse{Error: tts.MsgMissingKey}
	f.speech.err = apperr.E(apperr.KindConfigMissing, tts.MsgMissingKey, nil)

	rec := f.do(http.MethodPost, "/api/speech", "application/json", strings.NewReader(`{"text":"hi"}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, tts.MsgMissingKey, decode[tts.SpeechResponse](t, rec).Error)

	f.speech.resp = &tts.SpeechResponse{Error: "Text is required."}
	f.speech.err = apperr.E(apperr.KindInputInvalid, "Text is required.", nil)
	rec = f.do(http.MethodPost, "/api/speech", "application/json", strings.NewReader(`{"text":""}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/speech", "application/json", strings.NewReader(`{`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStudioGenerate(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{})
	f.studio.res = &studio.Result{AudioURL: "/media/abc", Timing: &tts.Timing{InputLength: 5}}

	rec := f.do(http.MethodPost, "/api/studio/generate", "application/json", strings.NewReader(`{"text":"hello"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	res := decode[studio.Result](t, rec)
	assert.Equal(t, "/media/abc", res.AudioURL)
	assert.Equal(t, []string{"hello"}, f.studio.texts)

	rec = f.do(http.MethodPost, "/api/studio/generate", "application/json", strings.NewReader(`{"text":"   "}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgTextRequired, decode[ErrorResponse](t, rec).Error)
	assert.Len(t, f.studio.texts, 1)

	f.studio.err = studio.ErrSuperseded
	rec = f.do(http.MethodPost, "/api/studio/generate", "application/json", strings.NewReader(`{"text":"again"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)

	f.studio.err = apperr.E(apperr.KindDecodeError, studio.MsgDecode, errors.New("bad riff"))
	rec = f.do(http.MethodPost, "/api/studio/generate", "application/json", strings.NewReader(`{"text":"again"}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, studio.MsgDecode, decode[ErrorResponse](t, rec).Error)
}

func TestStudioPlayPause(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{})

	rec := f.do(http.MethodPost, "/api/studio/play", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "playing", decode[StateResponse](t, rec).Status)

	rec = f.do(http.MethodPost, "/api/studio/pause", "", nil)
	assert.Equal(t, "paused", decode[StateResponse](t, rec).Status)

	f.studio.playErr = errors.New("no source")
	rec = f.do(http.MethodPost, "/api/studio/play", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 2, f.studio.played)
	assert.Equal(t, 1, f.studio.paused)
}

func TestSamples(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{})

	rec := f.do(http.MethodGet, "/api/studio/samples", "", nil)
	assert.Equal(t, []string{"Hello world"}, decode[SamplesResponse](t, rec).Samples)
}

func multipartBody(t *testing.T, field string, data []byte) (string, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "clip.wav")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return mw.FormDataContentType(), &buf
}

func TestTranscribe(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{})
	f.trans.text = "ok"

	ct, body := multipartBody(t, "file", bytes.Repeat([]byte{1}, 512))
	rec := f.do(http.MethodPost, "/api/transcribe", ct, body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[TranscriptResponse](t, rec).Text)
	assert.Len(t, f.trans.got, 512)
	assert.EqualValues(t, 512, f.trans.size)
}

func TestTranscribeErrors(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{})

	ct, body := multipartBody(t, "other", []byte("x"))
	rec := f.do(http.MethodPost, "/api/transcribe", ct, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, transcription.MsgNoFile, decode[TranscriptResponse](t, rec).Error)

	// Past the body limit the request never reaches the transcriber.
	ct, body = multipartBody(t, "file", bytes.Repeat([]byte{1}, 2<<20))
	rec = f.do(http.MethodPost, "/api/transcribe", ct, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, transcription.MsgTooLarge, decode[TranscriptResponse](t, rec).Error)
	assert.Nil(t, f.trans.got)

	f.trans.err = transcription.ErrBusy
	ct, body = multipartBody(t, "file", []byte("x"))
	rec = f.do(http.MethodPost, "/api/transcribe", ct, body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	f.trans.err = apperr.E(apperr.KindTimeout, transcription.MsgTimedOut, nil)
	ct, body = multipartBody(t, "file", []byte("x"))
	rec = f.do(http.MethodPost, "/api/transcribe", ct, body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, transcription.MsgTimedOut, decode[TranscriptResponse](t, rec).Error)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{RateLimit: 0.001, RateBurst: 2})
	f.speech.resp = &tts.SpeechResponse{AudioBase64: "x"}

	codes := make([]int, 3)
	for i := range codes {
		codes[i] = f.do(http.MethodPost, "/api/speech", "application/json", strings.NewReader(`{"text":"hi"}`)).Code
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Cheap endpoints are not limited.
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/studio/samples", "", nil).Code)
}

func TestMedia(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{})
	url := f.blobs.Create([]byte("RIFFdata"), "audio/wav")

	rec := f.do(http.MethodGet, url, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
	assert.Equal(t, "RIFFdata", rec.Body.String())
	assert.Empty(t, rec.Header().Get("Content-Disposition"))

	rec = f.do(http.MethodGet, url+"?download=1", "", nil)
	assert.Equal(t, `attachment; filename="speech.wav"`, rec.Header().Get("Content-Disposition"))

	f.blobs.Release(url)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, url, "", nil).Code)
}

func TestVisualizerEndpoints(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{})

	rec := f.do(http.MethodGet, "/api/visualizer/snapshot", "", nil)
	snap := decode[visualizer.Snapshot](t, rec)
	assert.True(t, snap.Placeholder)
	assert.Len(t, snap.Bars, visualizer.PlaceholderBars)

	rec = f.do(http.MethodGet, "/api/visualizer/frame.png", "", nil)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "\x89PNG", rec.Body.String())
}

func TestVisualizerStream(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{})
	srv := httptest.NewServer(f.h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/visualizer/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	var snap visualizer.Snapshot
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, 800, snap.Width)

	require.NoError(t, conn.WriteJSON(map[string]int{"width": 0, "height": 0}))
	require.NoError(t, conn.WriteJSON(map[string]int{"width": 640, "height": 200}))
	require.Eventually(t, func() bool {
		return len(f.vis.resized()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, [2]int{640, 200}, f.vis.resized()[0])
}

func TestIndexAndSwagger(t *testing.T) {
	f := newFixture(t, config.HTTPConfig{})

	rec := f.do(http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/visualizer/ws")

	rec = f.do(http.MethodGet, "/swagger/doc.json", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/studio/generate")

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/nope", "", nil).Code)
}
