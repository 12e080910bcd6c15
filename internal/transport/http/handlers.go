package http

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/nadzzz/speechviz/internal/apperr"
	"github.com/nadzzz/speechviz/internal/blobstore"
	"github.com/nadzzz/speechviz/internal/studio"
	"github.com/nadzzz/speechviz/internal/transcription"
	"github.com/nadzzz/speechviz/internal/tts"
)

//go:embed index.html
var indexPage []byte

const (
	msgTextRequired = "Text is required."
	msgBadJSON      = "Invalid request body."
	msgBusy         = "Another transcription is in progress. Please wait."
	downloadName    = "speech.wav"
)

// TextRequest carries text to speak.
type TextRequest struct {
	Text string `json:"text" example:"Hello world"`
}

// TranscriptResponse is the result of a transcription.
type TranscriptResponse struct {
	Text string `json:"text,omitempty"`
	// Error is set instead of Text on failure.
	Error string `json:"error,omitempty"`
}

// ErrorResponse is returned on failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SamplesResponse lists sample texts for the form.
type SamplesResponse struct {
	Samples []string `json:"samples"`
}

// StateResponse reports the media element state after play or pause.
type StateResponse struct {
	Status string `json:"status"`
}

func (t *Transport) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexPage)
}

// handleSpeech runs the speech action.
//
// @Summary     Generate speech
// @Description Synthesizes the text and returns base64 WAV audio with timing, or an error message.
// @Tags        speech
// @Accept      json
// @Produce     json
// @Param       request  body      TextRequest  true  "Text to speak"
// @Success     200  {object}  tts.SpeechResponse
// @Failure     400  {object}  tts.SpeechResponse  "Missing text"
// @Failure     429  {object}  ErrorResponse       "Rate limited"
// @Failure     500  {object}  tts.SpeechResponse  "Provider or configuration error"
// @Router      /api/speech [post]
func (t *Transport) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadJSON)
		return
	}

	resp, err := t.deps.Speech.Generate(r.Context(), req.Text)
	if err != nil {
		if resp == nil {
			resp = &tts.SpeechResponse{Error: apperr.Message(err, tts.MsgGenerateRetry)}
		}
		writeJSON(w, statusFor(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGenerate regenerates the studio's audio.
//
// @Summary     Regenerate studio audio
// @Description Synthesizes the text, loads it into the studio's media element and notifies the visualizer.
// @Description The returned audioUrl is a transient URL released on the next generation.
// @Tags        studio
// @Accept      json
// @Produce     json
// @Param       request  body      TextRequest  true  "Text to speak"
// @Success     200  {object}  studio.Result
// @Failure     400  {object}  ErrorResponse  "Missing text"
// @Failure     409  {object}  ErrorResponse  "Superseded by a newer generation"
// @Failure     429  {object}  ErrorResponse  "Rate limited"
// @Failure     500  {object}  ErrorResponse  "Provider, decode or configuration error"
// @Router      /api/studio/generate [post]
func (t *Transport) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadJSON)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, msgTextRequired)
		return
	}

	res, err := t.deps.Studio.Generate(r.Context(), req.Text)
	switch {
	case errors.Is(err, studio.ErrSuperseded):
		writeError(w, http.StatusConflict, "A newer generation replaced this one.")
	case err != nil:
		writeError(w, statusFor(err), apperr.Message(err, tts.MsgGenerateRetry))
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// handlePlay starts the studio's media element.
//
// @Summary     Play studio audio
// @Tags        studio
// @Produce     json
// @Success     200  {object}  StateResponse
// @Failure     409  {object}  ErrorResponse  "Nothing generated yet"
// @Router      /api/studio/play [post]
func (t *Transport) handlePlay(w http.ResponseWriter, r *http.Request) {
	if err := t.deps.Studio.Play(); err != nil {
		t.log.Warn("play failed", "error", err)
		writeError(w, http.StatusConflict, "Generate audio before playing.")
		return
	}
	writeJSON(w, http.StatusOK, StateResponse{Status: "playing"})
}

// handlePause pauses the studio's media element.
//
// @Summary     Pause studio audio
// @Tags        studio
// @Produce     json
// @Success     200  {object}  StateResponse
// @Router      /api/studio/pause [post]
func (t *Transport) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := t.deps.Studio.Pause(); err != nil {
		t.log.Warn("pause failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Could not pause playback.")
		return
	}
	writeJSON(w, http.StatusOK, StateResponse{Status: "paused"})
}

// handleSamples lists the form's sample texts.
//
// @Summary     Sample texts
// @Tags        studio
// @Produce     json
// @Success     200  {object}  SamplesResponse
// @Router      /api/studio/samples [get]
func (t *Transport) handleSamples(w http.ResponseWriter, r *http.Request) {
	samples := t.deps.SampleTexts
	if samples == nil {
		samples = []string{}
	}
	writeJSON(w, http.StatusOK, SamplesResponse{Samples: samples})
}

// handleTranscribe transcribes an uploaded audio file.
//
// @Summary     Transcribe audio
// @Description Uploads the file to the transcription provider and waits for the transcript (up to five minutes).
// @Tags        transcription
// @Accept      multipart/form-data
// @Produce     json
// @Param       file  formData  file  true  "Audio file, at most 25MB"
// @Success     200  {object}  TranscriptResponse
// @Failure     400  {object}  TranscriptResponse  "No file or file too large"
// @Failure     429  {object}  TranscriptResponse  "Rate limited or another job in progress"
// @Failure     500  {object}  TranscriptResponse  "Provider or configuration error"
// @Router      /api/transcribe [post]
func (t *Transport) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	// Leave room for the multipart framing around the file.
	limit := t.deps.Transcriber.MaxFileBytes() + 1<<20
	if r.ContentLength > limit {
		writeError(w, http.StatusBadRequest, transcription.MsgTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, transcription.MsgTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, transcription.MsgNoFile)
		return
	}
	defer file.Close()

	text, err := t.deps.Transcriber.Transcribe(r.Context(), file, header.Size)
	switch {
	case errors.Is(err, transcription.ErrBusy):
		writeError(w, http.StatusTooManyRequests, msgBusy)
	case err != nil:
		writeError(w, statusFor(err), apperr.Message(err, transcription.MsgUnexpected))
	default:
		t.log.Info("transcription served", "file", header.Filename, "bytes", header.Size)
		writeJSON(w, http.StatusOK, TranscriptResponse{Text: text})
	}
}

// handleMedia serves a transient URL. ?download=1 saves it as speech.wav.
//
// @Summary     Transient audio
// @Tags        media
// @Produce     audio/wav
// @Param       id        path   string  true   "Blob id"
// @Param       download  query  bool    false  "Serve as an attachment"
// @Success     200  {file}  file
// @Failure     404  {string}  string  "Released or unknown"
// @Router      /media/{id} [get]
func (t *Transport) handleMedia(w http.ResponseWriter, r *http.Request) {
	blob, ok := t.deps.Media.Resolve(blobstore.PathPrefix + r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", blob.MIMEType)
	w.Header().Set("Cache-Control", "no-store")
	if r.URL.Query().Has("download") {
		w.Header().Set("Content-Disposition", `attachment; filename="`+downloadName+`"`)
	}
	http.ServeContent(w, r, downloadName, blob.CreatedAt, bytes.NewReader(blob.Data))
}

// statusFor maps an error kind to an HTTP status: client mistakes are 400,
// everything else is 500.
func statusFor(err error) int {
	if apperr.KindOf(err) == apperr.KindInputInvalid {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
