// Package whisper implements the transcription Provider on top of a
// synchronous Whisper-compatible endpoint.
//
// Two flavors are supported:
//   - "openai": OpenAI-compatible /audio/transcriptions (OpenAI, Groq,
//     faster-whisper, whisper.cpp server)
//   - "asr":    ahmetoner/whisper-asr-webservice (POST /asr with query params)
//
// Such endpoints answer in one request, so Upload keeps the audio in memory,
// Submit starts the request in the background and Poll reports on it.
package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/buger/jsonparser"
	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/nadzzz/speechviz/internal/config"
	"github.com/nadzzz/speechviz/internal/transcription"
)

const uploadScheme = "whisper-upload:"

// retention bounds how long an unsubmitted upload or an unpolled result is
// kept. Clients that give up never collect their job.
const retention = 5 * time.Minute

// Provider implements transcription.Provider.
type Provider struct {
	flavor    string
	endpoint  string
	apiKey    string
	model     string
	language  string
	vadFilter bool
	timeout   time.Duration
	openai    *openai.Client
	client    *http.Client
	retention time.Duration
	log       *slog.Logger

	mu      sync.Mutex
	uploads map[string][]byte
	jobs    map[string]*job
}

type job struct {
	done chan struct{}
	text string
	err  error
}

// New creates a provider from config.
func New(cfg config.WhisperConfig) *Provider {
	flavor := cfg.Type
	if flavor == "" {
		flavor = "openai"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		oc.BaseURL = strings.TrimRight(cfg.Endpoint, "/")
	}

	return &Provider{
		flavor:    flavor,
		endpoint:  cfg.Endpoint,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		language:  cfg.Language,
		vadFilter: cfg.VADFilter,
		timeout:   timeout,
		openai:    openai.NewClientWithConfig(oc),
		client:    &http.Client{},
		retention: retention,
		log:       slog.Default().With("provider", "whisper", "flavor", flavor),
		uploads:   make(map[string][]byte),
		jobs:      make(map[string]*job),
	}
}

// HasCredentials reports whether the provider can authenticate. Self-hosted
// ASR services need no key.
func (p *Provider) HasCredentials() bool {
	return p.flavor == "asr" || p.apiKey != ""
}

// Upload implements transcription.Provider. The audio stays in memory until
// submitted.
func (p *Provider) Upload(_ context.Context, audio io.Reader) (string, error) {
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", fmt.Errorf("whisper: reading audio: %w", err)
	}
	id := uuid.NewString()
	p.mu.Lock()
	p.uploads[id] = data
	p.mu.Unlock()
	time.AfterFunc(p.retention, func() {
		p.mu.Lock()
		delete(p.uploads, id)
		p.mu.Unlock()
	})
	return uploadScheme + id, nil
}

// Submit implements transcription.Provider. The transcription outlives ctx
// so that a later Poll can collect it; it is bounded by the configured
// timeout instead.
func (p *Provider) Submit(ctx context.Context, uploadURL string) (string, error) {
	p.mu.Lock()
	audio, ok := p.uploads[strings.TrimPrefix(uploadURL, uploadScheme)]
	delete(p.uploads, strings.TrimPrefix(uploadURL, uploadScheme))
	p.mu.Unlock()
	if !ok {
		return "", &transcription.APIError{StatusCode: http.StatusNotFound, Message: "Upload not found"}
	}

	id := uuid.NewString()
	j := &job{done: make(chan struct{})}
	p.mu.Lock()
	p.jobs[id] = j
	p.mu.Unlock()

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	go func() {
		start := time.Now()
		j.text, j.err = p.transcribe(runCtx, audio)
		cancel()
		close(j.done)
		p.log.Debug("whisper transcription finished", "job_id", id, "elapsed", time.Since(start), "error", j.err)

		time.AfterFunc(p.retention, func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if p.jobs[id] == j {
				delete(p.jobs, id)
				p.log.Debug("dropping uncollected whisper result", "job_id", id)
			}
		})
	}()
	return id, nil
}

// Poll implements transcription.Provider. A finished job is reported once
// and then forgotten; an unpolled one is dropped after the retention period.
func (p *Provider) Poll(_ context.Context, id string) (*transcription.Job, error) {
	p.mu.Lock()
	j, ok := p.jobs[id]
	p.mu.Unlock()
	if !ok {
		return nil, &transcription.APIError{StatusCode: http.StatusNotFound, Message: "Transcript not found"}
	}

	select {
	case <-j.done:
	default:
		return &transcription.Job{ID: id, Status: transcription.StatusProcessing}, nil
	}

	p.mu.Lock()
	delete(p.jobs, id)
	p.mu.Unlock()
	if j.err != nil {
		return &transcription.Job{ID: id, Status: transcription.StatusError, Error: j.err.Error()}, nil
	}
	return &transcription.Job{ID: id, Status: transcription.StatusCompleted, Text: j.text}, nil
}

func (p *Provider) transcribe(ctx context.Context, audio []byte) (string, error) {
	if p.flavor == "asr" {
		return p.transcribeASR(ctx, audio)
	}
	return p.transcribeOpenAI(ctx, audio)
}

// transcribeOpenAI handles OpenAI-compatible endpoints.
func (p *Provider) transcribeOpenAI(ctx context.Context, audio []byte) (string, error) {
	resp, err := p.openai.CreateTranscription(ctx, openai.AudioRequest{
		Model:    p.model,
		FilePath: "audio" + extFromContentType(http.DetectContentType(audio)),
		Reader:   bytes.NewReader(audio),
		Language: p.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", errors.New(apiErr.Message)
		}
		return "", fmt.Errorf("transcription request: %w", err)
	}
	return resp.Text, nil
}

// transcribeASR handles the ahmetoner/whisper-asr-webservice format.
// API: POST /asr?task=transcribe&language=en&output=json&vad_filter=true
// Body: multipart/form-data with field "audio_file"
func (p *Provider) transcribeASR(ctx context.Context, audio []byte) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("audio_file", "audio"+extFromContentType(http.DetectContentType(audio)))
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("writing audio: %w", err)
	}
	writer.Close()

	q := make(url.Values)
	q.Set("task", "transcribe")
	q.Set("output", "json")
	q.Set("encode", "true")
	if p.language != "" {
		q.Set("language", p.language)
	}
	if p.vadFilter {
		q.Set("vad_filter", "true")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"?"+q.Encode(), body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("asr transcription request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading asr response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("asr transcription failed (status %d): %.200s", resp.StatusCode, data)
	}
	text, err := jsonparser.GetString(data, "text")
	if err != nil {
		return "", fmt.Errorf("decoding asr response: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func extFromContentType(ct string) string {
	switch {
	case strings.Contains(ct, "wav"):
		return ".wav"
	case strings.Contains(ct, "ogg"):
		return ".ogg"
	case strings.Contains(ct, "mp3"), strings.Contains(ct, "mpeg"):
		return ".mp3"
	case strings.Contains(ct, "flac"):
		return ".flac"
	case strings.Contains(ct, "webm"):
		return ".webm"
	default:
		return ".wav"
	}
}
