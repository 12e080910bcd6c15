// Package assemblyai implements the transcription Provider against the
// AssemblyAI v2 REST API.
package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/buger/jsonparser"

	"github.com/nadzzz/speechviz/internal/config"
	"github.com/nadzzz/speechviz/internal/transcription"
)

// Provider talks to /upload and /transcript.
type Provider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// New creates a provider from config.
func New(cfg config.AssemblyAIConfig) *Provider {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.assemblyai.com/v2"
	}
	return &Provider{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// HasCredentials reports whether an API key is configured.
func (p *Provider) HasCredentials() bool { return p.apiKey != "" }

// Upload implements transcription.Provider.
func (p *Provider) Upload(ctx context.Context, audio io.Reader) (string, error) {
	body, err := p.do(ctx, http.MethodPost, "/upload", "application/octet-stream", audio)
	if err != nil {
		return "", err
	}
	uploadURL, err := jsonparser.GetString(body, "upload_url")
	if err != nil {
		return "", fmt.Errorf("assemblyai: parsing upload response: %w", err)
	}
	return uploadURL, nil
}

// Submit implements transcription.Provider.
func (p *Provider) Submit(ctx context.Context, uploadURL string) (string, error) {
	req, err := json.Marshal(map[string]string{"audio_url": uploadURL})
	if err != nil {
		return "", fmt.Errorf("assemblyai: encoding transcript request: %w", err)
	}
	body, err := p.do(ctx, http.MethodPost, "/transcript", "application/json", bytes.NewReader(req))
	if err != nil {
		return "", err
	}
	id, err := jsonparser.GetString(body, "id")
	if err != nil {
		return "", fmt.Errorf("assemblyai: parsing transcript response: %w", err)
	}
	return id, nil
}

// Poll implements transcription.Provider.
func (p *Provider) Poll(ctx context.Context, id string) (*transcription.Job, error) {
	body, err := p.do(ctx, http.MethodGet, "/transcript/"+url.PathEscape(id), "", nil)
	if err != nil {
		return nil, err
	}
	status, err := jsonparser.GetString(body, "status")
	if err != nil {
		return nil, fmt.Errorf("assemblyai: parsing transcript status: %w", err)
	}
	job := &transcription.Job{ID: id, Status: transcription.Status(status)}
	// text and error are null until the job settles.
	job.Text, _ = jsonparser.GetString(body, "text")
	job.Error, _ = jsonparser.GetString(body, "error")
	return job, nil
}

func (p *Provider) do(ctx context.Context, method, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("assemblyai: creating request: %w", err)
	}
	req.Header.Set("Authorization", p.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assemblyai: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("assemblyai: reading %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := jsonparser.GetString(data, "error")
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &transcription.APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	return data, nil
}
