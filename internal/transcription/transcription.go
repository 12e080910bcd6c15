// Package transcription runs the upload, submit and poll cycle that turns an
// audio file into text through a hosted speech-to-text provider.
package transcription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nadzzz/speechviz/internal/apperr"
)

// User-facing transcription errors.
const (
	MsgNoFile      = "No file provided"
	MsgTooLarge    = "File size exceeds 25MB limit"
	MsgMissingKey  = "Missing API key configuration"
	MsgTimedOut    = "Transcription timed out"
	MsgUnexpected  = "An unexpected error occurred"
	msgUpload      = "Upload failed: "
	msgSubmit      = "Transcription request failed: "
	msgPoll        = "Polling failed: "
	msgJobFailed   = "Transcription failed: "
	defaultMaxSize = 25 << 20
)

// ErrBusy is returned when a job is already in flight on the client.
var ErrBusy = errors.New("transcription: a job is already in progress")

// Status is the provider-side state of a job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Job is one poll result.
type Job struct {
	ID     string
	Status Status
	Text   string
	Error  string
}

// Provider is a hosted transcription service.
type Provider interface {
	// Upload stores audio with the provider and returns its URL there.
	Upload(ctx context.Context, audio io.Reader) (string, error)
	// Submit starts a job for an uploaded file and returns the job id.
	Submit(ctx context.Context, uploadURL string) (string, error)
	Poll(ctx context.Context, id string) (*Job, error)
}

// CredentialChecker is implemented by providers that need an API key.
type CredentialChecker interface {
	HasCredentials() bool
}

// APIError is a non-success response from the provider. Message is the
// provider's own error text, or the HTTP status text when it sent none.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.StatusCode, e.Message)
}

// Options tunes the poll loop.
type Options struct {
	PollInterval time.Duration
	MaxAttempts  int
	MaxFileBytes int64
}

// Client drives one job at a time against a Provider.
type Client struct {
	provider Provider
	opts     Options
	sem      *semaphore.Weighted
	log      *slog.Logger
}

// New creates a client. Zero options fall back to a 5s interval, 60
// attempts and a 25 MiB limit.
func New(provider Provider, opts Options, log *slog.Logger) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 60
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = defaultMaxSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		provider: provider,
		opts:     opts,
		sem:      semaphore.NewWeighted(1),
		log:      log.With("component", "transcription"),
	}
}

// MaxFileBytes returns the upload limit.
func (c *Client) MaxFileBytes() int64 { return c.opts.MaxFileBytes }

// Transcribe uploads audio (size bytes, or -1 if unknown), starts a job and
// polls until it finishes. Only one call may run at a time; an overlapping
// call fails with ErrBusy.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, size int64) (string, error) {
	if audio == nil {
		return "", apperr.E(apperr.KindInputInvalid, MsgNoFile, nil)
	}
	if size > c.opts.MaxFileBytes {
		return "", apperr.E(apperr.KindInputInvalid, MsgTooLarge, fmt.Errorf("%d bytes", size))
	}
	if cc, ok := c.provider.(CredentialChecker); ok && !cc.HasCredentials() {
		c.log.Error("transcription api key is not set")
		return "", apperr.E(apperr.KindConfigMissing, MsgMissingKey, nil)
	}
	if !c.sem.TryAcquire(1) {
		return "", ErrBusy
	}
	defer c.sem.Release(1)

	data, err := io.ReadAll(io.LimitReader(audio, c.opts.MaxFileBytes+1))
	if err != nil {
		c.log.Error("reading upload", "error", err)
		return "", apperr.E(apperr.KindTransport, MsgUnexpected, err)
	}
	if int64(len(data)) > c.opts.MaxFileBytes {
		return "", apperr.E(apperr.KindInputInvalid, MsgTooLarge, fmt.Errorf("more than %d bytes", c.opts.MaxFileBytes))
	}

	start := time.Now()
	uploadURL, err := c.provider.Upload(ctx, bytes.NewReader(data))
	if err != nil {
		return "", c.stepError("upload", msgUpload, err)
	}
	c.log.Debug("audio uploaded", "bytes", len(data))

	id, err := c.provider.Submit(ctx, uploadURL)
	if err != nil {
		return "", c.stepError("submit", msgSubmit, err)
	}
	log := c.log.With("job_id", id)
	log.Info("transcription submitted")

	timer := time.NewTimer(c.opts.PollInterval)
	defer timer.Stop()
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			log.Warn("transcription abandoned", "attempt", attempt, "error", ctx.Err())
			return "", apperr.E(apperr.KindTimeout, MsgTimedOut, ctx.Err())
		case <-timer.C:
		}

		job, err := c.provider.Poll(ctx, id)
		if err != nil {
			return "", c.stepError("poll", msgPoll, err)
		}
		switch job.Status {
		case StatusCompleted:
			log.Info("transcription completed", "attempts", attempt, "elapsed", time.Since(start), "chars", len(job.Text))
			return job.Text, nil
		case StatusError:
			log.Error("transcription failed", "attempts", attempt, "provider_error", job.Error)
			return "", apperr.E(apperr.KindProviderError, msgJobFailed+job.Error, nil)
		case StatusQueued, StatusProcessing:
			log.Debug("transcription pending", "attempt", attempt, "status", job.Status)
		default:
			log.Warn("unknown transcription status", "attempt", attempt, "status", job.Status)
		}
		timer.Reset(c.opts.PollInterval)
	}

	log.Error("transcription timed out", "attempts", c.opts.MaxAttempts, "elapsed", time.Since(start))
	return "", apperr.E(apperr.KindTimeout, MsgTimedOut, nil)
}

// stepError classifies a failed provider call. Provider rejections carry
// the provider's message; anything else is logged and reported generically.
func (c *Client) stepError(step, prefix string, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		c.log.Error("transcription provider error", "step", step, "status", apiErr.StatusCode, "error", apiErr.Message)
		return apperr.E(apperr.KindProviderError, prefix+apiErr.Message, err)
	}
	c.log.Error("transcription request", "step", step, "error", err)
	return apperr.E(apperr.KindTransport, MsgUnexpected, err)
}
