// Package http implements the HTTP/WebSocket transport for speechviz.
//
// This transport serves the studio page, the speech and transcription APIs,
// transient media URLs and a WebSocket stream of visualizer snapshots. It
// also hosts the Swagger UI for the API.
package http

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger/v2"
	"golang.org/x/time/rate"

	"github.com/nadzzz/speechviz/internal/blobstore"
	"github.com/nadzzz/speechviz/internal/config"
	"github.com/nadzzz/speechviz/internal/studio"
	"github.com/nadzzz/speechviz/internal/tts"
	"github.com/nadzzz/speechviz/internal/visualizer"

	_ "github.com/nadzzz/speechviz/internal/transport/http/docs" // registers the OpenAPI doc
)

// Speech is the server-side speech action.
type Speech interface {
	Generate(ctx context.Context, text string) (*tts.SpeechResponse, error)
}

// Studio generates audio into the studio's media element and drives it.
type Studio interface {
	Generate(ctx context.Context, text string) (*studio.Result, error)
	Play() error
	Pause() error
}

// Transcriber turns an uploaded audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, size int64) (string, error)
	MaxFileBytes() int64
}

// Visualizer exposes the visualizer to request goroutines.
type Visualizer interface {
	Snapshot() (visualizer.Snapshot, error)
	Resize(w, h int) error
	EncodePNG(w io.Writer) error
}

// Media resolves transient URLs.
type Media interface {
	Resolve(url string) (*blobstore.Blob, bool)
}

// Deps are the services behind the HTTP API.
type Deps struct {
	Speech      Speech
	Studio      Studio
	Transcriber Transcriber
	Visualizer  Visualizer
	Media       Media
	SampleTexts []string
	// FrameInterval paces the snapshot stream.
	FrameInterval time.Duration
}

// Transport implements transport.Transport over HTTP and WebSocket.
type Transport struct {
	port    int
	deps    Deps
	limiter *rate.Limiter
	server  *http.Server
	log     *slog.Logger
}

// New creates a new HTTP transport.
func New(cfg config.HTTPConfig, deps Deps) *Transport {
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	if deps.FrameInterval <= 0 {
		deps.FrameInterval = time.Second / 30
	}
	return &Transport{
		port:    cfg.Port,
		deps:    deps,
		limiter: rate.NewLimiter(limit, burst),
		log:     slog.Default().With("transport", "http"),
	}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Handler returns the transport's routes.
func (t *Transport) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", t.handleIndex)

	// Provider-backed endpoints share one rate limit.
	mux.Handle("POST /api/speech", t.limited(t.handleSpeech))
	mux.Handle("POST /api/studio/generate", t.limited(t.handleGenerate))
	mux.Handle("POST /api/transcribe", t.limited(t.handleTranscribe))

	mux.HandleFunc("POST /api/studio/play", t.handlePlay)
	mux.HandleFunc("POST /api/studio/pause", t.handlePause)
	mux.HandleFunc("GET /api/studio/samples", t.handleSamples)

	mux.HandleFunc("GET /api/visualizer/snapshot", t.handleSnapshot)
	mux.HandleFunc("GET /api/visualizer/ws", t.handleStream)
	mux.HandleFunc("GET /api/visualizer/frame.png", t.handleFrame)

	mux.HandleFunc("GET "+blobstore.PathPrefix+"{id}", t.handleMedia)

	// Swagger UI.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return mux
}

// Listen starts the HTTP server. It blocks until the context is cancelled.
func (t *Transport) Listen(ctx context.Context) error {
	t.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.port),
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	t.log.Info("http transport listening", "port", t.port)

	go func() {
		<-ctx.Done()
		t.log.Info("http transport shutting down")
		_ = t.Close()
	}()

	if err := t.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}

// limited rejects requests beyond the configured rate with 429.
func (t *Transport) limited(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.limiter.Allow() {
			t.log.Warn("rate limited", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeError(w, http.StatusTooManyRequests, "Too many requests. Please slow down.")
			return
		}
		h(w, r)
	})
}
