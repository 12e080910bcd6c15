// Package studio turns text into a playable audio artifact and hands it to
// the studio's media element.
//
// The Orchestrator owns the lifetime of every transient URL it creates: the
// previous artifact is released before the new one is assigned, and Close
// releases whatever is current. Assignment and the regenerated signal happen
// on the host's event goroutine so visualizer handlers never observe a
// released URL.
package studio

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/nadzzz/speechviz/internal/apperr"
	"github.com/nadzzz/speechviz/internal/blobstore"
	"github.com/nadzzz/speechviz/internal/events"
	"github.com/nadzzz/speechviz/internal/host"
	"github.com/nadzzz/speechviz/internal/tts"
	"github.com/nadzzz/speechviz/internal/wavfile"
)

// ErrSuperseded is returned to a generation whose result arrived after a
// newer generation started.
var ErrSuperseded = errors.New("studio: generation superseded")

// MsgDecode is shown when the provider returned unusable audio.
const MsgDecode = "The generated audio could not be decoded."

// Generator produces base64 speech for text.
type Generator interface {
	Generate(ctx context.Context, text string) (*tts.SpeechResponse, error)
}

// Speaker speaks text through a native engine.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Executor runs fn on the host's event goroutine and waits for it.
type Executor interface {
	Do(fn func()) error
}

// Result describes a finished generation.
type Result struct {
	AudioURL string      `json:"audioUrl,omitempty"`
	Timing   *tts.Timing `json:"timing,omitempty"`
	Native   bool        `json:"native"`
}

// Config wires an Orchestrator.
type Config struct {
	Speech Generator
	// Native, when set, is preferred over Speech.
	Native Speaker
	Blobs  *blobstore.Store
	Exec   Executor
	// Element returns the media element to load audio into, materializing
	// it on first use.
	Element     func() host.MediaElement
	Regenerated *events.Signal
	Logger      *slog.Logger
}

// Orchestrator runs generations.
type Orchestrator struct {
	speech      Generator
	native      Speaker
	blobs       *blobstore.Store
	exec        Executor
	element     func() host.MediaElement
	regenerated *events.Signal
	log         *slog.Logger

	mu      sync.Mutex
	gen     uint64
	current string
	timing  *tts.Timing
	closed  bool
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		speech:      cfg.Speech,
		native:      cfg.Native,
		blobs:       cfg.Blobs,
		exec:        cfg.Exec,
		element:     cfg.Element,
		regenerated: cfg.Regenerated,
		log:         log.With("component", "studio"),
	}
}

// Generate synthesizes text and loads it into the media element. Blank text
// is a no-op returning a nil result. A generation overtaken by a newer one
// returns ErrSuperseded and leaves no trace.
func (o *Orchestrator) Generate(ctx context.Context, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	if o.native != nil {
		if err := o.native.Speak(ctx, text); err != nil {
			o.log.Error("native speech", "error", err)
			return nil, apperr.E(apperr.KindTransport, tts.MsgGenerateRetry, err)
		}
		return &Result{Native: true}, nil
	}

	o.mu.Lock()
	o.gen++
	gen := o.gen
	o.mu.Unlock()

	resp, err := o.speech.Generate(ctx, text)
	if err != nil {
		return nil, err
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
	if err != nil {
		o.log.Error("decoding speech payload", "error", err)
		return nil, apperr.E(apperr.KindDecodeError, MsgDecode, err)
	}
	if _, err := wavfile.Inspect(audio); err != nil {
		o.log.Error("validating speech payload", "bytes", len(audio), "error", err)
		return nil, apperr.E(apperr.KindDecodeError, MsgDecode, err)
	}

	var (
		result  *Result
		loadErr error
	)
	err = o.exec.Do(func() {
		result, loadErr = o.install(gen, audio, resp.Timing)
	})
	if err != nil {
		return nil, err
	}
	return result, loadErr
}

// install runs on the event goroutine: assign, release previous, signal.
// The previous artifact stays current until the new one has loaded.
func (o *Orchestrator) install(gen uint64, audio []byte, timing *tts.Timing) (*Result, error) {
	o.mu.Lock()
	stale := gen != o.gen || o.closed
	o.mu.Unlock()
	if stale {
		o.log.Info("discarding superseded generation", "generation", gen)
		return nil, ErrSuperseded
	}

	url := o.blobs.Create(audio, wavfile.MIMEType)
	if err := o.element().SetSrc(url); err != nil {
		o.blobs.Release(url)
		o.log.Error("loading audio into media element", "url", url, "error", err)
		return nil, apperr.E(apperr.KindDecodeError, MsgDecode, err)
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		o.blobs.Release(url)
		return nil, ErrSuperseded
	}
	prev := o.current
	o.current = url
	o.timing = timing
	o.mu.Unlock()

	if prev != "" {
		o.blobs.Release(prev)
	}
	if o.regenerated != nil {
		o.regenerated.Fire()
	}
	o.log.Info("audio regenerated", "url", url, "bytes", len(audio), "generation", gen)
	return &Result{AudioURL: url, Timing: timing}, nil
}

// Play starts the media element.
func (o *Orchestrator) Play() error { return o.onElement(host.MediaElement.Play) }

// Pause pauses the media element.
func (o *Orchestrator) Pause() error { return o.onElement(host.MediaElement.Pause) }

func (o *Orchestrator) onElement(op func(host.MediaElement) error) error {
	var opErr error
	if err := o.exec.Do(func() { opErr = op(o.element()) }); err != nil {
		return err
	}
	return opErr
}

// Current returns the URL of the current artifact, or "".
func (o *Orchestrator) Current() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Timing returns the timing of the current artifact, or nil.
func (o *Orchestrator) Timing() *tts.Timing {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.timing
}

// Close releases the current artifact. Later generations are discarded.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	url := o.current
	o.current = ""
	o.mu.Unlock()

	if url != "" {
		o.blobs.Release(url)
	}
}
