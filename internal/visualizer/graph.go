package visualizer

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/nadzzz/speechviz/internal/apperr"
	"github.com/nadzzz/speechviz/internal/host"
)

// Analyser geometry. The bar display needs no more than 128 bins.
const (
	FFTSize  = 256
	BinCount = FFTSize / 2
)

// FrameReader fills buf with the current frequency magnitudes.
type FrameReader interface {
	ReadFrame(buf []byte)
}

// AudioGraph owns the audio context and its analyser, and wraps media
// elements as sources feeding the analyser.
//
// Source nodes are remembered per element: an element is wrapped at most
// once for the life of the graph, and rebinding to it reuses its node.
type AudioGraph struct {
	audio host.AudioSystem
	log   *slog.Logger

	ctx      host.AudioContext
	analyser host.Analyser
	torn     bool

	bound   host.MediaElement
	source  host.AudioNode
	sources map[host.MediaElement]host.AudioNode
}

// NewAudioGraph returns a graph that creates its context lazily.
func NewAudioGraph(audio host.AudioSystem, log *slog.Logger) *AudioGraph {
	if log == nil {
		log = slog.Default()
	}
	return &AudioGraph{
		audio:   audio,
		log:     log,
		sources: make(map[host.MediaElement]host.AudioNode),
	}
}

// EnsureContext creates the context and analyser on first use and resumes a
// suspended context afterwards.
func (g *AudioGraph) EnsureContext() error {
	if g.torn {
		return fmt.Errorf("audio graph: %w", host.ErrClosed)
	}
	if g.ctx == nil {
		ctx, err := g.audio.NewContext()
		if err != nil {
			if errors.Is(err, host.ErrUnsupported) {
				return apperr.E(apperr.KindUnsupportedEnvironment, "Audio visualization is not supported here.", err)
			}
			return fmt.Errorf("creating audio context: %w", err)
		}
		analyser, err := ctx.CreateAnalyser()
		if err != nil {
			_ = ctx.Close()
			return fmt.Errorf("creating analyser: %w", err)
		}
		if err := analyser.SetFFTSize(FFTSize); err != nil {
			_ = ctx.Close()
			return fmt.Errorf("setting fft size: %w", err)
		}
		if err := analyser.Connect(ctx.Destination()); err != nil {
			_ = ctx.Close()
			return fmt.Errorf("connecting analyser: %w", err)
		}
		g.ctx, g.analyser = ctx, analyser
		g.log.Debug("audio context created", "sample_rate", ctx.SampleRate())
		return nil
	}
	if g.ctx.State() == host.StateSuspended {
		if err := g.ctx.Resume(); err != nil {
			return fmt.Errorf("resuming audio context: %w", err)
		}
		g.log.Debug("audio context resumed")
	}
	return nil
}

// Bind makes el the analyser's only source. Binding the bound element is a
// no-op. If el was wrapped by someone else the host refuses and Bind reports
// an already-wrapped error.
func (g *AudioGraph) Bind(el host.MediaElement) error {
	if el == nil {
		return apperr.E(apperr.KindInputInvalid, "No media element to bind.", nil)
	}
	if g.bound == el {
		return nil
	}
	if err := g.EnsureContext(); err != nil {
		return err
	}

	src, ok := g.sources[el]
	if !ok {
		var err error
		src, err = g.ctx.CreateMediaElementSource(el)
		if err != nil {
			if errors.Is(err, host.ErrAlreadyWrapped) {
				return apperr.E(apperr.KindAlreadyWrapped, "Media element is already in use.", err)
			}
			return fmt.Errorf("wrapping media element %q: %w", el.ID(), err)
		}
		g.sources[el] = src
	}

	if g.source != nil {
		g.source.Disconnect()
	}
	if err := src.Connect(g.analyser); err != nil {
		g.source, g.bound = nil, nil
		return fmt.Errorf("connecting source: %w", err)
	}
	g.source, g.bound = src, el
	g.log.Debug("media element bound", "element", el.ID())
	return nil
}

// Unbind disconnects the current source so the next Bind connects again,
// even to the same element.
func (g *AudioGraph) Unbind() {
	if g.source != nil {
		g.source.Disconnect()
	}
	g.source, g.bound = nil, nil
}

// Bound returns the element currently feeding the analyser.
func (g *AudioGraph) Bound() host.MediaElement { return g.bound }

// Wrapped returns how many elements have been wrapped as sources.
func (g *AudioGraph) Wrapped() int { return len(g.sources) }

// ReadFrame implements FrameReader. Without an analyser it reads silence.
func (g *AudioGraph) ReadFrame(buf []byte) {
	if g.analyser == nil {
		clear(buf)
		return
	}
	g.analyser.ByteFrequencyData(buf)
}

// Context returns the audio context, or nil before EnsureContext succeeded.
func (g *AudioGraph) Context() host.AudioContext { return g.ctx }

// Teardown disconnects every source and closes the context. The graph
// cannot be used afterwards.
func (g *AudioGraph) Teardown() {
	if g.torn {
		return
	}
	g.torn = true
	for _, src := range g.sources {
		src.Disconnect()
	}
	g.source, g.bound = nil, nil
	if g.analyser != nil {
		g.analyser.Disconnect()
	}
	if g.ctx != nil && g.ctx.State() != host.StateClosed {
		if err := g.ctx.Close(); err != nil {
			g.log.Warn("closing audio context", "error", err)
		}
	}
	g.log.Debug("audio graph torn down")
}
