// Package host defines the facilities the visualizer needs from its
// environment: an audio processing context with an analyser node, playable
// media elements, a drawable canvas, a frame scheduler and a document to look
// elements up in.
//
// Implementations are expected to run every callback on a single goroutine.
// Callers never need locks to coordinate with callbacks as long as they too
// run on that goroutine.
package host

import (
	"errors"
	"image/color"
	"time"
)

var (
	// ErrUnsupported is returned when the host has no audio processing.
	ErrUnsupported = errors.New("host: audio processing is not supported")

	// ErrAlreadyWrapped is returned when a media element that already backs
	// a source node is wrapped again.
	ErrAlreadyWrapped = errors.New("host: media element is already wrapped by a source node")

	// ErrClosed is returned by operations on a closed audio context.
	ErrClosed = errors.New("host: audio context is closed")

	// ErrNoContext2D is returned when a canvas cannot provide a 2-D context.
	ErrNoContext2D = errors.New("host: 2d context unavailable")

	// ErrNoSource is returned when playing a media element without a source.
	ErrNoSource = errors.New("host: media element has no source")
)

// ContextState is the lifecycle state of an audio context.
type ContextState string

const (
	StateSuspended ContextState = "suspended"
	StateRunning   ContextState = "running"
	StateClosed    ContextState = "closed"
)

// AudioSystem creates audio processing contexts.
type AudioSystem interface {
	NewContext() (AudioContext, error)
}

// AudioNode is a vertex of the audio graph.
type AudioNode interface {
	Connect(dst AudioNode) error
	// Disconnect removes every outgoing connection of the node.
	Disconnect()
}

// AudioContext owns an audio graph.
type AudioContext interface {
	State() ContextState
	SampleRate() float64
	Resume() error
	Close() error
	CreateAnalyser() (Analyser, error)
	// CreateMediaElementSource wraps el as a graph source. A given element
	// can be wrapped at most once; a second attempt fails with
	// ErrAlreadyWrapped.
	CreateMediaElementSource(el MediaElement) (AudioNode, error)
	Destination() AudioNode
}

// Analyser exposes per-bin frequency magnitudes of its input.
type Analyser interface {
	AudioNode
	SetFFTSize(n int) error
	FFTSize() int
	// FrequencyBinCount is FFTSize()/2.
	FrequencyBinCount() int
	// ByteFrequencyData fills dst with magnitudes in 0..255, one per bin.
	ByteFrequencyData(dst []byte)
}

// MediaEvent names a media element event.
type MediaEvent string

const (
	EventPlay  MediaEvent = "play"
	EventPause MediaEvent = "pause"
	EventEnded MediaEvent = "ended"
)

// ListenerID identifies a registered event listener.
type ListenerID uint64

// MediaElement is a playable audio widget.
type MediaElement interface {
	ID() string
	Src() string
	SetSrc(url string) error
	Play() error
	Pause() error
	Paused() bool
	AddEventListener(ev MediaEvent, fn func()) ListenerID
	RemoveEventListener(id ListenerID)
}

// Document looks up media elements. Both lookups return nil when nothing
// matches.
type Document interface {
	ElementByID(id string) MediaElement
	FirstMediaElement() MediaElement
}

// FrameHandle is a ticket into the frame scheduler.
type FrameHandle uint64

// Scheduler drives display-refresh callbacks and timers.
type Scheduler interface {
	// RequestFrame runs cb once at the next display refresh.
	RequestFrame(cb func(now time.Time)) FrameHandle
	CancelFrame(h FrameHandle)
	// AfterFunc runs fn after d. The returned function cancels it.
	AfterFunc(d time.Duration, fn func()) (cancel func())
}

// Canvas is a raster surface that sits inside a resizable container.
type Canvas interface {
	Size() (width, height int)
	SetSize(width, height int)
	ContainerSize() (width, height int)
	OnContainerResize(fn func()) (cancel func())
	Context2D() (Context2D, error)
}

// Context2D is the drawing API of a canvas.
type Context2D interface {
	ClearRect(x, y, w, h float64)
	SetFillGradient(g Gradient)
	FillRect(x, y, w, h float64)
}

// ColorStop is a gradient stop.
type ColorStop struct {
	Offset float64
	Color  color.NRGBA
}

// Gradient is a horizontal linear gradient between X0 and X1.
type Gradient struct {
	X0, X1 float64
	Stops  []ColorStop
}

// At returns the gradient color at horizontal position x.
func (g Gradient) At(x float64) color.NRGBA {
	if len(g.Stops) == 0 {
		return color.NRGBA{}
	}
	t := 0.0
	if g.X1 != g.X0 {
		t = (x - g.X0) / (g.X1 - g.X0)
	}
	if t <= g.Stops[0].Offset {
		return g.Stops[0].Color
	}
	for i := 1; i < len(g.Stops); i++ {
		lo, hi := g.Stops[i-1], g.Stops[i]
		if t <= hi.Offset {
			span := hi.Offset - lo.Offset
			if span <= 0 {
				return hi.Color
			}
			return lerp(lo.Color, hi.Color, (t-lo.Offset)/span)
		}
	}
	return g.Stops[len(g.Stops)-1].Color
}

func lerp(a, b color.NRGBA, t float64) color.NRGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*t + 0.5)
	}
	return color.NRGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: mix(a.A, b.A)}
}
