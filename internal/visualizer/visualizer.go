// Package visualizer renders a live frequency-bar view of the studio's
// media element.
//
// The pieces mirror what a browser page would wire together: an AudioGraph
// holding the audio context and analyser, a RenderLoop drawing bars once per
// display refresh, and a PlaybackTracker turning media events into loop
// starts and stops. Visualizer mounts them on a host and listens for
// regenerated audio.
//
// None of the types are safe for concurrent use. Every method must run on
// the host's event goroutine.
package visualizer

import (
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/nadzzz/speechviz/internal/events"
	"github.com/nadzzz/speechviz/internal/host"
)

// PlaceholderBars is the number of decorative bars shown while idle.
const PlaceholderBars = 20

// Host bundles the facilities the visualizer runs on.
type Host struct {
	Audio     host.AudioSystem
	Scheduler host.Scheduler
	Canvas    host.Canvas
	Document  host.Document
}

// Options tune a Visualizer.
type Options struct {
	// Enhanced blends a moving baseline into the bars.
	Enhanced bool
	// ElementID is the preferred media element; DefaultElementID if empty.
	ElementID string
	// SettleDelay defers rebinding after a regeneration. Zero selects
	// DefaultSettleDelay; a negative delay rebinds at once.
	SettleDelay time.Duration
	// Rand drives the enhanced baseline. Seeded from the clock if nil.
	Rand *rand.Rand
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Snapshot is the visible state of the visualizer. State follows the media
// element; Playing is set only while live bars are being drawn.
type Snapshot struct {
	Playing     bool          `json:"playing"`
	State       PlaybackState `json:"state"`
	Placeholder bool          `json:"placeholder"`
	Bars        []float64     `json:"bars"`
	Width       int           `json:"width"`
	Height      int           `json:"height"`
	Frames      int           `json:"frames"`
}

// Visualizer is a mountable audio visualization.
type Visualizer struct {
	host        Host
	regenerated *events.Signal
	log         *slog.Logger

	graph   *AudioGraph
	render  *RenderLoop
	tracker *PlaybackTracker

	mounted      bool
	unsubscribe  func()
	cancelResize func()
}

// New wires a visualizer to h. It listens to regenerated once mounted.
func New(h Host, regenerated *events.Signal, opts Options) *Visualizer {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "visualizer")
	if opts.SettleDelay == 0 {
		opts.SettleDelay = DefaultSettleDelay
	}

	graph := NewAudioGraph(h.Audio, log)
	render := NewRenderLoop(h.Scheduler, h.Canvas, graph, opts.Enhanced, opts.Rand, log)
	tracker := NewPlaybackTracker(graph, render, h.Document, h.Scheduler, opts.ElementID, opts.SettleDelay, log)

	return &Visualizer{
		host:        h,
		regenerated: regenerated,
		log:         log,
		graph:       graph,
		render:      render,
		tracker:     tracker,
	}
}

// Mount sizes the canvas, prepares the audio graph and starts listening for
// new audio. An unsupported audio environment is logged and tolerated.
func (v *Visualizer) Mount() {
	if v.mounted {
		return
	}
	v.mounted = true

	v.fitCanvas()
	v.cancelResize = v.host.Canvas.OnContainerResize(v.fitCanvas)

	if err := v.graph.EnsureContext(); err != nil {
		v.log.Warn("audio unavailable, visualization disabled", "error", err)
	}
	if v.regenerated != nil {
		v.unsubscribe = v.regenerated.Subscribe(v.tracker.Regenerated)
	}
	if el := v.tracker.lookup(); el != nil {
		_ = v.tracker.Attach(el)
	}
	v.log.Info("visualizer mounted")
}

// Unmount stops rendering and releases the audio graph. It is idempotent.
func (v *Visualizer) Unmount() {
	if !v.mounted {
		return
	}
	v.mounted = false

	v.render.Stop()
	v.tracker.Detach()
	if v.unsubscribe != nil {
		v.unsubscribe()
		v.unsubscribe = nil
	}
	if v.cancelResize != nil {
		v.cancelResize()
		v.cancelResize = nil
	}
	v.graph.Teardown()
	v.log.Info("visualizer unmounted")
}

// fitCanvas matches the canvas raster to its container box.
func (v *Visualizer) fitCanvas() {
	cw, ch := v.host.Canvas.ContainerSize()
	if w, h := v.host.Canvas.Size(); w == cw && h == ch {
		return
	}
	v.host.Canvas.SetSize(cw, ch)
	v.log.Debug("canvas resized", "width", cw, "height", ch)
}

// Snapshot returns the current bars, or the placeholder bars while idle.
func (v *Visualizer) Snapshot() Snapshot {
	state, _ := v.tracker.State()
	w, h := v.host.Canvas.Size()
	s := Snapshot{
		// A render loop that gave up on the canvas shows the idle bars even
		// while the media plays.
		Playing: state == StatePlaying && v.render.Running(),
		State:   state,
		Width:   w,
		Height:  h,
		Frames:  v.render.Drawn(),
	}
	if s.Playing {
		s.Bars = v.render.Heights()
	} else {
		s.Placeholder = true
		s.Bars = Placeholder()
	}
	return s
}

// Placeholder returns the idle bar heights as fractions of the container.
func Placeholder() []float64 {
	bars := make([]float64, PlaceholderBars)
	for i := range bars {
		bars[i] = math.Max(0, math.Sin(float64(i)/3)*50+30) / 100
	}
	return bars
}

// Graph returns the audio graph.
func (v *Visualizer) Graph() *AudioGraph { return v.graph }

// Tracker returns the playback tracker.
func (v *Visualizer) Tracker() *PlaybackTracker { return v.tracker }

// RenderLoop returns the render loop.
func (v *Visualizer) RenderLoop() *RenderLoop { return v.render }

// Mounted reports whether the visualizer is mounted.
func (v *Visualizer) Mounted() bool { return v.mounted }
