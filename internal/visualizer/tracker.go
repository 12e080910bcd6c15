package visualizer

import (
	"log/slog"
	"time"

	"github.com/nadzzz/speechviz/internal/host"
)

// DefaultElementID is the id of the studio's media element.
const DefaultElementID = "audio-player"

// DefaultSettleDelay is how long a regeneration waits for the new element
// to appear before looking it up.
const DefaultSettleDelay = 300 * time.Millisecond

// PlaybackState is the visualizer's view of the media element.
type PlaybackState string

const (
	StateIdle    PlaybackState = "idle"
	StatePlaying PlaybackState = "playing"
	StateStopped PlaybackState = "stopped"
)

// PlaybackTracker follows the play state of the bound media element and
// starts or stops the render loop to match.
type PlaybackTracker struct {
	graph     *AudioGraph
	render    *RenderLoop
	doc       host.Document
	sched     host.Scheduler
	elementID string
	settle    time.Duration
	log       *slog.Logger

	element      host.MediaElement
	listeners    []host.ListenerID
	state        PlaybackState
	changedAt    time.Time
	cancelSettle func()

	starts         int
	stops          int
	lookupFailures int
}

// NewPlaybackTracker returns an idle tracker. A negative settle delay is
// treated as zero.
func NewPlaybackTracker(graph *AudioGraph, render *RenderLoop, doc host.Document, sched host.Scheduler, elementID string, settle time.Duration, log *slog.Logger) *PlaybackTracker {
	if elementID == "" {
		elementID = DefaultElementID
	}
	if settle < 0 {
		settle = 0
	}
	if log == nil {
		log = slog.Default()
	}
	return &PlaybackTracker{
		graph:     graph,
		render:    render,
		doc:       doc,
		sched:     sched,
		elementID: elementID,
		settle:    settle,
		log:       log,
		state:     StateIdle,
		changedAt: time.Now(),
	}
}

// Attach listens to el and binds it to the audio graph. Attaching the
// attached element does nothing. Graph failures are logged; the returned
// error is informational.
func (t *PlaybackTracker) Attach(el host.MediaElement) error {
	if el == nil || el == t.element {
		return nil
	}
	t.removeListeners()
	t.element = el
	t.listeners = []host.ListenerID{
		el.AddEventListener(host.EventPlay, t.onPlay),
		el.AddEventListener(host.EventPause, t.onStop),
		el.AddEventListener(host.EventEnded, t.onStop),
	}
	t.log.Debug("attached to media element", "element", el.ID())

	if err := t.graph.Bind(el); err != nil {
		t.log.Warn("binding media element", "element", el.ID(), "error", err)
		return err
	}
	return nil
}

// Detach stops listening and stops the render loop.
func (t *PlaybackTracker) Detach() {
	if t.cancelSettle != nil {
		t.cancelSettle()
		t.cancelSettle = nil
	}
	t.removeListeners()
	t.element = nil
	t.onStop()
}

// Regenerated handles a new audio artifact: after the settle delay it looks
// the element up again and rebinds it.
func (t *PlaybackTracker) Regenerated() {
	if t.cancelSettle != nil {
		t.cancelSettle()
		t.cancelSettle = nil
	}
	if t.settle == 0 {
		t.rebind()
		return
	}
	t.cancelSettle = t.sched.AfterFunc(t.settle, func() {
		t.cancelSettle = nil
		t.rebind()
	})
}

func (t *PlaybackTracker) rebind() {
	el := t.lookup()
	if el == nil {
		t.lookupFailures++
		t.log.Error("regenerated audio has no media element", "element", t.elementID)
		return
	}
	// The source is connected again even when the element is the same one;
	// its listeners stay so queued events still reach us.
	t.graph.Unbind()
	if el == t.element {
		if err := t.graph.Bind(el); err != nil {
			t.log.Warn("rebinding media element", "element", el.ID(), "error", err)
		}
		return
	}
	_ = t.Attach(el)
}

// lookup prefers the well-known element and falls back to the first one.
func (t *PlaybackTracker) lookup() host.MediaElement {
	if el := t.doc.ElementByID(t.elementID); el != nil {
		return el
	}
	return t.doc.FirstMediaElement()
}

func (t *PlaybackTracker) onPlay() {
	if err := t.graph.EnsureContext(); err != nil {
		t.log.Warn("resuming audio context", "error", err)
	}
	if t.state != StatePlaying {
		t.starts++
		t.transition(StatePlaying)
	}
	t.render.Start()
}

func (t *PlaybackTracker) onStop() {
	if t.state == StatePlaying {
		t.stops++
		t.transition(StateStopped)
	}
	t.render.Stop()
}

func (t *PlaybackTracker) transition(s PlaybackState) {
	t.log.Debug("playback state", "from", t.state, "to", s)
	t.state = s
	t.changedAt = time.Now()
}

func (t *PlaybackTracker) removeListeners() {
	if t.element == nil {
		return
	}
	for _, id := range t.listeners {
		t.element.RemoveEventListener(id)
	}
	t.listeners = nil
}

// State returns the playback state and when it last changed.
func (t *PlaybackTracker) State() (PlaybackState, time.Time) { return t.state, t.changedAt }

// Element returns the attached element, or nil.
func (t *PlaybackTracker) Element() host.MediaElement { return t.element }

// Starts returns how many times playback started.
func (t *PlaybackTracker) Starts() int { return t.starts }

// Stops returns how many times playback stopped.
func (t *PlaybackTracker) Stops() int { return t.stops }

// LookupFailures returns how many regenerations found no element.
func (t *PlaybackTracker) LookupFailures() int { return t.lookupFailures }
