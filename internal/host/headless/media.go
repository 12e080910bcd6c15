package headless

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/nadzzz/speechviz/internal/blobstore"
	"github.com/nadzzz/speechviz/internal/host"
	"github.com/nadzzz/speechviz/internal/wavfile"
)

// Resolver turns a transient URL into its bytes.
type Resolver interface {
	Resolve(url string) (*blobstore.Blob, bool)
}

// Player is a WAV-playing media element. Its position advances with the
// wall clock while playing; events are delivered on the loop.
type Player struct {
	id       string
	loop     *Loop
	resolver Resolver

	mu         sync.Mutex
	src        string
	pcm        []float64
	sampleRate int
	paused     bool
	offset     time.Duration
	startedAt  time.Time
	cancelEnd  func()
	wrapped    bool
	nextID     host.ListenerID
	listeners  map[host.ListenerID]listener
}

type listener struct {
	event host.MediaEvent
	fn    func()
}

// NewPlayer creates a paused, empty media element.
func NewPlayer(id string, loop *Loop, resolver Resolver) *Player {
	return &Player{
		id:        id,
		loop:      loop,
		resolver:  resolver,
		paused:    true,
		listeners: make(map[host.ListenerID]listener),
	}
}

func (p *Player) ID() string { return p.id }

func (p *Player) Src() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.src
}

// SetSrc loads url. Loading while playing pauses first. An empty url
// unloads the element.
func (p *Player) SetSrc(url string) error {
	var (
		pcm  []float64
		rate int
	)
	if url != "" {
		blob, ok := p.resolver.Resolve(url)
		if !ok {
			return fmt.Errorf("headless: cannot resolve %q", url)
		}
		var err error
		pcm, rate, err = wavfile.DecodeMono(blob.Data)
		if err != nil {
			return fmt.Errorf("headless: loading %q: %w", url, err)
		}
	}

	p.mu.Lock()
	wasPlaying := !p.paused
	p.stopLocked()
	p.src = url
	p.pcm = pcm
	p.sampleRate = rate
	p.offset = 0
	p.mu.Unlock()

	if wasPlaying {
		p.dispatch(host.EventPause)
	}
	return nil
}

// Play starts or resumes playback. Playing an ended element restarts it.
func (p *Player) Play() error {
	p.mu.Lock()
	if p.src == "" {
		p.mu.Unlock()
		return host.ErrNoSource
	}
	if !p.paused {
		p.mu.Unlock()
		return nil
	}
	duration := p.durationLocked()
	if p.offset >= duration {
		p.offset = 0
	}
	p.paused = false
	p.startedAt = time.Now()
	remaining := duration - p.offset
	src := p.src
	p.cancelEnd = p.loop.AfterFunc(remaining, func() { p.finish(src) })
	p.mu.Unlock()

	p.dispatch(host.EventPlay)
	return nil
}

// Pause stops playback at the current position.
func (p *Player) Pause() error {
	p.mu.Lock()
	if p.paused {
		p.mu.Unlock()
		return nil
	}
	p.stopLocked()
	p.mu.Unlock()

	p.dispatch(host.EventPause)
	return nil
}

func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Duration returns the length of the loaded audio.
func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.durationLocked()
}

func (p *Player) AddEventListener(ev host.MediaEvent, fn func()) host.ListenerID {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	p.listeners[p.nextID] = listener{event: ev, fn: fn}
	return p.nextID
}

func (p *Player) RemoveEventListener(id host.ListenerID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.listeners, id)
}

// Listeners returns the number of registered listeners.
func (p *Player) Listeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

// finish runs when playback reaches the end of src.
func (p *Player) finish(src string) {
	p.mu.Lock()
	if p.paused || p.src != src {
		p.mu.Unlock()
		return
	}
	p.paused = true
	p.offset = p.durationLocked()
	p.cancelEnd = nil
	p.mu.Unlock()

	p.dispatch(host.EventPause)
	p.dispatch(host.EventEnded)
}

func (p *Player) stopLocked() {
	if !p.paused {
		p.offset += time.Since(p.startedAt)
		if d := p.durationLocked(); p.offset > d {
			p.offset = d
		}
	}
	p.paused = true
	if p.cancelEnd != nil {
		p.cancelEnd()
		p.cancelEnd = nil
	}
}

func (p *Player) durationLocked() time.Duration {
	if p.sampleRate == 0 {
		return 0
	}
	return time.Duration(len(p.pcm)) * time.Second / time.Duration(p.sampleRate)
}

// dispatch queues the listeners of ev on the loop, as a browser queues a
// media element task.
func (p *Player) dispatch(ev host.MediaEvent) {
	p.mu.Lock()
	ids := make([]host.ListenerID, 0, len(p.listeners))
	for id, l := range p.listeners {
		if l.event == ev {
			ids = append(ids, id)
		}
	}
	p.mu.Unlock()
	slices.Sort(ids)

	p.loop.Post(func() {
		for _, id := range ids {
			p.mu.Lock()
			l, ok := p.listeners[id]
			p.mu.Unlock()
			if ok {
				l.fn()
			}
		}
	})
	slog.Debug("media event", "element", p.id, "event", ev)
}

// markWrapped latches the element as a graph source. It reports false if
// the element was already wrapped.
func (p *Player) markWrapped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.wrapped {
		return false
	}
	p.wrapped = true
	return true
}

// currentWindow copies the len(dst) samples ending at the playhead.
func (p *Player) currentWindow(dst []float64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused || len(p.pcm) == 0 {
		return false
	}
	pos := p.offset + time.Since(p.startedAt)
	end := int(pos * time.Duration(p.sampleRate) / time.Second)
	start := end - len(dst)
	for i := range dst {
		j := start + i
		if j < 0 || j >= len(p.pcm) {
			dst[i] = 0
			continue
		}
		dst[i] = p.pcm[j]
	}
	return true
}
