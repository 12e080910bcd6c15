package visualizer

import (
	"time"

	"github.com/nadzzz/speechviz/internal/host"
)

type fakeAudio struct {
	disabled bool
	created  int
	ctx      *fakeContext
}

func (a *fakeAudio) NewContext() (host.AudioContext, error) {
	if a.disabled {
		return nil, host.ErrUnsupported
	}
	a.created++
	a.ctx = &fakeContext{state: host.StateSuspended, dest: &fakeNode{name: "destination"}}
	return a.ctx, nil
}

type fakeContext struct {
	state    host.ContextState
	resumes  int
	closes   int
	dest     *fakeNode
	analyser *fakeAnalyser
	sources  []*fakeNode
}

func (c *fakeContext) State() host.ContextState { return c.state }
func (c *fakeContext) SampleRate() float64      { return 48000 }

func (c *fakeContext) Resume() error {
	c.resumes++
	c.state = host.StateRunning
	return nil
}

func (c *fakeContext) Close() error {
	if c.state == host.StateClosed {
		return host.ErrClosed
	}
	c.closes++
	c.state = host.StateClosed
	return nil
}

func (c *fakeContext) CreateAnalyser() (host.Analyser, error) {
	c.analyser = &fakeAnalyser{fakeNode: fakeNode{name: "analyser"}, fftSize: 2048}
	return c.analyser, nil
}

func (c *fakeContext) CreateMediaElementSource(el host.MediaElement) (host.AudioNode, error) {
	fe := el.(*fakeElement)
	if fe.wrapped {
		return nil, host.ErrAlreadyWrapped
	}
	fe.wrapped = true
	n := &fakeNode{name: "source:" + fe.id}
	c.sources = append(c.sources, n)
	return n, nil
}

func (c *fakeContext) Destination() host.AudioNode { return c.dest }

type fakeNode struct {
	name        string
	connected   host.AudioNode
	connects    int
	disconnects int
}

func (n *fakeNode) Connect(dst host.AudioNode) error {
	n.connected = dst
	n.connects++
	return nil
}

func (n *fakeNode) Disconnect() {
	n.connected = nil
	n.disconnects++
}

type fakeAnalyser struct {
	fakeNode
	fftSize int
	level   byte
	reads   int
	lastLen int
}

func (a *fakeAnalyser) SetFFTSize(n int) error {
	a.fftSize = n
	return nil
}

func (a *fakeAnalyser) FFTSize() int           { return a.fftSize }
func (a *fakeAnalyser) FrequencyBinCount() int { return a.fftSize / 2 }

func (a *fakeAnalyser) ByteFrequencyData(dst []byte) {
	a.reads++
	a.lastLen = len(dst)
	for i := range dst {
		dst[i] = a.level
	}
}

type fakeListener struct {
	ev host.MediaEvent
	fn func()
}

type fakeElement struct {
	id        string
	src       string
	paused    bool
	wrapped   bool
	next      host.ListenerID
	listeners map[host.ListenerID]fakeListener
}

func newFakeElement(id string) *fakeElement {
	return &fakeElement{id: id, paused: true, listeners: make(map[host.ListenerID]fakeListener)}
}

func (e *fakeElement) ID() string  { return e.id }
func (e *fakeElement) Src() string { return e.src }

func (e *fakeElement) SetSrc(url string) error {
	e.src = url
	return nil
}

func (e *fakeElement) Play() error {
	e.paused = false
	e.fire(host.EventPlay)
	return nil
}

func (e *fakeElement) Pause() error {
	e.paused = true
	e.fire(host.EventPause)
	return nil
}

func (e *fakeElement) Paused() bool { return e.paused }

func (e *fakeElement) AddEventListener(ev host.MediaEvent, fn func()) host.ListenerID {
	e.next++
	e.listeners[e.next] = fakeListener{ev: ev, fn: fn}
	return e.next
}

func (e *fakeElement) RemoveEventListener(id host.ListenerID) { delete(e.listeners, id) }

func (e *fakeElement) fire(ev host.MediaEvent) {
	for id := host.ListenerID(1); id <= e.next; id++ {
		if l, ok := e.listeners[id]; ok && l.ev == ev {
			l.fn()
		}
	}
}

type fakeTimer struct {
	d         time.Duration
	fn        func()
	cancelled bool
	fired     bool
}

// fakeScheduler runs frames and timers only when the test says so.
type fakeScheduler struct {
	next     host.FrameHandle
	frames   map[host.FrameHandle]func(time.Time)
	requests int
	timers   []*fakeTimer
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{frames: make(map[host.FrameHandle]func(time.Time))}
}

func (s *fakeScheduler) RequestFrame(cb func(time.Time)) host.FrameHandle {
	s.next++
	s.requests++
	s.frames[s.next] = cb
	return s.next
}

func (s *fakeScheduler) CancelFrame(h host.FrameHandle) { delete(s.frames, h) }

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) func() {
	t := &fakeTimer{d: d, fn: fn}
	s.timers = append(s.timers, t)
	return func() { t.cancelled = true }
}

func (s *fakeScheduler) pending() int { return len(s.frames) }

// tick runs the frames pending now, in request order.
func (s *fakeScheduler) tick() {
	due := make([]host.FrameHandle, 0, len(s.frames))
	for h := host.FrameHandle(1); h <= s.next; h++ {
		if _, ok := s.frames[h]; ok {
			due = append(due, h)
		}
	}
	now := time.Now()
	for _, h := range due {
		cb := s.frames[h]
		delete(s.frames, h)
		cb(now)
	}
}

// fireTimers runs every live timer.
func (s *fakeScheduler) fireTimers() {
	timers := s.timers
	s.timers = nil
	for _, t := range timers {
		if !t.cancelled && !t.fired {
			t.fired = true
			t.fn()
		}
	}
}

type fillOp struct{ x, y, w, h float64 }

type fake2D struct {
	clears   []fillOp
	fills    []fillOp
	gradient host.Gradient
}

func (c *fake2D) ClearRect(x, y, w, h float64)     { c.clears = append(c.clears, fillOp{x, y, w, h}) }
func (c *fake2D) SetFillGradient(g host.Gradient) { c.gradient = g }
func (c *fake2D) FillRect(x, y, w, h float64)      { c.fills = append(c.fills, fillOp{x, y, w, h}) }

func (c *fake2D) reset() {
	c.clears, c.fills = nil, nil
}

type fakeCanvas struct {
	w, h      int
	cw, ch    int
	no2D      bool
	ctx       *fake2D
	observers map[int]func()
	nextObs   int
}

func newFakeCanvas(w, h int) *fakeCanvas {
	return &fakeCanvas{w: w, h: h, cw: w, ch: h, ctx: &fake2D{}, observers: make(map[int]func())}
}

func (c *fakeCanvas) Size() (int, int)          { return c.w, c.h }
func (c *fakeCanvas) SetSize(w, h int)          { c.w, c.h = w, h }
func (c *fakeCanvas) ContainerSize() (int, int) { return c.cw, c.ch }

func (c *fakeCanvas) OnContainerResize(fn func()) func() {
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	return func() { delete(c.observers, id) }
}

func (c *fakeCanvas) Context2D() (host.Context2D, error) {
	if c.no2D {
		return nil, host.ErrNoContext2D
	}
	return c.ctx, nil
}

func (c *fakeCanvas) resizeContainer(w, h int) {
	c.cw, c.ch = w, h
	for _, fn := range c.observers {
		fn()
	}
}

type fakeDocument struct {
	elements []*fakeElement
}

func (d *fakeDocument) ElementByID(id string) host.MediaElement {
	for _, e := range d.elements {
		if e.id == id {
			return e
		}
	}
	return nil
}

func (d *fakeDocument) FirstMediaElement() host.MediaElement {
	if len(d.elements) == 0 {
		return nil
	}
	return d.elements[0]
}

// frameCounter counts reads for render loop tests.
type frameCounter struct {
	level byte
	reads int
}

func (f *frameCounter) ReadFrame(buf []byte) {
	f.reads++
	for i := range buf {
		buf[i] = f.level
	}
}
