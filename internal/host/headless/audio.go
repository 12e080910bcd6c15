package headless

import (
	"fmt"
	"sync"

	"github.com/nadzzz/speechviz/internal/host"
)

// DefaultSampleRate is the rate reported by contexts when none is configured.
const DefaultSampleRate = 48000

// AudioSystem creates headless audio contexts.
type AudioSystem struct {
	sampleRate float64
	disabled   bool

	mu      sync.Mutex
	created int
}

// NewAudioSystem returns an audio system. A disabled system reports
// host.ErrUnsupported, like a browser without Web Audio.
func NewAudioSystem(sampleRate float64, disabled bool) *AudioSystem {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &AudioSystem{sampleRate: sampleRate, disabled: disabled}
}

// NewContext implements host.AudioSystem. Contexts start suspended until
// resumed, as they do without a user gesture.
func (s *AudioSystem) NewContext() (host.AudioContext, error) {
	if s.disabled {
		return nil, host.ErrUnsupported
	}
	s.mu.Lock()
	s.created++
	s.mu.Unlock()

	ctx := &audioContext{sampleRate: s.sampleRate, state: host.StateSuspended}
	ctx.destination = &destinationNode{ctx: ctx}
	return ctx, nil
}

// Created returns how many contexts have been created.
func (s *AudioSystem) Created() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

type audioContext struct {
	mu          sync.Mutex
	sampleRate  float64
	state       host.ContextState
	destination *destinationNode
}

func (c *audioContext) State() host.ContextState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *audioContext) SampleRate() float64 { return c.sampleRate }

func (c *audioContext) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == host.StateClosed {
		return host.ErrClosed
	}
	c.state = host.StateRunning
	return nil
}

func (c *audioContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == host.StateClosed {
		return host.ErrClosed
	}
	c.state = host.StateClosed
	return nil
}

func (c *audioContext) CreateAnalyser() (host.Analyser, error) {
	if c.State() == host.StateClosed {
		return nil, host.ErrClosed
	}
	a := &analyserNode{ctx: c}
	if err := a.SetFFTSize(2048); err != nil {
		return nil, err
	}
	return a, nil
}

func (c *audioContext) CreateMediaElementSource(el host.MediaElement) (host.AudioNode, error) {
	if c.State() == host.StateClosed {
		return nil, host.ErrClosed
	}
	p, ok := el.(*Player)
	if !ok {
		return nil, fmt.Errorf("headless: cannot wrap media element of type %T", el)
	}
	if !p.markWrapped() {
		return nil, host.ErrAlreadyWrapped
	}
	return &sourceNode{ctx: c, player: p}, nil
}

func (c *audioContext) Destination() host.AudioNode { return c.destination }

// running reports whether the graph is processing audio.
func (c *audioContext) running() bool {
	return c.State() == host.StateRunning
}

// destinationNode is the output device. It only records what feeds it.
type destinationNode struct {
	ctx *audioContext

	mu     sync.Mutex
	inputs []host.AudioNode
}

func (d *destinationNode) Connect(host.AudioNode) error {
	return fmt.Errorf("headless: destination has no outputs")
}

func (d *destinationNode) Disconnect() {}

func (d *destinationNode) addInput(n host.AudioNode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, in := range d.inputs {
		if in == n {
			return
		}
	}
	d.inputs = append(d.inputs, n)
}

func (d *destinationNode) removeInput(n host.AudioNode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inputs = removeNode(d.inputs, n)
}

// Inputs returns how many nodes feed the destination.
func (d *destinationNode) Inputs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inputs)
}

type inputAccepter interface {
	addInput(n host.AudioNode)
	removeInput(n host.AudioNode)
}

// sourceNode feeds the samples of a media element into the graph.
type sourceNode struct {
	ctx    *audioContext
	player *Player

	mu      sync.Mutex
	outputs []inputAccepter
}

func (s *sourceNode) Connect(dst host.AudioNode) error {
	acc, ok := dst.(inputAccepter)
	if !ok {
		return fmt.Errorf("headless: cannot connect to %T", dst)
	}
	acc.addInput(s)
	s.mu.Lock()
	s.outputs = append(s.outputs, acc)
	s.mu.Unlock()
	return nil
}

func (s *sourceNode) Disconnect() {
	s.mu.Lock()
	outputs := s.outputs
	s.outputs = nil
	s.mu.Unlock()
	for _, out := range outputs {
		out.removeInput(s)
	}
}

// window fills dst with the most recent samples, or zeros when silent.
func (s *sourceNode) window(dst []float64) bool {
	return s.player.currentWindow(dst)
}

type analyserNode struct {
	ctx *audioContext

	mu       sync.Mutex
	fftSize  int
	spectrum *spectrum
	samples  []float64
	mix      []float64
	inputs   []host.AudioNode
	outputs  []inputAccepter
}

func (a *analyserNode) SetFFTSize(n int) error {
	if n < 32 || n > 32768 || !isPowerOfTwo(n) {
		return fmt.Errorf("headless: invalid fft size %d", n)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fftSize = n
	a.spectrum = newSpectrum(n)
	a.samples = make([]float64, n)
	a.mix = make([]float64, n)
	return nil
}

func (a *analyserNode) FFTSize() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fftSize
}

func (a *analyserNode) FrequencyBinCount() int { return a.FFTSize() / 2 }

func (a *analyserNode) ByteFrequencyData(dst []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.mix {
		a.mix[i] = 0
	}
	if a.ctx.running() {
		for _, in := range a.inputs {
			src, ok := in.(*sourceNode)
			if !ok || !src.window(a.samples) {
				continue
			}
			for i, v := range a.samples {
				a.mix[i] += v
			}
		}
	}
	a.spectrum.bytes(a.mix, dst)
}

func (a *analyserNode) Connect(dst host.AudioNode) error {
	acc, ok := dst.(inputAccepter)
	if !ok {
		return fmt.Errorf("headless: cannot connect to %T", dst)
	}
	acc.addInput(a)
	a.mu.Lock()
	a.outputs = append(a.outputs, acc)
	a.mu.Unlock()
	return nil
}

func (a *analyserNode) Disconnect() {
	a.mu.Lock()
	outputs := a.outputs
	a.outputs = nil
	a.mu.Unlock()
	for _, out := range outputs {
		out.removeInput(a)
	}
}

func (a *analyserNode) addInput(n host.AudioNode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, in := range a.inputs {
		if in == n {
			return
		}
	}
	a.inputs = append(a.inputs, n)
}

func (a *analyserNode) removeInput(n host.AudioNode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inputs = removeNode(a.inputs, n)
}

func removeNode(nodes []host.AudioNode, n host.AudioNode) []host.AudioNode {
	out := nodes[:0]
	for _, in := range nodes {
		if in != n {
			out = append(out, in)
		}
	}
	return out
}
