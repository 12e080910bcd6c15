package visualizer

import (
	"image/color"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/nadzzz/speechviz/internal/host"
)

// Bar gradient, left to right: sky-500 to purple-500 at 70% opacity.
var (
	gradientFrom = color.NRGBA{R: 14, G: 165, B: 233, A: 178}
	gradientTo   = color.NRGBA{R: 168, G: 85, B: 247, A: 178}
)

// Enhanced baseline parameters.
const (
	phaseStep        = 0.05
	baselineLevel    = 0.1
	baselineSpread   = 0.15
	resampleChance   = 0.02
	minBaselineScale = 0.5
)

// RenderLoop draws one frame of bars per display refresh while running.
type RenderLoop struct {
	sched    host.Scheduler
	canvas   host.Canvas
	frames   FrameReader
	enhanced bool
	rng      *rand.Rand
	log      *slog.Logger

	running bool
	handle  host.FrameHandle
	scratch []byte
	heights []float64
	phase   float64
	scale   []float64
	drawn   int
}

// NewRenderLoop returns a stopped loop drawing frames read from frames onto
// canvas. rng may be nil.
func NewRenderLoop(sched host.Scheduler, canvas host.Canvas, frames FrameReader, enhanced bool, rng *rand.Rand, log *slog.Logger) *RenderLoop {
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed))
	}
	if log == nil {
		log = slog.Default()
	}
	r := &RenderLoop{
		sched:    sched,
		canvas:   canvas,
		frames:   frames,
		enhanced: enhanced,
		rng:      rng,
		log:      log,
		scratch:  make([]byte, BinCount),
		heights:  make([]float64, BinCount),
		scale:    make([]float64, BinCount),
	}
	for i := range r.scale {
		r.scale[i] = r.randomScale()
	}
	return r
}

// Start begins drawing. A running loop is stopped first so at most one frame
// is ever pending.
func (r *RenderLoop) Start() {
	if r.running {
		r.Stop()
	}
	r.running = true
	r.handle = r.sched.RequestFrame(r.tick)
}

// Stop cancels the pending frame. Stopping a stopped loop does nothing.
func (r *RenderLoop) Stop() {
	if !r.running {
		return
	}
	r.running = false
	if r.handle != 0 {
		r.sched.CancelFrame(r.handle)
		r.handle = 0
	}
}

// Running reports whether a frame is scheduled.
func (r *RenderLoop) Running() bool { return r.running }

// Drawn returns how many frames have been drawn.
func (r *RenderLoop) Drawn() int { return r.drawn }

// Heights returns the bar heights of the last frame as fractions of the
// canvas height.
func (r *RenderLoop) Heights() []float64 {
	out := make([]float64, len(r.heights))
	copy(out, r.heights)
	return out
}

func (r *RenderLoop) tick(time.Time) {
	r.handle = 0
	if !r.running {
		return
	}
	if !r.draw() {
		r.running = false
		return
	}
	r.handle = r.sched.RequestFrame(r.tick)
}

// draw renders one frame. It reports false when the canvas cannot be drawn on.
func (r *RenderLoop) draw() bool {
	ctx, err := r.canvas.Context2D()
	if err != nil {
		r.log.Error("canvas unavailable, stopping visualization", "error", err)
		return false
	}
	// Geometry is read every frame so resizes between frames apply at once.
	w, h := r.canvas.Size()
	width, height := float64(w), float64(h)

	r.frames.ReadFrame(r.scratch)
	if r.enhanced {
		r.advanceBaseline()
	}

	ctx.ClearRect(0, 0, width, height)
	ctx.SetFillGradient(host.Gradient{
		X0: 0,
		X1: width,
		Stops: []host.ColorStop{
			{Offset: 0, Color: gradientFrom},
			{Offset: 1, Color: gradientTo},
		},
	})

	barWidth := math.Max(1, width/BinCount*2.5)
	x := 0.0
	for i, v := range r.scratch {
		level := float64(v) / 255
		if r.enhanced {
			level = math.Max(level, r.baseline(i))
		}
		r.heights[i] = level
		barHeight := level * height
		ctx.FillRect(x, height-barHeight, barWidth, barHeight)
		x += barWidth + 1
	}
	r.drawn++
	return true
}

func (r *RenderLoop) advanceBaseline() {
	r.phase += phaseStep
	for i := range r.scale {
		if r.rng.Float64() < resampleChance {
			r.scale[i] = r.randomScale()
		}
	}
}

// baseline is a slow wave scaled per bin, never reaching zero.
func (r *RenderLoop) baseline(i int) float64 {
	wave := 0.6 + 0.4*math.Sin(r.phase+float64(i)*baselineSpread)
	return baselineLevel * wave * r.scale[i]
}

func (r *RenderLoop) randomScale() float64 {
	return minBaselineScale + (1-minBaselineScale)*r.rng.Float64()
}
