package headless

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"sync"

	"github.com/nadzzz/speechviz/internal/host"
)

// Default canvas dimensions.
const (
	DefaultCanvasWidth  = 800
	DefaultCanvasHeight = 300
)

// Canvas is an in-memory raster inside a resizable container.
type Canvas struct {
	mu         sync.Mutex
	img        *image.RGBA
	containerW int
	containerH int
	no2D       bool
	nextObs    int
	observers  map[int]func()
}

// NewCanvas creates a canvas whose container and raster both measure w x h.
func NewCanvas(w, h int) *Canvas {
	if w <= 0 || h <= 0 {
		w, h = DefaultCanvasWidth, DefaultCanvasHeight
	}
	return &Canvas{
		img:        image.NewRGBA(image.Rect(0, 0, w, h)),
		containerW: w,
		containerH: h,
		observers:  make(map[int]func()),
	}
}

// DisableContext2D makes Context2D fail, as a canvas without a rendering
// context does.
func (c *Canvas) DisableContext2D() {
	c.mu.Lock()
	c.no2D = true
	c.mu.Unlock()
}

func (c *Canvas) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.img.Bounds()
	return b.Dx(), b.Dy()
}

// SetSize resizes the raster. Like a browser canvas, resizing clears it even
// when the size does not change.
func (c *Canvas) SetSize(w, h int) {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	c.mu.Lock()
	c.img = image.NewRGBA(image.Rect(0, 0, w, h))
	c.mu.Unlock()
}

func (c *Canvas) ContainerSize() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.containerW, c.containerH
}

// ResizeContainer changes the container box and notifies observers when it
// actually changed.
func (c *Canvas) ResizeContainer(w, h int) {
	c.mu.Lock()
	if w == c.containerW && h == c.containerH {
		c.mu.Unlock()
		return
	}
	c.containerW, c.containerH = w, h
	obs := make([]func(), 0, len(c.observers))
	for i := 0; i < c.nextObs; i++ {
		if fn, ok := c.observers[i]; ok {
			obs = append(obs, fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range obs {
		fn()
	}
}

func (c *Canvas) OnContainerResize(fn func()) (cancel func()) {
	c.mu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

func (c *Canvas) Context2D() (host.Context2D, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.no2D {
		return nil, host.ErrNoContext2D
	}
	return &context2D{canvas: c}, nil
}

// Image returns a copy of the raster.
func (c *Canvas) Image() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := image.NewRGBA(c.img.Bounds())
	copy(out.Pix, c.img.Pix)
	return out
}

// EncodePNG writes the raster as PNG.
func (c *Canvas) EncodePNG(w io.Writer) error {
	return png.Encode(w, c.Image())
}

type context2D struct {
	canvas *Canvas

	fill host.Gradient
}

func (x *context2D) ClearRect(left, top, w, h float64) {
	c := x.canvas
	c.mu.Lock()
	defer c.mu.Unlock()
	r := pixelRect(left, top, w, h).Intersect(c.img.Bounds())
	draw.Draw(c.img, r, image.Transparent, image.Point{}, draw.Src)
}

func (x *context2D) SetFillGradient(g host.Gradient) { x.fill = g }

// FillRect composites the current gradient over the rectangle, one column at
// a time since the gradient is horizontal.
func (x *context2D) FillRect(left, top, w, h float64) {
	c := x.canvas
	c.mu.Lock()
	defer c.mu.Unlock()
	r := pixelRect(left, top, w, h).Intersect(c.img.Bounds())
	if r.Empty() {
		return
	}
	for px := r.Min.X; px < r.Max.X; px++ {
		col := image.Rect(px, r.Min.Y, px+1, r.Max.Y)
		src := image.NewUniform(color.Color(x.fill.At(float64(px) + 0.5)))
		draw.Draw(c.img, col, src, image.Point{}, draw.Over)
	}
}

// pixelRect rounds a rectangle to the pixels whose centers it covers.
// Negative sizes extend up or left, as on a browser canvas.
func pixelRect(left, top, w, h float64) image.Rectangle {
	if w < 0 {
		left, w = left+w, -w
	}
	if h < 0 {
		top, h = top+h, -h
	}
	x0 := int(math.Round(left))
	y0 := int(math.Round(top))
	x1 := int(math.Round(left + w))
	y1 := int(math.Round(top + h))
	return image.Rect(x0, y0, x1, y1)
}
