package visualizer

import (
	"io"

	"github.com/nadzzz/speechviz/internal/apperr"
)

// Executor runs fn on the host's event goroutine and waits for it.
type Executor interface {
	Do(fn func()) error
}

// Surface is a canvas whose container can be resized and whose raster can
// be exported from any goroutine.
type Surface interface {
	ResizeContainer(w, h int)
	EncodePNG(w io.Writer) error
}

// View lets other goroutines use a Visualizer. Every call that touches the
// visualizer is handed to the event goroutine.
type View struct {
	vis     *Visualizer
	exec    Executor
	surface Surface
}

// NewView wraps vis.
func NewView(vis *Visualizer, exec Executor, surface Surface) *View {
	return &View{vis: vis, exec: exec, surface: surface}
}

// Mount mounts the visualizer.
func (v *View) Mount() error { return v.exec.Do(v.vis.Mount) }

// Unmount unmounts the visualizer.
func (v *View) Unmount() error { return v.exec.Do(v.vis.Unmount) }

// Snapshot returns the visualizer's current state.
func (v *View) Snapshot() (Snapshot, error) {
	var s Snapshot
	err := v.exec.Do(func() { s = v.vis.Snapshot() })
	return s, err
}

// Resize reports a new container box, as a client layout change would.
func (v *View) Resize(w, h int) error {
	if w <= 0 || h <= 0 || w > 8192 || h > 8192 {
		return apperr.E(apperr.KindInputInvalid, "Invalid canvas size.", nil)
	}
	return v.exec.Do(func() { v.surface.ResizeContainer(w, h) })
}

// EncodePNG writes the last drawn frame.
func (v *View) EncodePNG(w io.Writer) error { return v.surface.EncodePNG(w) }
