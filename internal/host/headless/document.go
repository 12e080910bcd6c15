package headless

import (
	"sync"

	"github.com/nadzzz/speechviz/internal/host"
)

// Document is a registry of media elements in insertion order.
type Document struct {
	loop     *Loop
	resolver Resolver

	mu    sync.Mutex
	order []string
	byID  map[string]*Player
}

// NewDocument creates an empty document whose elements load their sources
// through resolver.
func NewDocument(loop *Loop, resolver Resolver) *Document {
	return &Document{
		loop:     loop,
		resolver: resolver,
		byID:     make(map[string]*Player),
	}
}

// MediaElement returns the element with id, creating it on first use.
func (d *Document) MediaElement(id string) *Player {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.byID[id]; ok {
		return p
	}
	p := NewPlayer(id, d.loop, d.resolver)
	d.byID[id] = p
	d.order = append(d.order, id)
	return p
}

// Lookup returns the element with id, if any.
func (d *Document) Lookup(id string) (*Player, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.byID[id]
	return p, ok
}

// Remove takes the element out of the document. A later MediaElement call
// with the same id creates a new element.
func (d *Document) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byID[id]; !ok {
		return
	}
	delete(d.byID, id)
	for i, v := range d.order {
		if v == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// ElementByID implements host.Document.
func (d *Document) ElementByID(id string) host.MediaElement {
	if p, ok := d.Lookup(id); ok {
		return p
	}
	return nil
}

// FirstMediaElement implements host.Document.
func (d *Document) FirstMediaElement() host.MediaElement {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.order) == 0 {
		return nil
	}
	return d.byID[d.order[0]]
}
