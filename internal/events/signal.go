// Package events provides the in-process signal used to announce that a new
// audio artifact is ready.
//
// A Signal is a single-topic publish/subscribe channel without payload. It
// is handed to producers and consumers at construction time instead of being
// looked up globally.
package events

import "sync"

// Signal fans a payload-less notification out to its subscribers.
// Handlers run synchronously on the goroutine that calls Fire, in
// subscription order.
type Signal struct {
	name string

	mu     sync.Mutex
	nextID int
	subs   []subscription
	fired  int
}

type subscription struct {
	id int
	fn func()
}

// NewSignal creates a named signal. The name is only used for diagnostics.
func NewSignal(name string) *Signal {
	return &Signal{name: name}
}

// Name returns the signal name (e.g. "regenerated").
func (s *Signal) Name() string { return s.name }

// Subscribe registers fn and returns a function that removes it.
// The returned cancel function is safe to call more than once.
func (s *Signal) Subscribe(fn func()) (cancel func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Fire notifies every current subscriber.
func (s *Signal) Fire() {
	s.mu.Lock()
	s.fired++
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn()
	}
}

// Fired returns how many times the signal has fired.
func (s *Signal) Fired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

// Subscribers returns the current subscriber count.
func (s *Signal) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
