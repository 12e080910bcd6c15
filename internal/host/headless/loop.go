// Package headless implements the host facilities in pure Go.
//
// Everything runs on a single Loop goroutine: media events, animation
// frames, timers and any work handed over with Do or Post. The loop gives the
// visualizer the same single-threaded execution model it would have in a
// browser tab, while HTTP handlers and other goroutines talk to it through
// Do.
package headless

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nadzzz/speechviz/internal/host"
)

// ErrLoopStopped is returned by Do once the loop has exited.
var ErrLoopStopped = errors.New("headless: loop stopped")

// DefaultFrameRate is the display refresh rate used when none is configured.
const DefaultFrameRate = 60

// Loop is a single-goroutine event loop with a frame scheduler.
//
// The task queue is unbounded, so Post never blocks. Code running on the
// loop posts its own follow-up work (media events, timers) and must never
// wait for the loop to drain.
type Loop struct {
	frameInterval time.Duration
	started       atomic.Bool
	done          chan struct{}

	mu        sync.Mutex
	tasks     []func()
	nextFrame uint64
	frames    map[host.FrameHandle]func(time.Time)
	order     []host.FrameHandle
	wake      chan struct{}
}

// NewLoop creates a loop ticking frames at frameRate per second.
func NewLoop(frameRate int) *Loop {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	return &Loop{
		frameInterval: time.Second / time.Duration(frameRate),
		done:          make(chan struct{}),
		frames:        make(map[host.FrameHandle]func(time.Time)),
		wake:          make(chan struct{}, 1),
	}
}

// FrameInterval returns the time between two frames.
func (l *Loop) FrameInterval() time.Duration { return l.frameInterval }

// Run processes tasks and frames until ctx is cancelled. It must be called
// exactly once.
func (l *Loop) Run(ctx context.Context) {
	if !l.started.CompareAndSwap(false, true) {
		return
	}
	defer close(l.done)

	var (
		ticker *time.Ticker
		tickC  <-chan time.Time
	)
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		// Tick only while somebody waits for a frame.
		switch pending := l.pendingFrames(); {
		case pending && ticker == nil:
			ticker = time.NewTicker(l.frameInterval)
			tickC = ticker.C
		case !pending && ticker != nil:
			ticker.Stop()
			ticker, tickC = nil, nil
		}

		select {
		case <-ctx.Done():
			return
		case now := <-tickC:
			l.runFrames(now)
		case <-l.wake:
			l.runTasks()
		}
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Post queues fn to run on the loop. It never blocks, including when called
// from the loop itself; work posted after shutdown is dropped.
func (l *Loop) Post(fn func()) {
	select {
	case <-l.done:
		return
	default:
	}
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	l.signal()
}

// Do runs fn on the loop and waits for it to finish. It must not be called
// from the loop itself.
func (l *Loop) Do(fn func()) error {
	select {
	case <-l.done:
		return ErrLoopStopped
	default:
	}
	finished := make(chan struct{})
	l.Post(func() { defer close(finished); fn() })
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrLoopStopped
	}
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// runTasks runs every task queued so far. Tasks posted meanwhile run on
// the next wake-up.
func (l *Loop) runTasks() {
	l.mu.Lock()
	due := l.tasks
	l.tasks = nil
	l.mu.Unlock()

	for _, fn := range due {
		fn()
	}
}

// RequestFrame implements host.Scheduler.
func (l *Loop) RequestFrame(cb func(now time.Time)) host.FrameHandle {
	l.mu.Lock()
	l.nextFrame++
	h := host.FrameHandle(l.nextFrame)
	l.frames[h] = cb
	l.order = append(l.order, h)
	l.mu.Unlock()

	l.signal()
	return h
}

// CancelFrame implements host.Scheduler.
func (l *Loop) CancelFrame(h host.FrameHandle) {
	l.mu.Lock()
	delete(l.frames, h)
	if len(l.frames) == 0 {
		l.order = nil
	}
	l.mu.Unlock()
}

// AfterFunc implements host.Scheduler. fn runs on the loop.
func (l *Loop) AfterFunc(d time.Duration, fn func()) (cancel func()) {
	var cancelled atomic.Bool
	t := time.AfterFunc(d, func() {
		l.Post(func() {
			if !cancelled.Load() {
				fn()
			}
		})
	})
	return func() {
		cancelled.Store(true)
		t.Stop()
	}
}

func (l *Loop) pendingFrames() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.frames) > 0
}

// runFrames invokes every callback pending at tick time. Callbacks
// requested during the tick run on the next one.
func (l *Loop) runFrames(now time.Time) {
	l.mu.Lock()
	order := l.order
	l.order = nil
	due := make([]func(time.Time), 0, len(order))
	for _, h := range order {
		if cb, ok := l.frames[h]; ok {
			due = append(due, cb)
			delete(l.frames, h)
		}
	}
	l.mu.Unlock()

	for _, cb := range due {
		cb(now)
	}
}
