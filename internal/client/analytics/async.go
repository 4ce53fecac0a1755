package analytics

import (
	"context"
	"sync"

	"github.com/exmate/exmate/internal/logging"
)

const defaultQueueSize = 64

// Async forwards events to another Emitter on a background goroutine.
// Calls never block: when the queue is full the event is dropped.
type Async struct {
	next  Emitter
	log   logging.Logger
	queue chan func()

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

func NewAsync(next Emitter, log logging.Logger) *Async {
	a := &Async{
		next:  next,
		log:   log,
		queue: make(chan func(), defaultQueueSize),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for fn := range a.queue {
		fn()
	}
}

func (a *Async) enqueue(ctx context.Context, name string, fn func()) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- fn:
	default:
		a.log.Warn(ctx, "analytics queue full, event dropped", "event", name)
	}
}

// Identify, Track, and Reset detach ctx from cancellation: the event may be
// delivered after the caller's context ends.
func (a *Async) Identify(ctx context.Context, userID string, traits map[string]any) {
	ctx = context.WithoutCancel(ctx)
	a.enqueue(ctx, "identify", func() { a.next.Identify(ctx, userID, traits) })
}

func (a *Async) Track(ctx context.Context, event string, props map[string]any) {
	ctx = context.WithoutCancel(ctx)
	a.enqueue(ctx, event, func() { a.next.Track(ctx, event, props) })
}

func (a *Async) Reset(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	a.enqueue(ctx, "reset", func() { a.next.Reset(ctx) })
}

// Close stops accepting events and waits for queued ones to drain.
func (a *Async) Close() {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})
	<-a.done
}
