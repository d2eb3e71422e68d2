package linebot

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Dispatcher defaults.
const (
	DefaultWorkers      = 4
	DefaultQueueSize    = 256
	DefaultEventTimeout = 5 * time.Minute
)

// Handler processes one event.
type Handler interface {
	Handle(ctx context.Context, ev Event)
}

// Dispatcher hands events to a fixed pool of workers so the webhook can
// answer LINE before the events are processed.
type Dispatcher struct {
	h       Handler
	queue   chan Event
	workers int
	timeout time.Duration
	log     *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithWorkers sets the number of workers. It panics if n < 1.
func WithWorkers(n int) DispatcherOption {
	if n < 1 {
		panic("linebot: workers must be at least 1")
	}
	return func(d *Dispatcher) { d.workers = n }
}

// WithQueueSize sets how many events may wait for a worker. It panics if
// n < 1.
func WithQueueSize(n int) DispatcherOption {
	if n < 1 {
		panic("linebot: queue size must be at least 1")
	}
	return func(d *Dispatcher) { d.queue = make(chan Event, n) }
}

// WithEventTimeout bounds the handling of a single event. It panics if d
// is not positive.
func WithEventTimeout(timeout time.Duration) DispatcherOption {
	if timeout <= 0 {
		panic("linebot: event timeout must be positive")
	}
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

// NewDispatcher returns a Dispatcher feeding h. Call Run to start it.
func NewDispatcher(h Handler, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		h:       h,
		queue:   make(chan Event, DefaultQueueSize),
		workers: DefaultWorkers,
		timeout: DefaultEventTimeout,
		log:     slog.Default().With("component", "linebot"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit queues ev without blocking. It returns false, and drops the event,
// when the queue is full.
func (d *Dispatcher) Submit(ev Event) bool {
	select {
	case d.queue <- ev:
		return true
	default:
		d.log.Warn("event queue full, dropping event", "event", ev.Kind, "user", ev.Source.UserID)
		return false
	}
}

// Run processes events until ctx is done, then waits for the workers.
// Events still queued at that point are dropped.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for range d.workers {
		wg.Go(func() { d.work(ctx) })
	}
	wg.Wait()
	if n := len(d.queue); n > 0 {
		d.log.Warn("dispatcher stopped with queued events", "dropped", n)
	}
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			d.handle(ctx, ev)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev Event) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("event handler panicked", "event", ev.Kind, "panic", r)
		}
	}()
	d.h.Handle(ctx, ev)
}
