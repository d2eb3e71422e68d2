package linebot

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []Event
	done   chan struct{}
	block  chan struct{}
}

func (h *recordingHandler) Handle(ctx context.Context, ev Event) {
	if h.block != nil {
		select {
		case <-h.block:
		case <-ctx.Done():
		}
	}
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
	if h.done != nil {
		h.done <- struct{}{}
	}
}

func TestDispatcher_ProcessesEvents(t *testing.T) {
	t.Parallel()

	h := &recordingHandler{done: make(chan struct{}, 3)}
	d := NewDispatcher(h, WithWorkers(2), WithDispatcherLogger(discardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		d.Run(ctx)
	}()

	for i := range 3 {
		if !d.Submit(Event{Kind: EventFollow, ReplyToken: string(rune('a' + i))}) {
			t.Fatalf("Submit(%d) = false, want true", i)
		}
	}
	for range 3 {
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for events")
		}
	}

	cancel()
	<-stopped

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.events) != 3 {
		t.Errorf("handled %d events, want 3", len(h.events))
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(&recordingHandler{}, WithQueueSize(2), WithDispatcherLogger(discardLogger()))

	// No Run: nothing drains the queue.
	for i := range 2 {
		if !d.Submit(Event{Kind: EventFollow}) {
			t.Fatalf("Submit(%d) = false, want true", i)
		}
	}
	if d.Submit(Event{Kind: EventFollow}) {
		t.Error("Submit() on a full queue = true, want false")
	}
}

func TestDispatcher_StopsInFlightOnCancel(t *testing.T) {
	t.Parallel()

	h := &recordingHandler{block: make(chan struct{})}
	d := NewDispatcher(h, WithWorkers(1), WithDispatcherLogger(discardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		d.Run(ctx)
	}()

	d.Submit(Event{Kind: EventFollow})
	d.Submit(Event{Kind: EventFollow})
	cancel()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

type panicHandler struct{ calls chan struct{} }

func (h panicHandler) Handle(context.Context, Event) {
	h.calls <- struct{}{}
	panic("handler bug")
}

func TestDispatcher_RecoversPanics(t *testing.T) {
	t.Parallel()

	h := panicHandler{calls: make(chan struct{}, 2)}
	d := NewDispatcher(h, WithWorkers(1), WithDispatcherLogger(discardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		d.Run(ctx)
	}()

	d.Submit(Event{Kind: EventFollow})
	d.Submit(Event{Kind: EventFollow})
	for range 2 {
		select {
		case <-h.calls:
		case <-time.After(5 * time.Second):
			t.Fatal("worker died after a panic")
		}
	}
	cancel()
	<-stopped
}

func TestDispatcherOptions_Panic(t *testing.T) {
	t.Parallel()

	tests := map[string]func(){
		"workers":    func() { WithWorkers(0) },
		"queue size": func() { WithQueueSize(0) },
		"timeout":    func() { WithEventTimeout(0) },
	}
	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			defer func() {
				if recover() == nil {
					t.Errorf("%s option did not panic", name)
				}
			}()
			fn()
		})
	}
}
