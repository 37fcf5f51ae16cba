package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"treeguardian/core"
)

type DispatchMode int

const (
	DispatchSync DispatchMode = iota
	DispatchAsync
)

// Handler consumes one published event.
type Handler func(context.Context, core.Event)

// BusOption tunes an EventBus.
type BusOption func(*EventBus)

// WithQueueSize sets the async buffer (default 1024).
func WithQueueSize(n int) BusOption {
	return func(e *EventBus) {
		if n > 0 {
			e.queueSize = n
		}
	}
}

// WithWorkers sets the number of async dispatch goroutines (default 2).
func WithWorkers(n int) BusOption {
	return func(e *EventBus) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithBusLogger reports recovered handler panics.
func WithBusLogger(l *slog.Logger) BusOption {
	return func(e *EventBus) {
		if l != nil {
			e.logger = l
		}
	}
}

// EventBus fans events out to subscribers, either inline or through a
// bounded queue drained by worker goroutines. Handlers subscribed to the
// empty event type receive every event.
type EventBus struct {
	mode      DispatchMode
	queueSize int
	workers   int
	logger    *slog.Logger

	mu     sync.RWMutex
	subs   map[core.EventType]map[int64]Handler
	nextID int64

	queue     chan core.Event
	dropped   atomic.Int64
	wg        sync.WaitGroup
	closeOnce sync.Once
	done      chan struct{}
}

func NewEventBus(mode DispatchMode, opts ...BusOption) *EventBus {
	eb := &EventBus{
		mode:      mode,
		queueSize: 1024,
		workers:   2,
		logger:    slog.Default(),
		subs:      make(map[core.EventType]map[int64]Handler),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(eb)
	}
	if mode == DispatchAsync {
		eb.queue = make(chan core.Event, eb.queueSize)
		for i := 0; i < eb.workers; i++ {
			eb.wg.Add(1)
			go eb.work()
		}
	}
	return eb
}

func (e *EventBus) work() {
	defer e.wg.Done()
	for {
		select {
		case ev := <-e.queue:
			e.dispatch(context.Background(), ev)
		case <-e.done:
			for {
				select {
				case ev := <-e.queue:
					e.dispatch(context.Background(), ev)
				default:
					return
				}
			}
		}
	}
}

// Close stops async workers once the queue is drained. Safe to call twice.
func (e *EventBus) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
		e.wg.Wait()
	})
}

// Subscribe registers a handler for an event type. Returns unsubscribe func.
func (e *EventBus) Subscribe(typ core.EventType, handler Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	if e.subs[typ] == nil {
		e.subs[typ] = make(map[int64]Handler)
	}
	e.subs[typ][id] = handler
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs[typ], id)
	}
}

// SubscribeAll registers a handler for every event type.
func (e *EventBus) SubscribeAll(handler Handler) func() {
	return e.Subscribe("", handler)
}

// Publish delivers ev. In async mode a full queue drops the event and a
// closed bus ignores it.
func (e *EventBus) Publish(ctx context.Context, ev core.Event) {
	if e.mode != DispatchAsync {
		e.dispatch(ctx, ev)
		return
	}
	select {
	case <-e.done:
		return
	default:
	}
	select {
	case e.queue <- ev:
	default:
		e.dropped.Add(1)
	}
}

// Dropped counts events discarded because the async queue was full.
func (e *EventBus) Dropped() int64 { return e.dropped.Load() }

func (e *EventBus) dispatch(ctx context.Context, ev core.Event) {
	e.mu.RLock()
	handlers := make([]Handler, 0, len(e.subs[ev.Type])+len(e.subs[""]))
	for _, h := range e.subs[ev.Type] {
		handlers = append(handlers, h)
	}
	for _, h := range e.subs[""] {
		handlers = append(handlers, h)
	}
	e.mu.RUnlock()
	for _, h := range handlers {
		e.call(ctx, h, ev)
	}
}

// call isolates handler panics so one subscriber cannot take down the
// worker or the caller.
func (e *EventBus) call(ctx context.Context, h Handler, ev core.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event handler panicked", "event", ev.Type, "player", ev.PlayerID, "panic", r)
		}
	}()
	h(ctx, ev)
}
