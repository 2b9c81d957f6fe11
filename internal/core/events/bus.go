package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/frahmantamala/dental-credit/internal"
)

type Event interface {
	EventType() string
	EventID() string
	OccurredAt() time.Time
	Payload() interface{}
}

type BaseEvent struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) EventID() string {
	return e.ID
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

func (e BaseEvent) Payload() interface{} {
	return e.Data
}

type Handler func(ctx context.Context, event Event) error

// Publisher is the side of the bus the services depend on.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// ErrBusClosed is returned by Publish once Drain has started.
var ErrBusClosed = errors.New("event bus is draining")

// EventBus fans events out to in-process handlers. Publish runs them on their own goroutines
// and Drain waits for those to finish. Handlers registered with SubscribeOrdered see events
// in publish order.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]subscriber
	closed   bool
	inflight sync.WaitGroup
	logger   *slog.Logger
}

type subscriber struct {
	handle Handler
	queue  *serialQueue
}

type delivery struct {
	ctx   context.Context
	event Event
	lg    *slog.Logger
}

// serialQueue runs one handler's deliveries one at a time. Its goroutine exits when the queue empties.
type serialQueue struct {
	mu      sync.Mutex
	pending []delivery
	running bool
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		handlers: make(map[string][]subscriber),
		logger:   logger,
	}
}

// SubscribeAll registers handler for each of the given event types.
func (eb *EventBus) SubscribeAll(eventTypes []string, handler Handler) {
	for _, t := range eventTypes {
		eb.Subscribe(t, handler)
	}
}

func (eb *EventBus) Subscribe(eventType string, handler Handler) {
	eb.subscribe(eventType, subscriber{handle: handler})
}

// SubscribeOrdered registers a handler that receives events of eventType one at a time,
// in the order they were published.
func (eb *EventBus) SubscribeOrdered(eventType string, handler Handler) {
	eb.subscribe(eventType, subscriber{handle: handler, queue: &serialQueue{}})
}

func (eb *EventBus) subscribe(eventType string, sub subscriber) {
	eb.mu.Lock()
	eb.handlers[eventType] = append(eb.handlers[eventType], sub)
	n := len(eb.handlers[eventType])
	eb.mu.Unlock()

	eb.logger.Debug("event handler registered", "event_type", eventType, "ordered", sub.queue != nil, "total_handlers", n)
}

func (eb *EventBus) handlersFor(eventType string) []subscriber {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return eb.handlers[eventType]
}

func (eb *EventBus) Publish(ctx context.Context, event Event) error {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return ErrBusClosed
	}
	subs := eb.handlers[event.EventType()]
	if len(subs) == 0 {
		return nil
	}

	lg := eb.logger.With(
		"event_type", event.EventType(),
		"event_id", event.EventID(),
		"actor_id", internal.UserIDFromContext(ctx))
	lg.Debug("publishing event", "handlers_count", len(subs))

	// handlers outlive the request that published the event
	detached := context.WithoutCancel(ctx)
	eb.inflight.Add(len(subs))
	for _, sub := range subs {
		if sub.queue != nil {
			eb.enqueue(sub, delivery{ctx: detached, event: event, lg: lg})
			continue
		}
		go func(h Handler) {
			defer eb.inflight.Done()
			eb.deliver(h, delivery{ctx: detached, event: event, lg: lg})
		}(sub.handle)
	}
	return nil
}

func (eb *EventBus) enqueue(sub subscriber, d delivery) {
	q := sub.queue
	q.mu.Lock()
	q.pending = append(q.pending, d)
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()

	go func() {
		for {
			q.mu.Lock()
			if len(q.pending) == 0 {
				q.running = false
				q.mu.Unlock()
				return
			}
			next := q.pending[0]
			q.pending = q.pending[1:]
			q.mu.Unlock()

			eb.deliver(sub.handle, next)
			eb.inflight.Done()
		}
	}()
}

func (eb *EventBus) deliver(h Handler, d delivery) {
	if err := eb.call(d.ctx, h, d.event); err != nil {
		d.lg.Error("event handler failed", "error", err)
	}
}

// PublishSync runs the handlers in order on the caller's goroutine and stops at the first error.
func (eb *EventBus) PublishSync(ctx context.Context, event Event) error {
	for _, sub := range eb.handlersFor(event.EventType()) {
		if err := eb.call(ctx, sub.handle, event); err != nil {
			return fmt.Errorf("handler failed for event %s: %w", event.EventType(), err)
		}
	}
	return nil
}

// Drain stops Publish from accepting events and blocks until every handler it started
// has returned, or ctx is done.
func (eb *EventBus) Drain(ctx context.Context) error {
	eb.mu.Lock()
	eb.closed = true
	eb.mu.Unlock()

	done := make(chan struct{})
	go func() {
		eb.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (eb *EventBus) call(ctx context.Context, h Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(ctx, event)
}
