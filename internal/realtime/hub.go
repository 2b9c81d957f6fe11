package realtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/frahmantamala/dental-credit/internal/core/events"
)

const DefaultBufferSize = 64

type Subscription struct {
	ID      string
	filters []Filter
	ch      chan ChangeEvent
	dropped atomic.Int64
}

// C delivers matching events. It is closed on Unsubscribe or Hub.Close.
func (s *Subscription) C() <-chan ChangeEvent { return s.ch }

func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// matches reports whether any filter selects ev.
func (s *Subscription) matches(ev ChangeEvent) bool {
	for _, f := range s.filters {
		if f.Matches(ev) {
			return true
		}
	}
	return false
}

// Hub fans change events out to subscriptions. Slow subscribers lose events instead of blocking Broadcast.
type Hub struct {
	mu         sync.RWMutex
	subs       map[string]*Subscription
	bufferSize int
	closed     bool
	logger     *slog.Logger
}

func NewHub(bufferSize int, logger *slog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		subs:       make(map[string]*Subscription),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

func (h *Hub) Subscribe(filters ...Filter) *Subscription {
	sub := &Subscription{
		ID:      uuid.NewString(),
		filters: filters,
		ch:      make(chan ChangeEvent, h.bufferSize),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subs[sub.ID] = sub
	h.logger.Debug("realtime subscription opened", "subscription_id", sub.ID, "filters", len(filters))
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub.ID]; !ok {
		return
	}
	delete(h.subs, sub.ID)
	close(sub.ch)
	h.logger.Debug("realtime subscription closed", "subscription_id", sub.ID, "dropped", sub.Dropped())
}

// Broadcast delivers ev to every matching subscription and returns how many received it.
func (h *Hub) Broadcast(ev ChangeEvent) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, sub := range h.subs {
		if !sub.matches(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
			delivered++
		default:
			sub.dropped.Add(1)
			h.logger.Warn("realtime subscriber is behind, event dropped",
				"subscription_id", sub.ID,
				"table", ev.Table,
				"record_id", ev.RecordID)
		}
	}
	return delivered
}

// Handle is the event bus handler feeding the hub.
func (h *Hub) Handle(_ context.Context, e events.Event) error {
	if ev, ok := FromEvent(e); ok {
		h.Broadcast(ev)
	}
	return nil
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription. Later subscriptions are returned already closed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
}
