// Package broadcast fans accepted attempts out to live observers.
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dalgonaburger/stageboard/internal/progress"
)

const DefaultInboxCapacity = 100

// Subscription is one observer's bounded inbox.
type Subscription struct {
	ID      string
	inbox   chan progress.Event
	dropped atomic.Uint64
	closed  bool
}

// Events is closed when the subscription is removed or the hub closes.
func (s *Subscription) Events() <-chan progress.Event {
	return s.inbox
}

// Dropped counts events discarded because the inbox was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Hub delivers every published event to every current subscriber without
// blocking. A full inbox drops the event for that subscriber only.
type Hub struct {
	mu       sync.RWMutex
	subs     map[string]*Subscription
	capacity int
	closed   bool
	dropped  atomic.Uint64
	logger   *zap.Logger
}

var _ progress.Publisher = (*Hub)(nil)

type HubOption func(*Hub)

func WithLogger(l *zap.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

func NewHub(capacity int, opts ...HubOption) *Hub {
	if capacity <= 0 {
		capacity = DefaultInboxCapacity
	}
	h := &Hub{
		subs:     make(map[string]*Subscription),
		capacity: capacity,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a new inbox. Events published after Subscribe returns
// are delivered to it. On a closed hub the returned inbox is already closed.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		ID:    uuid.NewString(),
		inbox: make(chan progress.Event, h.capacity),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.closed = true
		close(sub.inbox)
		return sub
	}
	h.subs[sub.ID] = sub
	return sub
}

// Unsubscribe removes sub and closes its inbox. Calling it again, or after
// Close, is a no-op.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(sub)
}

// remove must be called with the write lock held.
func (h *Hub) remove(sub *Subscription) {
	delete(h.subs, sub.ID)
	if !sub.closed {
		sub.closed = true
		closeQuietly(sub.inbox)
	}
}

// closeQuietly tolerates an inbox that was already closed out of band.
func closeQuietly(ch chan progress.Event) {
	defer func() { _ = recover() }()
	close(ch)
}

func (h *Hub) Publish(ev progress.Event) {
	var failed []*Subscription

	h.mu.RLock()
	for _, sub := range h.subs {
		if !h.deliver(sub, ev) {
			failed = append(failed, sub)
		}
	}
	h.mu.RUnlock()

	if len(failed) == 0 {
		return
	}
	h.mu.Lock()
	for _, sub := range failed {
		h.remove(sub)
	}
	h.mu.Unlock()
}

// deliver reports false when the subscriber misbehaved and must be dropped.
func (h *Hub) deliver(sub *Subscription, ev progress.Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("dropping subscriber after delivery panic",
				zap.String("subscription", sub.ID),
				zap.Any("panic", r),
			)
			ok = false
		}
	}()
	select {
	case sub.inbox <- ev:
	default:
		sub.dropped.Add(1)
		h.dropped.Add(1)
		h.logger.Debug("inbox full, event dropped", zap.String("subscription", sub.ID))
	}
	return true
}

// Close removes every subscriber. Later Subscribe calls get a closed inbox.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, sub := range h.subs {
		h.remove(sub)
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped is the total number of events discarded across all subscribers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
