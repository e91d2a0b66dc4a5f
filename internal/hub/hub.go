// Package hub relays published chat messages to every live subscriber.
//
// A Hub keeps the set of registered subscribers behind a single lock. Publish
// takes a point-in-time snapshot of that set and delivers outside the lock, so
// subscribers joining mid-publish never see the in-flight message and a
// subscriber that fails delivery is evicted without affecting the others.
package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Message is a single published chat message.
type Message struct {
	ID   uint64
	Text string
	Time time.Time
}

// Subscriber receives published messages. Deliver must not block for long
// and must not call Publish; returning an error removes the subscriber from
// the hub.
type Subscriber interface {
	Deliver(msg Message) error
}

// SubscriberFunc adapts a plain function to the Subscriber interface.
type SubscriberFunc func(msg Message) error

// Deliver calls f(msg).
func (f SubscriberFunc) Deliver(msg Message) error {
	return f(msg)
}

type closer interface {
	Close()
}

// Handle identifies one registration with a Hub.
type Handle struct {
	id uuid.UUID
}

// String returns the handle's identity in its canonical UUID form.
func (h Handle) String() string {
	return h.id.String()
}

// IsZero reports whether h was never issued by a Hub.
func (h Handle) IsZero() bool {
	return h.id == uuid.Nil
}

type entry struct {
	handle Handle
	sub    Subscriber
}

// Hub fans each published message out to all registered subscribers.
type Hub struct {
	log zerolog.Logger

	mu     sync.RWMutex
	subs   map[Handle]Subscriber
	closed bool

	// publishMu serializes fan-out so all subscribers observe one order.
	publishMu sync.Mutex
	seq       uint64
	now       func() time.Time
}

// New creates an empty Hub.
func New(log zerolog.Logger) *Hub {
	return &Hub{
		log:  log,
		subs: make(map[Handle]Subscriber),
		now:  time.Now,
	}
}

// Subscribe registers sub and returns the handle used to remove it later.
// Only messages published after Subscribe returns are delivered to sub.
//
// Subscribing to a hub that has been shut down closes sub right away and
// returns a handle that is not registered.
func (h *Hub) Subscribe(sub Subscriber) Handle {
	handle := Handle{id: uuid.New()}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		closeSubscriber(sub)
		return handle
	}
	h.subs[handle] = sub
	count := len(h.subs)
	h.mu.Unlock()

	h.log.Debug().Str("subscriber", handle.String()).Int("subscribers", count).Msg("subscriber added")
	return handle
}

// Unsubscribe removes the subscriber registered under handle. Unknown or
// already removed handles are ignored.
func (h *Hub) Unsubscribe(handle Handle) {
	h.mu.Lock()
	sub, ok := h.subs[handle]
	if ok {
		delete(h.subs, handle)
	}
	count := len(h.subs)
	h.mu.Unlock()

	if !ok {
		return
	}

	closeSubscriber(sub)
	h.log.Debug().Str("subscriber", handle.String()).Int("subscribers", count).Msg("subscriber removed")
}

// Publish delivers text to every subscriber registered at the time of the
// call. It never reports delivery failures; subscribers that fail are evicted.
// With no subscribers the message is dropped.
func (h *Hub) Publish(text string) {
	h.publishMu.Lock()
	defer h.publishMu.Unlock()

	targets, ok := h.snapshot()
	if !ok {
		return
	}

	h.seq++
	msg := Message{ID: h.seq, Text: text, Time: h.now()}

	var failed []entry
	for _, e := range targets {
		if err := e.sub.Deliver(msg); err != nil {
			h.log.Warn().Err(err).Str("subscriber", e.handle.String()).Uint64("message", msg.ID).Msg("delivery failed, evicting subscriber")
			failed = append(failed, e)
		}
	}

	h.log.Debug().Uint64("message", msg.ID).Int("targets", len(targets)).Int("failed", len(failed)).Msg("message published")

	for _, e := range failed {
		h.evict(e)
	}
}

// Len returns the number of registered subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Shutdown removes and closes every subscriber. Later publishes are dropped
// and later subscribers are closed on arrival. Calling Shutdown more than once
// is harmless.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[Handle]Subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		closeSubscriber(sub)
	}

	h.log.Info().Int("subscribers", len(subs)).Msg("hub shut down")
}

// snapshot copies the current subscriber set. The second result is false when
// there is nothing to deliver to.
func (h *Hub) snapshot() ([]entry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed || len(h.subs) == 0 {
		return nil, false
	}

	entries := make([]entry, 0, len(h.subs))
	for handle, sub := range h.subs {
		entries = append(entries, entry{handle: handle, sub: sub})
	}
	return entries, true
}

// evict removes e unless it was already unsubscribed. Handles are never
// reused, so a present handle still refers to e.sub.
func (h *Hub) evict(e entry) {
	h.mu.Lock()
	_, ok := h.subs[e.handle]
	if ok {
		delete(h.subs, e.handle)
	}
	h.mu.Unlock()

	if ok {
		closeSubscriber(e.sub)
	}
}

func closeSubscriber(sub Subscriber) {
	if c, ok := sub.(closer); ok {
		c.Close()
	}
}
