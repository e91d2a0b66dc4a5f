package hub

import (
	"errors"
	"sync"
)

// DefaultBuffer is the mailbox capacity used when a non-positive size is given.
const DefaultBuffer = 256

var (
	// ErrSlowConsumer is returned by Mailbox.Deliver when the buffer is full.
	ErrSlowConsumer = errors.New("hub: subscriber buffer full")
	// ErrSubscriberClosed is returned when delivering to a closed mailbox.
	ErrSubscriberClosed = errors.New("hub: subscriber closed")
)

// Mailbox is a Subscriber backed by a bounded channel. Deliver never blocks:
// a consumer that falls a full buffer behind gets ErrSlowConsumer and is
// evicted by the hub.
type Mailbox struct {
	mu     sync.Mutex
	ch     chan Message
	closed bool
}

// NewMailbox creates a mailbox holding up to size undelivered messages.
func NewMailbox(size int) *Mailbox {
	if size <= 0 {
		size = DefaultBuffer
	}
	return &Mailbox{ch: make(chan Message, size)}
}

// Deliver enqueues msg without blocking.
func (m *Mailbox) Deliver(msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrSubscriberClosed
	}

	select {
	case m.ch <- msg:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Messages returns the receive side of the mailbox. It is closed once the
// mailbox is closed and any buffered messages have been drained.
func (m *Mailbox) Messages() <-chan Message {
	return m.ch
}

// Close stops further deliveries. It is safe to call more than once.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	close(m.ch)
}

// Subscription is a Mailbox registered with a Hub. Callers defer Close so the
// registration is released on every exit path.
type Subscription struct {
	hub    *Hub
	handle Handle
	box    *Mailbox
	once   sync.Once
}

// Open registers a new mailbox of the given size with the hub.
func (h *Hub) Open(size int) *Subscription {
	box := NewMailbox(size)
	return &Subscription{
		hub:    h,
		handle: h.Subscribe(box),
		box:    box,
	}
}

// Handle returns the hub registration handle.
func (s *Subscription) Handle() Handle {
	return s.handle
}

// Messages returns the channel of delivered messages. The channel is closed
// when the subscription is closed, evicted, or the hub shuts down.
func (s *Subscription) Messages() <-chan Message {
	return s.box.Messages()
}

// Close unsubscribes from the hub and closes the mailbox.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.Unsubscribe(s.handle)
		s.box.Close()
	})
}
