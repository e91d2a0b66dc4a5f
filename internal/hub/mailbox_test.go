package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_DeliverAndDrain(t *testing.T) {
	box := NewMailbox(2)

	require.NoError(t, box.Deliver(Message{ID: 1, Text: "a"}))
	require.NoError(t, box.Deliver(Message{ID: 2, Text: "b"}))
	assert.ErrorIs(t, box.Deliver(Message{ID: 3, Text: "c"}), ErrSlowConsumer)

	box.Close()
	box.Close()
	assert.ErrorIs(t, box.Deliver(Message{ID: 4}), ErrSubscriberClosed)

	var got []string
	for msg := range box.Messages() {
		got = append(got, msg.Text)
	}
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestMailbox_DefaultSize(t *testing.T) {
	box := NewMailbox(0)
	assert.Equal(t, DefaultBuffer, cap(box.ch))
}

func TestSubscription_ReceivesAndReleases(t *testing.T) {
	h := newTestHub()

	sub := h.Open(4)
	require.Equal(t, 1, h.Len())

	h.Publish("hello")

	select {
	case msg := <-sub.Messages():
		assert.Equal(t, "hello", msg.Text)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, h.Len())

	_, ok := <-sub.Messages()
	assert.False(t, ok, "messages channel should be closed")
}

func TestSubscription_SlowConsumerEvicted(t *testing.T) {
	h := newTestHub()
	slow := h.Open(1)
	defer slow.Close()
	fast := h.Open(8)
	defer fast.Close()

	h.Publish("one")
	h.Publish("two")

	assert.Equal(t, 1, h.Len(), "slow subscriber should be evicted")

	msg, ok := <-slow.Messages()
	require.True(t, ok)
	assert.Equal(t, "one", msg.Text)
	_, ok = <-slow.Messages()
	assert.False(t, ok)

	assert.Len(t, fast.Messages(), 2)
}

func TestSubscription_ClosedByHubShutdown(t *testing.T) {
	h := newTestHub()
	sub := h.Open(1)

	h.Shutdown()

	_, ok := <-sub.Messages()
	assert.False(t, ok)
	assert.NotPanics(t, sub.Close)
}
