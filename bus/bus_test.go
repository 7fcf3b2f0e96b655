package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atrade/schema"
)

func TestSubscribeAndPublishDeliversInOrder(t *testing.T) {
	b := New(10)
	sub := b.Subscribe("topic")
	defer b.Unsubscribe(sub)

	for i := 0; i < 5; i++ {
		b.Publish("topic", schema.Event{Type: "t", Payload: i})
	}

	for i := 0; i < 5; i++ {
		select {
		case ev := <-sub.Events():
			require.Equal(t, i, ev.Payload)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestUnsubscribeRemovesFromTopic(t *testing.T) {
	b := New(10)
	sub := b.Subscribe("topic")
	assert.Equal(t, 1, b.SubscriberCount("topic"))
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount("topic"))
}

// TestSlowSubscriberIsolation verifies that a subscriber which never drains
// its queue does not block delivery to a parallel subscriber, and that its
// own queue never exceeds its configured capacity.
func TestSlowSubscriberIsolation(t *testing.T) {
	const capacity = 50
	const published = 5000

	b := New(capacity)
	slow := b.Subscribe("large_trade")
	fast := b.Subscribe("large_trade")

	done := make(chan struct{})
	received := make([]int, 0, published)
	go func() {
		defer close(done)
		for i := 0; i < published; i++ {
			select {
			case ev := <-fast.Events():
				received = append(received, ev.Payload.(int))
			case <-time.After(5 * time.Second):
				return
			}
		}
	}()

	for i := 0; i < published; i++ {
		b.Publish("large_trade", schema.Event{Type: "t", Payload: i})
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("fast subscriber never drained all events")
	}

	require.Len(t, received, published)
	for i := 1; i < len(received); i++ {
		require.Greater(t, received[i], received[i-1], "fast subscriber must observe events in publish order")
	}

	// slow never drains; its queue must be capped, never exceeding capacity.
	assert.LessOrEqual(t, len(slow.Events()), capacity)

	b.Unsubscribe(slow)
	b.Unsubscribe(fast)
}
