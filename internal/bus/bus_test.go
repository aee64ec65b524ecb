package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribeDelivers(t *testing.T) {
	b := New[int]("test")
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.Publish(Created(42))

	select {
	case evt := <-ch:
		assert.Equal(t, EventCreated, evt.Type)
		assert.Equal(t, 42, evt.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b := New[string]("fanout")
	ch1, unsub1 := b.Subscribe()
	ch2, unsub2 := b.Subscribe()
	defer unsub1()
	defer unsub2()

	b.Publish(Updated("hello"))

	for _, ch := range []<-chan Event[string]{ch1, ch2} {
		select {
		case evt := <-ch:
			assert.Equal(t, "hello", evt.Payload)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestPublishDropsOnFullMailboxWithoutBlocking(t *testing.T) {
	b := New[int]("backpressure")
	_, unsubscribe := b.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultMailboxSize*2; i++ {
			b.Publish(Created(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber mailbox")
	}

	stats := b.Stats()
	assert.Greater(t, stats.Dropped, int64(0))
	assert.Equal(t, int64(defaultMailboxSize*2), stats.Published)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New[int]("unsub")
	ch, unsubscribe := b.Subscribe()
	unsubscribe()

	b.Publish(Created(1))

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
}

func TestRegistryGetIsIdempotent(t *testing.T) {
	r := NewRegistry[int]()
	a := r.Get("alpha")
	b := r.Get("alpha")
	require.Same(t, a, b)

	other := r.Get("beta")
	assert.NotSame(t, a, other)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, r.Names())
}
