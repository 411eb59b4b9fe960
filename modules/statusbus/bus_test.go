package statusbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPublishReachesEverySubscriber(t *testing.T) {
	bus := New[int]()
	defer bus.Close()

	a := make(chan int, 1)
	b := make(chan int, 1)
	require.NoError(t, bus.Subscribe("a", a))
	require.NoError(t, bus.Subscribe("b", b))

	bus.Publish(7)

	assert.Equal(t, 7, <-a)
	assert.Equal(t, 7, <-b)
	assert.Equal(t, 2, bus.Len())
}

func TestPublishDropsForFullSubscriber(t *testing.T) {
	bus := New[int]()
	defer bus.Close()

	slow := make(chan int, 1)
	require.NoError(t, bus.Subscribe("slow", slow))

	done := make(chan struct{})
	go func() {
		bus.Publish(1)
		bus.Publish(2)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	assert.Equal(t, 1, <-slow)
	stats := bus.Stats()
	assert.Equal(t, uint64(2), stats.Published)
	assert.Equal(t, SubscriberStats{Sent: 1, Dropped: 1}, stats.Subscribers["slow"])
	assert.Equal(t, uint64(1), stats.Dropped)
}

func TestSubscribeErrors(t *testing.T) {
	bus := New[string]()

	ch := make(chan string, 1)
	require.NoError(t, bus.Subscribe("x", ch))
	assert.ErrorIs(t, bus.Subscribe("x", ch), ErrSubscriberExists)
	assert.Error(t, bus.Subscribe("nil", nil))
	assert.ErrorIs(t, bus.Unsubscribe("missing"), ErrSubscriberNotFound)
	require.NoError(t, bus.Unsubscribe("x"))

	bus.Close()
	bus.Close()
	assert.ErrorIs(t, bus.Subscribe("y", ch), ErrBusClosed)
	assert.ErrorIs(t, bus.Unsubscribe("y"), ErrBusClosed)
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	bus := New[int]()
	ch := make(chan int, 1)
	require.NoError(t, bus.Subscribe("a", ch))
	bus.Close()

	assert.NotPanics(t, func() { bus.Publish(1) })
	assert.Empty(t, ch)
	assert.Equal(t, uint64(0), bus.Stats().Published)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New[int]()
	defer bus.Close()

	ch := make(chan int, 4)
	require.NoError(t, bus.Subscribe("a", ch))
	bus.Publish(1)
	require.NoError(t, bus.Unsubscribe("a"))
	bus.Publish(2)

	assert.Equal(t, 1, <-ch)
	assert.Empty(t, ch)
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	bus := New[int]()
	defer bus.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 100; n++ {
				bus.Publish(n)
			}
		}()
	}
	for i := 0; i < 4; i++ {
		ch := make(chan int, 8)
		id := string(rune('a' + i))
		require.NoError(t, bus.Subscribe(id, ch))
	}
	wg.Wait()

	stats := bus.Stats()
	assert.Equal(t, uint64(400), stats.Published)
	for _, s := range stats.Subscribers {
		assert.LessOrEqual(t, s.Sent, uint64(8))
	}
}
