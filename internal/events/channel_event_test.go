package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChannelEvent(t *testing.T) {
	event := NewChannelEvent[string](false)
	require.NotNil(t, event)
	assert.Equal(t, 0, event.ListenerCount())
	assert.False(t, event.replayLast)

	event2 := NewChannelEvent[int](true)
	require.NotNil(t, event2)
	assert.True(t, event2.replayLast)
}

func TestChannelEvent_Listen_Notify_Basic(t *testing.T) {
	event := NewChannelEvent[string](false)

	ch := make(chan string, 10)
	unregister := event.Listen(ch)
	assert.Equal(t, 1, event.ListenerCount())

	event.Notify("first")
	event.Notify("second")

	// a single listener sees values in notify order
	for _, want := range []string{"first", "second"} {
		select {
		case got := <-ch:
			assert.Equal(t, want, got)
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("Timeout waiting for %q", want)
		}
	}

	unregister()
	assert.Equal(t, 0, event.ListenerCount())

	event.Notify("third")
	select {
	case val := <-ch:
		t.Errorf("Unexpected value received after unregister: %s", val)
	default:
	}
}

func TestChannelEvent_MultipleListeners(t *testing.T) {
	event := NewChannelEvent[int](false)

	ch1 := make(chan int, 10)
	ch2 := make(chan int, 10)
	unregister1 := event.Listen(ch1)
	unregister2 := event.Listen(ch2)
	defer unregister1()
	defer unregister2()

	event.Notify(42)

	assert.Equal(t, 42, <-ch1)
	assert.Equal(t, 42, <-ch2)
}

func TestChannelEvent_ReplayLast(t *testing.T) {
	event := NewChannelEvent[string](true)

	early := make(chan string, 1)
	unregisterEarly := event.Listen(early)
	defer unregisterEarly()

	// nothing to replay before the first Notify
	select {
	case val := <-early:
		t.Errorf("Unexpected value received: %s", val)
	default:
	}

	event.Notify("profile-1")
	assert.Equal(t, "profile-1", <-early)

	late := make(chan string, 1)
	unregisterLate := event.Listen(late)
	defer unregisterLate()

	select {
	case val := <-late:
		assert.Equal(t, "profile-1", val)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for replayed value")
	}

	last, ok := event.Last()
	assert.True(t, ok)
	assert.Equal(t, "profile-1", last)
}

func TestChannelEvent_NoReplayWhenDisabled(t *testing.T) {
	event := NewChannelEvent[string](false)
	event.Notify("missed")

	ch := make(chan string, 1)
	unregister := event.Listen(ch)
	defer unregister()

	select {
	case val := <-ch:
		t.Errorf("Unexpected value received: %s", val)
	default:
	}

	_, ok := event.Last()
	assert.False(t, ok)
}

func TestChannelEvent_Listen_NilChannel(t *testing.T) {
	event := NewChannelEvent[string](false)

	assert.Panics(t, func() {
		event.Listen(nil)
	})
}

func TestChannelEvent_FullChannelCountsDrops(t *testing.T) {
	event := NewChannelEvent[string](false)

	ch := make(chan string, 1)
	unregister := event.Listen(ch)
	defer unregister()

	ch <- "blocking"

	event.Notify("dropped-1")
	event.Notify("dropped-2")
	assert.Equal(t, 1, len(ch))
	assert.Equal(t, uint64(2), event.DropCount())

	<-ch
	event.Notify("delivered")
	assert.Equal(t, "delivered", <-ch)
}

func TestChannelEvent_Close(t *testing.T) {
	event := NewChannelEvent[int](true)

	ch := make(chan int, 4)
	event.Listen(ch)
	event.Close()
	assert.Equal(t, 0, event.ListenerCount())

	event.Notify(1)
	assert.Equal(t, 0, len(ch))

	unregister := event.Listen(ch)
	assert.Equal(t, 0, event.ListenerCount())
	unregister()
}

func TestChannelEvent_ConcurrentAccess(t *testing.T) {
	event := NewChannelEvent[int](false)

	channels := make([]chan int, 10)
	for i := range channels {
		channels[i] = make(chan int, 100)
		unregister := event.Listen(channels[i])
		defer unregister()
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(value int) {
			defer wg.Done()
			event.Notify(value)
		}(i)
	}
	wg.Wait()

	for i, ch := range channels {
		assert.Equal(t, 5, len(ch), "channel %d", i)
	}
	assert.Equal(t, uint64(0), event.DropCount())
}
