package events

import (
	"sync"
	"sync/atomic"
)

// ChannelEvent fans a value out to any number of listener channels.
// Sends never block the notifier: a listener whose buffer is full misses the value
// and the drop is counted.
type ChannelEvent[T any] struct {
	mu         sync.RWMutex
	channels   map[uint64]chan<- T
	nextID     uint64
	replayLast bool
	last       T
	hasLast    bool
	closed     bool
	dropCount  atomic.Uint64
}

// NewChannelEvent creates a new ChannelEvent.
// replayLast: remember the last notified value and hand it to listeners that
// register after it was sent
func NewChannelEvent[T any](replayLast bool) *ChannelEvent[T] {
	return &ChannelEvent[T]{
		channels:   make(map[uint64]chan<- T),
		replayLast: replayLast,
	}
}

// Listen registers ch and returns the function that deregisters it.
// Listening on a closed event returns a no-op deregistration and never sends.
func (e *ChannelEvent[T]) Listen(ch chan<- T) func() {
	if ch == nil {
		panic("channel cannot be nil")
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return func() {}
	}
	id := e.nextID
	e.nextID++
	e.channels[id] = ch
	replay, value := e.replayLast && e.hasLast, e.last
	e.mu.Unlock()

	// outside the lock so a slow listener cannot stall Notify
	if replay {
		e.send(ch, value)
	}

	return func() {
		e.mu.Lock()
		delete(e.channels, id)
		e.mu.Unlock()
	}
}

// Notify sends value to every registered channel.
func (e *ChannelEvent[T]) Notify(value T) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if e.replayLast {
		e.last = value
		e.hasLast = true
	}
	targets := make([]chan<- T, 0, len(e.channels))
	for _, ch := range e.channels {
		targets = append(targets, ch)
	}
	e.mu.Unlock()

	for _, ch := range targets {
		e.send(ch, value)
	}
}

func (e *ChannelEvent[T]) send(ch chan<- T, value T) {
	select {
	case ch <- value:
	default:
		e.dropCount.Add(1)
	}
}

// Last returns the remembered value, if replayLast is set and Notify has run.
func (e *ChannelEvent[T]) Last() (T, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last, e.hasLast
}

// Close drops all listeners. Later Notify and Listen calls do nothing.
// Listener channels are not closed; they are owned by their creators.
func (e *ChannelEvent[T]) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.channels = make(map[uint64]chan<- T)
}

// ListenerCount returns the current number of registered listeners
func (e *ChannelEvent[T]) ListenerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.channels)
}

// DropCount returns how many sends were skipped because a listener was full.
func (e *ChannelEvent[T]) DropCount() uint64 {
	return e.dropCount.Load()
}
