package profile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveProfile(t *testing.T, ch <-chan UserProfile) UserProfile {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for profile")
		return UserProfile{}
	}
}

func TestFeed_StreamSendsCurrentThenUpdates(t *testing.T) {
	store := newTestStore(t)
	initial := Derive(200, 60, 185)
	feed := NewFeed(testLogger(), store, initial, 0)
	defer feed.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan UserProfile)
	done := make(chan error, 1)
	go func() { done <- feed.Stream(ctx, out) }()

	assert.True(t, initial.Equal(receiveProfile(t, out)))

	next := Derive(250, 60, 185)
	require.NoError(t, feed.Update(context.Background(), next))
	assert.True(t, next.Equal(receiveProfile(t, out)))
	assert.True(t, next.Equal(feed.Current()))

	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, next.Equal(stored))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for Stream to return")
	}
}

func TestFeed_UpdateRejectsInvalid(t *testing.T) {
	store := newTestStore(t)
	initial := Derive(200, 60, 185)
	feed := NewFeed(testLogger(), store, initial, 0)
	defer feed.Shutdown()

	bad := Derive(200, 60, 185)
	bad.RestingHR = 0
	assert.Error(t, feed.Update(context.Background(), bad))
	assert.True(t, initial.Equal(feed.Current()))
}

func TestFeed_SlowReaderGetsLatest(t *testing.T) {
	store := newTestStore(t)
	feed := NewFeed(testLogger(), store, Derive(200, 60, 185), 0)
	defer feed.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan UserProfile)
	go feed.Stream(ctx, out)

	// nobody reads while three updates land
	for _, ftp := range []int{210, 220, 230} {
		require.NoError(t, feed.Update(context.Background(), Derive(ftp, 60, 185)))
	}

	want := Derive(230, 60, 185)
	deadline := time.After(time.Second)
	for {
		select {
		case p := <-out:
			if want.Equal(p) {
				return
			}
		case <-deadline:
			t.Fatal("latest profile never delivered")
		}
	}
}

func TestFeed_PollsExternalEdits(t *testing.T) {
	store := newTestStore(t)
	initial := Derive(200, 60, 185)
	require.NoError(t, store.Save(context.Background(), initial))

	feed := NewFeed(testLogger(), store, initial, 10*time.Millisecond)
	defer feed.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan UserProfile, 4)
	go feed.Stream(ctx, out)
	receiveProfile(t, out)

	// another process writes straight to the database
	edited := Derive(280, 60, 185)
	require.NoError(t, store.Save(context.Background(), edited))

	assert.True(t, edited.Equal(receiveProfile(t, out)))
}

func TestFeed_ShutdownEndsStream(t *testing.T) {
	store := newTestStore(t)
	feed := NewFeed(testLogger(), store, Derive(200, 60, 185), 0)

	out := make(chan UserProfile, 1)
	done := make(chan error, 1)
	go func() { done <- feed.Stream(context.Background(), out) }()
	receiveProfile(t, out)

	feed.Shutdown()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrFeedClosed)
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for Stream to return")
	}
}
