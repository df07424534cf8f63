package ui

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockevod/karoo-powerbar/internal/powerbar"
	"github.com/lockevod/karoo-powerbar/internal/telemetry"
)

type fakeOverlay struct {
	mu      sync.Mutex
	open    bool
	opened  []telemetry.Kind
	closes  int
	openErr error
}

func (o *fakeOverlay) Open(kind telemetry.Kind) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.openErr != nil {
		return o.openErr
	}
	if o.open {
		return powerbar.ErrAlreadyOpen
	}
	o.open = true
	o.opened = append(o.opened, kind)
	return nil
}

func (o *fakeOverlay) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.open {
		o.closes++
	}
	o.open = false
}

func (o *fakeOverlay) IsOpen() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.open
}

func (o *fakeOverlay) Opened() []telemetry.Kind {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]telemetry.Kind(nil), o.opened...)
}

func newTestController(t *testing.T, kind telemetry.Kind) (*Controller, *Model, *fakeOverlay) {
	m, _ := newTestModel(t, kind)
	overlay := &fakeOverlay{}
	c := NewController(m, overlay, testLogger())
	t.Cleanup(c.Shutdown)
	return c, m, overlay
}

func TestController_ToggleOverlay(t *testing.T) {
	c, m, overlay := newTestController(t, telemetry.KindPower)

	c.ToggleOverlay()
	require.Eventually(t, overlay.IsOpen, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return m.GetStatus().Open }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []telemetry.Kind{telemetry.KindPower}, overlay.Opened())

	c.ToggleOverlay()
	require.Eventually(t, func() bool { return !m.GetStatus().Open }, time.Second, 5*time.Millisecond)
	assert.False(t, overlay.IsOpen())
}

func TestController_SelectSourceWhileOpenReopens(t *testing.T) {
	c, m, overlay := newTestController(t, telemetry.KindPower)

	c.Open()
	c.SelectSource(telemetry.KindHeartRate)
	require.Eventually(t, func() bool { return len(overlay.Opened()) == 2 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []telemetry.Kind{telemetry.KindPower, telemetry.KindHeartRate}, overlay.Opened())
	assert.Equal(t, telemetry.KindHeartRate, m.GetStatus().Kind)
	assert.True(t, overlay.IsOpen())
}

func TestController_SelectSourceWhileClosed(t *testing.T) {
	c, m, overlay := newTestController(t, telemetry.KindPower)

	c.SelectSource(telemetry.KindPower10s)
	require.Eventually(t, func() bool { return m.GetStatus().Kind == telemetry.KindPower10s }, time.Second, 5*time.Millisecond)
	assert.Empty(t, overlay.Opened())
}

func TestController_OpenErrorShown(t *testing.T) {
	c, m, overlay := newTestController(t, telemetry.KindPower)
	overlay.openErr = errors.New("no adapter")

	c.Open()
	require.Eventually(t, func() bool { return m.GetStatus().LastError == "no adapter" }, time.Second, 5*time.Millisecond)
	assert.False(t, m.GetStatus().Open)
}

func TestController_ShutdownClosesOverlay(t *testing.T) {
	c, m, overlay := newTestController(t, telemetry.KindPower)

	c.Open()
	require.Eventually(t, overlay.IsOpen, time.Second, 5*time.Millisecond)
	c.Shutdown()

	assert.False(t, overlay.IsOpen())
	assert.False(t, m.GetStatus().Open)

	// actions after shutdown are dropped
	c.ToggleOverlay()
	time.Sleep(20 * time.Millisecond)
	assert.False(t, overlay.IsOpen())
}

func TestController_Escape(t *testing.T) {
	c, m, _ := newTestController(t, telemetry.KindPower)
	ch := make(chan struct{}, 1)
	unregister := m.ListenToCloseApplication(ch)
	defer unregister()

	c.OnEscapeKey()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for close request")
	}
}
