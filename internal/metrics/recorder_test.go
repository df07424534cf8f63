package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/lockevod/karoo-powerbar/internal/powerbar"
	"github.com/lockevod/karoo-powerbar/internal/profile"
	"github.com/lockevod/karoo-powerbar/internal/telemetry"
)

type stepClock struct {
	t time.Time
}

func (c *stepClock) now() time.Time { return c.t }

func (c *stepClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRecorder() (*Recorder, *stepClock) {
	r := NewRecorder(prometheus.NewRegistry())
	clock := &stepClock{t: time.Unix(1_700_000_000, 0)}
	r.now = clock.now
	return r, clock
}

func TestRecorder_Counters(t *testing.T) {
	r, _ := newTestRecorder()

	r.SampleAccepted(telemetry.KindPower)
	r.SampleAccepted(telemetry.KindPower)
	r.SampleSuppressed(telemetry.KindPower, powerbar.OutcomeDuplicateValue)
	r.SampleSuppressed(telemetry.KindHeartRate, powerbar.OutcomeDuplicatePair)
	r.Halted(telemetry.KindHeartRate, errors.New("lost"))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.accepted.WithLabelValues("power")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.suppressed.WithLabelValues("power", "duplicate_value")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.suppressed.WithLabelValues("heart_rate", "duplicate_pair")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.halts.WithLabelValues("heart_rate")))
}

func TestRecorder_Rendered(t *testing.T) {
	r, clock := newTestRecorder()
	cmd := powerbar.RenderCommand{Color: profile.ColorTempo, Progress: 0.25}

	r.Rendered(telemetry.KindPower3s, 200, cmd)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.renders.WithLabelValues("power_3s")))
	assert.Equal(t, 200.0, testutil.ToFloat64(r.lastValue.WithLabelValues("power_3s")))
	assert.Equal(t, 0.25, testutil.ToFloat64(r.lastProgress.WithLabelValues("power_3s")))
	// one render has no interval yet
	assert.Equal(t, 0, testutil.CollectAndCount(r.renderInterval))

	clock.advance(time.Second)
	r.Rendered(telemetry.KindPower3s, 210, cmd)
	assert.Equal(t, 1, testutil.CollectAndCount(r.renderInterval))
	assert.Equal(t, 210.0, testutil.ToFloat64(r.lastValue.WithLabelValues("power_3s")))
}

func TestRecorder_HaltForgetsLastRender(t *testing.T) {
	r, clock := newTestRecorder()

	r.Rendered(telemetry.KindPower, 100, powerbar.RenderCommand{})
	r.Halted(telemetry.KindPower, errors.New("gone"))
	clock.advance(time.Minute)
	r.Rendered(telemetry.KindPower, 110, powerbar.RenderCommand{})

	assert.Equal(t, 0, testutil.CollectAndCount(r.renderInterval))
}

func TestNewRecorder_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRecorder(reg)
	assert.Panics(t, func() { NewRecorder(reg) })
}
