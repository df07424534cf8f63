package powerbar

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lockevod/karoo-powerbar/internal/telemetry"
)

func TestObservers_FansOut(t *testing.T) {
	a, b := newCountingObserver(), newCountingObserver()
	o := Observers(a, nil, b)

	o.SampleAccepted(telemetry.KindPower)
	o.SampleSuppressed(telemetry.KindPower, OutcomeIdle)
	o.Rendered(telemetry.KindPower, 150, RenderCommand{})
	o.Halted(telemetry.KindPower, errors.New("lost"))

	for _, c := range []*countingObserver{a, b} {
		assert.Equal(t, 1, c.accepted)
		assert.Equal(t, 1, c.Suppressed(OutcomeIdle))
		assert.Equal(t, []float64{150}, c.rendered)
		assert.Len(t, c.Halts(), 1)
	}
}

func TestObservers_Collapses(t *testing.T) {
	a := newCountingObserver()
	assert.Same(t, a, Observers(nil, a))
	assert.Equal(t, nopObserver{}, Observers())
	assert.Equal(t, nopObserver{}, Observers(nil))
}
