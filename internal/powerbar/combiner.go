package powerbar

import (
	"github.com/lockevod/karoo-powerbar/internal/profile"
	"github.com/lockevod/karoo-powerbar/internal/telemetry"
)

// Outcome says what the combiner did with an input.
type Outcome int

const (
	OutcomeEmit             Outcome = iota
	OutcomeIdle                     // still waiting for the other input
	OutcomeNotStreaming             // gap marker, no value
	OutcomeDuplicateValue           // same reading as the previous one
	OutcomeDuplicateProfile         // same profile as the previous one
	OutcomeDuplicatePair            // joined pair equals the last emitted one
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEmit:
		return "emit"
	case OutcomeIdle:
		return "idle"
	case OutcomeNotStreaming:
		return "not_streaming"
	case OutcomeDuplicateValue:
		return "duplicate_value"
	case OutcomeDuplicateProfile:
		return "duplicate_profile"
	case OutcomeDuplicatePair:
		return "duplicate_pair"
	default:
		return "unknown"
	}
}

// combiner joins the latest reading with the latest profile. It stays idle
// until both have been seen, then re-pairs on every new input and suppresses
// pairs equal to the last one it emitted. Not safe for concurrent use.
type combiner struct {
	resetOnGap bool

	hasValue   bool
	value      float64
	hasProfile bool
	profile    profile.UserProfile
	hasEmitted bool
	emitted    CombinedSample
}

func newCombiner(resetOnGap bool) *combiner {
	return &combiner{resetOnGap: resetOnGap}
}

func (c *combiner) active() bool {
	return c.hasValue && c.hasProfile
}

func (c *combiner) OnTelemetry(state telemetry.State) (CombinedSample, Outcome) {
	if !state.IsStreaming() {
		if c.resetOnGap {
			// the next reading re-renders even when it equals the pre-gap one
			c.hasValue = false
			c.hasEmitted = false
		}
		return CombinedSample{}, OutcomeNotStreaming
	}
	if c.hasValue && state.Value == c.value {
		return CombinedSample{}, OutcomeDuplicateValue
	}
	c.hasValue = true
	c.value = state.Value
	return c.pair()
}

func (c *combiner) OnProfile(p profile.UserProfile) (CombinedSample, Outcome) {
	if c.hasProfile && p.Equal(c.profile) {
		return CombinedSample{}, OutcomeDuplicateProfile
	}
	c.hasProfile = true
	c.profile = p.Clone()
	return c.pair()
}

func (c *combiner) pair() (CombinedSample, Outcome) {
	if !c.active() {
		return CombinedSample{}, OutcomeIdle
	}
	sample := CombinedSample{Profile: c.profile, Value: c.value}
	if c.hasEmitted && sample.Equal(c.emitted) {
		return CombinedSample{}, OutcomeDuplicatePair
	}
	c.hasEmitted = true
	c.emitted = sample
	return sample, OutcomeEmit
}
