package powerbar

import (
	"fmt"
	"math"

	"github.com/lockevod/karoo-powerbar/internal/profile"
	"github.com/lockevod/karoo-powerbar/internal/telemetry"
)

// CombinedSample pairs the latest profile with the latest reading.
type CombinedSample struct {
	Profile profile.UserProfile
	Value   float64
}

func (s CombinedSample) Equal(other CombinedSample) bool {
	return s.Value == other.Value && s.Profile.Equal(other.Profile)
}

// RenderCommand is what the bar shows. Progress is not clamped; readings past
// the range overshoot 1 and readings below it go negative.
type RenderCommand struct {
	Color    profile.ColorID
	Progress float64
}

func (c RenderCommand) String() string {
	return fmt.Sprintf("%s@%.3f", c.Color, c.Progress)
}

// Range is the source interval mapped onto [0, 1].
type Range struct {
	Min float64
	Max float64
}

func (r Range) degenerate() bool {
	return r.Max == r.Min || math.IsNaN(r.Min) || math.IsNaN(r.Max)
}

// RangeFor returns the value range for kind. Power spans the first zone
// minimum to the last zone minimum plus PowerHeadroomWatts, heart rate spans
// resting to max. ok is false when the profile cannot provide one.
func RangeFor(kind telemetry.Kind, p profile.UserProfile) (Range, bool) {
	switch {
	case kind.IsPower():
		if len(p.PowerZones) == 0 {
			return Range{}, false
		}
		return Range{
			Min: float64(p.PowerZones[0].Min),
			Max: float64(p.PowerZones[len(p.PowerZones)-1].Min + PowerHeadroomWatts),
		}, true
	case kind == telemetry.KindHeartRate:
		return Range{Min: float64(p.RestingHR), Max: float64(p.MaxHR)}, true
	default:
		return Range{}, false
	}
}

// BuildRenderCommand resolves the zone color from the truncated reading and the
// progress from the raw one. ok is false when no finite progress can be
// computed; the command then carries progress 0 and the resolved color.
func BuildRenderCommand(kind telemetry.Kind, sample CombinedSample) (RenderCommand, bool) {
	reading := int(sample.Value)

	var (
		color profile.ColorID
		found bool
	)
	switch {
	case kind.IsPower():
		color, found = ResolvePowerZone(sample.Profile, reading)
	case kind == telemetry.KindHeartRate:
		color, found = ResolveHeartRateZone(sample.Profile, reading)
	}
	if !found {
		color = profile.DefaultColor
	}
	cmd := RenderCommand{Color: color}

	r, ok := RangeFor(kind, sample.Profile)
	if !ok || r.degenerate() {
		return cmd, false
	}
	progress := Remap(sample.Value, r.Min, r.Max, 0, 1)
	if math.IsNaN(progress) || math.IsInf(progress, 0) {
		return cmd, false
	}
	cmd.Progress = progress
	return cmd, true
}
