package powerbar

import "github.com/lockevod/karoo-powerbar/internal/profile"

// ResolveZone returns the color of the zone with the highest minimum that is
// still <= reading. ok is false when the reading is below every zone or the
// table is empty.
func ResolveZone(zones []profile.Zone, reading int) (color profile.ColorID, ok bool) {
	best := -1
	for i, z := range zones {
		if z.Min <= reading && (best < 0 || z.Min >= zones[best].Min) {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	return zones[best].Color, true
}

func ResolvePowerZone(p profile.UserProfile, watts int) (profile.ColorID, bool) {
	return ResolveZone(p.PowerZones, watts)
}

func ResolveHeartRateZone(p profile.UserProfile, bpm int) (profile.ColorID, bool) {
	return ResolveZone(p.HeartRateZones, bpm)
}
