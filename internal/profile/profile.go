package profile

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// ColorID names a zone color. The render side maps it to a concrete color.
type ColorID string

// Zone palette
const (
	ColorRecovery      ColorID = "recovery"
	ColorEndurance     ColorID = "endurance"
	ColorAerobic       ColorID = "aerobic"
	ColorTempo         ColorID = "tempo"
	ColorThreshold     ColorID = "threshold"
	ColorVO2Max        ColorID = "vo2max"
	ColorAnaerobic     ColorID = "anaerobic"
	ColorNeuromuscular ColorID = "neuromuscular"
)

// DefaultColor is used whenever a reading falls below every zone.
const DefaultColor = ColorAerobic

// Palette lists every known color in intensity order.
var Palette = []ColorID{
	ColorRecovery,
	ColorEndurance,
	ColorAerobic,
	ColorTempo,
	ColorThreshold,
	ColorVO2Max,
	ColorAnaerobic,
	ColorNeuromuscular,
}

// Zone is one row of a zone table. A reading belongs to the zone with the
// highest Min that does not exceed it.
type Zone struct {
	Name  string
	Min   int
	Color ColorID
}

// UserProfile is the rider data the bar needs. It is replaced wholesale, never
// edited in place by the pipeline.
type UserProfile struct {
	RestingHR      int
	MaxHR          int
	PowerZones     []Zone
	HeartRateZones []Zone
}

// Equal reports structural equality, zone tables included.
func (p UserProfile) Equal(other UserProfile) bool {
	return p.RestingHR == other.RestingHR &&
		p.MaxHR == other.MaxHR &&
		slices.Equal(p.PowerZones, other.PowerZones) &&
		slices.Equal(p.HeartRateZones, other.HeartRateZones)
}

// Clone returns a copy that shares no slices with p.
func (p UserProfile) Clone() UserProfile {
	p.PowerZones = slices.Clone(p.PowerZones)
	p.HeartRateZones = slices.Clone(p.HeartRateZones)
	return p
}

var (
	ErrInvalidHeartRate = errors.New("invalid heart rate range")
	ErrZonesNotSorted   = errors.New("zone minimums must be strictly ascending")
	ErrZoneColor        = errors.New("zone has no color")
)

// Validate checks the invariants the zone resolver relies on.
func (p UserProfile) Validate() error {
	if p.RestingHR <= 0 || p.MaxHR <= p.RestingHR {
		return fmt.Errorf("%w: resting %d, max %d", ErrInvalidHeartRate, p.RestingHR, p.MaxHR)
	}
	if err := validateZones(p.PowerZones); err != nil {
		return fmt.Errorf("power zones: %w", err)
	}
	if err := validateZones(p.HeartRateZones); err != nil {
		return fmt.Errorf("heart rate zones: %w", err)
	}
	return nil
}

func validateZones(zones []Zone) error {
	for i, z := range zones {
		if z.Color == "" {
			return fmt.Errorf("zone %d: %w", i, ErrZoneColor)
		}
		if i > 0 && z.Min <= zones[i-1].Min {
			return fmt.Errorf("zone %d (min %d after %d): %w", i, z.Min, zones[i-1].Min, ErrZonesNotSorted)
		}
	}
	return nil
}

type zoneBound struct {
	name  string
	pct   float64
	color ColorID
}

var powerZoneBounds = []zoneBound{
	{"Active Recovery", 0, ColorRecovery},
	{"Endurance", 0.55, ColorEndurance},
	{"Tempo", 0.75, ColorTempo},
	{"Threshold", 0.90, ColorThreshold},
	{"VO2 Max", 1.05, ColorVO2Max},
	{"Anaerobic", 1.20, ColorAnaerobic},
	{"Neuromuscular", 1.50, ColorNeuromuscular},
}

var heartRateZoneBounds = []zoneBound{
	{"Recovery", 0, ColorRecovery},
	{"Aerobic", 0.60, ColorAerobic},
	{"Tempo", 0.70, ColorTempo},
	{"Threshold", 0.80, ColorThreshold},
	{"Maximum", 0.90, ColorVO2Max},
}

// DerivePowerZones builds the 7-zone table from functional threshold power.
func DerivePowerZones(ftp int) []Zone {
	zones := make([]Zone, 0, len(powerZoneBounds))
	for _, b := range powerZoneBounds {
		zones = append(zones, Zone{
			Name:  b.name,
			Min:   int(math.Round(b.pct * float64(ftp))),
			Color: b.color,
		})
	}
	return zones
}

// DeriveHeartRateZones builds the 5-zone table on the heart rate reserve, so
// the first zone starts at restingHR.
func DeriveHeartRateZones(restingHR, maxHR int) []Zone {
	reserve := float64(maxHR - restingHR)
	zones := make([]Zone, 0, len(heartRateZoneBounds))
	for _, b := range heartRateZoneBounds {
		zones = append(zones, Zone{
			Name:  b.name,
			Min:   restingHR + int(math.Round(b.pct*reserve)),
			Color: b.color,
		})
	}
	return zones
}

// Derive builds a complete profile from the three numbers a rider usually knows.
func Derive(ftp, restingHR, maxHR int) UserProfile {
	return UserProfile{
		RestingHR:      restingHR,
		MaxHR:          maxHR,
		PowerZones:     DerivePowerZones(ftp),
		HeartRateZones: DeriveHeartRateZones(restingHR, maxHR),
	}
}
