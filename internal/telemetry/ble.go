package telemetry

import (
	"fmt"

	"github.com/lockevod/karoo-powerbar/internal/bt"
)

// Characteristic identifies the notification a kind is read from.
type Characteristic struct {
	ServiceUUID        string
	CharacteristicUUID string
	Parse              func(buf []byte) (float64, error)
}

// CharacteristicFor returns the characteristic that carries the kind.
func CharacteristicFor(kind Kind) (Characteristic, error) {
	switch {
	case kind.IsPower():
		return Characteristic{
			ServiceUUID:        bt.ServiceUUIDCyclingPower,
			CharacteristicUUID: bt.CharUUIDCyclingPowerMeasurement,
			Parse:              ParseCyclingPower,
		}, nil
	case kind == KindHeartRate:
		return Characteristic{
			ServiceUUID:        bt.ServiceUUIDHeartRate,
			CharacteristicUUID: bt.CharUUIDHeartRateMeasurement,
			Parse:              ParseHeartRate,
		}, nil
	default:
		return Characteristic{}, fmt.Errorf("no characteristic for kind %v", kind)
	}
}

// ParseHeartRate parses heart rate measurement characteristic data
// See: https://www.bluetooth.com/specifications/specs/heart-rate-service-1-0/
func ParseHeartRate(buf []byte) (float64, error) {
	if len(buf) < 2 {
		return 0, fmt.Errorf("heart rate data too short: %d bytes", len(buf))
	}

	flags := buf[0]
	// Bit 0: 0 = UINT8, 1 = UINT16
	if flags&0x01 != 0 {
		if len(buf) < 3 {
			return 0, fmt.Errorf("heart rate UINT16 data too short: %d bytes", len(buf))
		}
		return float64(uint16(buf[1]) | uint16(buf[2])<<8), nil
	}
	return float64(buf[1]), nil
}

// ParseCyclingPower parses the instantaneous power of a cycling power measurement
// See: https://www.bluetooth.com/specifications/specs/cycling-power-service-1-1/
func ParseCyclingPower(buf []byte) (float64, error) {
	if len(buf) < 4 {
		return 0, fmt.Errorf("cycling power data too short: %d bytes", len(buf))
	}

	// Bytes 0-1 are flags, bytes 2-3 instantaneous power (SINT16, watts)
	power := int16(uint16(buf[2]) | uint16(buf[3])<<8)
	return float64(power), nil
}
