package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lockevod/karoo-powerbar/internal/bt"
)

// ErrDisconnected is returned by Stream when the sensor drops the connection.
var ErrDisconnected = errors.New("sensor disconnected")

const notificationBuffer = 16

// BLESource streams one kind of telemetry from a connected Bluetooth sensor.
type BLESource struct {
	logger     *zerolog.Logger
	device     bt.BTDevice
	staleAfter time.Duration
	now        func() time.Time
}

var _ Provider = (*BLESource)(nil)

func NewBLESource(logger *zerolog.Logger, device bt.BTDevice, staleAfter time.Duration) *BLESource {
	if logger == nil {
		panic("BLESource: logger cannot be nil")
	}
	if device == nil {
		panic("BLESource: device cannot be nil")
	}
	if staleAfter <= 0 {
		panic("BLESource: staleAfter must be > 0")
	}
	l := logger.With().Str("component", "ble_source").Str("device", device.GetAddressString()).Logger()
	return &BLESource{
		logger:     &l,
		device:     device,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Stream subscribes to the characteristic carrying kind and forwards parsed
// readings. Smoothed kinds report the trailing mean. After staleAfter without a
// notification a single NotStreaming is sent.
func (s *BLESource) Stream(ctx context.Context, kind Kind, out chan<- State) error {
	char, err := CharacteristicFor(kind)
	if err != nil {
		return err
	}
	if !s.device.IsConnected() {
		return ErrDisconnected
	}

	raw := make(chan []byte, notificationBuffer)
	err = s.device.EnableNotifications(char.ServiceUUID, char.CharacteristicUUID, func(buf []byte) {
		// the BLE stack may reuse buf after the callback returns
		data := append([]byte(nil), buf...)
		select {
		case raw <- data:
		default:
			s.logger.Trace().Msg("notification dropped, reader is behind")
		}
	})
	if err != nil {
		return fmt.Errorf("could not subscribe to %s: %w", kind, err)
	}
	defer func() {
		if err := s.device.DisableNotifications(char.ServiceUUID, char.CharacteristicUUID); err != nil {
			s.logger.Debug().Err(err).Msg("could not disable notifications")
		}
	}()

	var smoother *Smoother
	if window := kind.SmoothingWindow(); window > 0 {
		smoother = NewSmoother(window)
	}

	ticker := time.NewTicker(checkInterval(s.staleAfter))
	defer ticker.Stop()

	s.logger.Info().Str("kind", kind.String()).Msg("streaming telemetry")

	lastData := s.now()
	stale := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case buf := <-raw:
			value, err := char.Parse(buf)
			if err != nil {
				s.logger.Warn().Err(err).Msg("could not parse notification")
				continue
			}
			now := s.now()
			lastData = now
			stale = false
			if smoother != nil {
				value = smoother.Add(now, value)
			}
			if !send(ctx, out, Streaming(value)) {
				return nil
			}
		case <-ticker.C:
			if !s.device.IsConnected() {
				return ErrDisconnected
			}
			if !stale && s.now().Sub(lastData) >= s.staleAfter {
				stale = true
				if smoother != nil {
					smoother.Reset()
				}
				s.logger.Debug().Dur("silence", s.now().Sub(lastData)).Msg("sensor went quiet")
				if !send(ctx, out, NotStreaming()) {
					return nil
				}
			}
		}
	}
}

func checkInterval(staleAfter time.Duration) time.Duration {
	interval := staleAfter / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	if interval > time.Second {
		interval = time.Second
	}
	return interval
}

func send(ctx context.Context, out chan<- State, state State) bool {
	select {
	case out <- state:
		return true
	case <-ctx.Done():
		return false
	}
}
