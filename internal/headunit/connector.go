// Package headunit builds the connection an open overlay reads from: a
// Bluetooth sensor for telemetry and the shared profile feed.
package headunit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lockevod/karoo-powerbar/internal/bt"
	"github.com/lockevod/karoo-powerbar/internal/powerbar"
	"github.com/lockevod/karoo-powerbar/internal/profile"
	"github.com/lockevod/karoo-powerbar/internal/telemetry"
)

type ConnectorArgs struct {
	Manager bt.BTManagerInterface
	// Profiles is shared by every connection and outlives them.
	Profiles profile.Provider
	// Address pins the sensor. Empty means the first one advertising the
	// service the kind needs.
	Address    string
	StaleAfter time.Duration
	Logger     *zerolog.Logger
}

// Connector opens sensor connections through a Bluetooth manager.
type Connector struct {
	manager    bt.BTManagerInterface
	profiles   profile.Provider
	address    string
	staleAfter time.Duration
	logger     *zerolog.Logger
}

var _ powerbar.Connector = (*Connector)(nil)

func NewConnector(args ConnectorArgs) *Connector {
	if args.Manager == nil {
		panic("Connector: BT manager cannot be nil")
	}
	if args.Profiles == nil {
		panic("Connector: profile provider cannot be nil")
	}
	if args.Logger == nil {
		panic("Connector: logger cannot be nil")
	}
	if args.StaleAfter <= 0 {
		panic("Connector: staleAfter must be > 0")
	}
	l := args.Logger.With().Str("component", "headunit").Logger()
	return &Connector{
		manager:    args.Manager,
		profiles:   args.Profiles,
		address:    args.Address,
		staleAfter: args.StaleAfter,
		logger:     &l,
	}
}

// Connect finds and connects the sensor serving kind.
func (c *Connector) Connect(ctx context.Context, kind telemetry.Kind) (powerbar.Connection, error) {
	char, err := telemetry.CharacteristicFor(kind)
	if err != nil {
		return nil, err
	}
	filter := bt.ScanFilter{Address: c.address, ServiceUUID: char.ServiceUUID}

	c.logger.Info().
		Str("kind", kind.String()).
		Str("address", filter.Address).
		Str("service", filter.ServiceUUID).
		Msg("connecting to sensor")

	device, err := c.manager.FindAndConnect(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("could not connect %s sensor: %w", kind, err)
	}

	c.logger.Info().
		Str("device", device.GetAddressString()).
		Str("name", device.GetLocalName()).
		Msg("sensor connected")

	return &connection{
		manager:   c.manager,
		device:    device,
		telemetry: telemetry.NewBLESource(c.logger, device, c.staleAfter),
		profiles:  c.profiles,
		logger:    c.logger,
	}, nil
}

// connection owns one connected device. Profile listeners end with the
// pipeline context; the feed itself is left running.
type connection struct {
	manager   bt.BTManagerInterface
	device    bt.BTDevice
	telemetry *telemetry.BLESource
	profiles  profile.Provider
	logger    *zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

func (c *connection) Telemetry() telemetry.Provider { return c.telemetry }
func (c *connection) Profiles() profile.Provider    { return c.profiles }

func (c *connection) Close() error {
	c.closeOnce.Do(func() {
		c.logger.Info().Str("device", c.device.GetAddressString()).Msg("releasing sensor")
		if err := c.manager.Disconnect(c.device); err != nil {
			c.closeErr = fmt.Errorf("could not release sensor: %w", err)
		}
	})
	return c.closeErr
}
