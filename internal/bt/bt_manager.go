package bt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"tinygo.org/x/bluetooth"

	"github.com/lockevod/karoo-powerbar/internal/go_func_utils"
)

// ErrDeviceNotFound is returned when a scan ends without a matching advertisement.
var ErrDeviceNotFound = errors.New("no matching device found")

// ScanFilter selects the device to connect to. Address wins when set; otherwise
// the first device advertising ServiceUUID is used.
type ScanFilter struct {
	Address     string
	ServiceUUID string
}

func (f ScanFilter) matches(result bluetooth.ScanResult) bool {
	if f.Address != "" {
		return result.Address.String() == f.Address
	}
	for _, uuid := range result.ServiceUUIDs() {
		if uuid.String() == f.ServiceUUID {
			return true
		}
	}
	return false
}

// BTManagerInterface is what the head unit needs from a Bluetooth stack.
type BTManagerInterface interface {
	Enable() error
	FindAndConnect(ctx context.Context, filter ScanFilter) (BTDevice, error)
	Disconnect(device BTDevice) error
	Shutdown()
}

var _ BTManagerInterface = (*BTManager)(nil)

type BTManager struct {
	adapter          *bluetooth.Adapter
	devicesByAddress map[string]*btDeviceImpl
	mu               sync.RWMutex
	scanMu           sync.Mutex // one scan at a time
	scanTimeout      time.Duration
	ctx              context.Context
	cancel           context.CancelFunc
	wg               sync.WaitGroup
	logger           *zerolog.Logger
}

func NewBTManager(adapter *bluetooth.Adapter, logger *zerolog.Logger, scanTimeout time.Duration) *BTManager {
	if adapter == nil {
		panic("BTManager: adapter cannot be nil")
	}
	if logger == nil {
		panic("BTManager: logger cannot be nil")
	}
	if scanTimeout <= 0 {
		scanTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := logger.With().Str("component", "bt_manager").Logger()
	return &BTManager{
		adapter:          adapter,
		devicesByAddress: make(map[string]*btDeviceImpl),
		scanTimeout:      scanTimeout,
		ctx:              ctx,
		cancel:           cancel,
		logger:           &l,
	}
}

func (m *BTManager) getBTDeviceImpl(address bluetooth.Address) *btDeviceImpl {
	m.mu.Lock()
	defer m.mu.Unlock()
	addressStr := address.String()
	result, ok := m.devicesByAddress[addressStr]
	if !ok {
		result = newBtDeviceImpl(m.logger, address)
		m.devicesByAddress[addressStr] = result
	}
	return result
}

func (m *BTManager) Enable() error {
	// Track connections and disconnections reported by the stack
	m.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		d := m.getBTDeviceImpl(device.Address)
		if connected {
			m.logger.Info().Str("device", device.Address.String()).Msg("device connected")
			d.setConnectedDevice(&device)
		} else {
			m.logger.Info().Str("device", device.Address.String()).Msg("device disconnected")
			d.setConnectedDevice(nil)
			d.resetDiscovery()
		}
	})

	return m.adapter.Enable()
}

// FindAndConnect scans until a device matches filter, then connects to it.
// The scan is bounded by the manager's scan timeout and ctx.
func (m *BTManager) FindAndConnect(ctx context.Context, filter ScanFilter) (BTDevice, error) {
	if filter.Address == "" && filter.ServiceUUID == "" {
		return nil, errors.New("scan filter needs an address or a service UUID")
	}

	result, err := m.scan(ctx, filter)
	if err != nil {
		return nil, err
	}

	d := m.getBTDeviceImpl(result.Address)
	d.setScanResult(result)
	d.setConnecting()

	m.logger.Info().
		Str("device", result.Address.String()).
		Str("name", d.GetLocalName()).
		Int16("rssi", result.RSSI).
		Msg("connecting")

	device, err := m.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		d.setConnectedDevice(nil)
		return nil, fmt.Errorf("could not connect to %s: %w", result.Address.String(), err)
	}
	d.setConnectedDevice(&device)
	return d, nil
}

func (m *BTManager) scan(ctx context.Context, filter ScanFilter) (bluetooth.ScanResult, error) {
	m.scanMu.Lock()
	defer m.scanMu.Unlock()

	found := make(chan bluetooth.ScanResult, 1)
	scanErr := make(chan error, 1)

	m.logger.Debug().Str("address", filter.Address).Str("service", filter.ServiceUUID).Msg("starting scan")

	m.wg.Add(1)
	go_func_utils.SafeGo(m.logger, func() {
		defer m.wg.Done()
		err := m.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !filter.matches(result) {
				return
			}
			select {
			case found <- result:
				if err := adapter.StopScan(); err != nil {
					m.logger.Debug().Err(err).Msg("stop scan failed")
				}
			default:
			}
		})
		scanErr <- err
	})

	timer := time.NewTimer(m.scanTimeout)
	defer timer.Stop()

	stop := func() {
		if err := m.adapter.StopScan(); err != nil {
			m.logger.Debug().Err(err).Msg("stop scan failed")
		}
		<-scanErr
	}

	select {
	case result := <-found:
		<-scanErr
		return result, nil
	case err := <-scanErr:
		select {
		case result := <-found:
			return result, nil
		default:
		}
		if err == nil {
			err = ErrDeviceNotFound
		}
		return bluetooth.ScanResult{}, fmt.Errorf("scan failed: %w", err)
	case <-timer.C:
		stop()
		return bluetooth.ScanResult{}, fmt.Errorf("after %v: %w", m.scanTimeout, ErrDeviceNotFound)
	case <-ctx.Done():
		stop()
		return bluetooth.ScanResult{}, ctx.Err()
	case <-m.ctx.Done():
		stop()
		return bluetooth.ScanResult{}, errors.New("bt manager shut down")
	}
}

func (m *BTManager) Disconnect(device BTDevice) error {
	addressStr := device.GetAddressString()

	m.mu.RLock()
	impl, ok := m.devicesByAddress[addressStr]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown device %s", addressStr)
	}

	inner := impl.getConnectedDevice()
	if inner == nil {
		m.logger.Debug().Str("device", addressStr).Msg("disconnect requested but device is not connected")
		return nil
	}
	if err := inner.Disconnect(); err != nil {
		return fmt.Errorf("could not disconnect %s: %w", addressStr, err)
	}
	impl.setConnectedDevice(nil)
	impl.resetDiscovery()
	return nil
}

// Shutdown disconnects every device, stops goroutines and waits for them to finish
func (m *BTManager) Shutdown() {
	m.logger.Info().Msg("shutting down")

	m.mu.RLock()
	devices := make([]*btDeviceImpl, 0, len(m.devicesByAddress))
	for _, d := range m.devicesByAddress {
		if d.IsConnected() {
			devices = append(devices, d)
		}
	}
	m.mu.RUnlock()

	for _, d := range devices {
		if err := m.Disconnect(d); err != nil {
			m.logger.Warn().Err(err).Msg("disconnect during shutdown failed")
		}
	}

	m.cancel()
	m.wg.Wait()
	m.logger.Info().Msg("shutdown complete")
}
