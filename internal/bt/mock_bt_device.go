package bt

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lockevod/karoo-powerbar/internal/go_func_utils"
)

// MockBTDeviceConfig configures a simulated sensor.
type MockBTDeviceConfig struct {
	Address      string
	LocalName    string
	ServiceUUIDs []string
	HeartRate    uint8
	Power        int16
	// Wander enables a random walk of the values on every notification tick.
	Wander bool
}

// DefaultMockConfig is a combined power meter and heart rate strap.
func DefaultMockConfig() MockBTDeviceConfig {
	return MockBTDeviceConfig{
		Address:      "00:00:00:00:00:01",
		LocalName:    "Mock Powermeter",
		ServiceUUIDs: []string{ServiceUUIDCyclingPower, ServiceUUIDHeartRate},
		HeartRate:    120,
		Power:        180,
		Wander:       true,
	}
}

// MockBTDevice implements BTDevice for running without real Bluetooth hardware
type MockBTDevice struct {
	logger       *zerolog.Logger
	address      string
	localName    string
	serviceUUIDs []string
	wander       bool

	mu                   sync.RWMutex
	state                BTDeviceState
	heartRateCallback    func([]byte)
	cyclingPowerCallback func([]byte)
	heartRate            uint8
	power                int16
	rng                  *rand.Rand
}

var _ BTDevice = (*MockBTDevice)(nil)

func NewMockBTDevice(logger *zerolog.Logger, config MockBTDeviceConfig) *MockBTDevice {
	if logger == nil {
		panic("MockBTDevice: logger cannot be nil")
	}
	l := logger.With().Str("component", "mock_device").Str("device", config.Address).Logger()
	return &MockBTDevice{
		logger:       &l,
		address:      config.Address,
		localName:    config.LocalName,
		serviceUUIDs: slices.Clone(config.ServiceUUIDs),
		wander:       config.Wander,
		state:        Disconnected,
		heartRate:    config.HeartRate,
		power:        config.Power,
		rng:          rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
}

func (m *MockBTDevice) GetAddressString() string {
	return m.address
}

func (m *MockBTDevice) GetLocalName() string {
	return m.localName
}

func (m *MockBTDevice) IsConnected() bool {
	return m.GetState() == Connected
}

func (m *MockBTDevice) GetState() BTDeviceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// SetConnected changes the connection state of the mock device
func (m *MockBTDevice) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if connected {
		m.state = Connected
	} else {
		m.state = Disconnected
		m.heartRateCallback = nil
		m.cyclingPowerCallback = nil
	}
	m.logger.Debug().Stringer("state", m.state).Msg("state changed")
}

// SetValues sets the next values sent by notifications.
func (m *MockBTDevice) SetValues(heartRate uint8, power int16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartRate = heartRate
	m.power = power
}

func (m *MockBTDevice) GetServiceUUIDs() []string {
	return slices.Clone(m.serviceUUIDs)
}

func (m *MockBTDevice) HasServiceUUID(uuid string) bool {
	return slices.Contains(m.serviceUUIDs, uuid)
}

func (m *MockBTDevice) EnableNotifications(serviceUuid string, characteristicUuid string, callbackFunc func(buf []byte)) error {
	return m.setCallback(serviceUuid, characteristicUuid, callbackFunc)
}

func (m *MockBTDevice) DisableNotifications(serviceUuid string, characteristicUuid string) error {
	return m.setCallback(serviceUuid, characteristicUuid, nil)
}

func (m *MockBTDevice) setCallback(serviceUuid string, characteristicUuid string, callbackFunc func(buf []byte)) error {
	if !m.HasServiceUUID(serviceUuid) {
		return fmt.Errorf("service not supported by this device: %s", serviceUuid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Connected {
		return ErrNotConnected
	}

	switch {
	case serviceUuid == ServiceUUIDHeartRate && characteristicUuid == CharUUIDHeartRateMeasurement:
		m.heartRateCallback = callbackFunc
	case serviceUuid == ServiceUUIDCyclingPower && characteristicUuid == CharUUIDCyclingPowerMeasurement:
		m.cyclingPowerCallback = callbackFunc
	default:
		return fmt.Errorf("unknown service/characteristic: %s/%s", serviceUuid, characteristicUuid)
	}

	m.logger.Debug().
		Str("characteristic", characteristicUuid).
		Bool("enabled", callbackFunc != nil).
		Msg("notifications changed")
	return nil
}

// NotificationsEnabled reports whether someone subscribed to the characteristic.
func (m *MockBTDevice) NotificationsEnabled(characteristicUuid string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch characteristicUuid {
	case CharUUIDHeartRateMeasurement:
		return m.heartRateCallback != nil
	case CharUUIDCyclingPowerMeasurement:
		return m.cyclingPowerCallback != nil
	default:
		return false
	}
}

// TriggerAllNotifications sends one heart rate and one power notification to
// whichever callbacks are registered.
func (m *MockBTDevice) TriggerAllNotifications() {
	m.mu.Lock()
	if m.wander {
		m.heartRate = uint8(clamp(int(m.heartRate)+m.rng.IntN(5)-2, 50, 200))
		m.power = int16(clamp(int(m.power)+m.rng.IntN(41)-20, 0, 1200))
	}
	hrCallback, powerCallback := m.heartRateCallback, m.cyclingPowerCallback
	hr, power := m.heartRate, m.power
	m.mu.Unlock()

	if hrCallback != nil {
		// HR format: [flags, hr_value]
		hrCallback([]byte{0x00, hr})
	}
	if powerCallback != nil {
		// Cycling Power format: [flags_lo, flags_hi, power_lo, power_hi]
		powerCallback([]byte{0x00, 0x00, byte(power & 0xFF), byte((power >> 8) & 0xFF)})
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

// MockBTManager hands out a single MockBTDevice and drives its notifications
type MockBTManager struct {
	logger   *zerolog.Logger
	device   *MockBTDevice
	interval time.Duration

	mu           sync.Mutex
	notifyCancel context.CancelFunc
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

var _ BTManagerInterface = (*MockBTManager)(nil)

func NewMockBTManager(logger *zerolog.Logger, device *MockBTDevice, interval time.Duration) *MockBTManager {
	if logger == nil {
		panic("MockBTManager: logger cannot be nil")
	}
	if device == nil {
		panic("MockBTManager: device cannot be nil")
	}
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := logger.With().Str("component", "mock_bt_manager").Logger()
	return &MockBTManager{
		logger:   &l,
		device:   device,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (m *MockBTManager) Enable() error {
	m.logger.Info().Msg("mock Bluetooth stack enabled")
	return nil
}

func (m *MockBTManager) FindAndConnect(ctx context.Context, filter ScanFilter) (BTDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if filter.Address != "" && filter.Address != m.device.GetAddressString() {
		return nil, fmt.Errorf("%s: %w", filter.Address, ErrDeviceNotFound)
	}
	if filter.Address == "" && !m.device.HasServiceUUID(filter.ServiceUUID) {
		return nil, fmt.Errorf("service %s: %w", filter.ServiceUUID, ErrDeviceNotFound)
	}
	m.device.SetConnected(true)
	m.startNotifications()
	return m.device, nil
}

func (m *MockBTManager) Disconnect(device BTDevice) error {
	if device.GetAddressString() != m.device.GetAddressString() {
		return fmt.Errorf("unknown device %s", device.GetAddressString())
	}
	m.stopNotifications()
	m.device.SetConnected(false)
	return nil
}

func (m *MockBTManager) Shutdown() {
	m.stopNotifications()
	m.device.SetConnected(false)
	m.cancel()
	m.wg.Wait()
}

// startNotifications starts the periodic notification sender
func (m *MockBTManager) startNotifications() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notifyCancel != nil {
		return
	}
	notifyCtx, notifyCancel := context.WithCancel(m.ctx)
	m.notifyCancel = notifyCancel

	m.wg.Add(1)
	go_func_utils.SafeGo(m.logger, func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.logger.Debug().Msg("started sending notifications")
		for {
			select {
			case <-notifyCtx.Done():
				m.logger.Debug().Msg("stopped sending notifications")
				return
			case <-ticker.C:
				if m.device.IsConnected() {
					m.device.TriggerAllNotifications()
				}
			}
		}
	})
}

// stopNotifications stops the periodic notification sender
func (m *MockBTManager) stopNotifications() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notifyCancel != nil {
		m.notifyCancel()
		m.notifyCancel = nil
	}
}
