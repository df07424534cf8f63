package bt

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"tinygo.org/x/bluetooth"
)

type BTDeviceState int

const (
	Disconnected BTDeviceState = iota // 0
	Connecting                        // 1
	Connected                         // 2
)

func (s BTDeviceState) String() string {
	switch s {
	case Connected:
		return "Connected"
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	default:
		return "Unknown"
	}
}

// ErrNotConnected is returned for characteristic operations on a device without a link.
var ErrNotConnected = errors.New("no connected device")

// BTDevice is a sensor the telemetry sources can subscribe to.
type BTDevice interface {
	GetAddressString() string
	GetLocalName() string
	IsConnected() bool
	GetState() BTDeviceState
	EnableNotifications(serviceUuid string, characteristicUuid string, callbackFunc func(buf []byte)) error
	DisableNotifications(serviceUuid string, characteristicUuid string) error
	GetServiceUUIDs() []string
	HasServiceUUID(uuid string) bool
}

type btDeviceImpl struct {
	address         bluetooth.Address
	localName       string
	connectedDevice *bluetooth.Device // will be nil if not connected
	state           BTDeviceState
	serviceUuidStrs []string
	mu              sync.RWMutex
	logger          *zerolog.Logger

	// bleMu serializes characteristic operations and guards the discovery caches
	bleMu                  sync.Mutex
	serviceByUuid          map[string]*bluetooth.DeviceService
	characteristicByUuid   map[string]*bluetooth.DeviceCharacteristic
	serviceCharsDiscovered map[string]bool
	allServicesDiscovered  bool
}

func newBtDeviceImpl(logger *zerolog.Logger, address bluetooth.Address) *btDeviceImpl {
	if logger == nil {
		panic("logger must be non nil")
	}
	l := logger.With().Str("device", address.String()).Logger()
	return &btDeviceImpl{
		logger:                 &l,
		address:                address,
		localName:              "Unknown",
		state:                  Disconnected,
		serviceByUuid:          make(map[string]*bluetooth.DeviceService),
		characteristicByUuid:   make(map[string]*bluetooth.DeviceCharacteristic),
		serviceCharsDiscovered: make(map[string]bool),
	}
}

func (b *btDeviceImpl) GetAddressString() string {
	return b.address.String()
}

func (b *btDeviceImpl) GetLocalName() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.localName
}

func (b *btDeviceImpl) GetServiceUUIDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.serviceUuidStrs)
}

func (b *btDeviceImpl) HasServiceUUID(uuid string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Contains(b.serviceUuidStrs, uuid)
}

func (b *btDeviceImpl) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connectedDevice != nil
}

func (b *btDeviceImpl) GetState() BTDeviceState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *btDeviceImpl) setScanResult(result bluetooth.ScanResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if name := result.LocalName(); name != "" {
		b.localName = name
	}
	b.serviceUuidStrs = b.serviceUuidStrs[:0]
	for _, uuid := range result.ServiceUUIDs() {
		b.serviceUuidStrs = append(b.serviceUuidStrs, uuid.String())
	}
}

func (b *btDeviceImpl) setConnectedDevice(device *bluetooth.Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connectedDevice = device
	if device != nil {
		b.state = Connected
	} else {
		b.state = Disconnected
	}
}

func (b *btDeviceImpl) setConnecting() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Connecting
}

func (b *btDeviceImpl) getConnectedDevice() *bluetooth.Device {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connectedDevice
}

// resetDiscovery drops cached handles, which are invalid after a reconnect.
func (b *btDeviceImpl) resetDiscovery() {
	b.bleMu.Lock()
	defer b.bleMu.Unlock()
	clear(b.serviceByUuid)
	clear(b.characteristicByUuid)
	clear(b.serviceCharsDiscovered)
	b.allServicesDiscovered = false
}

func (b *btDeviceImpl) EnableNotifications(
	serviceUuidStr string,
	characteristicUuidStr string,
	callbackFunc func(buf []byte)) error {

	b.bleMu.Lock()
	defer b.bleMu.Unlock()

	characteristic, err := b.lookupCharacteristic(serviceUuidStr, characteristicUuidStr)
	if err != nil {
		return err
	}

	if err := characteristic.EnableNotifications(callbackFunc); err != nil {
		return fmt.Errorf("failed to enable notifications: %w", err)
	}

	b.logger.Debug().Str("characteristic", characteristicUuidStr).Msg("notifications enabled")
	return nil
}

func (b *btDeviceImpl) DisableNotifications(
	serviceUuidStr string,
	characteristicUuidStr string) error {

	b.bleMu.Lock()
	defer b.bleMu.Unlock()

	characteristic, err := b.lookupCharacteristic(serviceUuidStr, characteristicUuidStr)
	if err != nil {
		return err
	}

	// Pass nil callback to disable notifications
	if err := characteristic.EnableNotifications(nil); err != nil {
		return fmt.Errorf("failed to disable notifications: %w", err)
	}

	b.logger.Debug().Str("characteristic", characteristicUuidStr).Msg("notifications disabled")
	return nil
}

// lookupCharacteristic must be called with bleMu held.
func (b *btDeviceImpl) lookupCharacteristic(serviceUuidStr, characteristicUuidStr string) (*bluetooth.DeviceCharacteristic, error) {
	serviceUuid, err := bluetooth.ParseUUID(serviceUuidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid service UUID %q: %w", serviceUuidStr, err)
	}
	characteristicUuid, err := bluetooth.ParseUUID(characteristicUuidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid characteristic UUID %q: %w", characteristicUuidStr, err)
	}
	return b.getDeviceCharacteristic(serviceUuid, characteristicUuid)
}

func (b *btDeviceImpl) getDeviceService(serviceUuid bluetooth.UUID) (*bluetooth.DeviceService, error) {
	connectedDevice := b.getConnectedDevice()
	if connectedDevice == nil {
		return nil, ErrNotConnected
	}

	serviceUuidStr := serviceUuid.String()
	if service, ok := b.serviceByUuid[serviceUuidStr]; ok {
		return service, nil
	}

	// Discover every service at once; discovering a single service again later
	// interrupts notifications on services discovered earlier.
	if !b.allServicesDiscovered {
		b.logger.Debug().Msg("discovering all services")
		deviceServices, err := connectedDevice.DiscoverServices(nil)
		if err != nil {
			return nil, fmt.Errorf("error discovering services: %w", err)
		}
		for i := range deviceServices {
			svc := &deviceServices[i]
			b.serviceByUuid[svc.UUID().String()] = svc
		}
		b.allServicesDiscovered = true
	}

	service, ok := b.serviceByUuid[serviceUuidStr]
	if !ok {
		return nil, fmt.Errorf("service %v not found on device", serviceUuidStr)
	}
	return service, nil
}

func (b *btDeviceImpl) getDeviceCharacteristic(serviceUuid bluetooth.UUID, charUuid bluetooth.UUID) (*bluetooth.DeviceCharacteristic, error) {
	serviceUuidStr := serviceUuid.String()
	charUuidStr := charUuid.String()
	comboUuidStr := fmt.Sprintf("%s_%s", serviceUuidStr, charUuidStr)

	if characteristic, ok := b.characteristicByUuid[comboUuidStr]; ok {
		return characteristic, nil
	}

	if !b.serviceCharsDiscovered[serviceUuidStr] {
		service, err := b.getDeviceService(serviceUuid)
		if err != nil {
			return nil, err
		}

		b.logger.Debug().Str("service", serviceUuidStr).Msg("discovering all characteristics")
		discovered, err := service.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("could not discover characteristics for service %v: %w", serviceUuidStr, err)
		}
		for i := range discovered {
			char := &discovered[i]
			b.characteristicByUuid[fmt.Sprintf("%s_%s", serviceUuidStr, char.UUID().String())] = char
		}
		b.serviceCharsDiscovered[serviceUuidStr] = true
	}

	characteristic, ok := b.characteristicByUuid[comboUuidStr]
	if !ok {
		return nil, fmt.Errorf("characteristic %v not found in service %v", charUuidStr, serviceUuidStr)
	}
	return characteristic, nil
}
