package central

import (
	"context"
	"sync"
	"time"

	"github.com/argus-cyclist/waterrower-gateway/internal/wrerr"
)

// MockDevice is one scripted peripheral a MockAdapter can return during
// Scan and connect to.
type MockDevice struct {
	Info  DeviceInfo
	Chars map[[2]string][]byte // (serviceUUID, charUUID) -> current value

	// FailConnect, if set, makes Connect to this device's ID fail.
	FailConnect bool
}

// MockAdapter is a scripted central.Adapter for §8 scenario tests,
// grounded on the teacher's ble.MockService staged-callback style.
type MockAdapter struct {
	mu       sync.Mutex
	devices  []MockDevice
	powerErr error

	notifiers map[string]func([]byte) // device id -> last registered callback
}

func NewMockAdapter(devices ...MockDevice) *MockAdapter {
	return &MockAdapter{devices: devices, notifiers: make(map[string]func([]byte))}
}

func (m *MockAdapter) WaitPoweredOn(ctx context.Context) error {
	if m.powerErr != nil {
		return m.powerErr
	}
	return nil
}

// Scan reports every configured device immediately and returns, rather
// than literally waiting out window — this is a scripted test double,
// not a timing simulator. It still honours an already-cancelled ctx.
func (m *MockAdapter) Scan(ctx context.Context, serviceUUID string, window time.Duration, found func(DeviceInfo)) error {
	if ctx.Err() != nil {
		return wrerr.New(wrerr.KindCancelled, "central.MockAdapter.Scan", ctx.Err())
	}

	m.mu.Lock()
	devices := append([]MockDevice(nil), m.devices...)
	m.mu.Unlock()

	for _, d := range devices {
		found(d.Info)
	}
	return nil
}

func (m *MockAdapter) Connect(ctx context.Context, id string) (Peripheral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.Info.ID != id {
			continue
		}
		if d.FailConnect {
			return nil, wrerr.New(wrerr.KindBleConnectTimeout, "central.MockAdapter.Connect", nil)
		}
		return &mockPeripheral{adapter: m, device: d}, nil
	}
	return nil, wrerr.New(wrerr.KindBleConnectTimeout, "central.MockAdapter.Connect", nil)
}

// Notify pushes bytes to whatever callback the given device id last
// subscribed, if any. Used by tests to simulate an incoming PDU.
func (m *MockAdapter) Notify(deviceID string, bytes []byte) {
	m.mu.Lock()
	cb := m.notifiers[deviceID]
	m.mu.Unlock()
	if cb != nil {
		cb(bytes)
	}
}

type mockPeripheral struct {
	adapter *MockAdapter
	device  MockDevice
}

func (p *mockPeripheral) ReadCharacteristic(serviceUUID, charUUID string) ([]byte, bool, error) {
	v, ok := p.device.Chars[[2]string{serviceUUID, charUUID}]
	return v, ok, nil
}

func (p *mockPeripheral) Subscribe(serviceUUID, charUUID string, onNotify func([]byte)) (bool, error) {
	if _, ok := p.device.Chars[[2]string{serviceUUID, charUUID}]; !ok {
		return false, nil
	}
	p.adapter.mu.Lock()
	p.adapter.notifiers[p.device.Info.ID] = onNotify
	p.adapter.mu.Unlock()
	return true, nil
}

func (p *mockPeripheral) Disconnect() error {
	p.adapter.mu.Lock()
	delete(p.adapter.notifiers, p.device.Info.ID)
	p.adapter.mu.Unlock()
	return nil
}
