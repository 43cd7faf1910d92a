package peripheral

import (
	"context"
	"sync"
)

// MockAdapter is a scripted peripheral.Adapter that records every
// Notify call made while the characteristic has a subscriber (calls
// without one are dropped, not recorded), for assertion against the
// §8.7 FTMS-encoding property,
// the way the teacher's ble.MockService records staged calls.
type MockAdapter struct {
	mu sync.Mutex

	advertising bool
	advertised  []struct{ name, serviceUUID string }
	services    map[string][]Characteristic
	notified    []NotifyCall
	subscribed  map[string]bool
}

// NotifyCall records one Notify invocation.
type NotifyCall struct {
	CharUUID string
	Value    []byte
}

func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		services:   make(map[string][]Characteristic),
		subscribed: make(map[string]bool),
	}
}

func (m *MockAdapter) WatchState(ctx context.Context, onState func(AdapterState)) error {
	onState(StatePoweredOn)
	<-ctx.Done()
	return nil
}

func (m *MockAdapter) Advertise(name, serviceUUID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advertising = true
	m.advertised = append(m.advertised, struct{ name, serviceUUID string }{name, serviceUUID})
	return nil
}

func (m *MockAdapter) StopAdvertising() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advertising = false
	return nil
}

func (m *MockAdapter) RegisterService(serviceUUID string, chars []Characteristic) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[serviceUUID] = chars
	return nil
}

// SetSubscribed marks charUUID as having (or not having) at least one
// subscribed central; Notify is a no-op for characteristics with no
// subscriber, mirroring the real peripheral.
func (m *MockAdapter) SetSubscribed(charUUID string, subscribed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribed[charUUID] = subscribed
}

func (m *MockAdapter) Notify(charUUID string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.subscribed[charUUID] {
		return nil
	}
	m.notified = append(m.notified, NotifyCall{CharUUID: charUUID, Value: append([]byte(nil), value...)})
	return nil
}

// Notifications returns every recorded Notify call, in order.
func (m *MockAdapter) Notifications() []NotifyCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]NotifyCall(nil), m.notified...)
}

// IsAdvertising reports the current advertising state.
func (m *MockAdapter) IsAdvertising() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.advertising
}
