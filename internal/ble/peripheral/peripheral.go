// Package peripheral abstracts the BLE peripheral (GATT server) role
// behind a typed capability interface (§9 design note), so the FTMS
// server can run against a real adapter in production and a recording
// mock in tests.
package peripheral

import "context"

// AdapterState mirrors the host BLE adapter's power state.
type AdapterState int

const (
	StateUnknown AdapterState = iota
	StatePoweredOn
	StatePoweredOff
)

// Characteristic declares one GATT characteristic to register under a
// service: a read handler (nil if not readable) and whether it supports
// notify.
type Characteristic struct {
	UUID      string
	Readable  bool
	Notifiable bool
	OnRead    func() []byte
}

// Adapter is the host BLE peripheral capability the FTMS server drives.
type Adapter interface {
	// WatchState invokes onState whenever the adapter's power state
	// changes, starting with the current state. Runs until ctx is done.
	WatchState(ctx context.Context, onState func(AdapterState)) error
	// Advertise begins advertising name with the given service UUID.
	// Idempotent across duplicate calls while already advertising.
	Advertise(name, serviceUUID string) error
	// StopAdvertising halts advertising. Idempotent.
	StopAdvertising() error
	// RegisterService registers serviceUUID with the given
	// characteristics. Idempotent across duplicate calls with the same
	// arguments.
	RegisterService(serviceUUID string, chars []Characteristic) error
	// Notify pushes value to every central subscribed to charUUID. A
	// no-op if nobody is subscribed.
	Notify(charUUID string, value []byte) error
}
