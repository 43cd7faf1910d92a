// Package central abstracts the BLE central role — scanning for and
// connecting to peripherals — behind a typed capability interface (§9
// design note: replace dynamic duck-typed BLE objects with a typed
// interface), so the HRM client can run against a real adapter in
// production and a scripted one in tests.
package central

import (
	"context"
	"time"
)

// DeviceInfo describes one peripheral observed during a scan.
type DeviceInfo struct {
	ID   string
	Name string
}

// Adapter is the host BLE central capability the HRM client drives.
type Adapter interface {
	// WaitPoweredOn blocks until the adapter reports powered-on or ctx
	// is done.
	WaitPoweredOn(ctx context.Context) error
	// Scan runs until window elapses or ctx is done, invoking found
	// once per distinct peripheral id advertising serviceUUID.
	Scan(ctx context.Context, serviceUUID string, window time.Duration, found func(DeviceInfo)) error
	// Connect opens a transport connection to id.
	Connect(ctx context.Context, id string) (Peripheral, error)
}

// Peripheral is a connected BLE device, already past service discovery.
type Peripheral interface {
	// ReadCharacteristic returns the current value of charUUID under
	// serviceUUID. ok is false if either UUID was not discovered.
	ReadCharacteristic(serviceUUID, charUUID string) (value []byte, ok bool, err error)
	// Subscribe enables notifications on charUUID under serviceUUID,
	// invoking onNotify with each payload. ok is false if the
	// characteristic was not discovered.
	Subscribe(serviceUUID, charUUID string, onNotify func([]byte)) (ok bool, err error)
	Disconnect() error
}
