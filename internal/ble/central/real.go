package central

import (
	"context"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/argus-cyclist/waterrower-gateway/internal/wrerr"
)

// RealAdapter drives the host's BLE central role via
// tinygo.org/x/bluetooth, the way the teacher's ble.RealService.ConnectHR
// drives scanning and connection.
type RealAdapter struct {
	adapter *bluetooth.Adapter
}

// NewRealAdapter wraps the process-wide default BLE adapter.
func NewRealAdapter() *RealAdapter {
	return &RealAdapter{adapter: bluetooth.DefaultAdapter}
}

func (a *RealAdapter) WaitPoweredOn(ctx context.Context) error {
	if err := a.adapter.Enable(); err != nil {
		return wrerr.New(wrerr.KindBleAdapterUnavailable, "central.WaitPoweredOn", err)
	}
	select {
	case <-ctx.Done():
		return wrerr.New(wrerr.KindCancelled, "central.WaitPoweredOn", ctx.Err())
	default:
		return nil
	}
}

func (a *RealAdapter) Scan(ctx context.Context, serviceUUID string, window time.Duration, found func(DeviceInfo)) error {
	want, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return wrerr.New(wrerr.KindBleAdapterUnavailable, "central.Scan", err)
	}

	seen := make(map[string]bool)
	var mu sync.Mutex

	scanCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	scanErr := make(chan error, 1)
	go func() {
		scanErr <- a.adapter.Scan(func(ad *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !result.AdvertisementPayload.HasServiceUUID(want) {
				return
			}
			id := result.Address.String()

			mu.Lock()
			already := seen[id]
			seen[id] = true
			mu.Unlock()

			if already {
				return
			}
			found(DeviceInfo{ID: id, Name: result.AdvertisementPayload.LocalName()})
		})
	}()

	<-scanCtx.Done()
	_ = a.adapter.StopScan()

	select {
	case err := <-scanErr:
		if err != nil {
			return wrerr.New(wrerr.KindBleAdapterUnavailable, "central.Scan", err)
		}
	case <-time.After(time.Second):
	}
	return nil
}

func (a *RealAdapter) Connect(ctx context.Context, id string) (Peripheral, error) {
	addr := bluetooth.Address{}
	addr.Set(id)

	type result struct {
		device bluetooth.Device
		err    error
	}
	done := make(chan result, 1)
	go func() {
		device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		done <- result{device, err}
	}()

	select {
	case <-ctx.Done():
		return nil, wrerr.New(wrerr.KindBleConnectTimeout, "central.Connect", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, wrerr.New(wrerr.KindBleConnectTimeout, "central.Connect", r.err)
		}
		services, err := r.device.DiscoverServices(nil)
		if err != nil {
			return nil, wrerr.New(wrerr.KindBleServiceNotFound, "central.Connect", err)
		}
		return &realPeripheral{device: r.device, services: services}, nil
	}
}

// realPeripheral is a connected device past service discovery.
type realPeripheral struct {
	device   bluetooth.Device
	services []bluetooth.DeviceService
}

func (p *realPeripheral) findCharacteristic(serviceUUID, charUUID string) (bluetooth.DeviceCharacteristic, bool) {
	wantSvc, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return bluetooth.DeviceCharacteristic{}, false
	}
	wantChar, err := bluetooth.ParseUUID(charUUID)
	if err != nil {
		return bluetooth.DeviceCharacteristic{}, false
	}
	for _, svc := range p.services {
		if svc.UUID() != wantSvc {
			continue
		}
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			continue
		}
		for _, ch := range chars {
			if ch.UUID() == wantChar {
				return ch, true
			}
		}
	}
	return bluetooth.DeviceCharacteristic{}, false
}

func (p *realPeripheral) ReadCharacteristic(serviceUUID, charUUID string) ([]byte, bool, error) {
	ch, ok := p.findCharacteristic(serviceUUID, charUUID)
	if !ok {
		return nil, false, nil
	}
	buf := make([]byte, 512)
	n, err := ch.Read(buf)
	if err != nil {
		return nil, true, wrerr.New(wrerr.KindBleSubscribeFailed, "central.ReadCharacteristic", err)
	}
	return buf[:n], true, nil
}

func (p *realPeripheral) Subscribe(serviceUUID, charUUID string, onNotify func([]byte)) (bool, error) {
	ch, ok := p.findCharacteristic(serviceUUID, charUUID)
	if !ok {
		return false, nil
	}
	err := ch.EnableNotifications(func(buf []byte) {
		onNotify(buf)
	})
	if err != nil {
		return true, wrerr.New(wrerr.KindBleSubscribeFailed, "central.Subscribe", err)
	}
	return true, nil
}

func (p *realPeripheral) Disconnect() error {
	return p.device.Disconnect()
}
