package peripheral

import (
	"context"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/argus-cyclist/waterrower-gateway/internal/wrerr"
)

// RealAdapter drives the host's BLE peripheral (GATT server) role via
// tinygo.org/x/bluetooth.
type RealAdapter struct {
	adapter *bluetooth.Adapter

	mu      sync.Mutex
	handles map[string]*bluetooth.Characteristic
	adv     *bluetooth.Advertisement
}

func NewRealAdapter() *RealAdapter {
	return &RealAdapter{
		adapter: bluetooth.DefaultAdapter,
		handles: make(map[string]*bluetooth.Characteristic),
	}
}

func (a *RealAdapter) WatchState(ctx context.Context, onState func(AdapterState)) error {
	if err := a.adapter.Enable(); err != nil {
		onState(StatePoweredOff)
		return wrerr.New(wrerr.KindBleAdapterUnavailable, "peripheral.WatchState", err)
	}
	onState(StatePoweredOn)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			onState(StatePoweredOn)
		}
	}
}

func (a *RealAdapter) Advertise(name, serviceUUID string) error {
	uuid, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return wrerr.New(wrerr.KindBleAdapterUnavailable, "peripheral.Advertise", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.adv == nil {
		a.adv = a.adapter.DefaultAdvertisement()
		if err := a.adv.Configure(bluetooth.AdvertisementOptions{
			LocalName:    name,
			ServiceUUIDs: []bluetooth.UUID{uuid},
		}); err != nil {
			a.adv = nil
			return wrerr.New(wrerr.KindBleAdapterUnavailable, "peripheral.Advertise", err)
		}
	}
	if err := a.adv.Start(); err != nil {
		return wrerr.New(wrerr.KindBleAdapterUnavailable, "peripheral.Advertise", err)
	}
	return nil
}

func (a *RealAdapter) StopAdvertising() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.adv == nil {
		return nil
	}
	return a.adv.Stop()
}

func (a *RealAdapter) RegisterService(serviceUUID string, chars []Characteristic) error {
	svcUUID, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return wrerr.New(wrerr.KindBleAdapterUnavailable, "peripheral.RegisterService", err)
	}

	configs := make([]bluetooth.CharacteristicConfig, 0, len(chars))
	for _, c := range chars {
		chUUID, err := bluetooth.ParseUUID(c.UUID)
		if err != nil {
			return wrerr.New(wrerr.KindBleAdapterUnavailable, "peripheral.RegisterService", err)
		}

		var flags bluetooth.CharacteristicPermissions
		if c.Readable {
			flags |= bluetooth.CharacteristicReadPermission
		}
		if c.Notifiable {
			flags |= bluetooth.CharacteristicNotifyPermission
		}

		handle := &bluetooth.Characteristic{}
		cfg := bluetooth.CharacteristicConfig{
			Handle: handle,
			UUID:   chUUID,
			Flags:  flags,
		}
		if c.OnRead != nil {
			cfg.Value = c.OnRead()
		}
		configs = append(configs, cfg)

		a.mu.Lock()
		a.handles[c.UUID] = handle
		a.mu.Unlock()
	}

	if err := a.adapter.AddService(&bluetooth.Service{UUID: svcUUID, Characteristics: configs}); err != nil {
		return wrerr.New(wrerr.KindBleAdapterUnavailable, "peripheral.RegisterService", err)
	}
	return nil
}

func (a *RealAdapter) Notify(charUUID string, value []byte) error {
	a.mu.Lock()
	handle, ok := a.handles[charUUID]
	a.mu.Unlock()
	if !ok {
		return nil
	}
	_, err := handle.Write(value)
	if err != nil {
		return wrerr.New(wrerr.KindBleSubscribeFailed, "peripheral.Notify", err)
	}
	return nil
}
