// Package ftms implements the BLE Fitness Machine Service peripheral
// (§4.D): advertising, the Feature and Indoor Bike Data characteristics,
// the sticky-last update rule, and the adapter lifecycle.
package ftms

import (
	"context"
	"encoding/binary"
	"sync"

	"go.uber.org/zap"

	"github.com/argus-cyclist/waterrower-gateway/internal/ble/peripheral"
	"github.com/argus-cyclist/waterrower-gateway/internal/s4"
)

// Bluetooth SIG UUIDs, expanded under the Bluetooth Base UUID (§6.4).
const (
	ServiceFitnessMachine     = "00001826-0000-1000-8000-00805f9b34fb"
	CharFitnessMachineFeature = "00002acc-0000-1000-8000-00805f9b34fb"
	CharIndoorBikeData        = "00002ad2-0000-1000-8000-00805f9b34fb"

	AdvertisingName = "WaterRower"
)

// featureWord1 advertises CadenceSupported (bit 1) and
// PowerMeasurementSupported (bit 14), per the Bluetooth SIG Fitness
// Machine Feature bit layout; featureWord2 is unused (§4.D).
const (
	featureCadenceSupported          uint32 = 1 << 1
	featurePowerMeasurementSupported uint32 = 1 << 14
	featureWord1                            = featureCadenceSupported | featurePowerMeasurementSupported
	featureWord2                     uint32 = 0
)

// indoorBikeDataFlags is fixed: InstantaneousCadencePresent (bit 2) and
// InstantaneousPowerPresent (bit 6). Speed is never reported by this
// peripheral, so the More-Data family of bits stays clear (§8.7, §8
// scenario S5).
const indoorBikeDataFlags uint16 = 0x0044

// Server is the FTMS peripheral, driven by an S4 Driver's datapoints$.
type Server struct {
	logger  *zap.Logger
	adapter peripheral.Adapter

	mu      sync.Mutex
	cadence int // stroke_rate, pre-×2 scaling
	power   int
}

// NewServer constructs a Server over adapter. Call Run to drive its
// lifecycle and Feed to push S4 samples into it.
func NewServer(adapter peripheral.Adapter, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{adapter: adapter, logger: logger}
}

// FeatureBytes returns the 8-byte Fitness Machine Feature payload.
func FeatureBytes() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], featureWord1)
	binary.LittleEndian.PutUint32(buf[4:8], featureWord2)
	return buf
}

// IndoorBikeDataBytes encodes the 6-byte Indoor Bike Data payload for
// the given stroke rate (rpm) and power (watts); §4.D, §8.7.
func IndoorBikeDataBytes(strokeRate, watts int) []byte {
	cadence := uint16(strokeRate * 2)
	buf := make([]byte, 6)
	binary.LittleEndian.PutUint16(buf[0:2], indoorBikeDataFlags)
	binary.LittleEndian.PutUint16(buf[2:4], cadence)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(int16(watts)))
	return buf
}

// Run registers the service and drives advertising off adapter power
// state until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.adapter.RegisterService(ServiceFitnessMachine, []peripheral.Characteristic{
		{UUID: CharFitnessMachineFeature, Readable: true, OnRead: FeatureBytes},
		{UUID: CharIndoorBikeData, Notifiable: true},
	}); err != nil {
		return err
	}

	return s.adapter.WatchState(ctx, func(state peripheral.AdapterState) {
		if state == peripheral.StatePoweredOn {
			if err := s.adapter.Advertise(AdvertisingName, ServiceFitnessMachine); err != nil {
				s.logger.Warn("ftms: advertise failed", zap.Error(err))
			}
			return
		}
		if err := s.adapter.StopAdvertising(); err != nil {
			s.logger.Warn("ftms: stop advertising failed", zap.Error(err))
		}
	})
}

// update caches any field passed as present and notifies with the
// combined, sticky-last payload (§4.D Mapping rule).
func (s *Server) update(power, cadence *int) {
	s.mu.Lock()
	if cadence != nil {
		s.cadence = *cadence
	}
	if power != nil {
		s.power = *power
	}
	p, c := s.power, s.cadence
	s.mu.Unlock()

	if err := s.adapter.Notify(CharIndoorBikeData, IndoorBikeDataBytes(c, p)); err != nil {
		s.logger.Warn("ftms: notify failed", zap.Error(err))
	}
}

// Feed subscribes to driver's datapoints$ and applies the mapping rule
// until ctx is done or the stream closes.
func (s *Server) Feed(ctx context.Context, driver *s4.Driver) {
	ch, unsub := driver.Datapoints().Subscribe()
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-ch:
			if !ok {
				return
			}
			switch sample.RegisterName {
			case s4.RegStrokeRate:
				v := sample.Value
				s.update(nil, &v)
			case s4.RegKcalWatts:
				v := sample.Value
				s.update(&v, nil)
			}
		}
	}
}
