// Package hrm implements the BLE Heart-Rate Monitor central (§4.C):
// discovery, connection with bounded retry, heart-rate PDU parsing, and
// the heart_rate$ broadcast stream.
package hrm

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/argus-cyclist/waterrower-gateway/internal/ble/central"
	"github.com/argus-cyclist/waterrower-gateway/internal/broadcast"
	"github.com/argus-cyclist/waterrower-gateway/internal/wrerr"
)

// Bluetooth SIG 16-bit UUIDs expanded to their full 128-bit form under
// the Bluetooth Base UUID (§6.4).
const (
	ServiceHeartRate         = "0000180d-0000-1000-8000-00805f9b34fb"
	CharHeartRateMeasurement = "00002a37-0000-1000-8000-00805f9b34fb"
	ServiceGenericAccess     = "00001800-0000-1000-8000-00805f9b34fb"
	CharDeviceName           = "00002a00-0000-1000-8000-00805f9b34fb"
	ServiceBattery           = "0000180f-0000-1000-8000-00805f9b34fb"
	CharBatteryLevel         = "00002a19-0000-1000-8000-00805f9b34fb"
)

// scanWindow, connectTimeout, and the reconnect bound come from §5
// Timeouts.
const (
	scanWindow       = 10 * time.Second
	connectTimeout   = 30 * time.Second
	reconnectAttempt = 30
)

// State is the HRM central state machine (§4.C).
type State int

const (
	StateIdle State = iota
	StateWaitingForAdapter
	StateScanning
	StateConnecting
	StateConnected
	StateSubscribed
	StateDisconnected
)

// Sample is one heart-rate PDU decoded to bpm (§3 Heart-rate sample).
type Sample struct {
	TimeMS int64
	BPM    int
}

const unknownBattery = -1

// Client is the HRM BLE central.
type Client struct {
	logger  *zap.Logger
	adapter central.Adapter

	mu         sync.Mutex
	state      State
	peripheral central.Peripheral
	deviceName string
	batteryPct int

	heartRate *broadcast.Topic[Sample]
}

// NewClient constructs an idle Client driving adapter.
func NewClient(adapter central.Adapter, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		logger:     logger,
		adapter:    adapter,
		state:      StateIdle,
		batteryPct: unknownBattery,
		heartRate:  broadcast.NewTopic[Sample](),
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected || c.state == StateSubscribed
}

func (c *Client) DeviceName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceName
}

func (c *Client) BatteryLevel() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batteryPct, c.batteryPct != unknownBattery
}

func (c *Client) HeartRate() *broadcast.Topic[Sample] { return c.heartRate }

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Discover scans for Heart-Rate peripherals for a 10-second window and
// returns every distinct device seen.
func (c *Client) Discover(ctx context.Context) ([]central.DeviceInfo, error) {
	c.setState(StateWaitingForAdapter)
	if err := c.adapter.WaitPoweredOn(ctx); err != nil {
		c.setState(StateIdle)
		return nil, err
	}

	c.setState(StateScanning)
	seen := make(map[string]bool)
	var out []central.DeviceInfo
	err := c.adapter.Scan(ctx, ServiceHeartRate, scanWindow, func(d central.DeviceInfo) {
		if seen[d.ID] {
			return
		}
		seen[d.ID] = true
		out = append(out, d)
	})
	c.setState(StateIdle)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Connect connects directly to deviceID (no scan), discovers optional
// identity characteristics, then subscribes to heart-rate notifications.
func (c *Client) Connect(ctx context.Context, deviceID string) error {
	c.setState(StateWaitingForAdapter)
	if err := c.adapter.WaitPoweredOn(ctx); err != nil {
		c.setState(StateIdle)
		return err
	}

	c.setState(StateConnecting)
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	peripheral, err := c.adapter.Connect(connectCtx, deviceID)
	if err != nil {
		c.setState(StateIdle)
		return err
	}

	deviceName := "Unknown Device"
	if v, ok, _ := peripheral.ReadCharacteristic(ServiceGenericAccess, CharDeviceName); ok && len(v) > 0 {
		deviceName = string(v)
	}

	batteryPct := unknownBattery
	if v, ok, _ := peripheral.ReadCharacteristic(ServiceBattery, CharBatteryLevel); ok && len(v) > 0 {
		batteryPct = int(v[0])
	}

	c.mu.Lock()
	c.peripheral = peripheral
	c.deviceName = deviceName
	c.batteryPct = batteryPct
	c.state = StateConnected
	c.mu.Unlock()

	ok, err := peripheral.Subscribe(ServiceHeartRate, CharHeartRateMeasurement, c.onNotify)
	if err != nil {
		_ = peripheral.Disconnect()
		c.setState(StateDisconnected)
		return err
	}
	if !ok {
		_ = peripheral.Disconnect()
		c.setState(StateDisconnected)
		return wrerr.New(wrerr.KindBleServiceNotFound, "hrm.Connect", nil)
	}

	c.setState(StateSubscribed)
	return nil
}

func (c *Client) onNotify(payload []byte) {
	bpm, err := ParseHeartRate(payload)
	if err != nil {
		c.logger.Warn("hrm: malformed heart-rate PDU", zap.Error(err))
		return
	}
	c.heartRate.Publish(Sample{TimeMS: time.Now().UnixMilli(), BPM: bpm})
}

// Reconnect retries Connect up to 30 times, each attempt bounded by its
// own 30-second timeout (via Connect's internal connectTimeout),
// proceeding to the next attempt immediately on failure. Succeeds on the
// first success; gives up after reconnectAttempt failures.
func (c *Client) Reconnect(ctx context.Context, deviceID string) error {
	var lastErr error
	for attempt := 1; attempt <= reconnectAttempt; attempt++ {
		if ctx.Err() != nil {
			return wrerr.New(wrerr.KindCancelled, "hrm.Reconnect", ctx.Err())
		}
		if err := c.Connect(ctx, deviceID); err != nil {
			lastErr = err
			c.logger.Warn("hrm: reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		return nil
	}
	return wrerr.New(wrerr.KindBleConnectTimeout, "hrm.Reconnect", lastErr)
}

// Disconnect is idempotent: it transitions to disconnected and releases
// the peripheral.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.state == StateDisconnected || c.state == StateIdle {
		c.mu.Unlock()
		return nil
	}
	peripheral := c.peripheral
	c.peripheral = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if peripheral != nil {
		_ = peripheral.Disconnect()
	}
	return nil
}

// Close releases the heart-rate stream. Call once, on final shutdown.
func (c *Client) Close() {
	_ = c.Disconnect()
	c.heartRate.Close()
}
