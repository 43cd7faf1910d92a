package hrm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-cyclist/waterrower-gateway/internal/ble/central"
	"github.com/argus-cyclist/waterrower-gateway/internal/wrerr"
)

func newMockDeviceWithHR(id string) central.MockDevice {
	return central.MockDevice{
		Info: central.DeviceInfo{ID: id, Name: "Polar H10"},
		Chars: map[[2]string][]byte{
			{ServiceGenericAccess, CharDeviceName}: []byte("Polar H10"),
			{ServiceBattery, CharBatteryLevel}:     {92},
			{ServiceHeartRate, CharHeartRateMeasurement}: nil,
		},
	}
}

func TestClient_ConnectSubscribesAndPublishesSamples(t *testing.T) {
	adapter := central.NewMockAdapter(newMockDeviceWithHR("aa:bb"))
	c := NewClient(adapter, nil)

	ch, unsub := c.HeartRate().Subscribe()
	defer unsub()

	require.NoError(t, c.Connect(context.Background(), "aa:bb"))
	assert.True(t, c.IsConnected())
	assert.Equal(t, "Polar H10", c.DeviceName())
	pct, ok := c.BatteryLevel()
	require.True(t, ok)
	assert.Equal(t, 92, pct)

	adapter.Notify("aa:bb", []byte{0x00, 0x50})

	select {
	case sample := <-ch:
		assert.Equal(t, 80, sample.BPM)
	case <-time.After(time.Second):
		t.Fatal("heart-rate sample was never published")
	}
}

func TestClient_ConnectFailsWithoutHeartRateCharacteristic(t *testing.T) {
	adapter := central.NewMockAdapter(central.MockDevice{
		Info:  central.DeviceInfo{ID: "cc:dd", Name: "No HR"},
		Chars: map[[2]string][]byte{},
	})
	c := NewClient(adapter, nil)

	err := c.Connect(context.Background(), "cc:dd")
	require.Error(t, err)
	assert.Equal(t, wrerr.KindBleServiceNotFound, wrerr.Of(err))
}

func TestClient_DisconnectIsIdempotent(t *testing.T) {
	adapter := central.NewMockAdapter(newMockDeviceWithHR("aa:bb"))
	c := NewClient(adapter, nil)
	require.NoError(t, c.Connect(context.Background(), "aa:bb"))

	require.NoError(t, c.Disconnect())
	require.NoError(t, c.Disconnect())
	assert.False(t, c.IsConnected())
}

// TestClient_ReconnectGivesUpAfterBound is scenario S6: a device id that
// never appears must not retry beyond the 30-attempt bound.
func TestClient_ReconnectGivesUpAfterBound(t *testing.T) {
	adapter := central.NewMockAdapter() // no devices configured
	c := NewClient(adapter, nil)

	err := c.Reconnect(context.Background(), "never-appears")
	require.Error(t, err)
	assert.Equal(t, wrerr.KindBleConnectTimeout, wrerr.Of(err))
}

func TestClient_DiscoverDeduplicatesByID(t *testing.T) {
	adapter := central.NewMockAdapter(
		newMockDeviceWithHR("aa:bb"),
		newMockDeviceWithHR("aa:bb"),
		newMockDeviceWithHR("cc:dd"),
	)
	c := NewClient(adapter, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	devices, err := c.Discover(ctx)
	require.NoError(t, err)
	assert.Len(t, devices, 2)
}
