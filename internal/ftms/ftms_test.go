package ftms

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/argus-cyclist/waterrower-gateway/internal/ble/peripheral"
)

// TestIndoorBikeDataBytes_S5Scenario is spec scenario S5: after feeding
// stroke_rate=24 then kcal_watts=180, the payload equals the literal
// byte sequence below.
func TestIndoorBikeDataBytes_S5Scenario(t *testing.T) {
	got := IndoorBikeDataBytes(24, 180)
	assert.Equal(t, []byte{0x44, 0x00, 0x30, 0x00, 0xB4, 0x00}, got)
}

// TestIndoorBikeDataBytes_Property7 exercises the §8.7 universal
// encoding property over a grid of stroke-rate/watts pairs.
func TestIndoorBikeDataBytes_Property7(t *testing.T) {
	for strokeRate := 0; strokeRate <= 300; strokeRate += 37 {
		for watts := 0; watts <= 2000; watts += 251 {
			got := IndoorBikeDataBytes(strokeRate, watts)
			want := []byte{
				byte(indoorBikeDataFlags), byte(indoorBikeDataFlags >> 8),
				byte(uint16(strokeRate * 2)), byte(uint16(strokeRate*2) >> 8),
				byte(uint16(int16(watts))), byte(uint16(int16(watts)) >> 8),
			}
			assert.Equal(t, want, got)
		}
	}
}

func TestFeatureBytes_AdvertisesCadenceAndPower(t *testing.T) {
	b := FeatureBytes()
	assert.Len(t, b, 8)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x00}, b[4:8])
	assert.NotZero(t, b[0]|b[1]|b[2]|b[3])
}

func TestServer_StickyLastAndNoSubscriberIsNoOp(t *testing.T) {
	adapter := peripheral.NewMockAdapter()
	s := NewServer(adapter, nil)

	strokeRate := 24
	s.update(nil, &strokeRate)
	assert.Empty(t, adapter.Notifications(), "notify with no subscriber must be a no-op")

	adapter.SetSubscribed(CharIndoorBikeData, true)

	watts := 180
	s.update(&watts, nil)

	notes := adapter.Notifications()
	assert.Len(t, notes, 1)
	assert.Equal(t, []byte{0x44, 0x00, 0x30, 0x00, 0xB4, 0x00}, notes[0].Value)
}
