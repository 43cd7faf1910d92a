package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_Datapoint(t *testing.T) {
	cases := []struct {
		line    string
		width   Width
		addr    string
		digits  string
	}{
		{"IDS1A912\r\n", WidthSingle, "1A9", "12"},
		{"IDD08800C8\r\n", WidthDouble, "088", "00C8"},
		{"IDT0550001A2\r\n", WidthTriple, "055", "0001A2"},
	}
	for _, c := range cases {
		kind, dp := Classify(c.line)
		require.Equal(t, KindDatapoint, kind, c.line)
		assert.Equal(t, c.width, dp.Width)
		assert.Equal(t, c.addr, dp.Address)
		assert.Equal(t, c.digits, dp.ValueDigits)
	}
}

func TestClassify_HardwareType(t *testing.T) {
	kind, _ := Classify("_WR_21000031\r\n")
	assert.Equal(t, KindHardwareType, kind)
}

func TestClassify_Pulse(t *testing.T) {
	kind, _ := Classify("P123\r\n")
	assert.Equal(t, KindPulse, kind)
}

func TestClassify_Other(t *testing.T) {
	cases := []string{"", "garbage", "IDX1A912", "IDS1A9", "P", "Pxyz"}
	for _, line := range cases {
		kind, dp := Classify(line)
		assert.Equal(t, KindOther, kind, line)
		assert.Equal(t, Datapoint{}, dp, line)
	}
}

// TestFrameRoundTrip is the universal property from spec §8.1: for every
// line with kind datapoint and canonical (width_tag, addr, value),
// classifying its serialisation yields exactly the same triple.
func TestFrameRoundTrip(t *testing.T) {
	cases := []Datapoint{
		{Width: WidthSingle, Address: "1A9", ValueDigits: "12"},
		{Width: WidthDouble, Address: "088", ValueDigits: "00C8"},
		{Width: WidthTriple, Address: "148", ValueDigits: "0003E8"},
	}
	for _, dp := range cases {
		line := Encode(dp)
		kind, decoded := Classify(line)
		require.Equal(t, KindDatapoint, kind)
		assert.Equal(t, dp, decoded)
	}
}
