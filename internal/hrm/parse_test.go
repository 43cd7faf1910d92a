package hrm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseHeartRate_S4Scenario covers spec scenario S4: payload 0x00
// 0x50 -> bpm=80; payload 0x01 0x30 0x01 -> bpm=304.
func TestParseHeartRate_S4Scenario(t *testing.T) {
	bpm, err := ParseHeartRate([]byte{0x00, 0x50})
	require.NoError(t, err)
	assert.Equal(t, 80, bpm)

	bpm, err = ParseHeartRate([]byte{0x01, 0x30, 0x01})
	require.NoError(t, err)
	assert.Equal(t, 304, bpm)
}

// TestParseHeartRate_HigherFlagBitsIgnored is the §8.8 universal
// property: any bits above bit 0 must not change the parsed rate.
func TestParseHeartRate_HigherFlagBitsIgnored(t *testing.T) {
	base, err := ParseHeartRate([]byte{0x00, 0x46})
	require.NoError(t, err)

	withSensorContact, err := ParseHeartRate([]byte{0x06, 0x46})
	require.NoError(t, err)
	assert.Equal(t, base, withSensorContact)

	baseWide, err := ParseHeartRate([]byte{0x01, 0x64, 0x00})
	require.NoError(t, err)
	withEnergy, err := ParseHeartRate([]byte{0x09, 0x64, 0x00})
	require.NoError(t, err)
	assert.Equal(t, baseWide, withEnergy)
}

func TestParseHeartRate_TruncatedIsMalformed(t *testing.T) {
	_, err := ParseHeartRate([]byte{0x01, 0x64})
	assert.Error(t, err)

	_, err = ParseHeartRate([]byte{})
	assert.Error(t, err)
}
