package activityfile

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-cyclist/waterrower-gateway/internal/session"
)

func TestDistanceScaled_MetersToCentimeters(t *testing.T) {
	assert.Equal(t, uint32(150000), distanceScaled(1500.0))
	assert.Equal(t, uint32(0), distanceScaled(0))
}

func TestRecordFor_AppliesUnitConversions(t *testing.T) {
	distance := 1000.0
	speed := 5.0
	power := 210.0
	strokeRate := 24
	heartRate := 140

	sample := session.TrainingSample{
		ElapsedS:   60,
		DistanceM:  &distance,
		SpeedMps:   &speed,
		PowerW:     &power,
		StrokeRate: &strokeRate,
		HeartRate:  &heartRate,
	}

	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	rec := recordFor(start, sample)

	assert.Equal(t, start.Add(60*time.Second), rec.Timestamp)
	assert.Equal(t, uint32(100000), rec.Distance)     // 1000m -> cm
	assert.Equal(t, uint32(5000), rec.EnhancedSpeed)  // 5 m/s -> mm/s
	assert.Equal(t, uint16(210), rec.Power)
	assert.Equal(t, uint8(24), rec.Cadence)
	assert.Equal(t, uint8(140), rec.HeartRate)
}

func TestEncode_WritesNonEmptyFITStream(t *testing.T) {
	distance := 500.0
	payload := ActivityPayload{
		StartTime: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC),
		Summary: session.Summary{
			DurationS:     120,
			DistanceM:     500,
			TotalCalories: 45,
			SampleCount:   2,
		},
		Samples: []session.TrainingSample{
			{ElapsedS: 60, DistanceM: &distance},
			{ElapsedS: 120, DistanceM: &distance},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, payload))
	assert.NotZero(t, buf.Len())
}
