package hrm

import (
	"github.com/argus-cyclist/waterrower-gateway/internal/wrerr"
)

// ParseHeartRate decodes a Bluetooth Heart-Rate-Measurement PDU (§4.C).
// Byte 0 is a flags byte; bit 0 selects 16-bit (1) vs 8-bit (0) rate
// encoding. Other flag bits (sensor-contact, energy-expended,
// RR-intervals) are ignored.
func ParseHeartRate(payload []byte) (int, error) {
	if len(payload) < 2 {
		return 0, wrerr.New(wrerr.KindParseMalformed, "hrm.ParseHeartRate", nil)
	}
	flags := payload[0]
	if flags&0x01 == 0 {
		return int(payload[1]), nil
	}
	if len(payload) < 3 {
		return 0, wrerr.New(wrerr.KindParseMalformed, "hrm.ParseHeartRate", nil)
	}
	return int(payload[1]) | int(payload[2])<<8, nil
}
