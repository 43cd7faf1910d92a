package s4

import (
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// baudRate and the 8-N-1 frame shape are fixed by the S4 hardware (§6.1).
const baudRate = 19200

// Port is the minimal transport the driver needs. go.bug.st/serial.Port
// satisfies it directly; tests substitute an in-memory pipe.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

func openPort(name string) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	return serial.Open(name, mode)
}

// microchipVID is the USB vendor ID the S4's onboard Microchip
// Technology CDC ACM bridge reports (§4.B.1). go.bug.st/serial's
// enumerator surfaces VID/PID, not a free-text vendor string, so the
// match is VID-based rather than a descriptor-string comparison.
const microchipVID = "04D8"

// findS4Port enumerates available serial ports and returns the name of
// the first USB device whose vendor ID matches the S4's onboard bridge
// (§4.B.1). It returns "", false if none match.
func findS4Port() (string, bool) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", false
	}
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		if strings.EqualFold(p.VID, microchipVID) {
			return p.Name, true
		}
	}
	return "", false
}
