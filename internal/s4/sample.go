package s4

import (
	"time"

	"github.com/argus-cyclist/waterrower-gateway/internal/frame"
)

// RawRead is one classified inbound serial line (§3 Raw read).
type RawRead struct {
	Time time.Time
	Kind frame.Kind
	Line string // the line as received, CR/LF trimmed
}

// Sample is a decoded telemetry value, resolved against the register
// table (§3 Decoded sample). Value is the radix-parsed integer; no unit
// conversion happens at this layer.
type Sample struct {
	Time         time.Time
	RegisterName string
	Address      string
	Width        frame.Width
	Value        int
}
