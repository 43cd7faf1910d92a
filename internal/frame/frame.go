// Package frame implements the S4 serial frame codec: pure classification
// and field extraction for one CR/LF-terminated ASCII line at a time. It
// performs no I/O and holds no state.
package frame

import "strings"

// Kind classifies one inbound serial line.
type Kind int

const (
	KindOther Kind = iota
	KindHardwareType
	KindDatapoint
	KindPulse
)

func (k Kind) String() string {
	switch k {
	case KindHardwareType:
		return "hardwaretype"
	case KindDatapoint:
		return "datapoint"
	case KindPulse:
		return "pulse"
	default:
		return "other"
	}
}

// Width is the declared byte-width of a register, selected by the S/D/T
// tag in both the IR request and the IDS/IDD/IDT reply.
type Width int

const (
	WidthUnknown Width = 0
	WidthSingle  Width = 1
	WidthDouble  Width = 2
	WidthTriple  Width = 3
)

// Tag returns the wire width tag (S, D, or T) for w.
func (w Width) Tag() byte {
	switch w {
	case WidthSingle:
		return 'S'
	case WidthDouble:
		return 'D'
	case WidthTriple:
		return 'T'
	default:
		return 0
	}
}

// WidthFromTag maps a wire width tag to its Width, or WidthUnknown if the
// tag isn't recognised.
func WidthFromTag(tag byte) Width {
	switch tag {
	case 'S':
		return WidthSingle
	case 'D':
		return WidthDouble
	case 'T':
		return WidthTriple
	default:
		return WidthUnknown
	}
}

// hexDigitsForWidth returns how many hex digits follow the address for a
// given width tag: S=2, D=4, T=6.
func hexDigitsForWidth(w Width) int {
	switch w {
	case WidthSingle:
		return 2
	case WidthDouble:
		return 4
	case WidthTriple:
		return 6
	default:
		return 0
	}
}

// Datapoint holds the parsed fields of an ID{S,D,T} reply line.
type Datapoint struct {
	Width       Width
	Address     string // 3 hex digits, uppercase as received
	ValueDigits string // N hex digits, uppercase as received
}

// Classify inspects one line (with or without its trailing CR/LF) and
// returns its Kind. For KindDatapoint, dp is populated; for other kinds
// dp is the zero value. Classify never panics and never returns an error:
// anything it cannot recognise classifies as KindOther.
func Classify(line string) (kind Kind, dp Datapoint) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return KindOther, Datapoint{}
	}

	if strings.HasPrefix(line, "_WR_") {
		return KindHardwareType, Datapoint{}
	}

	if strings.HasPrefix(line, "P") && len(line) > 1 && isDigits(line[1:]) {
		return KindPulse, Datapoint{}
	}

	if strings.HasPrefix(line, "ID") && len(line) >= 3 {
		w := WidthFromTag(line[2])
		if w != WidthUnknown {
			rest := line[3:]
			n := hexDigitsForWidth(w)
			if len(rest) == 3+n && isHex(rest[:3]) && isHex(rest[3:]) {
				return KindDatapoint, Datapoint{
					Width:       w,
					Address:     rest[:3],
					ValueDigits: rest[3:],
				}
			}
		}
	}

	return KindOther, Datapoint{}
}

// Encode renders a Datapoint back to its wire form (without CR/LF), the
// inverse of Classify for KindDatapoint lines. Used by the frame
// round-trip property test.
func Encode(dp Datapoint) string {
	return "ID" + string(dp.Width.Tag()) + dp.Address + dp.ValueDigits
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'A' && c <= 'F':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}
