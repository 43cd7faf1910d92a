// Package wrerr defines the error taxonomy shared by the S4 driver, the
// HRM client, the FTMS peripheral, and the training session.
package wrerr

import "errors"

// Kind classifies an error the way the control plane needs to react to it.
type Kind int

const (
	KindUnknown Kind = iota
	KindNoDeviceFound
	KindSerialIO
	KindParseMalformed
	KindBleAdapterUnavailable
	KindBleConnectTimeout
	KindBleServiceNotFound
	KindBleSubscribeFailed
	KindIllegalState
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindNoDeviceFound:
		return "no_device_found"
	case KindSerialIO:
		return "serial_io"
	case KindParseMalformed:
		return "parse_malformed"
	case KindBleAdapterUnavailable:
		return "ble_adapter_unavailable"
	case KindBleConnectTimeout:
		return "ble_connect_timeout"
	case KindBleServiceNotFound:
		return "ble_service_not_found"
	case KindBleSubscribeFailed:
		return "ble_subscribe_failed"
	case KindIllegalState:
		return "illegal_state"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is a typed error carrying a Kind plus an optional wrapped cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, wrerr.NoDeviceFound) match any *Error of that Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Sentinel values for errors.Is comparisons against a bare Kind, e.g.
// errors.Is(err, wrerr.NoDeviceFound).
var (
	NoDeviceFound         = &Error{Kind: KindNoDeviceFound}
	SerialIO              = &Error{Kind: KindSerialIO}
	ParseMalformed        = &Error{Kind: KindParseMalformed}
	BleAdapterUnavailable = &Error{Kind: KindBleAdapterUnavailable}
	BleConnectTimeout     = &Error{Kind: KindBleConnectTimeout}
	BleServiceNotFound    = &Error{Kind: KindBleServiceNotFound}
	BleSubscribeFailed    = &Error{Kind: KindBleSubscribeFailed}
	IllegalState          = &Error{Kind: KindIllegalState}
	Cancelled             = &Error{Kind: KindCancelled}
)

// Of reports the Kind of err, walking the Unwrap chain, or KindUnknown.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
