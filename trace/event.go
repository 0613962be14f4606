package trace

import (
	"fmt"
	"strings"
	"time"
)

// Event is one recorded GATT operation.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the operation started (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the run (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Direction indicates data flow relative to this host.
	Direction Direction `cbor:"3,keyasint"`

	// Kind is the GATT operation.
	Kind Kind `cbor:"4,keyasint"`

	// Address is the peer address for connect events.
	Address string `cbor:"5,keyasint,omitempty"`

	// Handle is the attribute handle written or notified.
	Handle uint16 `cbor:"6,keyasint,omitempty"`

	// UUID is the characteristic looked up by resolve events.
	UUID string `cbor:"7,keyasint,omitempty"`

	// Value is the written or notified payload.
	Value []byte `cbor:"8,keyasint,omitempty"`

	// Error is the operation's error text, empty on success.
	Error string `cbor:"9,keyasint,omitempty"`

	// Duration is how long the operation blocked.
	Duration time.Duration `cbor:"10,keyasint,omitempty"`
}

// Direction indicates data flow.
type Direction uint8

const (
	// DirectionOut is host to peripheral.
	DirectionOut Direction = 0
	// DirectionIn is peripheral to host.
	DirectionIn Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionOut:
		return "OUT"
	case DirectionIn:
		return "IN"
	default:
		return "UNKNOWN"
	}
}

// Kind is the recorded GATT operation.
type Kind uint8

const (
	KindConnect Kind = iota
	KindDisconnect
	KindResolve
	KindWriteRequest
	KindWriteCommand
	KindSubscribe
	KindNotification
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindDisconnect:
		return "disconnect"
	case KindResolve:
		return "resolve"
	case KindWriteRequest:
		return "write-req"
	case KindWriteCommand:
		return "write-cmd"
	case KindSubscribe:
		return "subscribe"
	case KindNotification:
		return "notify"
	default:
		return "unknown"
	}
}

// String formats the event as one human-readable line.
func (e Event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-3s %-10s", e.Timestamp.Format("15:04:05.000000"), e.Direction, e.Kind)
	if e.Address != "" {
		fmt.Fprintf(&b, " addr=%s", e.Address)
	}
	if e.UUID != "" {
		fmt.Fprintf(&b, " uuid=%s", e.UUID)
	}
	if e.Handle != 0 {
		fmt.Fprintf(&b, " handle=0x%04X", e.Handle)
	}
	if len(e.Value) > 0 {
		fmt.Fprintf(&b, " value=% X", e.Value)
	}
	if e.Duration > 0 {
		fmt.Fprintf(&b, " took=%s", e.Duration)
	}
	if e.Error != "" {
		fmt.Fprintf(&b, " error=%q", e.Error)
	}
	return b.String()
}
