package gatt

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Sentinel errors returned by Transport implementations.
var (
	// ErrTimeout indicates the peer did not respond before the deadline.
	ErrTimeout = errors.New("gatt: timeout")

	// ErrNotFound indicates a characteristic UUID or handle is not present in
	// the peer's attribute table.
	ErrNotFound = errors.New("gatt: not found")

	// ErrNotConnected indicates an operation was attempted without a link.
	ErrNotConnected = errors.New("gatt: not connected")
)

// IsTimeout reports whether err represents an expired wait, either
// ErrTimeout or an expired context deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// Handles are the attribute handles of one characteristic.
type Handles struct {
	// Declaration is the characteristic declaration handle
	Declaration uint16

	// Value is the characteristic value handle (target of writes and source of notifications)
	Value uint16

	// CCCD is the Client Characteristic Configuration Descriptor handle.
	// This protocol always uses Value+1.
	CCCD uint16
}

// HandlesAt builds Handles for a characteristic whose declaration precedes its
// value, with the CCCD immediately following the value.
func HandlesAt(declaration, value uint16) Handles {
	return Handles{Declaration: declaration, Value: value, CCCD: value + 1}
}

// SubscribeMode selects notifications or indications.
type SubscribeMode uint16

const (
	// Notify enables unacknowledged notifications.
	Notify SubscribeMode = 0x0001

	// Indicate enables acknowledged indications.
	Indicate SubscribeMode = 0x0002
)

// CCCDValue returns the little-endian descriptor value that enables the mode.
func (m SubscribeMode) CCCDValue() []byte {
	return []byte{byte(m), byte(m >> 8)}
}

// String returns "notify" or "indicate".
func (m SubscribeMode) String() string {
	switch m {
	case Notify:
		return "notify"
	case Indicate:
		return "indicate"
	default:
		return "none"
	}
}

// Notification is one notify/indicate PDU received from the peer.
type Notification struct {
	// Handle is the value handle the notification was sent from
	Handle uint16

	// Value is the notification payload
	Value []byte
}

// Transport is the GATT client capability the DFU engine drives.
//
// All blocking methods honour the context deadline and return an error
// satisfying IsTimeout when it expires. Implementations hold at most one
// connection; Connect on a connected transport is an error.
type Transport interface {
	// Connect opens a link to the peer at addr.
	Connect(ctx context.Context, addr Address, typ AddressType) error

	// Disconnect closes the link. It is safe to call on a dropped link.
	Disconnect() error

	// ResolveCharacteristic looks up a characteristic by UUID.
	// Returns ErrNotFound if the peer does not expose it.
	ResolveCharacteristic(ctx context.Context, id uuid.UUID) (Handles, error)

	// WriteRequest writes value to handle and waits for the write response.
	WriteRequest(ctx context.Context, handle uint16, value []byte) error

	// WriteCommand writes value to handle without waiting for a response.
	WriteCommand(handle uint16, value []byte) error

	// Subscribe writes the CCCD at cccd to enable mode and waits for the write response.
	Subscribe(ctx context.Context, cccd uint16, mode SubscribeMode) error

	// AwaitNotification blocks until the next notification or indication arrives.
	AwaitNotification(ctx context.Context) (Notification, error)

	// IsAlive reports whether the link is still up.
	IsAlive() bool
}
