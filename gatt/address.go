package gatt

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLen is the number of octets in a device address.
const AddressLen = 6

// addressSpace is the number of distinct 48-bit addresses.
const addressSpace = uint64(1) << (8 * AddressLen)

// Address is a 48-bit Bluetooth device address, most significant octet first
// (the order in which it is written as text).
type Address [AddressLen]byte

// AddressType selects how the peer address is interpreted by the controller.
type AddressType int

const (
	// AddressRandom is a random static address. nRF51 devices use this by default.
	AddressRandom AddressType = iota

	// AddressPublic is an IEEE-assigned public address.
	AddressPublic
)

// String returns "random" or "public".
func (t AddressType) String() string {
	switch t {
	case AddressRandom:
		return "random"
	case AddressPublic:
		return "public"
	default:
		return fmt.Sprintf("AddressType(%d)", int(t))
	}
}

// ParseAddressType parses "random" or "public".
func ParseAddressType(s string) (AddressType, error) {
	switch strings.ToLower(s) {
	case "random", "":
		return AddressRandom, nil
	case "public":
		return AddressPublic, nil
	default:
		return 0, fmt.Errorf("unknown address type %q", s)
	}
}

// ParseAddress parses an address in xx:xx:xx:xx:xx:xx form.
// Hex digits may be in either case.
//
// Example:
//
//	addr, err := gatt.ParseAddress("cd:e3:4a:47:1c:e4")
func ParseAddress(s string) (Address, error) {
	var addr Address

	parts := strings.Split(s, ":")
	if len(parts) != AddressLen {
		return addr, fmt.Errorf("invalid address %q: expected %d colon-separated octets, got %d", s, AddressLen, len(parts))
	}

	for i, part := range parts {
		if len(part) != 2 {
			return addr, fmt.Errorf("invalid address %q: octet %d must be 2 hex digits", s, i)
		}
		b, err := hex.DecodeString(part)
		if err != nil {
			return addr, fmt.Errorf("invalid address %q: %w", s, err)
		}
		addr[i] = b[0]
	}

	return addr, nil
}

// MustParseAddress is like ParseAddress but panics on error.
func MustParseAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// String formats the address as uppercase XX:XX:XX:XX:XX:XX.
func (a Address) String() string {
	var sb strings.Builder
	sb.Grow(AddressLen*3 - 1)
	for i, b := range a {
		if i > 0 {
			sb.WriteByte(':')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// Uint64 returns the address as an integer.
func (a Address) Uint64() uint64 {
	var v uint64
	for _, b := range a {
		v = v<<8 | uint64(b)
	}
	return v
}

// AddressFromUint64 builds an address from the low 48 bits of v.
func AddressFromUint64(v uint64) Address {
	var a Address
	for i := AddressLen - 1; i >= 0; i-- {
		a[i] = byte(v)
		v >>= 8
	}
	return a
}

// Add returns the address incremented by n (n may be negative).
// Arithmetic wraps modulo 2^48, so a.Add(n).Add(-n) == a for every n.
//
// Secure bootloaders advertise on the application address plus one:
//
//	dfuAddr := appAddr.Add(1)
func (a Address) Add(n int64) Address {
	delta := uint64(n) % addressSpace
	if n < 0 {
		delta = addressSpace - (uint64(-n) % addressSpace)
	}
	return AddressFromUint64((a.Uint64() + delta) % addressSpace)
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
