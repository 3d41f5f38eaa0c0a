package direct

import (
	"fmt"

	satori "github.com/satori/go.uuid"
)

// baseUUID is the Bluetooth SIG base UUID, used to expand 16- and
// 32-bit UUIDs to their canonical 128-bit form:
// 00000000-0000-1000-8000-00805F9B34FB.
var baseUUID = satori.UUID{
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00,
	0x80, 0x00, 0x00, 0x80, 0x5F, 0x9B, 0x34, 0xFB,
}

// UUIDWidth is the declared width of a UUID value.
type UUIDWidth int

const (
	UUID16 UUIDWidth = 2
	UUID32 UUIDWidth = 4
	UUID128 UUIDWidth = 16
)

// UUID is a tagged union of 16-, 32-, and 128-bit Bluetooth UUIDs with
// a defined little-endian wire layout. The 128-bit
// canonical form is backed by github.com/satori/go.uuid, which
// supplies parsing, big-endian RFC-4122 string formatting, and byte
// compare for the expanded value; the 16/32-bit base-UUID expansion
// arithmetic is ours (satori has no notion of "is this a Bluetooth
// short-form UUID").
type UUID struct {
	width UUIDWidth
	full  satori.UUID // always the canonical 128-bit expansion
}

// UUIDFrom16 builds a UUID from its 16-bit short form (e.g. 0x1800).
func UUIDFrom16(v uint16) UUID {
	return UUID{width: UUID16, full: expand32(uint32(v))}
}

// UUIDFrom32 builds a UUID from its 32-bit short form.
func UUIDFrom32(v uint32) UUID {
	return UUID{width: UUID32, full: expand32(v)}
}

// UUIDFrom128 wraps a full 128-bit value, given little-endian (wire
// order) as 16 bytes: b[0] is the least-significant byte.
func UUIDFrom128(b [16]byte) UUID {
	var be satori.UUID
	for i := 0; i < 16; i++ {
		be[i] = b[15-i]
	}
	return UUID{width: UUID128, full: be}
}

func expand32(v uint32) satori.UUID {
	u := baseUUID
	u[0] = byte(v >> 24)
	u[1] = byte(v >> 16)
	u[2] = byte(v >> 8)
	u[3] = byte(v)
	return u
}

// ParseUUID parses a canonical "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx"
// string, or a bare "1234" / "12345678" short form.
func ParseUUID(s string) (UUID, error) {
	switch len(s) {
	case 4:
		var v uint16
		if _, err := fmt.Sscanf(s, "%04X", &v); err != nil {
			return UUID{}, fmt.Errorf("direct: invalid 16-bit uuid %q: %w", s, err)
		}
		return UUIDFrom16(v), nil
	case 8:
		var v uint32
		if _, err := fmt.Sscanf(s, "%08X", &v); err != nil {
			return UUID{}, fmt.Errorf("direct: invalid 32-bit uuid %q: %w", s, err)
		}
		return UUIDFrom32(v), nil
	default:
		u, err := satori.FromString(s)
		if err != nil {
			return UUID{}, fmt.Errorf("direct: invalid uuid %q: %w", s, err)
		}
		return UUID{width: UUID128, full: u}, nil
	}
}

// MustParseUUID is ParseUUID, panicking on error; for literals.
func MustParseUUID(s string) UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Width reports the UUID's declared wire width.
func (u UUID) Width() UUIDWidth { return u.width }

// To128Bit returns the canonical 128-bit expansion, wire order
// (little-endian, byte 0 least significant).
func (u UUID) To128Bit() [16]byte {
	var out [16]byte
	for i := 0; i < 16; i++ {
		out[i] = u.full[15-i]
	}
	return out
}

// Is16Bit reports whether u can be losslessly represented in 16 bits,
// i.e. its 128-bit expansion equals the Bluetooth base UUID with only
// the last two octets of the time_low field varying.
func (u UUID) Is16Bit() bool {
	return u.full[0] == 0 && u.full[1] == 0 &&
		bytesEqual(u.full[4:], baseUUID[4:])
}

func bytesEqual(a, b []byte) bool {
	// satori.UUID is [16]byte; a, b here are sub-slices of it.
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Equal compares UUIDs across widths: a 16-bit UUID equals its 128-bit
// expansion.
func (u UUID) Equal(v UUID) bool {
	return u.full == v.full
}

// String renders the canonical 128-bit RFC-4122 form regardless of
// declared width, via satori's formatter.
func (u UUID) String() string {
	return u.full.String()
}

// ShortString renders the 16-bit short form ("1800") if Is16Bit,
// otherwise falls back to String().
func (u UUID) ShortString() string {
	if u.Is16Bit() {
		return fmt.Sprintf("%04X", uint16(u.full[2])<<8|uint16(u.full[3]))
	}
	return u.String()
}
