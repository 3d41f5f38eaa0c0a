// Package direct implements the core of a userspace Bluetooth
// controller library: HCI, L2CAP, ATT, GATT, and SMP, speaking
// directly to a kernel-exposed controller socket. This file holds the
// address data model shared by every subsystem.
package direct

import (
	"fmt"
	"strings"
)

// AddressType discriminates the transport/kind of a Bluetooth address.
type AddressType int

const (
	AddressUndefined AddressType = iota
	AddressBREDR
	AddressLEPublic
	AddressLERandom
)

func (t AddressType) String() string {
	switch t {
	case AddressBREDR:
		return "BREDR"
	case AddressLEPublic:
		return "LE_PUBLIC"
	case AddressLERandom:
		return "LE_RANDOM"
	default:
		return "UNDEFINED"
	}
}

// RandomAddressSubType further classifies an AddressLERandom address,
// derived from the two most significant bits of its most significant
// octet (Core Spec Vol 6, Part B, 1.3.2).
type RandomAddressSubType int

const (
	RandomNotApplicable RandomAddressSubType = iota
	RandomUnresolvablePrivate
	RandomResolvablePrivate
	RandomReserved
	RandomStaticPublic
)

func (t RandomAddressSubType) String() string {
	switch t {
	case RandomUnresolvablePrivate:
		return "UNRESOLVABLE_PRIVATE"
	case RandomResolvablePrivate:
		return "RESOLVABLE_PRIVATE"
	case RandomReserved:
		return "RESERVED"
	case RandomStaticPublic:
		return "STATIC_PUBLIC"
	default:
		return "N/A"
	}
}

// EUI48 is a 6-octet IEEE 802-2001 address, stored most-significant
// octet first (index 0), matching the conventional colon-hex string
// form. Note this is the opposite order from the wire, which is
// octet-0-first starting from the least significant octet; codecs
// reverse as needed.
type EUI48 [6]byte

func (e EUI48) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", e[0], e[1], e[2], e[3], e[4], e[5])
}

// ParseEUI48 parses a colon- or dash-separated hex address.
func ParseEUI48(s string) (EUI48, error) {
	var e EUI48
	s = strings.ReplaceAll(s, "-", ":")
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return e, fmt.Errorf("direct: invalid EUI48 %q", s)
	}
	for i, p := range parts {
		var v int
		if _, err := fmt.Sscanf(p, "%02X", &v); err != nil {
			return e, fmt.Errorf("direct: invalid EUI48 octet %q: %w", p, err)
		}
		e[i] = byte(v)
	}
	return e, nil
}

// SubType classifies a, assuming it is used as an AddressLERandom
// address, from the two MSBs of its most-significant octet (e[0]):
// 0b11 → STATIC_PUBLIC, 0b10 → RESERVED, 0b01 → RESOLVABLE_PRIVATE,
// 0b00 → UNRESOLVABLE_PRIVATE.
func (e EUI48) SubType() RandomAddressSubType {
	switch e[0] >> 6 {
	case 0b11:
		return RandomStaticPublic
	case 0b10:
		return RandomReserved
	case 0b01:
		return RandomResolvablePrivate
	default:
		return RandomUnresolvablePrivate
	}
}

// Prand returns the 24-bit prand portion of a resolvable private
// address (the upper 3 octets, e[0..2], with the two type bits masked
// off the top octet) used in IRK resolution.
func (e EUI48) Prand() [3]byte {
	return [3]byte{e[0] & 0x3F, e[1], e[2]}
}

// Hash returns the lower 3 octets (e[3..5]), the ah() hash portion of a
// resolvable private address.
func (e EUI48) Hash() [3]byte {
	return [3]byte{e[3], e[4], e[5]}
}

// Address pairs an EUI48 with its AddressType, the unit of identity
// used throughout this module.
type Address struct {
	EUI48 EUI48
	Type  AddressType

	hash     uint64
	hashDone bool
}

func NewAddress(e EUI48, t AddressType) Address {
	return Address{EUI48: e, Type: t}
}

func (a Address) String() string {
	return fmt.Sprintf("%s/%s", a.EUI48, a.Type)
}

// RandomSubType reports the random address sub-type, or
// RandomNotApplicable if a is not an AddressLERandom address.
func (a Address) RandomSubType() RandomAddressSubType {
	if a.Type != AddressLERandom {
		return RandomNotApplicable
	}
	return a.EUI48.SubType()
}

// Matches reports whether a and other identify the same device,
// permitting AddressUndefined on either side's Type as a wildcard.
func (a Address) Matches(other Address) bool {
	if a.EUI48 != other.EUI48 {
		return false
	}
	return a.Type == AddressUndefined || other.Type == AddressUndefined || a.Type == other.Type
}

// Hash returns a cached hash of the address pair, lazily computed
// on first use. Address is not
// safe for concurrent Hash() calls from multiple goroutines on the
// same value during first computation; callers needing that should
// copy or guard externally; Address values are ordinarily passed by
// value and computed once at construction by the owning component.
func (a *Address) Hash() uint64 {
	if a.hashDone {
		return a.hash
	}
	var h uint64 = 1469598103934665603 // FNV offset basis
	for _, b := range a.EUI48 {
		h ^= uint64(b)
		h *= 1099511628211
	}
	h ^= uint64(a.Type)
	h *= 1099511628211
	a.hash = h
	a.hashDone = true
	return h
}
