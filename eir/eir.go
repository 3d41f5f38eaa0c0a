// Package eir implements the Extended Inquiry Response / Advertising
// Data codec: parsing and masked emission of the {len, type, data}
// triples carried in advertising and EIR packets. The parse-then-
// merge-then-emit shape lets one logical EIR be split across an
// initial advertisement and a scan response and recombined on receipt.
package eir

import (
	"fmt"

	direct "github.com/sgothel/direct-bt-go"
)

// MaxPacketLength is the maximum size of one advertising PDU's AD
// payload (Core Spec Vol 3, Part C, 11: 31 octets).
const MaxPacketLength = 31

// AD type codes (Bluetooth Core Spec Supplement, Part A, §1).
const (
	adFlags                       = 0x01
	adIncomplete16BitUUIDs        = 0x02
	adComplete16BitUUIDs          = 0x03
	adIncomplete32BitUUIDs        = 0x04
	adComplete32BitUUIDs          = 0x05
	adIncomplete128BitUUIDs       = 0x06
	adComplete128BitUUIDs         = 0x07
	adShortLocalName              = 0x08
	adCompleteLocalName           = 0x09
	adTxPowerLevel                = 0x0A
	adDeviceClass                 = 0x0D
	adServiceSolicitation16       = 0x14
	adServiceSolicitation128      = 0x15
	adServiceData16               = 0x16
	adAppearance                  = 0x19
	adServiceSolicitation32       = 0x1F
	adServiceData32               = 0x20
	adServiceData128              = 0x21
	adConnIntervalRange           = 0x12
	adManufacturerSpecificData    = 0xFF
)

// EIRDataType is a bitmask naming which fields Emit should serialize.
type EIRDataType uint32

const (
	Flags EIRDataType = 1 << iota
	ServiceUUID16
	ServiceUUID32
	ServiceUUID128
	Name // short or complete, whichever is set
	TxPowerLevel
	DeviceClass
	Appearance
	ConnIntervalRange
	ServiceSolicitationUUID
	ServiceData
	ManufacturerData

	All = Flags | ServiceUUID16 | ServiceUUID32 | ServiceUUID128 | Name |
		TxPowerLevel | DeviceClass | Appearance | ConnIntervalRange |
		ServiceSolicitationUUID | ServiceData | ManufacturerData
)

// ServiceDataEntry pairs a service UUID with its associated data.
type ServiceDataEntry struct {
	UUID direct.UUID
	Data []byte
}

// ManufacturerSpecificData is the {company ID, data} pair of AD type 0xFF.
type ManufacturerSpecificData struct {
	CompanyID uint16
	Data      []byte
}

// ConnInterval is the {min, max} connection-interval-range AD field,
// in 1.25ms units.
type ConnInterval struct {
	Min uint16
	Max uint16
}

// EIR is the in-memory representation of a parsed (or being-built)
// Extended Inquiry Response / Advertising Data record.
// Zero value is an empty record.
type EIR struct {
	HasFlags bool
	FlagsVal uint8

	ServiceUUIDs16        []direct.UUID
	ServiceUUIDs16Partial bool
	ServiceUUIDs32        []direct.UUID
	ServiceUUIDs32Partial bool
	ServiceUUIDs128       []direct.UUID
	ServiceUUIDs128Partial bool

	HasShortName bool
	ShortName    string
	HasFullName  bool
	FullName     string

	HasTxPower bool
	TxPower    int8

	HasDeviceClass bool
	DeviceClass    [3]byte

	HasAppearance bool
	Appearance    uint16

	HasConnInterval bool
	ConnInterval    ConnInterval

	ServiceSolicitation16  []direct.UUID
	ServiceSolicitation32  []direct.UUID
	ServiceSolicitation128 []direct.UUID

	ServiceData []ServiceDataEntry

	ManufacturerSpecific []ManufacturerSpecificData
}

// Parse reads a concatenation of {len, type, data[len-1]} triples
// into a fresh EIR.
func Parse(b []byte) (*EIR, error) {
	e := &EIR{}
	if err := e.parseInto(b); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *EIR) parseInto(b []byte) error {
	i := 0
	for i < len(b) {
		length := int(b[i])
		if length == 0 {
			// Trailing zero padding, permitted.
			i++
			continue
		}
		if i+1+length > len(b) {
			return direct.NewError(direct.KindMalformed, "eir: record length %d at offset %d exceeds buffer", length, i)
		}
		typ := b[i+1]
		data := b[i+2 : i+1+length]
		if err := e.applyField(typ, data); err != nil {
			return err
		}
		i += 1 + length
	}
	return nil
}

func (e *EIR) applyField(typ byte, data []byte) error {
	switch typ {
	case adFlags:
		if len(data) < 1 {
			return direct.NewError(direct.KindMalformed, "eir: flags field empty")
		}
		e.HasFlags = true
		e.FlagsVal = data[0]
	case adIncomplete16BitUUIDs, adComplete16BitUUIDs:
		uuids, err := parse16UUIDs(data)
		if err != nil {
			return err
		}
		e.ServiceUUIDs16 = uuids
		e.ServiceUUIDs16Partial = typ == adIncomplete16BitUUIDs
	case adIncomplete32BitUUIDs, adComplete32BitUUIDs:
		uuids, err := parse32UUIDs(data)
		if err != nil {
			return err
		}
		e.ServiceUUIDs32 = uuids
		e.ServiceUUIDs32Partial = typ == adIncomplete32BitUUIDs
	case adIncomplete128BitUUIDs, adComplete128BitUUIDs:
		uuids, err := parse128UUIDs(data)
		if err != nil {
			return err
		}
		e.ServiceUUIDs128 = uuids
		e.ServiceUUIDs128Partial = typ == adIncomplete128BitUUIDs
	case adShortLocalName:
		e.HasShortName = true
		e.ShortName = string(data)
	case adCompleteLocalName:
		e.HasFullName = true
		e.FullName = string(data)
	case adTxPowerLevel:
		if len(data) < 1 {
			return direct.NewError(direct.KindMalformed, "eir: tx power field empty")
		}
		e.HasTxPower = true
		e.TxPower = int8(data[0])
	case adDeviceClass:
		if len(data) < 3 {
			return direct.NewError(direct.KindMalformed, "eir: device class field short")
		}
		e.HasDeviceClass = true
		copy(e.DeviceClass[:], data[:3])
	case adAppearance:
		if len(data) < 2 {
			return direct.NewError(direct.KindMalformed, "eir: appearance field short")
		}
		e.HasAppearance = true
		e.Appearance = uint16(data[0]) | uint16(data[1])<<8
	case adConnIntervalRange:
		if len(data) < 4 {
			return direct.NewError(direct.KindMalformed, "eir: conn interval range field short")
		}
		e.HasConnInterval = true
		e.ConnInterval = ConnInterval{
			Min: uint16(data[0]) | uint16(data[1])<<8,
			Max: uint16(data[2]) | uint16(data[3])<<8,
		}
	case adServiceSolicitation16:
		uuids, err := parse16UUIDs(data)
		if err != nil {
			return err
		}
		e.ServiceSolicitation16 = uuids
	case adServiceSolicitation32:
		uuids, err := parse32UUIDs(data)
		if err != nil {
			return err
		}
		e.ServiceSolicitation32 = uuids
	case adServiceSolicitation128:
		uuids, err := parse128UUIDs(data)
		if err != nil {
			return err
		}
		e.ServiceSolicitation128 = uuids
	case adServiceData16:
		if len(data) < 2 {
			return direct.NewError(direct.KindMalformed, "eir: service data (16) short")
		}
		u := direct.UUIDFrom16(uint16(data[0]) | uint16(data[1])<<8)
		e.ServiceData = append(e.ServiceData, ServiceDataEntry{UUID: u, Data: append([]byte{}, data[2:]...)})
	case adServiceData32:
		if len(data) < 4 {
			return direct.NewError(direct.KindMalformed, "eir: service data (32) short")
		}
		v := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
		e.ServiceData = append(e.ServiceData, ServiceDataEntry{UUID: direct.UUIDFrom32(v), Data: append([]byte{}, data[4:]...)})
	case adServiceData128:
		if len(data) < 16 {
			return direct.NewError(direct.KindMalformed, "eir: service data (128) short")
		}
		var raw [16]byte
		copy(raw[:], data[:16])
		e.ServiceData = append(e.ServiceData, ServiceDataEntry{UUID: direct.UUIDFrom128(raw), Data: append([]byte{}, data[16:]...)})
	case adManufacturerSpecificData:
		if len(data) < 2 {
			return direct.NewError(direct.KindMalformed, "eir: manufacturer data short")
		}
		e.ManufacturerSpecific = append(e.ManufacturerSpecific, ManufacturerSpecificData{
			CompanyID: uint16(data[0]) | uint16(data[1])<<8,
			Data:      append([]byte{}, data[2:]...),
		})
	default:
		// Unrecognized type: ignored, not an error (other AD types exist
		// that this core does not interpret).
	}
	return nil
}

func parse16UUIDs(data []byte) ([]direct.UUID, error) {
	if len(data)%2 != 0 {
		return nil, direct.NewError(direct.KindMalformed, "eir: 16-bit uuid list not a multiple of 2 bytes")
	}
	out := make([]direct.UUID, 0, len(data)/2)
	for i := 0; i < len(data); i += 2 {
		out = append(out, direct.UUIDFrom16(uint16(data[i])|uint16(data[i+1])<<8))
	}
	return out, nil
}

func parse32UUIDs(data []byte) ([]direct.UUID, error) {
	if len(data)%4 != 0 {
		return nil, direct.NewError(direct.KindMalformed, "eir: 32-bit uuid list not a multiple of 4 bytes")
	}
	out := make([]direct.UUID, 0, len(data)/4)
	for i := 0; i < len(data); i += 4 {
		v := uint32(data[i]) | uint32(data[i+1])<<8 | uint32(data[i+2])<<16 | uint32(data[i+3])<<24
		out = append(out, direct.UUIDFrom32(v))
	}
	return out, nil
}

func parse128UUIDs(data []byte) ([]direct.UUID, error) {
	if len(data)%16 != 0 {
		return nil, direct.NewError(direct.KindMalformed, "eir: 128-bit uuid list not a multiple of 16 bytes")
	}
	out := make([]direct.UUID, 0, len(data)/16)
	for i := 0; i < len(data); i += 16 {
		var raw [16]byte
		copy(raw[:], data[i:i+16])
		out = append(out, direct.UUIDFrom128(raw))
	}
	return out, nil
}

// Merge overlays other's fields onto e: any field other has set
// replaces e's corresponding field; later reads overlay earlier
// fields. Used to recombine an EIR split across an initial
// advertisement and a scan response.
func (e *EIR) Merge(other *EIR) {
	if other.HasFlags {
		e.HasFlags, e.FlagsVal = true, other.FlagsVal
	}
	if other.ServiceUUIDs16 != nil {
		e.ServiceUUIDs16, e.ServiceUUIDs16Partial = other.ServiceUUIDs16, other.ServiceUUIDs16Partial
	}
	if other.ServiceUUIDs32 != nil {
		e.ServiceUUIDs32, e.ServiceUUIDs32Partial = other.ServiceUUIDs32, other.ServiceUUIDs32Partial
	}
	if other.ServiceUUIDs128 != nil {
		e.ServiceUUIDs128, e.ServiceUUIDs128Partial = other.ServiceUUIDs128, other.ServiceUUIDs128Partial
	}
	if other.HasShortName {
		e.HasShortName, e.ShortName = true, other.ShortName
	}
	if other.HasFullName {
		e.HasFullName, e.FullName = true, other.FullName
	}
	if other.HasTxPower {
		e.HasTxPower, e.TxPower = true, other.TxPower
	}
	if other.HasDeviceClass {
		e.HasDeviceClass, e.DeviceClass = true, other.DeviceClass
	}
	if other.HasAppearance {
		e.HasAppearance, e.Appearance = true, other.Appearance
	}
	if other.HasConnInterval {
		e.HasConnInterval, e.ConnInterval = true, other.ConnInterval
	}
	if other.ServiceSolicitation16 != nil {
		e.ServiceSolicitation16 = other.ServiceSolicitation16
	}
	if other.ServiceSolicitation32 != nil {
		e.ServiceSolicitation32 = other.ServiceSolicitation32
	}
	if other.ServiceSolicitation128 != nil {
		e.ServiceSolicitation128 = other.ServiceSolicitation128
	}
	if other.ServiceData != nil {
		e.ServiceData = other.ServiceData
	}
	if other.ManufacturerSpecific != nil {
		e.ManufacturerSpecific = other.ManufacturerSpecific
	}
}

// OverflowError is returned when a requested field does not fit in
// MaxPacketLength bytes; Emit never silently truncates.
type OverflowError struct {
	Field string
}

func (e *OverflowError) Error() string { return fmt.Sprintf("eir: field %s does not fit", e.Field) }

type builder struct {
	out []byte
}

func (bld *builder) append(field string, typ byte, data []byte) error {
	if len(bld.out)+2+len(data) > MaxPacketLength {
		return &OverflowError{Field: field}
	}
	bld.out = append(bld.out, byte(len(data)+1), typ)
	bld.out = append(bld.out, data...)
	return nil
}

// Emit serializes the fields named by mask, in a fixed field order, up
// to MaxPacketLength bytes. If a requested field does not fit, Emit
// fails with *OverflowError rather than truncating.
func (e *EIR) Emit(mask EIRDataType) ([]byte, error) {
	b := &builder{out: make([]byte, 0, MaxPacketLength)}

	if mask&Flags != 0 && e.HasFlags {
		if err := b.append("flags", adFlags, []byte{e.FlagsVal}); err != nil {
			return nil, err
		}
	}
	if mask&ServiceUUID16 != 0 && len(e.ServiceUUIDs16) > 0 {
		typ := byte(adComplete16BitUUIDs)
		if e.ServiceUUIDs16Partial {
			typ = adIncomplete16BitUUIDs
		}
		data := make([]byte, 0, 2*len(e.ServiceUUIDs16))
		for _, u := range e.ServiceUUIDs16 {
			v := u.To128Bit()
			data = append(data, v[12], v[13])
		}
		if err := b.append("service-uuid16", typ, data); err != nil {
			return nil, err
		}
	}
	if mask&ServiceUUID32 != 0 && len(e.ServiceUUIDs32) > 0 {
		typ := byte(adComplete32BitUUIDs)
		if e.ServiceUUIDs32Partial {
			typ = adIncomplete32BitUUIDs
		}
		data := make([]byte, 0, 4*len(e.ServiceUUIDs32))
		for _, u := range e.ServiceUUIDs32 {
			v := u.To128Bit()
			data = append(data, v[12:16]...)
		}
		if err := b.append("service-uuid32", typ, data); err != nil {
			return nil, err
		}
	}
	if mask&ServiceUUID128 != 0 && len(e.ServiceUUIDs128) > 0 {
		typ := byte(adComplete128BitUUIDs)
		if e.ServiceUUIDs128Partial {
			typ = adIncomplete128BitUUIDs
		}
		data := make([]byte, 0, 16*len(e.ServiceUUIDs128))
		for _, u := range e.ServiceUUIDs128 {
			v := u.To128Bit()
			data = append(data, v[:]...)
		}
		if err := b.append("service-uuid128", typ, data); err != nil {
			return nil, err
		}
	}
	if mask&Name != 0 {
		if e.HasFullName {
			if err := b.append("name", adCompleteLocalName, []byte(e.FullName)); err != nil {
				return nil, err
			}
		} else if e.HasShortName {
			if err := b.append("name", adShortLocalName, []byte(e.ShortName)); err != nil {
				return nil, err
			}
		}
	}
	if mask&TxPowerLevel != 0 && e.HasTxPower {
		if err := b.append("tx-power", adTxPowerLevel, []byte{byte(e.TxPower)}); err != nil {
			return nil, err
		}
	}
	if mask&DeviceClass != 0 && e.HasDeviceClass {
		if err := b.append("device-class", adDeviceClass, e.DeviceClass[:]); err != nil {
			return nil, err
		}
	}
	if mask&Appearance != 0 && e.HasAppearance {
		if err := b.append("appearance", adAppearance, []byte{byte(e.Appearance), byte(e.Appearance >> 8)}); err != nil {
			return nil, err
		}
	}
	if mask&ConnIntervalRange != 0 && e.HasConnInterval {
		data := []byte{
			byte(e.ConnInterval.Min), byte(e.ConnInterval.Min >> 8),
			byte(e.ConnInterval.Max), byte(e.ConnInterval.Max >> 8),
		}
		if err := b.append("conn-interval", adConnIntervalRange, data); err != nil {
			return nil, err
		}
	}
	if mask&ServiceSolicitationUUID != 0 {
		if len(e.ServiceSolicitation16) > 0 {
			data := make([]byte, 0, 2*len(e.ServiceSolicitation16))
			for _, u := range e.ServiceSolicitation16 {
				v := u.To128Bit()
				data = append(data, v[12], v[13])
			}
			if err := b.append("service-solicitation16", adServiceSolicitation16, data); err != nil {
				return nil, err
			}
		}
		if len(e.ServiceSolicitation128) > 0 {
			data := make([]byte, 0, 16*len(e.ServiceSolicitation128))
			for _, u := range e.ServiceSolicitation128 {
				v := u.To128Bit()
				data = append(data, v[:]...)
			}
			if err := b.append("service-solicitation128", adServiceSolicitation128, data); err != nil {
				return nil, err
			}
		}
	}
	if mask&ServiceData != 0 {
		for _, sd := range e.ServiceData {
			if sd.UUID.Width() == direct.UUID16 {
				v := sd.UUID.To128Bit()
				data := append([]byte{v[12], v[13]}, sd.Data...)
				if err := b.append("service-data", adServiceData16, data); err != nil {
					return nil, err
				}
			}
		}
	}
	if mask&ManufacturerData != 0 {
		for _, md := range e.ManufacturerSpecific {
			data := append([]byte{byte(md.CompanyID), byte(md.CompanyID >> 8)}, md.Data...)
			if err := b.append("manufacturer-data", adManufacturerSpecificData, data); err != nil {
				return nil, err
			}
		}
	}

	return b.out, nil
}

// Equal compares two EIR records' flags, service UUID lists, full and
// short names, and manufacturer-specific data, used by round-trip
// tests; other fields are not compared.
func (e *EIR) Equal(o *EIR) bool {
	if e.HasFlags != o.HasFlags || (e.HasFlags && e.FlagsVal != o.FlagsVal) {
		return false
	}
	if !uuidsEqual(e.ServiceUUIDs16, o.ServiceUUIDs16) || !uuidsEqual(e.ServiceUUIDs32, o.ServiceUUIDs32) ||
		!uuidsEqual(e.ServiceUUIDs128, o.ServiceUUIDs128) {
		return false
	}
	if e.HasFullName != o.HasFullName || e.FullName != o.FullName {
		return false
	}
	if e.HasShortName != o.HasShortName || e.ShortName != o.ShortName {
		return false
	}
	if len(e.ManufacturerSpecific) != len(o.ManufacturerSpecific) {
		return false
	}
	for i := range e.ManufacturerSpecific {
		if e.ManufacturerSpecific[i].CompanyID != o.ManufacturerSpecific[i].CompanyID {
			return false
		}
		if string(e.ManufacturerSpecific[i].Data) != string(o.ManufacturerSpecific[i].Data) {
			return false
		}
	}
	return true
}

func uuidsEqual(a, b []direct.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
