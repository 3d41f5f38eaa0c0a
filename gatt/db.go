// Package gatt implements the Generic Attribute Profile atop att: a
// server-side attribute database with handle assignment and CCCD
// wiring, and a client-side service/characteristic discovery and
// access layer.
package gatt

import (
	"sync"

	direct "github.com/sgothel/direct-bt-go"
)

// Well-known GATT declaration UUIDs (Vol 3 Part G §3.3, §2.4).
var (
	PrimaryServiceUUID        = direct.UUIDFrom16(0x2800)
	SecondaryServiceUUID      = direct.UUIDFrom16(0x2801)
	IncludeUUID               = direct.UUIDFrom16(0x2802)
	CharacteristicUUID        = direct.UUIDFrom16(0x2803)
	ClientCharacteristicConfigUUID = direct.UUIDFrom16(0x2902)
)

// Property is the characteristic property bitmask carried in a
// Characteristic Declaration value (Vol 3 Part G §3.3.1.1).
type Property uint8

const (
	PropBroadcast   Property = 0x01
	PropRead        Property = 0x02
	PropWriteNoRsp  Property = 0x04
	PropWrite       Property = 0x08
	PropNotify      Property = 0x10
	PropIndicate    Property = 0x20
	PropSignedWrite Property = 0x40
	PropExtended    Property = 0x80
)

// ReadHandler answers a read of a characteristic or descriptor value.
// offset is nonzero for a READ_BLOB_REQ continuation.
type ReadHandler func(offset int) ([]byte, error)

// WriteHandler accepts a write to a characteristic or descriptor
// value; noRsp is true for a Write Command (fire-and-forget).
type WriteHandler func(value []byte, noRsp bool) error

// Descriptor is one entry below a Characteristic (CCCD, User
// Description, ...).
type Descriptor struct {
	UUID  direct.UUID
	Value []byte
	Read  ReadHandler
	Write WriteHandler

	handle uint16
}

// Handle returns the descriptor's assigned attribute handle (valid
// only after the owning Service has been added to a Database).
func (d *Descriptor) Handle() uint16 { return d.handle }

// NotifyHandler streams values to a subscribed peer until ctx-like
// cancellation; Send delivers one value, Stop tears the subscription
// down. Owned by the database per (characteristic, connection).
type NotifyHandler interface {
	ServeNotify(send func([]byte) error, stop <-chan struct{})
}

// Characteristic is one GATT characteristic: a value attribute plus
// an optional CCCD auto-created when Notify/Indicate is non-nil
// (genCharAttr/newCCCD).
type Characteristic struct {
	UUID     direct.UUID
	Property Property
	Value    []byte
	Read     ReadHandler
	Write    WriteHandler
	Notify   NotifyHandler
	Indicate NotifyHandler

	Descriptors []*Descriptor

	handle      uint16
	valueHandle uint16
	endHandle   uint16
	cccd        *Descriptor
}

func (c *Characteristic) Handle() uint16      { return c.handle }
func (c *Characteristic) ValueHandle() uint16 { return c.valueHandle }

// Service is one GATT primary (or secondary) service.
type Service struct {
	UUID            direct.UUID
	Secondary       bool
	Characteristics []*Characteristic

	handle    uint16
	endHandle uint16
}

func (s *Service) Handle() uint16 { return s.handle }

// attr is one row of the flattened attribute table.
type attr struct {
	handle uint16
	endh   uint16 // only meaningful on a service's first attribute
	typ    direct.UUID
	value  []byte
	read   ReadHandler
	write  WriteHandler
	mu     sync.RWMutex

	cccdFor *Characteristic // non-nil only for a CCCD attribute
}

// Database is the server-side attribute table: flat, handle-ordered,
// guarded per-attribute so a notification never blocks an unrelated
// read.
type Database struct {
	mu       sync.RWMutex
	attrs    []*attr
	services []*Service
	base     uint16
}

// NewDatabase builds the flattened attribute table for ss, assigning
// ascending handles starting at base (genSvcAttr/genCharAttr).
func NewDatabase(ss []*Service, base uint16) *Database {
	db := &Database{base: base}
	h := base
	for i, s := range ss {
		var aa []*attr
		h, aa = genSvcAttr(s, h)
		if i == len(ss)-1 {
			aa[0].endh = 0xFFFF
			s.endHandle = 0xFFFF
		}
		db.attrs = append(db.attrs, aa...)
		db.services = append(db.services, s)
	}
	return db
}

func genSvcAttr(s *Service, h uint16) (uint16, []*attr) {
	typ := PrimaryServiceUUID
	if s.Secondary {
		typ = SecondaryServiceUUID
	}
	a := &attr{handle: h, typ: typ, value: encodeUUID(s.UUID)}
	s.handle = h
	h++
	attrs := []*attr{a}
	for _, c := range s.Characteristics {
		var aa []*attr
		h, aa = genCharAttr(c, h)
		attrs = append(attrs, aa...)
	}
	a.endh = h - 1
	s.endHandle = h - 1
	return h, attrs
}

func genCharAttr(c *Characteristic, h uint16) (uint16, []*attr) {
	vh := h + 1
	declValue := append([]byte{byte(c.Property), byte(vh), byte(vh >> 8)}, encodeUUID(c.UUID)...)
	a := &attr{handle: h, typ: CharacteristicUUID, value: declValue}

	c.handle = h
	c.valueHandle = vh
	va := &attr{handle: vh, typ: c.UUID, value: c.Value, read: c.Read, write: c.Write}

	h += 2
	attrs := []*attr{a, va}
	for _, d := range c.Descriptors {
		attrs = append(attrs, genDescAttr(d, h))
		h++
	}
	if c.Notify != nil || c.Indicate != nil {
		c.cccd = &Descriptor{UUID: ClientCharacteristicConfigUUID, handle: h}
		c.Descriptors = append(c.Descriptors, c.cccd)
		attrs = append(attrs, &attr{handle: h, typ: ClientCharacteristicConfigUUID, cccdFor: c})
		h++
	}
	a.endh = h - 1
	c.endHandle = h - 1
	return h, attrs
}

func genDescAttr(d *Descriptor, h uint16) *attr {
	d.handle = h
	return &attr{handle: h, typ: d.UUID, value: d.Value, read: d.Read, write: d.Write}
}

// CCCD subscription bits (Vol 3 Part G §3.3.3.3).
const (
	cccNotify   uint16 = 0x0001
	cccIndicate uint16 = 0x0002
)

func encodeUUID(u direct.UUID) []byte {
	full := u.To128Bit()
	if u.Is16Bit() {
		// The 16-bit value sits at the high end of the little-endian
		// expansion; the low end holds the base UUID.
		return full[12:14]
	}
	return append([]byte(nil), full[:]...)
}

// idx returns the slice index for handle h, or -1/-2 if out of range
// below/above.
func (db *Database) idx(h uint16) int {
	if int(h) < int(db.base) {
		return -1
	}
	if int(h) >= int(db.base)+len(db.attrs) {
		return -2
	}
	return int(h) - int(db.base)
}

func (db *Database) at(h uint16) (*attr, bool) {
	i := db.idx(h)
	if i < 0 {
		return nil, false
	}
	return db.attrs[i], true
}

// subrange returns attributes whose handle lies in [start, end].
func (db *Database) subrange(start, end uint16) []*attr {
	si := db.idx(start)
	switch {
	case si == -1:
		si = 0
	case si == -2:
		return nil
	}
	ei := db.idx(end) + 1
	switch {
	case db.idx(end) == -1:
		return nil
	case db.idx(end) == -2:
		ei = len(db.attrs)
	}
	if si >= ei {
		return nil
	}
	return db.attrs[si:ei]
}

// Services returns the database's top-level services in handle order.
func (db *Database) Services() []*Service {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.services
}
