// Package hci implements the Host Controller Interface packet codec,
// command/event correlation, and per-adapter event fan-out: an
// outstanding-command map keyed by opcode, every decoded event passed
// to every listener, an explicit per-request deadline,
// and a bounded correlation map via github.com/golang/groupcache/lru
// so a wedged controller cannot leak pending requests forever.
package hci

import (
	"encoding/binary"

	direct "github.com/sgothel/direct-bt-go"
	"github.com/sgothel/direct-bt-go/octets"
)

// PacketType is the 1-octet HCI transport discriminator prefixing
// every packet on the wire.
type PacketType uint8

const (
	PacketCommand PacketType = 0x01
	PacketACLData PacketType = 0x02
	PacketSCOData PacketType = 0x03
	PacketEvent   PacketType = 0x04
	PacketVendor  PacketType = 0xFF
)

// Header sizes in bytes, including the type discriminator.
const (
	HeaderSizeCommand = 4
	HeaderSizeACLData = 5
	HeaderSizeSCOData = 4
	HeaderSizeEvent   = 3
)

// MaxPacketSize is the maximum command/event parameter length.
const MaxPacketSize = 255

// OpCode identifies an HCI command (OGF<<10 | OCF).
type OpCode uint16

// EncodeCommand packs {type=0x01, opcode_le, param_size, params},
// validating 0 <= len(params) <= 255.
func EncodeCommand(op OpCode, params []byte) ([]byte, error) {
	if len(params) > MaxPacketSize {
		return nil, direct.NewError(direct.KindMalformed, "hci: command param_size %d exceeds 255", len(params))
	}
	buf := octets.New(HeaderSizeCommand+len(params), octets.LittleEndian)
	buf.Grow(HeaderSizeCommand + len(params))
	b := buf.Bytes()
	b[0] = byte(PacketCommand)
	b[1] = byte(op)
	b[2] = byte(op >> 8)
	b[3] = byte(len(params))
	copy(b[4:], params)
	return b, nil
}

// Event is a decoded HCI event header plus its parameter bytes. The
// declared parameter size is checked against the buffer length at
// decode; a mismatch fails with Malformed.
type Event struct {
	Code   uint8
	Params []byte
}

// DecodeEvent parses the bytes following the PacketEvent type
// discriminator: {code: u8, plen: u8, params: bytes[plen]}.
func DecodeEvent(b []byte) (*Event, error) {
	if len(b) < 2 {
		return nil, direct.NewError(direct.KindMalformed, "hci: event header truncated")
	}
	code, plen := b[0], int(b[1])
	if plen != len(b)-2 {
		return nil, direct.NewError(direct.KindMalformed, "hci: event declared length %d does not match buffer %d", plen, len(b)-2)
	}
	return &Event{Code: code, Params: b[2:]}, nil
}

// LEMetaSubEventCode is carried in the first parameter byte of an LE
// Meta event (code 0x3E); Event.SubEventCode extracts it.
type LEMetaSubEventCode uint8

const (
	LEConnectionCompleteSubCode             LEMetaSubEventCode = 0x01
	LEAdvertisingReportSubCode              LEMetaSubEventCode = 0x02
	LEConnectionUpdateCompleteSubCode       LEMetaSubEventCode = 0x03
	LEReadRemoteUsedFeaturesCompleteSubCode LEMetaSubEventCode = 0x04
	LELongTermKeyRequestSubCode             LEMetaSubEventCode = 0x05
	LERemoteConnParamRequestSubCode         LEMetaSubEventCode = 0x06
	LEEnhancedConnectionCompleteSubCode     LEMetaSubEventCode = 0x0A
	LEDirectedAdvertisingReportSubCode      LEMetaSubEventCode = 0x0B
)

// Standard (non-LE-Meta) event codes this core dispatches on.
const (
	EventCommandCompleteCode        = 0x0E
	EventCommandStatusCode          = 0x0F
	EventDisconnectionCompleteCode  = 0x05
	EventNumberOfCompletedPktsCode  = 0x13
	EventLEMetaCode                 = 0x3E
	EventEncryptionChangeCode       = 0x08
	EventEncryptionKeyRefreshCode   = 0x30
)

// SubEventCode returns the LE Meta sub-event code carried in an LE
// Meta event's first parameter byte, and the remaining sub-event body.
func (e *Event) SubEventCode() (LEMetaSubEventCode, []byte, error) {
	if e.Code != EventLEMetaCode {
		return 0, nil, direct.NewError(direct.KindMalformed, "hci: not an LE meta event (code 0x%02X)", e.Code)
	}
	if len(e.Params) < 1 {
		return 0, nil, direct.NewError(direct.KindMalformed, "hci: LE meta event has no sub-event code")
	}
	return LEMetaSubEventCode(e.Params[0]), e.Params[1:], nil
}

// CommandCompleteParams is the decoded fixed prefix of a Command
// Complete event; ReturnParameters follows per-command.
type CommandCompleteParams struct {
	NumHCICommandPackets uint8
	CommandOpcode        OpCode
	ReturnParameters     []byte
}

func DecodeCommandComplete(params []byte) (*CommandCompleteParams, error) {
	if len(params) < 3 {
		return nil, direct.NewError(direct.KindMalformed, "hci: command complete truncated")
	}
	return &CommandCompleteParams{
		NumHCICommandPackets: params[0],
		CommandOpcode:        OpCode(binary.LittleEndian.Uint16(params[1:3])),
		ReturnParameters:     params[3:],
	}, nil
}

// CommandStatusParams is the decoded Command Status event.
type CommandStatusParams struct {
	Status               uint8
	NumHCICommandPackets uint8
	CommandOpcode        OpCode
}

func DecodeCommandStatus(params []byte) (*CommandStatusParams, error) {
	if len(params) < 4 {
		return nil, direct.NewError(direct.KindMalformed, "hci: command status truncated")
	}
	return &CommandStatusParams{
		Status:               params[0],
		NumHCICommandPackets: params[1],
		CommandOpcode:        OpCode(binary.LittleEndian.Uint16(params[2:4])),
	}, nil
}

// ACL PB (Packet Boundary) flags (bits 4-5 of the handle+flags word).
const (
	pbStartNonAutoFlush = 0x0
	pbContinuing        = 0x1
	pbStartAutoFlush    = 0x2
	pbCompleteL2CAPAuto = 0x3
)

// L2CAPFrame is a complete, reassembled L2CAP frame extracted from one
// ACL data packet. CONTINUING fragments are not supported by this
// extraction; a transport that fragments host-to-controller ACL must
// reassemble before handing packets in.
type L2CAPFrame struct {
	Handle  uint16
	CID     uint16
	Payload []byte
}

// ExtractL2CAP parses an ACL data packet's body (the bytes following
// the PacketACLData type discriminator) into a complete L2CAP frame.
// A frame is only delivered when the declared L2CAP length does not
// exceed the payload actually present; bytes past it are dropped.
func ExtractL2CAP(b []byte) (*L2CAPFrame, error) {
	if len(b) < 4 {
		return nil, direct.NewError(direct.KindMalformed, "hci: acl header truncated")
	}
	handleFlags := binary.LittleEndian.Uint16(b[0:2])
	dataLen := binary.LittleEndian.Uint16(b[2:4])
	handle := handleFlags & 0x0FFF
	pb := uint8((handleFlags >> 12) & 0x3)

	body := b[4:]
	if int(dataLen) != len(body) {
		return nil, direct.NewError(direct.KindMalformed, "hci: acl data length %d does not match buffer %d", dataLen, len(body))
	}

	switch pb {
	case pbContinuing:
		return nil, direct.NewError(direct.KindNotSupported, "hci: continuing ACL fragments are not supported by this core")
	case pbStartNonAutoFlush, pbStartAutoFlush, pbCompleteL2CAPAuto:
		if len(body) < 4 {
			return nil, direct.NewError(direct.KindMalformed, "hci: l2cap header truncated")
		}
		l2Len := binary.LittleEndian.Uint16(body[0:2])
		cid := binary.LittleEndian.Uint16(body[2:4])
		payload := body[4:]
		if int(l2Len) > len(payload) {
			return nil, direct.NewError(direct.KindMalformed, "hci: l2cap declared length %d exceeds payload %d", l2Len, len(payload))
		}
		return &L2CAPFrame{Handle: handle, CID: cid, Payload: payload[:l2Len]}, nil
	default:
		return nil, direct.NewError(direct.KindMalformed, "hci: unrecognized pb flag 0x%x", pb)
	}
}

// EncodeACL packs a complete L2CAP frame into one non-fragmented ACL
// data packet body (the inverse of ExtractL2CAP), using the
// START_NON_AUTOFLUSH PB flag.
func EncodeACL(handle uint16, cid uint16, payload []byte) []byte {
	l2 := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint16(l2[0:2], uint16(len(payload)))
	binary.LittleEndian.PutUint16(l2[2:4], cid)
	copy(l2[4:], payload)

	handleFlags := (handle & 0x0FFF) | (pbStartNonAutoFlush << 12)
	out := make([]byte, 4+len(l2))
	binary.LittleEndian.PutUint16(out[0:2], handleFlags)
	binary.LittleEndian.PutUint16(out[2:4], uint16(len(l2)))
	copy(out[4:], l2)
	return out
}
