package hci

import (
	"encoding/binary"

	direct "github.com/sgothel/direct-bt-go"
)

// ScanType selects active or passive LE scanning.
type ScanType uint8

const (
	ScanPassive ScanType = 0x00
	ScanActive  ScanType = 0x01
)

// LESetScanParameters encodes the LE Set Scan Parameters command body
// (Core Spec Vol 4, Part E, §7.8.10).
func LESetScanParameters(typ ScanType, intervalUnits, windowUnits uint16, ownAddrType uint8, filterPolicy uint8) []byte {
	b := make([]byte, 7)
	b[0] = byte(typ)
	binary.LittleEndian.PutUint16(b[1:3], intervalUnits)
	binary.LittleEndian.PutUint16(b[3:5], windowUnits)
	b[5] = ownAddrType
	b[6] = filterPolicy
	return b
}

// LESetScanEnable encodes the LE Set Scan Enable command body.
func LESetScanEnable(enable bool, filterDuplicates bool) []byte {
	b := make([]byte, 2)
	if enable {
		b[0] = 1
	}
	if filterDuplicates {
		b[1] = 1
	}
	return b
}

// AdvertisingParams mirrors the LE Set Advertising Parameters command
// fields.
type AdvertisingParams struct {
	IntervalMinUnits uint16
	IntervalMaxUnits uint16
	AdvType          uint8
	OwnAddressType   uint8
	DirectAddrType   uint8
	DirectAddr       direct.EUI48
	ChannelMap       uint8
	FilterPolicy     uint8
}

// Encode packs p into the LE Set Advertising Parameters command body.
func (p AdvertisingParams) Encode() []byte {
	b := make([]byte, 15)
	binary.LittleEndian.PutUint16(b[0:2], p.IntervalMinUnits)
	binary.LittleEndian.PutUint16(b[2:4], p.IntervalMaxUnits)
	b[4] = p.AdvType
	b[5] = p.OwnAddressType
	b[6] = p.DirectAddrType
	// wire order is least-significant octet first
	for i := 0; i < 6; i++ {
		b[7+i] = p.DirectAddr[5-i]
	}
	b[13] = p.ChannelMap
	b[14] = p.FilterPolicy
	return b
}

// LESetAdvertisingData encodes the LE Set Advertising Data command
// body: a 1-byte length prefix followed by a fixed 31-byte field,
// zero-padded (Core Spec Vol 4, Part E, §7.8.7).
func LESetAdvertisingData(adv []byte) []byte {
	b := make([]byte, 32)
	b[0] = byte(len(adv))
	copy(b[1:], adv)
	return b
}

// LESetScanResponseData encodes the LE Set Scan Response Data command
// body, same layout as advertising data.
func LESetScanResponseData(scanRsp []byte) []byte {
	return LESetAdvertisingData(scanRsp)
}

// LESetAdvertiseEnable encodes the LE Set Advertise Enable command body.
func LESetAdvertiseEnable(enable bool) []byte {
	if enable {
		return []byte{1}
	}
	return []byte{0}
}

// CreateConnectionParams mirrors the LE Create Connection command
// fields.
type CreateConnectionParams struct {
	ScanIntervalUnits  uint16
	ScanWindowUnits    uint16
	UseWhitelist       bool
	PeerAddressType    uint8
	PeerAddress        direct.EUI48
	OwnAddressType     uint8
	IntervalMinUnits   uint16
	IntervalMaxUnits   uint16
	Latency            uint16
	SupervisionTimeout uint16
	MinCELen           uint16
	MaxCELen           uint16
}

// Encode packs p into the LE Create Connection command body.
func (p CreateConnectionParams) Encode() []byte {
	b := make([]byte, 25)
	binary.LittleEndian.PutUint16(b[0:2], p.ScanIntervalUnits)
	binary.LittleEndian.PutUint16(b[2:4], p.ScanWindowUnits)
	if p.UseWhitelist {
		b[4] = 1
	}
	b[5] = p.PeerAddressType
	for i := 0; i < 6; i++ {
		b[6+i] = p.PeerAddress[5-i]
	}
	b[12] = p.OwnAddressType
	binary.LittleEndian.PutUint16(b[13:15], p.IntervalMinUnits)
	binary.LittleEndian.PutUint16(b[15:17], p.IntervalMaxUnits)
	binary.LittleEndian.PutUint16(b[17:19], p.Latency)
	binary.LittleEndian.PutUint16(b[19:21], p.SupervisionTimeout)
	binary.LittleEndian.PutUint16(b[21:23], p.MinCELen)
	binary.LittleEndian.PutUint16(b[23:25], p.MaxCELen)
	return b
}

// DisconnectParams encodes the Disconnect command body.
type DisconnectParams struct {
	ConnectionHandle uint16
	Reason           uint8
}

func (p DisconnectParams) Encode() []byte {
	b := make([]byte, 3)
	binary.LittleEndian.PutUint16(b[0:2], p.ConnectionHandle)
	b[2] = p.Reason
	return b
}

// StartEncryptionParams mirrors the LE Start Encryption command fields
// (Core Spec Vol 4, Part E, §7.8.24). For a Secure Connections or
// legacy-STK link, Rand and EDIV are zero.
type StartEncryptionParams struct {
	ConnectionHandle uint16
	Rand             uint64
	EDIV             uint16
	LTK              [16]byte
}

// Encode packs p into the LE Start Encryption command body.
func (p StartEncryptionParams) Encode() []byte {
	b := make([]byte, 28)
	binary.LittleEndian.PutUint16(b[0:2], p.ConnectionHandle)
	binary.LittleEndian.PutUint64(b[2:10], p.Rand)
	binary.LittleEndian.PutUint16(b[10:12], p.EDIV)
	copy(b[12:28], p.LTK[:])
	return b
}

// LELongTermKeyReply encodes the LE Long Term Key Request Reply command
// body, answering an LE Long Term Key Request event on the responder
// side (Core Spec Vol 4, Part E, §7.8.25).
func LELongTermKeyReply(handle uint16, ltk [16]byte) []byte {
	b := make([]byte, 18)
	binary.LittleEndian.PutUint16(b[0:2], handle)
	copy(b[2:18], ltk[:])
	return b
}

// LELongTermKeyNegReply encodes the negative reply, sent when no key
// matches the request.
func LELongTermKeyNegReply(handle uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b[0:2], handle)
	return b
}
