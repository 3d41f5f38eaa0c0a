package hci

import (
	"encoding/binary"

	direct "github.com/sgothel/direct-bt-go"
)

// LEConnectionCompleteEvent is the decoded LE Meta sub-event 0x01
// body.
type LEConnectionCompleteEvent struct {
	Status               Status
	ConnectionHandle      uint16
	Role                  uint8
	PeerAddressType       uint8
	PeerAddress           direct.EUI48
	ConnInterval          uint16
	ConnLatency           uint16
	SupervisionTimeout    uint16
	MasterClockAccuracy   uint8
}

// eui48FromWire converts the wire's least-significant-octet-first
// address layout into the most-significant-first form EUI48 stores.
func eui48FromWire(b []byte) direct.EUI48 {
	var e direct.EUI48
	for i := 0; i < 6; i++ {
		e[i] = b[5-i]
	}
	return e
}

// DecodeLEConnectionComplete parses the sub-event body (the bytes
// after the sub-event code) of LE Meta sub-event 0x01.
func DecodeLEConnectionComplete(b []byte) (*LEConnectionCompleteEvent, error) {
	if len(b) < 18 {
		return nil, direct.NewError(direct.KindMalformed, "hci: le connection complete truncated")
	}
	return &LEConnectionCompleteEvent{
		Status:             Status(b[0]),
		ConnectionHandle:   binary.LittleEndian.Uint16(b[1:3]),
		Role:               b[3],
		PeerAddressType:    b[10],
		PeerAddress:        eui48FromWire(b[4:10]),
		ConnInterval:       binary.LittleEndian.Uint16(b[11:13]),
		ConnLatency:        binary.LittleEndian.Uint16(b[13:15]),
		SupervisionTimeout: binary.LittleEndian.Uint16(b[15:17]),
		MasterClockAccuracy: b[17],
	}, nil
}

// AdvertisingEventType names the LE advertising report event type
// byte (Core Spec Vol 4, Part E, §7.7.65.2).
type AdvertisingEventType uint8

const (
	AdvIndEventType      AdvertisingEventType = 0x00
	AdvDirectIndEventType AdvertisingEventType = 0x01
	AdvScanIndEventType  AdvertisingEventType = 0x02
	AdvNonconnIndEventType AdvertisingEventType = 0x03
	ScanRspEventType     AdvertisingEventType = 0x04
)

// AdvertisingReport is one decoded report from an LE Meta sub-event
// 0x02 (possibly one of several packed into a single HCI event).
type AdvertisingReport struct {
	EventType   AdvertisingEventType
	AddressType uint8
	Address     direct.EUI48
	Data        []byte
	RSSI        int8
}

// DecodeLEAdvertisingReports parses every report packed into one LE
// Meta sub-event 0x02 body.
func DecodeLEAdvertisingReports(b []byte) ([]AdvertisingReport, error) {
	if len(b) < 1 {
		return nil, direct.NewError(direct.KindMalformed, "hci: le advertising report truncated")
	}
	numReports := int(b[0])
	// Layout: numReports x event_type(1), then numReports x addr_type(1),
	// then numReports x address(6), then numReports x data_len(1) + data,
	// then numReports x rssi(1).
	off := 1
	if off+numReports > len(b) {
		return nil, direct.NewError(direct.KindMalformed, "hci: advertising report event-type array truncated")
	}
	eventTypes := b[off : off+numReports]
	off += numReports
	if off+numReports > len(b) {
		return nil, direct.NewError(direct.KindMalformed, "hci: advertising report addr-type array truncated")
	}
	addrTypes := b[off : off+numReports]
	off += numReports
	if off+6*numReports > len(b) {
		return nil, direct.NewError(direct.KindMalformed, "hci: advertising report address array truncated")
	}
	addrs := make([]direct.EUI48, numReports)
	for i := 0; i < numReports; i++ {
		addrs[i] = eui48FromWire(b[off+6*i : off+6*i+6])
	}
	off += 6 * numReports

	dataLens := make([]int, numReports)
	for i := 0; i < numReports; i++ {
		if off >= len(b) {
			return nil, direct.NewError(direct.KindMalformed, "hci: advertising report data-len truncated")
		}
		dataLens[i] = int(b[off])
		off++
	}
	datas := make([][]byte, numReports)
	for i := 0; i < numReports; i++ {
		if off+dataLens[i] > len(b) {
			return nil, direct.NewError(direct.KindMalformed, "hci: advertising report data truncated")
		}
		datas[i] = b[off : off+dataLens[i]]
		off += dataLens[i]
	}

	reports := make([]AdvertisingReport, numReports)
	for i := 0; i < numReports; i++ {
		if off >= len(b) {
			return nil, direct.NewError(direct.KindMalformed, "hci: advertising report rssi truncated")
		}
		reports[i] = AdvertisingReport{
			EventType:   AdvertisingEventType(eventTypes[i]),
			AddressType: addrTypes[i],
			Address:     addrs[i],
			Data:        datas[i],
			RSSI:        int8(b[off]),
		}
		off++
	}
	return reports, nil
}

// DisconnectionCompleteEvent is the decoded standard event 0x05 body.
type DisconnectionCompleteEvent struct {
	Status           Status
	ConnectionHandle uint16
	Reason           Status
}

func DecodeDisconnectionComplete(b []byte) (*DisconnectionCompleteEvent, error) {
	if len(b) < 4 {
		return nil, direct.NewError(direct.KindMalformed, "hci: disconnection complete truncated")
	}
	return &DisconnectionCompleteEvent{
		Status:           Status(b[0]),
		ConnectionHandle: binary.LittleEndian.Uint16(b[1:3]),
		Reason:           Status(b[3]),
	}, nil
}

// LELongTermKeyRequestEvent is the decoded LE Meta sub-event 0x05
// body: the controller asks the host for the key matching (Rand, EDIV)
// before enabling encryption on the handle. Rand and EDIV are zero for
// an STK or a Secure Connections LTK.
type LELongTermKeyRequestEvent struct {
	ConnectionHandle uint16
	Rand             uint64
	EDIV             uint16
}

func DecodeLELongTermKeyRequest(b []byte) (*LELongTermKeyRequestEvent, error) {
	if len(b) < 12 {
		return nil, direct.NewError(direct.KindMalformed, "hci: le long term key request truncated")
	}
	return &LELongTermKeyRequestEvent{
		ConnectionHandle: binary.LittleEndian.Uint16(b[0:2]),
		Rand:             binary.LittleEndian.Uint64(b[2:10]),
		EDIV:             binary.LittleEndian.Uint16(b[10:12]),
	}, nil
}

// EncryptionChangeEvent is the decoded standard event 0x08 body.
type EncryptionChangeEvent struct {
	Status           Status
	ConnectionHandle uint16
	Enabled          bool
}

func DecodeEncryptionChange(b []byte) (*EncryptionChangeEvent, error) {
	if len(b) < 4 {
		return nil, direct.NewError(direct.KindMalformed, "hci: encryption change truncated")
	}
	return &EncryptionChangeEvent{
		Status:           Status(b[0]),
		ConnectionHandle: binary.LittleEndian.Uint16(b[1:3]),
		Enabled:          b[3] != 0,
	}, nil
}
