package l2cap

import (
	"encoding/binary"

	direct "github.com/sgothel/direct-bt-go"
)

// Signaling command codes used on CIDSignalingBREDR (0x0001) and
// CIDSignalingLE (0x0005) (Core Spec Vol 3, Part A, §4).
const (
	SigCommandReject              uint8 = 0x01
	SigConnectionRequest          uint8 = 0x02
	SigConnectionResponse         uint8 = 0x03
	SigConfigureRequest           uint8 = 0x04
	SigConfigureResponse          uint8 = 0x05
	SigDisconnectionRequest       uint8 = 0x06
	SigDisconnectionResponse      uint8 = 0x07
	SigConnParamUpdateRequest     uint8 = 0x12
	SigConnParamUpdateResponse    uint8 = 0x13
)

// SignalingHeader is the common {code, identifier, length} prefix of
// every L2CAP signaling command.
type SignalingHeader struct {
	Code   uint8
	ID     uint8
	Length uint16
}

// EncodeSignaling packs a signaling command's header and body into
// one PDU, the payload Channel.Send writes on a signaling CID.
func EncodeSignaling(code, id uint8, body []byte) []byte {
	b := make([]byte, 4+len(body))
	b[0], b[1] = code, id
	binary.LittleEndian.PutUint16(b[2:4], uint16(len(body)))
	copy(b[4:], body)
	return b
}

// DecodeSignaling splits a signaling PDU into its header and body,
// validating that the declared length matches the buffer.
func DecodeSignaling(b []byte) (SignalingHeader, []byte, error) {
	if len(b) < 4 {
		return SignalingHeader{}, nil, direct.NewError(direct.KindMalformed, "l2cap: signaling header truncated")
	}
	hdr := SignalingHeader{Code: b[0], ID: b[1], Length: binary.LittleEndian.Uint16(b[2:4])}
	body := b[4:]
	if int(hdr.Length) != len(body) {
		return SignalingHeader{}, nil, direct.NewError(direct.KindMalformed, "l2cap: signaling length %d does not match buffer %d", hdr.Length, len(body))
	}
	return hdr, body, nil
}

// DisconnectionRequest/Response carry the local and remote CIDs being
// torn down.
type DisconnectionRequest struct {
	DestinationCID uint16
	SourceCID      uint16
}

func (r DisconnectionRequest) Encode() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint16(b[0:2], r.DestinationCID)
	binary.LittleEndian.PutUint16(b[2:4], r.SourceCID)
	return b
}

func DecodeDisconnectionRequest(b []byte) (DisconnectionRequest, error) {
	if len(b) < 4 {
		return DisconnectionRequest{}, direct.NewError(direct.KindMalformed, "l2cap: disconnection request truncated")
	}
	return DisconnectionRequest{
		DestinationCID: binary.LittleEndian.Uint16(b[0:2]),
		SourceCID:      binary.LittleEndian.Uint16(b[2:4]),
	}, nil
}

// ConnParamUpdateRequest is the LE signaling command a peripheral uses
// to propose new connection parameters; the adapter owns the
// connection lifecycle and encodes into this wire shape.
type ConnParamUpdateRequest struct {
	IntervalMin       uint16
	IntervalMax       uint16
	SlaveLatency      uint16
	TimeoutMultiplier uint16
}

func (r ConnParamUpdateRequest) Encode() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint16(b[0:2], r.IntervalMin)
	binary.LittleEndian.PutUint16(b[2:4], r.IntervalMax)
	binary.LittleEndian.PutUint16(b[4:6], r.SlaveLatency)
	binary.LittleEndian.PutUint16(b[6:8], r.TimeoutMultiplier)
	return b
}

func DecodeConnParamUpdateRequest(b []byte) (ConnParamUpdateRequest, error) {
	if len(b) < 8 {
		return ConnParamUpdateRequest{}, direct.NewError(direct.KindMalformed, "l2cap: conn param update request truncated")
	}
	return ConnParamUpdateRequest{
		IntervalMin:       binary.LittleEndian.Uint16(b[0:2]),
		IntervalMax:       binary.LittleEndian.Uint16(b[2:4]),
		SlaveLatency:      binary.LittleEndian.Uint16(b[4:6]),
		TimeoutMultiplier: binary.LittleEndian.Uint16(b[6:8]),
	}, nil
}

// ConnParamUpdateResult codes for ConnParamUpdateResponse.
const (
	ConnParamAccepted uint16 = 0x0000
	ConnParamRejected uint16 = 0x0001
)
