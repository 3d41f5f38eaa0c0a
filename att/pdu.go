// Package att implements the Attribute Protocol: PDU codec and a
// request/response bearer with strict one-outstanding-request
// ordering: a single in-flight response channel correlates each
// request with its response or error response.
package att

import (
	"encoding/binary"

	direct "github.com/sgothel/direct-bt-go"
)

// Opcode is the ATT PDU method byte (att_gen.go's *Code constants).
type Opcode uint8

const (
	OpErrorResponse             Opcode = 0x01
	OpExchangeMTURequest        Opcode = 0x02
	OpExchangeMTUResponse       Opcode = 0x03
	OpFindInformationRequest    Opcode = 0x04
	OpFindInformationResponse   Opcode = 0x05
	OpFindByTypeValueRequest    Opcode = 0x06
	OpFindByTypeValueResponse  Opcode = 0x07
	OpReadByTypeRequest         Opcode = 0x08
	OpReadByTypeResponse        Opcode = 0x09
	OpReadRequest               Opcode = 0x0A
	OpReadResponse              Opcode = 0x0B
	OpReadBlobRequest           Opcode = 0x0C
	OpReadBlobResponse          Opcode = 0x0D
	OpReadMultipleRequest       Opcode = 0x0E
	OpReadMultipleResponse      Opcode = 0x0F
	OpReadByGroupTypeRequest    Opcode = 0x10
	OpReadByGroupTypeResponse   Opcode = 0x11
	OpWriteRequest              Opcode = 0x12
	OpWriteResponse             Opcode = 0x13
	OpWriteCommand              Opcode = 0x52
	OpSignedWriteCommand        Opcode = 0xD2
	OpPrepareWriteRequest       Opcode = 0x16
	OpPrepareWriteResponse      Opcode = 0x17
	OpExecuteWriteRequest       Opcode = 0x18
	OpExecuteWriteResponse      Opcode = 0x19
	OpHandleValueNotification   Opcode = 0x1B
	OpHandleValueIndication     Opcode = 0x1D
	OpHandleValueConfirmation   Opcode = 0x1E
)

// respOf maps each request opcode to its matching success-response
// opcode (att.go's rspOfReq). Bearer does not consult it: it takes a
// reply to be the request opcode plus one.
var respOf = map[Opcode]Opcode{
	OpExchangeMTURequest:     OpExchangeMTUResponse,
	OpFindInformationRequest: OpFindInformationResponse,
	OpFindByTypeValueRequest: OpFindByTypeValueResponse,
	OpReadByTypeRequest:      OpReadByTypeResponse,
	OpReadRequest:            OpReadResponse,
	OpReadBlobRequest:        OpReadBlobResponse,
	OpReadMultipleRequest:    OpReadMultipleResponse,
	OpReadByGroupTypeRequest: OpReadByGroupTypeResponse,
	OpWriteRequest:           OpWriteResponse,
	OpPrepareWriteRequest:    OpPrepareWriteResponse,
	OpExecuteWriteRequest:    OpExecuteWriteResponse,
	OpHandleValueIndication:  OpHandleValueConfirmation,
}

// ErrorCode is the ATT Error Response error code (Core Spec Vol 3 Part F §3.4.1.1).
type ErrorCode uint8

const (
	ErrInvalidHandle             ErrorCode = 0x01
	ErrReadNotPermitted          ErrorCode = 0x02
	ErrWriteNotPermitted         ErrorCode = 0x03
	ErrInvalidPDU                ErrorCode = 0x04
	ErrInsufficientAuthentication ErrorCode = 0x05
	ErrRequestNotSupported       ErrorCode = 0x06
	ErrInvalidOffset             ErrorCode = 0x07
	ErrInsufficientAuthorization ErrorCode = 0x08
	ErrPrepareQueueFull          ErrorCode = 0x09
	ErrAttributeNotFound         ErrorCode = 0x0A
	ErrAttributeNotLong          ErrorCode = 0x0B
	ErrInsufficientEncryptionKeySize ErrorCode = 0x0C
	ErrInvalidAttributeValueLength ErrorCode = 0x0D
	ErrUnlikelyError             ErrorCode = 0x0E
	ErrInsufficientEncryption    ErrorCode = 0x0F
	ErrUnsupportedGroupType      ErrorCode = 0x10
	ErrInsufficientResources     ErrorCode = 0x11
)

func malformed(what string) error {
	return direct.NewError(direct.KindMalformed, "att: %s truncated", what)
}

// ProtocolError wraps a peer Error Response with the request opcode
// and attribute handle it refers to.
type ProtocolError struct {
	RequestOpcode Opcode
	Handle        uint16
	Code          ErrorCode
}

func (e *ProtocolError) Error() string {
	return direct.NewError(direct.KindProtocolError, "att: request 0x%02x on handle 0x%04x: error 0x%02x", e.RequestOpcode, e.Handle, e.Code).Error()
}

func (e *ProtocolError) Kind() direct.Kind { return direct.KindProtocolError }

// EncodeErrorResponse builds an Error Response PDU (Vol 3 Part F §3.4.1.1).
func EncodeErrorResponse(reqOp Opcode, handle uint16, code ErrorCode) []byte {
	b := make([]byte, 5)
	b[0] = byte(OpErrorResponse)
	b[1] = byte(reqOp)
	binary.LittleEndian.PutUint16(b[2:4], handle)
	b[4] = byte(code)
	return b
}

// DecodeErrorResponse parses an Error Response body into a *ProtocolError.
func DecodeErrorResponse(pdu []byte) (*ProtocolError, error) {
	if len(pdu) != 5 || Opcode(pdu[0]) != OpErrorResponse {
		return nil, malformed("error response")
	}
	return &ProtocolError{
		RequestOpcode: Opcode(pdu[1]),
		Handle:        binary.LittleEndian.Uint16(pdu[2:4]),
		Code:          ErrorCode(pdu[4]),
	}, nil
}

// encodeUUID emits u's wire bytes, little-endian, 2 octets if
// u.Is16Bit(), else the full 16-octet expansion.
func encodeUUID(u direct.UUID) []byte {
	full := u.To128Bit()
	if u.Is16Bit() {
		// The 16-bit value sits at the high end of the little-endian
		// expansion; the low end holds the base UUID.
		return full[12:14]
	}
	return full[:]
}

func decodeUUID(b []byte) (direct.UUID, error) {
	switch len(b) {
	case 2:
		return direct.UUIDFrom16(binary.LittleEndian.Uint16(b)), nil
	case 16:
		var full [16]byte
		copy(full[:], b)
		return direct.UUIDFrom128(full), nil
	default:
		return direct.UUID{}, direct.NewError(direct.KindMalformed, "att: invalid uuid length %d", len(b))
	}
}

// EncodeExchangeMTURequest/Response carry one uint16 MTU (Vol 3 Part F §3.4.2).
func EncodeExchangeMTURequest(mtu uint16) []byte {
	b := make([]byte, 3)
	b[0] = byte(OpExchangeMTURequest)
	binary.LittleEndian.PutUint16(b[1:3], mtu)
	return b
}

func DecodeExchangeMTURequest(pdu []byte) (uint16, error) {
	if len(pdu) != 3 {
		return 0, malformed("exchange mtu request")
	}
	return binary.LittleEndian.Uint16(pdu[1:3]), nil
}

func EncodeExchangeMTUResponse(mtu uint16) []byte {
	b := make([]byte, 3)
	b[0] = byte(OpExchangeMTUResponse)
	binary.LittleEndian.PutUint16(b[1:3], mtu)
	return b
}

func DecodeExchangeMTUResponse(pdu []byte) (uint16, error) {
	if len(pdu) != 3 {
		return 0, malformed("exchange mtu response")
	}
	return binary.LittleEndian.Uint16(pdu[1:3]), nil
}

// EncodeReadByNTypeReq builds either a Read By Type Request (group =
// false, opcode 0x08) or a Read By Group Type Request (group = true,
// opcode 0x10); the two requests share this exact wire shape (Vol 3
// Part F §3.4.4.1, §3.4.4.9).
func EncodeReadByNTypeReq(group bool, start, end uint16, uuid direct.UUID) []byte {
	uuidBytes := encodeUUID(uuid)
	b := make([]byte, 5+len(uuidBytes))
	if group {
		b[0] = byte(OpReadByGroupTypeRequest)
	} else {
		b[0] = byte(OpReadByTypeRequest)
	}
	binary.LittleEndian.PutUint16(b[1:3], start)
	binary.LittleEndian.PutUint16(b[3:5], end)
	copy(b[5:], uuidBytes)
	return b
}

type ReadByNTypeReq struct {
	Group      bool
	Start, End uint16
	UUID       direct.UUID
}

func DecodeReadByNTypeReq(pdu []byte) (ReadByNTypeReq, error) {
	if len(pdu) != 7 && len(pdu) != 21 {
		return ReadByNTypeReq{}, malformed("read by [group] type request")
	}
	op := Opcode(pdu[0])
	if op != OpReadByTypeRequest && op != OpReadByGroupTypeRequest {
		return ReadByNTypeReq{}, direct.NewError(direct.KindMalformed, "att: opcode 0x%02x is not a read-by-[group-]type request", op)
	}
	uuid, err := decodeUUID(pdu[5:])
	if err != nil {
		return ReadByNTypeReq{}, err
	}
	return ReadByNTypeReq{
		Group: op == OpReadByGroupTypeRequest,
		Start: binary.LittleEndian.Uint16(pdu[1:3]),
		End:   binary.LittleEndian.Uint16(pdu[3:5]),
		UUID:  uuid,
	}, nil
}

// AttributeData is one (handle[, group end handle], value) entry of a
// Read By Type / Read By Group Type response.
type AttributeData struct {
	Handle      uint16
	GroupEnd    uint16 // only meaningful for Read By Group Type
	Value       []byte
}

// EncodeReadByTypeResponse packs same-length attribute data entries
// (Vol 3 Part F §3.4.4.2): {handle:2, value:N} repeated.
func EncodeReadByTypeResponse(entries []AttributeData) ([]byte, error) {
	if len(entries) == 0 {
		return nil, direct.NewError(direct.KindMalformed, "att: read by type response needs at least one entry")
	}
	n := len(entries[0].Value)
	stride := 2 + n
	b := make([]byte, 2+stride*len(entries))
	b[0] = byte(OpReadByTypeResponse)
	b[1] = byte(stride)
	off := 2
	for _, e := range entries {
		if len(e.Value) != n {
			return nil, direct.NewError(direct.KindMalformed, "att: read by type response entries must share one length")
		}
		binary.LittleEndian.PutUint16(b[off:off+2], e.Handle)
		copy(b[off+2:off+stride], e.Value)
		off += stride
	}
	return b, nil
}

func DecodeReadByTypeResponse(pdu []byte) ([]AttributeData, error) {
	if len(pdu) < 4 || Opcode(pdu[0]) != OpReadByTypeResponse {
		return nil, malformed("read by type response")
	}
	stride := int(pdu[1])
	if stride < 3 || (len(pdu)-2)%stride != 0 {
		return nil, malformed("read by type response")
	}
	var out []AttributeData
	for off := 2; off < len(pdu); off += stride {
		out = append(out, AttributeData{
			Handle: binary.LittleEndian.Uint16(pdu[off : off+2]),
			Value:  append([]byte(nil), pdu[off+2:off+stride]...),
		})
	}
	return out, nil
}

// EncodeReadByGroupTypeResponse packs {handle:2, group_end:2, value:N}
// entries (Vol 3 Part F §3.4.4.10).
func EncodeReadByGroupTypeResponse(entries []AttributeData) ([]byte, error) {
	if len(entries) == 0 {
		return nil, direct.NewError(direct.KindMalformed, "att: read by group type response needs at least one entry")
	}
	n := len(entries[0].Value)
	stride := 4 + n
	b := make([]byte, 2+stride*len(entries))
	b[0] = byte(OpReadByGroupTypeResponse)
	b[1] = byte(stride)
	off := 2
	for _, e := range entries {
		if len(e.Value) != n {
			return nil, direct.NewError(direct.KindMalformed, "att: read by group type response entries must share one length")
		}
		binary.LittleEndian.PutUint16(b[off:off+2], e.Handle)
		binary.LittleEndian.PutUint16(b[off+2:off+4], e.GroupEnd)
		copy(b[off+4:off+stride], e.Value)
		off += stride
	}
	return b, nil
}

func DecodeReadByGroupTypeResponse(pdu []byte) ([]AttributeData, error) {
	if len(pdu) < 6 || Opcode(pdu[0]) != OpReadByGroupTypeResponse {
		return nil, malformed("read by group type response")
	}
	stride := int(pdu[1])
	if stride < 5 || (len(pdu)-2)%stride != 0 {
		return nil, malformed("read by group type response")
	}
	var out []AttributeData
	for off := 2; off < len(pdu); off += stride {
		out = append(out, AttributeData{
			Handle:   binary.LittleEndian.Uint16(pdu[off : off+2]),
			GroupEnd: binary.LittleEndian.Uint16(pdu[off+2 : off+4]),
			Value:    append([]byte(nil), pdu[off+4:off+stride]...),
		})
	}
	return out, nil
}

// EncodeFindInformationRequest (Vol 3 Part F §3.4.3.1).
func EncodeFindInformationRequest(start, end uint16) []byte {
	b := make([]byte, 5)
	b[0] = byte(OpFindInformationRequest)
	binary.LittleEndian.PutUint16(b[1:3], start)
	binary.LittleEndian.PutUint16(b[3:5], end)
	return b
}

func DecodeFindInformationRequest(pdu []byte) (start, end uint16, err error) {
	if len(pdu) != 5 {
		return 0, 0, malformed("find information request")
	}
	return binary.LittleEndian.Uint16(pdu[1:3]), binary.LittleEndian.Uint16(pdu[3:5]), nil
}

// HandleUUIDPair is one entry of a Find Information Response.
type HandleUUIDPair struct {
	Handle uint16
	UUID   direct.UUID
}

// EncodeFindInformationResponse packs a uniform-width handle/UUID list
// (Vol 3 Part F §3.4.3.2); format byte 1 = 16-bit UUIDs, 2 = 128-bit.
func EncodeFindInformationResponse(entries []HandleUUIDPair) ([]byte, error) {
	if len(entries) == 0 {
		return nil, direct.NewError(direct.KindMalformed, "att: find information response needs at least one entry")
	}
	all16 := true
	for _, e := range entries {
		if !e.UUID.Is16Bit() {
			all16 = false
		}
	}
	width := 16
	format := byte(2)
	if all16 {
		width = 2
		format = 1
	}
	b := make([]byte, 2+(2+width)*len(entries))
	b[0] = byte(OpFindInformationResponse)
	b[1] = format
	off := 2
	for _, e := range entries {
		binary.LittleEndian.PutUint16(b[off:off+2], e.Handle)
		u := encodeUUID(e.UUID)
		if width == 16 && len(u) == 2 {
			full := e.UUID.To128Bit()
			u = full[:]
		}
		copy(b[off+2:off+2+width], u)
		off += 2 + width
	}
	return b, nil
}

func DecodeFindInformationResponse(pdu []byte) ([]HandleUUIDPair, error) {
	if len(pdu) < 2 || Opcode(pdu[0]) != OpFindInformationResponse {
		return nil, malformed("find information response")
	}
	var width int
	switch pdu[1] {
	case 1:
		width = 2
	case 2:
		width = 16
	default:
		return nil, direct.NewError(direct.KindMalformed, "att: unknown find information format %d", pdu[1])
	}
	stride := 2 + width
	if (len(pdu)-2)%stride != 0 {
		return nil, malformed("find information response")
	}
	var out []HandleUUIDPair
	for off := 2; off < len(pdu); off += stride {
		u, err := decodeUUID(pdu[off+2 : off+stride])
		if err != nil {
			return nil, err
		}
		out = append(out, HandleUUIDPair{Handle: binary.LittleEndian.Uint16(pdu[off : off+2]), UUID: u})
	}
	return out, nil
}

// EncodeReadRequest/Response (Vol 3 Part F §3.4.4.3).
func EncodeReadRequest(handle uint16) []byte {
	b := make([]byte, 3)
	b[0] = byte(OpReadRequest)
	binary.LittleEndian.PutUint16(b[1:3], handle)
	return b
}

func DecodeReadRequest(pdu []byte) (uint16, error) {
	if len(pdu) != 3 {
		return 0, malformed("read request")
	}
	return binary.LittleEndian.Uint16(pdu[1:3]), nil
}

func EncodeReadResponse(value []byte) []byte {
	return append([]byte{byte(OpReadResponse)}, value...)
}

func DecodeReadResponse(pdu []byte) ([]byte, error) {
	if len(pdu) < 1 || Opcode(pdu[0]) != OpReadResponse {
		return nil, malformed("read response")
	}
	return pdu[1:], nil
}

// EncodeReadBlobRequest/Response (Vol 3 Part F §3.4.4.5).
func EncodeReadBlobRequest(handle, offset uint16) []byte {
	b := make([]byte, 5)
	b[0] = byte(OpReadBlobRequest)
	binary.LittleEndian.PutUint16(b[1:3], handle)
	binary.LittleEndian.PutUint16(b[3:5], offset)
	return b
}

func DecodeReadBlobRequest(pdu []byte) (handle, offset uint16, err error) {
	if len(pdu) != 5 {
		return 0, 0, malformed("read blob request")
	}
	return binary.LittleEndian.Uint16(pdu[1:3]), binary.LittleEndian.Uint16(pdu[3:5]), nil
}

func EncodeReadBlobResponse(part []byte) []byte {
	return append([]byte{byte(OpReadBlobResponse)}, part...)
}

func DecodeReadBlobResponse(pdu []byte) ([]byte, error) {
	if len(pdu) < 1 || Opcode(pdu[0]) != OpReadBlobResponse {
		return nil, malformed("read blob response")
	}
	return pdu[1:], nil
}

// EncodeWriteRequest/Response/Command (Vol 3 Part F §3.4.5).
func encodeWrite(op Opcode, handle uint16, value []byte) []byte {
	b := make([]byte, 3+len(value))
	b[0] = byte(op)
	binary.LittleEndian.PutUint16(b[1:3], handle)
	copy(b[3:], value)
	return b
}

func EncodeWriteRequest(handle uint16, value []byte) []byte { return encodeWrite(OpWriteRequest, handle, value) }
func EncodeWriteCommand(handle uint16, value []byte) []byte { return encodeWrite(OpWriteCommand, handle, value) }

func decodeWrite(pdu []byte, op Opcode, what string) (uint16, []byte, error) {
	if len(pdu) < 3 || Opcode(pdu[0]) != op {
		return 0, nil, malformed(what)
	}
	return binary.LittleEndian.Uint16(pdu[1:3]), pdu[3:], nil
}

func DecodeWriteRequest(pdu []byte) (uint16, []byte, error) {
	return decodeWrite(pdu, OpWriteRequest, "write request")
}

func DecodeWriteCommand(pdu []byte) (uint16, []byte, error) {
	return decodeWrite(pdu, OpWriteCommand, "write command")
}

func EncodeWriteResponse() []byte { return []byte{byte(OpWriteResponse)} }

func DecodeWriteResponse(pdu []byte) error {
	if len(pdu) != 1 || Opcode(pdu[0]) != OpWriteResponse {
		return malformed("write response")
	}
	return nil
}

// EncodeSignedWriteCommand appends a 12-byte CSRK signature after the
// attribute value (Vol 3 Part F §3.4.5.4).
func EncodeSignedWriteCommand(handle uint16, value []byte, signature [12]byte) []byte {
	b := make([]byte, 3+len(value)+12)
	b[0] = byte(OpSignedWriteCommand)
	binary.LittleEndian.PutUint16(b[1:3], handle)
	copy(b[3:3+len(value)], value)
	copy(b[3+len(value):], signature[:])
	return b
}

func DecodeSignedWriteCommand(pdu []byte) (handle uint16, value []byte, signature [12]byte, err error) {
	if len(pdu) < 15 || Opcode(pdu[0]) != OpSignedWriteCommand {
		return 0, nil, signature, malformed("signed write command")
	}
	handle = binary.LittleEndian.Uint16(pdu[1:3])
	value = pdu[3 : len(pdu)-12]
	copy(signature[:], pdu[len(pdu)-12:])
	return handle, value, signature, nil
}

// EncodeHandleValueNotification/Indication (Vol 3 Part F §3.4.7).
func EncodeHandleValueNotification(handle uint16, value []byte) []byte {
	return encodeWrite(OpHandleValueNotification, handle, value)
}

func EncodeHandleValueIndication(handle uint16, value []byte) []byte {
	return encodeWrite(OpHandleValueIndication, handle, value)
}

func DecodeHandleValue(pdu []byte) (op Opcode, handle uint16, value []byte, err error) {
	if len(pdu) < 3 {
		return 0, 0, nil, malformed("handle value notification/indication")
	}
	op = Opcode(pdu[0])
	if op != OpHandleValueNotification && op != OpHandleValueIndication {
		return 0, 0, nil, direct.NewError(direct.KindMalformed, "att: opcode 0x%02x is not a handle value notification/indication", op)
	}
	return op, binary.LittleEndian.Uint16(pdu[1:3]), pdu[3:], nil
}

func EncodeHandleValueConfirmation() []byte { return []byte{byte(OpHandleValueConfirmation)} }
