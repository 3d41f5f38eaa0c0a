package gatt

import (
	"encoding/binary"

	direct "github.com/sgothel/direct-bt-go"

	"github.com/sgothel/direct-bt-go/att"
)

// RemoteDescriptor is one descriptor discovered on a peer server.
type RemoteDescriptor struct {
	UUID   direct.UUID
	Handle uint16
}

// RemoteCharacteristic is one characteristic discovered on a peer
// server, with its handle range (Handle..EndHandle) bounding its
// descriptor discovery.
type RemoteCharacteristic struct {
	UUID        direct.UUID
	Property    Property
	Handle      uint16
	ValueHandle uint16
	EndHandle   uint16

	Descriptors []*RemoteDescriptor
	CCCD        *RemoteDescriptor
}

// RemoteService is one primary or secondary service discovered on a
// peer server.
type RemoteService struct {
	UUID      direct.UUID
	Handle    uint16
	EndHandle uint16

	Characteristics []*RemoteCharacteristic
}

// DiscoverServices runs READ_BY_GROUP_TYPE over the 0x2800 UUID
// across the full handle range, stitching partial responses by
// ascending handle.
func (c *Client) DiscoverServices() ([]*RemoteService, error) {
	var out []*RemoteService
	start := uint16(0x0001)
	for {
		req := att.EncodeReadByNTypeReq(true, start, 0xFFFF, PrimaryServiceUUID)
		rsp, err := c.bearer.Request(req)
		if err != nil {
			if isAttributeNotFound(err) {
				break
			}
			return nil, err
		}
		entries, err := att.DecodeReadByGroupTypeResponse(rsp)
		if err != nil {
			return nil, err
		}
		var last uint16
		for i, e := range entries {
			if i > 0 && e.Handle <= last {
				return nil, direct.NewError(direct.KindProtocolError, "gatt: overlapping service discovery range at handle 0x%04x", e.Handle)
			}
			last = e.GroupEnd
			uuid, err := decodeServiceUUID(e.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, &RemoteService{UUID: uuid, Handle: e.Handle, EndHandle: e.GroupEnd})
		}
		if last == 0xFFFF || len(entries) == 0 {
			break
		}
		start = last + 1
	}
	return out, nil
}

func decodeServiceUUID(b []byte) (direct.UUID, error) {
	switch len(b) {
	case 2:
		return direct.UUIDFrom16(binary.LittleEndian.Uint16(b)), nil
	case 16:
		var full [16]byte
		copy(full[:], b)
		return direct.UUIDFrom128(full), nil
	default:
		return direct.UUID{}, direct.NewError(direct.KindMalformed, "gatt: invalid service uuid length %d", len(b))
	}
}

// DiscoverCharacteristics runs READ_BY_TYPE over s's handle range for
// the 0x2803 characteristic declaration UUID, deriving each
// characteristic's EndHandle from the next declaration's handle
// (client.go's DiscoverCharacteristics).
func (c *Client) DiscoverCharacteristics(s *RemoteService) ([]*RemoteCharacteristic, error) {
	start := s.Handle
	var chars []*RemoteCharacteristic
	for start <= s.EndHandle {
		req := att.EncodeReadByNTypeReq(false, start, s.EndHandle, CharacteristicUUID)
		rsp, err := c.bearer.Request(req)
		if err != nil {
			if isAttributeNotFound(err) {
				break
			}
			return nil, err
		}
		entries, err := att.DecodeReadByTypeResponse(rsp)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			break
		}
		var last uint16
		for _, e := range entries {
			if len(e.Value) < 3 {
				return nil, direct.NewError(direct.KindMalformed, "gatt: short characteristic declaration")
			}
			prop := Property(e.Value[0])
			vh := binary.LittleEndian.Uint16(e.Value[1:3])
			uuid, err := decodeServiceUUID(e.Value[3:])
			if err != nil {
				return nil, err
			}
			rc := &RemoteCharacteristic{UUID: uuid, Property: prop, Handle: e.Handle, ValueHandle: vh, EndHandle: s.EndHandle}
			if n := len(chars); n > 0 {
				chars[n-1].EndHandle = rc.Handle - 1
			}
			chars = append(chars, rc)
			last = vh
		}
		start = last + 1
	}
	s.Characteristics = chars
	return chars, nil
}

// DiscoverDescriptors runs FIND_INFORMATION over c's post-value
// handle range (client.go's DiscoverDescriptors), tagging the CCCD
// when found.
func (c *Client) DiscoverDescriptors(rc *RemoteCharacteristic) ([]*RemoteDescriptor, error) {
	start := rc.ValueHandle + 1
	var descs []*RemoteDescriptor
	for start <= rc.EndHandle {
		req := att.EncodeFindInformationRequest(start, rc.EndHandle)
		rsp, err := c.bearer.Request(req)
		if err != nil {
			if isAttributeNotFound(err) {
				break
			}
			return nil, err
		}
		pairs, err := att.DecodeFindInformationResponse(rsp)
		if err != nil {
			return nil, err
		}
		if len(pairs) == 0 {
			break
		}
		var last uint16
		for _, p := range pairs {
			d := &RemoteDescriptor{UUID: p.UUID, Handle: p.Handle}
			descs = append(descs, d)
			if p.UUID.Equal(ClientCharacteristicConfigUUID) {
				rc.CCCD = d
			}
			last = p.Handle
		}
		start = last + 1
	}
	rc.Descriptors = descs
	return descs, nil
}

// DiscoverAll runs the full services -> characteristics ->
// descriptors hierarchy (client.go's DiscoverProfile).
func (c *Client) DiscoverAll() ([]*RemoteService, error) {
	services, err := c.DiscoverServices()
	if err != nil {
		return nil, err
	}
	for _, s := range services {
		chars, err := c.DiscoverCharacteristics(s)
		if err != nil {
			return nil, err
		}
		for _, rc := range chars {
			if _, err := c.DiscoverDescriptors(rc); err != nil {
				return nil, err
			}
		}
	}
	c.mu.Lock()
	c.services = services
	c.mu.Unlock()
	return services, nil
}

func isAttributeNotFound(err error) bool {
	pe, ok := err.(*att.ProtocolError)
	return ok && pe.Code == att.ErrAttributeNotFound
}
