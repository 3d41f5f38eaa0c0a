package gatt

import (
	"sync"

	"github.com/sgothel/direct-bt-go/att"
)

// sender is the minimal surface Server needs to push PDUs; satisfied
// directly by the transport channel (*l2cap.Channel), used for
// responses and notifications alike (att has no notion of "respond to
// this inbound PDU", that correlation lives here).
type sender interface {
	Send(payload []byte) error
}

// Server answers ATT requests for one connection against a shared
// Database, synchronously and per-attribute-locked. One Server
// exists per connection; the Database
// itself is shared across connections.
type Server struct {
	db   *Database
	ch   sender
	mtu  uint16

	mu   sync.Mutex
	cccs map[uint16]uint16 // characteristic value handle -> subscription bits
	stop map[uint16]chan struct{}
}

// NewServer wires a Server to answer requests arriving on ch for db.
func NewServer(db *Database, ch sender, mtu uint16) *Server {
	if mtu == 0 {
		mtu = 23
	}
	return &Server{db: db, ch: ch, mtu: mtu, cccs: make(map[uint16]uint16), stop: make(map[uint16]chan struct{})}
}

// HandleRequest decodes and answers one inbound ATT request PDU,
// sending the response (or Error Response) on s.ch. Notifications and
// indications are never routed here; they originate from Notify/Indicate.
func (s *Server) HandleRequest(pdu []byte) {
	if len(pdu) == 0 {
		return
	}
	op := att.Opcode(pdu[0])
	switch op {
	case att.OpExchangeMTURequest:
		s.handleExchangeMTU(pdu)
	case att.OpReadByGroupTypeRequest, att.OpReadByTypeRequest:
		s.handleReadByNType(pdu)
	case att.OpFindInformationRequest:
		s.handleFindInformation(pdu)
	case att.OpReadRequest:
		s.handleRead(pdu)
	case att.OpReadBlobRequest:
		s.handleReadBlob(pdu)
	case att.OpWriteRequest:
		s.handleWrite(pdu, true)
	case att.OpWriteCommand:
		s.handleWrite(pdu, false)
	default:
		s.errorResponse(op, 0, att.ErrRequestNotSupported)
	}
}

func (s *Server) errorResponse(op att.Opcode, handle uint16, code att.ErrorCode) {
	s.ch.Send(att.EncodeErrorResponse(op, handle, code))
}

func (s *Server) handleExchangeMTU(pdu []byte) {
	mtu, err := att.DecodeExchangeMTURequest(pdu)
	if err != nil {
		s.errorResponse(att.OpExchangeMTURequest, 0, att.ErrInvalidPDU)
		return
	}
	s.mu.Lock()
	if mtu < s.mtu {
		s.mtu = mtu
	}
	reply := s.mtu
	s.mu.Unlock()
	s.ch.Send(att.EncodeExchangeMTUResponse(reply))
}

func (s *Server) handleReadByNType(pdu []byte) {
	req, err := att.DecodeReadByNTypeReq(pdu)
	if err != nil {
		s.errorResponse(att.Opcode(pdu[0]), 0, att.ErrInvalidPDU)
		return
	}
	s.db.mu.RLock()
	rows := s.db.subrange(req.Start, req.End)
	s.db.mu.RUnlock()

	// Group-type (service) rows carry the service UUID as value with
	// an end-handle; type rows (characteristic declarations) carry
	// their prebuilt declaration value directly.
	var entries []att.AttributeData
	for _, a := range rows {
		if !a.typ.Equal(req.UUID) {
			continue
		}
		a.mu.RLock()
		v := append([]byte(nil), a.value...)
		end := a.endh
		a.mu.RUnlock()
		entries = append(entries, att.AttributeData{Handle: a.handle, GroupEnd: end, Value: v})
	}
	if len(entries) == 0 {
		s.errorResponse(att.Opcode(pdu[0]), req.Start, att.ErrAttributeNotFound)
		return
	}
	var rsp []byte
	if req.Group {
		rsp, err = att.EncodeReadByGroupTypeResponse(trimToSharedWidth(entries))
	} else {
		rsp, err = att.EncodeReadByTypeResponse(trimToSharedWidth(entries))
	}
	if err != nil {
		s.errorResponse(att.Opcode(pdu[0]), req.Start, att.ErrInvalidAttributeValueLength)
		return
	}
	s.ch.Send(rsp)
}

// trimToSharedWidth keeps only the leading run of entries whose value
// shares the first entry's length, mirroring how a real ATT server
// fills one response PDU at a time (Vol 3 Part F §3.4.4.2/.10 require
// uniform-length entries per response).
func trimToSharedWidth(entries []att.AttributeData) []att.AttributeData {
	if len(entries) == 0 {
		return entries
	}
	n := len(entries[0].Value)
	for i, e := range entries {
		if len(e.Value) != n {
			return entries[:i]
		}
	}
	return entries
}

func (s *Server) handleFindInformation(pdu []byte) {
	start, end, err := att.DecodeFindInformationRequest(pdu)
	if err != nil {
		s.errorResponse(att.OpFindInformationRequest, 0, att.ErrInvalidPDU)
		return
	}
	s.db.mu.RLock()
	rows := s.db.subrange(start, end)
	s.db.mu.RUnlock()
	if len(rows) == 0 {
		s.errorResponse(att.OpFindInformationRequest, start, att.ErrAttributeNotFound)
		return
	}
	var pairs []att.HandleUUIDPair
	for _, a := range rows {
		pairs = append(pairs, att.HandleUUIDPair{Handle: a.handle, UUID: a.typ})
	}
	rsp, err := att.EncodeFindInformationResponse(pairs)
	if err != nil {
		s.errorResponse(att.OpFindInformationRequest, start, att.ErrAttributeNotFound)
		return
	}
	s.ch.Send(rsp)
}

func (s *Server) lookup(handle uint16) (*attr, bool) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return s.db.at(handle)
}

func (s *Server) handleRead(pdu []byte) {
	handle, err := att.DecodeReadRequest(pdu)
	if err != nil {
		s.errorResponse(att.OpReadRequest, 0, att.ErrInvalidPDU)
		return
	}
	s.readAt(att.OpReadRequest, handle, 0, func(value []byte) {
		s.ch.Send(att.EncodeReadResponse(value))
	})
}

func (s *Server) handleReadBlob(pdu []byte) {
	handle, offset, err := att.DecodeReadBlobRequest(pdu)
	if err != nil {
		s.errorResponse(att.OpReadBlobRequest, 0, att.ErrInvalidPDU)
		return
	}
	s.readAt(att.OpReadBlobRequest, handle, int(offset), func(value []byte) {
		s.ch.Send(att.EncodeReadBlobResponse(value))
	})
}

func (s *Server) readAt(op att.Opcode, handle uint16, offset int, ok func([]byte)) {
	a, found := s.lookup(handle)
	if !found {
		s.errorResponse(op, handle, att.ErrInvalidHandle)
		return
	}
	if a.cccdFor != nil {
		s.mu.Lock()
		v := s.cccs[a.cccdFor.valueHandle]
		s.mu.Unlock()
		ok([]byte{byte(v), byte(v >> 8)})
		return
	}
	var value []byte
	if a.read == nil {
		a.mu.RLock()
		full := a.value
		a.mu.RUnlock()
		if offset > len(full) {
			s.errorResponse(op, handle, att.ErrInvalidOffset)
			return
		}
		value = full[offset:]
	} else {
		v, err := a.read(offset)
		if err != nil {
			s.errorResponse(op, handle, att.ErrUnlikelyError)
			return
		}
		value = v
	}
	s.mu.Lock()
	mtu := s.mtu
	s.mu.Unlock()
	if max := int(mtu) - 1; len(value) > max {
		value = value[:max]
	}
	ok(value)
}

func (s *Server) handleWrite(pdu []byte, withResponse bool) {
	var handle uint16
	var value []byte
	var err error
	op := att.OpWriteCommand
	if withResponse {
		op = att.OpWriteRequest
		handle, value, err = att.DecodeWriteRequest(pdu)
	} else {
		handle, value, err = att.DecodeWriteCommand(pdu)
	}
	if err != nil {
		if withResponse {
			s.errorResponse(op, 0, att.ErrInvalidPDU)
		}
		return
	}
	a, found := s.lookup(handle)
	if !found {
		if withResponse {
			s.errorResponse(op, handle, att.ErrInvalidHandle)
		}
		return
	}
	if a.cccdFor != nil {
		s.writeCCCD(a.cccdFor, value)
		if withResponse {
			s.ch.Send(att.EncodeWriteResponse())
		}
		return
	}
	if a.write == nil {
		if withResponse {
			s.errorResponse(op, handle, att.ErrWriteNotPermitted)
		}
		return
	}
	if err := a.write(value, !withResponse); err != nil {
		if withResponse {
			s.errorResponse(op, handle, att.ErrUnlikelyError)
		}
		return
	}
	if withResponse {
		s.ch.Send(att.EncodeWriteResponse())
	}
}

func (s *Server) writeCCCD(c *Characteristic, value []byte) {
	if len(value) < 2 {
		return
	}
	newVal := uint16(value[0]) | uint16(value[1])<<8
	s.mu.Lock()
	old := s.cccs[c.valueHandle]
	s.cccs[c.valueHandle] = newVal
	s.mu.Unlock()

	if newVal&cccNotify != 0 && old&cccNotify == 0 && c.Notify != nil {
		s.startSub(c.valueHandle, c.Notify, false)
	}
	if old&cccNotify != 0 && newVal&cccNotify == 0 {
		s.stopSub(c.valueHandle)
	}
	if newVal&cccIndicate != 0 && old&cccIndicate == 0 && c.Indicate != nil {
		s.startSub(c.valueHandle, c.Indicate, true)
	}
	if old&cccIndicate != 0 && newVal&cccIndicate == 0 {
		s.stopSub(c.valueHandle)
	}
}

func (s *Server) startSub(valueHandle uint16, h NotifyHandler, indication bool) {
	stop := make(chan struct{})
	s.mu.Lock()
	s.stop[valueHandle] = stop
	s.mu.Unlock()
	send := func(v []byte) error {
		if indication {
			return s.ch.Send(att.EncodeHandleValueIndication(valueHandle, v))
		}
		return s.ch.Send(att.EncodeHandleValueNotification(valueHandle, v))
	}
	go h.ServeNotify(send, stop)
}

func (s *Server) stopSub(valueHandle uint16) {
	s.mu.Lock()
	stop, ok := s.stop[valueHandle]
	delete(s.stop, valueHandle)
	s.mu.Unlock()
	if ok {
		close(stop)
	}
}

// Notify pushes a value to handle's subscribers, for
// callers driving updates outside a NotifyHandler (e.g. a one-shot
// sensor reading). It is a no-op if the peer hasn't subscribed.
func (s *Server) Notify(valueHandle uint16, value []byte) error {
	s.mu.Lock()
	ccc := s.cccs[valueHandle]
	s.mu.Unlock()
	if ccc&cccNotify == 0 {
		return nil
	}
	return s.ch.Send(att.EncodeHandleValueNotification(valueHandle, value))
}
