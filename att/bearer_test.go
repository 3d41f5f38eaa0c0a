package att

import (
	"bytes"
	"testing"
	"time"

	direct "github.com/sgothel/direct-bt-go"
)

// pipeChannel is a minimal channel implementation over two directional
// queues, standing in for an *l2cap.Channel in tests (att intentionally
// has no import-cycle dependency on l2cap; see bearer.go's channel
// interface).
type pipeChannel struct {
	out chan []byte // what Send writes, consumed by the test's "peer"
	in  chan []byte // what Recv reads, fed by the test's "peer"
}

func newPipeChannel() (*pipeChannel, *pipeChannel) {
	ab := make(chan []byte, 8)
	ba := make(chan []byte, 8)
	a := &pipeChannel{out: ab, in: ba}
	b := &pipeChannel{out: ba, in: ab}
	return a, b
}

func (p *pipeChannel) Send(payload []byte) error {
	p.out <- append([]byte(nil), payload...)
	return nil
}

func (p *pipeChannel) Recv() ([]byte, error) {
	pdu, ok := <-p.in
	if !ok {
		return nil, direct.NewError(direct.KindDisconnected, "pipe closed")
	}
	return pdu, nil
}

func TestBearerRequestResponseRoundTrip(t *testing.T) {
	client, server := newPipeChannel()
	b := NewBearer(client, nil)

	go func() {
		req, _ := server.Recv()
		h, _ := DecodeReadRequest(req)
		server.Send(EncodeReadResponse([]byte{byte(h)}))
	}()

	rsp, err := b.Request(EncodeReadRequest(0x07))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	value, err := DecodeReadResponse(rsp)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !bytes.Equal(value, []byte{0x07}) {
		t.Fatalf("got %v want [7]", value)
	}
}

func TestBearerSurfacesProtocolError(t *testing.T) {
	client, server := newPipeChannel()
	b := NewBearer(client, nil)

	go func() {
		req, _ := server.Recv()
		server.Send(EncodeErrorResponse(Opcode(req[0]), 0x0001, ErrAttributeNotFound))
	}()

	_, err := b.Request(EncodeReadRequest(0x01))
	pe, ok := err.(*ProtocolError)
	if !ok {
		t.Fatalf("err = %v, want *ProtocolError", err)
	}
	if pe.Code != ErrAttributeNotFound {
		t.Fatalf("code = %v", pe.Code)
	}
}

func TestBearerRejectsConcurrentRequest(t *testing.T) {
	client, _ := newPipeChannel()
	b := NewBearer(client, nil)
	b.inFlight = true

	_, err := b.Request(EncodeReadRequest(0x01))
	if direct.KindOf(err) != direct.KindBusy {
		t.Fatalf("err = %v, want KindBusy", err)
	}
}

func TestBearerTimesOutWithoutReply(t *testing.T) {
	client, _ := newPipeChannel()
	b := NewBearer(client, nil)
	b.timeout = 20 * time.Millisecond

	_, err := b.Request(EncodeReadRequest(0x01))
	if direct.KindOf(err) != direct.KindTimeout {
		t.Fatalf("err = %v, want KindTimeout", err)
	}
}

func TestBearerIgnoresMismatchedResponse(t *testing.T) {
	client, server := newPipeChannel()
	b := NewBearer(client, nil)
	b.timeout = 20 * time.Millisecond

	go func() {
		// A reply to some other request must not be correlated with
		// the outstanding Read Request.
		_, _ = server.Recv()
		server.Send(EncodeWriteResponse())
	}()

	_, err := b.Request(EncodeReadRequest(0x01))
	if direct.KindOf(err) != direct.KindTimeout {
		t.Fatalf("err = %v, want KindTimeout", err)
	}
}

func TestBearerDeliversNotificationsAndConfirmsIndications(t *testing.T) {
	client, server := newPipeChannel()
	received := make(chan uint16, 1)
	b := NewBearer(client, func(handle uint16, value []byte, indication bool) {
		received <- handle
	})
	_ = b

	server.Send(EncodeHandleValueIndication(0x0099, []byte{1}))

	select {
	case h := <-received:
		if h != 0x0099 {
			t.Fatalf("handle = %#x", h)
		}
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}

	confirm, err := server.Recv()
	if err != nil {
		t.Fatalf("recv confirmation: %v", err)
	}
	if Opcode(confirm[0]) != OpHandleValueConfirmation {
		t.Fatalf("opcode = %#x, want confirmation", confirm[0])
	}
}
