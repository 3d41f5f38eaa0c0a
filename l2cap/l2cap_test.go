package l2cap

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/sgothel/direct-bt-go/hci"
)

func TestMuxerRoutesFrameToRegisteredChannel(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	h := hci.NewHandler(clientConn, hci.DefaultConfig(), nil)
	h.Start()
	defer h.Close()

	m := NewMuxer(h, nil)
	defer m.Close()

	ch := m.Open(0x0001, CIDATT)
	defer ch.Close()

	payload := []byte{0x01, 0x02, 0x03}
	acl := hci.EncodeACL(0x0001, CIDATT, payload)
	event := append([]byte{byte(hci.PacketACLData)}, acl...)

	go serverConn.Write(event)

	select {
	case got := <-ch.Inbox():
		if !bytes.Equal(got, payload) {
			t.Fatalf("got %v want %v", got, payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame was not routed to channel")
	}
}

func TestMuxerDropsUnroutedCID(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	h := hci.NewHandler(clientConn, hci.DefaultConfig(), nil)
	h.Start()
	defer h.Close()

	m := NewMuxer(h, nil)
	defer m.Close()

	// No channel opened for CIDSMPLE; just confirm the muxer doesn't
	// panic or block on delivery.
	acl := hci.EncodeACL(0x0001, CIDSMPLE, []byte{0xAA})
	event := append([]byte{byte(hci.PacketACLData)}, acl...)
	serverConn.Write(event)
	time.Sleep(50 * time.Millisecond)
}

func TestDisconnectionRequestRoundTrip(t *testing.T) {
	req := DisconnectionRequest{DestinationCID: 0x0040, SourceCID: 0x0041}
	pdu := EncodeSignaling(SigDisconnectionRequest, 1, req.Encode())

	hdr, body, err := DecodeSignaling(pdu)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if hdr.Code != SigDisconnectionRequest || hdr.ID != 1 {
		t.Fatalf("unexpected header: %+v", hdr)
	}
	got, err := DecodeDisconnectionRequest(body)
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got != req {
		t.Fatalf("got %+v want %+v", got, req)
	}
}

func TestConnParamUpdateRoundTrip(t *testing.T) {
	req := ConnParamUpdateRequest{IntervalMin: 6, IntervalMax: 12, SlaveLatency: 0, TimeoutMultiplier: 200}
	b := req.Encode()
	got, err := DecodeConnParamUpdateRequest(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != req {
		t.Fatalf("got %+v want %+v", got, req)
	}
}

func TestDecodeSignalingRejectsLengthMismatch(t *testing.T) {
	b := []byte{SigDisconnectionRequest, 1, 0x08, 0x00, 0x01, 0x02} // declares 8 bytes, only 2 present
	if _, _, err := DecodeSignaling(b); err == nil {
		t.Fatal("expected malformed error")
	}
}
