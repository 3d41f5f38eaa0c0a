package hci

import (
	"context"
	"net"
	"testing"
	"time"
)

// loopbackController reads one command off one end of a net.Pipe and
// replies with a CommandComplete event carrying the given status, to
// exercise Handler.SendCommand's correlation path without a real
// controller.
func loopbackController(t *testing.T, conn net.Conn, status Status) {
	t.Helper()
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil {
		t.Errorf("loopback read: %v", err)
		return
	}
	cmd := buf[:n]
	opLo, opHi := cmd[1], cmd[2]

	event := []byte{
		byte(PacketEvent),
		EventCommandCompleteCode,
		0x04, // plen
		0x01, // num hci command packets
		opLo, opHi,
		byte(status),
	}
	if _, err := conn.Write(event); err != nil {
		t.Errorf("loopback write: %v", err)
	}
}

func TestSendCommandResolvesOnCommandComplete(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	go loopbackController(t, serverConn, StatusSuccess)

	h := NewHandler(clientConn, DefaultConfig(), nil)
	h.Start()
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	params, err := h.SendCommand(ctx, 0x0c03, nil)
	if err != nil {
		t.Fatalf("send command: %v", err)
	}
	if len(params) != 0 {
		t.Fatalf("expected empty return params, got %v", params)
	}
}

func TestSendCommandSurfacesFailureStatus(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	go loopbackController(t, serverConn, StatusCommandDisallowed)

	h := NewHandler(clientConn, DefaultConfig(), nil)
	h.Start()
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := h.SendCommand(ctx, 0x0c03, nil); err == nil {
		t.Fatal("expected an error for a disallowed command")
	}
}

func TestSendCommandTimesOutWithoutReply(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	cfg := DefaultConfig()
	cfg.CmdCompleteTimeout = 50 * time.Millisecond

	h := NewHandler(clientConn, cfg, nil)
	h.Start()
	defer h.Close()

	// Drain the write so it doesn't block, but never reply.
	go func() {
		buf := make([]byte, 256)
		serverConn.Read(buf)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := h.SendCommand(ctx, 0x0c03, nil); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestCloseResolvesPendingWithCancelled(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	h := NewHandler(clientConn, DefaultConfig(), nil)
	h.Start()

	go func() {
		buf := make([]byte, 256)
		serverConn.Read(buf)
	}()

	resultC := make(chan error, 1)
	go func() {
		_, err := h.SendCommand(context.Background(), 0x0c03, nil)
		resultC <- err
	}()

	time.Sleep(20 * time.Millisecond)
	h.Close()

	select {
	case err := <-resultC:
		if err == nil {
			t.Fatal("expected an error after handler close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SendCommand did not unblock after Close")
	}
}

func TestSubscribeReceivesDispatchedEvents(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	h := NewHandler(clientConn, DefaultConfig(), nil)
	h.Start()
	defer h.Close()

	got := make(chan *Event, 1)
	h.Subscribe(func(e *Event) {
		got <- e
	})

	go func() {
		event := []byte{byte(PacketEvent), EventDisconnectionCompleteCode, 0x04, 0x00, 0x01, 0x00, 0x13}
		serverConn.Write(event)
	}()

	select {
	case e := <-got:
		if e.Code != EventDisconnectionCompleteCode {
			t.Fatalf("unexpected event code 0x%02x", e.Code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener was not invoked")
	}
}
