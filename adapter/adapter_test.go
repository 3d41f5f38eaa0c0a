package adapter

import (
	"context"
	"net"
	"testing"
	"time"

	direct "github.com/sgothel/direct-bt-go"
	"github.com/sgothel/direct-bt-go/hci"
)

// loopbackController answers every command it reads with a
// CommandComplete carrying StatusSuccess and no return parameters,
// enough to exercise Adapter's command-issuing paths without a real
// controller.
func loopbackController(t *testing.T, conn net.Conn) {
	t.Helper()
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		cmd := buf[:n]
		opLo, opHi := cmd[1], cmd[2]
		event := []byte{
			byte(hci.PacketEvent),
			hci.EventCommandCompleteCode,
			0x04,
			0x01,
			opLo, opHi,
			byte(hci.StatusSuccess),
		}
		if _, err := conn.Write(event); err != nil {
			return
		}
	}
}

func newTestAdapter(t *testing.T) (*Adapter, func()) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	go loopbackController(t, serverConn)

	h := hci.NewHandler(clientConn, hci.DefaultConfig(), nil)
	h.Start()

	a := New(0, direct.Address{}, h, Config{}, nil, nil)
	return a, func() {
		a.Close()
		clientConn.Close()
		serverConn.Close()
	}
}

func TestAdapterInitializePowersOn(t *testing.T) {
	a, cleanup := newTestAdapter(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := a.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !a.Powered() {
		t.Fatal("expected Powered() to report true after Initialize")
	}
}

func TestAdapterSetName(t *testing.T) {
	a, cleanup := newTestAdapter(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := a.SetName(ctx, "test-adapter"); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	if got := a.Name(); got != "test-adapter" {
		t.Fatalf("Name() = %q", got)
	}
}

func TestAdapterStatusListenerFanOut(t *testing.T) {
	a, cleanup := newTestAdapter(t)
	defer cleanup()

	events := make(chan StatusEvent, 4)
	a.Subscribe(func(ev StatusEvent) { events <- ev })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Kind != StatusSettingsChanged {
			t.Fatalf("expected StatusSettingsChanged, got %v", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for status event")
	}
}

func TestAdapterStatusListenerPanicIsolated(t *testing.T) {
	a, cleanup := newTestAdapter(t)
	defer cleanup()

	a.Subscribe(func(StatusEvent) { panic("boom") })
	done := make(chan struct{})
	a.Subscribe(func(StatusEvent) { close(done) })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("a panicking listener must not prevent other listeners from running")
	}
}

func TestAdapterDeviceForCreatesOnce(t *testing.T) {
	a, cleanup := newTestAdapter(t)
	defer cleanup()

	addr := direct.NewAddress(direct.EUI48{0x01}, direct.AddressLEPublic)
	d1 := a.deviceFor(addr)
	d2 := a.deviceFor(addr)
	if d1 != d2 {
		t.Fatal("expected deviceFor to return the same Device for the same address")
	}
	if len(a.Devices()) != 1 {
		t.Fatalf("expected exactly one tracked device, got %d", len(a.Devices()))
	}
}
