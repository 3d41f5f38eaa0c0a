package manager

import (
	"net"
	"testing"
	"time"

	direct "github.com/sgothel/direct-bt-go"
	"github.com/sgothel/direct-bt-go/adapter"
	"github.com/sgothel/direct-bt-go/hci"
)

// loopbackController answers every command with a CommandComplete
// carrying StatusSuccess.
func loopbackController(t *testing.T, conn net.Conn) {
	t.Helper()
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		cmd := buf[:n]
		event := []byte{
			byte(hci.PacketEvent),
			hci.EventCommandCompleteCode,
			0x04,
			0x01,
			cmd[1], cmd[2],
			byte(hci.StatusSuccess),
		}
		if _, err := conn.Write(event); err != nil {
			return
		}
	}
}

func newTestAdapter(t *testing.T) *adapter.Adapter {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() { clientConn.Close(); serverConn.Close() })
	go loopbackController(t, serverConn)

	h := hci.NewHandler(clientConn, hci.DefaultConfig(), nil)
	h.Start()
	return adapter.New(0, direct.Address{}, h, adapter.Config{}, nil, nil)
}

func TestCoreVersion(t *testing.T) {
	if v := CoreVersion(); v.String() == "" {
		t.Fatal("expected a non-empty version string")
	}
}

func TestManagerAdoptDispatchesAddedCallback(t *testing.T) {
	m := New(Config{}, nil, nil)
	defer m.Close()

	events := make(chan bool, 2)
	m.AddCallback(func(a *adapter.Adapter, added bool) { events <- added })

	a := newTestAdapter(t)
	if _, err := m.adopt(0, a); err != nil {
		t.Fatalf("adopt: %v", err)
	}

	select {
	case added := <-events:
		if !added {
			t.Fatal("expected an added=true callback")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for add callback")
	}

	if len(m.Adapters()) != 1 {
		t.Fatalf("expected one tracked adapter, got %d", len(m.Adapters()))
	}
}

func TestManagerRemoveDispatchesRemovedCallback(t *testing.T) {
	m := New(Config{}, nil, nil)
	defer m.Close()

	a := newTestAdapter(t)
	if _, err := m.adopt(0, a); err != nil {
		t.Fatalf("adopt: %v", err)
	}

	events := make(chan bool, 2)
	m.AddCallback(func(a *adapter.Adapter, added bool) { events <- added })

	if err := m.Remove(0); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	select {
	case added := <-events:
		if added {
			t.Fatal("expected an added=false (removed) callback")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for remove callback")
	}
	if len(m.Adapters()) != 0 {
		t.Fatal("expected zero tracked adapters after Remove")
	}
}

func TestManagerCloseTearsDownAllAdapters(t *testing.T) {
	m := New(Config{}, nil, nil)
	a := newTestAdapter(t)
	if _, err := m.adopt(0, a); err != nil {
		t.Fatalf("adopt: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(m.Adapters()) != 0 {
		t.Fatal("expected Close to clear the tracked adapter set")
	}
	if _, err := m.adopt(1, newTestAdapter(t)); err == nil {
		t.Fatal("expected adopt on a closed Manager to fail")
	}
}
