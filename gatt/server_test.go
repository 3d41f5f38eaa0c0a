package gatt

import (
	"testing"
	"time"

	"github.com/sgothel/direct-bt-go/att"
)

type recordingNotifier struct {
	stopped chan struct{}
}

func (n *recordingNotifier) ServeNotify(send func([]byte) error, stop <-chan struct{}) {
	<-stop
	close(n.stopped)
}

func TestServerReadUnknownHandleReturnsInvalidHandle(t *testing.T) {
	db, _, _ := buildTestDatabase()
	clientCh, serverCh := newPipeChannel()
	srv := NewServer(db, serverCh, 23)
	go func() {
		pdu, _ := serverCh.Recv()
		srv.HandleRequest(pdu)
	}()

	if err := clientCh.Send(att.EncodeReadRequest(0xFFFF)); err != nil {
		t.Fatalf("send: %v", err)
	}
	rsp, err := clientCh.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	pe, err := att.DecodeErrorResponse(rsp)
	if err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if pe.Code != att.ErrInvalidHandle {
		t.Fatalf("code = %v, want ErrInvalidHandle", pe.Code)
	}
}

func TestServerUnsubscribeStopsNotifier(t *testing.T) {
	db, battery, _ := buildTestDatabase()
	n := &recordingNotifier{stopped: make(chan struct{})}
	battery.Notify = n

	clientCh, serverCh := newPipeChannel()
	srv := NewServer(db, serverCh, 23)
	go func() {
		for {
			pdu, err := serverCh.Recv()
			if err != nil {
				return
			}
			srv.HandleRequest(pdu)
		}
	}()

	cl := NewClient(clientCh)
	services, err := cl.DiscoverAll()
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	rc := services[0].Characteristics[0]

	if err := cl.SetNotify(rc, true, false, func([]byte, bool) {}); err != nil {
		t.Fatalf("enable notify: %v", err)
	}
	if err := cl.SetNotify(rc, false, false, nil); err != nil {
		t.Fatalf("disable notify: %v", err)
	}

	select {
	case <-n.stopped:
	case <-time.After(time.Second):
		t.Fatal("notifier was not stopped on unsubscribe")
	}
}

func TestServerWriteNotPermittedOnReadOnlyCharacteristic(t *testing.T) {
	db, battery, _ := buildTestDatabase()
	clientCh, serverCh := newPipeChannel()
	srv := NewServer(db, serverCh, 23)
	go func() {
		pdu, _ := serverCh.Recv()
		srv.HandleRequest(pdu)
	}()

	valueHandle := battery.ValueHandle()
	if err := clientCh.Send(att.EncodeWriteRequest(valueHandle, []byte{1})); err != nil {
		t.Fatalf("send: %v", err)
	}
	rsp, err := clientCh.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	pe, err := att.DecodeErrorResponse(rsp)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pe.Code != att.ErrWriteNotPermitted {
		t.Fatalf("code = %v", pe.Code)
	}
}
