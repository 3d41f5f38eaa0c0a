package gatt

import (
	"bytes"
	"testing"
	"time"

	direct "github.com/sgothel/direct-bt-go"
)

// pipeChannel connects a client and a server over two directional
// buffered channels, standing in for an *l2cap.Channel in tests.
type pipeChannel struct {
	out chan []byte
	in  chan []byte
}

func newPipeChannel() (*pipeChannel, *pipeChannel) {
	ab := make(chan []byte, 16)
	ba := make(chan []byte, 16)
	return &pipeChannel{out: ab, in: ba}, &pipeChannel{out: ba, in: ab}
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

// onceNotifier is a NotifyHandler test double that sends one value as
// soon as it is started, then blocks until stopped.
type onceNotifier struct {
	value []byte
	sent  chan struct{}
}

func (n *onceNotifier) ServeNotify(send func([]byte) error, stop <-chan struct{}) {
	send(n.value)
	close(n.sent)
	<-stop
}

// placeholderNotifier stands in for a not-yet-assigned Notify handler
// at database-construction time; Server.writeCCCD re-reads
// Characteristic.Notify live when a peer subscribes, so swapping it
// out for a real NotifyHandler afterward (as the tests below do) is
// safe as long as nothing subscribes before the swap.
type placeholderNotifier struct{}

func (placeholderNotifier) ServeNotify(send func([]byte) error, stop <-chan struct{}) { <-stop }

func buildTestDatabase() (*Database, *Characteristic, *Characteristic) {
	battery := &Characteristic{
		UUID:     direct.UUIDFrom16(0x2A19),
		Property: PropRead | PropNotify,
		Value:    []byte{87},
		Notify:   placeholderNotifier{},
	}
	var written []byte
	config := &Characteristic{
		UUID:     direct.UUIDFrom16(0x2A00),
		Property: PropRead | PropWrite,
		Value:    []byte("device"),
		Write: func(value []byte, noRsp bool) error {
			written = append(written[:0], value...)
			return nil
		},
		Read: func(offset int) ([]byte, error) { return written, nil },
	}
	svc := &Service{
		UUID:            direct.UUIDFrom16(0x180F),
		Characteristics: []*Characteristic{battery, config},
	}
	return NewDatabase([]*Service{svc}, 1), battery, config
}

func TestDiscoverReadWriteAndNotifyRoundTrip(t *testing.T) {
	db, battery, _ := buildTestDatabase()
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
	if len(services) != 1 || !services[0].UUID.Equal(direct.UUIDFrom16(0x180F)) {
		t.Fatalf("services = %+v", services)
	}
	if len(services[0].Characteristics) != 2 {
		t.Fatalf("characteristics = %+v", services[0].Characteristics)
	}
	batteryRC := services[0].Characteristics[0]
	if batteryRC.CCCD == nil {
		t.Fatal("expected battery characteristic to have a CCCD (Notify is set)")
	}

	value, err := cl.ReadCharacteristic(batteryRC.ValueHandle)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(value, []byte{87}) {
		t.Fatalf("value = %v", value)
	}

	configRC := services[0].Characteristics[1]
	if err := cl.WriteCharacteristic(configRC.ValueHandle, []byte("newname"), true); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := cl.ReadCharacteristic(configRC.ValueHandle)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !bytes.Equal(got, []byte("newname")) {
		t.Fatalf("got %q want newname", got)
	}

	sent := make(chan struct{})
	n := &onceNotifier{value: []byte{88}, sent: sent}
	battery.Notify = n
	received := make(chan []byte, 1)
	if err := cl.SetNotify(batteryRC, true, false, func(value []byte, indication bool) {
		received <- value
	}); err != nil {
		t.Fatalf("set notify: %v", err)
	}

	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("notifier never started")
	}
	select {
	case v := <-received:
		if !bytes.Equal(v, []byte{88}) {
			t.Fatalf("notified value = %v", v)
		}
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestReadCharacteristicFollowsReadBlobOnExactMTUChunk(t *testing.T) {
	long := make([]byte, 40)
	for i := range long {
		long[i] = byte(i)
	}
	c := &Characteristic{UUID: direct.UUIDFrom16(0x2A00), Property: PropRead, Value: long}
	svc := &Service{UUID: direct.UUIDFrom16(0x1800), Characteristics: []*Characteristic{c}}
	db := NewDatabase([]*Service{svc}, 1)

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
	value, err := cl.ReadCharacteristic(services[0].Characteristics[0].ValueHandle)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(value, long) {
		t.Fatalf("got %d bytes want %d", len(value), len(long))
	}
}
