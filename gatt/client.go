package gatt

import (
	"sync"

	direct "github.com/sgothel/direct-bt-go"

	"github.com/sgothel/direct-bt-go/att"
)

// bearerChannel is the minimal surface Client needs from an L2CAP
// channel, passed straight through to att.NewBearer.
type bearerChannel interface {
	Send(payload []byte) error
	Recv() ([]byte, error)
}

// Listener receives a notified or indicated characteristic value.
type Listener func(value []byte, indication bool)

// Client is a GATT client atop one ATT bearer: discovery plus
// characteristic read/write and notification/indication fan-out.
type Client struct {
	bearer *att.Bearer
	mtu    uint16

	mu       sync.RWMutex
	services []*RemoteService

	listenersMu sync.Mutex
	listeners   map[uint16][]Listener
}

// NewClient starts a Client over ch, with an empty MTU of 23 until
// ExchangeMTU is called.
func NewClient(ch bearerChannel) *Client {
	c := &Client{mtu: 23, listeners: make(map[uint16][]Listener)}
	c.bearer = att.NewBearer(ch, c.dispatch)
	return c
}

func (c *Client) dispatch(handle uint16, value []byte, indication bool) {
	c.listenersMu.Lock()
	ls := append([]Listener(nil), c.listeners[handle]...)
	c.listenersMu.Unlock()
	for _, l := range ls {
		invokeListener(l, value, indication)
	}
}

// invokeListener isolates a listener panic so one bad subscriber
// cannot break the bearer's read loop.
func invokeListener(l Listener, value []byte, indication bool) {
	defer func() { recover() }()
	l(value, indication)
}

// ExchangeMTU negotiates the ATT MTU (Vol 3 Part F §3.4.2.1).
func (c *Client) ExchangeMTU(proposed uint16) (uint16, error) {
	rsp, err := c.bearer.Request(att.EncodeExchangeMTURequest(proposed))
	if err != nil {
		return 0, err
	}
	agreed, err := att.DecodeExchangeMTUResponse(rsp)
	if err != nil {
		return 0, err
	}
	if agreed > proposed {
		agreed = proposed
	}
	c.mu.Lock()
	c.mtu = agreed
	c.mu.Unlock()
	return agreed, nil
}

// Services returns the services discovered by the most recent
// DiscoverAll/DiscoverServices call.
func (c *Client) Services() []*RemoteService {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.services
}

// ReadCharacteristic issues READ_REQ and, while the response is
// exactly mtu-1 bytes, follows with READ_BLOB_REQ until a short
// response arrives, concatenating the result.
func (c *Client) ReadCharacteristic(valueHandle uint16) ([]byte, error) {
	c.mu.RLock()
	mtu := c.mtu
	c.mu.RUnlock()

	rsp, err := c.bearer.Request(att.EncodeReadRequest(valueHandle))
	if err != nil {
		return nil, err
	}
	value, err := att.DecodeReadResponse(rsp)
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), value...)
	for len(value) == int(mtu)-1 {
		rsp, err := c.bearer.Request(att.EncodeReadBlobRequest(valueHandle, uint16(len(out))))
		if err != nil {
			return nil, err
		}
		value, err = att.DecodeReadBlobResponse(rsp)
		if err != nil {
			return nil, err
		}
		out = append(out, value...)
	}
	return out, nil
}

// WriteCharacteristic issues WRITE_REQ (response required) or, if
// withResponse is false, WRITE_CMD, fragmented into mtu-3 chunks for
// the command path only.
func (c *Client) WriteCharacteristic(valueHandle uint16, value []byte, withResponse bool) error {
	if withResponse {
		rsp, err := c.bearer.Request(att.EncodeWriteRequest(valueHandle, value))
		if err != nil {
			return err
		}
		return att.DecodeWriteResponse(rsp)
	}
	c.mu.RLock()
	mtu := c.mtu
	c.mu.RUnlock()
	chunk := int(mtu) - 3
	if chunk <= 0 {
		chunk = len(value)
	}
	off := 0
	for {
		end := off + chunk
		if end > len(value) {
			end = len(value)
		}
		if err := c.bearer.Command(att.EncodeWriteCommand(valueHandle, value[off:end])); err != nil {
			return err
		}
		if end == len(value) {
			return nil
		}
		off = end
	}
}

// SetNotify writes the CCCD to enable (or disable) notifications
// and/or indications for rc, registering fn to receive them.
func (c *Client) SetNotify(rc *RemoteCharacteristic, notify, indicate bool, fn Listener) error {
	if rc.CCCD == nil {
		return direct.NewError(direct.KindNotSupported, "gatt: characteristic has no client characteristic configuration descriptor")
	}
	var bits uint16
	if notify {
		bits |= cccNotify
	}
	if indicate {
		bits |= cccIndicate
	}
	c.listenersMu.Lock()
	if fn == nil || bits == 0 {
		delete(c.listeners, rc.ValueHandle)
	} else {
		c.listeners[rc.ValueHandle] = []Listener{fn}
	}
	c.listenersMu.Unlock()
	return c.WriteCharacteristic(rc.CCCD.Handle, []byte{byte(bits), byte(bits >> 8)}, true)
}

// AddListener appends fn to the set of listeners invoked for
// notifications/indications on valueHandle, without touching the
// CCCD. Safe to call concurrently, including from inside a listener.
func (c *Client) AddListener(valueHandle uint16, fn Listener) {
	c.listenersMu.Lock()
	c.listeners[valueHandle] = append(c.listeners[valueHandle], fn)
	c.listenersMu.Unlock()
}

// RemoveListener drops all listeners registered for valueHandle.
func (c *Client) RemoveListener(valueHandle uint16) {
	c.listenersMu.Lock()
	delete(c.listeners, valueHandle)
	c.listenersMu.Unlock()
}
