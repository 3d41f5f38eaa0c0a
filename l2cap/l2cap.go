// Package l2cap implements channel framing over ACL data and per-CID
// routing: a routing table covering ATT, the two SMP fixed channels,
// and LE/BR-EDR signaling, fed by per-connection-handle dispatch of
// decoded ACL frames.
package l2cap

import (
	"sync"

	"github.com/op/go-logging"

	direct "github.com/sgothel/direct-bt-go"
	"github.com/sgothel/direct-bt-go/hci"
)

// Fixed CIDs this core routes.
const (
	CIDSignalingBREDR uint16 = 0x0001
	CIDConnectionless uint16 = 0x0002
	CIDATT            uint16 = 0x0004
	CIDSignalingLE    uint16 = 0x0005
	CIDSMPLE          uint16 = 0x0006
	CIDSMPBREDR       uint16 = 0x0007
)

// FrameHandler receives one complete, reassembled L2CAP SDU.
type FrameHandler func(payload []byte)

type routeKey struct {
	handle uint16
	cid    uint16
}

// Muxer owns the routing table from (connection handle, CID) to a
// registered FrameHandler, fed by one hci.Handler's decoded ACL
// frames. Other CIDs are dropped with a debug trace.
type Muxer struct {
	h   *hci.Handler
	log *logging.Logger

	mu     sync.RWMutex
	routes map[routeKey]FrameHandler

	subID uint64
}

// NewMuxer subscribes to h's event stream and begins routing ACL
// frames as they arrive. Call Close to unsubscribe.
func NewMuxer(h *hci.Handler, log *logging.Logger) *Muxer {
	m := &Muxer{
		h:      h,
		log:    log,
		routes: make(map[routeKey]FrameHandler),
	}
	m.subID = h.Subscribe(m.onEvent)
	return m
}

// Close unsubscribes the muxer from its handler. Registered channels
// are not individually notified; callers should Close each Channel
// first if they need an explicit close signal.
func (m *Muxer) Close() {
	m.h.Unsubscribe(m.subID)
}

func (m *Muxer) onEvent(e *hci.Event) {
	if e.Code != hci.EventACLFrameInternalCode {
		return
	}
	f := hci.DecodeACLFrame(e.Params)

	m.mu.RLock()
	fn, ok := m.routes[routeKey{handle: f.Handle, cid: f.CID}]
	m.mu.RUnlock()
	if !ok {
		if m.log != nil {
			m.log.Debugf("l2cap: dropping frame for unrouted cid 0x%04x on handle 0x%04x", f.CID, f.Handle)
		}
		return
	}
	m.invokeSafely(fn, f.Payload)
}

func (m *Muxer) invokeSafely(fn FrameHandler, payload []byte) {
	defer func() {
		if r := recover(); r != nil && m.log != nil {
			m.log.Warningf("l2cap: frame handler panicked: %v", r)
		}
	}()
	fn(payload)
}

func (m *Muxer) register(handle, cid uint16, fn FrameHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[routeKey{handle: handle, cid: cid}] = fn
}

func (m *Muxer) unregister(handle, cid uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.routes, routeKey{handle: handle, cid: cid})
}

// UnregisterConnection drops every route for handle, called when the
// underlying ACL connection is torn down.
func (m *Muxer) UnregisterConnection(handle uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.routes {
		if k.handle == handle {
			delete(m.routes, k)
		}
	}
}

// Channel is one fixed-CID endpoint on one ACL connection: a
// synchronous inbox fed by the Muxer, and a Write that frames onto the
// same connection/CID via the underlying hci.Handler.
type Channel struct {
	muxer  *Muxer
	handle uint16
	cid    uint16
	inbox  chan []byte
	closed chan struct{}
}

// Open registers a new Channel for (handle, cid) and begins buffering
// inbound frames. Opening a second Channel for the same (handle, cid)
// replaces the first's route.
func (m *Muxer) Open(handle, cid uint16) *Channel {
	c := &Channel{
		muxer:  m,
		handle: handle,
		cid:    cid,
		inbox:  make(chan []byte, 16),
		closed: make(chan struct{}),
	}
	m.register(handle, cid, func(payload []byte) {
		select {
		case c.inbox <- payload:
		case <-c.closed:
		}
	})
	return c
}

// Recv blocks for the next complete SDU on this channel, or returns
// Disconnected if the channel has been closed.
func (c *Channel) Recv() ([]byte, error) {
	select {
	case p, ok := <-c.inbox:
		if !ok {
			return nil, direct.NewError(direct.KindDisconnected, "l2cap: channel closed")
		}
		return p, nil
	case <-c.closed:
		return nil, direct.NewError(direct.KindDisconnected, "l2cap: channel closed")
	}
}

// Inbox exposes the channel's raw delivery queue for a caller (such as
// a bearer's reader goroutine) that wants to select over it alongside
// other events rather than blocking in Recv.
func (c *Channel) Inbox() <-chan []byte { return c.inbox }

// Send frames payload as one non-fragmented ACL data packet on this
// channel's (handle, cid).
func (c *Channel) Send(payload []byte) error {
	return c.muxer.h.WriteACL(c.handle, c.cid, payload)
}

// Close unregisters this channel's route. Safe to call more than once.
func (c *Channel) Close() {
	select {
	case <-c.closed:
		return
	default:
		close(c.closed)
	}
	c.muxer.unregister(c.handle, c.cid)
}
