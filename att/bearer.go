package att

import (
	"sync"
	"time"

	direct "github.com/sgothel/direct-bt-go"
)

// channel is the minimal surface Bearer needs from an L2CAP channel;
// satisfied by *l2cap.Channel, kept as an interface here so att has no
// import-cycle dependency on l2cap.
type channel interface {
	Send(payload []byte) error
	Recv() ([]byte, error)
}

// NotificationHandler receives a server-pushed Handle Value
// Notification or Indication.
type NotificationHandler func(handle uint16, value []byte, indication bool)

// Bearer is an ATT request/response correlator atop one fixed-CID
// channel: exactly one request may be outstanding at a time (Vol 3
// Part F §3.3 "a server shall not send more than one response to a
// request"): a single in-flight response channel gates every sender.
type Bearer struct {
	ch      channel
	notify  NotificationHandler
	timeout time.Duration

	mu      sync.Mutex
	rspc    chan []byte
	inFlight bool

	closed  chan struct{}
	readErr error
}

// DefaultTimeout is the ATT request round-trip bound.
const DefaultTimeout = 500 * time.Millisecond

// NewBearer starts a Bearer's read loop over ch. notify may be nil if
// the owner does not expect server-initiated pushes.
func NewBearer(ch channel, notify NotificationHandler) *Bearer {
	b := &Bearer{
		ch:      ch,
		notify:  notify,
		timeout: DefaultTimeout,
		rspc:    make(chan []byte, 1),
		closed:  make(chan struct{}),
	}
	go b.readLoop()
	return b
}

func (b *Bearer) readLoop() {
	for {
		pdu, err := b.ch.Recv()
		if err != nil {
			b.mu.Lock()
			b.readErr = err
			b.mu.Unlock()
			close(b.closed)
			return
		}
		if len(pdu) == 0 {
			continue
		}
		op := Opcode(pdu[0])
		if op == OpHandleValueNotification || op == OpHandleValueIndication {
			_, handle, value, err := DecodeHandleValue(pdu)
			if err != nil {
				continue
			}
			if b.notify != nil {
				// Delivered on the reader task so pushes reach the
				// handler in wire order.
				b.invokeNotify(handle, value, op == OpHandleValueIndication)
			}
			if op == OpHandleValueIndication {
				b.ch.Send(EncodeHandleValueConfirmation())
			}
			continue
		}
		select {
		case b.rspc <- pdu:
		default:
			// No request outstanding for this reply; drop it (a
			// well-behaved peer never does this, but a malformed one
			// must not be allowed to wedge the bearer).
		}
	}
}

// Request sends req and blocks for the matching response, enforcing
// one outstanding request at a time and the bearer's timeout. Returns
// the raw response PDU, or a *ProtocolError if the peer replied with
// an Error Response.
func (b *Bearer) Request(req []byte) ([]byte, error) {
	if len(req) == 0 {
		return nil, direct.NewError(direct.KindMalformed, "att: empty request")
	}
	b.mu.Lock()
	if b.inFlight {
		b.mu.Unlock()
		return nil, direct.NewError(direct.KindBusy, "att: a request is already outstanding on this bearer")
	}
	b.inFlight = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.inFlight = false
		b.mu.Unlock()
	}()

	if err := b.ch.Send(req); err != nil {
		return nil, direct.NewError(direct.KindDisconnected, "att: send: %v", err)
	}

	// Every ATT response opcode is its request's opcode plus one; an
	// Error Response echoes the request opcode instead. Anything else
	// on rspc is a stale reply from a request that already timed out,
	// and must not be correlated with this one.
	reqOp := Opcode(req[0])
	expected := reqOp + 1
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	for {
		select {
		case rsp := <-b.rspc:
			switch Opcode(rsp[0]) {
			case OpErrorResponse:
				pe, err := DecodeErrorResponse(rsp)
				if err != nil {
					return nil, err
				}
				if pe.RequestOpcode != reqOp {
					continue
				}
				return nil, pe
			case expected:
				return rsp, nil
			default:
				continue
			}
		case <-timer.C:
			return nil, direct.NewError(direct.KindTimeout, "att: request timed out")
		case <-b.closed:
			b.mu.Lock()
			err := b.readErr
			b.mu.Unlock()
			return nil, direct.NewError(direct.KindDisconnected, "att: bearer closed: %v", err)
		}
	}
}

// invokeNotify isolates a handler panic so one bad subscriber cannot
// kill the read loop.
func (b *Bearer) invokeNotify(handle uint16, value []byte, indication bool) {
	defer func() { recover() }()
	b.notify(handle, value, indication)
}

// Command sends a write-without-response PDU (Write Command or Signed
// Write Command), which never solicits a reply.
func (b *Bearer) Command(cmd []byte) error {
	return b.ch.Send(cmd)
}

// SetTimeout overrides the per-request timeout, used by gatt.Config.Apply
// to apply the `gatt` namespace's read timeout to every request.
func (b *Bearer) SetTimeout(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timeout = d
}
