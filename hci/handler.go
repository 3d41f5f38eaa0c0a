package hci

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/op/go-logging"
	"github.com/pkg/errors"

	"github.com/sgothel/direct-bt-go/atomic"
	direct "github.com/sgothel/direct-bt-go"
)

// Config holds the timeout and ring-buffer defaults, parsed from the
// `hci` environment namespace by config.LoadEnv.
type Config struct {
	CmdCompleteTimeout time.Duration
	CmdStatusTimeout   time.Duration
	RingSize           int
}

// DefaultConfig returns 10s command-complete,
// 3s command-status, and a 256-entry event ring.
func DefaultConfig() Config {
	return Config{
		CmdCompleteTimeout: 10 * time.Second,
		CmdStatusTimeout:   3 * time.Second,
		RingSize:           256,
	}
}

// maxPendingCommands bounds the outstanding-command correlation map
// so a wedged controller cannot leak *pendingCmd records forever.
const maxPendingCommands = 64

type pendingCmd struct {
	opcode  OpCode
	resultC chan cmdResult
	timer   *time.Timer
	// settled guards against a double-send into resultC: it is set
	// under Handler.mu by whichever path resolves this command first
	// (a real reply, a deliberate removal, or LRU eviction), so
	// OnEvicted firing as a side effect of a deliberate Remove never
	// clobbers the real result.
	settled bool
}

type cmdResult struct {
	status Status
	params []byte
	err    error
}

// Listener receives every decoded event, including LE Meta events, in
// wire order. Implementations must not block or issue further HCI
// commands synchronously from within the callback; spawn a goroutine
// if that's needed.
type Listener func(*Event)

type subscription struct {
	id uint64
	fn Listener
}

// Handler owns one HCI transport: it issues commands with
// opcode-based correlation and a per-request deadline, tracking
// outstanding commands in a map keyed by opcode, and fans out every
// decoded event to every registered listener; there is no routing by
// event code or LE Meta sub-event code, listeners filter for themselves.
type Handler struct {
	transport io.ReadWriteCloser
	log       *logging.Logger
	cfg       Config

	mu      sync.Mutex
	cond    *sync.Cond
	pending *lru.Cache // OpCode -> *pendingCmd, bounds outstanding commands; access guarded by mu
	// pendingAll mirrors pending's contents. groupcache/lru exposes no
	// enumeration method, so this plain map is kept alongside it purely
	// to let Close/failAllPending walk every outstanding command.
	pendingAll map[OpCode]*pendingCmd

	listenersMu sync.Mutex
	listeners   []subscription
	nextSubID   uint64

	ring        chan *Event
	ringDropped atomic.RelaxedUint32

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// NewHandler constructs a Handler over an already-open transport (a
// concrete HCI User Channel socket, or any io.ReadWriteCloser a test
// wants to substitute). Call Start to begin the reader loop.
func NewHandler(transport io.ReadWriteCloser, cfg Config, log *logging.Logger) *Handler {
	h := &Handler{
		transport:  transport,
		log:        log,
		cfg:        cfg,
		pending:    lru.New(maxPendingCommands),
		pendingAll: make(map[OpCode]*pendingCmd),
		ring:       make(chan *Event, cfg.RingSize),
		done:       make(chan struct{}),
	}
	h.cond = sync.NewCond(&h.mu)
	h.pending.OnEvicted = func(key lru.Key, value interface{}) {
		pc := value.(*pendingCmd)
		delete(h.pendingAll, key.(OpCode))
		if pc.settled {
			return
		}
		pc.settled = true
		pc.timer.Stop()
		select {
		case pc.resultC <- cmdResult{err: direct.NewError(direct.KindBusy, "hci: command correlation slot evicted, controller may be wedged")}:
		default:
		}
	}
	return h
}

// Start launches the reader goroutine. Must be called at most once.
func (h *Handler) Start() {
	go h.readLoop()
}

// Close tears down the transport, which unblocks the reader goroutine
// and resolves every pending command with Cancelled.
func (h *Handler) Close() error {
	var err error
	h.closeOnce.Do(func() {
		err = h.transport.Close()
		close(h.done)
		h.failAllPending(direct.NewError(direct.KindCancelled, "hci: handler closed"))
	})
	return err
}

func (h *Handler) failAllPending(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for op, pc := range h.pendingAll {
		pc.settled = true
		pc.timer.Stop()
		select {
		case pc.resultC <- cmdResult{err: err}:
		default:
		}
		h.pending.Remove(op)
	}
	h.pendingAll = make(map[OpCode]*pendingCmd)
}

// Subscribe registers a listener invoked for every decoded event.
// Returns a handle for Unsubscribe.
func (h *Handler) Subscribe(fn Listener) uint64 {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.nextSubID++
	id := h.nextSubID
	h.listeners = append(h.listeners, subscription{id: id, fn: fn})
	return id
}

// Unsubscribe removes a previously registered listener. Safe to call
// from within a listener callback.
func (h *Handler) Unsubscribe(id uint64) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	for i, s := range h.listeners {
		if s.id == id {
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			return
		}
	}
}

func (h *Handler) dispatch(e *Event) {
	h.listenersMu.Lock()
	subs := make([]subscription, len(h.listeners))
	copy(subs, h.listeners)
	h.listenersMu.Unlock()

	for _, s := range subs {
		h.invokeSafely(s.fn, e)
	}
}

func (h *Handler) invokeSafely(fn Listener, e *Event) {
	defer func() {
		if r := recover(); r != nil {
			if h.log != nil {
				h.log.Warningf("hci: event listener panicked: %v", r)
			}
		}
	}()
	fn(e)
}

// SendCommand encodes and writes a command, then blocks until the
// matching CommandComplete/CommandStatus resolves it, the context is
// cancelled, or the configured timeout expires.
func (h *Handler) SendCommand(ctx context.Context, op OpCode, params []byte) ([]byte, error) {
	b, err := EncodeCommand(op, params)
	if err != nil {
		return nil, err
	}

	pc := &pendingCmd{
		opcode:  op,
		resultC: make(chan cmdResult, 1),
	}
	timeout := h.cfg.CmdCompleteTimeout
	pc.timer = time.AfterFunc(timeout, func() {
		if h.removePendingIfSame(op, pc) {
			select {
			case pc.resultC <- cmdResult{status: StatusInternalTimeout, err: direct.NewError(direct.KindTimeout, "hci: command 0x%04x timed out", op)}:
			default:
			}
		}
	})

	h.addPending(op, pc)

	if err := h.writeRaw(b); err != nil {
		h.removePendingIfSame(op, pc)
		pc.timer.Stop()
		return nil, errors.Wrap(direct.NewError(direct.KindIOError, "hci: write failed: %v", err), "send command")
	}

	select {
	case res := <-pc.resultC:
		pc.timer.Stop()
		if res.err != nil {
			return nil, res.err
		}
		if res.status != StatusSuccess {
			return res.params, res.status.Err()
		}
		return res.params, nil
	case <-ctx.Done():
		h.removePendingIfSame(op, pc)
		pc.timer.Stop()
		return nil, direct.NewError(direct.KindCancelled, "hci: command 0x%04x cancelled: %v", op, ctx.Err())
	case <-h.done:
		pc.timer.Stop()
		return nil, direct.NewError(direct.KindDisconnected, "hci: handler closed while awaiting command 0x%04x", op)
	}
}

func (h *Handler) writeRaw(b []byte) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	_, err := h.transport.Write(b)
	return err
}

// WriteACL packs and writes a complete (unfragmented) L2CAP frame as
// one ACL data packet, serialized against concurrent SendCommand and
// WriteACL calls on the same transport. Used by the l2cap package to
// send on any fixed channel (ATT, SMP, signaling).
func (h *Handler) WriteACL(handle uint16, cid uint16, payload []byte) error {
	acl := EncodeACL(handle, cid, payload)
	b := make([]byte, 1+len(acl))
	b[0] = byte(PacketACLData)
	copy(b[1:], acl)
	if err := h.writeRaw(b); err != nil {
		return direct.NewError(direct.KindIOError, "hci: acl write failed: %v", err)
	}
	return nil
}

func (h *Handler) addPending(op OpCode, pc *pendingCmd) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending.Add(op, pc)
	h.pendingAll[op] = pc
}

// removePendingIfSame removes op's correlation entry iff it still
// refers to pc (it may already have been resolved or evicted).
func (h *Handler) removePendingIfSame(op OpCode, pc *pendingCmd) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	cur, ok := h.pendingAll[op]
	if !ok || cur != pc || pc.settled {
		return false
	}
	pc.settled = true
	delete(h.pendingAll, op)
	h.pending.Remove(op)
	return true
}

func (h *Handler) resolvePending(op OpCode, res cmdResult) {
	h.mu.Lock()
	pc, ok := h.pendingAll[op]
	if ok {
		pc.settled = true
		delete(h.pendingAll, op)
		h.pending.Remove(op)
	}
	h.mu.Unlock()
	if !ok {
		if h.log != nil {
			h.log.Debugf("hci: no pending command for opcode 0x%04x", op)
		}
		return
	}
	pc.timer.Stop()
	select {
	case pc.resultC <- res:
	default:
	}
}

func (h *Handler) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := h.transport.Read(buf)
		if err != nil || n == 0 {
			h.failAllPending(direct.NewError(direct.KindDisconnected, "hci: transport closed: %v", err))
			return
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		h.handlePacket(pkt)
	}
}

func (h *Handler) handlePacket(b []byte) {
	if len(b) < 1 {
		return
	}
	switch PacketType(b[0]) {
	case PacketEvent:
		e, err := DecodeEvent(b[1:])
		if err != nil {
			if h.log != nil {
				h.log.Warningf("hci: %v", err)
			}
			return
		}
		h.handleEvent(e)
	case PacketACLData:
		f, err := ExtractL2CAP(b[1:])
		if err != nil {
			if h.log != nil {
				h.log.Debugf("hci: acl extraction: %v", err)
			}
			return
		}
		ev := &Event{Code: EventACLFrameInternalCode, Params: frameToParams(f)}
		h.postRing(ev)
		h.dispatch(ev)
	default:
		if h.log != nil {
			h.log.Debugf("hci: ignoring packet type 0x%02x", b[0])
		}
	}
}

// EventACLFrameInternalCode is a synthetic event code this handler
// uses to forward reassembled L2CAP frames to listeners through the
// same Event/ring pipeline as controller events; it is never present
// on the wire.
const EventACLFrameInternalCode = 0xF0

func frameToParams(f *L2CAPFrame) []byte {
	out := make([]byte, 4+len(f.Payload))
	out[0], out[1] = byte(f.Handle), byte(f.Handle>>8)
	out[2], out[3] = byte(f.CID), byte(f.CID>>8)
	copy(out[4:], f.Payload)
	return out
}

// DecodeACLFrame recovers the L2CAPFrame encoded by frameToParams,
// used by l2cap.Muxer when it receives an EventACLFrameInternalCode event.
func DecodeACLFrame(params []byte) *L2CAPFrame {
	handle := uint16(params[0]) | uint16(params[1])<<8
	cid := uint16(params[2]) | uint16(params[3])<<8
	return &L2CAPFrame{Handle: handle, CID: cid, Payload: params[4:]}
}

func (h *Handler) handleEvent(e *Event) {
	switch e.Code {
	case EventCommandCompleteCode:
		cc, err := DecodeCommandComplete(e.Params)
		if err != nil {
			if h.log != nil {
				h.log.Warningf("hci: %v", err)
			}
			return
		}
		var status Status = StatusSuccess
		var rp []byte
		if len(cc.ReturnParameters) > 0 {
			status = Status(cc.ReturnParameters[0])
			rp = cc.ReturnParameters[1:]
		}
		h.resolvePending(cc.CommandOpcode, cmdResult{status: status, params: rp})
	case EventCommandStatusCode:
		cs, err := DecodeCommandStatus(e.Params)
		if err != nil {
			if h.log != nil {
				h.log.Warningf("hci: %v", err)
			}
			return
		}
		h.resolvePending(cs.CommandOpcode, cmdResult{status: Status(cs.Status)})
	}
	h.postRing(e)
	h.dispatch(e)
}

// postRing enqueues e into the bounded ring; on overflow the oldest
// entry is dropped and the drop counter incremented.
func (h *Handler) postRing(e *Event) {
	select {
	case h.ring <- e:
	default:
		select {
		case <-h.ring:
		default:
		}
		h.ringDropped.Add(1)
		select {
		case h.ring <- e:
		default:
		}
		if h.log != nil {
			h.log.Warningf("hci: event ring overflow, dropped oldest (total dropped=%d)", h.ringDropped.Load())
		}
	}
}

// Ring exposes the bounded event ring for a consumer that wants to
// pull events directly rather than subscribing. Every event, ACL
// frames included, is also dispatched to listeners; nothing in this
// module drains the ring.
func (h *Handler) Ring() <-chan *Event { return h.ring }

// DroppedEvents returns the number of events dropped due to ring
// overflow since the handler started.
func (h *Handler) DroppedEvents() uint32 { return h.ringDropped.Load() }
