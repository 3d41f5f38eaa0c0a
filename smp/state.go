package smp

import (
	"sync"

	direct "github.com/sgothel/direct-bt-go"
)

// State is one step of the pairing state machine, in order:
// NONE → REQUESTED_BY_RESPONDER? →
// FEATURE_EXCHANGE_STARTED → FEATURE_EXCHANGE_COMPLETED →
// {PASSKEY_EXPECTED | NUMERIC_COMPARE_EXPECTED | OOB_EXPECTED}? →
// KEY_DISTRIBUTION → COMPLETED. FAILED is reachable from any
// non-terminal state; COMPLETED and FAILED are terminal.
type State int

const (
	StateNone State = iota
	StateRequestedByResponder
	StateFeatureExchangeStarted
	StateFeatureExchangeCompleted
	StatePasskeyExpected
	StateNumericCompareExpected
	StateOOBExpected
	StateKeyDistribution
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateRequestedByResponder:
		return "REQUESTED_BY_RESPONDER"
	case StateFeatureExchangeStarted:
		return "FEATURE_EXCHANGE_STARTED"
	case StateFeatureExchangeCompleted:
		return "FEATURE_EXCHANGE_COMPLETED"
	case StatePasskeyExpected:
		return "PASSKEY_EXPECTED"
	case StateNumericCompareExpected:
		return "NUMERIC_COMPARE_EXPECTED"
	case StateOOBExpected:
		return "OOB_EXPECTED"
	case StateKeyDistribution:
		return "KEY_DISTRIBUTION"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

func (s State) Terminal() bool { return s == StateCompleted || s == StateFailed }

// StateListener is notified on every state transition, in strictly
// monotonic order. Implementations
// must not block.
type StateListener func(from, to State)

// KeyProperties is the {RESPONDER, AUTH, SC} bitmask attached to each
// of LTK/IRK/CSRK; IRK/CSRK never carry the SC bit.
type KeyProperties uint8

const (
	KeyPropResponder KeyProperties = 1 << 0
	KeyPropAuth      KeyProperties = 1 << 1
	KeyPropSC        KeyProperties = 1 << 2
)

// LinkKeyType enumerates the BR/EDR Link Key's type field.
type LinkKeyType uint8

const (
	LinkKeyCombi LinkKeyType = iota
	LinkKeyDbgCombi
	LinkKeyUnauthCombiP192
	LinkKeyAuthCombiP192
	LinkKeyChangedCombi
	LinkKeyUnauthCombiP256
	LinkKeyAuthCombiP256
	LinkKeyLocalUnit
	LinkKeyRemoteUnit
	LinkKeyNone
)

func (t LinkKeyType) String() string {
	switch t {
	case LinkKeyCombi:
		return "COMBI"
	case LinkKeyDbgCombi:
		return "DBG_COMBI"
	case LinkKeyUnauthCombiP192:
		return "UNAUTH_COMBI_P192"
	case LinkKeyAuthCombiP192:
		return "AUTH_COMBI_P192"
	case LinkKeyChangedCombi:
		return "CHANGED_COMBI"
	case LinkKeyUnauthCombiP256:
		return "UNAUTH_COMBI_P256"
	case LinkKeyAuthCombiP256:
		return "AUTH_COMBI_P256"
	case LinkKeyLocalUnit:
		return "LOCAL_UNIT"
	case LinkKeyRemoteUnit:
		return "REMOTE_UNIT"
	default:
		return "NONE"
	}
}

// Keys is the bundle of key material exchanged during pairing,
// exposed to the owning Device only once the link is encrypted (the
// COMPLETED state). Field shapes match the on-disk key file
// (smp/keyfile.go) so the in-memory bundle and the file stay
// byte-compatible.
type Keys struct {
	LTK           [16]byte
	HasLTK        bool
	LTKProperties KeyProperties
	// EncSize is the negotiated encryption key size in octets (7..16);
	// 0 marks the LTK invalid.
	EncSize uint8

	IRK           [16]byte
	HasIRK        bool
	IRKProperties KeyProperties

	CSRK           [16]byte
	HasCSRK        bool
	CSRKProperties KeyProperties

	LinkKey          [16]byte
	HasLinkKey       bool
	LinkKeyResponder bool
	LinkKeyType      LinkKeyType
	LinkKeyPinLength uint8

	EDIV uint16
	Rand uint64

	LocalAddress  direct.Address
	RemoteAddress direct.Address
}

// Transport names the bearer a Session's SMP channel runs over. The
// cross-transport refusal below keys off this, not off any peer
// request carrying the link-key distribution bit.
type Transport int

const (
	TransportLE Transport = iota
	TransportBREDR
)

func (t Transport) String() string {
	if t == TransportBREDR {
		return "BR/EDR"
	}
	return "LE"
}

// Session drives one pairing attempt for one Device, local to a single
// ACL connection. It holds no transport knowledge beyond its Transport
// tag; the owning Device feeds it decoded PDUs via Receive and sends
// whatever Session asks it to via the supplied Sender.
type Session struct {
	mu    sync.Mutex
	state State

	initiator bool
	transport Transport
	local     PairingRequest
	remote    PairingRequest
	mode      Mode
	sc        bool
	encSize   uint8

	localAddr, remoteAddr direct.Address

	listeners []StateListener

	ecdh                      *ECDHKeyPair
	localPub, peerPub         PublicKey
	remoteConfirm             Value16
	localRandom, remoteRandom Value16
	sentPublicKey             bool
	sentConfirm               bool
	sentRandom                bool
	sentDHKeyCheck            bool

	// Legacy pairing state: the temporary key (zero for Just Works, a
	// passkey or OOB key otherwise), the raw feature-exchange PDUs c1
	// mixes in, and the s1-derived STK.
	tk               [16]byte
	preqPDU, presPDU [7]byte
	stk              Value16
	haveSTK          bool

	dhkey      [32]byte
	haveDHKey  bool
	mackey     [16]byte
	haveMacKey bool

	keys    Keys
	failErr error
}

// NewSession constructs a Session in its initial NONE state, running
// over the LE transport (the only transport the adapter ever opens an
// SMP channel for, CID 6). initiator reports whether
// the owning Device is the link's initiator (SMP "Central" role).
func NewSession(initiator bool) *Session {
	return &Session{state: StateNone, initiator: initiator, transport: TransportLE}
}

// NewBREDRSession constructs a Session running over the BR/EDR SMP
// transport (CID 7), the only transport on which the
// cross-transport-key-derivation refusal applies.
func NewBREDRSession(initiator bool) *Session {
	return &Session{state: StateNone, initiator: initiator, transport: TransportBREDR}
}

// SetAddresses installs the local/remote identity addresses used by
// the f5/f6 key-derivation functions; the owning Device
// calls this right after the Session is constructed.
func (s *Session) SetAddresses(local, remote direct.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localAddr, s.remoteAddr = local, remote
}

// SetLocalCapabilities installs the local PairingRequest used to
// answer an inbound Pairing Request when this Session is acting as
// the responder. Initiator sessions set this as a side effect of
// StartAsInitiator instead.
func (s *Session) SetLocalCapabilities(req PairingRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.local = req
}

// SetPasskey installs a six-digit passkey as the legacy-pairing
// temporary key, for the Passkey Entry association models. Call before
// the confirm exchange begins.
func (s *Session) SetPasskey(passkey uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tk = [16]byte{}
	s.tk[0] = byte(passkey)
	s.tk[1] = byte(passkey >> 8)
	s.tk[2] = byte(passkey >> 16)
	s.tk[3] = byte(passkey >> 24)
}

// SetOOBTemporaryKey installs out-of-band key material as the
// legacy-pairing temporary key.
func (s *Session) SetOOBTemporaryKey(k [16]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tk = k
}

// STK returns the legacy-pairing Short Term Key derived via s1, and
// whether one has been derived. The initiator hands it to LE Start
// Encryption; a Secure Connections pairing never produces one.
func (s *Session) STK() (Value16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stk, s.haveSTK
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the reason the session reached FAILED, or nil otherwise.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failErr
}

// Keys returns the negotiated key bundle; only meaningful once State()
// reports COMPLETED.
func (s *Session) Keys() Keys {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys
}

// OnStateChange registers a listener invoked on every transition.
func (s *Session) OnStateChange(l StateListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Session) transition(to State) {
	from := s.state
	s.state = to
	ls := append([]StateListener(nil), s.listeners...)
	s.mu.Unlock()
	for _, l := range ls {
		l(from, to)
	}
	s.mu.Lock()
}

// fail moves the session to FAILED with reason err. Safe to call more
// than once; only the first call has effect (COMPLETED/FAILED are
// terminal).
func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.failErr = err
	s.transition(StateFailed)
}

// Fail is the public entry point for a transport-level failure (an
// L2CAP disconnect) that is not itself a Pairing-Failed PDU.
func (s *Session) Fail(err error) { s.fail(err) }

// StartAsInitiator begins pairing by building the local PairingRequest
// to send, moving FEATURE_EXCHANGE_STARTED.
func (s *Session) StartAsInitiator(req PairingRequest) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.local = req
	copy(s.preqPDU[:], req.Encode())
	s.transition(StateFeatureExchangeStarted)
	return req.Encode()
}

// Receive feeds one decoded SMP PDU into the state machine, returning
// any bytes the caller should now send on the SMP channel (may be nil)
// and an error if the PDU was rejected outright.
func (s *Session) Receive(op Opcode, body []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if op == OpPairingFailed {
		pf, err := DecodePairingFailed(body)
		if err != nil {
			return nil, err
		}
		s.failErr = direct.NewError(direct.KindProtocolError, "smp: peer failed pairing: %s", pf.Reason)
		s.transition(StateFailed)
		return nil, nil
	}

	switch s.state {
	case StateNone:
		return s.receiveInitialRequest(op, body)
	case StateFeatureExchangeStarted:
		return s.receiveFeatureResponse(op, body)
	case StateFeatureExchangeCompleted, StatePasskeyExpected, StateNumericCompareExpected, StateOOBExpected:
		return s.receiveConfirmOrRandom(op, body)
	case StateKeyDistribution:
		return s.receiveKeyDistribution(op, body)
	default:
		return nil, direct.NewError(direct.KindProtocolError, "smp: pdu %s unexpected in state %s", op, s.state)
	}
}

func (s *Session) receiveInitialRequest(op Opcode, body []byte) ([]byte, error) {
	if s.initiator || op != OpPairingRequest {
		return nil, direct.NewError(direct.KindProtocolError, "smp: unexpected %s as initial pdu", op)
	}
	req, err := DecodePairingRequest(body)
	if err != nil {
		return nil, err
	}
	s.remote = req
	copy(s.preqPDU[:], req.Encode())
	s.transition(StateRequestedByResponder)

	if req.AuthReq&AuthReqSC != 0 && s.local.AuthReq&AuthReqSC != 0 {
		s.sc = true
	}
	if s.crossTransportRefused(req) {
		return s.failWith(ReasonCrossTransportKeyDerivationNotAllowed,
			direct.NewError(direct.KindNotSupported, "smp: %s", ReasonCrossTransportKeyDerivationNotAllowed))
	}
	s.encSize = negotiatedEncSize(s.local.MaxKeySize, req.MaxKeySize)

	if s.sc {
		if _, _, err := s.generateECDH(); err != nil {
			return s.failInternal(err)
		}
	}

	s.mode = SelectMode(req.IOCap, s.local.IOCap, req.AuthReq&AuthReqMITM != 0, s.local.AuthReq&AuthReqMITM != 0, s.sc, req.OOBFlag, s.local.OOBFlag)
	resp := PairingResponse(s.local)
	copy(s.presPDU[:], resp.Encode())
	s.transition(StateFeatureExchangeCompleted)
	return resp.Encode(), nil
}

func (s *Session) receiveFeatureResponse(op Opcode, body []byte) ([]byte, error) {
	if !s.initiator || op != OpPairingResponse {
		return nil, direct.NewError(direct.KindProtocolError, "smp: unexpected %s awaiting pairing response", op)
	}
	resp, err := DecodePairingResponse(body)
	if err != nil {
		return nil, err
	}
	s.remote = PairingRequest(resp)
	copy(s.presPDU[:], resp.Encode())
	if resp.AuthReq&AuthReqSC != 0 && s.local.AuthReq&AuthReqSC != 0 {
		s.sc = true
	}
	if s.crossTransportRefused(PairingRequest(resp)) {
		return s.failWith(ReasonCrossTransportKeyDerivationNotAllowed,
			direct.NewError(direct.KindNotSupported, "smp: %s", ReasonCrossTransportKeyDerivationNotAllowed))
	}
	s.encSize = negotiatedEncSize(s.local.MaxKeySize, resp.MaxKeySize)
	s.mode = SelectMode(s.local.IOCap, resp.IOCap, s.local.AuthReq&AuthReqMITM != 0, resp.AuthReq&AuthReqMITM != 0, s.sc, s.local.OOBFlag, resp.OOBFlag)
	s.transition(StateFeatureExchangeCompleted)

	switch s.mode {
	case ModeNumericComparison:
		s.transition(StateNumericCompareExpected)
	case ModePasskeyEntryInitiator, ModePasskeyEntryResponder, ModePasskeyEntryBoth:
		s.transition(StatePasskeyExpected)
	case ModeOutOfBand:
		s.transition(StateOOBExpected)
	}

	if s.sc {
		pub, _, err := s.generateECDH()
		if err != nil {
			return s.failInternal(err)
		}
		s.sentPublicKey = true
		return pub.Encode(), nil
	}

	// Legacy pairing: the initiator opens the confirm exchange with
	// Mconfirm.
	nonce, err := GenerateNonce()
	if err != nil {
		return s.failInternal(err)
	}
	s.localRandom = nonce
	confirm, err := s.legacyConfirm(s.localRandom)
	if err != nil {
		return s.failInternal(err)
	}
	s.sentConfirm = true
	return EncodePairingConfirm(confirm), nil
}

// legacyConfirm computes c1 over r with this pairing's temporary key,
// feature-exchange PDUs, and addresses. The initiating device's
// address is always ia, whichever side is computing.
func (s *Session) legacyConfirm(r Value16) (Value16, error) {
	return C1(s.tk, r, s.preqPDU, s.presPDU, s.initiatorAddr(), s.responderAddr())
}

// deriveLegacySTK runs s1 over the exchanged randoms: the responder's
// contribution is the most significant half.
func (s *Session) deriveLegacySTK() error {
	stk, err := S1(s.tk, s.responderNonce(), s.initiatorNonce())
	if err != nil {
		return err
	}
	s.stk, s.haveSTK = stk, true
	return nil
}

// crossTransportRefused rejects a Pairing Request over BR/EDR when
// cross-transport key generation is not supported
// (CROSSXPORT_KEY_DERIVGEN_NOT_ALLOWED). The adapter never opens an
// SMP channel on anything but the LE CID, so an LE-transport Session
// requesting the link-key distribution bit is the legitimate
// cross-transport derivation h6 implements; only a BR/EDR-transport
// Session's request for it is refused.
func (s *Session) crossTransportRefused(peer PairingRequest) bool {
	if s.transport != TransportBREDR {
		return false
	}
	return peer.InitKeyDist&KeyDistLinkKey != 0 || peer.RespKeyDist&KeyDistLinkKey != 0
}

// generateECDH creates this Session's LE-SC P-256 keypair and caches
// its public-key PDU form, used both to answer a peer's Public Key PDU
// and to compute the DHKey shared secret later.
func (s *Session) generateECDH() (PublicKey, *ECDHKeyPair, error) {
	kp, err := GenerateECDHKeyPair()
	if err != nil {
		return PublicKey{}, nil, err
	}
	s.ecdh = kp
	s.localPub = kp.PublicKeyPDU()
	return s.localPub, kp, nil
}

// iocap3 packs a PairingRequest's negotiation-relevant fields into the
// 3-byte IOcap parameter f6 takes (Core Spec Vol 3 Part H §2.2.7).
func iocap3(r PairingRequest) [3]byte {
	return [3]byte{byte(r.IOCap), byte(r.OOBFlag), byte(r.AuthReq)}
}

// localConfirmValue computes this side's own Pairing Confirm value
// (Core Spec f4, §2.2.6): the sender always supplies its own public
// key X-coordinate first.
func (s *Session) localConfirmValue() (Value16, error) {
	v, err := F4(s.localPub.X, s.peerPub.X, [16]byte(s.localRandom), 0)
	return Value16(v), err
}

// verifyRemoteConfirm checks the peer's previously received Pairing
// Confirm against its now-revealed Pairing Random, per f4.
func (s *Session) verifyRemoteConfirm() error {
	expected, err := F4(s.peerPub.X, s.localPub.X, [16]byte(s.remoteRandom), 0)
	if err != nil {
		return err
	}
	if Value16(expected) != s.remoteConfirm {
		return direct.NewError(direct.KindProtocolError, "smp: %s", ReasonConfirmValueFailed)
	}
	return nil
}

// keyProperties reports the {RESPONDER, AUTH, SC} bits attached to a
// derived/distributed LTK.
func (s *Session) keyProperties() KeyProperties {
	var p KeyProperties
	if !s.initiator {
		p |= KeyPropResponder
	}
	if s.mode != ModeJustWorks {
		p |= KeyPropAuth
	}
	if s.sc {
		p |= KeyPropSC
	}
	return p
}

// idKeyProperties is keyProperties without the SC bit; IRK/CSRK
// properties are {RESPONDER, AUTH} only.
func (s *Session) idKeyProperties() KeyProperties {
	return s.keyProperties() &^ KeyPropSC
}

// deriveSCKeys computes the DHKey shared secret (once) and the
// MacKey/LTK via f5 (Core Spec §2.2.8) once both nonces are known,
// publishing the LTK into s.keys so a Secure Connections pairing
// reaches COMPLETED with HasLTK set. It also derives the BR/EDR
// cross-transport Link Key via h6 when either side requested it and
// the transport allows it (crossTransportRefused above already
// rejected the disallowed BR/EDR direction).
func (s *Session) deriveSCKeys() error {
	if s.haveMacKey {
		return nil
	}
	if !s.haveDHKey {
		dh, err := s.ecdh.SharedSecret(s.peerPub)
		if err != nil {
			return err
		}
		s.dhkey, s.haveDHKey = dh, true
	}
	mk, ltk, err := F5(s.dhkey, [16]byte(s.initiatorNonce()), [16]byte(s.responderNonce()), s.initiatorAddr(), s.responderAddr())
	if err != nil {
		return err
	}
	s.mackey, s.haveMacKey = mk, true
	s.keys.LTK, s.keys.HasLTK = ltk, true
	s.keys.EncSize = s.encSize
	s.keys.LTKProperties = s.keyProperties()

	wantsLinkKey := s.local.InitKeyDist&KeyDistLinkKey != 0 || s.local.RespKeyDist&KeyDistLinkKey != 0 ||
		s.remote.InitKeyDist&KeyDistLinkKey != 0 || s.remote.RespKeyDist&KeyDistLinkKey != 0
	if wantsLinkKey && s.transport == TransportLE {
		lk, err := crossTransportLinkKey(ltk)
		if err != nil {
			return err
		}
		s.keys.LinkKey, s.keys.HasLinkKey = lk, true
		s.keys.LinkKeyResponder = !s.initiator
		s.keys.LinkKeyPinLength = 0
		if s.mode != ModeJustWorks {
			s.keys.LinkKeyType = LinkKeyAuthCombiP256
		} else {
			s.keys.LinkKeyType = LinkKeyUnauthCombiP256
		}
	}
	return nil
}

// ownDHKeyCheck computes this side's DHKey check value (Core Spec f6,
// §2.2.7): "my own nonce/IOcap/address first, peer's second" is the
// uniform shape both Ea and Eb reduce to.
func (s *Session) ownDHKeyCheck() (DHKeyCheck, error) {
	var zero [16]byte
	v, err := F6(s.mackey, [16]byte(s.localRandom), [16]byte(s.remoteRandom), zero, iocap3(s.local), s.localAddr, s.remoteAddr)
	return DHKeyCheck{Check: v}, err
}

// verifyRemoteDHKeyCheck checks the peer's DHKey check value against
// the symmetric f6 computation from the peer's point of view.
func (s *Session) verifyRemoteDHKeyCheck(remote [16]byte) error {
	var zero [16]byte
	expected, err := F6(s.mackey, [16]byte(s.remoteRandom), [16]byte(s.localRandom), zero, iocap3(s.remote), s.remoteAddr, s.localAddr)
	if err != nil {
		return err
	}
	if expected != remote {
		return direct.NewError(direct.KindProtocolError, "smp: %s", ReasonDHKeyCheckFailed)
	}
	return nil
}

func (s *Session) initiatorNonce() Value16 {
	if s.initiator {
		return s.localRandom
	}
	return s.remoteRandom
}

func (s *Session) responderNonce() Value16 {
	if s.initiator {
		return s.remoteRandom
	}
	return s.localRandom
}

func (s *Session) initiatorAddr() direct.Address {
	if s.initiator {
		return s.localAddr
	}
	return s.remoteAddr
}

func (s *Session) responderAddr() direct.Address {
	if s.initiator {
		return s.remoteAddr
	}
	return s.localAddr
}

// failWith moves the session to FAILED with a protocol-level reason,
// returning the Pairing-Failed PDU to send and the error to surface.
func (s *Session) failWith(reason ReasonCode, err error) ([]byte, error) {
	s.failErr = err
	s.transition(StateFailed)
	return PairingFailed{Reason: reason}.Encode(), err
}

// failInternal moves the session to FAILED following a local crypto
// failure (e.g. a rand.Reader error), which has no specific Core Spec
// reason code of its own.
func (s *Session) failInternal(err error) ([]byte, error) {
	return s.failWith(ReasonUnspecifiedReason, err)
}

func negotiatedEncSize(local, remote uint8) uint8 {
	n := local
	if remote < n {
		n = remote
	}
	if n < 7 {
		return 7
	}
	if n > 16 {
		return 16
	}
	return n
}

func (s *Session) receiveConfirmOrRandom(op Opcode, body []byte) ([]byte, error) {
	switch op {
	case OpPairingPublicKey:
		if !s.sc {
			return nil, direct.NewError(direct.KindProtocolError, "smp: %s unexpected for a legacy pairing", op)
		}
		pk, err := DecodePublicKey(body)
		if err != nil {
			return nil, err
		}
		s.peerPub = pk
		if !s.sentPublicKey {
			s.sentPublicKey = true
			return s.localPub.Encode(), nil
		}
		nonce, err := GenerateNonce()
		if err != nil {
			return s.failInternal(err)
		}
		s.localRandom = nonce
		confirm, err := s.localConfirmValue()
		if err != nil {
			return s.failInternal(err)
		}
		s.sentConfirm = true
		return EncodePairingConfirm(confirm), nil

	case OpPairingConfirm:
		v, err := DecodePairingConfirm(body)
		if err != nil {
			return nil, err
		}
		s.remoteConfirm = v
		if !s.sc {
			if !s.sentConfirm {
				// Responder: answer Mconfirm with Sconfirm.
				nonce, err := GenerateNonce()
				if err != nil {
					return s.failInternal(err)
				}
				s.localRandom = nonce
				confirm, err := s.legacyConfirm(s.localRandom)
				if err != nil {
					return s.failInternal(err)
				}
				s.sentConfirm = true
				return EncodePairingConfirm(confirm), nil
			}
			// Initiator: both confirms exchanged, reveal Mrand.
			s.sentRandom = true
			return EncodePairingRandom(s.localRandom), nil
		}
		if !s.sentConfirm {
			nonce, err := GenerateNonce()
			if err != nil {
				return s.failInternal(err)
			}
			s.localRandom = nonce
			confirm, err := s.localConfirmValue()
			if err != nil {
				return s.failInternal(err)
			}
			s.sentConfirm = true
			return EncodePairingConfirm(confirm), nil
		}
		// Both confirms are now exchanged; reveal our nonce.
		s.sentRandom = true
		return EncodePairingRandom(s.localRandom), nil

	case OpPairingRandom:
		v, err := DecodePairingRandom(body)
		if err != nil {
			return nil, err
		}
		s.remoteRandom = v
		if !s.sc {
			expected, err := s.legacyConfirm(s.remoteRandom)
			if err != nil {
				return s.failInternal(err)
			}
			if expected != s.remoteConfirm {
				return s.failWith(ReasonConfirmValueFailed,
					direct.NewError(direct.KindProtocolError, "smp: %s", ReasonConfirmValueFailed))
			}
			if err := s.deriveLegacySTK(); err != nil {
				return s.failInternal(err)
			}
			s.transition(StateKeyDistribution)
			if !s.sentRandom {
				// Responder: reveal Srand now that Mconfirm checked out.
				s.sentRandom = true
				return EncodePairingRandom(s.localRandom), nil
			}
			return nil, nil
		}
		if err := s.verifyRemoteConfirm(); err != nil {
			return s.failWith(ReasonConfirmValueFailed, err)
		}
		if err := s.deriveSCKeys(); err != nil {
			return s.failInternal(err)
		}
		if !s.sentRandom {
			s.sentRandom = true
			return EncodePairingRandom(s.localRandom), nil
		}
		check, err := s.ownDHKeyCheck()
		if err != nil {
			return s.failInternal(err)
		}
		s.sentDHKeyCheck = true
		return check.Encode(), nil

	case OpPairingDHKeyCheck:
		if !s.sc {
			return nil, direct.NewError(direct.KindProtocolError, "smp: %s unexpected for a legacy pairing", op)
		}
		dc, err := DecodeDHKeyCheck(body)
		if err != nil {
			return nil, err
		}
		if err := s.verifyRemoteDHKeyCheck(dc.Check); err != nil {
			return s.failWith(ReasonDHKeyCheckFailed, err)
		}
		if !s.sentDHKeyCheck {
			check, err := s.ownDHKeyCheck()
			if err != nil {
				return s.failInternal(err)
			}
			s.sentDHKeyCheck = true
			s.transition(StateKeyDistribution)
			return check.Encode(), nil
		}
		s.transition(StateKeyDistribution)
		return nil, nil

	default:
		return nil, direct.NewError(direct.KindProtocolError, "smp: unexpected %s during confirm/random exchange", op)
	}
}

func (s *Session) receiveKeyDistribution(op Opcode, body []byte) ([]byte, error) {
	switch op {
	case OpEncryptionInformation:
		// Secure Connections derives the LTK via f5 (deriveSCKeys);
		// it never distributes one over the wire.
		if s.sc {
			return nil, direct.NewError(direct.KindProtocolError, "smp: %s unexpected for a Secure Connections pairing", op)
		}
		e, err := DecodeEncryptionInformation(body)
		if err != nil {
			return nil, err
		}
		s.keys.LTK, s.keys.HasLTK = e.LTK, true
		s.keys.LTKProperties = s.keyProperties()
		s.keys.EncSize = s.encSize
		return nil, nil
	case OpMasterIdentification:
		if s.sc {
			return nil, direct.NewError(direct.KindProtocolError, "smp: %s unexpected for a Secure Connections pairing", op)
		}
		m, err := DecodeMasterIdentification(body)
		if err != nil {
			return nil, err
		}
		s.keys.EDIV, s.keys.Rand = m.EDIV, m.Rand
		return nil, nil
	case OpIdentityInformation:
		v, err := DecodeIdentityInformation(body)
		if err != nil {
			return nil, err
		}
		s.keys.IRK, s.keys.HasIRK = v.IRK, true
		s.keys.IRKProperties = s.idKeyProperties()
		return nil, nil
	case OpIdentityAddressInformation:
		v, err := DecodeIdentityAddressInformation(body)
		if err != nil {
			return nil, err
		}
		s.keys.RemoteAddress = v.Address
		return nil, nil
	case OpSigningInformation:
		v, err := DecodeSigningInformation(body)
		if err != nil {
			return nil, err
		}
		s.keys.CSRK, s.keys.HasCSRK = v.CSRK, true
		s.keys.CSRKProperties = s.idKeyProperties()
		if s.sc && !s.keys.HasLTK {
			return nil, direct.NewError(direct.KindProtocolError, "smp: key distribution completed without an SC-derived LTK")
		}
		s.transition(StateCompleted)
		return nil, nil
	default:
		return nil, direct.NewError(direct.KindProtocolError, "smp: unexpected %s during key distribution", op)
	}
}
