package smp

import (
	"testing"

	direct "github.com/sgothel/direct-bt-go"
)

func basicPairingRequest(sc bool) PairingRequest {
	authReq := AuthReqBonding
	if sc {
		authReq |= AuthReqSC
	}
	return PairingRequest{
		IOCap:       IONoInputNoOutput,
		OOBFlag:     OOBAuthDataNotPresent,
		AuthReq:     authReq,
		MaxKeySize:  16,
		InitKeyDist: KeyDistEncKey | KeyDistIDKey | KeyDistSign,
		RespKeyDist: KeyDistEncKey | KeyDistIDKey | KeyDistSign,
	}
}

func TestSessionJustWorksFeatureExchange(t *testing.T) {
	initiator := NewSession(true)
	responder := NewSession(false)

	var transitions []State
	initiator.OnStateChange(func(from, to State) { transitions = append(transitions, to) })

	reqBytes := initiator.StartAsInitiator(basicPairingRequest(true))
	op, body, err := Decode(reqBytes)
	if err != nil {
		t.Fatalf("decode request: %v", err)
	}

	respBytes, err := responder.Receive(op, body)
	if err != nil {
		t.Fatalf("responder receive: %v", err)
	}
	if responder.State() != StateFeatureExchangeCompleted {
		t.Fatalf("responder state = %v", responder.State())
	}

	op, body, err = Decode(respBytes)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, err := initiator.Receive(op, body); err != nil {
		t.Fatalf("initiator receive: %v", err)
	}
	if initiator.mode != ModeJustWorks {
		t.Fatalf("mode = %v, want JustWorks", initiator.mode)
	}
	if initiator.State() != StateFeatureExchangeCompleted {
		t.Fatalf("initiator state = %v", initiator.State())
	}
	if len(transitions) == 0 || transitions[len(transitions)-1] != StateFeatureExchangeCompleted {
		t.Fatalf("transitions = %v", transitions)
	}
}

func TestSessionCrossTransportLinkKeyRefused(t *testing.T) {
	initiator := NewBREDRSession(true)
	responder := NewBREDRSession(false)

	req := basicPairingRequest(true)
	req.RespKeyDist |= KeyDistLinkKey
	reqBytes := initiator.StartAsInitiator(req)

	op, body, _ := Decode(reqBytes)
	_, err := responder.Receive(op, body)
	if err == nil {
		t.Fatal("expected refusal for cross-transport link key request over BR/EDR")
	}
	if responder.State() != StateFailed {
		t.Fatalf("responder state = %v, want FAILED", responder.State())
	}
}

func TestSessionCrossTransportLinkKeyAllowedOverLE(t *testing.T) {
	initiator := NewSession(true)
	responder := NewSession(false)

	req := basicPairingRequest(true)
	req.RespKeyDist |= KeyDistLinkKey
	reqBytes := initiator.StartAsInitiator(req)

	op, body, _ := Decode(reqBytes)
	if _, err := responder.Receive(op, body); err != nil {
		t.Fatalf("LE cross-transport key-dist request should not be refused: %v", err)
	}
	if responder.State() != StateFeatureExchangeCompleted {
		t.Fatalf("responder state = %v, want FEATURE_EXCHANGE_COMPLETED", responder.State())
	}
}

// pumpSCPairing relays one side's reply to the other side's Receive, looping
// until both sessions reach a terminal state or one side is left with
// nothing further to send.
func pumpSCPairing(t *testing.T, initiator, responder *Session, first []byte) {
	t.Helper()
	side, other := initiator, responder
	next := first
	for i := 0; i < 64 && len(next) > 0; i++ {
		op, body, err := Decode(next)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		reply, err := other.Receive(op, body)
		if err != nil {
			t.Fatalf("receive on %v: %v", other, err)
		}
		side, other = other, side
		next = reply
		if initiator.State().Terminal() && responder.State().Terminal() {
			return
		}
	}
}

func TestSessionSecureConnectionsPairingCompletes(t *testing.T) {
	initiator := NewSession(true)
	responder := NewSession(false)
	initiator.SetAddresses(
		direct.NewAddress(direct.EUI48{1, 1, 1, 1, 1, 1}, direct.AddressLEPublic),
		direct.NewAddress(direct.EUI48{2, 2, 2, 2, 2, 2}, direct.AddressLERandom),
	)
	responder.SetAddresses(
		direct.NewAddress(direct.EUI48{2, 2, 2, 2, 2, 2}, direct.AddressLERandom),
		direct.NewAddress(direct.EUI48{1, 1, 1, 1, 1, 1}, direct.AddressLEPublic),
	)
	responder.SetLocalCapabilities(basicPairingRequest(true))

	reqBytes := initiator.StartAsInitiator(basicPairingRequest(true))
	pumpSCPairing(t, initiator, responder, reqBytes)

	if initiator.State() != StateKeyDistribution {
		t.Fatalf("initiator state = %v, want KEY_DISTRIBUTION", initiator.State())
	}
	if responder.State() != StateKeyDistribution {
		t.Fatalf("responder state = %v, want KEY_DISTRIBUTION", responder.State())
	}

	// The LTK must already be derived (via f5, over the verified DHKey
	// exchange) before key distribution even starts.
	ik, rk := initiator.Keys(), responder.Keys()
	if !ik.HasLTK || !rk.HasLTK {
		t.Fatal("both sides must derive an LTK before entering key distribution")
	}
	if ik.LTK != rk.LTK {
		t.Fatalf("derived LTKs disagree: %x vs %x", ik.LTK, rk.LTK)
	}
	if ik.EncSize == 0 || rk.EncSize == 0 {
		t.Fatal("negotiated EncSize must be non-zero")
	}

	// Drive the remaining identity/signing distribution both sides
	// requested (KeyDistIDKey|KeyDistSign in basicPairingRequest).
	sign := SigningInformation{CSRK: [16]byte{9, 9, 9}}
	if _, err := initiator.Receive(OpSigningInformation, sign.Encode()[1:]); err != nil {
		t.Fatalf("initiator signing information: %v", err)
	}
	if _, err := responder.Receive(OpSigningInformation, sign.Encode()[1:]); err != nil {
		t.Fatalf("responder signing information: %v", err)
	}

	if initiator.State() != StateCompleted {
		t.Fatalf("initiator state = %v, want COMPLETED", initiator.State())
	}
	if responder.State() != StateCompleted {
		t.Fatalf("responder state = %v, want COMPLETED", responder.State())
	}
}

func TestSessionPairingFailedPDUTerminatesSession(t *testing.T) {
	initiator := NewSession(true)
	initiator.StartAsInitiator(basicPairingRequest(true))

	pf := PairingFailed{Reason: ReasonUnspecifiedReason}
	if _, err := initiator.Receive(OpPairingFailed, pf.Encode()[1:]); err != nil {
		t.Fatalf("receive pairing failed: %v", err)
	}
	if initiator.State() != StateFailed {
		t.Fatalf("state = %v, want FAILED", initiator.State())
	}
	if initiator.Err() == nil {
		t.Fatal("expected non-nil Err() after FAILED")
	}
}

func TestSessionFailIsTerminalOnce(t *testing.T) {
	s := NewSession(true)
	var count int
	s.OnStateChange(func(from, to State) {
		if to == StateFailed {
			count++
		}
	})
	s.Fail(nil)
	s.Fail(nil)
	if count != 1 {
		t.Fatalf("FAILED transition observed %d times, want 1", count)
	}
}

func TestSessionKeyDistributionCompletes(t *testing.T) {
	s := NewSession(true)
	s.state = StateKeyDistribution

	enc := EncryptionInformation{LTK: [16]byte{1, 2, 3}}
	if _, err := s.Receive(OpEncryptionInformation, enc.Encode()[1:]); err != nil {
		t.Fatalf("encryption information: %v", err)
	}
	sign := SigningInformation{CSRK: [16]byte{4, 5, 6}}
	if _, err := s.Receive(OpSigningInformation, sign.Encode()[1:]); err != nil {
		t.Fatalf("signing information: %v", err)
	}
	if s.State() != StateCompleted {
		t.Fatalf("state = %v, want COMPLETED", s.State())
	}
	if s.Keys().LTK != enc.LTK || s.Keys().CSRK != sign.CSRK {
		t.Fatal("keys not captured correctly")
	}
}

func TestSessionLegacyJustWorksPairingDerivesSTK(t *testing.T) {
	initiator := NewSession(true)
	responder := NewSession(false)
	initiator.SetAddresses(
		direct.NewAddress(direct.EUI48{1, 1, 1, 1, 1, 1}, direct.AddressLEPublic),
		direct.NewAddress(direct.EUI48{2, 2, 2, 2, 2, 2}, direct.AddressLEPublic),
	)
	responder.SetAddresses(
		direct.NewAddress(direct.EUI48{2, 2, 2, 2, 2, 2}, direct.AddressLEPublic),
		direct.NewAddress(direct.EUI48{1, 1, 1, 1, 1, 1}, direct.AddressLEPublic),
	)
	responder.SetLocalCapabilities(basicPairingRequest(false))

	reqBytes := initiator.StartAsInitiator(basicPairingRequest(false))
	pumpSCPairing(t, initiator, responder, reqBytes)

	if initiator.State() != StateKeyDistribution {
		t.Fatalf("initiator state = %v, want KEY_DISTRIBUTION", initiator.State())
	}
	if responder.State() != StateKeyDistribution {
		t.Fatalf("responder state = %v, want KEY_DISTRIBUTION", responder.State())
	}
	istk, ok := initiator.STK()
	if !ok {
		t.Fatal("initiator derived no STK")
	}
	rstk, ok := responder.STK()
	if !ok {
		t.Fatal("responder derived no STK")
	}
	if istk != rstk {
		t.Fatalf("derived STKs disagree: %x vs %x", istk, rstk)
	}
}

func TestSessionLegacyConfirmMismatchFails(t *testing.T) {
	initiator := NewSession(true)
	initiator.SetAddresses(
		direct.NewAddress(direct.EUI48{1, 1, 1, 1, 1, 1}, direct.AddressLEPublic),
		direct.NewAddress(direct.EUI48{2, 2, 2, 2, 2, 2}, direct.AddressLEPublic),
	)

	initiator.StartAsInitiator(basicPairingRequest(false))
	resp := PairingResponse(basicPairingRequest(false))
	if _, err := initiator.Receive(OpPairingResponse, resp.Encode()[1:]); err != nil {
		t.Fatalf("feature response: %v", err)
	}

	// A bogus Sconfirm followed by any Srand must fail the confirm
	// check and emit a Pairing Failed transition.
	bogus := Value16{0xde, 0xad}
	if _, err := initiator.Receive(OpPairingConfirm, EncodePairingConfirm(bogus)[1:]); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	var srand Value16
	if _, err := initiator.Receive(OpPairingRandom, EncodePairingRandom(srand)[1:]); err == nil {
		t.Fatal("expected confirm-value failure")
	}
	if initiator.State() != StateFailed {
		t.Fatalf("state = %v, want FAILED", initiator.State())
	}
}
