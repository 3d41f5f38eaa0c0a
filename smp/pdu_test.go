package smp

import (
	"testing"

	direct "github.com/sgothel/direct-bt-go"
)

func TestPairingRequestRoundTrip(t *testing.T) {
	req := PairingRequest{
		IOCap:       IOKeyboardDisplay,
		OOBFlag:     OOBAuthDataNotPresent,
		AuthReq:     AuthReqBonding | AuthReqSC,
		MaxKeySize:  16,
		InitKeyDist: KeyDistEncKey | KeyDistIDKey,
		RespKeyDist: KeyDistEncKey | KeyDistIDKey | KeyDistSign,
	}
	op, body, err := Decode(req.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if op != OpPairingRequest {
		t.Fatalf("opcode = %v, want PairingRequest", op)
	}
	got, err := DecodePairingRequest(body)
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got != req {
		t.Fatalf("got %+v want %+v", got, req)
	}
}

func TestPairingFailedRoundTrip(t *testing.T) {
	pf := PairingFailed{Reason: ReasonCrossTransportKeyDerivationNotAllowed}
	op, body, err := Decode(pf.Encode())
	if err != nil || op != OpPairingFailed {
		t.Fatalf("decode: op=%v err=%v", op, err)
	}
	got, err := DecodePairingFailed(body)
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got != pf {
		t.Fatalf("got %+v want %+v", got, pf)
	}
}

func TestIdentityAddressInformationRoundTrip(t *testing.T) {
	addr := direct.NewAddress(direct.EUI48{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}, direct.AddressLERandom)
	iai := IdentityAddressInformation{Address: addr}
	op, body, err := Decode(iai.Encode())
	if err != nil || op != OpIdentityAddressInformation {
		t.Fatalf("decode: op=%v err=%v", op, err)
	}
	got, err := DecodeIdentityAddressInformation(body)
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.Address != iai.Address {
		t.Fatalf("got %+v want %+v", got.Address, iai.Address)
	}
}

func TestMasterIdentificationRoundTrip(t *testing.T) {
	m := MasterIdentification{EDIV: 0xBEEF, Rand: 0x0102030405060708}
	op, body, err := Decode(m.Encode())
	if err != nil || op != OpMasterIdentification {
		t.Fatalf("decode: op=%v err=%v", op, err)
	}
	got, err := DecodeMasterIdentification(body)
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got != m {
		t.Fatalf("got %+v want %+v", got, m)
	}
}

func TestDecodeTruncatedPDUErrors(t *testing.T) {
	if _, err := DecodePairingRequest([]byte{0x01, 0x02}); err == nil {
		t.Fatal("expected malformed error")
	}
	if _, _, err := Decode(nil); err == nil {
		t.Fatal("expected malformed error on empty pdu")
	}
}

func TestPublicKeyRoundTrip(t *testing.T) {
	var pk PublicKey
	for i := range pk.X {
		pk.X[i] = byte(i)
		pk.Y[i] = byte(255 - i)
	}
	op, body, err := Decode(pk.Encode())
	if err != nil || op != OpPairingPublicKey {
		t.Fatalf("decode: op=%v err=%v", op, err)
	}
	got, err := DecodePublicKey(body)
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got != pk {
		t.Fatalf("got %+v want %+v", got, pk)
	}
}
