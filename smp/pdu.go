// Package smp implements the Security Manager Protocol: PDU codec,
// the pairing state machine (legacy and LE Secure Connections, LE and
// BR/EDR cross-transport), key derivation, and key-file persistence.
// Wire shapes follow Core Spec Vol 3, Part H §3.
package smp

import (
	direct "github.com/sgothel/direct-bt-go"
)

// Opcode enumerates the SMP PDU catalogue (SMPTypes.hpp Opcode enum).
type Opcode uint8

const (
	OpPairingRequest              Opcode = 0x01
	OpPairingResponse             Opcode = 0x02
	OpPairingConfirm              Opcode = 0x03
	OpPairingRandom               Opcode = 0x04
	OpPairingFailed               Opcode = 0x05
	OpEncryptionInformation       Opcode = 0x06
	OpMasterIdentification        Opcode = 0x07
	OpIdentityInformation         Opcode = 0x08
	OpIdentityAddressInformation  Opcode = 0x09
	OpSigningInformation          Opcode = 0x0A
	OpSecurityRequest             Opcode = 0x0B
	OpPairingPublicKey            Opcode = 0x0C
	OpPairingDHKeyCheck           Opcode = 0x0D
	OpPairingKeypressNotification Opcode = 0x0E
)

func (o Opcode) String() string {
	switch o {
	case OpPairingRequest:
		return "PairingRequest"
	case OpPairingResponse:
		return "PairingResponse"
	case OpPairingConfirm:
		return "PairingConfirm"
	case OpPairingRandom:
		return "PairingRandom"
	case OpPairingFailed:
		return "PairingFailed"
	case OpEncryptionInformation:
		return "EncryptionInformation"
	case OpMasterIdentification:
		return "MasterIdentification"
	case OpIdentityInformation:
		return "IdentityInformation"
	case OpIdentityAddressInformation:
		return "IdentityAddressInformation"
	case OpSigningInformation:
		return "SigningInformation"
	case OpSecurityRequest:
		return "SecurityRequest"
	case OpPairingPublicKey:
		return "PairingPublicKey"
	case OpPairingDHKeyCheck:
		return "PairingDHKeyCheck"
	case OpPairingKeypressNotification:
		return "PairingKeypressNotification"
	default:
		return "Undefined"
	}
}

// IOCapability (SMPTypes.hpp IOCapability enum).
type IOCapability uint8

const (
	IODisplayOnly       IOCapability = 0x00
	IODisplayYesNo      IOCapability = 0x01
	IOKeyboardOnly      IOCapability = 0x02
	IONoInputNoOutput   IOCapability = 0x03
	IOKeyboardDisplay   IOCapability = 0x04
)

// OOBDataFlag (SMPTypes.hpp OOBDataFlag enum).
type OOBDataFlag uint8

const (
	OOBAuthDataNotPresent    OOBDataFlag = 0x00
	OOBAuthDataRemotePresent OOBDataFlag = 0x01
)

// AuthReqFlag bits (SMPTypes.hpp AuthRequirements bitmask).
type AuthReqFlag uint8

const (
	AuthReqBonding AuthReqFlag = 0b00000001
	AuthReqMITM    AuthReqFlag = 0b00000100
	AuthReqSC      AuthReqFlag = 0b00001000
	AuthReqKeypress AuthReqFlag = 0b00010000
)

// KeyDistFlag bits, used in both the initiator and responder key
// distribution fields of a Pairing Request/Response.
type KeyDistFlag uint8

const (
	KeyDistEncKey  KeyDistFlag = 0b0001 // LTK + EDIV + Rand
	KeyDistIDKey   KeyDistFlag = 0b0010 // IRK + identity address
	KeyDistSign    KeyDistFlag = 0b0100 // CSRK
	KeyDistLinkKey KeyDistFlag = 0b1000 // cross-transport BR/EDR link key
)

// ReasonCode is the PairingFailed reason byte (SMPTypes.hpp ReasonCode enum).
type ReasonCode uint8

const (
	ReasonUndefined                  ReasonCode = 0x00
	ReasonPasskeyEntryFailed         ReasonCode = 0x01
	ReasonOOBNotAvailable            ReasonCode = 0x02
	ReasonAuthenticationRequirements ReasonCode = 0x03
	ReasonConfirmValueFailed         ReasonCode = 0x04
	ReasonPairingNotSupported        ReasonCode = 0x05
	ReasonEncryptionKeySize          ReasonCode = 0x06
	ReasonCommandNotSupported        ReasonCode = 0x07
	ReasonUnspecifiedReason          ReasonCode = 0x08
	ReasonRepeatedAttempts           ReasonCode = 0x09
	ReasonInvalidParameters          ReasonCode = 0x0A
	ReasonDHKeyCheckFailed           ReasonCode = 0x0B
	ReasonNumericComparisonFailed    ReasonCode = 0x0C
	ReasonBREDRPairingInProgress     ReasonCode = 0x0D
	// ReasonCrossTransportKeyDerivationNotAllowed is returned when a
	// peer requests link-key distribution over the BR/EDR transport,
	// which this core does not support; over LE the request is honoured
	// (see Session.crossTransportRefused).
	ReasonCrossTransportKeyDerivationNotAllowed ReasonCode = 0x0E
)

func (r ReasonCode) String() string {
	switch r {
	case ReasonPasskeyEntryFailed:
		return "PasskeyEntryFailed"
	case ReasonOOBNotAvailable:
		return "OOBNotAvailable"
	case ReasonAuthenticationRequirements:
		return "AuthenticationRequirements"
	case ReasonConfirmValueFailed:
		return "ConfirmValueFailed"
	case ReasonPairingNotSupported:
		return "PairingNotSupported"
	case ReasonEncryptionKeySize:
		return "EncryptionKeySize"
	case ReasonCommandNotSupported:
		return "CommandNotSupported"
	case ReasonUnspecifiedReason:
		return "UnspecifiedReason"
	case ReasonRepeatedAttempts:
		return "RepeatedAttempts"
	case ReasonInvalidParameters:
		return "InvalidParameters"
	case ReasonDHKeyCheckFailed:
		return "DHKeyCheckFailed"
	case ReasonNumericComparisonFailed:
		return "NumericComparisonFailed"
	case ReasonBREDRPairingInProgress:
		return "BREDRPairingInProgress"
	case ReasonCrossTransportKeyDerivationNotAllowed:
		return "CrossTransportKeyDerivationNotAllowed"
	default:
		return "Undefined"
	}
}

func malformed(what string) error {
	return direct.NewError(direct.KindMalformed, "smp: %s truncated", what)
}

// decodePDU splits a raw SMP L2CAP SDU into its opcode and parameter
// bytes, enforcing the minimum 1-byte opcode-only length.
func decodePDU(b []byte) (Opcode, []byte, error) {
	if len(b) < 1 {
		return 0, nil, malformed("pdu")
	}
	return Opcode(b[0]), b[1:], nil
}

func encodePDU(op Opcode, params []byte) []byte {
	out := make([]byte, 1+len(params))
	out[0] = byte(op)
	copy(out[1:], params)
	return out
}

// PairingRequest/PairingResponse share the same 6-byte body
// (SMPTypes.hpp PairingReqResp).
type PairingRequest struct {
	IOCap       IOCapability
	OOBFlag     OOBDataFlag
	AuthReq     AuthReqFlag
	MaxKeySize  uint8
	InitKeyDist KeyDistFlag
	RespKeyDist KeyDistFlag
}

func (p PairingRequest) Encode() []byte {
	return encodePDU(OpPairingRequest, p.body())
}

func (p PairingRequest) body() []byte {
	return []byte{byte(p.IOCap), byte(p.OOBFlag), byte(p.AuthReq), p.MaxKeySize, byte(p.InitKeyDist), byte(p.RespKeyDist)}
}

func DecodePairingRequest(body []byte) (PairingRequest, error) {
	pr, err := decodePairingBody(body)
	return PairingRequest(pr), err
}

// PairingResponse is wire-identical to PairingRequest; kept distinct so
// callers cannot confuse the two roles at compile time.
type PairingResponse PairingRequest

func (p PairingResponse) Encode() []byte {
	return encodePDU(OpPairingResponse, PairingRequest(p).body())
}

func DecodePairingResponse(body []byte) (PairingResponse, error) {
	pr, err := decodePairingBody(body)
	return PairingResponse(pr), err
}

func decodePairingBody(b []byte) (PairingRequest, error) {
	if len(b) < 6 {
		return PairingRequest{}, malformed("pairing request/response")
	}
	return PairingRequest{
		IOCap:       IOCapability(b[0]),
		OOBFlag:     OOBDataFlag(b[1]),
		AuthReq:     AuthReqFlag(b[2]),
		MaxKeySize:  b[3],
		InitKeyDist: KeyDistFlag(b[4]),
		RespKeyDist: KeyDistFlag(b[5]),
	}, nil
}

// PairingConfirm and PairingRandom both carry one opaque 16-byte value.
type Value16 [16]byte

func encodeValue16(op Opcode, v Value16) []byte { return encodePDU(op, v[:]) }

func decodeValue16(body []byte, what string) (Value16, error) {
	var v Value16
	if len(body) < 16 {
		return v, malformed(what)
	}
	copy(v[:], body[:16])
	return v, nil
}

func EncodePairingConfirm(v Value16) []byte { return encodeValue16(OpPairingConfirm, v) }
func DecodePairingConfirm(body []byte) (Value16, error) {
	return decodeValue16(body, "pairing confirm")
}

func EncodePairingRandom(v Value16) []byte { return encodeValue16(OpPairingRandom, v) }
func DecodePairingRandom(body []byte) (Value16, error) {
	return decodeValue16(body, "pairing random")
}

type PairingFailed struct {
	Reason ReasonCode
}

func (p PairingFailed) Encode() []byte { return encodePDU(OpPairingFailed, []byte{byte(p.Reason)}) }

func DecodePairingFailed(body []byte) (PairingFailed, error) {
	if len(body) < 1 {
		return PairingFailed{}, malformed("pairing failed")
	}
	return PairingFailed{Reason: ReasonCode(body[0])}, nil
}

// EncryptionInformation carries the 16-byte LTK.
type EncryptionInformation struct {
	LTK [16]byte
}

func (e EncryptionInformation) Encode() []byte { return encodePDU(OpEncryptionInformation, e.LTK[:]) }

func DecodeEncryptionInformation(body []byte) (EncryptionInformation, error) {
	v, err := decodeValue16(body, "encryption information")
	return EncryptionInformation{LTK: v}, err
}

// MasterIdentification carries EDIV + Rand for legacy LTK lookup.
type MasterIdentification struct {
	EDIV uint16
	Rand uint64
}

func (m MasterIdentification) Encode() []byte {
	b := make([]byte, 10)
	b[0], b[1] = byte(m.EDIV), byte(m.EDIV>>8)
	for i := 0; i < 8; i++ {
		b[2+i] = byte(m.Rand >> (8 * i))
	}
	return encodePDU(OpMasterIdentification, b)
}

func DecodeMasterIdentification(body []byte) (MasterIdentification, error) {
	if len(body) < 10 {
		return MasterIdentification{}, malformed("master identification")
	}
	m := MasterIdentification{EDIV: uint16(body[0]) | uint16(body[1])<<8}
	for i := 0; i < 8; i++ {
		m.Rand |= uint64(body[2+i]) << (8 * i)
	}
	return m, nil
}

// IdentityInformation carries the 16-byte IRK.
type IdentityInformation struct {
	IRK [16]byte
}

func (i IdentityInformation) Encode() []byte { return encodePDU(OpIdentityInformation, i.IRK[:]) }

func DecodeIdentityInformation(body []byte) (IdentityInformation, error) {
	v, err := decodeValue16(body, "identity information")
	return IdentityInformation{IRK: v}, err
}

// IdentityAddressInformation carries the peer's public identity address.
type IdentityAddressInformation struct {
	Address direct.Address
}

func (i IdentityAddressInformation) Encode() []byte {
	b := make([]byte, 7)
	if i.Address.Type == direct.AddressLERandom {
		b[0] = 1
	}
	e := i.Address.EUI48
	for j := 0; j < 6; j++ {
		b[1+j] = e[5-j]
	}
	return encodePDU(OpIdentityAddressInformation, b)
}

func DecodeIdentityAddressInformation(body []byte) (IdentityAddressInformation, error) {
	if len(body) < 7 {
		return IdentityAddressInformation{}, malformed("identity address information")
	}
	var e direct.EUI48
	for j := 0; j < 6; j++ {
		e[j] = body[1+5-j]
	}
	at := direct.AddressLEPublic
	if body[0] != 0 {
		at = direct.AddressLERandom
	}
	return IdentityAddressInformation{Address: direct.NewAddress(e, at)}, nil
}

// SigningInformation carries the 16-byte CSRK.
type SigningInformation struct {
	CSRK [16]byte
}

func (s SigningInformation) Encode() []byte { return encodePDU(OpSigningInformation, s.CSRK[:]) }

func DecodeSigningInformation(body []byte) (SigningInformation, error) {
	v, err := decodeValue16(body, "signing information")
	return SigningInformation{CSRK: v}, err
}

type SecurityRequest struct {
	AuthReq AuthReqFlag
}

func (s SecurityRequest) Encode() []byte { return encodePDU(OpSecurityRequest, []byte{byte(s.AuthReq)}) }

func DecodeSecurityRequest(body []byte) (SecurityRequest, error) {
	if len(body) < 1 {
		return SecurityRequest{}, malformed("security request")
	}
	return SecurityRequest{AuthReq: AuthReqFlag(body[0])}, nil
}

// PublicKey carries the LE-SC P-256 public key as two 32-byte
// little-endian coordinates (Core Spec Vol 3 Part H §3.5.6).
type PublicKey struct {
	X [32]byte
	Y [32]byte
}

func (p PublicKey) Encode() []byte {
	b := make([]byte, 64)
	copy(b[:32], p.X[:])
	copy(b[32:], p.Y[:])
	return encodePDU(OpPairingPublicKey, b)
}

func DecodePublicKey(body []byte) (PublicKey, error) {
	if len(body) < 64 {
		return PublicKey{}, malformed("public key")
	}
	var p PublicKey
	copy(p.X[:], body[:32])
	copy(p.Y[:], body[32:64])
	return p, nil
}

// DHKeyCheck carries the 16-byte Ea/Eb check value.
type DHKeyCheck struct {
	Check [16]byte
}

func (d DHKeyCheck) Encode() []byte { return encodePDU(OpPairingDHKeyCheck, d.Check[:]) }

func DecodeDHKeyCheck(body []byte) (DHKeyCheck, error) {
	v, err := decodeValue16(body, "dhkey check")
	return DHKeyCheck{Check: v}, err
}

// KeypressNotificationType (SMPTypes.hpp KeypressNotificationType).
type KeypressNotificationType uint8

const (
	KeypressEntryStarted    KeypressNotificationType = 0x00
	KeypressDigitEntered    KeypressNotificationType = 0x01
	KeypressDigitErased     KeypressNotificationType = 0x02
	KeypressCleared         KeypressNotificationType = 0x03
	KeypressEntryCompleted  KeypressNotificationType = 0x04
)

type KeypressNotification struct {
	Type KeypressNotificationType
}

func (k KeypressNotification) Encode() []byte {
	return encodePDU(OpPairingKeypressNotification, []byte{byte(k.Type)})
}

func DecodeKeypressNotification(body []byte) (KeypressNotification, error) {
	if len(body) < 1 {
		return KeypressNotification{}, malformed("keypress notification")
	}
	return KeypressNotification{Type: KeypressNotificationType(body[0])}, nil
}

// Decode dispatches a raw SMP SDU to its opcode, returning the opcode
// and the still-encoded parameter bytes for the caller to further
// decode with the matching DecodeXxx function.
func Decode(sdu []byte) (Opcode, []byte, error) {
	return decodePDU(sdu)
}
