package smp

import (
	"crypto/aes"
	"crypto/elliptic"
	"crypto/rand"

	"github.com/aead/cmac"
	"github.com/wsddn/go-ecdh"

	direct "github.com/sgothel/direct-bt-go"
)

// aesCMAC computes AES-CMAC(key, message), the MAC primitive underlying
// every LE Secure Connections key-derivation function (Core Spec Vol 3
// Part H §2.2.5).
func aesCMAC(key, message []byte) ([16]byte, error) {
	var out [16]byte
	block, err := aes.NewCipher(key)
	if err != nil {
		return out, direct.NewError(direct.KindUnspecified, "smp: aes key: %v", err)
	}
	h, err := cmac.New(block)
	if err != nil {
		return out, direct.NewError(direct.KindUnspecified, "smp: cmac init: %v", err)
	}
	h.Write(message)
	copy(out[:], h.Sum(nil))
	return out, nil
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// f5Salt is the fixed 128-bit salt used to derive the intermediate
// key t from the DHKey (Core Spec Vol 3, Part H §2.2.7).
var f5Salt = [16]byte{0x6c, 0x88, 0x83, 0x91, 0xaa, 0xf5, 0xa5, 0x38, 0x60, 0x37, 0x0b, 0xdb, 0x5a, 0x60, 0x83, 0xbe}

var f5KeyID = [4]byte{0x62, 0x74, 0x6c, 0x65} // "btle"

// F5 implements the Core Spec f5 key derivation function, producing
// MacKey and LTK from the ECDH shared secret w, the two 128-bit nonces,
// and the two device addresses (SMPCrypto.cpp smp_crypto_f5). w, n1, n2
// arrive and are returned in little-endian (the wire/library
// convention used throughout this module); the intermediate
// byte-swaps to big-endian match the original's documented layout.
func F5(w [32]byte, n1, n2 [16]byte, a1, a2 direct.Address) (mackey, ltk [16]byte, err error) {
	wBE := reverse(w[:])
	t, err := aesCMAC(f5Salt[:], wBE)
	if err != nil {
		return mackey, ltk, err
	}

	bag := func(counter byte) []byte {
		a1e := a1.EUI48
		a2e := a2.EUI48
		return concat(
			[]byte{counter},
			f5KeyID[:],
			reverse(n1[:]),
			reverse(n2[:]),
			[]byte{byte(addrTypeBit(a1))},
			reverse(a1e[:]),
			[]byte{byte(addrTypeBit(a2))},
			reverse(a2e[:]),
			[]byte{0x01, 0x00},
		)
	}

	mk, err := aesCMAC(t[:], bag(0))
	if err != nil {
		return mackey, ltk, err
	}
	lk, err := aesCMAC(t[:], bag(1))
	if err != nil {
		return mackey, ltk, err
	}
	copy(mackey[:], reverse(mk[:]))
	copy(ltk[:], reverse(lk[:]))
	return mackey, ltk, nil
}

func addrTypeBit(a direct.Address) uint8 {
	if a.Type == direct.AddressLERandom {
		return 1
	}
	return 0
}

// F4 implements the Core Spec f4 confirm-value function used during LE
// Secure Connections numeric-comparison/passkey pairing (Vol 3 Part H
// §2.2.6): f4(U, V, X, Z) = AES-CMAC_X(U || V || Z), keyed by the
// 128-bit x over the two public-key X coordinates u, v and the byte z.
func F4(u, v [32]byte, x [16]byte, z byte) ([16]byte, error) {
	msg := concat(reverse(u[:]), reverse(v[:]), []byte{z})
	return aesCMAC(x[:], msg)
}

// F6 implements the Core Spec f6 check-value function (Vol 3 Part H
// §2.2.7): AES-CMAC_W(N1 || N2 || R || IOcap || A1 || A2).
func F6(w [16]byte, n1, n2, r [16]byte, ioCap [3]byte, a1, a2 direct.Address) ([16]byte, error) {
	a1e := a1.EUI48
	a2e := a2.EUI48
	msg := concat(
		reverse(n1[:]), reverse(n2[:]), reverse(r[:]), reverse(ioCap[:]),
		[]byte{addrTypeBit(a1)}, reverse(a1e[:]),
		[]byte{addrTypeBit(a2)}, reverse(a2e[:]),
	)
	return aesCMAC(w[:], msg)
}

// G2 implements the Core Spec g2 numeric-comparison value function
// (Vol 3 Part H §2.2.8), returning the low-order 32 bits of
// AES-CMAC_X(U || V || Y) as a 6-digit display value.
func G2(u, v [32]byte, x, y [16]byte) (uint32, error) {
	msg := concat(reverse(u[:]), reverse(v[:]), reverse(y[:]))
	sum, err := aesCMAC(x[:], msg)
	if err != nil {
		return 0, err
	}
	full := uint32(sum[12])<<24 | uint32(sum[13])<<16 | uint32(sum[14])<<8 | uint32(sum[15])
	return full % 1000000, nil
}

// H6 implements the Core Spec h6 key-conversion function (Vol 3 Part H
// §2.2.11): AES-CMAC_W(KeyID), used to derive the BR/EDR link key from
// the LE LTK (and vice versa) for cross-transport key generation.
func H6(w [16]byte, keyID [4]byte) ([16]byte, error) {
	return aesCMAC(w[:], keyID[:])
}

// ah implements the Core Spec ah() hash function used to resolve a
// resolvable private address against a candidate IRK (Vol 3 Part H
// §2.2.2): ah(k, r) = AES-128_k(0^24 || r) truncated to 24 bits.
func ah(irk [16]byte, r [3]byte) ([3]byte, error) {
	block, err := aes.NewCipher(irk[:])
	if err != nil {
		return [3]byte{}, direct.NewError(direct.KindUnspecified, "smp: ah aes key: %v", err)
	}
	var in [16]byte
	copy(in[13:], r[:])
	var out [16]byte
	block.Encrypt(out[:], in[:])
	var hash [3]byte
	copy(hash[:], out[13:])
	return hash, nil
}

// aesE is the Core Spec e() security function (Vol 3 Part H §2.2.1):
// one AES-128 block encryption over little-endian operands. Key and
// plaintext are byte-swapped to the big-endian form AES operates on,
// and the ciphertext swapped back.
func aesE(k, m [16]byte) ([16]byte, error) {
	block, err := aes.NewCipher(reverse(k[:]))
	if err != nil {
		return [16]byte{}, direct.NewError(direct.KindUnspecified, "smp: e() aes key: %v", err)
	}
	var out [16]byte
	block.Encrypt(out[:], reverse(m[:]))
	copy(out[:], reverse(out[:]))
	return out, nil
}

func xor16(a, b [16]byte) [16]byte {
	var out [16]byte
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// C1 implements the legacy-pairing confirm-value function (Vol 3
// Part H §2.2.3): c1(k, r, preq, pres, iat, rat, ia, ra) =
// e(k, e(k, r XOR p1) XOR p2). preq/pres are the 7-octet Pairing
// Request/Response PDUs as transmitted, opcode included; ia/ra are the
// initiating and responding device addresses, whose random/public type
// bits form iat/rat.
func C1(k [16]byte, r Value16, preq, pres [7]byte, ia, ra direct.Address) (Value16, error) {
	var p1, p2 [16]byte
	p1[0] = addrTypeBit(ia)
	p1[1] = addrTypeBit(ra)
	copy(p1[2:9], preq[:])
	copy(p1[9:16], pres[:])
	iae := ia.EUI48
	rae := ra.EUI48
	copy(p2[0:6], reverse(rae[:]))
	copy(p2[6:12], reverse(iae[:]))

	res, err := aesE(k, xor16([16]byte(r), p1))
	if err != nil {
		return Value16{}, err
	}
	res, err = aesE(k, xor16(res, p2))
	return Value16(res), err
}

// S1 implements the legacy-pairing STK generation function (Vol 3
// Part H §2.2.4): the low 64 bits of each random value are
// concatenated (r1 most significant) and encrypted under the TK.
func S1(k [16]byte, r1, r2 Value16) (Value16, error) {
	var r [16]byte
	copy(r[0:8], r2[0:8])
	copy(r[8:16], r1[0:8])
	out, err := aesE(k, r)
	return Value16(out), err
}

// GenerateNonce draws a fresh 128-bit random nonce for use as Na/Nb in
// the Secure Connections confirm/random exchange (Vol 3 Part H §2.3.5).
func GenerateNonce() (Value16, error) {
	var v Value16
	if _, err := rand.Read(v[:]); err != nil {
		return v, direct.NewError(direct.KindUnspecified, "smp: nonce: %v", err)
	}
	return v, nil
}

var (
	h6KeyIDTmp1 = [4]byte{'t', 'm', 'p', '1'}
	h6KeyIDLEBR = [4]byte{'l', 'e', 'b', 'r'}
)

// crossTransportLinkKey derives a BR/EDR Link Key from an LE-Secure-
// Connections LTK via the two-step h6 chain the Core Spec defines for
// cross-transport key generation (Vol 3 Part H §2.2.11): an
// intermediate link key ILK = h6(LTK, "tmp1"), then the Link Key itself
// = h6(ILK, "lebr").
func crossTransportLinkKey(ltk [16]byte) ([16]byte, error) {
	ilk, err := H6(ltk, h6KeyIDTmp1)
	if err != nil {
		return [16]byte{}, err
	}
	return H6(ilk, h6KeyIDLEBR)
}

// ResolveRPA reports whether rpa is a resolvable private address
// generated from irk, per ah() above.
func ResolveRPA(irk [16]byte, rpa direct.EUI48) (bool, error) {
	if rpa.SubType() != direct.RandomResolvablePrivate {
		return false, nil
	}
	hash, err := ah(irk, rpa.Prand())
	if err != nil {
		return false, err
	}
	return hash == rpa.Hash(), nil
}

// ECDHKeyPair wraps a P-256 keypair for the LE Secure Connections
// DHKey exchange.
type ECDHKeyPair struct {
	curve ecdh.ECDH
	priv  interface{}
	pub   interface{}
}

// GenerateECDHKeyPair creates a fresh P-256 keypair.
func GenerateECDHKeyPair() (*ECDHKeyPair, error) {
	curve := ecdh.NewEllipticECDH(elliptic.P256())
	priv, pub, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, direct.NewError(direct.KindUnspecified, "smp: ecdh keygen: %v", err)
	}
	return &ECDHKeyPair{curve: curve, priv: priv, pub: pub}, nil
}

// PublicKeyPDU marshals this pair's public key into the wire PublicKey
// PDU shape (two little-endian 32-byte coordinates).
func (k *ECDHKeyPair) PublicKeyPDU() PublicKey {
	raw := k.curve.Marshal(k.pub) // uncompressed point: 0x04 || X(BE,32) || Y(BE,32)
	var pk PublicKey
	if len(raw) == 65 {
		copy(pk.X[:], reverse(raw[1:33]))
		copy(pk.Y[:], reverse(raw[33:65]))
	}
	return pk
}

// SharedSecret computes the ECDH shared secret (DHKey) with the peer's
// public key, returned little-endian to match F5's w parameter.
func (k *ECDHKeyPair) SharedSecret(peer PublicKey) ([32]byte, error) {
	var out [32]byte
	raw := make([]byte, 65)
	raw[0] = 0x04
	copy(raw[1:33], reverse(peer.X[:]))
	copy(raw[33:65], reverse(peer.Y[:]))
	peerPub, ok := k.curve.Unmarshal(raw)
	if !ok {
		return out, direct.NewError(direct.KindMalformed, "smp: invalid peer public key point")
	}
	secret, err := k.curve.GenerateSharedSecret(k.priv, peerPub)
	if err != nil {
		return out, direct.NewError(direct.KindUnspecified, "smp: ecdh agreement: %v", err)
	}
	if len(secret) != 32 {
		return out, direct.NewError(direct.KindUnspecified, "smp: unexpected shared secret length %d", len(secret))
	}
	copy(out[:], reverse(secret))
	return out, nil
}
