package smp

import (
	"crypto/rand"
	"io"

	"golang.org/x/crypto/nacl/box"

	direct "github.com/sgothel/direct-bt-go"
)

// OOB conveys a pairing confirmation value to the peer over a
// transport outside this module's knowledge (NFC, QR code, a paired
// companion app); how that data reaches the state machine is the
// embedder's choice. This type is a ready-made sealed-box envelope
// (golang.org/x/crypto/nacl/box) the embedder can use for that
// transport.
type OOBKeyPair struct {
	pub, priv [32]byte
}

func GenerateOOBKeyPair() (*OOBKeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, direct.NewError(direct.KindUnspecified, "smp: oob keygen: %v", err)
	}
	return &OOBKeyPair{pub: *pub, priv: *priv}, nil
}

func (k *OOBKeyPair) PublicKey() [32]byte { return k.pub }

// Seal encrypts confirm (this side's 16-byte OOB confirmation value,
// Core Spec Vol 3 Part H §2.3.1) for peerPub, producing a message only
// that peer can open with OpenSealed.
func (k *OOBKeyPair) Seal(confirm [16]byte, peerPub [32]byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, direct.NewError(direct.KindUnspecified, "smp: oob nonce: %v", err)
	}
	sealed := box.Seal(nonce[:], confirm[:], &nonce, &peerPub, &k.priv)
	return sealed, nil
}

// OpenSealed decrypts a message produced by the peer's Seal, using
// peerPub as the sender's public key.
func (k *OOBKeyPair) OpenSealed(sealed []byte, peerPub [32]byte) ([16]byte, error) {
	var out [16]byte
	if len(sealed) < 24 {
		return out, malformed("oob sealed message")
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := box.Open(nil, sealed[24:], &nonce, &peerPub, &k.priv)
	if !ok || len(plain) != 16 {
		return out, direct.NewError(direct.KindUnauthorized, "smp: oob box open failed")
	}
	copy(out[:], plain)
	return out, nil
}
