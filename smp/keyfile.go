package smp

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	direct "github.com/sgothel/direct-bt-go"
)

// Key file wire format: magic "DBT1", version u16 LE,
// flags u16 LE (bit0=LTK, bit1=IRK, bit2=CSRK, bit3=LinkKey), local
// address (type(1) | EUI48(6)), remote address (type(1) | EUI48(6)), then each
// present key's section in flag order, trailed by a CRC32 (IEEE) of
// everything preceding it. Replacement is atomic: write to a sibling
// temp file, then os.Rename over the live one.
//
// Each key section carries the key's full attributes rather than raw
// key material alone:
//
//	LTK:      properties(1) | enc_size(1) | ediv(2,LE) | rand(8,LE) | key(16)
//	IRK:      properties(1) | key(16)
//	CSRK:     properties(1) | key(16)
//	LinkKey:  responder(1)  | type(1)     | key(16)     | pin_length(1)
const (
	keyFileMagic   = "DBT1"
	keyFileVersion = uint16(1)

	flagHasLTK     = uint16(1 << 0)
	flagHasIRK     = uint16(1 << 1)
	flagHasCSRK    = uint16(1 << 2)
	flagHasLinkKey = uint16(1 << 3)

	ltkSectionSize     = 1 + 1 + 2 + 8 + 16
	irkSectionSize     = 1 + 16
	csrkSectionSize    = 1 + 16
	linkKeySectionSize = 1 + 1 + 16 + 1
)

// FileName builds the per-device key file name,
// bd_<local-address>_<remote-address><remote-address-type>.key.
func FileName(local, remote direct.Address) string {
	return fmt.Sprintf("bd_%s_%s%s.key", local.EUI48, remote.EUI48, remote.Type)
}

func encodeAddress(a direct.Address) []byte {
	b := make([]byte, 7)
	b[0] = byte(a.Type)
	copy(b[1:], a.EUI48[:])
	return b
}

func decodeAddress(b []byte) (direct.Address, error) {
	if len(b) < 7 {
		return direct.Address{}, malformed("key file address")
	}
	var e direct.EUI48
	copy(e[:], b[1:7])
	return direct.NewAddress(e, direct.AddressType(b[0])), nil
}

// EncodeKeys serializes k into the on-disk key file format.
func EncodeKeys(k Keys) []byte {
	var flags uint16
	if k.HasLTK {
		flags |= flagHasLTK
	}
	if k.HasIRK {
		flags |= flagHasIRK
	}
	if k.HasCSRK {
		flags |= flagHasCSRK
	}
	if k.HasLinkKey {
		flags |= flagHasLinkKey
	}

	buf := make([]byte, 0, 128)
	buf = append(buf, keyFileMagic...)
	var hdr [2]byte
	binary.LittleEndian.PutUint16(hdr[:], keyFileVersion)
	buf = append(buf, hdr[:]...)
	binary.LittleEndian.PutUint16(hdr[:], flags)
	buf = append(buf, hdr[:]...)
	buf = append(buf, encodeAddress(k.LocalAddress)...)
	buf = append(buf, encodeAddress(k.RemoteAddress)...)
	if k.HasLTK {
		buf = append(buf, byte(k.LTKProperties), k.EncSize)
		var ediv [2]byte
		binary.LittleEndian.PutUint16(ediv[:], k.EDIV)
		buf = append(buf, ediv[:]...)
		var rnd [8]byte
		binary.LittleEndian.PutUint64(rnd[:], k.Rand)
		buf = append(buf, rnd[:]...)
		buf = append(buf, k.LTK[:]...)
	}
	if k.HasIRK {
		buf = append(buf, byte(k.IRKProperties))
		buf = append(buf, k.IRK[:]...)
	}
	if k.HasCSRK {
		buf = append(buf, byte(k.CSRKProperties))
		buf = append(buf, k.CSRK[:]...)
	}
	if k.HasLinkKey {
		var responder byte
		if k.LinkKeyResponder {
			responder = 1
		}
		buf = append(buf, responder, byte(k.LinkKeyType))
		buf = append(buf, k.LinkKey[:]...)
		buf = append(buf, k.LinkKeyPinLength)
	}

	crc := crc32.ChecksumIEEE(buf)
	var crcBytes [4]byte
	binary.LittleEndian.PutUint32(crcBytes[:], crc)
	return append(buf, crcBytes[:]...)
}

// DecodeKeys parses the on-disk key file format, returning
// KindMalformed on a bad magic/version/truncation and KindUnauthorized
// on a CRC mismatch; callers treat either as an absent file.
func DecodeKeys(b []byte) (Keys, error) {
	var k Keys
	if len(b) < 4+2+2+7+7+4 {
		return k, malformed("key file")
	}
	if string(b[0:4]) != keyFileMagic {
		return k, direct.NewError(direct.KindMalformed, "smp: bad key file magic")
	}
	version := binary.LittleEndian.Uint16(b[4:6])
	if version != keyFileVersion {
		return k, direct.NewError(direct.KindMalformed, "smp: unsupported key file version %d", version)
	}
	crcWant := binary.LittleEndian.Uint32(b[len(b)-4:])
	crcGot := crc32.ChecksumIEEE(b[:len(b)-4])
	if crcWant != crcGot {
		return k, direct.NewError(direct.KindUnauthorized, "smp: key file crc mismatch")
	}

	flags := binary.LittleEndian.Uint16(b[6:8])
	off := 8
	local, err := decodeAddress(b[off:])
	if err != nil {
		return k, err
	}
	off += 7
	remote, err := decodeAddress(b[off:])
	if err != nil {
		return k, err
	}
	off += 7
	k.LocalAddress, k.RemoteAddress = local, remote

	need := func(n int) error {
		if off+n > len(b)-4 {
			return malformed("key file body")
		}
		return nil
	}
	if flags&flagHasLTK != 0 {
		if err := need(ltkSectionSize); err != nil {
			return k, err
		}
		k.LTKProperties = KeyProperties(b[off])
		off++
		k.EncSize = b[off]
		off++
		k.EDIV = binary.LittleEndian.Uint16(b[off : off+2])
		off += 2
		k.Rand = binary.LittleEndian.Uint64(b[off : off+8])
		off += 8
		copy(k.LTK[:], b[off:off+16])
		off += 16
		k.HasLTK = true
	}
	if flags&flagHasIRK != 0 {
		if err := need(irkSectionSize); err != nil {
			return k, err
		}
		k.IRKProperties = KeyProperties(b[off])
		off++
		copy(k.IRK[:], b[off:off+16])
		off += 16
		k.HasIRK = true
	}
	if flags&flagHasCSRK != 0 {
		if err := need(csrkSectionSize); err != nil {
			return k, err
		}
		k.CSRKProperties = KeyProperties(b[off])
		off++
		copy(k.CSRK[:], b[off:off+16])
		off += 16
		k.HasCSRK = true
	}
	if flags&flagHasLinkKey != 0 {
		if err := need(linkKeySectionSize); err != nil {
			return k, err
		}
		k.LinkKeyResponder = b[off] != 0
		off++
		k.LinkKeyType = LinkKeyType(b[off])
		off++
		copy(k.LinkKey[:], b[off:off+16])
		off += 16
		k.LinkKeyPinLength = b[off]
		off++
		k.HasLinkKey = true
	}
	return k, nil
}

// SaveKeys atomically writes k's encoded form to dir/FileName(...),
// writing to a sibling temp file first and renaming over the target.
func SaveKeys(dir string, k Keys) error {
	name := FileName(k.LocalAddress, k.RemoteAddress)
	target := filepath.Join(dir, name)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, EncodeKeys(k), 0600); err != nil {
		return direct.NewError(direct.KindIOError, "smp: write key file: %v", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return direct.NewError(direct.KindIOError, "smp: rename key file: %v", err)
	}
	return nil
}

// LoadKeys reads and validates the key file for (local, remote). A
// missing file returns KindDisconnected-free os.ErrNotExist unwrapped
// so callers can distinguish "never paired" from "corrupt".
func LoadKeys(dir string, local, remote direct.Address) (Keys, error) {
	path := filepath.Join(dir, FileName(local, remote))
	b, err := os.ReadFile(path)
	if err != nil {
		return Keys{}, err
	}
	return DecodeKeys(b)
}

// RemoveKeys deletes the key file for (local, remote), used by the
// registry's KeyStore.Invalidate, which the adapter calls on every
// pairing failure.
func RemoveKeys(dir string, local, remote direct.Address) error {
	err := os.Remove(filepath.Join(dir, FileName(local, remote)))
	if err != nil && !os.IsNotExist(err) {
		return direct.NewError(direct.KindIOError, "smp: remove key file: %v", err)
	}
	return nil
}
