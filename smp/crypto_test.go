package smp

import (
	"bytes"
	"testing"

	direct "github.com/sgothel/direct-bt-go"
)

func TestF5IsDeterministicAndAddressSensitive(t *testing.T) {
	var w [32]byte
	for i := range w {
		w[i] = byte(i)
	}
	n1 := [16]byte{1, 2, 3}
	n2 := [16]byte{4, 5, 6}
	a1 := direct.NewAddress(direct.EUI48{0, 1, 2, 3, 4, 5}, direct.AddressLEPublic)
	a2 := direct.NewAddress(direct.EUI48{9, 8, 7, 6, 5, 4}, direct.AddressLERandom)

	mk1, ltk1, err := F5(w, n1, n2, a1, a2)
	if err != nil {
		t.Fatalf("f5: %v", err)
	}
	mk2, ltk2, err := F5(w, n1, n2, a1, a2)
	if err != nil {
		t.Fatalf("f5: %v", err)
	}
	if mk1 != mk2 || ltk1 != ltk2 {
		t.Fatal("f5 is not deterministic")
	}
	if mk1 == ltk1 {
		t.Fatal("mackey and ltk must differ")
	}

	a3 := direct.NewAddress(direct.EUI48{1, 1, 1, 1, 1, 1}, direct.AddressLEPublic)
	_, ltk3, err := F5(w, n1, n2, a1, a3)
	if err != nil {
		t.Fatalf("f5: %v", err)
	}
	if ltk1 == ltk3 {
		t.Fatal("changing a peer address must change the derived ltk")
	}
}

func TestECDHSharedSecretAgrees(t *testing.T) {
	a, err := GenerateECDHKeyPair()
	if err != nil {
		t.Fatalf("keygen a: %v", err)
	}
	b, err := GenerateECDHKeyPair()
	if err != nil {
		t.Fatalf("keygen b: %v", err)
	}
	sa, err := a.SharedSecret(b.PublicKeyPDU())
	if err != nil {
		t.Fatalf("shared secret a: %v", err)
	}
	sb, err := b.SharedSecret(a.PublicKeyPDU())
	if err != nil {
		t.Fatalf("shared secret b: %v", err)
	}
	if !bytes.Equal(sa[:], sb[:]) {
		t.Fatal("ecdh shared secrets disagree")
	}
}

func TestResolveRPARoundTrip(t *testing.T) {
	irk := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	prand := [3]byte{0x11, 0x22, 0x33}
	hash, err := ah(irk, prand)
	if err != nil {
		t.Fatalf("ah: %v", err)
	}
	var rpa direct.EUI48
	rpa[0] = 0x40 | prand[0] // top two bits 01 -> resolvable private
	rpa[1] = prand[1]
	rpa[2] = prand[2]
	rpa[3], rpa[4], rpa[5] = hash[0], hash[1], hash[2]

	ok, err := ResolveRPA(irk, rpa)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !ok {
		t.Fatal("expected rpa to resolve against its generating irk")
	}

	otherIRK := [16]byte{9, 9, 9}
	ok, err = ResolveRPA(otherIRK, rpa)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ok {
		t.Fatal("expected rpa not to resolve against an unrelated irk")
	}
}

func TestG2ProducesSixDigitValue(t *testing.T) {
	var u, v [32]byte
	var x, y [16]byte
	n, err := G2(u, v, x, y)
	if err != nil {
		t.Fatalf("g2: %v", err)
	}
	if n >= 1000000 {
		t.Fatalf("g2 value %d not within 6 digits", n)
	}
}

func TestC1MatchesSampleData(t *testing.T) {
	var k [16]byte
	r := Value16{0xe0, 0x2e, 0x70, 0xc6, 0x4e, 0x27, 0x88, 0x63, 0x0e, 0x6f, 0xad, 0x56, 0x21, 0xd5, 0x83, 0x57}
	preq := [7]byte{0x01, 0x01, 0x00, 0x00, 0x10, 0x07, 0x07}
	pres := [7]byte{0x02, 0x03, 0x00, 0x00, 0x08, 0x00, 0x05}
	ia := direct.NewAddress(direct.EUI48{0xA1, 0xA2, 0xA3, 0xA4, 0xA5, 0xA6}, direct.AddressLERandom)
	ra := direct.NewAddress(direct.EUI48{0xB1, 0xB2, 0xB3, 0xB4, 0xB5, 0xB6}, direct.AddressLEPublic)

	got, err := C1(k, r, preq, pres, ia, ra)
	if err != nil {
		t.Fatalf("c1: %v", err)
	}
	want := Value16{0x86, 0x3b, 0xf1, 0xbe, 0xc5, 0x4d, 0xa7, 0xd2, 0xea, 0x88, 0x89, 0x87, 0xef, 0x3f, 0x1e, 0x1e}
	if got != want {
		t.Fatalf("c1 = %x, want %x", got, want)
	}
}

func TestS1MatchesSampleData(t *testing.T) {
	var k [16]byte
	r1 := Value16{0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x00}
	r2 := Value16{0x00, 0xff, 0xee, 0xdd, 0xcc, 0xbb, 0xaa, 0x99, 0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}

	got, err := S1(k, r1, r2)
	if err != nil {
		t.Fatalf("s1: %v", err)
	}
	want := Value16{0x62, 0xa0, 0x6d, 0x79, 0xae, 0x16, 0x42, 0x5b, 0x9b, 0xf4, 0xb0, 0xe8, 0xf0, 0xe1, 0x1f, 0x9a}
	if got != want {
		t.Fatalf("s1 = %x, want %x", got, want)
	}
}
