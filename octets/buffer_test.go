package octets

import "testing"

func TestPutGetU16LittleEndian(t *testing.T) {
	b := New(4, LittleEndian).Grow(4)
	if err := b.PutU16(0, 0x1234); err != nil {
		t.Fatal(err)
	}
	got, err := b.GetU16(0)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0x1234 {
		t.Fatalf("got %#x, want %#x", got, 0x1234)
	}
	if b.Bytes()[0] != 0x34 || b.Bytes()[1] != 0x12 {
		t.Fatalf("wire bytes wrong: % X", b.Bytes())
	}
}

func TestPutGetU32BigEndian(t *testing.T) {
	b := New(4, BigEndian).Grow(4)
	b.PutU32(0, 0xDEADBEEF)
	got, _ := b.GetU32(0)
	if got != 0xDEADBEEF {
		t.Fatalf("got %#x", got)
	}
	if b.Bytes()[0] != 0xDE {
		t.Fatalf("not big endian: % X", b.Bytes())
	}
}

func TestRangeError(t *testing.T) {
	b := New(2, LittleEndian).Grow(2)
	if err := b.PutU32(0, 1); err == nil {
		t.Fatal("expected RangeError")
	}
	if _, err := b.GetU16(1); err == nil {
		t.Fatal("expected RangeError")
	}
}

func TestU128RoundTrip(t *testing.T) {
	var v [16]byte
	for i := range v {
		v[i] = byte(i + 1)
	}
	b := New(16, LittleEndian).Grow(16)
	if err := b.PutU128(0, v); err != nil {
		t.Fatal(err)
	}
	got, err := b.GetU128(0)
	if err != nil {
		t.Fatal(err)
	}
	if got != v {
		t.Fatalf("round trip mismatch: % X != % X", got, v)
	}
	// Wire order: little-endian means byte 0 of v is byte 0 on the wire.
	if b.Bytes()[0] != 1 {
		t.Fatalf("expected LE wire order, got % X", b.Bytes())
	}
}

func TestEUI48RoundTrip(t *testing.T) {
	addr := [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	b := New(6, LittleEndian).Grow(6)
	b.PutEUI48(0, addr)
	got, err := b.GetEUI48(0)
	if err != nil {
		t.Fatal(err)
	}
	if got != addr {
		t.Fatalf("mismatch: % X", got)
	}
}
