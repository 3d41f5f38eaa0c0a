package direct

import "testing"

func TestUUID16EqualsExpansion(t *testing.T) {
	short := UUIDFrom16(0x1234)
	full := UUIDFrom128(short.To128Bit())
	if !short.Equal(full) {
		t.Fatalf("16-bit uuid should equal its 128-bit expansion")
	}
	if !full.Is16Bit() {
		t.Fatalf("expansion of a 16-bit uuid should still report Is16Bit")
	}
	if full.ShortString() != "1234" {
		t.Fatalf("got %q", full.ShortString())
	}
}

func TestUUIDParseRoundTrip(t *testing.T) {
	u, err := ParseUUID("00001234-5678-100a-8000-00805F9B34FB")
	if err != nil {
		t.Fatal(err)
	}
	if u.Is16Bit() {
		t.Fatalf("this uuid should not be a 16-bit short form")
	}
}

func TestUUIDAddressWildcardMatch(t *testing.T) {
	a := NewAddress(EUI48{1, 2, 3, 4, 5, 6}, AddressLEPublic)
	b := NewAddress(EUI48{1, 2, 3, 4, 5, 6}, AddressUndefined)
	if !a.Matches(b) || !b.Matches(a) {
		t.Fatal("AddressUndefined should act as a wildcard on either side")
	}
	c := NewAddress(EUI48{1, 2, 3, 4, 5, 6}, AddressLERandom)
	if a.Matches(c) {
		t.Fatal("distinct concrete types should not match")
	}
}

func TestRandomSubTypeFromMSB(t *testing.T) {
	cases := []struct {
		msb  byte
		want RandomAddressSubType
	}{
		{0b11000000, RandomStaticPublic},
		{0b10000000, RandomReserved},
		{0b01000000, RandomResolvablePrivate},
		{0b00000000, RandomUnresolvablePrivate},
	}
	for _, c := range cases {
		e := EUI48{c.msb, 0, 0, 0, 0, 0}
		if got := e.SubType(); got != c.want {
			t.Errorf("msb %08b: got %s, want %s", c.msb, got, c.want)
		}
	}
}
