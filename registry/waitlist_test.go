package registry

import (
	"testing"

	direct "github.com/sgothel/direct-bt-go"
)

func TestWaitQueryMatchesAddressWildcard(t *testing.T) {
	q := WaitQuery{
		HasAddress:  true,
		Address:     direct.EUI48{0x01, 0x02, 0x03, 0xAA, 0xBB, 0xCC},
		AddressMask: direct.EUI48{0xFF, 0xFF, 0xFF, 0, 0, 0},
	}
	if !q.Matches(direct.EUI48{0x01, 0x02, 0x03, 0x00, 0x00, 0x00}, "") {
		t.Fatal("expected prefix match to succeed")
	}
	if q.Matches(direct.EUI48{0x01, 0x02, 0x04, 0x00, 0x00, 0x00}, "") {
		t.Fatal("expected mismatched prefix to fail")
	}
}

func TestWaitQueryMatchesNameSubstring(t *testing.T) {
	q := WaitQuery{NameSubstring: "Sensor"}
	if !q.Matches(direct.EUI48{}, "Room Sensor 3") {
		t.Fatal("expected substring match to succeed")
	}
	if q.Matches(direct.EUI48{}, "Thermostat") {
		t.Fatal("expected non-matching name to fail")
	}
}

func TestWaitListFiresOnceThenGuards(t *testing.T) {
	w := NewWaitList()
	w.Add(WaitQuery{NameSubstring: "Foo"})

	first := w.MatchAndMark(direct.EUI48{}, "Foobar")
	if len(first) != 1 {
		t.Fatalf("expected one match, got %d", len(first))
	}
	second := w.MatchAndMark(direct.EUI48{}, "Foobar")
	if len(second) != 0 {
		t.Fatalf("expected the add-once guard to suppress a repeat match, got %d", len(second))
	}

	w.Reset()
	third := w.MatchAndMark(direct.EUI48{}, "Foobar")
	if len(third) != 1 {
		t.Fatalf("expected Reset to clear the fired guard, got %d", len(third))
	}
}

func TestWaitListRemove(t *testing.T) {
	w := NewWaitList()
	h := w.Add(WaitQuery{NameSubstring: "Foo"})
	w.Remove(h)
	if got := w.MatchAndMark(direct.EUI48{}, "Foobar"); len(got) != 0 {
		t.Fatalf("expected removed entry not to match, got %d", len(got))
	}
}
