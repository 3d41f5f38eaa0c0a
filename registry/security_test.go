package registry

import (
	"testing"

	direct "github.com/sgothel/direct-bt-go"
	"github.com/sgothel/direct-bt-go/smp"
)

func TestSecurityRegistryLookupFallsBackToDefault(t *testing.T) {
	r := NewSecurityRegistry()
	if _, ok := r.Lookup(direct.EUI48{0x01}, "anything"); ok {
		t.Fatal("expected empty registry to never match")
	}
}

func TestSecurityRegistryFirstMatchWins(t *testing.T) {
	r := NewSecurityRegistry()
	general := SecurityEntry{
		Query:    WaitQuery{NameSubstring: "Sensor"},
		SecLevel: SecLevelUnauthenticatedEncryption,
		IOCap:    smp.IONoInputNoOutput,
	}
	specific := SecurityEntry{
		Query:    WaitQuery{NameSubstring: "Sensor-9"},
		SecLevel: SecLevelAuthenticatedLESC,
		IOCap:    smp.IODisplayYesNo,
	}
	r.Set(specific)
	r.Set(general)

	e, ok := r.Lookup(direct.EUI48{}, "Sensor-9 Kitchen")
	if !ok || e.SecLevel != SecLevelAuthenticatedLESC {
		t.Fatalf("expected the first-registered (more specific) entry to win, got %+v ok=%v", e, ok)
	}
}

func TestRegistrySecurityForDefaultsWhenUnmatched(t *testing.T) {
	reg := New()
	e := reg.SecurityFor(direct.EUI48{0xFF}, "Unknown")
	if e != DefaultSecurityEntry {
		t.Fatalf("expected DefaultSecurityEntry, got %+v", e)
	}
}
