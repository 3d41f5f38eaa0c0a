package config

import (
	"testing"
	"time"
)

func TestParseNamespace(t *testing.T) {
	t.Setenv("DIRECT_TEST_NS", "cmd.complete.timeout=8s, ringsize=128,bad")
	m := ParseNamespace("DIRECT_TEST_NS")
	if m["cmd.complete.timeout"] != "8s" {
		t.Fatalf("unexpected value: %q", m["cmd.complete.timeout"])
	}
	if m["ringsize"] != "128" {
		t.Fatalf("unexpected value: %q", m["ringsize"])
	}
	if _, ok := m["bad"]; ok {
		t.Fatal("expected a key without '=' to be dropped")
	}
}

func TestParseNamespaceEmpty(t *testing.T) {
	t.Setenv("DIRECT_TEST_NS_EMPTY", "")
	if m := ParseNamespace("DIRECT_TEST_NS_EMPTY"); len(m) != 0 {
		t.Fatalf("expected empty map, got %v", m)
	}
}

func TestDurationIntBoolDefaults(t *testing.T) {
	m := map[string]string{"d": "2s", "n": "7", "b": "true", "bad": "nope"}
	if got := Duration(m, "d", time.Second); got != 2*time.Second {
		t.Fatalf("Duration = %v", got)
	}
	if got := Duration(m, "missing", time.Second); got != time.Second {
		t.Fatalf("Duration default = %v", got)
	}
	if got := Int(m, "n", 0); got != 7 {
		t.Fatalf("Int = %v", got)
	}
	if got := Int(m, "bad", 9); got != 9 {
		t.Fatalf("Int on bad parse should fall back to default, got %v", got)
	}
	if got := Bool(m, "b", false); !got {
		t.Fatal("Bool = false")
	}
}

func TestDebugEnabled(t *testing.T) {
	t.Setenv("DIRECT_DEBUG", "1")
	if !DebugEnabled() {
		t.Fatal("expected DIRECT_DEBUG=1 to enable debug")
	}
	t.Setenv("DIRECT_DEBUG", "")
	if DebugEnabled() {
		t.Fatal("expected unset DIRECT_DEBUG to disable debug")
	}
}
