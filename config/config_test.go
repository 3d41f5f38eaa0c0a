package config

import (
	"testing"
	"time"
)

func TestLoadEnvOverlaysHCINamespace(t *testing.T) {
	t.Setenv("DIRECT_HCI", "cmd.complete.timeout=7s,ringsize=32")
	t.Setenv("DIRECT_GATT", "")
	t.Setenv("DIRECT_L2CAP", "")
	t.Setenv("DIRECT_MGMT", "")
	t.Setenv("DIRECT_DEBUG", "")

	env := LoadEnv()
	if env.HCI.CmdCompleteTimeout != 7*time.Second {
		t.Fatalf("CmdCompleteTimeout = %v", env.HCI.CmdCompleteTimeout)
	}
	if env.HCI.RingSize != 32 {
		t.Fatalf("RingSize = %v", env.HCI.RingSize)
	}
}

func TestLoadEnvDefaultsWithoutNamespaces(t *testing.T) {
	t.Setenv("DIRECT_HCI", "")
	t.Setenv("DIRECT_GATT", "")
	t.Setenv("DIRECT_L2CAP", "")
	t.Setenv("DIRECT_MGMT", "")
	t.Setenv("DIRECT_DEBUG", "")

	env := LoadEnv()
	if env.Debug {
		t.Fatal("expected Debug false by default")
	}
	if env.GATT.ReadTimeout == 0 {
		t.Fatal("expected a non-zero default GATT read timeout")
	}
}
