package config

import (
	"time"

	"github.com/sgothel/direct-bt-go/gatt"
	"github.com/sgothel/direct-bt-go/hci"
	"github.com/sgothel/direct-bt-go/l2cap"
)

// MgmtConfig holds the manager-level timeout/ring defaults from the
// `mgmt` namespace.
type MgmtConfig struct {
	CmdTimeout time.Duration
	RingSize   int
}

func defaultMgmtConfig() MgmtConfig {
	return MgmtConfig{CmdTimeout: 10 * time.Second, RingSize: 64}
}

// Env is the parsed form of all five configuration namespaces
// (`debug`, `hci`, `gatt`, `l2cap`, `mgmt`), each resolved into the
// typed Config struct its owning package defines.
type Env struct {
	Debug bool
	HCI   hci.Config
	GATT  gatt.Config
	L2CAP l2cap.Config
	Mgmt  MgmtConfig
}

// LoadEnv reads the five namespaced environment variables
// (DIRECT_HCI, DIRECT_GATT, DIRECT_L2CAP, DIRECT_MGMT, plus the bare
// DIRECT_DEBUG toggle) and overlays them onto each package's defaults.
func LoadEnv() Env {
	hciNS := ParseNamespace("DIRECT_HCI")
	gattNS := ParseNamespace("DIRECT_GATT")
	l2capNS := ParseNamespace("DIRECT_L2CAP")
	mgmtNS := ParseNamespace("DIRECT_MGMT")

	hciCfg := hci.DefaultConfig()
	hciCfg.CmdCompleteTimeout = Duration(hciNS, "cmd.complete.timeout", hciCfg.CmdCompleteTimeout)
	hciCfg.CmdStatusTimeout = Duration(hciNS, "cmd.status.timeout", hciCfg.CmdStatusTimeout)
	hciCfg.RingSize = Int(hciNS, "ringsize", hciCfg.RingSize)

	gattCfg := gatt.DefaultConfig()
	gattCfg.ReadTimeout = Duration(gattNS, "cmd.read.timeout", gattCfg.ReadTimeout)
	gattCfg.WriteTimeout = Duration(gattNS, "cmd.write.timeout", gattCfg.WriteTimeout)
	gattCfg.InitTimeout = Duration(gattNS, "cmd.init.timeout", gattCfg.InitTimeout)
	gattCfg.RingSize = Int(gattNS, "ringsize", gattCfg.RingSize)

	l2capCfg := l2cap.DefaultConfig()
	l2capCfg.ReaderTimeout = Duration(l2capNS, "reader.timeout", l2capCfg.ReaderTimeout)
	l2capCfg.RestartCount = Int(l2capNS, "restart.count", l2capCfg.RestartCount)

	mgmtCfg := defaultMgmtConfig()
	mgmtCfg.CmdTimeout = Duration(mgmtNS, "cmd.timeout", mgmtCfg.CmdTimeout)
	mgmtCfg.RingSize = Int(mgmtNS, "ringsize", mgmtCfg.RingSize)

	return Env{
		Debug: DebugEnabled(),
		HCI:   hciCfg,
		GATT:  gattCfg,
		L2CAP: l2capCfg,
		Mgmt:  mgmtCfg,
	}
}
