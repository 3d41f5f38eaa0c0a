package adapter

import (
	"context"

	"github.com/sgothel/direct-bt-go/hci"
)

// StartDiscovery enables LE scanning with the given parameters.
func (a *Adapter) StartDiscovery(ctx context.Context, p ScanParams) error {
	typ := hci.ScanPassive
	if p.Active {
		typ = hci.ScanActive
	}
	params := hci.LESetScanParameters(typ, p.IntervalUnits, p.WindowUnits, p.OwnAddressType, p.FilterPolicy)
	if _, err := a.hciHandler.SendCommand(ctx, hci.OpLESetScanParameters, params); err != nil {
		return err
	}
	if _, err := a.hciHandler.SendCommand(ctx, hci.OpLESetScanEnable, hci.LESetScanEnable(true, p.FilterDuplicates)); err != nil {
		return err
	}
	a.mu.Lock()
	a.discoveryState = true
	a.mu.Unlock()
	a.emit(StatusEvent{Kind: StatusDiscoveryStarted})
	return nil
}

// StopDiscovery disables LE scanning.
func (a *Adapter) StopDiscovery(ctx context.Context) error {
	if _, err := a.hciHandler.SendCommand(ctx, hci.OpLESetScanEnable, hci.LESetScanEnable(false, false)); err != nil {
		return err
	}
	a.mu.Lock()
	a.discoveryState = false
	a.mu.Unlock()
	a.emit(StatusEvent{Kind: StatusDiscoveryStopped})
	return nil
}

func (a *Adapter) Discovering() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.discoveryState
}
