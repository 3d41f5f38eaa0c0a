package adapter

import (
	"context"

	"github.com/sgothel/direct-bt-go/eir"
	"github.com/sgothel/direct-bt-go/gatt"
	"github.com/sgothel/direct-bt-go/hci"
)

// StartAdvertising begins advertising e, emitting initial-adv and
// scan-response payloads under params' masks. Attaching a GATT
// server via AttachGATTServer beforehand selects the Slave
// (peripheral) role for any subsequent connection.
func (a *Adapter) StartAdvertising(ctx context.Context, e *eir.EIR, params AdvertisingParams) error {
	advData, err := e.Emit(params.InitialAdvMask)
	if err != nil {
		return err
	}
	if _, err := a.hciHandler.SendCommand(ctx, hci.OpLESetAdvertisingData, hci.LESetAdvertisingData(advData)); err != nil {
		return err
	}

	if params.ScanRspMask != 0 {
		scanRsp, err := e.Emit(params.ScanRspMask)
		if err != nil {
			return err
		}
		if _, err := a.hciHandler.SendCommand(ctx, hci.OpLESetScanResponseData, hci.LESetScanResponseData(scanRsp)); err != nil {
			return err
		}
	}

	hp := hci.AdvertisingParams{
		IntervalMinUnits: params.IntervalMinUnits,
		IntervalMaxUnits: params.IntervalMaxUnits,
		AdvType:          params.AdvType,
		ChannelMap:       params.ChannelMap,
		FilterPolicy:     params.FilterPolicy,
	}
	if _, err := a.hciHandler.SendCommand(ctx, hci.OpLESetAdvertisingParams, hp.Encode()); err != nil {
		return err
	}
	if _, err := a.hciHandler.SendCommand(ctx, hci.OpLESetAdvertiseEnable, hci.LESetAdvertiseEnable(true)); err != nil {
		return err
	}

	a.mu.Lock()
	a.advertising = true
	a.role = RoleSlave
	a.mu.Unlock()
	a.emit(StatusEvent{Kind: StatusSettingsChanged})
	return nil
}

// StopAdvertising disables advertising.
func (a *Adapter) StopAdvertising(ctx context.Context) error {
	if _, err := a.hciHandler.SendCommand(ctx, hci.OpLESetAdvertiseEnable, hci.LESetAdvertiseEnable(false)); err != nil {
		return err
	}
	a.mu.Lock()
	a.advertising = false
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Advertising() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.advertising
}

// AttachGATTServer installs the shared GATT server database this
// Adapter hands every newly connected peripheral-role Device; the
// database is shared across connections.
func (a *Adapter) AttachGATTServer(db *gatt.Database) {
	a.mu.Lock()
	a.serverDB = db
	a.mu.Unlock()
}

// bindGATT wires the appropriate GATT role onto a freshly connected
// Device: a client atop the local controller's central role, or a
// server atop an attached Database when the local controller is
// advertising.
func (a *Adapter) bindGATT(d *Device) {
	a.mu.Lock()
	db := a.serverDB
	a.mu.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.role == RoleSlave && db != nil {
		d.gattServer = gatt.NewServer(db, d.channel, 23)
	} else {
		d.gattClient = gatt.NewClient(d.channel)
		a.cfg.GATT.Apply(d.gattClient)
	}
}
