package adapter

import (
	"context"

	direct "github.com/sgothel/direct-bt-go"
	"github.com/sgothel/direct-bt-go/hci"
)

// ConnectParams bundles the explicit LE Create Connection knobs:
// scan window while
// waiting for the peer, and the connection interval/latency/
// supervision-timeout triple.
type ConnectParams struct {
	ScanIntervalUnits  uint16
	ScanWindowUnits    uint16
	OwnAddressType     uint8
	IntervalMinUnits   uint16
	IntervalMaxUnits   uint16
	Latency            uint16
	SupervisionTimeout uint16
}

// DefaultConnectParams returns a 30ms scan window and a 30-50ms
// connection interval with no latency, matching the supervision
// timeout floor hci.SupervisionTimeout enforces.
func DefaultConnectParams() ConnectParams {
	return ConnectParams{
		ScanIntervalUnits:  48,
		ScanWindowUnits:    48,
		IntervalMinUnits:   24,
		IntervalMaxUnits:   40,
		Latency:            0,
		SupervisionTimeout: hci.SupervisionTimeout(0, 50, 10),
	}
}

// Connect issues LE Create Connection for addr and marks the
// corresponding Device as connecting. The resulting LE Connection
// Complete event, handled by
// onLEConnectionComplete, transitions the Device into StateConnected
// and binds its L2CAP/GATT/SMP plumbing; Connect itself does not block
// for that completion.
func (a *Adapter) Connect(ctx context.Context, addr direct.Address, params ConnectParams) (*Device, error) {
	d := a.deviceFor(addr)
	d.setState(StateConnecting)

	peerAddrType := uint8(0)
	if addr.Type == direct.AddressLERandom {
		peerAddrType = 1
	}

	cp := hci.CreateConnectionParams{
		ScanIntervalUnits:  params.ScanIntervalUnits,
		ScanWindowUnits:    params.ScanWindowUnits,
		PeerAddressType:    peerAddrType,
		PeerAddress:        addr.EUI48,
		OwnAddressType:     params.OwnAddressType,
		IntervalMinUnits:   params.IntervalMinUnits,
		IntervalMaxUnits:   params.IntervalMaxUnits,
		Latency:            params.Latency,
		SupervisionTimeout: params.SupervisionTimeout,
	}
	if _, err := a.hciHandler.SendCommand(ctx, hci.OpLECreateConnection, cp.Encode()); err != nil {
		d.setState(StateDiscovered)
		return nil, err
	}
	return d, nil
}

// CancelConnect aborts an in-flight LE Create Connection, used when
// the caller gives up before
// LE Connection Complete arrives.
func (a *Adapter) CancelConnect(ctx context.Context) error {
	_, err := a.hciHandler.SendCommand(ctx, hci.OpLECreateConnectionCancel, nil)
	return err
}
