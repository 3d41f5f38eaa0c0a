package adapter

import (
	"context"

	direct "github.com/sgothel/direct-bt-go"
	"github.com/sgothel/direct-bt-go/hci"
	"github.com/sgothel/direct-bt-go/registry"
	"github.com/sgothel/direct-bt-go/smp"
)

// defaultAuthReq is bonding + Secure Connections, no MITM unless the
// security registry demands it.
const defaultAuthReq = smp.AuthReqBonding | smp.AuthReqSC

// pairingRequestFor builds the local PairingRequest for addr/name from
// the adapter's security registry (per-pattern security level, IO
// capability, passkey).
func (a *Adapter) pairingRequestFor(addr direct.Address, name string) smp.PairingRequest {
	entry := a.registry.SecurityFor(addr.EUI48, name)
	authReq := defaultAuthReq
	if entry.SecLevel >= registry.SecLevelAuthenticatedEncryption {
		authReq |= smp.AuthReqMITM
	}
	return smp.PairingRequest{
		IOCap:       entry.IOCap,
		OOBFlag:     smp.OOBAuthDataNotPresent,
		AuthReq:     authReq,
		MaxKeySize:  16,
		InitKeyDist: smp.KeyDistEncKey | smp.KeyDistIDKey | smp.KeyDistSign,
		RespKeyDist: smp.KeyDistEncKey | smp.KeyDistIDKey | smp.KeyDistSign,
	}
}

// StartPairing begins pairing as the link initiator, sending the
// first Pairing Request over d's SMP channel.
func (a *Adapter) StartPairing(d *Device) error {
	d.mu.Lock()
	session, ch := d.smpSession, d.smpChannel
	d.mu.Unlock()
	if session == nil || ch == nil {
		return direct.NewError(direct.KindDisconnected, "adapter: device not connected")
	}
	name := ""
	if e := d.EIR(); e != nil && e.HasFullName {
		name = e.FullName
	}
	req := a.pairingRequestFor(d.Address, name)
	return ch.Send(session.StartAsInitiator(req))
}

// runPairing pumps d's SMP channel inbox into its Session until the
// session reaches a terminal state, persisting or invalidating keys
// via the adapter's key store and emitting StatusPairingProgress;
// a failed pairing invalidates the stored key file. It is
// started as its own goroutine per connected Device.
func (a *Adapter) runPairing(ctx context.Context, d *Device) {
	d.mu.Lock()
	session, ch := d.smpSession, d.smpChannel
	d.mu.Unlock()
	if session == nil || ch == nil {
		return
	}

	session.OnStateChange(func(from, to smp.State) {
		a.emit(StatusEvent{Kind: StatusPairingProgress, Device: d})
		if to == smp.StateCompleted {
			a.onPairingCompleted(d, session)
		} else if to == smp.StateFailed {
			a.onPairingFailed(d, session)
		}
	})

	encStarted := false
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch.Inbox():
			if !ok {
				return
			}
			op, body, err := smp.Decode(raw)
			if err != nil {
				continue
			}
			reply, err := session.Receive(op, body)
			if err != nil && a.log != nil {
				a.log.Debugf("adapter: smp receive error for %s: %v", d.Address, err)
			}
			if len(reply) > 0 {
				_ = ch.Send(reply)
			}
			if !encStarted && session.State() == smp.StateKeyDistribution && d.Role() == RoleMaster {
				encStarted = true
				a.startEncryption(ctx, d, session)
			}
			if session.State().Terminal() {
				return
			}
		}
	}
}

// startEncryption issues LE Start Encryption on the initiator side once
// the confirm exchange has produced a key: the legacy STK mid-pairing,
// or the f5-derived LTK for Secure Connections. Rand and EDIV are zero
// for both.
func (a *Adapter) startEncryption(ctx context.Context, d *Device, session *smp.Session) {
	handle, ok := d.ConnectionHandle()
	if !ok {
		return
	}
	var key [16]byte
	if stk, have := session.STK(); have {
		key = [16]byte(stk)
	} else if k := session.Keys(); k.HasLTK {
		key = k.LTK
	} else {
		return
	}
	params := hci.StartEncryptionParams{ConnectionHandle: handle, LTK: key}
	if _, err := a.hciHandler.SendCommand(ctx, hci.OpLEStartEncryption, params.Encode()); err != nil && a.log != nil {
		a.log.Warningf("adapter: start encryption failed for %s: %v", d.Address, err)
	}
}

func (a *Adapter) onPairingCompleted(d *Device, session *smp.Session) {
	k := session.Keys()
	k.LocalAddress = a.PublicAddress
	k.RemoteAddress = d.Address
	d.publishKeys(k)
	if a.keystore != nil {
		if err := a.keystore.Save(k); err != nil && a.log != nil {
			a.log.Warningf("adapter: key save failed for %s: %v", d.Address, err)
		}
	}
	d.setState(StateReady)
}

func (a *Adapter) onPairingFailed(d *Device, session *smp.Session) {
	if a.keystore != nil {
		if err := a.keystore.Invalidate(a.PublicAddress, d.Address); err != nil && a.log != nil {
			a.log.Debugf("adapter: key invalidate for %s: %v", d.Address, err)
		}
	}
}
