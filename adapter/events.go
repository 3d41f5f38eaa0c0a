package adapter

import (
	"context"

	direct "github.com/sgothel/direct-bt-go"
	"github.com/sgothel/direct-bt-go/eir"
	"github.com/sgothel/direct-bt-go/hci"
	"github.com/sgothel/direct-bt-go/l2cap"
	"github.com/sgothel/direct-bt-go/smp"
)

// onHCIEvent is the Adapter's hci.Handler subscription: it demuxes LE
// Meta sub-events and a handful of standard events into Device
// lifecycle transitions and StatusEvent fan-out.
func (a *Adapter) onHCIEvent(e *hci.Event) {
	switch e.Code {
	case hci.EventLEMetaCode:
		sub, body, err := e.SubEventCode()
		if err != nil {
			return
		}
		a.onLEMeta(sub, body)
	case hci.EventDisconnectionCompleteCode:
		dc, err := hci.DecodeDisconnectionComplete(e.Params)
		if err != nil {
			return
		}
		a.onDisconnectionComplete(dc)
	case hci.EventEncryptionChangeCode:
		ec, err := hci.DecodeEncryptionChange(e.Params)
		if err != nil {
			return
		}
		a.onEncryptionChange(ec)
	}
}

func (a *Adapter) onLEMeta(sub hci.LEMetaSubEventCode, body []byte) {
	switch sub {
	case hci.LEConnectionCompleteSubCode:
		cc, err := hci.DecodeLEConnectionComplete(body)
		if err != nil {
			return
		}
		a.onLEConnectionComplete(cc)
	case hci.LEAdvertisingReportSubCode:
		reports, err := hci.DecodeLEAdvertisingReports(body)
		if err != nil {
			return
		}
		for _, r := range reports {
			a.onAdvertisingReport(r)
		}
	case hci.LELongTermKeyRequestSubCode:
		req, err := hci.DecodeLELongTermKeyRequest(body)
		if err != nil {
			return
		}
		a.onLongTermKeyRequest(req)
	}
}

func (a *Adapter) onAdvertisingReport(r hci.AdvertisingReport) {
	addr := direct.NewAddress(r.Address, addressTypeFromHCI(r.AddressType))
	d := a.deviceFor(addr)

	parsed, err := eir.Parse(r.Data)
	if err == nil {
		if existing := d.EIR(); existing != nil {
			merged := *existing
			merged.Merge(parsed)
			d.PublishEIR(&merged)
		} else {
			d.PublishEIR(parsed)
		}
	}

	name := ""
	if parsed != nil {
		if parsed.HasFullName {
			name = parsed.FullName
		} else if parsed.HasShortName {
			name = parsed.ShortName
		}
	}
	a.registry.WaitList.MatchAndMark(r.Address, name)

	a.emit(StatusEvent{Kind: StatusDeviceFound, Device: d})
}

func (a *Adapter) onLEConnectionComplete(cc *hci.LEConnectionCompleteEvent) {
	if cc.Status != hci.StatusSuccess {
		return
	}
	addr := direct.NewAddress(cc.PeerAddress, addressTypeFromHCI(cc.PeerAddressType))
	d := a.deviceFor(addr)
	d.publishConnectionHandle(cc.ConnectionHandle)
	d.setState(StateConnected)
	d.mu.Lock()
	if cc.Role == 0 {
		d.role = RoleMaster
	} else {
		d.role = RoleSlave
	}
	d.channel = a.muxer.Open(cc.ConnectionHandle, l2cap.CIDATT)
	d.smpChannel = a.muxer.Open(cc.ConnectionHandle, l2cap.CIDSMPLE)
	session := smp.NewSession(d.role == RoleMaster)
	session.SetAddresses(a.PublicAddress, addr)
	if d.role == RoleSlave {
		// The initiator populates its Session's local capabilities as a
		// side effect of StartAsInitiator; a responder Session needs
		// them set explicitly so it can answer an inbound Pairing
		// Request with its own registry-configured capabilities.
		name := ""
		if e := d.EIR(); e != nil && e.HasFullName {
			name = e.FullName
		}
		session.SetLocalCapabilities(a.pairingRequestFor(addr, name))
	}
	d.smpSession = session
	d.mu.Unlock()

	a.bindGATT(d)

	pairCtx, cancel := context.WithCancel(context.Background())
	d.setPairingCancel(cancel)
	go a.runPairing(pairCtx, d)

	a.emit(StatusEvent{Kind: StatusDeviceConnected, Device: d})
}

func (a *Adapter) onDisconnectionComplete(dc *hci.DisconnectionCompleteEvent) {
	target := a.deviceByHandle(dc.ConnectionHandle)
	if target == nil {
		return
	}
	target.setState(StateDisconnected)
	target.mu.Lock()
	ch, smpCh, cancel := target.channel, target.smpChannel, target.pairingCancel
	target.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if ch != nil {
		ch.Close()
	}
	if smpCh != nil {
		smpCh.Close()
	}
	a.muxer.UnregisterConnection(dc.ConnectionHandle)
	if s := target.SMPSession(); s != nil {
		s.Fail(direct.NewError(direct.KindDisconnected, "adapter: link disconnected (reason 0x%02x)", dc.Reason))
	}
	a.emit(StatusEvent{Kind: StatusDeviceDisconnected, Device: target})
}

func (a *Adapter) deviceByHandle(handle uint16) *Device {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, d := range a.devices {
		if h, ok := d.ConnectionHandle(); ok && h == handle {
			return d
		}
	}
	return nil
}

// onLongTermKeyRequest answers the controller's key lookup on the
// responder side: a mid-pairing legacy session supplies its STK, a
// bonded link its negotiated or persisted LTK. The reply command is
// issued off the dispatch goroutine.
func (a *Adapter) onLongTermKeyRequest(req *hci.LELongTermKeyRequestEvent) {
	d := a.deviceByHandle(req.ConnectionHandle)
	var key [16]byte
	found := false
	if d != nil {
		if s := d.SMPSession(); s != nil && req.Rand == 0 && req.EDIV == 0 {
			if stk, ok := s.STK(); ok {
				key, found = [16]byte(stk), true
			}
		}
		if !found {
			if k, ok := d.Keys(); ok && k.HasLTK && k.Rand == req.Rand && k.EDIV == req.EDIV {
				key, found = k.LTK, true
			}
		}
		if !found && a.keystore != nil {
			if k, err := a.keystore.Load(a.PublicAddress, d.Address); err == nil && k.HasLTK && k.Rand == req.Rand && k.EDIV == req.EDIV {
				key, found = k.LTK, true
			}
		}
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.HCI.CmdCompleteTimeout)
		defer cancel()
		var err error
		if found {
			_, err = a.hciHandler.SendCommand(ctx, hci.OpLELongTermKeyReply, hci.LELongTermKeyReply(req.ConnectionHandle, key))
		} else {
			_, err = a.hciHandler.SendCommand(ctx, hci.OpLELongTermKeyNegReply, hci.LELongTermKeyNegReply(req.ConnectionHandle))
		}
		if err != nil && a.log != nil {
			a.log.Debugf("adapter: long term key reply failed on handle %#x: %v", req.ConnectionHandle, err)
		}
	}()
}

func (a *Adapter) onEncryptionChange(ec *hci.EncryptionChangeEvent) {
	d := a.deviceByHandle(ec.ConnectionHandle)
	if d == nil {
		return
	}
	if ec.Status != hci.StatusSuccess || !ec.Enabled {
		if s := d.SMPSession(); s != nil {
			s.Fail(direct.NewError(direct.KindUnauthorized, "adapter: encryption change failed: %s", ec.Status))
		}
		return
	}
	a.emit(StatusEvent{Kind: StatusPairingProgress, Device: d})
}

func addressTypeFromHCI(t uint8) direct.AddressType {
	if t == 0 {
		return direct.AddressLEPublic
	}
	return direct.AddressLERandom
}
