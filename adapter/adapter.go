package adapter

import (
	"context"
	"sync"

	"github.com/op/go-logging"

	direct "github.com/sgothel/direct-bt-go"
	"github.com/sgothel/direct-bt-go/eir"
	"github.com/sgothel/direct-bt-go/gatt"
	"github.com/sgothel/direct-bt-go/hci"
	"github.com/sgothel/direct-bt-go/l2cap"
	"github.com/sgothel/direct-bt-go/registry"
)

// DiscoveryPolicy governs whether scanning pauses around connection
// attempts: keep scanning, pause on connect, pause until the device
// is ready, or pause until it disconnects.
type DiscoveryPolicy int

const (
	DiscoveryKeepAlive DiscoveryPolicy = iota
	DiscoveryPauseOnConnect
	DiscoveryPauseUntilReady
	DiscoveryPauseUntilDisconnect
)

// ScanParams names the explicit LE scan parameters.
type ScanParams struct {
	Active           bool
	IntervalUnits    uint16
	WindowUnits      uint16
	OwnAddressType   uint8
	FilterPolicy     uint8
	FilterDuplicates bool
}

// DefaultScanParams returns a conservative active scan: 30ms
// interval/window (48 units of 0.625ms), public own address, accept-all
// filter policy, with duplicate filtering enabled.
func DefaultScanParams() ScanParams {
	return ScanParams{Active: true, IntervalUnits: 48, WindowUnits: 48, FilterDuplicates: true}
}

// AdvertisingParams bundles the adapter-facing advertising knobs:
// EIR masks for initial-adv vs scan-response, interval, PDU type,
// channel map, and filter policy.
type AdvertisingParams struct {
	IntervalMinUnits uint16
	IntervalMaxUnits uint16
	AdvType          uint8
	ChannelMap       uint8
	FilterPolicy     uint8

	InitialAdvMask eir.EIRDataType
	ScanRspMask    eir.EIRDataType
}

// DefaultAdvertisingParams returns ADV_IND on all three channels at a
// 100ms interval (160 units of 0.625ms), splitting flags+name+MSD into
// the initial advertisement and the service UUID list into the scan
// response, the conventional split when one payload exceeds 31 octets.
func DefaultAdvertisingParams() AdvertisingParams {
	return AdvertisingParams{
		IntervalMinUnits: 160,
		IntervalMaxUnits: 160,
		AdvType:          0, // ADV_IND
		ChannelMap:       0x07,
		InitialAdvMask:   eir.Flags | eir.Name | eir.ManufacturerData,
		ScanRspMask:      eir.ServiceUUID16 | eir.ServiceUUID32 | eir.ServiceUUID128,
	}
}

// StatusEvent is the tagged union of notifications an Adapter's
// status listeners receive: discovery, device found, device
// connected/disconnected, settings changed, pairing progress.
type StatusEvent struct {
	Kind   StatusKind
	Device *Device
	Err    error
}

type StatusKind int

const (
	StatusDiscoveryStarted StatusKind = iota
	StatusDiscoveryStopped
	StatusDeviceFound
	StatusDeviceConnected
	StatusDeviceDisconnected
	StatusPairingProgress
	StatusSettingsChanged
)

// StatusListener receives every StatusEvent. Implementations must not
// issue blocking HCI operations synchronously; spawn a
// goroutine if needed.
type StatusListener func(StatusEvent)

// Config bundles the timeouts an Adapter applies to its own
// lifecycle operations.
type Config struct {
	HCI  hci.Config
	GATT gatt.Config

	KeyDir string // directory for smp key-file persistence
}

// Adapter owns one physical controller: its HciHandler, the L2CAP
// muxer atop it, and the set of tracked Devices.
type Adapter struct {
	Index         int
	PublicAddress direct.Address
	log           *logging.Logger

	hciHandler *hci.Handler
	muxer      *l2cap.Muxer
	registry   *registry.Registry
	keystore   *registry.KeyStore
	cfg        Config

	mu             sync.RWMutex
	name           string
	powered        bool
	role           Role
	discoveryState bool
	advertising    bool
	devices        map[direct.Address]*Device
	serverDB       *gatt.Database

	listenersMu sync.Mutex
	listeners   []subStatus
	nextSubID   uint64

	hciSubID uint64
}

// New constructs an Adapter over an already-started hci.Handler.
// reg may be nil, in which case registry.Default() is used. Keys are
// persisted under cfg.KeyDir; an empty KeyDir disables persistence.
func New(index int, pubAddr direct.Address, h *hci.Handler, cfg Config, reg *registry.Registry, log *logging.Logger) *Adapter {
	if reg == nil {
		reg = registry.Default()
	}
	a := &Adapter{
		Index:         index,
		PublicAddress: pubAddr,
		log:           log,
		hciHandler:    h,
		cfg:           cfg,
		registry:      reg,
		devices:       make(map[direct.Address]*Device),
	}
	a.muxer = l2cap.NewMuxer(h, log)
	if cfg.KeyDir != "" {
		if ks, err := registry.NewKeyStore(cfg.KeyDir); err == nil {
			a.keystore = ks
		} else if log != nil {
			log.Warningf("adapter: key store unavailable: %v", err)
		}
	}
	a.hciSubID = h.Subscribe(a.onHCIEvent)
	return a
}

// Subscribe registers fn for every StatusEvent. Returns a handle for
// Unsubscribe.
func (a *Adapter) Subscribe(fn StatusListener) uint64 {
	a.listenersMu.Lock()
	defer a.listenersMu.Unlock()
	a.nextSubID++
	id := a.nextSubID
	a.listeners = append(a.listeners, subStatus{id: id, fn: fn})
	return id
}

type subStatus struct {
	id uint64
	fn StatusListener
}

func (a *Adapter) Unsubscribe(id uint64) {
	a.listenersMu.Lock()
	defer a.listenersMu.Unlock()
	for i, s := range a.listeners {
		if s.id == id {
			a.listeners = append(a.listeners[:i], a.listeners[i+1:]...)
			return
		}
	}
}

func (a *Adapter) emit(ev StatusEvent) {
	a.listenersMu.Lock()
	ls := append([]subStatus(nil), a.listeners...)
	a.listenersMu.Unlock()
	for _, s := range ls {
		a.invokeSafely(s.fn, ev)
	}
}

func (a *Adapter) invokeSafely(fn StatusListener, ev StatusEvent) {
	defer func() {
		if r := recover(); r != nil && a.log != nil {
			a.log.Warningf("adapter: status listener panicked: %v", r)
		}
	}()
	fn(ev)
}

// Initialize resets the controller and enables LE host support.
func (a *Adapter) Initialize(ctx context.Context) error {
	if _, err := a.hciHandler.SendCommand(ctx, hci.OpReset, nil); err != nil {
		return err
	}
	if _, err := a.hciHandler.SendCommand(ctx, hci.OpWriteLEHostSupport, []byte{1, 0}); err != nil {
		return err
	}
	rp, err := a.hciHandler.SendCommand(ctx, hci.OpReadBDADDR, nil)
	if err == nil && len(rp) >= 6 {
		var e direct.EUI48
		for i := 0; i < 6; i++ {
			e[i] = rp[5-i]
		}
		a.mu.Lock()
		a.PublicAddress = direct.NewAddress(e, direct.AddressLEPublic)
		a.mu.Unlock()
	}
	a.mu.Lock()
	a.powered = true
	a.mu.Unlock()
	a.emit(StatusEvent{Kind: StatusSettingsChanged})
	return nil
}

// SetPowered issues Reset when transitioning to powered-off-then-on;
// the powered flag itself is coarse, host-side state.
func (a *Adapter) SetPowered(ctx context.Context, on bool) error {
	a.mu.Lock()
	a.powered = on
	a.mu.Unlock()
	if on {
		return a.Initialize(ctx)
	}
	return nil
}

func (a *Adapter) Powered() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.powered
}

// SetName sets the locally cached adapter name and issues Write Local
// Name to the controller.
func (a *Adapter) SetName(ctx context.Context, name string) error {
	b := make([]byte, 248)
	copy(b, name)
	if _, err := a.hciHandler.SendCommand(ctx, hci.OpWriteLocalName, b); err != nil {
		return err
	}
	a.mu.Lock()
	a.name = name
	a.mu.Unlock()
	a.emit(StatusEvent{Kind: StatusSettingsChanged})
	return nil
}

func (a *Adapter) Name() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.name
}

// Close tears down the HCI handler and L2CAP muxer, unblocking all
// reader goroutines with Disconnected, and
// resolves any device mid-pairing to FAILED.
func (a *Adapter) Close() error {
	a.hciHandler.Unsubscribe(a.hciSubID)
	a.muxer.Close()

	a.mu.Lock()
	devs := make([]*Device, 0, len(a.devices))
	for _, d := range a.devices {
		devs = append(devs, d)
	}
	a.mu.Unlock()
	for _, d := range devs {
		if s := d.SMPSession(); s != nil {
			s.Fail(direct.NewError(direct.KindCancelled, "adapter: closed"))
		}
	}
	return a.hciHandler.Close()
}

// Devices returns a snapshot of the currently tracked devices.
func (a *Adapter) Devices() []*Device {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Device, 0, len(a.devices))
	for _, d := range a.devices {
		out = append(out, d)
	}
	return out
}

// deviceFor returns the tracked Device for addr, creating one in
// StateDiscovered if it does not already exist. Only the adapter
// creates or destroys Devices.
func (a *Adapter) deviceFor(addr direct.Address) *Device {
	a.mu.Lock()
	defer a.mu.Unlock()
	if d, ok := a.devices[addr]; ok {
		return d
	}
	d := NewDevice(addr)
	a.devices[addr] = d
	return d
}

// RemoveDevice drops addr from the tracked set, invalidating its
// registry bookkeeping.
func (a *Adapter) RemoveDevice(addr direct.Address) {
	a.mu.Lock()
	delete(a.devices, addr)
	a.mu.Unlock()
	a.registry.Processing.ForgetProcessed(addr)
}

const defaultDisconnectReason = 0x13 // REMOTE_USER_TERMINATED_CONNECTION

// Disconnect tears down an established connection.
func (a *Adapter) Disconnect(ctx context.Context, d *Device) error {
	handle, ok := d.ConnectionHandle()
	if !ok {
		return direct.NewError(direct.KindDisconnected, "adapter: device has no connection handle")
	}
	_, err := a.hciHandler.SendCommand(ctx, hci.OpDisconnect, hci.DisconnectParams{
		ConnectionHandle: handle,
		Reason:           defaultDisconnectReason,
	}.Encode())
	return err
}
