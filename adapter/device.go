// Package adapter binds one physical controller: one Adapter owns the
// controller's HCI handler and L2CAP muxer, and tracks the set of
// connected Devices. Status listeners are dispatched panic-safe; a
// misbehaving listener is reported, never fatal.
package adapter

import (
	"sync"

	"github.com/sgothel/direct-bt-go/atomic"
	direct "github.com/sgothel/direct-bt-go"
	"github.com/sgothel/direct-bt-go/eir"
	"github.com/sgothel/direct-bt-go/gatt"
	"github.com/sgothel/direct-bt-go/l2cap"
	"github.com/sgothel/direct-bt-go/smp"
)

// LifecycleState is one step of a Device's lifecycle: discovered,
// connecting, connected, ready, disconnected, removed.
type LifecycleState int

const (
	StateDiscovered LifecycleState = iota
	StateConnecting
	StateConnected
	StateReady
	StateDisconnected
	StateRemoved
)

func (s LifecycleState) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReady:
		return "ready"
	case StateDisconnected:
		return "disconnected"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Role is the link role a Device plays relative to the local
// controller. Master (central) is the default; Slave (peripheral) is
// selected by starting advertising with a GATT server attached.
type Role int

const (
	RoleMaster Role = iota
	RoleSlave
)

// Device is one discovered or connected peer. Only the owning Adapter
// may create/destroy a Device. A Device holds no reference back to its
// Adapter, neither a pointer nor an adapter index.
type Device struct {
	Address direct.Address

	mu    sync.Mutex
	state LifecycleState
	role  Role

	// eirSnapshot is published with an SC atomic release; readers go
	// through the matching acquire.
	eirSnapshot atomic.Ref
	connHandle  atomic.Uint16
	hasHandle   atomic.Bool

	channel *l2cap.Channel // ATT bearer channel, set once connected
	gattClient *gatt.Client
	gattServer *gatt.Server

	smpChannel    *l2cap.Channel
	smpSession    *smp.Session
	pairingCancel func()
	keys          atomic.Ref // *smp.Keys, published only once pairing reaches COMPLETED
}

// NewDevice constructs a Device in the StateDiscovered lifecycle step.
func NewDevice(addr direct.Address) *Device {
	return &Device{Address: addr, state: StateDiscovered}
}

func (d *Device) State() LifecycleState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Device) setState(s LifecycleState) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Role reports the link role negotiated for this Device.
func (d *Device) Role() Role {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.role
}

// EIR returns the most recently published advertising-data snapshot
// for this device, or nil if none has been observed yet.
func (d *Device) EIR() *eir.EIR {
	v := d.eirSnapshot.Load()
	if v == nil {
		return nil
	}
	return v.(*eir.EIR)
}

// PublishEIR releases a freshly merged EIR snapshot.
func (d *Device) PublishEIR(e *eir.EIR) {
	d.eirSnapshot.Store(e)
}

// ConnectionHandle returns the device's HCI connection handle and
// whether one has been assigned. Handles are unique per adapter
// while the connection lasts.
func (d *Device) ConnectionHandle() (uint16, bool) {
	return d.connHandle.Load(), d.hasHandle.Load()
}

func (d *Device) publishConnectionHandle(h uint16) {
	d.connHandle.Store(h)
	d.hasHandle.Store(true)
}

// GATTClient returns the central-role GATT client for this device, or
// nil if the device is in the peripheral (RoleSlave/server) role or
// not yet connected.
func (d *Device) GATTClient() *gatt.Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gattClient
}

// GATTServer returns the peripheral-role GATT server for this device,
// or nil if the device is in the central (RoleMaster/client) role.
func (d *Device) GATTServer() *gatt.Server {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gattServer
}

// SMPSession returns this device's pairing state machine, created at
// connection time.
func (d *Device) SMPSession() *smp.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.smpSession
}

// Keys returns the negotiated key bundle, only valid once the SMP
// session reports StateCompleted; key material is never exposed
// before encryption has been enabled on the link.
func (d *Device) Keys() (smp.Keys, bool) {
	v := d.keys.Load()
	if v == nil {
		return smp.Keys{}, false
	}
	return *v.(*smp.Keys), true
}

func (d *Device) publishKeys(k smp.Keys) {
	d.keys.Store(&k)
}

// setPairingCancel records the cancel function for the background
// goroutine pumping this device's SMP channel, so a later disconnect
// can stop it.
func (d *Device) setPairingCancel(cancel func()) {
	d.mu.Lock()
	d.pairingCancel = cancel
	d.mu.Unlock()
}
