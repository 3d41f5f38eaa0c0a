// Package manager implements the process-wide
// singleton enumerating the controllers reported by the OS, owning
// one Adapter per controller, and dispatching adapter-added/removed
// callbacks. The logger-injected, state-owning struct with panic-safe
// callback dispatch mirrors the same shape used throughout this
// module's adapter and hci packages.
package manager

import (
	"sync"

	"github.com/blang/semver"
	"github.com/op/go-logging"

	direct "github.com/sgothel/direct-bt-go"
	"github.com/sgothel/direct-bt-go/adapter"
	"github.com/sgothel/direct-bt-go/config"
	"github.com/sgothel/direct-bt-go/hci"
	"github.com/sgothel/direct-bt-go/registry"
)

// coreVersion is the semver the embedder can check for compatibility.
var coreVersion = direct.CoreVersion

// CoreVersion returns this module's semantic version.
func CoreVersion() semver.Version { return coreVersion }

// Callback is notified when an Adapter is added or removed from the
// Manager's tracked set.
type Callback func(a *adapter.Adapter, added bool)

// Manager owns every Adapter this process has opened, and the shared
// Registry they draw security/wait-list policy from.
type Manager struct {
	log      *logging.Logger
	registry *registry.Registry
	cfg      Config

	mu          sync.Mutex
	adapters    map[int]*adapter.Adapter
	nextCbID    uint64
	callbacks   map[uint64]Callback
	closed      bool
}

// Config is the per-adapter settings a Manager applies to every
// Adapter it opens.
type Config = adapter.Config

// New constructs an empty Manager. reg may be nil, in which case
// registry.Default() is used.
func New(cfg Config, reg *registry.Registry, log *logging.Logger) *Manager {
	if reg == nil {
		reg = registry.Default()
	}
	return &Manager{
		log:       log,
		registry:  reg,
		cfg:       cfg,
		adapters:  make(map[int]*adapter.Adapter),
		callbacks: make(map[uint64]Callback),
	}
}

// NewFromEnv builds a Manager whose per-adapter defaults come from
// config.LoadEnv.
func NewFromEnv(keyDir string, reg *registry.Registry, log *logging.Logger) *Manager {
	env := config.LoadEnv()
	return New(Config{HCI: env.HCI, KeyDir: keyDir}, reg, log)
}

// OpenAll enumerates the controllers the OS currently reports and
// opens an Adapter over each one that isn't already tracked.
func (m *Manager) OpenAll() error {
	indices, err := hci.EnumerateDeviceIndices()
	if err != nil {
		return err
	}
	var firstErr error
	for _, idx := range indices {
		if _, err := m.Open(idx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Open binds controller index, constructs its Handler and Adapter,
// and publishes an added callback.
func (m *Manager) Open(index int) (*adapter.Adapter, error) {
	m.mu.Lock()
	if a, ok := m.adapters[index]; ok {
		m.mu.Unlock()
		return a, nil
	}
	m.mu.Unlock()

	sock, err := hci.NewRawSocket(index)
	if err != nil {
		return nil, err
	}
	h := hci.NewHandler(sock, m.cfg.HCI, m.log)
	a := adapter.New(index, direct.Address{}, h, m.cfg, m.registry, m.log)
	return m.adopt(index, a)
}

// adopt registers an already-constructed Adapter under index and
// publishes an added callback, separated from Open so tests can supply
// an Adapter built over a fake transport instead of a real controller
// socket.
func (m *Manager) adopt(index int, a *adapter.Adapter) (*adapter.Adapter, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		a.Close()
		return nil, direct.NewError(direct.KindCancelled, "manager: closed")
	}
	m.adapters[index] = a
	cbs := m.callbackSnapshotLocked()
	m.mu.Unlock()

	for _, cb := range cbs {
		m.invokeSafely(cb, a, true)
	}
	return a, nil
}

// Remove closes and forgets the Adapter at index, publishing a removed
// callback.
func (m *Manager) Remove(index int) error {
	m.mu.Lock()
	a, ok := m.adapters[index]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.adapters, index)
	cbs := m.callbackSnapshotLocked()
	m.mu.Unlock()

	err := a.Close()
	for _, cb := range cbs {
		m.invokeSafely(cb, a, false)
	}
	return err
}

// Adapters returns a snapshot of every currently tracked Adapter.
func (m *Manager) Adapters() []*adapter.Adapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*adapter.Adapter, 0, len(m.adapters))
	for _, a := range m.adapters {
		out = append(out, a)
	}
	return out
}

// AddCallback registers fn for future adapter add/remove events,
// returning a handle for RemoveCallback.
func (m *Manager) AddCallback(fn Callback) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextCbID++
	id := m.nextCbID
	m.callbacks[id] = fn
	return id
}

// RemoveCallback unregisters a callback previously added via AddCallback.
func (m *Manager) RemoveCallback(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.callbacks, id)
}

func (m *Manager) callbackSnapshotLocked() []Callback {
	out := make([]Callback, 0, len(m.callbacks))
	for _, cb := range m.callbacks {
		out = append(out, cb)
	}
	return out
}

func (m *Manager) invokeSafely(fn Callback, a *adapter.Adapter, added bool) {
	defer func() {
		if r := recover(); r != nil && m.log != nil {
			m.log.Warningf("manager: callback panicked: %v", r)
		}
	}()
	fn(a, added)
}

// Close tears down every tracked Adapter and its transport socket.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	adapters := make([]*adapter.Adapter, 0, len(m.adapters))
	for _, a := range m.adapters {
		adapters = append(adapters, a)
	}
	m.adapters = make(map[int]*adapter.Adapter)
	m.mu.Unlock()

	var firstErr error
	for _, a := range adapters {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
