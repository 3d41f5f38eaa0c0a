package registry

import (
	direct "github.com/sgothel/direct-bt-go"
	"github.com/sgothel/direct-bt-go/smp"
)

// SecLevel names the minimum security level a device pattern requires
// before GATT/ATT access to its attributes is allowed; an operation
// below the established level fails Unauthorized.
type SecLevel int

const (
	SecLevelNone SecLevel = iota
	SecLevelUnauthenticatedEncryption
	SecLevelAuthenticatedEncryption
	SecLevelAuthenticatedLESC
)

// SecurityEntry is one security registry record, matched against a
// device the same way WaitQuery matches (address-with-wildcards).
type SecurityEntry struct {
	Query      WaitQuery
	SecLevel   SecLevel
	IOCap      smp.IOCapability
	IOCapAuto  bool
	Passkey    uint32
	HasPasskey bool
}

// SecurityRegistry holds per-device-pattern security policy, guarded
// by the same recursive mutex family as WaitList/ProcessingSet.
type SecurityRegistry struct {
	mu      recursiveMutex
	entries []SecurityEntry
}

func NewSecurityRegistry() *SecurityRegistry {
	return &SecurityRegistry{}
}

// Set appends a policy for e.Query's pattern; an earlier entry for the
// same pattern is not replaced. Patterns are matched in registration
// order, first match wins, so more specific entries should be added
// before general ones.
func (r *SecurityRegistry) Set(e SecurityEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

// Lookup returns the first entry whose query matches (addr, name), and
// whether one was found. Callers apply DefaultSecurityEntry themselves
// when false is returned.
func (r *SecurityRegistry) Lookup(addr direct.EUI48, name string) (SecurityEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.Query.Matches(addr, name) {
			return e, true
		}
	}
	return SecurityEntry{}, false
}

// DefaultSecurityEntry is applied when no SecurityRegistry pattern
// matches a device: JustWorks at the unauthenticated-encryption
// security level, no fixed passkey.
var DefaultSecurityEntry = SecurityEntry{
	SecLevel:  SecLevelUnauthenticatedEncryption,
	IOCap:     smp.IONoInputNoOutput,
	IOCapAuto: true,
}
