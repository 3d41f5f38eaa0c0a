package registry

import direct "github.com/sgothel/direct-bt-go"

// Registry bundles the wait-list, processing/processed sets, and
// security registry into one explicit context object passed into the
// Manager constructor. The KeyStore is constructed separately since
// it needs a caller-supplied directory.
type Registry struct {
	WaitList   *WaitList
	Processing *ProcessingSet
	Security   *SecurityRegistry
}

// New constructs an empty, isolated Registry.
func New() *Registry {
	return &Registry{
		WaitList:   NewWaitList(),
		Processing: NewProcessingSet(),
		Security:   NewSecurityRegistry(),
	}
}

var global = New()

// Default returns the process-global Registry singleton, for
// embedders that do not need multiple isolated Managers.
func Default() *Registry { return global }

// SecurityFor resolves the security policy applicable to addr/name,
// falling back to DefaultSecurityEntry when no pattern matches.
func (r *Registry) SecurityFor(addr direct.EUI48, name string) SecurityEntry {
	if e, ok := r.Security.Lookup(addr, name); ok {
		return e
	}
	return DefaultSecurityEntry
}
