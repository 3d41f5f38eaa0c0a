// Package atomic provides atomics with a fixed, explicit memory order,
// used to publish freshly built PDUs and key material to reader
// threads with sequential-consistency guarantees.
//
// Each wrapper names one memory order, so a reader can tell from the
// type name which guarantee is relied on; Go's sync/atomic only offers
// sequentially consistent operations, and every type here, including
// RelaxedUint32, uses them, so the distinction is one of naming and
// intended use rather than of a weaker underlying primitive.
package atomic

import "sync/atomic"

// Bool is a sequentially-consistent boolean, used where the contract
// matters: a release by one goroutine must make all of
// that goroutine's prior non-atomic writes visible to any goroutine
// that subsequently acquires (reads) the same value.
type Bool struct {
	v int32
}

func (b *Bool) Store(v bool) {
	var i int32
	if v {
		i = 1
	}
	atomic.StoreInt32(&b.v, i)
}

func (b *Bool) Load() bool {
	return atomic.LoadInt32(&b.v) != 0
}

// Uint16 is a sequentially-consistent 16-bit counter/flag word, e.g.
// for publishing a freshly assigned HCI connection handle.
type Uint16 struct {
	v uint32
}

func (u *Uint16) Store(v uint16) { atomic.StoreUint32(&u.v, uint32(v)) }
func (u *Uint16) Load() uint16   { return uint16(atomic.LoadUint32(&u.v)) }

// RelaxedUint32 is a relaxed counter: useful for statistics (e.g. the
// ring-buffer overflow-drop count) where ordering
// relative to other memory is irrelevant, only the final count matters.
type RelaxedUint32 struct {
	v uint32
}

func (u *RelaxedUint32) Add(delta uint32) uint32 { return atomic.AddUint32(&u.v, delta) }
func (u *RelaxedUint32) Load() uint32            { return atomic.LoadUint32(&u.v) }

// Ref publishes an arbitrary non-atomic value (a struct, a byte slice)
// with SC-DRF semantics: Store "releases" the value (all writes the
// caller made constructing it become visible to any goroutine that
// subsequently Loads), and Load "acquires" it. This is the primitive
// used when publishing an EIR snapshot, key
// material, or a freshly built PDU to a reader goroutine: the payload
// itself is plain Go data, but the handoff point is atomic.
type Ref struct {
	v atomic.Value
}

// Store releases value v to any subsequent Load. v must always be
// assigned a value of the same concrete type across the Ref's
// lifetime, per sync/atomic.Value's contract.
func (r *Ref) Store(v interface{}) { r.v.Store(v) }

// Load acquires the most recently stored value, or nil if none has
// been stored yet.
func (r *Ref) Load() interface{} { return r.v.Load() }
