// Package registry implements the device registry: the wait-for /
// processing / processed triad and the security registry, plus a
// key-file-backed KeyStore. A Registry is an explicit context object;
// Default() serves embedders that do not need isolation.
package registry

import (
	"strings"
	"time"

	direct "github.com/sgothel/direct-bt-go"
)

// WaitQuery names a device to gate auto-connect decisions on, by
// address-prefix OR case-sensitive name-substring; the two matchers
// are independent and ORed together. A zero octet in AddressMask is a
// wildcard position; 0xFF requires that octet to match exactly.
type WaitQuery struct {
	Address     direct.EUI48
	AddressMask direct.EUI48 // zero mask octet = wildcard; non-zero = must match
	HasAddress  bool

	NameSubstring string
}

// Matches reports whether addr/name satisfy q's address-with-wildcards
// matcher OR its name-substring matcher.
func (q WaitQuery) Matches(addr direct.EUI48, name string) bool {
	if q.HasAddress {
		match := true
		for i := 0; i < 6; i++ {
			if q.AddressMask[i] != 0 && q.AddressMask[i]&addr[i] != q.AddressMask[i]&q.Address[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	if q.NameSubstring != "" && strings.Contains(name, q.NameSubstring) {
		return true
	}
	return false
}

type waitEntry struct {
	query      WaitQuery
	addedAt    time.Time
	lastFired  time.Time
	hasFired   bool
}

// WaitList holds the set of queries gating auto-connect decisions,
// guarded by a recursive mutex so a listener invoked mid-scan may
// re-enter Add/Remove
// without deadlocking.
type WaitList struct {
	mu      recursiveMutex
	entries []*waitEntry
}

func NewWaitList() *WaitList {
	return &WaitList{}
}

// Add registers q. Returns a handle usable with Remove.
func (w *WaitList) Add(q WaitQuery) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, &waitEntry{query: q, addedAt: now()})
	return len(w.entries) - 1
}

// Remove drops the query at handle (as returned by Add). A no-op if
// already removed.
func (w *WaitList) Remove(handle int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if handle < 0 || handle >= len(w.entries) || w.entries[handle] == nil {
		return
	}
	w.entries[handle] = nil
}

// MatchAndMark scans every live entry; for each whose query matches
// (addr, name) and has not yet fired, it marks the entry fired and
// includes it in the result, so the same auto-connect decision never
// triggers twice.
func (w *WaitList) MatchAndMark(addr direct.EUI48, name string) []WaitQuery {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []WaitQuery
	for _, e := range w.entries {
		if e == nil || e.hasFired {
			continue
		}
		if e.query.Matches(addr, name) {
			e.hasFired = true
			e.lastFired = now()
			out = append(out, e.query)
		}
	}
	return out
}

// Reset clears every entry's fired flag, permitting the wait-list to
// trigger again for devices it has already matched (used when an
// embedder explicitly restarts discovery for the same target set).
func (w *WaitList) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range w.entries {
		if e != nil {
			e.hasFired = false
		}
	}
}

var nowFunc = time.Now

func now() time.Time { return nowFunc() }
