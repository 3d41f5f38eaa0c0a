package registry

import (
	lru "github.com/hashicorp/golang-lru"

	direct "github.com/sgothel/direct-bt-go"
)

// processedCacheSize bounds the "processed devices" set so a
// long-running adapter that churns through many discovered devices
// does not leak memory.
const processedCacheSize = 1024

// ProcessingSet tracks devices currently mid-pairing/mid-GATT and
// devices that have completed, guarded by the same recursive mutex as
// the rest of the registry.
type ProcessingSet struct {
	mu         recursiveMutex
	processing map[direct.Address]bool
	processed  *lru.Cache
}

func NewProcessingSet() *ProcessingSet {
	c, _ := lru.New(processedCacheSize)
	return &ProcessingSet{
		processing: make(map[direct.Address]bool),
		processed:  c,
	}
}

// BeginProcessing marks addr as mid-pairing/mid-GATT. Returns false if
// addr was already being processed (caller should not start a second
// concurrent attempt).
func (p *ProcessingSet) BeginProcessing(addr direct.Address) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.processing[addr] {
		return false
	}
	p.processing[addr] = true
	return true
}

// EndProcessing clears addr's in-progress marker.
func (p *ProcessingSet) EndProcessing(addr direct.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.processing, addr)
}

// IsProcessing reports whether addr is currently mid-pairing/mid-GATT.
func (p *ProcessingSet) IsProcessing(addr direct.Address) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processing[addr]
}

// MarkProcessed records addr as having completed (pairing and/or GATT
// discovery), evicting the oldest entry if the bounded cache is full.
func (p *ProcessingSet) MarkProcessed(addr direct.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed.Add(addr, struct{}{})
}

// IsProcessed reports whether addr has previously completed.
func (p *ProcessingSet) IsProcessed(addr direct.Address) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed.Contains(addr)
}

// ForgetProcessed removes addr from the processed set, used when a
// device is removed from the adapter entirely.
func (p *ProcessingSet) ForgetProcessed(addr direct.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed.Remove(addr)
}
