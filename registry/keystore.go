package registry

import (
	"os"
	"sync"

	direct "github.com/sgothel/direct-bt-go"
	"github.com/sgothel/direct-bt-go/smp"
)

// KeyStore binds a directory of smp key files to the device registry.
// Invalidate is called by the adapter's pairing-failure handling on
// every failed pairing, whatever the failure reason.
type KeyStore struct {
	dir string
	mu  sync.Mutex
}

// NewKeyStore opens (creating if necessary) dir as the key-file
// directory for this registry.
func NewKeyStore(dir string) (*KeyStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, direct.NewError(direct.KindIOError, "registry: create key dir: %v", err)
	}
	return &KeyStore{dir: dir}, nil
}

// Save atomically persists k (write-to-temp + rename).
func (s *KeyStore) Save(k smp.Keys) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return smp.SaveKeys(s.dir, k)
}

// Load reads back the keys for (local, remote). Returns os.ErrNotExist
// (unwrapped) if no pairing has ever completed for this pair, or a
// *direct.Error if the file exists but is corrupt or
// version-mismatched.
func (s *KeyStore) Load(local, remote direct.Address) (smp.Keys, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return smp.LoadKeys(s.dir, local, remote)
}

// Invalidate removes the key file for (local, remote), requested by
// the pairing layer when pairing fails against stale key material.
func (s *KeyStore) Invalidate(local, remote direct.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return smp.RemoveKeys(s.dir, local, remote)
}
