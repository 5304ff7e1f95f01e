package reconcile

import (
	"sync"

	"storefront_ledger/internal/domain"
)

// LocalStore is the device-resident tier. It is written by the Reconciler only
// and read by anything holding the current user view.
type LocalStore struct {
	mu      sync.RWMutex
	records map[uint]domain.CachedUserRecord
}

func NewLocalStore() *LocalStore {
	return &LocalStore{records: make(map[uint]domain.CachedUserRecord)}
}

// Load returns the cached record for key
func (s *LocalStore) Load(key domain.AccountKey) (domain.CachedUserRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key.AccountID]
	return rec, ok
}

// Save replaces the cached record for key
func (s *LocalStore) Save(key domain.AccountKey, rec domain.CachedUserRecord) {
	rec.AccountID = key.AccountID
	if rec.ExternalUID == "" {
		rec.ExternalUID = key.ExternalUID
	}
	s.mu.Lock()
	s.records[key.AccountID] = rec
	s.mu.Unlock()
}

// Forget drops the cached record, used on sign-out
func (s *LocalStore) Forget(key domain.AccountKey) {
	s.mu.Lock()
	delete(s.records, key.AccountID)
	s.mu.Unlock()
}
