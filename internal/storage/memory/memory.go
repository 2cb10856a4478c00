// Package memory provides an in-process key/value store for basket snapshots
// and cached receipts.
package memory

import (
	"context"
	"sync"

	"github.com/xenking/kart-checkout/internal/domain/cart"
)

var _ cart.SnapshotStorage = (*Store)(nil)

// Store keeps values in a map guarded by a mutex. A positive quota bounds the
// summed size of all values; writes beyond it fail with cart.ErrQuotaExceeded.
type Store struct {
	mu    sync.RWMutex
	items map[string][]byte
	quota int
	used  int
}

// New returns an empty store. quota <= 0 disables the limit.
func New(quota int) *Store {
	return &Store{items: make(map[string][]byte), quota: quota}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.items[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *Store) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.used - len(s.items[key]) + len(data)
	if s.quota > 0 && used > s.quota {
		return cart.ErrQuotaExceeded
	}
	s.items[key] = append([]byte(nil), data...)
	s.used = used
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.used -= len(s.items[key])
	delete(s.items, key)
	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
