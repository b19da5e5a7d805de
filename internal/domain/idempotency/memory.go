package idempotency

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// MemoryStore is the in-process Store for single-instance deployments.
// Records live in a bounded LRU so an abusive caller cannot grow memory
// without bound; expiry is lazy on access.
type MemoryStore struct {
	mu      sync.Mutex
	entries *lru.Cache
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates a memory store holding at most maxEntries records.
func NewMemoryStore(maxEntries int, ttl time.Duration) (*MemoryStore, error) {
	cache, err := lru.New(maxEntries)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{
		entries: cache,
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

// WithClock overrides the time source. Test hook.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Reserve(_ context.Context, key Key, fingerprint string) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if v, ok := s.entries.Get(key.String()); ok {
		rec := v.(*Record)
		if now.After(rec.ExpiresAt) {
			s.entries.Remove(key.String())
		} else {
			switch {
			case rec.Pending:
				return Reservation{State: StateInProgress}, nil
			case rec.Fingerprint != fingerprint:
				return Reservation{State: StateConflict}, nil
			default:
				return Reservation{State: StateReplayed, Result: rec.Result}, nil
			}
		}
	}

	s.entries.Add(key.String(), &Record{
		Key:         key.Key,
		Tenant:      key.Tenant,
		Action:      key.Action,
		Fingerprint: fingerprint,
		Pending:     true,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	})
	return Reservation{State: StateReserved}, nil
}

func (s *MemoryStore) Commit(_ context.Context, key Key, result []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.entries.Get(key.String())
	if !ok {
		return nil
	}
	rec := v.(*Record)
	rec.Pending = false
	rec.Result = result
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.entries.Get(key.String()); ok {
		if v.(*Record).Pending {
			s.entries.Remove(key.String())
		}
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
