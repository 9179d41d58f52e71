package lock

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	owner   string
	expires time.Time
}

// MemoryStore is a Store for a single process.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]entry

	// Now returns the current time. Tests replace it to expire locks.
	Now func() time.Time
}

// NewMemoryStore creates an empty in-process lock store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys: make(map[string]entry),
		Now:  time.Now,
	}
}

// Acquire implements Store.
func (m *MemoryStore) Acquire(_ context.Context, keys []string, owner string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	held := map[string]string{}
	for _, k := range keys {
		if e, ok := m.live(k, now); ok && e.owner != owner {
			held[k] = e.owner
		}
	}
	if len(held) > 0 {
		return &HeldError{Held: held}
	}

	for _, k := range keys {
		m.keys[k] = entry{owner: owner, expires: now.Add(ttl)}
	}
	return nil
}

// Release implements Store.
func (m *MemoryStore) Release(_ context.Context, keys []string, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		if e, ok := m.keys[k]; ok && e.owner == owner {
			delete(m.keys, k)
		}
	}
	return nil
}

// Probe implements Store.
func (m *MemoryStore) Probe(_ context.Context, keys []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	held := make(map[string]string)
	for _, k := range keys {
		if e, ok := m.live(k, now); ok {
			held[k] = e.owner
		}
	}
	return held, nil
}

// live returns the entry for k if it has not expired, dropping it otherwise.
func (m *MemoryStore) live(k string, now time.Time) (entry, bool) {
	e, ok := m.keys[k]
	if !ok {
		return entry{}, false
	}
	if !now.Before(e.expires) {
		delete(m.keys, k)
		return entry{}, false
	}
	return e, true
}
