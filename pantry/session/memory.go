// session/memory.go
package session

import (
	"context"
	"sync"
	"time"
)

// ttlMap is a mutex-guarded map whose entries lapse at a deadline. A
// background sweeper removes lapsed entries until close is called.
type ttlMap[V any] struct {
	mu      sync.RWMutex
	items   map[string]ttlItem[V]
	now     func() time.Time
	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped sync.Once
}

type ttlItem[V any] struct {
	val       V
	expiresAt time.Time
}

func newTTLMap[V any](interval time.Duration) *ttlMap[V] {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	m := &ttlMap[V]{
		items:  make(map[string]ttlItem[V]),
		now:    time.Now,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go m.sweepLoop(interval)
	return m
}

// get returns the value and whether it exists and has not lapsed.
// lapsed reports an entry that exists but is past its deadline.
func (m *ttlMap[V]) get(key string) (val V, ok, lapsed bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, exists := m.items[key]
	if !exists {
		return val, false, false
	}
	if !m.now().Before(it.expiresAt) {
		return val, false, true
	}
	return it.val, true, false
}

func (m *ttlMap[V]) set(key string, val V, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = ttlItem[V]{val: val, expiresAt: expiresAt}
}

func (m *ttlMap[V]) delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
}

func (m *ttlMap[V]) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *ttlMap[V]) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, it := range m.items {
		if !now.Before(it.expiresAt) {
			delete(m.items, k)
		}
	}
}

func (m *ttlMap[V]) sweepLoop(interval time.Duration) {
	defer close(m.doneCh)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *ttlMap[V]) close() {
	m.stopped.Do(func() {
		close(m.stopCh)
		<-m.doneCh
	})
}

// MemoryStore implements in-memory session storage. Suitable for a single
// instance; sessions are lost on restart.
type MemoryStore struct {
	m *ttlMap[*Record]
}

// NewMemoryStore creates a memory store that sweeps expired sessions at
// the given interval (default 10 minutes).
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{m: newTTLMap[*Record](cleanupInterval)}
}

// Load returns a copy of the record for id.
func (s *MemoryStore) Load(_ context.Context, id string) (*Record, error) {
	data, ok, lapsed := s.m.get(id)
	switch {
	case lapsed:
		return nil, ErrExpired
	case !ok:
		return nil, ErrNotFound
	}
	cp := *data
	return &cp, nil
}

// Save stores a copy of the record.
func (s *MemoryStore) Save(_ context.Context, data *Record) error {
	cp := *data
	s.m.set(data.ID, &cp, data.ExpiresAt)
	return nil
}

// Delete removes a session by ID.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.m.delete(id)
	return nil
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (s *MemoryStore) Close() error {
	s.m.close()
	return nil
}

// Size returns the number of stored sessions, including lapsed ones not yet swept.
func (s *MemoryStore) Size() int {
	return s.m.len()
}

// MemoryStamps keeps last-submission times in process memory.
type MemoryStamps struct {
	m   *ttlMap[time.Time]
	ttl time.Duration
}

// NewMemoryStamps creates a stamp store whose entries live for ttl after
// each write (normally the session lifetime).
func NewMemoryStamps(ttl time.Duration) *MemoryStamps {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryStamps{m: newTTLMap[time.Time](10 * time.Minute), ttl: ttl}
}

// Get returns the recorded time for id.
func (s *MemoryStamps) Get(_ context.Context, id string) (time.Time, bool, error) {
	t, ok, _ := s.m.get(id)
	return t, ok, nil
}

// Set records at for id, replacing any earlier value.
func (s *MemoryStamps) Set(_ context.Context, id string, at time.Time) error {
	s.m.set(id, at, s.m.now().Add(s.ttl))
	return nil
}

// Ping always succeeds.
func (s *MemoryStamps) Ping(context.Context) error { return nil }

// Close stops the cleanup goroutine.
func (s *MemoryStamps) Close() error {
	s.m.close()
	return nil
}
