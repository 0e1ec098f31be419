package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend is an in-process Backend used in tests and as the fallback
// when no Redis address is configured. Expired entries are dropped lazily on
// read and by Cleanup.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	sets    map[string]memorySet
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

type memorySet struct {
	members   map[string]struct{}
	expiresAt time.Time
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]memoryEntry),
		sets:    make(map[string]memorySet),
	}
}

// Get returns the value for key, or ErrMiss.
func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrMiss
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, ErrMiss
	}
	return entry.value, nil
}

// Set stores value under key with the given ttl.
func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: value, expiresAt: expiresAt}
	m.mu.Unlock()
	return nil
}

// Delete removes the given keys from both the value map and any sets.
func (m *MemoryBackend) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, key := range keys {
		delete(m.entries, key)
		delete(m.sets, key)
	}
	m.mu.Unlock()
	return nil
}

// SetAdd adds members to the set at key and refreshes its ttl.
func (m *MemoryBackend) SetAdd(_ context.Context, key string, ttl time.Duration, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.sets[key]
	if !ok || (!set.expiresAt.IsZero() && time.Now().After(set.expiresAt)) {
		set = memorySet{members: make(map[string]struct{})}
	}
	for _, member := range members {
		set.members[member] = struct{}{}
	}
	if ttl > 0 {
		set.expiresAt = time.Now().Add(ttl)
	} else {
		set.expiresAt = time.Time{}
	}
	m.sets[key] = set
	return nil
}

// SetMembers returns all members of the set at key.
func (m *MemoryBackend) SetMembers(_ context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set, ok := m.sets[key]
	if !ok {
		return nil, nil
	}
	if !set.expiresAt.IsZero() && time.Now().After(set.expiresAt) {
		return nil, nil
	}
	members := make([]string, 0, len(set.members))
	for member := range set.members {
		members = append(members, member)
	}
	return members, nil
}

// Cleanup removes all expired entries and sets. Called periodically by the
// registry sweeper when the memory backend is active.
func (m *MemoryBackend) Cleanup() int {
	now := time.Now()
	removed := 0

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, entry := range m.entries {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(m.entries, key)
			removed++
		}
	}
	for key, set := range m.sets {
		if !set.expiresAt.IsZero() && now.After(set.expiresAt) {
			delete(m.sets, key)
			removed++
		}
	}
	return removed
}

// RunCleanup sweeps expired entries every interval until ctx is cancelled.
// Run it in its own goroutine when the memory backend serves a long-lived
// process.
func (m *MemoryBackend) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Cleanup()
		}
	}
}

// Len returns the number of live value entries. Test helper.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
