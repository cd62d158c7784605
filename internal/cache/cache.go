package cache

import (
	"container/list"
	"fmt"
	"sync"
)

// Cache is the bounded key→result store stages consult before invoking a
// remote capability. Values are opaque encoded bytes so a hit always hands
// back an independent copy; callers decode fresh and never share a stored
// value. Eviction is purely capacity-driven.
type Cache interface {
	// Get returns the stored bytes for the key, if present.
	Get(key string) ([]byte, bool)
	// Put stores the value, evicting least-recently-used entries as needed.
	Put(key string, value []byte) error
	// Stats reports hit/miss/eviction counters for observability.
	Stats() Stats
}

// Stats accumulates cache observability counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

const DefaultCapacity = 128

type lruEntry struct {
	key   string
	value []byte
}

// Memory is the default in-process Cache: a mutex-guarded LRU bounded by
// entry count.
type Memory struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
	stats    Stats
}

// NewMemory builds an in-memory LRU cache. Capacity values <= 0 fall back to
// DefaultCapacity.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
	}
}

// Get returns a copy of the stored value and marks the entry recently used.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	elem, ok := m.entries[key]
	if !ok {
		m.stats.Misses++
		return nil, false
	}
	m.order.MoveToFront(elem)
	m.stats.Hits++
	stored := elem.Value.(*lruEntry).value
	out := make([]byte, len(stored))
	copy(out, stored)
	return out, true
}

// Put stores a copy of the value, replacing any existing entry for the key.
func (m *Memory) Put(key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("cache: key is required")
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.mu.Lock()
	defer m.mu.Unlock()
	if elem, ok := m.entries[key]; ok {
		elem.Value.(*lruEntry).value = stored
		m.order.MoveToFront(elem)
		return nil
	}
	m.entries[key] = m.order.PushFront(&lruEntry{key: key, value: stored})
	for m.order.Len() > m.capacity {
		oldest := m.order.Back()
		if oldest == nil {
			break
		}
		m.order.Remove(oldest)
		delete(m.entries, oldest.Value.(*lruEntry).key)
		m.stats.Evictions++
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := m.stats
	stats.Size = m.order.Len()
	return stats
}
