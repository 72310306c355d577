package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	key     string
	entry   *Entry
	expires time.Time
}

// Memory is an in-process Store bounded by entry count. When full, the
// oldest stored entry is evicted first.
type Memory struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	order      *list.List // front = oldest
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// NewMemory creates a Memory store. maxEntries <= 0 means unbounded and
// ttl <= 0 means entries never expire.
func NewMemory(maxEntries int, ttl time.Duration) *Memory {
	return &Memory{
		items:      make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Get returns the entry for key, or ErrMiss.
func (m *Memory) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return nil, ErrMiss
	}
	item := el.Value.(*memoryItem)
	if !item.expires.IsZero() && !m.now().Before(item.expires) {
		m.remove(el)
		return nil, ErrMiss
	}
	return item.entry, nil
}

// Set stores e under key, replacing any previous entry.
func (m *Memory) Set(_ context.Context, key string, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		m.remove(el)
	}

	item := &memoryItem{key: key, entry: e}
	if m.ttl > 0 {
		item.expires = m.now().Add(m.ttl)
	}
	m.items[key] = m.order.PushBack(item)

	for m.maxEntries > 0 && m.order.Len() > m.maxEntries {
		m.remove(m.order.Front())
	}
	return nil
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// Close drops all entries.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]*list.Element)
	m.order.Init()
	return nil
}

func (m *Memory) remove(el *list.Element) {
	item := m.order.Remove(el).(*memoryItem)
	delete(m.items, item.key)
}
