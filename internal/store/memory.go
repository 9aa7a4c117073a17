package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// memoryKV is an in-memory KV used by tests and by ephemeral runs that
// don't want an on-disk database. Semantics match the ent-backed KV:
// last write wins, watchers notified after every write.
type memoryKV struct {
	mu   sync.Mutex
	data map[string]json.RawMessage

	watchMu  sync.Mutex
	nextID   int
	watchers map[int]func(Change)
}

// NewMemory returns a KV that lives entirely in process memory.
func NewMemory() KV {
	return &memoryKV{
		data:     make(map[string]json.RawMessage),
		watchers: make(map[int]func(Change)),
	}
}

func (m *memoryKV) Get(_ context.Context, key string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return raw, nil
}

func (m *memoryKV) Set(_ context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	m.mu.Lock()
	m.data[key] = raw
	m.mu.Unlock()
	m.notify(Change{Key: key, Value: raw})
	return nil
}

func (m *memoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	m.notify(Change{Key: key})
	return nil
}

func (m *memoryKV) Clear(_ context.Context, keep ...string) error {
	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		kept[k] = true
	}

	m.mu.Lock()
	var cleared []string
	for k := range m.data {
		if !kept[k] {
			cleared = append(cleared, k)
			delete(m.data, k)
		}
	}
	m.mu.Unlock()

	for _, k := range cleared {
		m.notify(Change{Key: k})
	}
	return nil
}

func (m *memoryKV) Watch(fn func(Change)) func() {
	m.watchMu.Lock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = fn
	m.watchMu.Unlock()

	return func() {
		m.watchMu.Lock()
		delete(m.watchers, id)
		m.watchMu.Unlock()
	}
}

func (m *memoryKV) notify(c Change) {
	m.watchMu.Lock()
	fns := make([]func(Change), 0, len(m.watchers))
	for _, fn := range m.watchers {
		fns = append(fns, fn)
	}
	m.watchMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
