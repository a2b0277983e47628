package kvstore

import (
	"sort"
	"sync"
)

// Memory is an in-process KV used by tests and by callers that want the
// cache's semantics without a durable backend. It satisfies the same
// single-writer contract as MDBX.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty in-memory KV store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(k []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(k)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Put(k, v []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[string(k)] = append([]byte(nil), v...)
	return nil
}

func (m *Memory) Delete(k []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(k))
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Iterator(prefix []byte) (Iterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if len(prefix) == 0 || HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	entries := make([]kvPair, len(keys))
	for i, k := range keys {
		entries[i] = kvPair{key: []byte(k), val: append([]byte(nil), m.data[k]...)}
	}
	return &memIterator{entries: entries, idx: -1}, nil
}

type kvPair struct {
	key, val []byte
}

type memIterator struct {
	entries []kvPair
	idx     int
}

func (it *memIterator) Next() bool {
	it.idx++
	return it.idx < len(it.entries)
}

func (it *memIterator) Key() []byte   { return it.entries[it.idx].key }
func (it *memIterator) Value() []byte { return it.entries[it.idx].val }
func (it *memIterator) Err() error    { return nil }
func (it *memIterator) Close() error  { return nil }
