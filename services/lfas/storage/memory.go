package storage

import (
	"bytes"
	"context"
	"sort"
	"sync"
)

// Memory is an in-process, ordered key/value store implementing Backend.
// It exists for tests and for callers that want a non-durable index; it
// has no size limit and no durability guarantees.
//
// Thread Safety:
//
//	Memory is safe for concurrent use. A single sync.RWMutex guards both
//	the value map and the sorted key index.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
	keys []string // kept sorted for ScanPrefix
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(key []byte) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *Memory) PutBatch(_ context.Context, entries []KV) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		k := string(e.Key)
		v := make([]byte, len(e.Value))
		copy(v, e.Value)
		if _, exists := m.data[k]; !exists {
			i := sort.SearchStrings(m.keys, k)
			m.keys = append(m.keys, "")
			copy(m.keys[i+1:], m.keys[i:])
			m.keys[i] = k
		}
		m.data[k] = v
	}
	return nil
}

func (m *Memory) ScanPrefix(prefix []byte) ([]KV, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scanPrefixLocked(prefix), nil
}

func (m *Memory) scanPrefixLocked(prefix []byte) []KV {
	var out []KV
	start := sort.SearchStrings(m.keys, string(prefix))
	for i := start; i < len(m.keys); i++ {
		k := m.keys[i]
		if !bytes.HasPrefix([]byte(k), prefix) {
			break
		}
		v := m.data[k]
		cp := make([]byte, len(v))
		copy(cp, v)
		out = append(out, KV{Key: []byte(k), Value: cp})
	}
	return out
}

func (m *Memory) BeginRead() (ReadTxn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot := make(map[string][]byte, len(m.data))
	for k, v := range m.data {
		cp := make([]byte, len(v))
		copy(cp, v)
		snapshot[k] = cp
	}
	keys := make([]string, len(m.keys))
	copy(keys, m.keys)
	return &memoryTxn{data: snapshot, keys: keys}, nil
}

func (m *Memory) Sync() error  { return nil }
func (m *Memory) Close() error { return nil }

// memoryTxn is a point-in-time copy of Memory's contents, giving BeginRead
// callers a consistent snapshot independent of concurrent writers.
type memoryTxn struct {
	data map[string][]byte
	keys []string
}

func (t *memoryTxn) Get(key []byte) ([]byte, bool, error) {
	v, ok := t.data[string(key)]
	return v, ok, nil
}

func (t *memoryTxn) ScanPrefix(prefix []byte) ([]KV, error) {
	var out []KV
	start := sort.SearchStrings(t.keys, string(prefix))
	for i := start; i < len(t.keys); i++ {
		k := t.keys[i]
		if !bytes.HasPrefix([]byte(k), prefix) {
			break
		}
		out = append(out, KV{Key: []byte(k), Value: t.data[k]})
	}
	return out, nil
}

func (t *memoryTxn) Discard() {}
