package snapshot

import "sync"

// MemorySink keeps the snapshot in memory. Data is lost on restart.
// Safe for concurrent use.
type MemorySink struct {
	mu    sync.RWMutex
	data  []byte
	saves int
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Load() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.data == nil {
		return nil, ErrNotFound
	}
	return append([]byte(nil), m.data...), nil
}

func (m *MemorySink) Save(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	m.saves++
	return nil
}

// Saves returns how many times Save has succeeded.
func (m *MemorySink) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

func (m *MemorySink) Location() string { return "memory" }

func (m *MemorySink) Close() error { return nil }
