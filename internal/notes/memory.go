package notes

import (
	"context"
	"fmt"
	"sync"

	"github.com/arlowhite/gitadr/internal/apperr"
)

// Memory is an in-process Namespace. Safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	notes map[string][]byte
}

// NewMemory returns an empty in-memory namespace.
func NewMemory() *Memory {
	return &Memory{notes: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.notes[key]
	if !ok {
		return nil, fmt.Errorf("note %s: %w", key, apperr.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes[key] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) PutBatch(_ context.Context, entries map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, data := range entries {
		if data == nil {
			delete(m.notes, key)
			continue
		}
		m.notes[key] = append([]byte(nil), data...)
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notes[key]; !ok {
		return fmt.Errorf("note %s: %w", key, apperr.ErrNotFound)
	}
	delete(m.notes, key)
	return nil
}

func (m *Memory) List(_ context.Context) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte, len(m.notes))
	for key, data := range m.notes {
		out[key] = append([]byte(nil), data...)
	}
	return out, nil
}

// Len reports the number of stored notes. Test helper.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.notes)
}
