package store

import (
	"context"
	"sync"
)

// Memory keeps encoded collections in process. Payloads go through the same
// JSON encoding as the durable stores.
type Memory struct {
	mu    sync.Mutex
	raw   map[Collection][]byte
	saves map[Collection]int
	fail  error
}

func NewMemory() *Memory {
	return &Memory{
		raw:   make(map[Collection][]byte),
		saves: make(map[Collection]int),
	}
}

func (m *Memory) Load(_ context.Context) (*Data, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw := make(map[Collection][]byte, len(m.raw))
	for c, payload := range m.raw {
		raw[c] = append([]byte(nil), payload...)
	}
	return decode(raw)
}

func (m *Memory) Save(_ context.Context, c Collection, v any) error {
	payload, err := encode(c, v)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.raw[c] = payload
	m.saves[c]++
	return nil
}

func (m *Memory) Close() error {
	return nil
}

// Saves reports how many times c has been written.
func (m *Memory) Saves(c Collection) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves[c]
}

// FailWith makes every subsequent Save return err; nil restores normal saves.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}
