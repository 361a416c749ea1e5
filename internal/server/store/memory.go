package store

import (
	"context"
	"maps"
	"sync"
)

// Memory is a process-local Store. Nothing survives a restart.
type Memory struct {
	mu      sync.RWMutex
	states  map[string]bool
	toggles map[string][]Toggle
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		states:  make(map[string]bool),
		toggles: make(map[string][]Toggle),
	}
}

func (m *Memory) LoadStates(ctx context.Context) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.states), nil
}

func (m *Memory) SaveState(ctx context.Context, t Toggle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[t.ModuleID] = t.Enabled
	m.toggles[t.ModuleID] = append(m.toggles[t.ModuleID], t)
	return nil
}

func (m *Memory) History(ctx context.Context, moduleID string, limit int) ([]Toggle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.toggles[moduleID]
	limit = historyLimit(limit)
	out := make([]Toggle, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (m *Memory) Close(ctx context.Context) error {
	return nil
}
