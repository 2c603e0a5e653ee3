package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/open-format/rewarder/internal/model"
)

// entry tracks one key's lifecycle: reserved (rec == nil) or finalized.
type entry struct {
	rec *model.ProcessedReward
}

// Memory is the in-process Store. Records do not survive restarts; it is
// the default backend for tests and single-shot local runs.
type Memory struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*entry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[uuid.UUID]*entry)}
}

func (m *Memory) Reserve(_ context.Context, key uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; ok {
		return ErrAlreadyProcessed
	}
	m.entries[key] = &entry{}
	return nil
}

func (m *Memory) Finalize(_ context.Context, key uuid.UUID, rec model.ProcessedReward) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = &entry{rec: &rec}
	return nil
}

func (m *Memory) Release(_ context.Context, key uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && e.rec == nil {
		delete(m.entries, key)
	}
	return nil
}

func (m *Memory) Get(_ context.Context, key uuid.UUID) (model.ProcessedReward, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.rec == nil {
		return model.ProcessedReward{}, ErrNotFound
	}
	return *e.rec, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close(context.Context) error { return nil }
