package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory implementation of Store[S].
//
// Designed for tests, development, and single-process deployments where
// durability is not required. Snapshots are held as serialized JSON so
// that callers never share mutable state with the store.
//
// For production use a database-backed store (SQLite, MySQL, PostgreSQL).
type MemStore[S any] struct {
	mu   sync.RWMutex
	runs map[string]*memRecord
}

type memRecord struct {
	state     []byte
	meta      Metadata
	createdAt time.Time
	updatedAt time.Time
}

// NewMemStore creates an empty in-memory store.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{runs: make(map[string]*memRecord)}
}

// Put upserts the run snapshot, overwriting any previous one.
func (m *MemStore[S]) Put(_ context.Context, runID string, state S, meta Metadata) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if rec, exists := m.runs[runID]; exists {
		rec.state = data
		rec.meta = meta
		rec.updatedAt = now
		return nil
	}

	m.runs[runID] = &memRecord{
		state:     data,
		meta:      meta,
		createdAt: now,
		updatedAt: now,
	}
	return nil
}

// Get returns the run's latest snapshot or ErrNotFound.
func (m *MemStore[S]) Get(_ context.Context, runID string) (Snapshot[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, exists := m.runs[runID]
	if !exists {
		return Snapshot[S]{}, ErrNotFound
	}

	var state S
	if err := json.Unmarshal(rec.state, &state); err != nil {
		return Snapshot[S]{}, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return Snapshot[S]{
		RunID:     runID,
		State:     state,
		Meta:      rec.meta,
		CreatedAt: rec.createdAt,
		UpdatedAt: rec.updatedAt,
	}, nil
}

// SetStatus updates only the run status.
func (m *MemStore[S]) SetStatus(_ context.Context, runID string, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.runs[runID]
	if !exists {
		return ErrNotFound
	}

	rec.meta.Status = status
	rec.updatedAt = time.Now().UTC()
	return nil
}

// List returns matching run summaries, most recently updated first.
func (m *MemStore[S]) List(_ context.Context, filter Filter, limit int) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summaries := make([]Summary, 0, len(m.runs))
	for runID, rec := range m.runs {
		if filter.WorkflowType != "" && rec.meta.WorkflowType != filter.WorkflowType {
			continue
		}
		if filter.Status != "" && rec.meta.Status != filter.Status {
			continue
		}
		summaries = append(summaries, Summary{
			RunID:     runID,
			Meta:      rec.meta,
			CreatedAt: rec.createdAt,
			UpdatedAt: rec.updatedAt,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})

	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// Delete removes the run's snapshot. Unknown runs are a no-op.
func (m *MemStore[S]) Delete(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, runID)
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemStore[S]) Close() error {
	return nil
}
