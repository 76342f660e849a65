package callrecords

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and early development.
// It enforces the same optimistic concurrency contract as the Postgres store.

type MemoryStore struct {
	mu      sync.Mutex
	records map[string]CallRecord // keyed by provider_call_id
	clock   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]CallRecord{}, clock: time.Now}
}

// SetClock replaces the store clock for deterministic tests.
func (m *MemoryStore) SetClock(fn func() time.Time) { m.clock = fn }

func (m *MemoryStore) Insert(ctx context.Context, rec CallRecord) (CallRecord, error) {
	if rec.ID == "" || rec.WorkspaceID == "" || rec.ProviderCallID == "" {
		return CallRecord{}, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ProviderCallID]; ok {
		return CallRecord{}, ErrConflict
	}
	now := m.clock().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = rec.CreatedAt
	if rec.Version == 0 {
		rec.Version = 1
	}
	m.records[rec.ProviderCallID] = rec
	return rec, nil
}

func (m *MemoryStore) GetByProviderCallID(ctx context.Context, providerCallID string) (CallRecord, error) {
	if providerCallID == "" {
		return CallRecord{}, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[providerCallID]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) UpdateByProviderCallID(ctx context.Context, providerCallID string, upd Update, expectedVersion int64) (CallRecord, error) {
	if providerCallID == "" {
		return CallRecord{}, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[providerCallID]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	if rec.Version != expectedVersion {
		return CallRecord{}, ErrConflict
	}
	rec = applyUpdate(rec, upd, m.clock().UTC())
	m.records[providerCallID] = rec
	return rec, nil
}

func (m *MemoryStore) ListByWorkspace(ctx context.Context, workspaceID string, limit int) ([]CallRecord, error) {
	if workspaceID == "" {
		return nil, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CallRecord, 0)
	for _, rec := range m.records {
		if rec.WorkspaceID == workspaceID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
