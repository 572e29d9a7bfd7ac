package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleetopt/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu     sync.Mutex
	snaps  map[string]model.Snapshot    // tenant -> current snapshot
	runs   map[string]model.RunRecord   // run id -> record
	runTen map[string][]string          // tenant -> run ids in insert order
	optCfg map[string]map[string]any    // tenant -> config
}

func NewMemory() *Memory {
	return &Memory{
		snaps:  map[string]model.Snapshot{},
		runs:   map[string]model.RunRecord{},
		runTen: map[string][]string{},
		optCfg: map[string]map[string]any{},
	}
}

func (m *Memory) PutSnapshot(ctx context.Context, tenantID string, snap model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap.TenantID = tenantID
	if snap.TakenAt.IsZero() {
		snap.TakenAt = time.Now().UTC()
	}
	m.snaps[tenantID] = snap
	return nil
}

func (m *Memory) GetSnapshot(ctx context.Context, tenantID string) (model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[tenantID]
	if !ok {
		return model.Snapshot{}, ErrNotFound
	}
	return snap, nil
}

func (m *Memory) SaveRun(ctx context.Context, rec model.RunRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	m.runs[rec.ID] = rec
	m.runTen[rec.TenantID] = append(m.runTen[rec.TenantID], rec.ID)
	return rec.ID, nil
}

func (m *Memory) GetRun(ctx context.Context, tenantID, id string) (model.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.runs[id]
	if !ok || rec.TenantID != tenantID {
		return model.RunRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) ListRuns(ctx context.Context, tenantID, component, cursor string, limit int) ([]model.RunRecord, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var before time.Time
	if cursor != "" {
		t, err := time.Parse(time.RFC3339Nano, cursor)
		if err != nil {
			return nil, "", err
		}
		before = t
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := append([]string(nil), m.runTen[tenantID]...)
	// newest first
	sort.SliceStable(ids, func(i, j int) bool {
		return m.runs[ids[i]].StartedAt.After(m.runs[ids[j]].StartedAt)
	})
	out := []model.RunRecord{}
	for _, id := range ids {
		rec := m.runs[id]
		if cursor != "" && !rec.StartedAt.Before(before) {
			continue
		}
		if component != "" && rec.Component != component {
			continue
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	var next string
	if len(out) == limit {
		next = out[len(out)-1].StartedAt.Format(time.RFC3339Nano)
	}
	return out, next, nil
}

func (m *Memory) GetOptimizerConfig(ctx context.Context, tenantID string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.optCfg[tenantID]
	if !ok {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[string]any, len(cfg))
	for k, v := range cfg {
		cp[k] = v
	}
	m.optCfg[tenantID] = cp
	return nil
}
