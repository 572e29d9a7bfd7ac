package store

import (
	"context"
	"errors"

	"fleetopt/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Fleet snapshots, one current snapshot per tenant
	PutSnapshot(ctx context.Context, tenantID string, snap model.Snapshot) error
	GetSnapshot(ctx context.Context, tenantID string) (model.Snapshot, error)

	// Run traces. ListRuns pages newest-first; cursor is the RFC3339Nano
	// StartedAt of the last row of the previous page ("" for the first page)
	// and the same encoding is returned as the next-page cursor by every
	// implementation.
	SaveRun(ctx context.Context, rec model.RunRecord) (string, error)
	GetRun(ctx context.Context, tenantID, id string) (model.RunRecord, error)
	ListRuns(ctx context.Context, tenantID, component, cursor string, limit int) ([]model.RunRecord, string, error)

	// Optimizer config per tenant
	GetOptimizerConfig(ctx context.Context, tenantID string) (map[string]any, error)
	SaveOptimizerConfig(ctx context.Context, tenantID string, cfg map[string]any) error
}

var ErrNotFound = errors.New("not found")
