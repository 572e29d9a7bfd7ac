package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fleetopt/internal/model"
)

// Postgres persists snapshots, run traces, and per-tenant optimizer config.
// Documents go into JSONB; the relational columns carry only what queries
// filter on.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	p := &Postgres{db: db}
	if err := p.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fleet_snapshots (
			tenant_id TEXT PRIMARY KEY,
			taken_at  TIMESTAMPTZ NOT NULL,
			doc       JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS optimizer_runs (
			id         UUID PRIMARY KEY,
			tenant_id  TEXT NOT NULL,
			component  TEXT NOT NULL,
			algorithm  TEXT,
			objective  TEXT,
			score      DOUBLE PRECISION NOT NULL DEFAULT 0,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			started_at TIMESTAMPTZ NOT NULL,
			detail     JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS optimizer_runs_tenant_started
			ON optimizer_runs (tenant_id, started_at DESC)`,
		`CREATE TABLE IF NOT EXISTS optimizer_configs (
			tenant_id TEXT PRIMARY KEY,
			cfg       JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) PutSnapshot(ctx context.Context, tenantID string, snap model.Snapshot) error {
	snap.TenantID = tenantID
	if snap.TakenAt.IsZero() {
		snap.TakenAt = time.Now().UTC()
	}
	doc, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO fleet_snapshots (tenant_id, taken_at, doc) VALUES ($1,$2,$3)
		ON CONFLICT (tenant_id) DO UPDATE SET taken_at=EXCLUDED.taken_at, doc=EXCLUDED.doc`,
		tenantID, snap.TakenAt, doc)
	return err
}

func (p *Postgres) GetSnapshot(ctx context.Context, tenantID string) (model.Snapshot, error) {
	var doc []byte
	err := p.db.QueryRowContext(ctx, `SELECT doc FROM fleet_snapshots WHERE tenant_id=$1`, tenantID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return model.Snapshot{}, err
	}
	var snap model.Snapshot
	if err := json.Unmarshal(doc, &snap); err != nil {
		return model.Snapshot{}, err
	}
	return snap, nil
}

func (p *Postgres) SaveRun(ctx context.Context, rec model.RunRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	detail, err := json.Marshal(rec.Detail)
	if err != nil {
		return "", err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO optimizer_runs
		(id, tenant_id, component, algorithm, objective, score, confidence, duration_ms, started_at, detail)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		rec.ID, rec.TenantID, rec.Component, rec.Algorithm, rec.Objective,
		rec.Score, rec.Confidence, rec.DurationMs, rec.StartedAt, detail)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (p *Postgres) GetRun(ctx context.Context, tenantID, id string) (model.RunRecord, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id::text, tenant_id, component, algorithm, objective, score, confidence, duration_ms, started_at, detail
		FROM optimizer_runs WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RunRecord{}, ErrNotFound
	}
	return rec, err
}

func (p *Postgres) ListRuns(ctx context.Context, tenantID, component, cursor string, limit int) ([]model.RunRecord, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	// cursor is the started_at of the last row, RFC3339Nano
	args := []any{tenantID, limit}
	q := `SELECT id::text, tenant_id, component, algorithm, objective, score, confidence, duration_ms, started_at, detail
		FROM optimizer_runs WHERE tenant_id=$1`
	if component != "" {
		args = append(args, component)
		q += ` AND component=$3`
	}
	if cursor != "" {
		before, err := time.Parse(time.RFC3339Nano, cursor)
		if err != nil {
			return nil, "", err
		}
		args = append(args, before)
		if component != "" {
			q += ` AND started_at < $4`
		} else {
			q += ` AND started_at < $3`
		}
	}
	q += ` ORDER BY started_at DESC LIMIT $2`
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.RunRecord{}
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	var next string
	if len(out) == limit {
		next = out[len(out)-1].StartedAt.Format(time.RFC3339Nano)
	}
	return out, next, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (model.RunRecord, error) {
	var rec model.RunRecord
	var algo, obj sql.NullString
	var detail []byte
	if err := row.Scan(&rec.ID, &rec.TenantID, &rec.Component, &algo, &obj,
		&rec.Score, &rec.Confidence, &rec.DurationMs, &rec.StartedAt, &detail); err != nil {
		return model.RunRecord{}, err
	}
	rec.Algorithm = algo.String
	rec.Objective = obj.String
	if len(detail) > 0 {
		_ = json.Unmarshal(detail, &rec.Detail)
	}
	return rec, nil
}

func (p *Postgres) GetOptimizerConfig(ctx context.Context, tenantID string) (map[string]any, error) {
	var doc []byte
	err := p.db.QueryRowContext(ctx, `SELECT cfg FROM optimizer_configs WHERE tenant_id=$1`, tenantID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(doc, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Postgres) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg map[string]any) error {
	doc, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO optimizer_configs (tenant_id, cfg, updated_at) VALUES ($1,$2,$3)
		ON CONFLICT (tenant_id) DO UPDATE SET cfg=EXCLUDED.cfg, updated_at=EXCLUDED.updated_at`,
		tenantID, doc, time.Now().UTC())
	return err
}
