package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists Reports to Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore opens a pool against dsn and ensures the reports table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS simulation_reports (
			run_id TEXT PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ NOT NULL,
			wall_time_ms BIGINT NOT NULL,
			cluster_energy_kwh DOUBLE PRECISION NOT NULL,
			sla_outcomes JSONB NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure reports schema: %w", err)
	}
	return nil
}

// Save upserts r keyed by RunID.
func (s *Store) Save(ctx context.Context, r Report) error {
	outcomes, err := json.Marshal(r.SLAOutcomes)
	if err != nil {
		return fmt.Errorf("marshal sla outcomes: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO simulation_reports (run_id, started_at, completed_at, wall_time_ms, cluster_energy_kwh, sla_outcomes)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		ON CONFLICT (run_id) DO UPDATE SET
			completed_at = EXCLUDED.completed_at,
			wall_time_ms = EXCLUDED.wall_time_ms,
			cluster_energy_kwh = EXCLUDED.cluster_energy_kwh,
			sla_outcomes = EXCLUDED.sla_outcomes
	`, r.RunID, r.StartedAt, r.CompletedAt, r.WallTime.Milliseconds(), r.ClusterEnergyKWh, outcomes)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// Get retrieves a single report by run ID.
func (s *Store) Get(ctx context.Context, runID string) (Report, error) {
	var (
		r            Report
		wallTimeMs   int64
		outcomesJSON []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT run_id, started_at, completed_at, wall_time_ms, cluster_energy_kwh, sla_outcomes
		FROM simulation_reports WHERE run_id = $1
	`, runID).Scan(&r.RunID, &r.StartedAt, &r.CompletedAt, &wallTimeMs, &r.ClusterEnergyKWh, &outcomesJSON)
	if err == pgx.ErrNoRows {
		return Report{}, fmt.Errorf("report not found: %s", runID)
	}
	if err != nil {
		return Report{}, fmt.Errorf("get report: %w", err)
	}
	if err := json.Unmarshal(outcomesJSON, &r.SLAOutcomes); err != nil {
		return Report{}, fmt.Errorf("unmarshal sla outcomes: %w", err)
	}
	r.WallTime = time.Duration(wallTimeMs) * time.Millisecond
	return r, nil
}

// ListRecent returns up to limit reports, most recently completed first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Report, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, `
		SELECT run_id, started_at, completed_at, wall_time_ms, cluster_energy_kwh, sla_outcomes
		FROM simulation_reports
		ORDER BY completed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		var (
			r            Report
			wallTimeMs   int64
			outcomesJSON []byte
		)
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.CompletedAt, &wallTimeMs, &r.ClusterEnergyKWh, &outcomesJSON); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		if err := json.Unmarshal(outcomesJSON, &r.SLAOutcomes); err != nil {
			return nil, fmt.Errorf("unmarshal sla outcomes: %w", err)
		}
		r.WallTime = time.Duration(wallTimeMs) * time.Millisecond
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reports rows: %w", err)
	}
	return reports, nil
}

