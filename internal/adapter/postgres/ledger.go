// Package postgres keeps a ledger of published runs and their artifacts.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sensingclues/harmonie-grib/internal/domain"
)

const schemaSQL = `
CREATE SCHEMA IF NOT EXISTS harmonie;

CREATE TABLE IF NOT EXISTS harmonie.runs (
    run_label       TEXT PRIMARY KEY,
    run_time        TIMESTAMPTZ NOT NULL,
    files           INTEGER NOT NULL,
    primary_records INTEGER NOT NULL,
    wind_records    INTEGER NOT NULL,
    degraded        BOOLEAN NOT NULL,
    skipped_slices  TEXT[] NOT NULL DEFAULT '{}',
    started_at      TIMESTAMPTZ NOT NULL,
    published_at    TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS harmonie.artifacts (
    run_label TEXT NOT NULL REFERENCES harmonie.runs (run_label) ON DELETE CASCADE,
    name      TEXT NOT NULL,
    stream    TEXT NOT NULL,
    region    TEXT,
    path      TEXT NOT NULL,
    size      BIGINT NOT NULL,
    PRIMARY KEY (run_label, name)
);`

const upsertRunSQL = `INSERT INTO harmonie.runs (run_label, run_time, files, primary_records, wind_records, degraded, skipped_slices, started_at, published_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())
ON CONFLICT (run_label) DO UPDATE
SET run_time = EXCLUDED.run_time,
    files = EXCLUDED.files,
    primary_records = EXCLUDED.primary_records,
    wind_records = EXCLUDED.wind_records,
    degraded = EXCLUDED.degraded,
    skipped_slices = EXCLUDED.skipped_slices,
    started_at = EXCLUDED.started_at,
    published_at = EXCLUDED.published_at,
    updated_at = NOW()`

const deleteArtifactsSQL = `DELETE FROM harmonie.artifacts WHERE run_label = $1`

const insertArtifactSQL = `INSERT INTO harmonie.artifacts (run_label, name, stream, region, path, size)
VALUES ($1,$2,$3,$4,$5,$6)`

// Ledger records runs in PostgreSQL.
// It implements pipeline.Ledger.
type Ledger struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect opens a connection pool and verifies it.
func Connect(ctx context.Context, databaseURL string, logger *slog.Logger) (*Ledger, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect ledger: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping ledger: %w", err)
	}
	return &Ledger{pool: pool, logger: logger}, nil
}

// EnsureSchema creates the ledger tables if they do not exist.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	return nil
}

// RecordRun upserts the run and replaces its artifact rows in one transaction.
func (l *Ledger) RecordRun(ctx context.Context, m domain.RunManifest) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("record run %s: %w", m.RunLabel, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	batch := runBatch(m)
	res := tx.SendBatch(ctx, batch)
	for range batch.Len() {
		if _, err := res.Exec(); err != nil {
			res.Close()
			return fmt.Errorf("record run %s: %w", m.RunLabel, err)
		}
	}
	if err := res.Close(); err != nil {
		return fmt.Errorf("record run %s: %w", m.RunLabel, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("record run %s: %w", m.RunLabel, err)
	}

	l.logger.Info("run recorded", "run", m.RunLabel, "artifacts", len(m.Artifacts))
	return nil
}

// Close releases the pool.
func (l *Ledger) Close() {
	l.pool.Close()
}

// runBatch queues the run upsert followed by its artifact rows.
func runBatch(m domain.RunManifest) *pgx.Batch {
	skipped := m.SkippedSlices
	if skipped == nil {
		skipped = []string{}
	}

	batch := &pgx.Batch{}
	batch.Queue(upsertRunSQL,
		m.RunLabel, m.RunTime, m.Files, m.PrimaryRecords, m.WindRecords,
		m.Degraded(), skipped, m.StartedAt, m.PublishedAt)
	batch.Queue(deleteArtifactsSQL, m.RunLabel)
	for _, a := range m.Artifacts {
		var region *string
		if a.Region != "" {
			region = &a.Region
		}
		batch.Queue(insertArtifactSQL, m.RunLabel, a.Name, string(a.Stream), region, a.Path, a.Size)
	}
	return batch
}
