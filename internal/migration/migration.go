package migration

import (
	"context"

	"github.com/jmoiron/sqlx"

	"segstat/internal/errors"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner creates the tables that store comparison results
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.1.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all migrations in order. Every step is idempotent.
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	steps := []struct {
		name string
		fn   func(context.Context, *sqlx.DB) error
	}{
		{"create summary_rows table", r.createSummaryRowsTable},
		{"add summary_rows metric column", r.addSummaryMetricColumn},
		{"create group_stats table", r.createGroupStatsTable},
		{"create indexes", r.createIndexes},
	}
	for _, step := range steps {
		if err := step.fn(ctx, db); err != nil {
			return errors.DatabaseError("failed to "+step.name, err)
		}
	}
	return nil
}

func (r *MigrationRunner) createSummaryRowsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS summary_rows (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL,
			control_label TEXT NOT NULL,
			position INTEGER NOT NULL,
			genotype TEXT NOT NULL,
			source_file TEXT NOT NULL,
			average_mean_intensity DOUBLE PRECISION,
			overall_mean DOUBLE PRECISION,
			diff_vs_control DOUBLE PRECISION,
			pct_change_vs_control DOUBLE PRECISION,
			p_value_vs_control DOUBLE PRECISION,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			UNIQUE (run_id, position)
		)
	`)
	return err
}

// Databases created before the metric was recorded get the column with the old implicit value.
func (r *MigrationRunner) addSummaryMetricColumn(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_name = 'summary_rows' AND column_name = 'metric'
			) THEN
				ALTER TABLE summary_rows ADD COLUMN metric TEXT NOT NULL DEFAULT 'intensity_mean';
			END IF;
		END $$;
	`)
	return err
}

func (r *MigrationRunner) createGroupStatsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS group_stats (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			genotype TEXT NOT NULL,
			n INTEGER NOT NULL,
			mean DOUBLE PRECISION,
			std DOUBLE PRECISION,
			sem DOUBLE PRECISION,
			median DOUBLE PRECISION,
			p_value_vs_control DOUBLE PRECISION,
			significance TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			UNIQUE (run_id, position)
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_summary_rows_run_id ON summary_rows(run_id);
		CREATE INDEX IF NOT EXISTS idx_summary_rows_genotype ON summary_rows(genotype);
		CREATE INDEX IF NOT EXISTS idx_group_stats_run_id ON group_stats(run_id);
	`)
	return err
}
