package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"segstat/domain/comparison"
	"segstat/domain/core"
	"segstat/internal/errors"
	"segstat/internal/migration"
	"segstat/ports"
)

// summaryRecord is the row layout of summary_rows. Undefined values are NULL.
type summaryRecord struct {
	RunID                string          `db:"run_id"`
	ControlLabel         string          `db:"control_label"`
	Metric               string          `db:"metric"`
	Position             int             `db:"position"`
	Genotype             string          `db:"genotype"`
	SourceFile           string          `db:"source_file"`
	AverageMeanIntensity sql.NullFloat64 `db:"average_mean_intensity"`
	OverallMean          sql.NullFloat64 `db:"overall_mean"`
	DiffVsControl        sql.NullFloat64 `db:"diff_vs_control"`
	PctChangeVsControl   sql.NullFloat64 `db:"pct_change_vs_control"`
	PValueVsControl      sql.NullFloat64 `db:"p_value_vs_control"`
}

type groupStatsRecord struct {
	RunID           string          `db:"run_id"`
	Position        int             `db:"position"`
	Genotype        string          `db:"genotype"`
	N               int             `db:"n"`
	Mean            sql.NullFloat64 `db:"mean"`
	Std             sql.NullFloat64 `db:"std"`
	SEM             sql.NullFloat64 `db:"sem"`
	Median          sql.NullFloat64 `db:"median"`
	PValueVsControl sql.NullFloat64 `db:"p_value_vs_control"`
	Significance    string          `db:"significance"`
}

// SummaryRepository stores comparison results in PostgreSQL
type SummaryRepository struct {
	db *sqlx.DB
}

var _ ports.SummaryRepository = (*SummaryRepository)(nil)

// NewSummaryRepository creates a new PostgreSQL summary repository
func NewSummaryRepository(db *sqlx.DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// Connect opens a connection and runs the schema migrations
func Connect(ctx context.Context, databaseURL string) (*sqlx.DB, error) {
	if databaseURL == "" {
		return nil, errors.ConfigInvalid("DATABASE_URL is required")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, errors.DatabaseError("failed to connect to database", err)
	}
	if err := migration.NewRunner().Run(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

const (
	insertSummaryRow = `
		INSERT INTO summary_rows (
			run_id, control_label, metric, position, genotype, source_file,
			average_mean_intensity, overall_mean, diff_vs_control,
			pct_change_vs_control, p_value_vs_control
		) VALUES (
			:run_id, :control_label, :metric, :position, :genotype, :source_file,
			:average_mean_intensity, :overall_mean, :diff_vs_control,
			:pct_change_vs_control, :p_value_vs_control
		)`

	insertGroupStats = `
		INSERT INTO group_stats (
			run_id, position, genotype, n, mean, std, sem, median,
			p_value_vs_control, significance
		) VALUES (
			:run_id, :position, :genotype, :n, :mean, :std, :sem, :median,
			:p_value_vs_control, :significance
		)`
)

// SaveResult inserts the summary rows and group statistics of a run in one transaction
func (r *SummaryRepository) SaveResult(ctx context.Context, runID core.RunID, result comparison.Result) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"summary_rows", "group_stats"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = $1", runID.String()); err != nil {
			return errors.DatabaseError("failed to clear previous "+table, err)
		}
	}

	for i, row := range result.Summary {
		rec := toRecord(runID, result.Control, i, row)
		rec.Metric = string(result.Metric)
		if _, err := tx.NamedExecContext(ctx, insertSummaryRow, rec); err != nil {
			return errors.DatabaseError(fmt.Sprintf("failed to insert summary row %d", i), err)
		}
	}
	for i, stats := range result.GroupStats {
		if _, err := tx.NamedExecContext(ctx, insertGroupStats, toStatsRecord(runID, i, stats)); err != nil {
			return errors.DatabaseError(fmt.Sprintf("failed to insert group stats for %q", stats.Group), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("failed to commit comparison result", err)
	}
	return nil
}

// ListSummary returns the summary rows of a run in their original order
func (r *SummaryRepository) ListSummary(ctx context.Context, runID core.RunID) ([]comparison.SummaryRow, error) {
	var records []summaryRecord
	err := r.db.SelectContext(ctx, &records, `
		SELECT run_id, control_label, metric, position, genotype, source_file,
			average_mean_intensity, overall_mean, diff_vs_control,
			pct_change_vs_control, p_value_vs_control
		FROM summary_rows
		WHERE run_id = $1
		ORDER BY position`, runID.String())
	if err != nil {
		return nil, errors.DatabaseError("failed to list summary rows", err)
	}

	rows := make([]comparison.SummaryRow, len(records))
	for i, rec := range records {
		rows[i] = fromRecord(rec)
	}
	return rows, nil
}

// ListGroupStats returns the group statistics of a run in group order
func (r *SummaryRepository) ListGroupStats(ctx context.Context, runID core.RunID) ([]comparison.GroupStats, error) {
	var records []groupStatsRecord
	err := r.db.SelectContext(ctx, &records, `
		SELECT run_id, position, genotype, n, mean, std, sem, median,
			p_value_vs_control, significance
		FROM group_stats
		WHERE run_id = $1
		ORDER BY position`, runID.String())
	if err != nil {
		return nil, errors.DatabaseError("failed to list group stats", err)
	}

	stats := make([]comparison.GroupStats, len(records))
	for i, rec := range records {
		stats[i] = comparison.GroupStats{
			Group:        rec.Genotype,
			N:            rec.N,
			Mean:         floatOrNaN(rec.Mean),
			StdDev:       floatOrNaN(rec.Std),
			SEM:          floatOrNaN(rec.SEM),
			Median:       floatOrNaN(rec.Median),
			PValue:       floatOrNaN(rec.PValueVsControl),
			Significance: rec.Significance,
		}
	}
	return stats, nil
}

func toRecord(runID core.RunID, control string, position int, row comparison.SummaryRow) summaryRecord {
	return summaryRecord{
		RunID:                runID.String(),
		ControlLabel:         control,
		Position:             position,
		Genotype:             row.Group,
		SourceFile:           row.SourceFile,
		AverageMeanIntensity: nullFloat(row.AverageMeanIntensity),
		OverallMean:          nullFloat(row.OverallMean),
		DiffVsControl:        nullFloat(row.DiffVsControl),
		PctChangeVsControl:   nullFloat(row.PctChangeVsControl),
		PValueVsControl:      nullFloat(row.PValueVsControl),
	}
}

func toStatsRecord(runID core.RunID, position int, s comparison.GroupStats) groupStatsRecord {
	return groupStatsRecord{
		RunID:           runID.String(),
		Position:        position,
		Genotype:        s.Group,
		N:               s.N,
		Mean:            nullFloat(s.Mean),
		Std:             nullFloat(s.StdDev),
		SEM:             nullFloat(s.SEM),
		Median:          nullFloat(s.Median),
		PValueVsControl: nullFloat(s.PValue),
		Significance:    s.Significance,
	}
}

func fromRecord(rec summaryRecord) comparison.SummaryRow {
	return comparison.SummaryRow{
		Group:                rec.Genotype,
		SourceFile:           rec.SourceFile,
		AverageMeanIntensity: floatOrNaN(rec.AverageMeanIntensity),
		OverallMean:          floatOrNaN(rec.OverallMean),
		DiffVsControl:        floatOrNaN(rec.DiffVsControl),
		PctChangeVsControl:   floatOrNaN(rec.PctChangeVsControl),
		PValueVsControl:      floatOrNaN(rec.PValueVsControl),
	}
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
