package postgres

import (
	"context"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"segstat/domain/comparison"
	"segstat/domain/core"
)

func TestRecordConversion(t *testing.T) {
	row := comparison.SummaryRow{
		Group:                "A",
		SourceFile:           "a.csv",
		AverageMeanIntensity: 12,
		OverallMean:          11,
		DiffVsControl:        1,
		PctChangeVsControl:   math.NaN(),
		PValueVsControl:      0.04,
	}
	rec := toRecord(core.RunID("run-1"), "Control", 3, row)

	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, 3, rec.Position)
	assert.True(t, rec.OverallMean.Valid)
	assert.False(t, rec.PctChangeVsControl.Valid, "NaN is stored as NULL")

	stats := toStatsRecord(core.RunID("run-1"), 0, comparison.GroupStats{Group: "A", N: 1, Mean: 4, StdDev: math.NaN(), PValue: math.NaN()})
	assert.True(t, stats.Mean.Valid)
	assert.False(t, stats.Std.Valid)
	assert.False(t, stats.PValueVsControl.Valid)

	back := fromRecord(rec)
	assert.Equal(t, row.Group, back.Group)
	assert.Equal(t, row.PValueVsControl, back.PValueVsControl)
	assert.True(t, math.IsNaN(back.PctChangeVsControl))
}

// TestSummaryRepository_Postgres runs against a real database when TEST_DATABASE_URL is set
func TestSummaryRepository_Postgres(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := Connect(ctx, url)
	require.NoError(t, err)
	defer db.Close()

	repo := NewSummaryRepository(db)
	runID := core.NewRunID()
	rows := []comparison.SummaryRow{
		{Group: "Control", SourceFile: "c.csv", AverageMeanIntensity: 10, OverallMean: 10, PValueVsControl: math.NaN()},
		{Group: "A", SourceFile: "a.csv", AverageMeanIntensity: 14, OverallMean: 14, DiffVsControl: 4, PctChangeVsControl: 40, PValueVsControl: 0.003},
	}

	result := comparison.Result{
		Control: "Control",
		Metric:  comparison.MetricIntensityMean,
		Summary: rows,
		GroupStats: []comparison.GroupStats{
			{Group: "Control", N: 1, Mean: 10, StdDev: math.NaN(), SEM: math.NaN(), Median: 10, PValue: math.NaN()},
			{Group: "A", N: 1, Mean: 14, StdDev: math.NaN(), SEM: math.NaN(), Median: 14, PValue: 0.003, Significance: "**"},
		},
	}

	require.NoError(t, repo.SaveResult(ctx, runID, result))
	require.NoError(t, repo.SaveResult(ctx, runID, result), "saving twice replaces the run")

	got, err := repo.ListSummary(ctx, runID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Control", got[0].Group)
	assert.True(t, math.IsNaN(got[0].PValueVsControl))
	assert.Equal(t, 40.0, got[1].PctChangeVsControl)

	stats, err := repo.ListGroupStats(ctx, runID)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "**", stats[1].Significance)
	assert.True(t, math.IsNaN(stats[0].StdDev))
}
