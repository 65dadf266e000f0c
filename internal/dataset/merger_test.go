package dataset

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"segstat/domain/measurement"
	"segstat/internal/testkit"
)

func TestStitch(t *testing.T) {
	a := testkit.Corrected("a.csv", 1, 2)
	a.ExtraColumns = []string{"area"}
	b := testkit.Corrected("b.csv", 5)
	b.ExtraColumns = []string{"area", "eccentricity"}

	s := Stitch([]measurement.CorrectedTable{a, b})

	assert.Equal(t, []string{"area", "eccentricity"}, s.ExtraColumns)
	require.Len(t, s.Records, 3)
	assert.Equal(t, "a.csv", s.Records[0].SourceFile)
	assert.Equal(t, 1.5, s.Records[1].AverageMeanIntensity)
	assert.Equal(t, "b.csv", s.Records[2].SourceFile)
	assert.Equal(t, 5.0, s.Records[2].AverageMeanIntensity)
}

func TestDedupeBySourceAverage(t *testing.T) {
	s := Stitch([]measurement.CorrectedTable{
		testkit.Corrected("a.csv", 1, 2, 3),
		testkit.Corrected("b.csv", 4, 4),
	})
	s.Records = append(s.Records,
		measurement.Record{Row: testkit.Row(1, 2, 0, 0), SourceFile: "n.csv", AverageMeanIntensity: math.NaN()},
		measurement.Record{Row: testkit.Row(2, 2, 0, 0), SourceFile: "n.csv", AverageMeanIntensity: math.NaN()},
	)

	d := DedupeBySourceAverage(s)
	require.Len(t, d.Records, 3)
	assert.Equal(t, 1, d.Records[0].Row.Label, "first occurrence is kept")
	assert.Equal(t, "b.csv", d.Records[1].SourceFile)
	assert.Equal(t, "n.csv", d.Records[2].SourceFile)
}

func TestStitchedTablesRoundTrip(t *testing.T) {
	tables := []measurement.CorrectedTable{
		testkit.Corrected("a.csv", 1, 2),
		testkit.Corrected("b.csv", 7),
	}
	back := Stitch(tables).Tables()
	require.Len(t, back, 2)
	assert.Equal(t, tables[0].Rows, back[0].Rows)
	assert.Equal(t, tables[1].AverageMeanIntensity, back[1].AverageMeanIntensity)
}
