package testkit

import (
	"fmt"
	"math/rand"

	"segstat/domain/measurement"
)

// SegmentationConfig configures the synthetic segmentation table generator
type SegmentationConfig struct {
	Regions       int     `json:"regions"`
	SignalMean    float64 `json:"signal_mean"`
	SignalStdDev  float64 `json:"signal_std_dev"`
	Background    float64 `json:"background"`
	MaxDepth      int     `json:"max_depth"`
	BackgroundPos int     `json:"background_pos"` // index of the background row; -1 for none
	Seed          int64   `json:"seed"`
}

// DefaultSegmentationConfig returns sensible defaults for table generation
func DefaultSegmentationConfig() SegmentationConfig {
	return SegmentationConfig{
		Regions:       25,
		SignalMean:    120,
		SignalStdDev:  15,
		Background:    40,
		MaxDepth:      30,
		BackgroundPos: 0,
		Seed:          42,
	}
}

// SegmentationGenerator produces deterministic synthetic segmentation tables
type SegmentationGenerator struct {
	config SegmentationConfig
	rng    *rand.Rand
}

// NewSegmentationGenerator creates a generator seeded from config
func NewSegmentationGenerator(config SegmentationConfig) *SegmentationGenerator {
	return &SegmentationGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Generate builds one table. Foreground regions span at least two slices so the
// configured background row is the only single-slice candidate.
func (g *SegmentationGenerator) Generate(sourceFile string) measurement.Table {
	table := measurement.Table{SourceFile: sourceFile}
	labels := g.rng.Perm(g.config.Regions)

	for i := 0; i < g.config.Regions; i++ {
		label := labels[i] + 1
		start := g.rng.Intn(g.config.MaxDepth / 2)

		if i == g.config.BackgroundPos {
			table.Rows = append(table.Rows, measurement.Row{
				Label:         label,
				ZStart:        start,
				ZEnd:          start + 1,
				IntensityMean: g.config.Background,
				IntensityMax:  g.config.Background * 1.5,
			})
			continue
		}

		mean := g.config.SignalMean + g.rng.NormFloat64()*g.config.SignalStdDev
		table.Rows = append(table.Rows, measurement.Row{
			Label:         label,
			ZStart:        start,
			ZEnd:          start + 2 + g.rng.Intn(g.config.MaxDepth/2),
			IntensityMean: mean,
			IntensityMax:  mean * (1.5 + g.rng.Float64()),
			Extras:        map[string]string{"area": fmt.Sprintf("%d", 50+g.rng.Intn(500))},
		})
	}
	table.ExtraColumns = []string{"area"}
	return table
}

// Samples draws n normal values with the given mean and standard deviation
func (g *SegmentationGenerator) Samples(n int, mean, stdDev float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = mean + g.rng.NormFloat64()*stdDev
	}
	return out
}
