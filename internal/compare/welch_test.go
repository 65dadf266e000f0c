package compare

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"segstat/internal/testkit"
)

func TestWelchTTest_KnownValues(t *testing.T) {
		a := []float64{19.8, 20.4, 19.6, 17.8, 18.5, 18.9, 18.3, 18.9, 19.5, 22.0}
	b := []float64{28.2, 26.6, 20.1, 23.3, 25.2, 22.1, 17.7, 27.6, 20.6, 13.7}

	res := WelchTTest(a, b)
	assert.InDelta(t, -2.0740, res.T, 1e-4)
	assert.InDelta(t, 10.209, res.DF, 1e-3)
	assert.InDelta(t, 0.06428, res.PValue, 1e-4)

	res = WelchTTest([]float64{10, 12, 14}, []float64{20, 22, 24, 26})
	assert.InDelta(t, -6.3509, res.T, 1e-4)
	assert.InDelta(t, 4.9592, res.DF, 1e-4)
	assert.InDelta(t, 0.001473, res.PValue, 1e-5)
}

func TestWelchTTest_IdenticalConstantSamples(t *testing.T) {
	res := WelchTTest([]float64{10, 10, 10}, []float64{10, 10, 10})
	assert.True(t, math.IsNaN(res.PValue), "identical constant samples have no defined p-value")
}

func TestWelchTTest_ConstantSamplesDifferentMeans(t *testing.T) {
	res := WelchTTest([]float64{1, 1, 1}, []float64{2, 2, 2})
	assert.Equal(t, 0.0, res.PValue)
	assert.True(t, math.IsInf(res.T, -1))
}

func TestWelchTTest_TooFewValues(t *testing.T) {
	assert.True(t, math.IsNaN(WelchTTest([]float64{1}, []float64{1, 2, 3}).PValue))
	assert.True(t, math.IsNaN(WelchTTest(nil, []float64{1, 2, 3}).PValue))
}

func TestWelchTTest_Symmetric(t *testing.T) {
	gen := testkit.NewSegmentationGenerator(testkit.DefaultSegmentationConfig())
	a := gen.Samples(40, 10, 2)
	b := gen.Samples(25, 16, 5)

	ab := WelchTTest(a, b)
	ba := WelchTTest(b, a)
	assert.InDelta(t, ab.PValue, ba.PValue, 1e-12)
	assert.InDelta(t, -ab.T, ba.T, 1e-12)
	assert.Less(t, ab.PValue, 0.05)
}

func TestWelchTTest_SameDistributionNotSignificant(t *testing.T) {
	a := []float64{9, 10, 11, 10, 9, 11}
	b := []float64{11, 9, 10, 10, 11, 9}
	res := WelchTTest(a, b)
	assert.InDelta(t, 1.0, res.PValue, 1e-9)
}

func TestDescribe(t *testing.T) {
	gs := Describe("A", []float64{2, 4, 4, 4, 5, 5, 7, 9}, 0.02)
	assert.Equal(t, 8, gs.N)
	assert.Equal(t, 5.0, gs.Mean)
	assert.Equal(t, 4.5, gs.Median)
	assert.InDelta(t, 2.138, gs.StdDev, 1e-3)
	assert.InDelta(t, gs.StdDev/math.Sqrt(8), gs.SEM, 1e-12)
	assert.Equal(t, "*", gs.Significance)

	empty := Describe("B", nil, math.NaN())
	assert.Equal(t, 0, empty.N)
	assert.True(t, math.IsNaN(empty.Mean))
	assert.Equal(t, "", empty.Significance)

	single := Describe("C", []float64{3}, math.NaN())
	assert.Equal(t, 3.0, single.Mean)
	assert.True(t, math.IsNaN(single.StdDev))
}
