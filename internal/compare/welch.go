package compare

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// TTestResult holds a two-sample Welch t-test outcome. Undefined values are NaN.
type TTestResult struct {
	T      float64
	DF     float64
	PValue float64
	N1     int
	N2     int
}

// WelchTTest tests whether sample means differ without assuming equal variances.
// T is positive when sample1 has the larger mean. The p-value is two-sided.
//
// Samples with fewer than two values give an undefined result, as does a pair of
// constant samples with equal means.
func WelchTTest(sample1, sample2 []float64) TTestResult {
	res := TTestResult{T: math.NaN(), DF: math.NaN(), PValue: math.NaN(), N1: len(sample1), N2: len(sample2)}
	if len(sample1) < 2 || len(sample2) < 2 {
		return res
	}

	n1 := float64(len(sample1))
	n2 := float64(len(sample2))
	mean1, var1 := stat.MeanVariance(sample1, nil)
	mean2, var2 := stat.MeanVariance(sample2, nil)

	// Welch's t-statistic: t = (mean1 - mean2) / sqrt(var1/n1 + var2/n2)
	a := var1 / n1
	b := var2 / n2
	se2 := a + b
	diff := mean1 - mean2

	if se2 == 0 {
		if diff == 0 {
			return res
		}
		res.T = math.Copysign(math.Inf(1), diff)
		res.PValue = 0
		return res
	}

	res.T = diff / math.Sqrt(se2)
	// Welch-Satterthwaite degrees of freedom
	res.DF = se2 * se2 / (a*a/(n1-1) + b*b/(n2-1))

	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: res.DF}
	res.PValue = math.Min(1, 2*tDist.Survival(math.Abs(res.T)))
	return res
}
