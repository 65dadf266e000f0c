package normalize

import (
	"segstat/domain/measurement"
	"segstat/ports"
)

// MaxLabelSelector picks the candidate with the highest label, i.e. the most
// recently assigned single-slice region.
type MaxLabelSelector struct{}

var _ ports.BackgroundSelector = MaxLabelSelector{}

func (MaxLabelSelector) SelectBackground(candidates []measurement.Row) (measurement.Row, bool) {
	if len(candidates) == 0 {
		return measurement.Row{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Label > best.Label {
			best = c
		}
	}
	return best, true
}

// SelectorFunc adapts a plain function to ports.BackgroundSelector
type SelectorFunc func(candidates []measurement.Row) (measurement.Row, bool)

func (f SelectorFunc) SelectBackground(candidates []measurement.Row) (measurement.Row, bool) {
	return f(candidates)
}
