// Package evolution turns the periodic records of a (student, discipline)
// pair into an average-level series, per-skill deltas and regression alerts.
package evolution

import "math"

// Trend classifies the direction of a level series.
type Trend string

const (
	Improving  Trend = "improving"
	Stable     Trend = "stable"
	Regressing Trend = "regressing"
)

const (
	// OverallThreshold absorbs rounding noise in the average-level series.
	OverallThreshold = 0.3
	// SkillThreshold classifies single-skill deltas; any change counts.
	SkillThreshold = 0.0
)

// Classify maps a delta to a trend: above +threshold improves, below
// -threshold regresses, anything in between is stable.
func Classify(delta, threshold float64) Trend {
	switch {
	case delta > threshold:
		return Improving
	case delta < -threshold:
		return Regressing
	default:
		return Stable
	}
}

// round1 rounds to one decimal place.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
