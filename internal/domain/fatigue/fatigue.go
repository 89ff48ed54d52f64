// Package fatigue estimates reps in reserve from the decay of per-rep peak velocity.
package fatigue

import "math"

// RIR mapping constants. A 0% velocity loss maps to MaxRIR; roughly 60% loss maps to 0.
const (
	MaxRIR    = 8
	MinRIR    = 0
	lossSlope = 13.3
)

// EstimateRIR returns the integer reps-in-reserve estimate for a set's
// ordered per-rep peak velocities. The result is always in [MinRIR, MaxRIR].
func EstimateRIR(history []float64) int {
	if len(history) == 0 {
		return MaxRIR
	}

	var sum float64
	for _, v := range history {
		sum += v
	}
	baseline := sum / float64(len(history))
	if baseline == 0 || math.IsNaN(baseline) || math.IsInf(baseline, 0) {
		return MaxRIR
	}

	last := history[len(history)-1]
	loss := (baseline - last) / baseline
	estimate := math.Round(MaxRIR - lossSlope*loss)
	if math.IsNaN(estimate) {
		return MaxRIR
	}
	return int(math.Max(MinRIR, math.Min(MaxRIR, estimate)))
}

// History is the ordered sequence of peak velocities for the current set.
type History struct {
	values []float64
}

// Append records the peak velocity of a completed rep.
func (h *History) Append(v float64) {
	h.values = append(h.values, v)
}

// Len returns the number of recorded reps.
func (h *History) Len() int { return len(h.values) }

// Last returns the most recent rep velocity.
func (h *History) Last() (float64, bool) {
	if len(h.values) == 0 {
		return 0, false
	}
	return h.values[len(h.values)-1], true
}

// Values returns a copy of the recorded velocities.
func (h *History) Values() []float64 {
	return append([]float64(nil), h.values...)
}

// RIR estimates reps in reserve for the recorded set.
func (h *History) RIR() int {
	return EstimateRIR(h.values)
}

// Clone returns a deep copy.
func (h *History) Clone() History {
	return History{values: h.Values()}
}
