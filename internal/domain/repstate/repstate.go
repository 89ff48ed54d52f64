// Package repstate classifies lift phase from normalized velocity and counts
// completed repetitions.
package repstate

// DefaultThreshold is the symmetric velocity band separating motion from holding.
const DefaultThreshold = 0.02

// Phase is the current phase of the lift.
type Phase string

// Lift phases.
const (
	Idle       Phase = "IDLE"
	Descending Phase = "DESCENDING"
	Bottom     Phase = "BOTTOM"
	Ascending  Phase = "ASCENDING"
	Top        Phase = "TOP"
)

// Feedback returns the coaching cue for the phase.
func (p Phase) Feedback() string {
	switch p {
	case Descending:
		return "Control Negative"
	case Ascending:
		return "EXPLODE UP!"
	case Top:
		return "Lockout"
	case Bottom:
		return "Drive!"
	default:
		return "Ready"
	}
}

// LifterState is the per-session state machine state.
type LifterState struct {
	Phase    Phase
	Reps     int
	Velocity float64
	Peak     float64
}

// NewLifterState returns the initial state.
func NewLifterState() LifterState {
	return LifterState{Phase: Idle}
}

// Step is the outcome of one state machine evaluation.
type Step struct {
	Phase    Phase
	Reps     int
	Velocity float64
	// RepVelocity is the finished rep's peak when Completed, else the in-progress peak.
	RepVelocity float64
	Completed   bool
}

// Machine evaluates phase transitions against a symmetric threshold.
type Machine struct {
	threshold float64
}

// NewMachine creates a machine. Non-positive thresholds use DefaultThreshold.
func NewMachine(threshold float64) *Machine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Machine{threshold: threshold}
}

// Threshold returns the holding band half-width.
func (m *Machine) Threshold() float64 { return m.threshold }

// Step applies one velocity sample. Velocities exactly at ±threshold count as holding.
func (m *Machine) Step(s *LifterState, v float64) Step {
	s.Velocity = v
	out := Step{}

	switch {
	case v < -m.threshold:
		if s.Phase == Ascending {
			out.RepVelocity = finish(s)
			out.Completed = true
		}
		s.Phase = Descending
	case v > m.threshold:
		s.Phase = Ascending
		if v > s.Peak {
			s.Peak = v
		}
	default:
		switch s.Phase {
		case Ascending:
			out.RepVelocity = finish(s)
			out.Completed = true
			s.Phase = Top
		case Descending:
			s.Phase = Bottom
		default:
			s.Phase = Idle
		}
	}

	if !out.Completed {
		out.RepVelocity = s.Peak
	}
	out.Phase = s.Phase
	out.Reps = s.Reps
	out.Velocity = v
	return out
}

// finish counts a repetition and consumes its peak.
func finish(s *LifterState) float64 {
	s.Reps++
	peak := s.Peak
	s.Peak = 0
	return peak
}
