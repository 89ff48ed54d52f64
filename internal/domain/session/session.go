// Package session owns the per-connection analysis state: tracking, the rep
// state machine and the set's fatigue history.
package session

import (
	"fmt"
	"time"

	"github.com/okian/liftsense/internal/domain/fatigue"
	"github.com/okian/liftsense/internal/domain/kinematics"
	"github.com/okian/liftsense/internal/domain/pose"
	"github.com/okian/liftsense/internal/domain/repstate"
)

// Default session configuration constants.
const (
	DefaultSearchingAfter = 10
	SearchingFeedback     = "Searching for lifter..."
)

// Option applies a configuration option to the Session.
type Option func(*Session)

// WithEstimator sets the velocity estimator.
func WithEstimator(e *kinematics.Estimator) Option {
	return func(s *Session) {
		if e != nil {
			s.estimator = e
		}
	}
}

// WithMachine sets the rep state machine.
func WithMachine(m *repstate.Machine) Option {
	return func(s *Session) {
		if m != nil {
			s.machine = m
		}
	}
}

// WithClassifier sets the exercise to tracking mode classifier.
func WithClassifier(c *pose.Classifier) Option {
	return func(s *Session) {
		if c != nil {
			s.classifier = c
		}
	}
}

// WithSearchingAfter sets how many consecutive frames without a detection
// are tolerated before feedback switches to the searching message.
func WithSearchingAfter(frames int) Option {
	return func(s *Session) {
		if frames >= 0 {
			s.searchingAfter = frames
		}
	}
}

// Snapshot is the externally visible session state after a frame.
type Snapshot struct {
	Exercise             string
	Mode                 pose.Mode
	Phase                repstate.Phase
	Reps                 int
	Velocity             float64
	RepVelocity          float64
	RIR                  int
	Feedback             string
	FramesSinceDetection int
	Completed            bool
}

// Session is one lifter's live analysis. It is not safe for concurrent use;
// a session belongs to exactly one connection goroutine.
type Session struct {
	estimator      *kinematics.Estimator
	machine        *repstate.Machine
	classifier     *pose.Classifier
	searchingAfter int

	exercise    string
	mode        pose.Mode
	tracking    kinematics.TrackingState
	lifter      repstate.LifterState
	history     fatigue.History
	sinceDetect int
	feedback    string
	rir         int
	repVelocity float64
}

// New creates a session for an exercise.
func New(exercise string, opts ...Option) *Session {
	s := &Session{
		estimator:      kinematics.NewEstimator(),
		machine:        repstate.NewMachine(repstate.DefaultThreshold),
		classifier:     pose.NewClassifier(),
		searchingAfter: DefaultSearchingAfter,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Reset(exercise)
	return s
}

// Reset starts a new set for the exercise, replacing all analysis state.
func (s *Session) Reset(exercise string) {
	s.exercise = exercise
	s.mode = s.classifier.ModeFor(exercise)
	s.tracking = kinematics.TrackingState{}
	s.lifter = repstate.NewLifterState()
	s.history = fatigue.History{}
	s.sinceDetect = 0
	s.feedback = s.lifter.Phase.Feedback()
	s.rir = fatigue.MaxRIR
	s.repVelocity = 0
}

// Exercise returns the active exercise tag.
func (s *Session) Exercise() string { return s.exercise }

// Mode returns the tracking mode fixed at the last reset.
func (s *Session) Mode() pose.Mode { return s.mode }

// RepVelocities returns the peak velocity of every completed rep in the set.
func (s *Session) RepVelocities() []float64 { return s.history.Values() }

// ObserveFrame advances the session by one frame. detected is false when the
// frame had no usable tracking point, in which case y is ignored.
func (s *Session) ObserveFrame(y float64, detected bool, now time.Time) (Snapshot, error) {
	completed := false

	if !detected {
		s.sinceDetect++
	} else {
		s.sinceDetect = 0
		if v, ok := s.estimator.Update(&s.tracking, y, now); ok {
			step := s.machine.Step(&s.lifter, v)
			s.repVelocity = step.RepVelocity
			if step.Completed {
				completed = true
				s.history.Append(step.RepVelocity)
				s.rir = s.history.RIR()
			}
		}
	}

	if s.sinceDetect > s.searchingAfter {
		s.feedback = SearchingFeedback
	} else {
		s.feedback = s.lifter.Phase.Feedback()
	}

	if err := s.Check(); err != nil {
		return Snapshot{}, err
	}

	snap := s.Snapshot()
	snap.Completed = completed
	return snap, nil
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Exercise:             s.exercise,
		Mode:                 s.mode,
		Phase:                s.lifter.Phase,
		Reps:                 s.lifter.Reps,
		Velocity:             s.lifter.Velocity,
		RepVelocity:          s.repVelocity,
		RIR:                  s.rir,
		Feedback:             s.feedback,
		FramesSinceDetection: s.sinceDetect,
	}
}

// Check validates the session invariants.
func (s *Session) Check() error {
	switch {
	case s.lifter.Reps < 0:
		return fmt.Errorf("%w: negative rep count %d", ErrInvariantViolation, s.lifter.Reps)
	case s.lifter.Peak < 0:
		return fmt.Errorf("%w: negative peak velocity %f", ErrInvariantViolation, s.lifter.Peak)
	case s.history.Len() != s.lifter.Reps:
		return fmt.Errorf("%w: %d rep velocities for %d reps", ErrInvariantViolation, s.history.Len(), s.lifter.Reps)
	case s.rir < fatigue.MinRIR || s.rir > fatigue.MaxRIR:
		return fmt.Errorf("%w: rir %d out of range", ErrInvariantViolation, s.rir)
	case s.sinceDetect < 0:
		return fmt.Errorf("%w: negative frames since detection", ErrInvariantViolation)
	}
	return nil
}

// Clone returns a deep copy sharing only the immutable collaborators.
func (s *Session) Clone() *Session {
	c := *s
	c.tracking = s.tracking.Clone()
	c.history = s.history.Clone()
	return &c
}

// Restore replaces the session state with a previously cloned one.
func (s *Session) Restore(from *Session) {
	if from == nil {
		return
	}
	*s = *from.Clone()
}
