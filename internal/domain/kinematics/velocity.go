// Package kinematics converts tracked positions into a smoothed, normalized
// vertical velocity signal.
package kinematics

import "time"

// Default estimator configuration constants.
const (
	DefaultWindow        = 5
	DefaultNormalization = 500.0
	minWindow            = 3
	maxWindow            = 5
)

// TrackingState is the per-session position history.
type TrackingState struct {
	prevY    float64
	prevTime time.Time
	hasPrev  bool
	window   []float64
}

// Velocities returns a copy of the retained instantaneous velocities, oldest first.
func (s *TrackingState) Velocities() []float64 {
	return append([]float64(nil), s.window...)
}

// Primed reports whether a previous sample is stored.
func (s *TrackingState) Primed() bool {
	return s.hasPrev
}

// Clone returns a deep copy of the state.
func (s *TrackingState) Clone() TrackingState {
	c := *s
	c.window = s.Velocities()
	return c
}

// Option applies a configuration option to the Estimator.
type Option func(*Estimator)

// WithWindow sets the smoothing window size, clamped to [3, 5].
func WithWindow(n int) Option {
	return func(e *Estimator) {
		if n <= 0 {
			return
		}
		e.window = min(max(n, minWindow), maxWindow)
	}
}

// WithNormalization sets the pixel-velocity divisor.
func WithNormalization(k float64) Option {
	return func(e *Estimator) {
		if k > 0 {
			e.normalization = k
		}
	}
}

// Estimator computes normalized velocity from successive positions.
type Estimator struct {
	window        int
	normalization float64
}

// NewEstimator creates an estimator with configuration options.
func NewEstimator(opts ...Option) *Estimator {
	e := &Estimator{
		window:        DefaultWindow,
		normalization: DefaultNormalization,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Window returns the configured smoothing window.
func (e *Estimator) Window() int { return e.window }

// Update feeds one position sample. It returns the normalized velocity and
// true, or false when no velocity is produced (first sample, or a
// non-positive time delta, in which case state is left untouched).
//
// Image y grows downward, so the sign is inverted: upward motion is positive.
func (e *Estimator) Update(s *TrackingState, y float64, now time.Time) (float64, bool) {
	if !s.hasPrev {
		s.prevY = y
		s.prevTime = now
		s.hasPrev = true
		return 0, false
	}

	dt := now.Sub(s.prevTime).Seconds()
	if dt <= 0 {
		return 0, false
	}

	inst := -(y - s.prevY) / dt
	s.window = append(s.window, inst)
	if len(s.window) > e.window {
		s.window = s.window[len(s.window)-e.window:]
	}

	var sum float64
	for _, v := range s.window {
		sum += v
	}
	smoothed := sum / float64(len(s.window))

	s.prevY = y
	s.prevTime = now
	return smoothed / e.normalization, true
}
