package pose

import (
	"fmt"
	"strings"
)

// Mode selects which joints are tracked.
type Mode int

const (
	// UpperBody tracks wrists, then elbows, then shoulders.
	UpperBody Mode = iota
	// LowerBody tracks hips, then knees.
	LowerBody
)

func (m Mode) String() string {
	switch m {
	case UpperBody:
		return "upper_body"
	case LowerBody:
		return "lower_body"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "upper_body" or "lower_body" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch normalize(s) {
	case "upper_body", "upper":
		return UpperBody, nil
	case "lower_body", "lower":
		return LowerBody, nil
	default:
		return UpperBody, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// SelectY picks the tracked vertical coordinate for the frame. The second
// return is false when no joint in the mode's priority chain clears threshold.
func SelectY(s JointSample, mode Mode, threshold float64) (float64, bool) {
	var chain [][2]Joint
	switch mode {
	case LowerBody:
		chain = [][2]Joint{
			{s.LeftHip, s.RightHip},
			{s.LeftKnee, s.RightKnee},
		}
	default:
		chain = [][2]Joint{
			{s.LeftWrist, s.RightWrist},
			{s.LeftElbow, s.RightElbow},
			{s.LeftShoulder, s.RightShoulder},
		}
	}
	for _, pair := range chain {
		if y, ok := pairY(pair, threshold); ok {
			return y, true
		}
	}
	return 0, false
}

// pairY averages the y of the pair members that clear threshold.
func pairY(pair [2]Joint, threshold float64) (float64, bool) {
	var sum float64
	n := 0
	for _, j := range pair {
		if j.Clears(threshold) {
			sum += j.Y
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// Classifier maps exercise tags to tracking modes.
type Classifier struct {
	modes    map[string]Mode
	fallback Mode
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithUpperBody registers exercise tags tracked in upper-body mode.
func WithUpperBody(exercises ...string) ClassifierOption {
	return func(c *Classifier) {
		for _, e := range exercises {
			if k := normalize(e); k != "" {
				c.modes[k] = UpperBody
			}
		}
	}
}

// WithLowerBody registers exercise tags tracked in lower-body mode.
func WithLowerBody(exercises ...string) ClassifierOption {
	return func(c *Classifier) {
		for _, e := range exercises {
			if k := normalize(e); k != "" {
				c.modes[k] = LowerBody
			}
		}
	}
}

// WithFallback sets the mode used for unknown exercise tags.
func WithFallback(m Mode) ClassifierOption {
	return func(c *Classifier) {
		c.fallback = m
	}
}

// NewClassifier creates a classifier. With no options every exercise is upper body.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		modes:    make(map[string]Mode),
		fallback: UpperBody,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ModeFor returns the tracking mode for an exercise tag.
func (c *Classifier) ModeFor(exercise string) Mode {
	if c == nil {
		return UpperBody
	}
	if m, ok := c.modes[normalize(exercise)]; ok {
		return m
	}
	return c.fallback
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
