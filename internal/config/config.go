// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers a YAML file and LIFTSENSE_* environment variables on top.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/okian/liftsense/internal/domain/pose"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFile enables size-rotated file logging when set.
	LogFile      string `koanf:"log_file"`
	LogMaxSizeMB int    `koanf:"log_max_size_mb"`
	LogToStdout  bool   `koanf:"log_to_stdout"`
	LogJSON      bool   `koanf:"log_json"`

	// Addr configures the HTTP listen address, e.g. ":8000".
	Addr string `koanf:"addr"`

	// QueueSize bounds the pending inference jobs across all sessions.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of concurrent detector calls.
	WorkerCount int `koanf:"worker_count"`

	// DetectorURL is the pose service endpoint.
	DetectorURL       string `koanf:"detector_url"`
	DetectorTimeoutMS int    `koanf:"detector_timeout_ms"`

	// ConfidenceThreshold is the minimum joint confidence for tracking and overlay.
	ConfidenceThreshold float64 `koanf:"confidence_threshold"`

	// PhaseThreshold is the normalized velocity band treated as holding still.
	PhaseThreshold float64 `koanf:"phase_threshold"`

	// VelocityNormalization divides smoothed pixel velocity.
	VelocityNormalization float64 `koanf:"velocity_normalization"`

	// SmoothingWindow is the velocity averaging window (3..5).
	SmoothingWindow int `koanf:"smoothing_window"`

	// SearchingAfterFrames is the grace period before "searching" feedback.
	SearchingAfterFrames int `koanf:"searching_after_frames"`

	// MaxMessageBytes caps one inbound stream message.
	MaxMessageBytes int64 `koanf:"max_message_bytes"`

	// AllowedOrigins lists cross-origin host patterns accepted by the stream.
	AllowedOrigins []string `koanf:"allowed_origins"`

	// UpperBodyExercises and LowerBodyExercises partition exercise tags.
	UpperBodyExercises []string `koanf:"upper_body_exercises"`
	LowerBodyExercises []string `koanf:"lower_body_exercises"`

	// DefaultTrackingMode applies to tags in neither list: upper_body or lower_body.
	DefaultTrackingMode string `koanf:"default_tracking_mode"`

	// ShutdownTimeoutMS bounds graceful shutdown.
	ShutdownTimeoutMS int `koanf:"shutdown_timeout_ms"`
}

// New creates a Config with defaults.
// With these defaults (phase_threshold 0.02, velocity_normalization 500) the
// run 500→300→300 at 1s frames is still ASCENDING on the third frame; it
// reaches TOP there only for a normalization in [100/T, 200/T).
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogMaxSizeMB:          50,
		LogToStdout:           true,
		Addr:                  ":8000",
		QueueSize:             64,
		WorkerCount:           runtime.NumCPU(),
		DetectorURL:           "http://127.0.0.1:9000/detect",
		DetectorTimeoutMS:     2000,
		ConfidenceThreshold:   0.3,
		PhaseThreshold:        0.02,
		VelocityNormalization: 500,
		SmoothingWindow:       5,
		SearchingAfterFrames:  10,
		MaxMessageBytes:       8 << 20,
		UpperBodyExercises:    []string{"bench_press", "overhead_press", "bicep_curl", "barbell_row", "pull_up"},
		LowerBodyExercises:    []string{"squat", "front_squat", "deadlift", "lunge", "hip_thrust"},
		DefaultTrackingMode:   pose.UpperBody.String(),
		ShutdownTimeoutMS:     10_000,
	}
}

// DetectorTimeout returns the detector request timeout.
func (c *Config) DetectorTimeout() time.Duration {
	return time.Duration(c.DetectorTimeoutMS) * time.Millisecond
}

// ShutdownTimeout returns the graceful shutdown bound.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}

// Classifier builds the exercise to tracking mode mapping.
func (c *Config) Classifier() (*pose.Classifier, error) {
	fallback, err := pose.ParseMode(c.DefaultTrackingMode)
	if err != nil {
		return nil, fmt.Errorf("%w: default_tracking_mode: %w", ErrInvalidConfig, err)
	}
	return pose.NewClassifier(
		pose.WithUpperBody(c.UpperBodyExercises...),
		pose.WithLowerBody(c.LowerBodyExercises...),
		pose.WithFallback(fallback),
	), nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case strings.TrimSpace(c.DetectorURL) == "":
		return fmt.Errorf("%w: detector_url must not be empty", ErrInvalidConfig)
	case c.DetectorTimeoutMS < 1:
		return fmt.Errorf("%w: detector_timeout_ms must be positive", ErrInvalidConfig)
	case c.ConfidenceThreshold < 0 || c.ConfidenceThreshold >= 1:
		return fmt.Errorf("%w: confidence_threshold must be in [0, 1)", ErrInvalidConfig)
	case c.PhaseThreshold <= 0:
		return fmt.Errorf("%w: phase_threshold must be positive", ErrInvalidConfig)
	case c.VelocityNormalization <= 0:
		return fmt.Errorf("%w: velocity_normalization must be positive", ErrInvalidConfig)
	case c.SmoothingWindow < 3 || c.SmoothingWindow > 5:
		return fmt.Errorf("%w: smoothing_window must be in [3, 5]", ErrInvalidConfig)
	case c.SearchingAfterFrames < 0:
		return fmt.Errorf("%w: searching_after_frames must not be negative", ErrInvalidConfig)
	case c.MaxMessageBytes < 1:
		return fmt.Errorf("%w: max_message_bytes must be positive", ErrInvalidConfig)
	case c.ShutdownTimeoutMS < 1:
		return fmt.Errorf("%w: shutdown_timeout_ms must be positive", ErrInvalidConfig)
	}

	upper := make(map[string]struct{}, len(c.UpperBodyExercises))
	for _, e := range c.UpperBodyExercises {
		upper[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	for _, e := range c.LowerBodyExercises {
		if _, ok := upper[strings.ToLower(strings.TrimSpace(e))]; ok {
			return fmt.Errorf("%w: exercise %q is both upper and lower body", ErrInvalidConfig, e)
		}
	}

	if _, err := c.Classifier(); err != nil {
		return err
	}
	return nil
}
