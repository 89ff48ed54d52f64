// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/liftsense/internal/domain/pose"
)

// Job is one frame submitted for pose inference.
type Job struct {
	ID        string          // unique id, used in logs
	SessionID string          // owning connection
	Image     []byte          // encoded image, opaque to the core
	Submitted time.Time       // enqueue time, for latency metrics
	Cancelled <-chan struct{} // closed when the submitter stopped waiting
	Reply     chan Result     // buffered; receives exactly one Result
}

// NewJob creates a job with a single-slot reply channel.
func NewJob(id, sessionID string, image []byte, cancelled <-chan struct{}) Job {
	return Job{
		ID:        id,
		SessionID: sessionID,
		Image:     image,
		Submitted: time.Now(),
		Cancelled: cancelled,
		Reply:     make(chan Result, 1),
	}
}

// Abandoned reports whether the submitter is no longer waiting.
func (j Job) Abandoned() bool { //nolint:gocritic // hugeParam: Job must be passed by value for channel semantics
	if j.Cancelled == nil {
		return false
	}
	select {
	case <-j.Cancelled:
		return true
	default:
		return false
	}
}

// Deliver sends the result without blocking. Only the first delivery is kept.
func (j Job) Deliver(r Result) bool { //nolint:gocritic // hugeParam: Job must be passed by value for channel semantics
	select {
	case j.Reply <- r:
		return true
	default:
		return false
	}
}

// Result is the detector outcome for a Job.
type Result struct {
	JobID     string
	Detection pose.Detection
	Err       error
	Latency   time.Duration // detector call duration
}
