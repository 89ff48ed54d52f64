package service

import "errors"

// Sentinel kinds for service errors.
var (
	// ErrBackpressure is returned when the inference queue is full; the frame should be skipped.
	ErrBackpressure = errors.New("inference queue full")
	ErrNotStarted   = errors.New("service not started")
	ErrNoDetector   = errors.New("no pose detector configured")
)
