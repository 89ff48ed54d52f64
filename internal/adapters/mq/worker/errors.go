package worker

import "errors"

// Sentinel kinds for worker errors.
var (
	ErrAbandoned       = errors.New("inference job abandoned")
	ErrDetectPanic     = errors.New("detector panicked")
	ErrShutdownTimeout = errors.New("worker shutdown timed out")
	ErrStopped         = errors.New("worker pool stopped")
)
