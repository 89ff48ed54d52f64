package detector

import "errors"

// Sentinel kinds for detector errors.
var (
	// ErrDetect wraps every failed inference call.
	ErrDetect = errors.New("pose detection failed")

	// ErrNoEndpoint is returned when no detector URL is configured.
	ErrNoEndpoint = errors.New("detector endpoint not configured")
)
