package pose

import "errors"

// Sentinel kinds for pose errors.
var (
	ErrUnknownMode = errors.New("unknown tracking mode")
)
