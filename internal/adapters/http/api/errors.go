package api

import "errors"

// Sentinel kinds for API errors.
var (
	// ErrBadFrame marks an inbound message that could not be decoded into an image.
	ErrBadFrame = errors.New("bad frame")

	// ErrDetection marks a frame whose pose inference failed or was rejected.
	ErrDetection = errors.New("detection unavailable")

	// ErrFrameProcessing marks a frame whose analysis panicked; the session is rolled back.
	ErrFrameProcessing = errors.New("frame processing failed")

	ErrMethodNotAllowed = errors.New("method not allowed")
)
