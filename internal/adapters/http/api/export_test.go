package api

import (
	"time"

	"github.com/okian/liftsense/internal/domain/session"
)

// WithObserveFunc replaces the per-frame session update.
func WithObserveFunc(f func(*session.Session, float64, bool, time.Time) (session.Snapshot, error)) StreamOption {
	return func(h *StreamHandler) {
		h.observe = f
	}
}
