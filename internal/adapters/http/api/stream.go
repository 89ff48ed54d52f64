package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/okian/liftsense/internal/domain/pose"
	"github.com/okian/liftsense/internal/domain/session"
	"github.com/okian/liftsense/internal/domain/types"
	"github.com/okian/liftsense/pkg/logger"
	"github.com/okian/liftsense/pkg/metrics"
)

// Default stream configuration constants.
const (
	DefaultConfidenceThreshold = 0.3
	DefaultReadLimit           = 8 << 20 // bytes per inbound message
)

// StreamOption applies a configuration option to the StreamHandler.
type StreamOption func(*StreamHandler)

// WithConfidenceThreshold sets the minimum joint confidence for tracking and overlay.
func WithConfidenceThreshold(t float64) StreamOption {
	return func(h *StreamHandler) {
		if t >= 0 && t < 1 {
			h.threshold = t
		}
	}
}

// WithSessionOptions sets the options every new session is built with.
func WithSessionOptions(opts ...session.Option) StreamOption {
	return func(h *StreamHandler) {
		h.sessionOpts = append(h.sessionOpts, opts...)
	}
}

// WithReadLimit caps the size of one inbound message.
func WithReadLimit(n int64) StreamOption {
	return func(h *StreamHandler) {
		if n > 0 {
			h.readLimit = n
		}
	}
}

// WithOriginPatterns allows cross-origin clients matching the host patterns.
func WithOriginPatterns(patterns ...string) StreamOption {
	return func(h *StreamHandler) {
		h.originPatterns = append(h.originPatterns, patterns...)
	}
}

// WithClock replaces the frame timestamp source.
func WithClock(now func() time.Time) StreamOption {
	return func(h *StreamHandler) {
		if now != nil {
			h.now = now
		}
	}
}

// WithStreamLogger sets a custom logger for the stream handler.
func WithStreamLogger(l logger.Logger) StreamOption {
	return func(h *StreamHandler) {
		if l != nil {
			h.logger = l
		}
	}
}

// StreamHandler serves the per-connection analysis stream.
type StreamHandler struct {
	deps           Dependencies
	threshold      float64
	sessionOpts    []session.Option
	readLimit      int64
	originPatterns []string
	now            func() time.Time
	observe        func(*session.Session, float64, bool, time.Time) (session.Snapshot, error)
	logger         logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(deps Dependencies, opts ...StreamOption) *StreamHandler {
	h := &StreamHandler{
		deps:      deps,
		threshold: DefaultConfidenceThreshold,
		readLimit: DefaultReadLimit,
		now:       time.Now,
		observe:   (*session.Session).ObserveFrame,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logger.Get().Named("stream")
	}
	return h
}

// HandleStream handles GET /ws/analyze. Each connection owns one session; an
// optional ?exercise= query parameter selects the initial exercise.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		metrics.RecordErrorByEndpoint("ws_analyze", r.Method, "upgrade_failed")
		h.logger.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	defer conn.CloseNow() //nolint:errcheck
	conn.SetReadLimit(h.readLimit)

	sessionID := uuid.NewString()
	sess := session.New(strings.TrimSpace(r.URL.Query().Get("exercise")), h.sessionOpts...)
	ctx := r.Context()

	h.deps.SessionOpened()
	defer h.deps.SessionClosed()
	h.logger.Info(ctx, "session opened",
		logger.String("session_id", sessionID),
		logger.String("exercise", sess.Exercise()),
		logger.String("mode", sess.Mode().String()),
	)

	err = h.serve(ctx, conn, sessionID, sess)
	switch {
	case errors.Is(err, session.ErrInvariantViolation):
		h.logger.Error(ctx, "session invariant violated, closing connection",
			logger.String("session_id", sessionID),
			logger.Error(err),
		)
		_ = conn.Close(websocket.StatusInternalError, "internal error")
	case err != nil && websocket.CloseStatus(err) == -1 && ctx.Err() == nil:
		h.logger.Debug(ctx, "stream ended", logger.String("session_id", sessionID), logger.Error(err))
	}

	snap := sess.Snapshot()
	h.logger.Info(ctx, "session closed",
		logger.String("session_id", sessionID),
		logger.String("exercise", snap.Exercise),
		logger.Int("reps", snap.Reps),
		logger.Int("rir", snap.RIR),
	)
}

// serve reads frames until the connection ends or the session breaks.
func (h *StreamHandler) serve(ctx context.Context, conn *websocket.Conn, sessionID string, sess *session.Session) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		received := h.now()
		metrics.RecordFrameReceived()

		fb, err := h.processFrame(ctx, sessionID, sess, typ, data, received)
		if err != nil {
			if errors.Is(err, session.ErrInvariantViolation) {
				return err
			}
			h.skip(ctx, sessionID, err)
			continue
		}

		if err := wsjson.Write(ctx, conn, fb); err != nil {
			return fmt.Errorf("write feedback: %w", err)
		}
		metrics.RecordFrameProcessed(float64(time.Since(received).Milliseconds()))
	}
}

// processFrame turns one inbound message into feedback. A panic restores the
// session to its state before the frame.
func (h *StreamHandler) processFrame(
	ctx context.Context,
	sessionID string,
	sess *session.Session,
	typ websocket.MessageType,
	data []byte,
	received time.Time,
) (fb types.Feedback, err error) {
	saved := sess.Clone()
	defer func() {
		if r := recover(); r != nil {
			sess.Restore(saved)
			err = fmt.Errorf("%w: %v", ErrFrameProcessing, r)
		}
	}()

	image, exercise, err := decodeFrame(typ, data)
	if err != nil {
		return types.Feedback{}, err
	}

	if exercise != "" && !sameExercise(exercise, sess.Exercise()) {
		sess.Reset(exercise)
		metrics.RecordSessionReset()
		h.logger.Info(ctx, "exercise changed, session reset",
			logger.String("session_id", sessionID),
			logger.String("exercise", exercise),
			logger.String("mode", sess.Mode().String()),
		)
	}

	detection, err := h.deps.Detect(ctx, sessionID, image)
	if err != nil {
		return types.Feedback{}, fmt.Errorf("%w: %w", ErrDetection, err)
	}

	subject, found := detection.Primary()
	var y float64
	if found {
		y, found = pose.SelectY(subject, sess.Mode(), h.threshold)
	}
	if !found {
		metrics.RecordDetectionMiss()
	}

	snap, err := h.observe(sess, y, found, received)
	if err != nil {
		return types.Feedback{}, err
	}

	if snap.Completed {
		metrics.RecordRepCompleted(snap.Exercise, snap.RepVelocity, snap.RIR)
		h.logger.Debug(ctx, "rep completed",
			logger.String("session_id", sessionID),
			logger.Int("reps", snap.Reps),
			logger.Float64("velocity", snap.RepVelocity),
			logger.Int("rir", snap.RIR),
		)
	}
	h.deps.FrameProcessed(snap.Completed)

	var keypoints map[string][2]float64
	if len(detection.Subjects) > 0 {
		keypoints = pose.Overlay(subject, detection.Width, detection.Height, h.threshold)
	}
	return types.NewFeedback(snap, keypoints), nil
}

// decodeFrame extracts the image bytes and requested exercise from a message.
// Binary messages carry the encoded image directly.
func decodeFrame(typ websocket.MessageType, data []byte) ([]byte, string, error) {
	if typ == websocket.MessageBinary {
		if len(data) == 0 {
			return nil, "", fmt.Errorf("%w: %w", ErrBadFrame, types.ErrEmptyFrame)
		}
		return data, "", nil
	}

	req, err := types.ParseFrame(data)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrBadFrame, err)
	}
	image, err := req.DecodeImage()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrBadFrame, err)
	}
	return image, req.Exercise, nil
}

// sameExercise compares tags the way the classifier matches them.
func sameExercise(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func (h *StreamHandler) skip(ctx context.Context, sessionID string, err error) {
	h.deps.FrameSkipped()

	reason := "error"
	switch {
	case errors.Is(err, ErrBadFrame):
		reason = "bad_frame"
	case errors.Is(err, ErrDetection):
		reason = "detection"
	case errors.Is(err, ErrFrameProcessing):
		reason = "panic"
		metrics.RecordFrameError("panic")
		h.logger.Error(ctx, "frame processing panicked, session restored",
			logger.String("session_id", sessionID),
			logger.Error(err),
		)
	}
	metrics.RecordFrameSkipped(reason)

	if reason != "panic" {
		h.logger.Debug(ctx, "frame skipped",
			logger.String("session_id", sessionID),
			logger.String("reason", reason),
			logger.Error(err),
		)
	}
}
