// Package service provides the core service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	jobqueue "github.com/okian/liftsense/internal/adapters/mq/queue"
	workerpool "github.com/okian/liftsense/internal/adapters/mq/worker"
	"github.com/okian/liftsense/internal/domain/model"
	"github.com/okian/liftsense/internal/domain/pose"
	"github.com/okian/liftsense/pkg/logger"
	"github.com/okian/liftsense/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultQueueSize = 64
)

// Service owns the inference pipeline shared by all analysis sessions.
type Service struct {
	mu sync.RWMutex

	// Core components
	detector   workerpool.Detector
	jobQueue   jobqueue.Queue
	workerPool *workerpool.Pool

	// Configuration
	workerCount int
	queueSize   int

	// State
	started         bool
	sessionsActive  atomic.Int64
	sessionsTotal   atomic.Int64
	framesProcessed atomic.Int64
	framesSkipped   atomic.Int64
	repsCompleted   atomic.Int64

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of inference workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of pending inference jobs.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDetector sets the pose detector used by the workers.
func WithDetector(d workerpool.Detector) Option {
	return func(s *Service) {
		if d != nil {
			s.detector = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU(),
		queueSize:   defaultQueueSize,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the inference pipeline.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.detector == nil {
		return ErrNoDetector
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting analysis service...")

	s.jobQueue = jobqueue.NewInMemoryQueue(
		jobqueue.WithCapacity(s.queueSize),
		jobqueue.WithBufferSize(s.queueSize),
	)
	s.workerPool = workerpool.NewPool(s.workerCount, s.jobQueue, s.detector)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "analysis service started",
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("queueSize", s.queueSize),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping analysis service...")

	if err := s.workerPool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "analysis service stopped")
}

// Detect runs pose inference for one frame through the bounded queue. It
// returns ErrBackpressure instead of waiting when the queue is full.
func (s *Service) Detect(ctx context.Context, sessionID string, image []byte) (pose.Detection, error) {
	s.mu.RLock()
	if !s.started {
		s.mu.RUnlock()
		return pose.Detection{}, ErrNotStarted
	}
	q := s.jobQueue
	s.mu.RUnlock()

	job := model.NewJob(uuid.NewString(), sessionID, image, ctx.Done())
	if !q.Enqueue(ctx, job) {
		return pose.Detection{}, ErrBackpressure
	}

	select {
	case r := <-job.Reply:
		if r.Err != nil {
			if ctx.Err() != nil {
				return pose.Detection{}, fmt.Errorf("waiting for detection: %w", ctx.Err())
			}
			return pose.Detection{}, r.Err
		}
		return r.Detection, nil
	case <-ctx.Done():
		return pose.Detection{}, fmt.Errorf("waiting for detection: %w", ctx.Err())
	}
}

// SessionOpened records a new analysis session.
func (s *Service) SessionOpened() {
	s.sessionsActive.Add(1)
	s.sessionsTotal.Add(1)
	metrics.RecordSessionOpened()
}

// SessionClosed records the end of an analysis session.
func (s *Service) SessionClosed() {
	s.sessionsActive.Add(-1)
	metrics.RecordSessionClosed()
}

// FrameProcessed records a frame that produced feedback.
func (s *Service) FrameProcessed(repCompleted bool) {
	s.framesProcessed.Add(1)
	if repCompleted {
		s.repsCompleted.Add(1)
	}
}

// FrameSkipped records a frame dropped without feedback.
func (s *Service) FrameSkipped() {
	s.framesSkipped.Add(1)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":         s.started,
		"workerCount":     s.workerCount,
		"queueSize":       s.queueSize,
		"activeSessions":  s.sessionsActive.Load(),
		"totalSessions":   s.sessionsTotal.Load(),
		"framesProcessed": s.framesProcessed.Load(),
		"framesSkipped":   s.framesSkipped.Load(),
		"repsCompleted":   s.repsCompleted.Load(),
	}

	if s.started {
		stats["queueLength"] = s.jobQueue.Len(context.Background())
		stats["workerCount"] = s.workerPool.Size()
		stats["inferences"] = s.workerPool.Processed()
	}

	return stats
}
