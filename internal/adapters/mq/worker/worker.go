// Package worker runs pose inference for queued frames on a fixed pool of goroutines.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/liftsense/internal/adapters/mq/queue"
	"github.com/okian/liftsense/internal/domain/model"
	"github.com/okian/liftsense/internal/domain/pose"
	"github.com/okian/liftsense/pkg/logger"
	"github.com/okian/liftsense/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU(); detector calls are I/O bound
	metricsUpdateInterval   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Job abstracts what workers read off the queue.
type Job = queue.Job

// Detector runs pose estimation on one encoded image.
type Detector interface {
	Detect(ctx context.Context, image []byte) (pose.Detection, error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes jobs and replies with detections.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for queued inference jobs.
type InMemoryWorker struct {
	queue    Queue
	detector Detector
	name     string

	processed *atomic.Int64

	started      atomic.Bool
	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, detector Detector, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     queue,
		detector:  detector,
		name:      "worker",
		processed: &atomic.Int64{},
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	w.started.Store(true)
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if a, ok := w.queue.(interface{ Ack() }); ok {
				a.Ack()
			}
			if err := w.processJob(ctx, job); err != nil {
				w.logger.Debug(ctx, "inference job failed",
					logger.String("job_id", job.ID),
					logger.String("session_id", job.SessionID),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
	if !w.started.Load() {
		return nil
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processJob runs the detector for a single job and delivers the result.
func (w *InMemoryWorker) processJob(ctx context.Context, job Job) error { //nolint:gocritic // hugeParam: Job must be passed by value for channel semantics
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(job.Submitted).Milliseconds()))
	}()

	if job.Abandoned() {
		metrics.RecordInferenceAbandoned()
		return fmt.Errorf("job %s: %w", job.ID, ErrAbandoned)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if job.Cancelled != nil {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-job.Cancelled:
				cancel()
			case <-stop:
			}
		}()
	}

	start := time.Now()
	detection, err := w.detect(jobCtx, job)
	latency := time.Since(start)
	metrics.RecordInferenceLatency(float64(latency.Milliseconds()))
	w.processed.Add(1)

	if err != nil {
		metrics.RecordInferenceError()
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "detect_error")
		err = fmt.Errorf("detect job %s: %w", job.ID, err)
		job.Deliver(model.Result{JobID: job.ID, Err: err, Latency: latency})
		return err
	}

	job.Deliver(model.Result{JobID: job.ID, Detection: detection, Latency: latency})
	return nil
}

// detect calls the detector, turning a panic into an error for this job only.
func (w *InMemoryWorker) detect(ctx context.Context, job Job) (detection pose.Detection, err error) { //nolint:gocritic // hugeParam
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordErrorByComponent("worker", "detect_panic")
			w.logger.Error(ctx, "detector panicked",
				logger.String("job_id", job.ID),
				logger.String("session_id", job.SessionID),
				logger.Any("panic", r),
			)
			err = fmt.Errorf("%w: %v", ErrDetectPanic, r)
		}
	}()
	return w.detector.Detect(ctx, job.Image)
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	shutdown     chan struct{}
	shutdownOnce sync.Once

	processed         atomic.Int64
	lastProcessed     int64
	lastProcessedTime time.Time

	logger logger.Logger
}

// NewPool creates a new worker pool. A non-positive count sizes the pool from the CPU count.
func NewPool(workerCount int, queue Queue, detector Detector, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers:           make([]*InMemoryWorker, workerCount),
		queue:             queue,
		shutdown:          make(chan struct{}),
		lastProcessedTime: time.Now(),
		logger:            logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		workerOpts := append([]Option{
			WithName("worker-" + strconv.Itoa(i)),
			withCounter(&pool.processed),
		}, opts...)
		pool.workers[i] = NewInMemoryWorker(queue, detector, workerOpts...)
	}

	metrics.UpdateWorkerActiveCount(workerCount)
	metrics.UpdateWorkerMessagesPerSecond(0.0)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Processed returns the number of detector calls made by the pool.
func (p *Pool) Processed() int64 {
	return p.processed.Load()
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}

	go p.startMetricsUpdater(ctx)
}

// startMetricsUpdater periodically publishes the pool throughput.
func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics(time.Now())
		}
	}
}

func (p *Pool) updateMetrics(now time.Time) {
	current := p.processed.Load()
	elapsed := now.Sub(p.lastProcessedTime).Seconds()
	if elapsed > 0 {
		metrics.UpdateWorkerMessagesPerSecond(float64(current-p.lastProcessed) / elapsed)
	}
	p.lastProcessed = current
	p.lastProcessedTime = now
}

// Shutdown closes the queue and waits for all workers to finish.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	p.shutdownOnce.Do(func() { close(p.shutdown) })

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			timedOut++
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerActiveCount(0)

	if n := p.drain(ctx); n > 0 {
		p.logger.Info(ctx, "answered queued jobs left at shutdown", logger.Int("jobs", n))
	}

	if timedOut > 0 {
		return fmt.Errorf("%d workers did not stop: %w", timedOut, ErrShutdownTimeout)
	}
	return nil
}

// drain answers jobs still waiting in the queue so their submitters stop waiting.
func (p *Pool) drain(ctx context.Context) int {
	jobs := p.queue.Dequeue(ctx)
	n := 0
	for {
		select {
		case job, ok := <-jobs:
			if !ok {
				return n
			}
			job.Deliver(model.Result{JobID: job.ID, Err: ErrStopped})
			n++
		default:
			return n
		}
	}
}
