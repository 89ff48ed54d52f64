package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/okian/liftsense/internal/adapters/detector"
	"github.com/okian/liftsense/internal/adapters/http/api"
	"github.com/okian/liftsense/internal/adapters/http/swagger"
	service "github.com/okian/liftsense/internal/app"
	"github.com/okian/liftsense/internal/config"
	"github.com/okian/liftsense/internal/domain/kinematics"
	"github.com/okian/liftsense/internal/domain/pose"
	"github.com/okian/liftsense/internal/domain/repstate"
	"github.com/okian/liftsense/internal/domain/session"
	"github.com/okian/liftsense/pkg/logger"
	"github.com/okian/liftsense/pkg/metrics"
)

// HTTP server timeout constants. Read and write timeouts stay unset because
// analysis streams are long-lived.
const (
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.InitWithOptions(logger.Options{
		Level:     cfg.LogLevel,
		File:      cfg.LogFile,
		MaxSizeMB: cfg.LogMaxSizeMB,
		ToStdout:  cfg.LogToStdout,
		JSON:      cfg.LogJSON,
	}); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			os.Stderr.WriteString("failed to close log file: " + err.Error() + "\n")
		}
	}()

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "liftsense stopped with error", logger.Error(err))
		stop()
		_ = logger.Sync()
		os.Exit(1) //nolint:gocritic // exitAfterDefer: log file synced above
	}
}

// run starts the inference service and HTTP server and blocks until ctx ends.
func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	classifier, err := cfg.Classifier()
	if err != nil {
		return err
	}

	svc := service.New(
		service.WithLogger(log.Named("service")),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDetector(detector.NewHTTPDetector(cfg.DetectorURL, detector.WithTimeout(cfg.DetectorTimeout()))),
	)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	mux := http.NewServeMux()
	swagger.Register(mux)
	api.NewServer(svc, svc, streamOptions(cfg, classifier)...).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("detector", cfg.DetectorURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		startSystemMetricsUpdater(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(ctx, "shutting down server...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, "server shutdown failed", logger.Error(err))
			return err
		}
		return nil
	})

	err = g.Wait()
	log.Info(ctx, "server stopped")
	return err
}

// streamOptions maps configuration onto the per-connection session pipeline.
func streamOptions(cfg *config.Config, classifier *pose.Classifier) []api.StreamOption {
	return []api.StreamOption{
		api.WithConfidenceThreshold(cfg.ConfidenceThreshold),
		api.WithReadLimit(cfg.MaxMessageBytes),
		api.WithOriginPatterns(cfg.AllowedOrigins...),
		api.WithSessionOptions(
			session.WithEstimator(kinematics.NewEstimator(
				kinematics.WithWindow(cfg.SmoothingWindow),
				kinematics.WithNormalization(cfg.VelocityNormalization),
			)),
			session.WithMachine(repstate.NewMachine(cfg.PhaseThreshold)),
			session.WithClassifier(classifier),
			session.WithSearchingAfter(cfg.SearchingAfterFrames),
		),
	}
}

// startSystemMetricsUpdater updates system metrics until ctx ends.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
