package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/okian/liftsense/internal/config"
	"github.com/okian/liftsense/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func TestStreamOptions(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New()
		classifier, err := cfg.Classifier()
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then every stream setting is mapped to an option", func() {
			convey.So(streamOptions(cfg, classifier), convey.ShouldHaveLength, 4)
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a config listening on an ephemeral port", t, func() {
		cfg := config.New()
		cfg.Addr = "127.0.0.1:0"
		cfg.WorkerCount = 2
		cfg.ShutdownTimeoutMS = 1000

		convey.Convey("When the root context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- run(ctx, cfg) }()
			time.Sleep(50 * time.Millisecond)
			cancel()

			convey.Convey("Then run shuts down cleanly", func() {
				select {
				case err := <-done:
					convey.So(err, convey.ShouldBeNil)
				case <-time.After(3 * time.Second):
					convey.So("run did not return", convey.ShouldBeEmpty)
				}
			})
		})

		convey.Convey("When the tracking mode is invalid", func() {
			cfg.DefaultTrackingMode = "sideways"
			err := run(context.Background(), cfg)

			convey.Convey("Then run fails before serving", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func TestSystemMetricsUpdater(t *testing.T) {
	convey.Convey("Given the system metrics updater", t, func() {
		convey.Convey("Then a single update does not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})

		convey.Convey("Then the loop returns once the context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
		})
	})
}
