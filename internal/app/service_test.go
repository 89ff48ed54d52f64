package service_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	workerpool "github.com/okian/liftsense/internal/adapters/mq/worker"
	service "github.com/okian/liftsense/internal/app"
	"github.com/okian/liftsense/internal/domain/pose"
	"github.com/okian/liftsense/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	goleak.VerifyTestMain(m)
}

type stubDetector struct {
	mu      sync.Mutex
	err     error
	release chan struct{}
}

func (d *stubDetector) Detect(ctx context.Context, image []byte) (pose.Detection, error) {
	if string(image) == "panic" {
		panic("inference blew up")
	}
	d.mu.Lock()
	release, err := d.release, d.err
	d.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return pose.Detection{}, ctx.Err()
		}
	}
	if err != nil {
		return pose.Detection{}, err
	}
	s := pose.JointSample{}
	s.LeftShoulder = pose.Joint{Y: float64(len(image)), Confidence: 1, Present: true}
	return pose.Detection{Width: 10, Height: 10, Subjects: []pose.JointSample{s}}, nil
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithWorkerCount(3),
			service.WithQueueSize(7),
			service.WithDetector(&stubDetector{}),
			service.WithLogger(logger.Named("test")),
		)

		Convey("Then stats reflect the configuration before start", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldBeFalse)
			So(stats["workerCount"], ShouldEqual, 3)
			So(stats["queueSize"], ShouldEqual, 7)
		})
	})

	Convey("Given a service without a detector", t, func() {
		svc := service.New()

		Convey("Then it refuses to start", func() {
			So(errors.Is(svc.Start(context.Background()), service.ErrNoDetector), ShouldBeTrue)
		})
	})
}

func TestService_Detect(t *testing.T) {
	Convey("Given a started service", t, func() {
		det := &stubDetector{}
		svc := service.New(service.WithWorkerCount(2), service.WithDetector(det))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When a frame is detected", func() {
			d, err := svc.Detect(ctx, "session-1", []byte("12345"))

			Convey("Then the detection comes back through the pool", func() {
				So(err, ShouldBeNil)
				primary, ok := d.Primary()
				So(ok, ShouldBeTrue)
				So(primary.LeftShoulder.Y, ShouldEqual, 5)
				So(svc.GetStats()["inferences"], ShouldEqual, int64(1))
			})
		})

		Convey("When the detector fails", func() {
			det.mu.Lock()
			det.err = errors.New("no model")
			det.mu.Unlock()
			_, err := svc.Detect(ctx, "session-1", []byte("x"))

			Convey("Then the error reaches the caller", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "no model")
			})
		})

		Convey("When the detector panics", func() {
			_, err := svc.Detect(ctx, "session-1", []byte("panic"))

			Convey("Then only that frame fails and the service keeps serving", func() {
				So(errors.Is(err, workerpool.ErrDetectPanic), ShouldBeTrue)

				d, err := svc.Detect(ctx, "session-2", []byte("123"))
				So(err, ShouldBeNil)
				So(d.Subjects, ShouldHaveLength, 1)
			})
		})

		Convey("When the caller gives up while waiting", func() {
			det.mu.Lock()
			det.release = make(chan struct{})
			det.mu.Unlock()
			callCtx, callCancel := context.WithTimeout(ctx, 30*time.Millisecond)
			defer callCancel()
			_, err := svc.Detect(callCtx, "session-1", []byte("x"))

			Convey("Then Detect returns the context error", func() {
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})
		})

		Convey("When sessions and frames are recorded", func() {
			svc.SessionOpened()
			svc.SessionOpened()
			svc.SessionClosed()
			svc.FrameProcessed(true)
			svc.FrameProcessed(false)
			svc.FrameSkipped()

			Convey("Then stats report them", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldBeTrue)
				So(stats["activeSessions"], ShouldEqual, int64(1))
				So(stats["totalSessions"], ShouldEqual, int64(2))
				So(stats["framesProcessed"], ShouldEqual, int64(2))
				So(stats["framesSkipped"], ShouldEqual, int64(1))
				So(stats["repsCompleted"], ShouldEqual, int64(1))
				So(stats["queueLength"], ShouldEqual, 0)
			})
		})
	})
}

func TestService_Backpressure(t *testing.T) {
	Convey("Given a service with one busy worker and a one-slot queue", t, func() {
		det := &stubDetector{release: make(chan struct{})}
		svc := service.New(
			service.WithWorkerCount(1),
			service.WithQueueSize(1),
			service.WithDetector(det),
		)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)

		// one job runs, one sits in the queue, the rest are rejected
		const callers = 5
		results := make(chan error, callers)
		for i := 0; i < callers; i++ {
			go func(i int) {
				_, err := svc.Detect(ctx, "s", []byte(fmt.Sprintf("frame-%d", i)))
				results <- err
			}(i)
		}

		Convey("When more frames arrive than the pipeline can hold", func() {
			first, second := <-results, <-results

			Convey("Then the overflow is rejected instead of queued", func() {
				So(errors.Is(first, service.ErrBackpressure), ShouldBeTrue)
				So(errors.Is(second, service.ErrBackpressure), ShouldBeTrue)
			})
		})

		close(det.release)
		for i := 0; i < callers-2; i++ {
			err := <-results
			So(err == nil || errors.Is(err, service.ErrBackpressure), ShouldBeTrue)
		}
		svc.Stop()
	})

	Convey("Given a stopped service", t, func() {
		svc := service.New(service.WithDetector(&stubDetector{}))

		Convey("Then Detect reports it is not started", func() {
			_, err := svc.Detect(context.Background(), "s", nil)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})
	})
}

// gateDetector blocks on the image "slow" until release closes.
type gateDetector struct {
	release chan struct{}
	slow    chan struct{}
}

func (d *gateDetector) Detect(ctx context.Context, image []byte) (pose.Detection, error) {
	if string(image) == "slow" {
		close(d.slow)
		select {
		case <-d.release:
		case <-ctx.Done():
			return pose.Detection{}, ctx.Err()
		}
	}
	return pose.Detection{Subjects: []pose.JointSample{{}}}, nil
}

func TestService_SlowInferenceDoesNotStallOtherSessions(t *testing.T) {
	Convey("Given two workers and one session stuck in a slow inference", t, func() {
		det := &gateDetector{release: make(chan struct{}), slow: make(chan struct{})}
		svc := service.New(service.WithWorkerCount(2), service.WithDetector(det))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)

		slowDone := make(chan error, 1)
		go func() {
			_, err := svc.Detect(ctx, "session-a", []byte("slow"))
			slowDone <- err
		}()
		<-det.slow

		Convey("When another session submits frames", func() {
			var errs []error
			for i := 0; i < 10; i++ {
				callCtx, callCancel := context.WithTimeout(ctx, time.Second)
				_, err := svc.Detect(callCtx, "session-b", []byte("fast"))
				callCancel()
				errs = append(errs, err)
			}

			Convey("Then every frame is answered by the idle worker", func() {
				for _, err := range errs {
					So(err, ShouldBeNil)
				}
			})
		})

		close(det.release)
		So(<-slowDone, ShouldBeNil)
		svc.Stop()
	})
}
