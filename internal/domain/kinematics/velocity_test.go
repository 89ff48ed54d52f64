package kinematics_test

import (
	"testing"
	"time"

	"github.com/okian/liftsense/internal/domain/kinematics"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEstimator_Update(t *testing.T) {
	Convey("Given a fresh tracking state", t, func() {
		est := kinematics.NewEstimator()
		var st kinematics.TrackingState
		t0 := time.Unix(1_700_000_000, 0)

		Convey("When the first sample arrives", func() {
			_, ok := est.Update(&st, 500, t0)

			Convey("Then no velocity is emitted but the state is primed", func() {
				So(ok, ShouldBeFalse)
				So(st.Primed(), ShouldBeTrue)
				So(st.Velocities(), ShouldBeEmpty)
			})

			Convey("And the tracked point rises 200px in one second", func() {
				v, ok := est.Update(&st, 300, t0.Add(time.Second))

				Convey("Then velocity is positive and normalized", func() {
					So(ok, ShouldBeTrue)
					So(v, ShouldAlmostEqual, 200.0/500.0)
				})
			})

			Convey("And the tracked point falls", func() {
				v, ok := est.Update(&st, 600, t0.Add(time.Second))

				Convey("Then velocity is negative", func() {
					So(ok, ShouldBeTrue)
					So(v, ShouldBeLessThan, 0)
				})
			})

			Convey("And a second sample carries the same timestamp", func() {
				before := st.Clone()
				_, ok := est.Update(&st, 100, t0)

				Convey("Then nothing is emitted and state is unchanged", func() {
					So(ok, ShouldBeFalse)
					So(st, ShouldResemble, before)
				})
			})

			Convey("And a sample arrives with an earlier timestamp", func() {
				_, ok := est.Update(&st, 100, t0.Add(-time.Second))
				So(ok, ShouldBeFalse)
			})
		})
	})

	Convey("Given a custom normalization", t, func() {
		est := kinematics.NewEstimator(kinematics.WithNormalization(100))
		var st kinematics.TrackingState
		t0 := time.Unix(0, 0)
		est.Update(&st, 500, t0)
		v, ok := est.Update(&st, 400, t0.Add(time.Second))
		So(ok, ShouldBeTrue)
		So(v, ShouldAlmostEqual, 1.0)
	})
}

func TestEstimator_Smoothing(t *testing.T) {
	Convey("Given a window of three", t, func() {
		est := kinematics.NewEstimator(kinematics.WithWindow(3), kinematics.WithNormalization(1))
		var st kinematics.TrackingState
		t0 := time.Unix(0, 0)
		est.Update(&st, 0, t0)

		// Instantaneous velocities (sign inverted): 10, 20, 30, 40.
		ys := []float64{-10, -30, -60, -100}
		var last float64
		for i, y := range ys {
			v, ok := est.Update(&st, y, t0.Add(time.Duration(i+1)*time.Second))
			So(ok, ShouldBeTrue)
			last = v
		}

		Convey("Then only the newest three are averaged", func() {
			So(st.Velocities(), ShouldResemble, []float64{20, 30, 40})
			So(last, ShouldAlmostEqual, 30.0)
		})
	})

	Convey("Given out-of-range window sizes", t, func() {
		So(kinematics.NewEstimator(kinematics.WithWindow(1)).Window(), ShouldEqual, 3)
		So(kinematics.NewEstimator(kinematics.WithWindow(50)).Window(), ShouldEqual, 5)
		So(kinematics.NewEstimator(kinematics.WithWindow(0)).Window(), ShouldEqual, kinematics.DefaultWindow)
	})
}
