package repstate_test

import (
	"testing"

	"github.com/okian/liftsense/internal/domain/repstate"
	. "github.com/smartystreets/goconvey/convey"
)

const threshold = 0.1

func TestMachine_Step(t *testing.T) {
	Convey("Given an idle lifter", t, func() {
		m := repstate.NewMachine(threshold)
		st := repstate.NewLifterState()

		Convey("When velocity stays in the holding band", func() {
			step := m.Step(&st, 0.05)

			Convey("Then the phase remains idle", func() {
				So(step.Phase, ShouldEqual, repstate.Idle)
				So(step.Reps, ShouldEqual, 0)
				So(step.Completed, ShouldBeFalse)
			})
		})

		Convey("When the lifter ascends for several frames and then holds", func() {
			ups := []float64{0.2, 0.5, 0.35, 0.15}
			for _, v := range ups {
				step := m.Step(&st, v)
				So(step.Phase, ShouldEqual, repstate.Ascending)
				So(step.Completed, ShouldBeFalse)
			}
			step := m.Step(&st, 0.0)

			Convey("Then exactly one rep is finalized with the peak of the run", func() {
				So(step.Phase, ShouldEqual, repstate.Top)
				So(step.Completed, ShouldBeTrue)
				So(step.Reps, ShouldEqual, 1)
				So(step.RepVelocity, ShouldEqual, 0.5)
				So(st.Peak, ShouldEqual, 0)
			})

			Convey("And holding again does not count another rep", func() {
				again := m.Step(&st, 0.0)
				So(again.Phase, ShouldEqual, repstate.Idle)
				So(again.Reps, ShouldEqual, 1)
				So(again.Completed, ShouldBeFalse)
			})
		})

		Convey("When the lifter ascends then immediately descends", func() {
			m.Step(&st, 0.4)
			step := m.Step(&st, -0.3)

			Convey("Then the rep is finalized on the down edge", func() {
				So(step.Phase, ShouldEqual, repstate.Descending)
				So(step.Completed, ShouldBeTrue)
				So(step.Reps, ShouldEqual, 1)
				So(step.RepVelocity, ShouldEqual, 0.4)
			})
		})

		Convey("When the lifter descends then holds", func() {
			m.Step(&st, -0.3)
			step := m.Step(&st, 0.0)

			Convey("Then the phase is bottom and no rep is counted", func() {
				So(step.Phase, ShouldEqual, repstate.Bottom)
				So(step.Reps, ShouldEqual, 0)
			})
		})

		Convey("When velocity sits exactly on the threshold", func() {
			m.Step(&st, 0.3)
			step := m.Step(&st, threshold)

			Convey("Then it is treated as holding", func() {
				So(step.Phase, ShouldEqual, repstate.Top)
				So(step.Completed, ShouldBeTrue)
			})

			Convey("And the negative edge is also holding", func() {
				m.Step(&st, -0.3)
				s2 := m.Step(&st, -threshold)
				So(s2.Phase, ShouldEqual, repstate.Bottom)
			})
		})

		Convey("When a rep is in progress", func() {
			m.Step(&st, 0.2)
			step := m.Step(&st, 0.3)

			Convey("Then the in-progress peak is reported", func() {
				So(step.Completed, ShouldBeFalse)
				So(step.RepVelocity, ShouldEqual, 0.3)
			})
		})
	})
}

func TestMachine_RepCountMonotonic(t *testing.T) {
	Convey("Given an arbitrary velocity sequence", t, func() {
		m := repstate.NewMachine(threshold)
		st := repstate.NewLifterState()
		seq := []float64{0, 0.3, -0.3, 0.3, 0, -0.2, 0.5, 0.5, -0.5, 0.11, 0.1, -0.1, 0.4, -0.4, 0}

		Convey("Then reps never decrease and grow by at most one per frame", func() {
			prev := 0
			for _, v := range seq {
				step := m.Step(&st, v)
				So(step.Reps, ShouldBeGreaterThanOrEqualTo, prev)
				So(step.Reps-prev, ShouldBeLessThanOrEqualTo, 1)
				prev = step.Reps
			}
			So(prev, ShouldEqual, 5)
		})
	})
}

func TestPhase_Feedback(t *testing.T) {
	Convey("Given each phase", t, func() {
		So(repstate.Descending.Feedback(), ShouldEqual, "Control Negative")
		So(repstate.Ascending.Feedback(), ShouldEqual, "EXPLODE UP!")
		So(repstate.Top.Feedback(), ShouldEqual, "Lockout")
		So(repstate.Bottom.Feedback(), ShouldEqual, "Drive!")
		So(repstate.Idle.Feedback(), ShouldEqual, "Ready")
	})

	Convey("Given a non-positive threshold", t, func() {
		So(repstate.NewMachine(0).Threshold(), ShouldEqual, repstate.DefaultThreshold)
	})
}
