// internal/t564/frames_test.go
package t564

import (
	"errors"
	"fmt"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap"
)

func newTestSequencer(sim *deviceSim) *Sequencer {
	snapshot := func() FrameSnapshot {
		return FrameSnapshot{
			ChannelA: {Channel: ChannelA, Enabled: true, DelayNS: 100, WidthNS: 200},
		}
	}
	return NewSequencer(NewFramer(sim, zap.NewNop()), snapshot, nil, zap.NewNop())
}

func TestSequencerRegisters(t *testing.T) {
	Convey("Seed mirrors the FA, FB and FC registers", t, func() {
		sim := newDeviceSim()
		sim.regs["FA"] = 2
		sim.regs["FB"] = 7
		sim.regs["FC"] = 4

		seq := newTestSequencer(sim)
		So(seq.Seed(), ShouldBeNil)
		So(seq.First(), ShouldEqual, 2)
		So(seq.Last(), ShouldEqual, 7)
		So(seq.LoopCount(), ShouldEqual, 5) // FC runs once plus FC repeats
	})

	Convey("Loop counts round-trip through the off-by-one FC encoding", t, func() {
		sim := newDeviceSim()
		seq := newTestSequencer(sim)
		So(seq.Seed(), ShouldBeNil)

		for _, n := range []int{0, 1, 2, 300, FrameMaxLoops + 1} {
			Convey(fmt.Sprintf("loop count %d", n), func() {
				So(seq.SetLoopCount(n), ShouldBeNil)
				So(seq.LoopCount(), ShouldEqual, n)

				expected := n - 1
				if n == 0 {
					expected = FrameForever
				}
				So(sim.regs["FC"], ShouldEqual, expected)

				Convey("and survives a reseed from the device", func() {
					So(seq.Seed(), ShouldBeNil)
					So(seq.LoopCount(), ShouldEqual, n)
				})
			})
		}
	})

	Convey("Out-of-range loop counts are rejected without transmission", t, func() {
		sim := newDeviceSim()
		seq := newTestSequencer(sim)
		So(seq.Seed(), ShouldBeNil)
		sent := len(sim.commands)

		for _, n := range []int{-1, FrameMaxLoops + 2} {
			err := seq.SetLoopCount(n)
			var rerr *RangeError
			So(errors.As(err, &rerr), ShouldBeTrue)
		}
		So(len(sim.commands), ShouldEqual, sent)
	})
}

func TestSequencerSave(t *testing.T) {
	Convey("Auto-indexed saves extend the loop one frame at a time", t, func() {
		sim := newDeviceSim()
		seq := newTestSequencer(sim)
		So(seq.Seed(), ShouldBeNil)

		first, err := seq.Save()
		So(err, ShouldBeNil)
		So(first, ShouldEqual, 0)

		second, err := seq.Save()
		So(err, ShouldBeNil)
		So(second, ShouldEqual, 1)

		So(seq.Count(), ShouldEqual, 2)
		So(seq.Last(), ShouldEqual, 1)
		So(sim.saw("FR 0"), ShouldBeTrue)
		So(sim.saw("FR 1"), ShouldBeTrue)
		So(sim.regs["FB"], ShouldEqual, 1)
	})

	Convey("Explicit saves edit a slot in place without touching the bounds", t, func() {
		sim := newDeviceSim()
		seq := newTestSequencer(sim)
		So(seq.Seed(), ShouldBeNil)

		_, err := seq.Save()
		So(err, ShouldBeNil)
		_, err = seq.Save()
		So(err, ShouldBeNil)
		lastBefore := seq.Last()

		So(seq.SaveAt(1), ShouldBeNil)
		So(seq.Count(), ShouldEqual, 2)
		So(seq.Last(), ShouldEqual, lastBefore)
	})

	Convey("Frame indices outside the device memory are range errors", t, func() {
		sim := newDeviceSim()
		seq := newTestSequencer(sim)
		So(seq.Seed(), ShouldBeNil)

		for _, index := range []int{-1, FrameMaxNum} {
			err := seq.SaveAt(index)
			var rerr *RangeError
			So(errors.As(err, &rerr), ShouldBeTrue)
		}
	})
}

func TestSequencerLastFrame(t *testing.T) {
	Convey("With a single frame, first == last is the legal degenerate loop", t, func() {
		sim := newDeviceSim()
		seq := newTestSequencer(sim)
		So(seq.Seed(), ShouldBeNil)

		_, err := seq.Save()
		So(err, ShouldBeNil)
		So(seq.SetLast(seq.First()), ShouldBeNil)
	})

	Convey("With two or more frames, last must come after first", t, func() {
		sim := newDeviceSim()
		seq := newTestSequencer(sim)
		So(seq.Seed(), ShouldBeNil)

		_, err := seq.Save()
		So(err, ShouldBeNil)
		_, err = seq.Save()
		So(err, ShouldBeNil)

		for _, f := range []int{seq.First(), seq.First() - 1} {
			err := seq.SetLast(f)
			var perr *PreconditionError
			So(errors.As(err, &perr), ShouldBeTrue)
		}
		So(seq.SetLast(5), ShouldBeNil)
		So(seq.Last(), ShouldEqual, 5)
	})
}

func TestSequencerPlayback(t *testing.T) {
	Convey("The loop classifier treats anything but the terminal tokens as running", t, func() {
		sim := newDeviceSim()
		seq := newTestSequencer(sim)
		So(seq.Seed(), ShouldBeNil)

		sim.frameEngine = []string{"GO 3", "GO 1", "DONE"}
		So(seq.Start(), ShouldBeNil)

		for _, expected := range []bool{true, true, false} {
			looping, err := seq.IsLooping()
			So(err, ShouldBeNil)
			So(looping, ShouldEqual, expected)
		}

		Convey("and an idle engine reports OFF", func() {
			looping, err := seq.IsLooping()
			So(err, ShouldBeNil)
			So(looping, ShouldBeFalse)
		})
	})

	Convey("Clear resets the device memory and re-reads the bounds", t, func() {
		sim := newDeviceSim()
		seq := newTestSequencer(sim)
		So(seq.Seed(), ShouldBeNil)

		_, err := seq.Save()
		So(err, ShouldBeNil)
		_, err = seq.Save()
		So(err, ShouldBeNil)

		So(seq.Clear(), ShouldBeNil)
		So(seq.Count(), ShouldEqual, 0)
		So(sim.saw("RZ"), ShouldBeTrue)
		So(seq.First(), ShouldEqual, 0)
		So(seq.Last(), ShouldEqual, 0)
	})
}
