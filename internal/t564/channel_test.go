// internal/t564/channel_test.go
package t564

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap"

	"github.com/wecassidy/T564/pkg/units"
)

func TestNormalizeChannel(t *testing.T) {
	Convey("Letters, digits and case variants normalize to canonical IDs", t, func() {
		cases := map[string]ChannelID{
			"A": ChannelA, "a": ChannelA, "0": ChannelA,
			"b": ChannelB, "1": ChannelB,
			"C": ChannelC, "2": ChannelC,
			"d": ChannelD, "3": ChannelD,
			"q": ChannelAll, "Q": ChannelAll,
		}
		for in, want := range cases {
			got, err := NormalizeChannel(in)
			So(err, ShouldBeNil)
			So(got, ShouldEqual, want)
		}
	})

	Convey("Anything else is rejected", t, func() {
		for _, in := range []string{"", "E", "4", "AB"} {
			_, err := NormalizeChannel(in)
			So(err, ShouldNotBeNil)
		}
	})
}

func TestParseStatusLine(t *testing.T) {
	Convey("A plain status line decodes polarity, enable and times", t, func() {
		line := "Ch A  POS  ON     Dly  00.000000500000  Wid  00.000002000000"
		s, err := parseStatusLine(ChannelA, "AS", line)
		So(err, ShouldBeNil)
		So(s.Polarity, ShouldEqual, PolarityHigh)
		So(s.Enabled, ShouldBeTrue)
		So(s.DelayNS, ShouldAlmostEqual, 500, 1e-6)
		So(s.WidthNS, ShouldAlmostEqual, 2000, 1e-6)
		So(s.Pending, ShouldBeFalse)
	})

	Convey("Verbose-mode comma grouping is stripped before parsing", t, func() {
		line := "Ch B  NEG  OFF    Dly  00.000,000,500,000  Wid  00.000,002,000,000"
		s, err := parseStatusLine(ChannelB, "BS", line)
		So(err, ShouldBeNil)
		So(s.Polarity, ShouldEqual, PolarityLow)
		So(s.Enabled, ShouldBeFalse)
		So(s.DelayNS, ShouldAlmostEqual, 500, 1e-6)
	})

	Convey("The error sentinel decodes to a DeviceError", t, func() {
		_, err := parseStatusLine(ChannelA, "AS", "??")
		var derr *DeviceError
		So(errors.As(err, &derr), ShouldBeTrue)
		So(derr.Command, ShouldEqual, "AS")
	})

	Convey("A truncated status line is a transport error", t, func() {
		_, err := parseStatusLine(ChannelA, "AS", "Ch A POS ON")
		var terr *TransportError
		So(errors.As(err, &terr), ShouldBeTrue)
	})
}

func TestChannelMirror(t *testing.T) {
	Convey("Query seeds the mirror from device truth", t, func() {
		sim := newDeviceSim()
		sim.statusCommas = true
		sim.channels["A"].enabled = true
		sim.channels["A"].delayNS = 500
		sim.channels["A"].widthNS = 2000

		ch := NewChannel(ChannelA, NewFramer(sim, zap.NewNop()), zap.NewNop())
		s, err := ch.Query()
		So(err, ShouldBeNil)
		So(s.Enabled, ShouldBeTrue)
		So(s.DelayNS, ShouldAlmostEqual, 500, 1e-6)
		So(s.WidthNS, ShouldAlmostEqual, 2000, 1e-6)
		So(ch.Settings().Pending, ShouldBeFalse)
	})

	Convey("Setters update the cache optimistically before transmitting", t, func() {
		sim := newDeviceSim()
		ch := NewChannel(ChannelA, NewFramer(sim, zap.NewNop()), zap.NewNop())

		So(ch.SetEnabled(true), ShouldBeNil)
		So(ch.Settings().Enabled, ShouldBeTrue)
		So(ch.Settings().Pending, ShouldBeTrue)
		So(sim.saw("AS ON"), ShouldBeTrue)

		So(ch.SetPolarity(PolarityLow), ShouldBeNil)
		So(sim.saw("AS NE"), ShouldBeTrue)

		So(ch.SetDelay(units.Microseconds(0.5)), ShouldBeNil)
		So(ch.Settings().DelayNS, ShouldAlmostEqual, 500, 1e-6)
		So(sim.channels["A"].delayNS, ShouldAlmostEqual, 500, 1e-6)

		So(ch.SetWidth(units.Nanoseconds(2000)), ShouldBeNil)
		So(sim.channels["A"].widthNS, ShouldAlmostEqual, 2000, 1e-6)

		Convey("and a follow-up query confirms the mirror", func() {
			s, err := ch.Query()
			So(err, ShouldBeNil)
			So(s.Pending, ShouldBeFalse)
			So(s.DelayNS, ShouldAlmostEqual, 500, 1e-6)
		})
	})

	Convey("Negative times are range errors raised before transmission", t, func() {
		sim := newDeviceSim()
		ch := NewChannel(ChannelA, NewFramer(sim, zap.NewNop()), zap.NewNop())
		sent := len(sim.commands)

		var rerr *RangeError
		So(errors.As(ch.SetDelay(units.Nanoseconds(-1)), &rerr), ShouldBeTrue)
		So(errors.As(ch.SetWidth(units.Nanoseconds(-1)), &rerr), ShouldBeTrue)
		So(len(sim.commands), ShouldEqual, sent)
	})

	Convey("Frequency quantities cannot masquerade as times", t, func() {
		sim := newDeviceSim()
		ch := NewChannel(ChannelA, NewFramer(sim, zap.NewNop()), zap.NewNop())
		So(ch.SetDelay(units.HertzQ(100)), ShouldNotBeNil)
	})

	Convey("The broadcast pseudo-channel is write-only", t, func() {
		sim := newDeviceSim()
		all := NewChannel(ChannelAll, NewFramer(sim, zap.NewNop()), zap.NewNop())

		_, err := all.Query()
		So(err, ShouldEqual, ErrBroadcastQuery)

		So(all.SetEnabled(true), ShouldBeNil)
		So(sim.channels["A"].enabled, ShouldBeTrue)
		So(sim.channels["D"].enabled, ShouldBeTrue)
	})
}
