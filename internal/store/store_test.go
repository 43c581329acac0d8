// internal/store/store_test.go
package store

import (
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/wecassidy/T564/internal/t564"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "mirror.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFrameMirror(t *testing.T) {
	Convey("Frame snapshots survive a round trip", t, func() {
		s := openTestStore(t)

		snap := t564.FrameSnapshot{
			t564.ChannelA: {
				Channel:  t564.ChannelA,
				Polarity: t564.PolarityHigh,
				Enabled:  true,
				DelayNS:  100,
				WidthNS:  200,
			},
			t564.ChannelB: {
				Channel:  t564.ChannelB,
				Polarity: t564.PolarityLow,
			},
		}
		So(s.PutFrame(0, snap), ShouldBeNil)
		So(s.PutFrame(3, snap), ShouldBeNil)

		frames, err := s.Frames()
		So(err, ShouldBeNil)
		So(frames, ShouldHaveLength, 2)
		So(frames[0][t564.ChannelA].WidthNS, ShouldEqual, 200)
		So(frames[3][t564.ChannelB].Polarity, ShouldEqual, t564.PolarityLow)

		Convey("overwriting an index replaces the snapshot", func() {
			edited := t564.FrameSnapshot{
				t564.ChannelA: {Channel: t564.ChannelA, WidthNS: 300},
			}
			So(s.PutFrame(0, edited), ShouldBeNil)
			frames, err := s.Frames()
			So(err, ShouldBeNil)
			So(frames[0][t564.ChannelA].WidthNS, ShouldEqual, 300)
		})

		Convey("dropping frames empties the bucket", func() {
			So(s.DropFrames(), ShouldBeNil)
			frames, err := s.Frames()
			So(err, ShouldBeNil)
			So(frames, ShouldBeEmpty)

			Convey("and the bucket is usable again afterwards", func() {
				So(s.PutFrame(1, snap), ShouldBeNil)
				frames, err := s.Frames()
				So(err, ShouldBeNil)
				So(frames, ShouldHaveLength, 1)
			})
		})
	})
}

func TestChannelMirror(t *testing.T) {
	Convey("Channel settings persist keyed by channel", t, func() {
		s := openTestStore(t)

		So(s.PutChannel(t564.Settings{
			Channel: t564.ChannelC,
			Enabled: true,
			DelayNS: 40,
		}), ShouldBeNil)
		So(s.PutChannel(t564.Settings{
			Channel:  t564.ChannelC,
			Enabled:  false,
			DelayNS:  60,
			Polarity: t564.PolarityLow,
		}), ShouldBeNil)

		channels, err := s.Channels()
		So(err, ShouldBeNil)
		So(channels, ShouldHaveLength, 1)
		So(channels[t564.ChannelC].DelayNS, ShouldEqual, 60)
		So(channels[t564.ChannelC].Enabled, ShouldBeFalse)
	})

	Convey("A fresh store reports empty mirrors", t, func() {
		s := openTestStore(t)
		frames, err := s.Frames()
		So(err, ShouldBeNil)
		So(frames, ShouldBeEmpty)
		channels, err := s.Channels()
		So(err, ShouldBeNil)
		So(channels, ShouldBeEmpty)
	})
}
