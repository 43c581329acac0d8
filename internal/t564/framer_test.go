// internal/t564/framer_test.go
package t564

import (
	"bytes"
	"errors"
	"io"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap"
)

// scriptRW replays a canned byte stream regardless of what is written,
// for exercising the framer's read path precisely.
type scriptRW struct {
	written bytes.Buffer
	replies bytes.Buffer
}

func newScriptRW(replies string) *scriptRW {
	rw := &scriptRW{}
	rw.replies.WriteString(replies)
	return rw
}

func (s *scriptRW) Write(p []byte) (int, error) { return s.written.Write(p) }

func (s *scriptRW) Read(p []byte) (int, error) {
	if s.replies.Len() == 0 {
		return 0, io.EOF
	}
	b, _ := s.replies.ReadByte()
	p[0] = b
	return 1, nil
}

func TestFramerExecute(t *testing.T) {
	logger := zap.NewNop()

	Convey("A batch of K commands yields K stripped reply bodies", t, func() {
		rw := newScriptRW("415238;OK;\r\n")
		f := NewFramer(rw, logger)

		replies, err := f.Execute("USEC", "FIRE")
		So(err, ShouldBeNil)
		So(replies, ShouldResemble, []string{"415238", "OK"})

		Convey("and the outbound frame is delimiter-joined and terminated", func() {
			So(rw.written.String(), ShouldEqual, "USEC;FIRE;\r")
		})
	})

	Convey("A single command round-trips", t, func() {
		rw := newScriptRW("OFF;\r\n")
		f := NewFramer(rw, logger)

		replies, err := f.Execute("FR")
		So(err, ShouldBeNil)
		So(replies, ShouldResemble, []string{"OFF"})
	})

	Convey("An empty batch is rejected before transmission", t, func() {
		rw := newScriptRW("")
		f := NewFramer(rw, logger)

		_, err := f.Execute()
		So(err, ShouldEqual, ErrNoCommands)
		So(rw.written.Len(), ShouldEqual, 0)
	})

	Convey("A command embedding the delimiter is rejected before transmission", t, func() {
		rw := newScriptRW("")
		f := NewFramer(rw, logger)

		_, err := f.Execute("FA 1;FB 2")
		var terr *TransportError
		So(errors.As(err, &terr), ShouldBeTrue)
		So(rw.written.Len(), ShouldEqual, 0)
	})

	Convey("A reply missing its end marker surfaces a transport error instead of hanging", t, func() {
		rw := newScriptRW("OK;") // stream ends before \r\n
		f := NewFramer(rw, logger)

		_, err := f.Execute("SA")
		var terr *TransportError
		So(errors.As(err, &terr), ShouldBeTrue)
	})

	Convey("Stray bytes in place of the end marker are flagged as desynchronization", t, func() {
		rw := newScriptRW("OK;XY")
		f := NewFramer(rw, logger)

		_, err := f.Execute("SA")
		var terr *TransportError
		So(errors.As(err, &terr), ShouldBeTrue)
		So(err.Error(), ShouldContainSubstring, "desynchronized")
	})

	Convey("The end marker is drained so back-to-back frames stay aligned", t, func() {
		rw := newScriptRW("1;\r\n2;\r\n")
		f := NewFramer(rw, logger)

		first, err := f.Execute("FA")
		So(err, ShouldBeNil)
		So(first, ShouldResemble, []string{"1"})

		second, err := f.Execute("FB")
		So(err, ShouldBeNil)
		So(second, ShouldResemble, []string{"2"})
	})

	Convey("The scripted device double enforces its read budget", t, func() {
		sim := newDeviceSim()
		sim.dropEndMarker = true
		sim.readBudget = 64
		f := NewFramer(sim, logger)

		_, err := f.Execute("SA")
		So(err, ShouldNotBeNil)
	})

	Convey("The device double answers like the instrument", t, func() {
		sim := newDeviceSim()
		f := NewFramer(sim, logger)

		replies, err := f.Execute("FA", "FC", "AS")
		So(err, ShouldBeNil)
		So(replies[0], ShouldEqual, "0")
		So(replies[1], ShouldEqual, "65535")
		So(replies[2], ShouldStartWith, "Ch A")
	})
}
