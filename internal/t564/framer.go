// internal/t564/framer.go
package t564

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

// Execer submits a batch of commands as one wire frame and returns the
// matching batch of replies. Both the channel mirrors and the frame
// sequencer talk to the device through this interface.
type Execer interface {
	Execute(commands ...string) ([]string, error)
}

// Framer turns command batches into T564 wire frames over a raw byte
// stream. Reads block until the device has answered: the channel is
// strictly synchronous and carries no timeout of its own. A caller that
// abandons a round trip mid-read leaves the stream desynchronized.
type Framer struct {
	rw     io.ReadWriter
	logger *zap.Logger
}

// NewFramer wraps an open byte stream to the device.
func NewFramer(rw io.ReadWriter, logger *zap.Logger) *Framer {
	return &Framer{
		rw:     rw,
		logger: logger.With(zap.String("component", "framer")),
	}
}

var _ Execer = (*Framer)(nil)

// Execute sends commands as a single frame and reads exactly one
// delimiter-terminated reply per command, then drains the two-byte end
// marker. Reply semantics, including the error sentinel, are not
// interpreted here.
func (f *Framer) Execute(commands ...string) ([]string, error) {
	if len(commands) == 0 {
		return nil, ErrNoCommands
	}
	for _, cmd := range commands {
		if strings.Contains(cmd, delimiter) {
			return nil, &TransportError{
				Op: fmt.Sprintf("command %q contains the frame delimiter", cmd),
			}
		}
	}

	frame := strings.Join(commands, delimiter) + delimiter + terminator
	f.logger.Debug("Writing frame",
		zap.Int("commands", len(commands)),
		zap.String("frame", frame),
	)

	if n, err := io.WriteString(f.rw, frame); err != nil {
		return nil, &TransportError{Op: "write frame", Err: err}
	} else if n != len(frame) {
		return nil, &TransportError{
			Op: fmt.Sprintf("short write: %d of %d bytes", n, len(frame)),
		}
	}

	responses := make([]string, 0, len(commands))
	var resp strings.Builder
	for len(responses) < len(commands) {
		b, err := f.readByte()
		if err != nil {
			return nil, &TransportError{Op: "read reply", Err: err}
		}
		if b == delimiter[0] {
			responses = append(responses, resp.String())
			resp.Reset()
			continue
		}
		resp.WriteByte(b)
	}

	// The reply batch ends with a fixed two-byte marker. It must be
	// consumed here or it corrupts parsing of the next transmission.
	for i := 0; i < len(endMarker); i++ {
		b, err := f.readByte()
		if err != nil {
			return nil, &TransportError{Op: "read end marker", Err: err}
		}
		if b != endMarker[i] {
			return nil, &TransportError{
				Op: fmt.Sprintf("reply framing desynchronized: expected end marker byte %#02x, got %#02x", endMarker[i], b),
			}
		}
	}

	f.logger.Debug("Frame round trip complete", zap.Strings("responses", responses))
	return responses, nil
}

// readByte blocks until one byte is available. io.Reader may legally
// return (0, nil), so loop until a byte or an error arrives.
func (f *Framer) readByte() (byte, error) {
	var buf [1]byte
	for {
		n, err := f.rw.Read(buf[:])
		if n == 1 {
			return buf[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}
