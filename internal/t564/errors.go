// internal/t564/errors.go
package t564

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors raised before anything is transmitted.
var (
	// ErrNoCommands indicates an Execute call with an empty batch. The
	// device always produces one reply per command, so an empty batch has
	// no well-defined reply framing.
	ErrNoCommands = errors.New("at least one command is required")

	// ErrBroadcastQuery indicates a status query on the broadcast
	// pseudo-channel, which is a write-only target.
	ErrBroadcastQuery = errors.New("broadcast channel cannot be queried")
)

// TransportError reports a failure of the wire channel itself: a short or
// failed read/write, or reply framing that no longer lines up with the
// request. After a TransportError the stream position is unknown and the
// connection must be reopened.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transport: %s", e.Op)
	}
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// deviceErrorMessages decodes the T564 error number bit field, one entry
// per bit. The last entry is the catch-all used when the device returned
// the error sentinel but no status bit is up (typically a bad command).
var deviceErrorMessages = [8]string{
	"VCXO trim value lost",
	"saved setup recall failed",
	"calibration table lost; default cals are used",
	"internal logic error",
	"VCXO failed to lock to external source",
	"powerup DPLL calibration error",
	"DPLL stability error",
	"other error (likely something wrong with the command)",
}

// DeviceError reports the error sentinel arriving in place of a normal
// reply. Bits holds the device error number when known; zero means no
// status bit was up and the catch-all explanation applies.
type DeviceError struct {
	Command string
	Raw     string
	Bits    uint8
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device rejected %q: %s", e.Command, strings.Join(e.Messages(), "; "))
}

// Messages returns the decoded explanation for every raised error bit.
func (e *DeviceError) Messages() []string {
	if e.Bits == 0 {
		return []string{deviceErrorMessages[len(deviceErrorMessages)-1]}
	}
	var msgs []string
	for bit, msg := range deviceErrorMessages {
		if e.Bits&(1<<bit) != 0 {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

// RangeError reports a value outside its documented device bounds. It is
// raised before transmission; neither the cache nor the device changes.
type RangeError struct {
	What  string
	Value any
	Min   any
	Max   any
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %v out of range [%v, %v]", e.What, e.Value, e.Min, e.Max)
}

// PreconditionError reports an operation whose inputs are individually
// valid but whose current state makes it meaningless, e.g. computing a
// train spacing with no eligible channel.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string { return e.Reason }

// checkReply converts the device error sentinel into a DeviceError and
// passes any other reply through untouched.
func checkReply(command, reply string) (string, error) {
	if strings.TrimSpace(reply) == errorSentinel {
		return "", &DeviceError{Command: command, Raw: reply}
	}
	return reply, nil
}
