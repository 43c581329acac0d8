// internal/t564/commands.go
package t564

// Wire framing for the T564 serial command interface. Commands in a batch
// are joined with the delimiter, the frame ends with a trailing delimiter
// plus a carriage return, and every reply batch ends with the end marker.
const (
	delimiter     = ";"
	terminator    = "\r"
	endMarker     = "\r\n"
	errorSentinel = "??"
)

// Device register limits, from the T564 manual.
const (
	// FrameForever is the FC register sentinel for looping until FRAME OFF.
	FrameForever = 65535

	// FrameMaxLoops is the largest FC value short of the forever sentinel.
	FrameMaxLoops = 65534

	// FrameMaxNum is the number of frame slots; valid indices are
	// [0, FrameMaxNum).
	FrameMaxNum = 8191

	// TrainMaxPulses is the largest pulse count per trigger in train mode.
	TrainMaxPulses = uint64(1) << 32

	// TickNS is the train-spacing register granularity.
	TickNS = 20

	// TrainMaxSpacingNS is the largest inter-pulse spacing, 10 s.
	TrainMaxSpacingNS = 10_000_000_000

	// trainGuardNS is the mandatory margin on top of the channel window
	// when computing the minimum train spacing.
	trainGuardNS = 80

	// trainMinDelayNS is the delay threshold below which a channel is
	// excluded from the repeated train (and from the spacing window).
	trainMinDelayNS = 20

	// MaxFrequencyHz is the synthesizer ceiling, 16 MHz (62.5 ns period).
	MaxFrequencyHz = 16e6
)

// Frame-engine query replies that mean the sequencer is not running.
const (
	frameStateStopped  = "OFF"
	frameStateFinished = "DONE"
)
