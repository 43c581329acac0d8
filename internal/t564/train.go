// internal/t564/train.go
package t564

import "math"

// Train timing is pure computation over the live channel mirrors; no
// device I/O happens here.

// trainIncluded reports whether a channel takes part in the repeated
// train. Channels with a delay under 20 ns are deliberately excluded:
// that is the supported way to opt a single channel out of the train
// while the others keep repeating.
func trainIncluded(s Settings) bool {
	return s.Enabled && s.DelayNS >= trainMinDelayNS
}

// MinTrainSpacingNS returns the smallest legal inter-pulse spacing for
// the given channel settings: the span from the earliest rising edge to
// the latest falling edge over the included channels, plus an 80 ns
// guard. With no eligible channel there is no window to measure and a
// PreconditionError is returned.
func MinTrainSpacingNS(channels []Settings) (float64, error) {
	first := true
	var windowStart, windowEnd float64
	for _, ch := range channels {
		if !trainIncluded(ch) {
			continue
		}
		rise := ch.DelayNS
		fall := ch.DelayNS + ch.WidthNS
		if first {
			windowStart, windowEnd = rise, fall
			first = false
			continue
		}
		windowStart = math.Min(windowStart, rise)
		windowEnd = math.Max(windowEnd, fall)
	}
	if first {
		return 0, &PreconditionError{
			Reason: "no channel is eligible for the pulse train (enabled with delay >= 20 ns)",
		}
	}
	return windowEnd - windowStart + trainGuardNS, nil
}

// EffectiveTrainSpacing floors the requested spacing at the computed
// minimum, clamps it to the 10 s ceiling and quantizes it to 20 ns
// device ticks. Quantization rounds to the nearest tick, matching the
// instrument's documented behavior. The returned nanosecond value is
// the quantized one the device will actually use.
func EffectiveTrainSpacing(requestedNS float64, channels []Settings) (ns float64, ticks uint64, err error) {
	minSpacing, err := MinTrainSpacingNS(channels)
	if err != nil {
		return 0, 0, err
	}

	effective := math.Max(requestedNS, minSpacing)
	if effective > TrainMaxSpacingNS {
		effective = TrainMaxSpacingNS
	}

	ticks = uint64(math.Round(effective / TickNS))
	return float64(ticks) * TickNS, ticks, nil
}

// TrainCountRegister validates a requested pulse count and returns the
// TC register value, which is one less than the count.
func TrainCountRegister(count uint64) (uint64, error) {
	if count < 1 || count > TrainMaxPulses {
		return 0, &RangeError{What: "train pulse count", Value: count, Min: 1, Max: TrainMaxPulses}
	}
	return count - 1, nil
}
