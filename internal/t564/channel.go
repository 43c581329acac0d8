// internal/t564/channel.go
package t564

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wecassidy/T564/pkg/units"
)

// ChannelID names one of the four output channels, or the write-only
// broadcast target addressing all of them at once.
type ChannelID string

const (
	ChannelA ChannelID = "A"
	ChannelB ChannelID = "B"
	ChannelC ChannelID = "C"
	ChannelD ChannelID = "D"

	// ChannelAll is the broadcast pseudo-channel. It accepts writes only.
	ChannelAll ChannelID = "Q"
)

// NormalizeChannel maps the accepted channel spellings (a/A, 0..3, q/Q)
// onto canonical IDs.
func NormalizeChannel(v string) (ChannelID, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "A", "0":
		return ChannelA, nil
	case "B", "1":
		return ChannelB, nil
	case "C", "2":
		return ChannelC, nil
	case "D", "3":
		return ChannelD, nil
	case "Q":
		return ChannelAll, nil
	}
	return "", fmt.Errorf("%q is not a valid channel", v)
}

// Polarity is the active edge sense of a channel output.
type Polarity string

const (
	PolarityHigh Polarity = "high"
	PolarityLow  Polarity = "low"
)

// Settings is the cached mirror of one channel's device registers.
// Pending is true from the first optimistic write until the next Query
// confirms the mirror against device truth; the device applies no
// read-after-write, so a rejected out-of-range write leaves the mirror
// wrong until then.
type Settings struct {
	Channel  ChannelID `json:"channel"`
	Polarity Polarity  `json:"polarity"`
	Enabled  bool      `json:"enabled"`
	DelayNS  float64   `json:"delay_ns"`
	WidthNS  float64   `json:"width_ns"`
	Pending  bool      `json:"pending"`
}

// Channel mirrors one physical channel's timing, polarity and enable
// state, and owns the command formats that mutate it.
type Channel struct {
	id     ChannelID
	exec   Execer
	logger *zap.Logger
	mirror Settings
}

// NewChannel builds an unsynchronized mirror. Call Query to seed it from
// the device before trusting Settings.
func NewChannel(id ChannelID, exec Execer, logger *zap.Logger) *Channel {
	return &Channel{
		id:   id,
		exec: exec,
		logger: logger.With(
			zap.String("component", "channel"),
			zap.String("channel", string(id)),
		),
		mirror: Settings{Channel: id, Polarity: PolarityHigh, Pending: true},
	}
}

// ID returns the channel name.
func (c *Channel) ID() ChannelID { return c.id }

// Settings returns a copy of the cached mirror.
func (c *Channel) Settings() Settings { return c.mirror }

// Query reads the channel status from the device, replaces the mirror
// with device truth and clears the pending flag.
func (c *Channel) Query() (Settings, error) {
	if c.id == ChannelAll {
		return Settings{}, ErrBroadcastQuery
	}

	command := fmt.Sprintf("%sS", c.id)
	replies, err := c.exec.Execute(command)
	if err != nil {
		return Settings{}, err
	}
	parsed, err := parseStatusLine(c.id, command, replies[0])
	if err != nil {
		return Settings{}, err
	}

	c.mirror = parsed
	c.logger.Debug("Channel mirror synchronized",
		zap.Bool("enabled", parsed.Enabled),
		zap.Float64("delay_ns", parsed.DelayNS),
		zap.Float64("width_ns", parsed.WidthNS),
	)
	return parsed, nil
}

// SetEnabled switches the channel output on or off. The mirror is
// updated optimistically before the write goes out.
func (c *Channel) SetEnabled(on bool) error {
	arg := "OF"
	if on {
		arg = "ON"
	}
	c.mirror.Enabled = on
	c.mirror.Pending = true
	return c.transmit(fmt.Sprintf("%sS %s", c.id, arg))
}

// SetPolarity selects active-high or active-low output.
func (c *Channel) SetPolarity(p Polarity) error {
	var arg string
	switch p {
	case PolarityHigh:
		arg = "PO"
	case PolarityLow:
		arg = "NE"
	default:
		return fmt.Errorf("invalid polarity %q", p)
	}
	c.mirror.Polarity = p
	c.mirror.Pending = true
	return c.transmit(fmt.Sprintf("%sS %s", c.id, arg))
}

// SetDelay sets the time from trigger to the leading edge.
func (c *Channel) SetDelay(q units.Quantity) error {
	ns, err := q.In(units.Nanosecond)
	if err != nil {
		return err
	}
	if ns < 0 {
		return &RangeError{What: "delay", Value: q.String(), Min: "0 ns", Max: "-"}
	}
	c.mirror.DelayNS = ns
	c.mirror.Pending = true
	return c.transmit(fmt.Sprintf("%sD %f", c.id, ns))
}

// SetWidth sets the pulse duration.
func (c *Channel) SetWidth(q units.Quantity) error {
	ns, err := q.In(units.Nanosecond)
	if err != nil {
		return err
	}
	if ns < 0 {
		return &RangeError{What: "width", Value: q.String(), Min: "0 ns", Max: "-"}
	}
	c.mirror.WidthNS = ns
	c.mirror.Pending = true
	return c.transmit(fmt.Sprintf("%sW %f", c.id, ns))
}

func (c *Channel) transmit(command string) error {
	replies, err := c.exec.Execute(command)
	if err != nil {
		return err
	}
	if _, err := checkReply(command, replies[0]); err != nil {
		return err
	}
	return nil
}

// parseStatusLine decodes the fixed-shape channel status reply, e.g.
//
//	Ch A  POS  ON     Dly  00.000,000,000,000  Wid  00.000,002,000,000
//
// Verbose mode may insert comma grouping into the numbers; both time
// fields are device-reported seconds.
func parseStatusLine(id ChannelID, command, reply string) (Settings, error) {
	body, err := checkReply(command, reply)
	if err != nil {
		return Settings{}, err
	}

	fields := strings.Fields(body)
	if len(fields) < 8 {
		return Settings{}, &TransportError{
			Op: fmt.Sprintf("malformed status line %q for channel %s", reply, id),
		}
	}

	delaySec, err := strconv.ParseFloat(strings.ReplaceAll(fields[5], ",", ""), 64)
	if err != nil {
		return Settings{}, &TransportError{Op: "parse status delay", Err: err}
	}
	widthSec, err := strconv.ParseFloat(strings.ReplaceAll(fields[7], ",", ""), 64)
	if err != nil {
		return Settings{}, &TransportError{Op: "parse status width", Err: err}
	}

	polarity := PolarityLow
	if fields[2] == "POS" {
		polarity = PolarityHigh
	}

	return Settings{
		Channel:  id,
		Polarity: polarity,
		Enabled:  fields[3] == "ON",
		DelayNS:  delaySec * 1e9,
		WidthNS:  widthSec * 1e9,
		Pending:  false,
	}, nil
}
