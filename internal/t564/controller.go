// internal/t564/controller.go
package t564

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wecassidy/T564/pkg/units"
)

// AutoinstallMode controls whether a channel edit applies immediately,
// is queued for a batch apply, or is ignored.
type AutoinstallMode string

const (
	AutoinstallOff     AutoinstallMode = "off"
	AutoinstallInstall AutoinstallMode = "install"
	AutoinstallQueue   AutoinstallMode = "queue"
)

func (m AutoinstallMode) register() (int, error) {
	switch m {
	case AutoinstallOff:
		return 0, nil
	case AutoinstallInstall:
		return 1, nil
	case AutoinstallQueue:
		return 2, nil
	}
	return 0, fmt.Errorf("autoinstall mode must be off, install or queue, not %q", m)
}

// MirrorStore persists the controller's observational mirrors: frame
// snapshots and last-known channel settings.
type MirrorStore interface {
	FrameStore
	PutChannel(s Settings) error
}

// DefaultStartupFrequencyHz is the synthesizer frequency programmed at
// connect time unless the caller chooses another.
const DefaultStartupFrequencyHz = 16e6

// Controller is the composition root for one T564: it owns the wire
// framer, the four channel mirrors, the frame sequencer, the train
// configuration and the scalar device settings.
//
// Every operation is one blocking round trip on a single synchronous
// connection. Controller methods serialize behind an internal mutex;
// callers reaching past it (Sequencer, Channel accessors) must provide
// their own serialization.
type Controller struct {
	mu     sync.Mutex
	framer Execer
	logger *zap.Logger
	store  MirrorStore // may be nil

	channels  map[ChannelID]*Channel
	broadcast *Channel
	seq       *Sequencer

	frequencyHz    float64
	autoinstall    AutoinstallMode
	trainCount     uint64
	trainSpacingTK uint64 // TS register mirror, in 20 ns ticks
}

// NewController connects to a T564 over an open byte stream: it turns
// off verbose echo, selects install mode so channel edits apply
// immediately, programs the startup frequency, disables all four
// channels, and seeds every local mirror from device truth with
// read-back queries. startupHz <= 0 selects the 16 MHz default.
func NewController(rw io.ReadWriter, store MirrorStore, startupHz float64, logger *zap.Logger) (*Controller, error) {
	if startupHz <= 0 {
		startupHz = DefaultStartupFrequencyHz
	}

	c := &Controller{
		framer:      NewFramer(rw, logger),
		logger:      logger.With(zap.String("component", "controller")),
		store:       store,
		channels:    make(map[ChannelID]*Channel, 4),
		autoinstall: AutoinstallInstall,
	}

	if _, err := c.executeChecked("VE 0"); err != nil {
		return nil, fmt.Errorf("disable verbose mode: %w", err)
	}
	if err := c.setAutoinstall(AutoinstallInstall); err != nil {
		return nil, fmt.Errorf("set autoinstall: %w", err)
	}
	if err := c.setFrequencyHz(startupHz); err != nil {
		return nil, fmt.Errorf("set startup frequency: %w", err)
	}

	for _, id := range []ChannelID{ChannelA, ChannelB, ChannelC, ChannelD} {
		ch := NewChannel(id, c.framer, logger)
		if _, err := ch.Query(); err != nil {
			return nil, fmt.Errorf("seed channel %s: %w", id, err)
		}
		if err := ch.SetEnabled(false); err != nil {
			return nil, fmt.Errorf("disable channel %s: %w", id, err)
		}
		c.channels[id] = ch
		c.persistChannel(ch.Settings())
	}
	c.broadcast = NewChannel(ChannelAll, c.framer, logger)

	var frameStore FrameStore
	if store != nil {
		frameStore = store
	}
	c.seq = NewSequencer(c.framer, c.liveSnapshot, frameStore, logger)
	if err := c.seq.Seed(); err != nil {
		return nil, fmt.Errorf("seed frame registers: %w", err)
	}

	if err := c.seedTrain(); err != nil {
		return nil, fmt.Errorf("seed train registers: %w", err)
	}

	c.logger.Info("Controller connected",
		zap.Float64("frequency_hz", c.frequencyHz),
		zap.Int("frame_first", c.seq.First()),
		zap.Int("frame_last", c.seq.Last()),
		zap.Uint64("train_count", c.trainCount),
	)
	return c, nil
}

// seedTrain reads the TC and TS registers into the local mirrors. Both
// registers are off-by-one or scaled encodings of the user-visible
// values.
func (c *Controller) seedTrain() error {
	replies, err := c.framer.Execute("TC", "TS")
	if err != nil {
		return err
	}
	tc, err := parseRegister("TC", replies[0])
	if err != nil {
		return err
	}
	ts, err := parseRegister("TS", replies[1])
	if err != nil {
		return err
	}
	c.trainCount = uint64(tc) + 1
	c.trainSpacingTK = uint64(ts)
	return nil
}

// Execute submits a raw command batch through the framer. It is the
// low-level escape hatch for commands the typed API does not cover.
func (c *Controller) Execute(commands ...string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.framer.Execute(commands...)
}

// executeChecked runs a batch and converts any error-sentinel reply into
// a DeviceError.
func (c *Controller) executeChecked(commands ...string) ([]string, error) {
	replies, err := c.framer.Execute(commands...)
	if err != nil {
		return nil, err
	}
	for i, reply := range replies {
		if _, err := checkReply(commands[i], reply); err != nil {
			return nil, err
		}
	}
	return replies, nil
}

// Channel returns the mirror for one physical channel, or the write-only
// broadcast target for ChannelAll.
func (c *Controller) Channel(id ChannelID) (*Channel, error) {
	if id == ChannelAll {
		return c.broadcast, nil
	}
	ch, ok := c.channels[id]
	if !ok {
		return nil, fmt.Errorf("%q is not a valid channel", id)
	}
	return ch, nil
}

// ChannelSettings returns the cached mirrors of the four physical
// channels in A..D order.
func (c *Controller) ChannelSettings() []Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelSettings()
}

func (c *Controller) channelSettings() []Settings {
	out := make([]Settings, 0, 4)
	for _, id := range []ChannelID{ChannelA, ChannelB, ChannelC, ChannelD} {
		out = append(out, c.channels[id].Settings())
	}
	return out
}

// liveSnapshot captures the current channel mirrors for a frame save.
func (c *Controller) liveSnapshot() FrameSnapshot {
	snap := make(FrameSnapshot, 4)
	for id, ch := range c.channels {
		snap[id] = ch.Settings()
	}
	return snap
}

// ChannelMirror returns the cached settings of one physical channel
// without touching the device.
func (c *Controller) ChannelMirror(id ChannelID) (Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.channels[id]
	if !ok {
		return Settings{}, fmt.Errorf("%q is not a valid channel", id)
	}
	return ch.Settings(), nil
}

// QueryChannel re-reads one channel from the device, replacing the
// optimistic mirror with device truth.
func (c *Controller) QueryChannel(id ChannelID) (Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, err := c.Channel(id)
	if err != nil {
		return Settings{}, err
	}
	settings, err := ch.Query()
	if err != nil {
		return Settings{}, err
	}
	c.persistChannel(settings)
	return settings, nil
}

// SetChannelEnabled switches a channel (or, for ChannelAll, every
// channel) on or off.
func (c *Controller) SetChannelEnabled(id ChannelID, on bool) error {
	return c.channelWrite(id,
		func(ch *Channel) error { return ch.SetEnabled(on) },
		func(s *Settings) { s.Enabled = on },
	)
}

// SetChannelPolarity selects the active edge sense.
func (c *Controller) SetChannelPolarity(id ChannelID, p Polarity) error {
	return c.channelWrite(id,
		func(ch *Channel) error { return ch.SetPolarity(p) },
		func(s *Settings) { s.Polarity = p },
	)
}

// SetChannelDelay sets the trigger-to-edge delay.
func (c *Controller) SetChannelDelay(id ChannelID, q units.Quantity) error {
	ns, err := q.In(units.Nanosecond)
	if err != nil {
		return err
	}
	return c.channelWrite(id,
		func(ch *Channel) error { return ch.SetDelay(q) },
		func(s *Settings) { s.DelayNS = ns },
	)
}

// SetChannelWidth sets the pulse duration.
func (c *Controller) SetChannelWidth(id ChannelID, q units.Quantity) error {
	ns, err := q.In(units.Nanosecond)
	if err != nil {
		return err
	}
	return c.channelWrite(id,
		func(ch *Channel) error { return ch.SetWidth(q) },
		func(s *Settings) { s.WidthNS = ns },
	)
}

// channelWrite routes a setter to one channel, or transmits it once on
// the broadcast target and applies the same optimistic mirror update to
// all four per-channel caches.
func (c *Controller) channelWrite(id ChannelID, op func(*Channel) error, mirror func(*Settings)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id == ChannelAll {
		if err := op(c.broadcast); err != nil {
			return err
		}
		for _, ch := range c.channels {
			mirror(&ch.mirror)
			ch.mirror.Pending = true
			c.persistChannel(ch.Settings())
		}
		return nil
	}

	ch, err := c.Channel(id)
	if err != nil {
		return err
	}
	if err := op(ch); err != nil {
		return err
	}
	c.persistChannel(ch.Settings())
	return nil
}

func (c *Controller) persistChannel(s Settings) {
	if c.store == nil {
		return
	}
	if err := c.store.PutChannel(s); err != nil {
		c.logger.Warn("Could not persist channel mirror",
			zap.String("channel", string(s.Channel)),
			zap.Error(err),
		)
	}
}

// Frequency returns the mirrored synthesizer frequency in hertz.
func (c *Controller) Frequency() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frequencyHz
}

// PeriodNS returns the timing-cycle period implied by the mirrored
// frequency, in nanoseconds.
func (c *Controller) PeriodNS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return 1e9 / c.frequencyHz
}

// SetFrequency programs the synthesizer and resynchronizes the trigger
// in the same frame. The ceiling is 16 MHz.
func (c *Controller) SetFrequency(q units.Quantity) error {
	hz, err := q.In(units.Hertz)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setFrequencyHz(hz)
}

// SetPeriod is the reciprocal view of SetFrequency. A period shorter
// than 62.5 ns would push the synthesizer over its 16 MHz ceiling.
func (c *Controller) SetPeriod(q units.Quantity) error {
	ns, err := q.In(units.Nanosecond)
	if err != nil {
		return err
	}
	if ns <= 0 {
		return &RangeError{What: "period", Value: q.String(), Min: "62.5 ns", Max: "-"}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setFrequencyHz(1e9 / ns)
}

func (c *Controller) setFrequencyHz(hz float64) error {
	if hz <= 0 || hz > MaxFrequencyHz {
		return &RangeError{What: "frequency", Value: hz, Min: "> 0 Hz", Max: "16 MHz"}
	}
	if _, err := c.executeChecked(fmt.Sprintf("SY %f", hz), "TR SY"); err != nil {
		return err
	}
	c.frequencyHz = hz
	return nil
}

// Autoinstall returns the mirrored autoinstall mode.
func (c *Controller) Autoinstall() AutoinstallMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoinstall
}

// SetAutoinstall selects how channel edits are applied.
func (c *Controller) SetAutoinstall(m AutoinstallMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setAutoinstall(m)
}

func (c *Controller) setAutoinstall(m AutoinstallMode) error {
	reg, err := m.register()
	if err != nil {
		return err
	}
	if _, err := c.executeChecked(fmt.Sprintf("AU %d", reg)); err != nil {
		return err
	}
	c.autoinstall = m
	return nil
}

// SetTriggerLevel sets the external trigger threshold in volts.
func (c *Controller) SetTriggerLevel(volts float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.executeChecked(fmt.Sprintf("TLEVEL %g", volts))
	return err
}

// ArmSoftwareTrigger switches the trigger source to remote (software)
// triggering.
func (c *Controller) ArmSoftwareTrigger() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.executeChecked("TR RE")
	return err
}

// FireTrigger fires one software trigger.
func (c *Controller) FireTrigger() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.executeChecked("FI")
	return err
}

// SaveSetup stores the active settings in device nonvolatile memory.
func (c *Controller) SaveSetup() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.executeChecked("SA")
	return err
}

// RecallSetup loads the settings saved in nonvolatile memory. The local
// mirrors are not refreshed automatically; query afterwards if they
// matter.
func (c *Controller) RecallSetup() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.executeChecked("RE")
	return err
}

// ClockStatus reports the reference clock state.
func (c *Controller) ClockStatus() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	replies, err := c.executeChecked("CL")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(replies[0]), nil
}

// ClockIn locks the synthesizer to an external reference on the CLOCK
// input.
func (c *Controller) ClockIn() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.executeChecked("CL IN")
	return err
}

// ClockOut outputs the internal 10 MHz reference on the CLOCK connector.
func (c *Controller) ClockOut() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.executeChecked("CL OU")
	return err
}

// Status returns the raw device status dump.
func (c *Controller) Status() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	replies, err := c.executeChecked("STATUS")
	if err != nil {
		return "", err
	}
	return replies[0], nil
}

// TrainCount returns the mirrored pulses-per-trigger count. A count of
// one means train mode is effectively off.
func (c *Controller) TrainCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trainCount
}

// SetTrainCount programs the number of pulses per trigger. The TC
// register holds count minus one.
func (c *Controller) SetTrainCount(count uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	reg, err := TrainCountRegister(count)
	if err != nil {
		return err
	}
	if _, err := c.executeChecked(fmt.Sprintf("TC %d", reg)); err != nil {
		return err
	}
	c.trainCount = count
	return nil
}

// TrainSpacingNS returns the mirrored inter-pulse spacing in
// nanoseconds.
func (c *Controller) TrainSpacingNS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return float64(c.trainSpacingTK) * TickNS
}

// SetTrainSpacing programs the inter-pulse spacing. The request is
// floored at the minimum legal spacing for the current channel windows,
// clamped to 10 s and quantized to 20 ns ticks; the quantized value
// actually in effect is returned.
func (c *Controller) SetTrainSpacing(q units.Quantity) (float64, error) {
	ns, err := q.In(units.Nanosecond)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	effective, ticks, err := EffectiveTrainSpacing(ns, c.channelSettings())
	if err != nil {
		return 0, err
	}
	if _, err := c.executeChecked(fmt.Sprintf("TS %d", ticks)); err != nil {
		return 0, err
	}
	c.trainSpacingTK = ticks
	return effective, nil
}

// Sequencer exposes the frame subsystem directly for single-threaded
// callers. The controller-level frame methods below serialize through
// the controller mutex.
func (c *Controller) Sequencer() *Sequencer { return c.seq }

// SaveFrame captures the live settings into the next sequential frame.
func (c *Controller) SaveFrame() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq.Save()
}

// SaveFrameAt overwrites an already-saved frame in place.
func (c *Controller) SaveFrameAt(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq.SaveAt(index)
}

// ClearFrames resets the device frame memory and the local mirror.
func (c *Controller) ClearFrames() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq.Clear()
}

// SetFrameLast moves the last-frame register.
func (c *Controller) SetFrameLast(f int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq.SetLast(f)
}

// SetLoopCount sets how many times playback runs through the frames;
// zero loops forever.
func (c *Controller) SetLoopCount(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq.SetLoopCount(n)
}

// StartFrames begins frame playback.
func (c *Controller) StartFrames() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq.Start()
}

// StopFrames halts frame playback.
func (c *Controller) StopFrames() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq.Stop()
}

// FramesLooping reports whether the frame engine is still running.
func (c *Controller) FramesLooping() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq.IsLooping()
}

// FrameState describes the sequencing mirrors for reporting.
type FrameState struct {
	First     int                   `json:"first"`
	Last      int                   `json:"last"`
	LoopCount int                   `json:"loop_count"`
	Frames    map[int]FrameSnapshot `json:"frames"`
}

// Frames returns the mirrored sequencing state.
func (c *Controller) Frames() FrameState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return FrameState{
		First:     c.seq.First(),
		Last:      c.seq.Last(),
		LoopCount: c.seq.LoopCount(),
		Frames:    c.seq.Frames(),
	}
}
