// internal/t564/frames.go
package t564

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// FrameSnapshot is the locally observed content of one saved frame: the
// live settings of all four channels at the moment of the save. The
// device persists frames by index on its own; this map is purely an
// observational mirror of what was sent.
type FrameSnapshot map[ChannelID]Settings

// FrameStore persists the observational frame mirror across controller
// restarts. Implementations must tolerate being behind device truth;
// nothing is ever read back from the store in place of a device query.
type FrameStore interface {
	PutFrame(index int, snap FrameSnapshot) error
	DropFrames() error
	Frames() (map[int]FrameSnapshot, error)
}

// Sequencer manages indexed configuration snapshots in the device frame
// memory: saving frames, the first/last/loop-count registers and
// playback control.
type Sequencer struct {
	exec     Execer
	snapshot func() FrameSnapshot
	store    FrameStore // may be nil
	logger   *zap.Logger

	first  int
	last   int
	loops  int // user-visible loop count; 0 means forever
	frames map[int]FrameSnapshot
}

// NewSequencer builds a sequencer whose saves capture the snapshot
// returned by the provider. A nil store disables persistence. Call Seed
// to align the register mirrors with the device.
func NewSequencer(exec Execer, snapshot func() FrameSnapshot, store FrameStore, logger *zap.Logger) *Sequencer {
	s := &Sequencer{
		exec:     exec,
		snapshot: snapshot,
		store:    store,
		logger:   logger.With(zap.String("component", "frames")),
		frames:   make(map[int]FrameSnapshot),
	}
	if store != nil {
		persisted, err := store.Frames()
		if err != nil {
			s.logger.Warn("Could not restore frame mirror", zap.Error(err))
		} else {
			s.frames = persisted
		}
	}
	return s
}

// Seed reads the FA, FB and FC registers and replaces the local mirrors
// with device truth.
func (s *Sequencer) Seed() error {
	replies, err := s.exec.Execute("FA", "FB", "FC")
	if err != nil {
		return err
	}
	first, err := parseRegister("FA", replies[0])
	if err != nil {
		return err
	}
	last, err := parseRegister("FB", replies[1])
	if err != nil {
		return err
	}
	fc, err := parseRegister("FC", replies[2])
	if err != nil {
		return err
	}

	s.first = first
	s.last = last
	s.loops = loopsFromRegister(fc)
	s.logger.Debug("Frame registers seeded",
		zap.Int("first", s.first),
		zap.Int("last", s.last),
		zap.Int("loops", s.loops),
	)
	return nil
}

// First returns the mirrored first-frame register.
func (s *Sequencer) First() int { return s.first }

// Last returns the mirrored last-frame register.
func (s *Sequencer) Last() int { return s.last }

// Count returns the number of locally observed frames.
func (s *Sequencer) Count() int { return len(s.frames) }

// Frames returns a copy of the observational frame mirror.
func (s *Sequencer) Frames() map[int]FrameSnapshot {
	out := make(map[int]FrameSnapshot, len(s.frames))
	for idx, snap := range s.frames {
		out[idx] = snap
	}
	return out
}

// SetLast moves the last-frame register. Once more than one frame is
// saved the loop must span at least two frames, so last must come after
// first; with a single frame first == last is the legal degenerate loop.
func (s *Sequencer) SetLast(f int) error {
	if f <= s.first && len(s.frames) > 1 {
		return &PreconditionError{
			Reason: fmt.Sprintf("last frame %d must come after first frame %d", f, s.first),
		}
	}
	if err := s.writeRegister(fmt.Sprintf("FB %d", f)); err != nil {
		return err
	}
	s.last = f
	return nil
}

// LoopCount returns the user-visible loop count: how many times FRAME GO
// runs through the frames, with 0 meaning loop forever.
func (s *Sequencer) LoopCount() int { return s.loops }

// SetLoopCount writes the FC register. FRAME GO runs once plus FC
// repeats, so the register is the loop count minus one; zero maps to the
// forever sentinel.
func (s *Sequencer) SetLoopCount(n int) error {
	if n < 0 || n > FrameMaxLoops+1 {
		return &RangeError{What: "loop count", Value: n, Min: 0, Max: FrameMaxLoops + 1}
	}
	reg := n - 1
	if n == 0 {
		reg = FrameForever
	}
	if err := s.writeRegister(fmt.Sprintf("FC %d", reg)); err != nil {
		return err
	}
	s.loops = n
	return nil
}

// Save captures the live channel settings into the next sequential frame
// slot, extends the last-frame register to cover it and stores the
// active configuration on the device. It returns the index used.
func (s *Sequencer) Save() (int, error) {
	index := s.first + len(s.frames)
	if err := s.SetLast(index); err != nil {
		return 0, err
	}
	if err := s.saveAt(index); err != nil {
		return 0, err
	}
	return index, nil
}

// SaveAt overwrites the snapshot at an already-chosen index without
// touching the first/last registers (in-place edit of a saved frame).
func (s *Sequencer) SaveAt(index int) error {
	if index < 0 || index >= FrameMaxNum {
		return &RangeError{What: "frame index", Value: index, Min: 0, Max: FrameMaxNum - 1}
	}
	return s.saveAt(index)
}

func (s *Sequencer) saveAt(index int) error {
	snap := s.snapshot()
	if err := s.writeRegister(fmt.Sprintf("FR %d", index)); err != nil {
		return err
	}
	s.frames[index] = snap
	if s.store != nil {
		if err := s.store.PutFrame(index, snap); err != nil {
			s.logger.Warn("Could not persist frame snapshot", zap.Int("index", index), zap.Error(err))
		}
	}
	s.logger.Info("Frame saved", zap.Int("index", index))
	return nil
}

// Clear resets the device frame memory and empties the local mirror,
// then re-reads the frame registers so the mirrors track whatever the
// device reports after the reset.
func (s *Sequencer) Clear() error {
	if err := s.writeRegister("RZ"); err != nil {
		return err
	}
	s.frames = make(map[int]FrameSnapshot)
	if s.store != nil {
		if err := s.store.DropFrames(); err != nil {
			s.logger.Warn("Could not clear persisted frames", zap.Error(err))
		}
	}
	s.logger.Info("Frame memory cleared")
	return s.Seed()
}

// Start begins playback of the saved frame loop.
func (s *Sequencer) Start() error {
	return s.writeRegister("FR GO")
}

// Stop halts frame playback.
func (s *Sequencer) Stop() error {
	return s.writeRegister("FR OF")
}

// IsLooping queries the frame engine. Any reply other than the two known
// terminal tokens counts as still looping; the classifier is open-ended
// by exclusion.
func (s *Sequencer) IsLooping() (bool, error) {
	replies, err := s.exec.Execute("FR")
	if err != nil {
		return false, err
	}
	body, err := checkReply("FR", replies[0])
	if err != nil {
		return false, err
	}
	state := strings.TrimSpace(body)
	return state != frameStateStopped && state != frameStateFinished, nil
}

func (s *Sequencer) writeRegister(command string) error {
	replies, err := s.exec.Execute(command)
	if err != nil {
		return err
	}
	if _, err := checkReply(command, replies[0]); err != nil {
		return err
	}
	return nil
}

// parseRegister decodes an integer register read, rejecting the error
// sentinel first.
func parseRegister(command, reply string) (int, error) {
	body, err := checkReply(command, reply)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(body))
	if err != nil {
		return 0, &TransportError{Op: fmt.Sprintf("parse %s reply %q", command, reply), Err: err}
	}
	return v, nil
}

// loopsFromRegister maps the FC register back to the user-visible count.
func loopsFromRegister(fc int) int {
	if fc == FrameForever {
		return 0
	}
	return fc + 1
}
