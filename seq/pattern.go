package seq

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mrdg/rack/audio"
)

const (
	DefaultPitch = 60
	DefaultSteps = 16

	// GateTicks is how long a triggered step holds its note.
	GateTicks = 1

	// maxGates bounds the notes held at once by a sequencer. Triggers beyond
	// it are skipped so the render never allocates.
	maxGates = 256
)

var (
	ErrUnknownChannel = errors.New("unknown channel")
	ErrStepRange      = errors.New("step out of range")
)

// Voices starts and ends notes at a frame of the render clock.
type Voices interface {
	Trigger(inst audio.ID, pitch int, velocity float64, frame int64)
	Release(inst audio.ID, pitch int, frame int64)
}

// Audibility reports whether a mixer track is heard.
type Audibility interface {
	Audible(track audio.ID) bool
}

// Channel is a row of the step sequencer. Its ID is the ID of the instrument it plays.
type Channel struct {
	ID    audio.ID
	Name  string
	Muted bool
	Steps []float64 // velocity per step, 0 is off
	Pitch int
	Track audio.ID
}

func (c Channel) Active(step int) bool {
	return step >= 0 && step < len(c.Steps) && c.Steps[step] > 0
}

func (c Channel) clone() Channel {
	c.Steps = append([]float64(nil), c.Steps...)
	return c
}

type gate struct {
	inst  audio.ID
	pitch int
	end   int64
}

// PatternSequencer plays the step patterns of all channels. Channels are
// immutable once published; edits publish a modified copy.
type PatternSequencer struct {
	voices Voices
	mixer  Audibility

	mu       sync.Mutex
	channels atomic.Pointer[[]Channel]

	gates []gate
}

func NewPatternSequencer(voices Voices, mixer Audibility) *PatternSequencer {
	p := &PatternSequencer{
		voices: voices,
		mixer:  mixer,
		gates:  make([]gate, 0, maxGates),
	}
	p.channels.Store(&[]Channel{})
	return p
}

func (p *PatternSequencer) OnTick(t Tick) {
	open := p.gates[:0]
	for _, g := range p.gates {
		if g.end <= t.Index {
			p.voices.Release(g.inst, g.pitch, t.Frame)
		} else {
			open = append(open, g)
		}
	}
	p.gates = open

	for _, ch := range *p.channels.Load() {
		if ch.Muted || len(ch.Steps) == 0 {
			continue
		}
		velocity := ch.Steps[t.Pos%int64(len(ch.Steps))]
		if velocity <= 0 {
			continue
		}
		if p.mixer != nil && !p.mixer.Audible(ch.Track) {
			continue
		}
		if len(p.gates) == cap(p.gates) {
			continue
		}
		p.voices.Trigger(ch.ID, ch.Pitch, velocity, t.Frame)
		p.gates = append(p.gates, gate{inst: ch.ID, pitch: ch.Pitch, end: t.Index + GateTicks})
	}
}

// OnFlush forgets the open gates. The voices themselves are flushed by the caller.
func (p *PatternSequencer) OnFlush() {
	p.gates = p.gates[:0]
}

// Channels returns a copy of all channels.
func (p *PatternSequencer) Channels() []Channel {
	chans := *p.channels.Load()
	out := make([]Channel, len(chans))
	for n, ch := range chans {
		out[n] = ch.clone()
	}
	return out
}

func (p *PatternSequencer) Channel(id audio.ID) (Channel, bool) {
	for _, ch := range *p.channels.Load() {
		if ch.ID == id {
			return ch.clone(), true
		}
	}
	return Channel{}, false
}

func (p *PatternSequencer) AddChannel(ch Channel) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	old := *p.channels.Load()
	for _, c := range old {
		if c.ID == ch.ID {
			return fmt.Errorf("channel %d already exists", ch.ID)
		}
	}
	if ch.Steps == nil {
		ch.Steps = make([]float64, DefaultSteps)
	}
	ch = ch.clone()
	chans := make([]Channel, len(old), len(old)+1)
	copy(chans, old)
	p.channels.Store(ptr(append(chans, ch)))
	return nil
}

func (p *PatternSequencer) RemoveChannel(id audio.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	old := *p.channels.Load()
	chans := make([]Channel, 0, len(old))
	for _, c := range old {
		if c.ID != id {
			chans = append(chans, c)
		}
	}
	if len(chans) == len(old) {
		return fmt.Errorf("%w: %d", ErrUnknownChannel, id)
	}
	p.channels.Store(&chans)
	return nil
}

// Replace swaps all channels at once.
func (p *PatternSequencer) Replace(chans []Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Channel, len(chans))
	for n, ch := range chans {
		out[n] = ch.clone()
	}
	p.channels.Store(&out)
}

func (p *PatternSequencer) update(id audio.ID, f func(ch *Channel) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	old := *p.channels.Load()
	for n := range old {
		if old[n].ID != id {
			continue
		}
		ch := old[n].clone()
		if err := f(&ch); err != nil {
			return err
		}
		chans := make([]Channel, len(old))
		copy(chans, old)
		chans[n] = ch
		p.channels.Store(&chans)
		return nil
	}
	return fmt.Errorf("%w: %d", ErrUnknownChannel, id)
}

func (p *PatternSequencer) SetMuted(id audio.ID, muted bool) error {
	return p.update(id, func(ch *Channel) error {
		ch.Muted = muted
		return nil
	})
}

// ToggleStep flips a step between off and full velocity and returns the new state.
func (p *PatternSequencer) ToggleStep(id audio.ID, step int) (bool, error) {
	var active bool
	err := p.update(id, func(ch *Channel) error {
		if step < 0 || step >= len(ch.Steps) {
			return fmt.Errorf("%w: %d not in [0, %d)", ErrStepRange, step, len(ch.Steps))
		}
		if ch.Steps[step] > 0 {
			ch.Steps[step] = 0
		} else {
			ch.Steps[step] = 1
		}
		active = ch.Steps[step] > 0
		return nil
	})
	return active, err
}

func (p *PatternSequencer) SetStep(id audio.ID, step int, velocity float64) error {
	return p.update(id, func(ch *Channel) error {
		if step < 0 || step >= len(ch.Steps) {
			return fmt.Errorf("%w: %d not in [0, %d)", ErrStepRange, step, len(ch.Steps))
		}
		ch.Steps[step] = clampVelocity(velocity)
		return nil
	})
}

// SetSteps replaces the whole pattern, repeating steps to fill the channel length.
func (p *PatternSequencer) SetSteps(id audio.ID, steps []float64) error {
	if len(steps) == 0 {
		return fmt.Errorf("empty pattern")
	}
	return p.update(id, func(ch *Channel) error {
		for n := range ch.Steps {
			ch.Steps[n] = clampVelocity(steps[n%len(steps)])
		}
		return nil
	})
}

// Resize changes the pattern length keeping existing steps by index.
func (p *PatternSequencer) Resize(id audio.ID, length int) error {
	if length < 1 {
		return fmt.Errorf("invalid pattern length %d", length)
	}
	return p.update(id, func(ch *Channel) error {
		steps := make([]float64, length)
		copy(steps, ch.Steps)
		ch.Steps = steps
		return nil
	})
}

func (p *PatternSequencer) SetPitch(id audio.ID, pitch int) error {
	return p.update(id, func(ch *Channel) error {
		ch.Pitch = clampPitch(pitch)
		return nil
	})
}

func (p *PatternSequencer) SetTrack(id audio.ID, track audio.ID) error {
	return p.update(id, func(ch *Channel) error {
		ch.Track = track
		return nil
	})
}

func clampVelocity(v float64) float64 { return min(max(v, 0), 1) }

func clampPitch(p int) int { return min(max(p, 0), 127) }

func ptr[T any](v T) *T { return &v }
