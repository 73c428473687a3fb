package audio

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/viterin/vek/vek32"
)

type voiceState int

const (
	stateFree voiceState = iota
	stateHeld
	stateReleased
)

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdRelease
	cmdStop
)

// voiceCmd is a voice change waiting for its frame.
type voiceCmd struct {
	kind     cmdKind
	frame    int64
	pitch    int
	velocity float64
}

const slotQueueSize = 8

// stopFrames is how long before a reused voice's new start its old sound fades out.
var stopFrames = int64(math.Ceil(stopTime * SampleRate))

// slot tracks the note a voice is assigned to. State changes right away on
// Trigger and Release so allocation sees them; the voice itself only changes
// when the render reaches the frame of each queued command.
type slot struct {
	voice    Voice
	state    voiceState
	pitch    int
	order    uint64
	start    int64
	stopping bool
	cmds     [slotQueueSize]voiceCmd
	queued   int
}

// schedule queues c in frame order. A full queue applies its oldest command early.
func (s *slot) schedule(c voiceCmd) {
	if s.queued == len(s.cmds) {
		s.apply(s.cmds[0])
		s.pop()
	}
	i := s.queued
	for i > 0 && s.cmds[i-1].frame > c.frame {
		s.cmds[i] = s.cmds[i-1]
		i--
	}
	s.cmds[i] = c
	s.queued++
}

func (s *slot) pop() {
	copy(s.cmds[:], s.cmds[1:s.queued])
	s.queued--
}

func (s *slot) apply(c voiceCmd) {
	switch c.kind {
	case cmdStart:
		s.voice.Start(c.pitch, c.velocity)
		s.stopping = false
	case cmdRelease:
		// a voice fading out for its next note keeps the fast fade
		if !s.stopping {
			s.voice.Release()
		}
	case cmdStop:
		s.voice.Stop()
		s.stopping = true
	}
}

type voiceSet struct {
	inst  *Instrument
	slots []slot
}

// Router returns the input buffer of a track, or nil if the track doesn't exist.
type Router interface {
	Input(track ID) []float32
}

// VoicePool allocates the voices of every instrument. Add may be called from any
// goroutine; every other method must be serialized with Render.
type VoicePool struct {
	mu   sync.Mutex
	sets atomic.Pointer[map[ID]*voiceSet]

	order    uint64
	rendered int64 // end of the last rendered block
	events   *eventBuffer
	dropped atomic.Uint64
	lost    atomic.Uint64
}

const voiceEventBufferSize = 1024

func NewVoicePool() *VoicePool {
	p := &VoicePool{events: newEventBuffer(voiceEventBufferSize)}
	p.sets.Store(&map[ID]*voiceSet{})
	return p
}

// Add makes the instrument playable.
func (p *VoicePool) Add(inst *Instrument) {
	vs := &voiceSet{inst: inst, slots: make([]slot, len(inst.voices))}
	for n := range vs.slots {
		vs.slots[n] = slot{voice: inst.voices[n]}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	sets := p.copySets()
	sets[inst.ID] = vs
	p.sets.Store(&sets)
}

// Remove flushes the voices of the instrument and disposes it.
func (p *VoicePool) Remove(id ID, frame int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	sets := p.copySets()
	vs, ok := sets[id]
	if !ok {
		return false
	}
	p.flush(vs, frame)
	delete(sets, id)
	p.sets.Store(&sets)
	vs.inst.dispose()
	return true
}

func (p *VoicePool) copySets() map[ID]*voiceSet {
	old := *p.sets.Load()
	sets := make(map[ID]*voiceSet, len(old)+1)
	for id, vs := range old {
		sets[id] = vs
	}
	return sets
}

func (p *VoicePool) lookup(id ID) *voiceSet {
	return (*p.sets.Load())[id]
}

func (p *VoicePool) Instrument(id ID) (*Instrument, bool) {
	vs := p.lookup(id)
	if vs == nil {
		return nil, false
	}
	return vs.inst, true
}

func (p *VoicePool) Instruments() []*Instrument {
	sets := *p.sets.Load()
	insts := make([]*Instrument, 0, len(sets))
	for _, vs := range sets {
		insts = append(insts, vs.inst)
	}
	return insts
}

// Trigger starts a note at frame. When every voice is busy the oldest released
// voice is reused, then the oldest held voice is stolen. A reused voice keeps
// sounding until just before frame and is then faded out over stopTime.
func (p *VoicePool) Trigger(inst ID, pitch int, velocity float64, frame int64) {
	vs := p.lookup(inst)
	if vs == nil {
		p.dropped.Add(1)
		return
	}
	s := vs.allocate()
	if s.state == stateHeld {
		p.publish(VoiceEvent{Forced: true, Instrument: inst, Pitch: s.pitch, Frame: frame})
	}
	if s.state != stateFree {
		s.schedule(voiceCmd{kind: cmdStop, frame: max(frame-stopFrames, p.rendered)})
	}
	p.order++
	velocity = min(max(velocity, 0), 1)
	s.schedule(voiceCmd{kind: cmdStart, frame: frame, pitch: pitch, velocity: velocity})
	s.state = stateHeld
	s.pitch = pitch
	s.order = p.order
	s.start = frame
	p.publish(VoiceEvent{On: true, Instrument: inst, Pitch: pitch, Velocity: velocity, Frame: frame})
}

func (vs *voiceSet) allocate() *slot {
	var released, held *slot
	for i := range vs.slots {
		s := &vs.slots[i]
		switch s.state {
		case stateFree:
			return s
		case stateReleased:
			if released == nil || s.order < released.order {
				released = s
			}
		case stateHeld:
			if held == nil || s.order < held.order {
				held = s
			}
		}
	}
	if released != nil {
		return released
	}
	return held
}

// Release ends a note at frame. Monophonic instruments end their only voice
// regardless of pitch; otherwise the oldest held voice with the pitch is released.
func (p *VoicePool) Release(inst ID, pitch int, frame int64) {
	vs := p.lookup(inst)
	if vs == nil {
		p.dropped.Add(1)
		return
	}
	mono := len(vs.slots) == 1
	var oldest *slot
	for i := range vs.slots {
		s := &vs.slots[i]
		if s.state != stateHeld || (!mono && s.pitch != pitch) {
			continue
		}
		if oldest == nil || s.order < oldest.order {
			oldest = s
		}
	}
	if oldest == nil {
		return
	}
	oldest.state = stateReleased
	oldest.schedule(voiceCmd{kind: cmdRelease, frame: max(frame, oldest.start)})
	p.publish(VoiceEvent{Instrument: inst, Pitch: oldest.pitch, Frame: frame})
}

// Flush stops every voice of the instrument.
func (p *VoicePool) Flush(inst ID, frame int64) {
	if vs := p.lookup(inst); vs != nil {
		p.flush(vs, frame)
	}
}

func (p *VoicePool) FlushAll(frame int64) {
	for _, vs := range *p.sets.Load() {
		p.flush(vs, frame)
	}
}

func (p *VoicePool) flush(vs *voiceSet, frame int64) {
	for i := range vs.slots {
		s := &vs.slots[i]
		if s.state == stateHeld {
			p.publish(VoiceEvent{Forced: true, Instrument: vs.inst.ID, Pitch: s.pitch, Frame: frame})
		}
		if s.state != stateFree {
			s.queued = 0
			s.voice.Stop()
			s.stopping = true
			s.state = stateReleased
			if s.voice.Done() {
				s.state = stateFree
			}
		}
	}
}

func (p *VoicePool) publish(ev VoiceEvent) {
	if !p.events.push(ev) {
		p.lost.Add(1)
	}
}

// Render mixes n frames starting at frame into the input of each instrument's track.
func (p *VoicePool) Render(frame int64, n int, out Router) {
	for _, vs := range *p.sets.Load() {
		buf := vs.inst.buf[:n]
		clear(buf)
		active := false
		for i := range vs.slots {
			s := &vs.slots[i]
			if s.state == stateFree {
				continue
			}
			active = true
			s.render(buf, frame)
		}
		if !active {
			continue
		}
		if dst := out.Input(vs.inst.Route()); dst != nil {
			vek32.Add_Inplace(dst[:n], buf)
		}
	}
	p.rendered = frame + int64(n)
}

// render plays the voice into buf, applying the queued commands at their frames.
func (s *slot) render(buf []float32, frame int64) {
	end := frame + int64(len(buf))
	pos := 0
	for s.queued > 0 && s.cmds[0].frame < end {
		c := s.cmds[0]
		at := int(max(c.frame-frame, int64(pos)))
		s.voice.Render(buf[pos:at])
		pos = at
		s.apply(c)
		s.pop()
	}
	s.voice.Render(buf[pos:])
	if s.state == stateReleased && s.queued == 0 && s.voice.Done() {
		s.state = stateFree
	}
}

// Sounding returns the number of held voices of the instrument.
func (p *VoicePool) Sounding(inst ID) int {
	vs := p.lookup(inst)
	if vs == nil {
		return 0
	}
	n := 0
	for i := range vs.slots {
		if vs.slots[i].state == stateHeld {
			n++
		}
	}
	return n
}

// Events drains the published voice events.
func (p *VoicePool) Events(f func(VoiceEvent)) int { return p.events.drain(f) }

// Dropped returns the number of triggers and releases for unknown instruments.
func (p *VoicePool) Dropped() uint64 { return p.dropped.Load() }

// Lost returns the number of voice events that didn't fit the event buffer.
func (p *VoicePool) Lost() uint64 { return p.lost.Load() }
