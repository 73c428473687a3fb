// Package seq turns musical time into note triggers.
package seq

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

const (
	MinTempo     = 60
	MaxTempo     = 240
	DefaultTempo = 140

	// StepsPerBeat is the number of ticks per quarter note.
	StepsPerBeat = 4

	DefaultLookahead = 40 * time.Millisecond
)

// Tick is one sixteenth-note step of the transport. Index counts every tick since
// the transport started, Pos is the position in the song and wraps at the loop end.
type Tick struct {
	Index int64
	Pos   int64
	Frame int64 // deadline in frames of the render clock
	Time  time.Duration
}

// Listener receives transport ticks. OnFlush is called when the transport stops
// or pauses and every open gate must be forgotten.
type Listener interface {
	OnTick(Tick)
	OnFlush()
}

// TickFunc adapts a plain function to a Listener that ignores flushes.
type TickFunc func(Tick)

func (f TickFunc) OnTick(t Tick) { f(t) }
func (TickFunc) OnFlush()        {}

type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

type Loop struct {
	Start, End int64
}

// ClampTempo limits bpm to the supported tempo range.
func ClampTempo(bpm float64) float64 {
	if math.IsNaN(bpm) {
		return DefaultTempo
	}
	return min(max(bpm, MinTempo), MaxTempo)
}

// Interval returns the length of a tick in seconds.
func Interval(bpm float64) float64 {
	return 60 / (ClampTempo(bpm) * StepsPerBeat)
}

// Clock is the transport. It is driven by the render through Advance and
// dispatches ticks ahead of their deadline. Tempo can be read and changed from
// any goroutine; all other methods must be serialized with Advance.
type Clock struct {
	sampleRate float64
	lookahead  int64
	tempo      atomic.Uint64

	state     State
	index     int64
	pos       int64
	next      float64
	resync    bool
	loop      Loop
	looping   bool
	listeners []Listener
}

func NewClock(sampleRate float64, lookahead time.Duration) *Clock {
	if lookahead < 0 {
		lookahead = DefaultLookahead
	}
	c := &Clock{
		sampleRate: sampleRate,
		lookahead:  int64(lookahead.Seconds() * sampleRate),
	}
	c.SetTempo(DefaultTempo)
	return c
}

// SetTempo clamps bpm to [MinTempo, MaxTempo] and returns the tempo in effect.
// The new tempo applies from the next tick.
func (c *Clock) SetTempo(bpm float64) float64 {
	bpm = ClampTempo(bpm)
	c.tempo.Store(math.Float64bits(bpm))
	return bpm
}

func (c *Clock) Tempo() float64 { return math.Float64frombits(c.tempo.Load()) }

func (c *Clock) Interval() time.Duration {
	return time.Duration(Interval(c.Tempo()) * float64(time.Second))
}

func (c *Clock) Subscribe(l Listener) { c.listeners = append(c.listeners, l) }

func (c *Clock) State() State { return c.state }

// Position returns the index and song position of the next tick.
func (c *Clock) Position() (index, pos int64) { return c.index, c.pos }

// Start starts ticking. The tick counter is reset unless the clock was paused.
func (c *Clock) Start() {
	switch c.state {
	case Playing:
		return
	case Stopped:
		c.index = 0
		c.pos = 0
	}
	c.state = Playing
	c.resync = true
}

// Pause halts ticking and keeps the position.
func (c *Clock) Pause() {
	if c.state != Playing {
		return
	}
	c.state = Paused
	c.flush()
}

// Stop halts ticking and rewinds to the start.
func (c *Clock) Stop() {
	wasStopped := c.state == Stopped
	c.state = Stopped
	c.index = 0
	c.pos = 0
	if !wasStopped {
		c.flush()
	}
}

func (c *Clock) flush() {
	for _, l := range c.listeners {
		l.OnFlush()
	}
}

func (c *Clock) SetLoop(start, end int64) error {
	if start < 0 || end <= start {
		return fmt.Errorf("invalid loop [%d, %d)", start, end)
	}
	c.loop = Loop{Start: start, End: end}
	c.looping = true
	return nil
}

func (c *Clock) ClearLoop() { c.looping = false }

func (c *Clock) Loop() (Loop, bool) { return c.loop, c.looping }

// Advance dispatches every tick whose deadline falls before now+frames plus
// the lookahead.
func (c *Clock) Advance(now int64, frames int) {
	if c.state != Playing {
		return
	}
	if c.resync {
		c.next = float64(now)
		c.resync = false
	}
	horizon := float64(now + int64(frames) + c.lookahead)
	for c.next < horizon {
		frame := int64(math.Round(c.next))
		t := Tick{
			Index: c.index,
			Pos:   c.pos,
			Frame: frame,
			Time:  time.Duration(float64(frame) / c.sampleRate * float64(time.Second)),
		}
		for _, l := range c.listeners {
			l.OnTick(t)
		}
		c.index++
		c.pos++
		if c.looping && c.pos >= c.loop.End {
			c.pos = c.loop.Start
		}
		c.next += c.sampleRate * Interval(c.Tempo())
	}
}
