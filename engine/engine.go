// Package engine wires the transport, sequencers, voices and mixer together
// and exposes the control surface used by the command line.
package engine

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mrdg/rack/audio"
	"github.com/mrdg/rack/seq"
)

var (
	ErrUnknownChannel = seq.ErrUnknownChannel
	ErrUnknownNote    = seq.ErrUnknownNote
	ErrUnknownTrack   = errors.New("unknown track")
)

type Options struct {
	Tempo      float64
	Lookahead  time.Duration
	MeterDecay time.Duration
	Tracks     int
	Steps      int
	MasterGain float64
	Logger     *log.Logger
}

func DefaultOptions() Options {
	return Options{
		Tempo:      seq.DefaultTempo,
		Lookahead:  seq.DefaultLookahead,
		MeterDecay: audio.DefaultMeterDecay,
		Tracks:     10,
		Steps:      seq.DefaultSteps,
		MasterGain: audio.DefaultMasterGain,
	}
}

type preview struct {
	inst  audio.ID
	pitch int
	end   int64
}

// Engine owns every part of the audio graph. Process is the real-time entry
// point; all other methods are meant for the editing side and may be called
// from any goroutine.
type Engine struct {
	log        *log.Logger
	steps      int
	meterDecay time.Duration

	// mu is held by the render for one block and by edits that touch the
	// transport or voices.
	mu       sync.Mutex
	frame    int64
	clock    *seq.Clock
	pool     *audio.VoicePool
	mixer    *audio.MixerBus
	previews []preview
	scratch  []float32

	patterns *seq.PatternSequencer
	notes    *seq.NoteScheduler

	// editMu serializes edits spanning several components.
	editMu sync.Mutex
	nextID audio.ID

	notify *notifier
}

func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Steps <= 0 {
		opts.Steps = seq.DefaultSteps
	}
	e := &Engine{
		log:        opts.Logger,
		steps:      opts.Steps,
		meterDecay: opts.MeterDecay,
		clock:      seq.NewClock(audio.SampleRate, opts.Lookahead),
		pool:       audio.NewVoicePool(),
		mixer:      audio.NewMixerBus(opts.MeterDecay),
		previews:   make([]preview, 0, 16),
		scratch:    make([]float32, audio.MaxBlock),
		notify:     newNotifier(),
	}
	r := router{e}
	e.patterns = seq.NewPatternSequencer(r, r)
	e.notes = seq.NewNoteScheduler(r, r)
	e.clock.Subscribe(e.patterns)
	e.clock.Subscribe(e.notes)
	if opts.Tempo > 0 {
		e.clock.SetTempo(opts.Tempo)
	}
	e.mixer.SetMasterGain(opts.MasterGain)
	for n := 0; n < opts.Tracks; n++ {
		e.mixer.AddTrack(trackName(n))
	}
	return e
}

// router hands sequencer output to whatever pool and mixer the engine
// currently uses. It is only called from within the render.
type router struct{ e *Engine }

func (r router) Trigger(inst audio.ID, pitch int, velocity float64, frame int64) {
	r.e.pool.Trigger(inst, pitch, velocity, frame)
}

func (r router) Release(inst audio.ID, pitch int, frame int64) {
	r.e.pool.Release(inst, pitch, frame)
}

func (r router) Audible(track audio.ID) bool { return r.e.mixer.Audible(track) }

// Process renders one block of audio into out. With a single output channel
// the mono sum of the master bus is written.
func (e *Engine) Process(out [][]float32) {
	if len(out) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	total := len(out[0])
	for off := 0; off < total; off += audio.MaxBlock {
		n := min(audio.MaxBlock, total-off)
		left := out[0][off : off+n]
		right := e.scratch[:n]
		if len(out) > 1 {
			right = out[1][off : off+n]
		}
		e.renderBlock(left, right)
		if len(out) == 1 {
			for i := range left {
				left[i] = (left[i] + right[i]) / 2
			}
		}
	}
}

func (e *Engine) renderBlock(left, right []float32) {
	n := len(left)
	e.clock.Advance(e.frame, n)
	e.releasePreviews(n)
	e.mixer.Begin(n)
	e.pool.Render(e.frame, n, e.mixer)
	e.mixer.Mix(left, right)
	e.frame += int64(n)
}

func (e *Engine) releasePreviews(n int) {
	end := e.frame + int64(n)
	pending := e.previews[:0]
	for _, p := range e.previews {
		if p.end < end {
			e.pool.Release(p.inst, p.pitch, max(p.end, e.frame))
		} else {
			pending = append(pending, p)
		}
	}
	e.previews = pending
}

// Render renders frames of audio offline.
func (e *Engine) Render(frames int) (left, right []float32) {
	left = make([]float32, frames)
	right = make([]float32, frames)
	e.Process([][]float32{left, right})
	return left, right
}

// Frame returns the number of frames rendered so far.
func (e *Engine) Frame() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frame
}

func (e *Engine) Play() {
	e.mu.Lock()
	e.clock.Start()
	e.mu.Unlock()
	e.log.Info("transport started", "tempo", e.clock.Tempo())
	e.notify.send(Change{Kind: TransportChanged})
}

// Pause halts the transport and releases every voice, keeping the position.
func (e *Engine) Pause() {
	e.mu.Lock()
	e.clock.Pause()
	e.pool.FlushAll(e.frame)
	e.previews = e.previews[:0]
	e.mu.Unlock()
	e.log.Info("transport paused")
	e.notify.send(Change{Kind: TransportChanged})
}

// Stop halts the transport and rewinds it. When Stop returns every voice has
// been released.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.clock.Stop()
	e.pool.FlushAll(e.frame)
	e.previews = e.previews[:0]
	e.mu.Unlock()
	e.log.Info("transport stopped")
	e.notify.send(Change{Kind: TransportChanged})
}

// Transport describes the state of the clock.
type Transport struct {
	State   seq.State
	Tempo   float64
	Index   int64
	Pos     int64
	Loop    seq.Loop
	Looping bool
}

func (e *Engine) Transport() Transport {
	e.mu.Lock()
	defer e.mu.Unlock()
	index, pos := e.clock.Position()
	loop, looping := e.clock.Loop()
	return Transport{
		State:   e.clock.State(),
		Tempo:   e.clock.Tempo(),
		Index:   index,
		Pos:     pos,
		Loop:    loop,
		Looping: looping,
	}
}

// SetTempo returns the tempo after clamping.
func (e *Engine) SetTempo(bpm float64) float64 {
	bpm = e.clock.SetTempo(bpm)
	e.log.Debug("tempo changed", "bpm", bpm)
	e.notify.send(Change{Kind: TempoChanged})
	return bpm
}

func (e *Engine) Tempo() float64 { return e.clock.Tempo() }

func (e *Engine) SetLoop(start, end int64) error {
	e.mu.Lock()
	err := e.clock.SetLoop(start, end)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.notify.send(Change{Kind: TransportChanged})
	return nil
}

func (e *Engine) ClearLoop() {
	e.mu.Lock()
	e.clock.ClearLoop()
	e.mu.Unlock()
	e.notify.send(Change{Kind: TransportChanged})
}

// Events drains the voice events published by the render.
func (e *Engine) Events(f func(audio.VoiceEvent)) int {
	return e.currentPool().Events(f)
}

// Dropped returns the number of triggers for instruments that no longer exist.
func (e *Engine) Dropped() uint64 { return e.currentPool().Dropped() }

func (e *Engine) currentPool() *audio.VoicePool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool
}

func (e *Engine) currentMixer() *audio.MixerBus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mixer
}

// Subscribe returns a channel receiving a Change after every committed edit.
// Changes are dropped when the subscriber falls behind.
func (e *Engine) Subscribe() <-chan Change { return e.notify.subscribe(64) }

func (e *Engine) Close() error {
	e.Stop()
	e.notify.close()
	return nil
}
