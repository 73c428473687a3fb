package audio

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viterin/vek/vek32"
)

const (
	DefaultGain       = 0.7
	DefaultMasterGain = 0.7
)

type Track struct {
	ID      ID
	Name    string
	Effects *Chain
	Meter   *Meter

	gain  atomic.Uint64
	pan   atomic.Uint64
	muted atomic.Bool
	solo  atomic.Bool
	in    []float32
}

func newTrack(id ID, name string, decay time.Duration) *Track {
	t := &Track{
		ID:      id,
		Name:    name,
		Effects: NewChain(),
		Meter:   NewMeter(decay),
		in:      make([]float32, MaxBlock),
	}
	t.SetGain(DefaultGain)
	return t
}

func (t *Track) Gain() float64 { return math.Float64frombits(t.gain.Load()) }

// SetGain clamps gain to [0,1].
func (t *Track) SetGain(gain float64) {
	t.gain.Store(math.Float64bits(min(max(gain, 0), 1)))
}

func (t *Track) Pan() float64 { return math.Float64frombits(t.pan.Load()) }

// SetPan clamps pan to [-1,1].
func (t *Track) SetPan(pan float64) {
	t.pan.Store(math.Float64bits(min(max(pan, -1), 1)))
}

func (t *Track) Muted() bool       { return t.muted.Load() }
func (t *Track) SetMuted(m bool)   { t.muted.Store(m) }
func (t *Track) Solo() bool        { return t.solo.Load() }
func (t *Track) SetSolo(solo bool) { t.solo.Store(solo) }

// PanGains returns the constant power gains of the left and right channel.
func PanGains(pan float64) (left, right float64) {
	angle := (pan + 1) * math.Pi / 4
	return math.Cos(angle), math.Sin(angle)
}

func audible(t *Track, anySolo bool) bool {
	if anySolo {
		return t.Solo()
	}
	return !t.Muted()
}

// MixerBus sums the audible tracks into the master output.
type MixerBus struct {
	mu     sync.Mutex
	tracks atomic.Pointer[[]*Track]
	nextID ID
	decay  time.Duration
	gain   atomic.Uint64
	Master *Meter
	frames int
}

func NewMixerBus(meterDecay time.Duration) *MixerBus {
	m := &MixerBus{decay: meterDecay, Master: NewMeter(meterDecay)}
	m.tracks.Store(&[]*Track{})
	m.SetMasterGain(DefaultMasterGain)
	return m
}

func (m *MixerBus) AddTrack(name string) *Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t := newTrack(m.nextID, name, m.decay)
	old := *m.tracks.Load()
	tracks := make([]*Track, len(old), len(old)+1)
	copy(tracks, old)
	tracks = append(tracks, t)
	m.tracks.Store(&tracks)
	return t
}

func (m *MixerBus) RemoveTrack(id ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := *m.tracks.Load()
	tracks := make([]*Track, 0, len(old))
	for _, t := range old {
		if t.ID != id {
			tracks = append(tracks, t)
		}
	}
	if len(tracks) == len(old) {
		return false
	}
	m.tracks.Store(&tracks)
	return true
}

func (m *MixerBus) Track(id ID) (*Track, bool) {
	for _, t := range *m.tracks.Load() {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// Tracks returns the tracks in mixer order. The slice must not be modified.
func (m *MixerBus) Tracks() []*Track { return *m.tracks.Load() }

// Audible reports whether a track is heard given the solo and mute state of all tracks.
func (m *MixerBus) Audible(id ID) bool {
	tracks := *m.tracks.Load()
	anySolo := false
	var track *Track
	for _, t := range tracks {
		anySolo = anySolo || t.Solo()
		if t.ID == id {
			track = t
		}
	}
	return track != nil && audible(track, anySolo)
}

func (m *MixerBus) MasterGain() float64 { return math.Float64frombits(m.gain.Load()) }

func (m *MixerBus) SetMasterGain(gain float64) {
	m.gain.Store(math.Float64bits(min(max(gain, 0), 1)))
}

// Begin clears the track inputs for a block of n frames.
func (m *MixerBus) Begin(n int) {
	m.frames = n
	for _, t := range *m.tracks.Load() {
		clear(t.in[:n])
	}
}

// Input implements Router.
func (m *MixerBus) Input(id ID) []float32 {
	for _, t := range *m.tracks.Load() {
		if t.ID == id {
			return t.in[:m.frames]
		}
	}
	return nil
}

// Mix writes the master output of the current block into left and right.
func (m *MixerBus) Mix(left, right []float32) {
	n := m.frames
	left, right = left[:n], right[:n]
	clear(left)
	clear(right)
	tracks := *m.tracks.Load()
	anySolo := false
	for _, t := range tracks {
		anySolo = anySolo || t.Solo()
	}
	for _, t := range tracks {
		in := t.in[:n]
		if !audible(t, anySolo) {
			t.Meter.Observe(0, n)
			continue
		}
		t.Effects.Process(in)
		vek32.MulNumber_Inplace(in, float32(t.Gain()))
		t.Meter.Update(in)
		lg, rg := PanGains(t.Pan())
		l, r := float32(lg), float32(rg)
		for i, v := range in {
			left[i] += v * l
			right[i] += v * r
		}
	}
	master := float32(m.MasterGain())
	var peak float32
	for i := range left {
		left[i] *= master
		right[i] *= master
		peak = max(peak, abs32(left[i]), abs32(right[i]))
	}
	m.Master.Observe(peak, n)
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
