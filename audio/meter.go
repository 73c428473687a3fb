package audio

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/viterin/vek/vek32"
)

const DefaultMeterDecay = 300 * time.Millisecond

// Meter follows the peak level of a signal. The level jumps up to new peaks
// and decays exponentially towards zero.
type Meter struct {
	level   atomic.Uint32
	decay   float64
	scratch []float32
}

func NewMeter(decay time.Duration) *Meter {
	if decay <= 0 {
		decay = DefaultMeterDecay
	}
	return &Meter{
		decay:   decay.Seconds(),
		scratch: make([]float32, MaxBlock),
	}
}

// Update measures the peak of buf.
func (m *Meter) Update(buf []float32) {
	var peak float32
	if len(buf) > 0 {
		abs := m.scratch[:len(buf)]
		copy(abs, buf)
		vek32.Abs_Inplace(abs)
		peak = vek32.Max(abs)
	}
	m.Observe(peak, len(buf))
}

// Observe applies a block of frames with the given peak.
func (m *Meter) Observe(peak float32, frames int) {
	level := float64(m.Level()) * math.Exp(-float64(frames)/(m.decay*SampleRate))
	if float64(peak) > level {
		level = float64(peak)
	}
	m.level.Store(math.Float32bits(float32(level)))
}

func (m *Meter) Level() float32 { return math.Float32frombits(m.level.Load()) }
