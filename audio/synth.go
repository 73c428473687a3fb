package audio

import (
	"fmt"
	"math"
)

// SynthParams describe a subtractive two-oscillator voice.
type SynthParams struct {
	Osc1    string  `yaml:"osc1"`
	Osc2    string  `yaml:"osc2"`
	Detune  float64 `yaml:"detune"` // cents, applied to osc2
	Cutoff  float64 `yaml:"cutoff"`
	Attack  float64 `yaml:"attack"`
	Decay   float64 `yaml:"decay"`
	Sustain float64 `yaml:"sustain"`
	Release float64 `yaml:"release"`
	Level   float64 `yaml:"level"` // dB
}

func (p SynthParams) Validate() error {
	for _, w := range []string{p.Osc1, p.Osc2} {
		if !validWaveform(w) {
			return fmt.Errorf("not a valid waveform type: %q", w)
		}
	}
	if p.Cutoff <= 0 || p.Cutoff > 20_000 {
		return fmt.Errorf("cutoff not in valid range 0 - 20000: %v", p.Cutoff)
	}
	for _, t := range []float64{p.Attack, p.Decay, p.Release} {
		if t < 0 || t > 15 {
			return fmt.Errorf("envelope time not in valid range 0 - 15: %v", t)
		}
	}
	if p.Sustain < 0 || p.Sustain > 1 {
		return fmt.Errorf("sustain not in valid range 0 - 1: %v", p.Sustain)
	}
	if p.Level < -40 || p.Level > 10 {
		return fmt.Errorf("level not in valid range -40 - 10: %v", p.Level)
	}
	return nil
}

type synthVoice struct {
	params   SynthParams
	gain     float64
	osc1     osc
	osc2     osc
	filter   filter
	env      envelope
	velocity float64
	buf      []float64
}

func newSynthVoice(p SynthParams) *synthVoice {
	v := &synthVoice{
		params: p,
		gain:   0.1 * math.Pow(10, p.Level/20.0),
		env: envelope{
			attack:  p.Attack,
			decay:   p.Decay,
			sustain: p.Sustain,
			release: p.Release,
		},
		buf: make([]float64, blockSize),
	}
	v.osc1.setWaveform(p.Osc1)
	v.osc2.setWaveform(p.Osc2)
	v.filter.calculateCoefficients(p.Cutoff)
	return v
}

func (v *synthVoice) Start(pitch int, velocity float64) {
	freq := midiToFreq(pitch)
	v.velocity = velocity
	v.filter.y1, v.filter.y2 = 0, 0
	v.osc1.phase, v.osc2.phase = 0, 0
	v.osc1.phaseDelta = freq * twoPi / SampleRate
	v.osc2.phaseDelta = freq * math.Pow(2, v.params.Detune/1200) * twoPi / SampleRate
	v.env.startAttack()
}

func (v *synthVoice) Release() { v.env.startRelease(v.env.release) }

func (v *synthVoice) Stop() { v.env.startRelease(stopTime) }

func (v *synthVoice) Render(buf []float32) {
	for len(buf) > 0 && !v.env.done() {
		n := min(len(buf), blockSize)
		tmp := v.buf[:n]
		clear(tmp)
		v.osc1.process(tmp)
		v.osc2.process(tmp)
		v.filter.process(tmp)
		v.env.process(tmp)
		g := v.gain * v.velocity
		for i := range tmp {
			buf[i] += float32(g * tmp[i])
		}
		buf = buf[n:]
	}
}

func (v *synthVoice) Done() bool { return v.env.done() }

const (
	twoPi           = 2 * math.Pi
	numCoefficients = 5
)

type osc struct {
	phase      float64
	phaseDelta float64
	fn         func(float64) float64
}

func (o *osc) process(buf []float64) {
	for n := range buf {
		buf[n] += o.fn(o.phase)
		o.phase += o.phaseDelta
		if o.phase >= twoPi {
			o.phase -= twoPi
		}
	}
}

func validWaveform(s string) bool {
	switch s {
	case "sine", "saw", "square", "off":
		return true
	}
	return false
}

func (o *osc) setWaveform(s string) {
	switch s {
	case "sine":
		o.fn = math.Sin
	case "saw":
		o.fn = func(phase float64) float64 {
			return (2.0 * phase / twoPi) - 1.
		}
	case "square":
		o.fn = func(phase float64) float64 {
			if phase <= math.Pi {
				return 1.0
			}
			return -1.0
		}
	default:
		o.fn = func(_ float64) float64 { return 0 }
	}
}

type filter struct {
	coefficients [numCoefficients]float64

	// state
	y1, y2 float64 // y[n-1] y[n-2]
}

// Lowpass filter based on https://www.w3.org/2011/audio/audio-eq-cookbook.html
func (f *filter) process(buf []float64) {
	c0 := f.coefficients[0]
	c1 := f.coefficients[1]
	c2 := f.coefficients[2]
	c3 := f.coefficients[3]
	c4 := f.coefficients[4]

	for n := range buf {
		in := buf[n]
		out := c0*in + f.y1
		buf[n] = out
		f.y1 = c1*in - c3*out + f.y2
		f.y2 = c2*in - c4*out
	}
}

func (f *filter) calculateCoefficients(freq float64) {
	omega := 2 * math.Pi * min(freq, SampleRate/2-1) / SampleRate
	cos := math.Cos(omega)
	sin := math.Sin(omega)

	const q = 1
	alpha := sin / (2. * q)

	b0 := (1 - cos) / 2
	b1 := 1 - cos
	b2 := b0
	a0 := 1 + alpha
	a1 := -2 * cos
	a2 := 1 - alpha

	f.coefficients[0] = b0 / a0
	f.coefficients[1] = b1 / a0
	f.coefficients[2] = b2 / a0
	f.coefficients[3] = a1 / a0
	f.coefficients[4] = a2 / a0
}

func midiToFreq(note int) float64 {
	return math.Pow(2, float64(note-69)/12.0) * 440
}
