package audio

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
)

type EffectType string

const (
	Reverb EffectType = "reverb"
	Delay  EffectType = "delay"
	Filter EffectType = "filter"
)

var ErrUnknownEffect = errors.New("unknown effect type")

// EffectTypes lists the types NewEffect can build.
var EffectTypes = []EffectType{Reverb, Delay, Filter}

func ParseEffectType(s string) (EffectType, error) {
	for _, t := range EffectTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEffect, s)
}

// Effect transforms a mono track signal in place. Process is only called from the render.
type Effect interface {
	Process(buf []float32)
	Props() *Props
}

// NewEffect builds an effect with default parameters.
func NewEffect(t EffectType) (Effect, error) {
	switch t {
	case Reverb:
		return newReverb(), nil
	case Delay:
		return newDelay(), nil
	case Filter:
		return newLowpass(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEffect, t)
	}
}

var (
	combLengths    = [...]int{1116, 1188, 1277, 1356}
	allpassLengths = [...]int{556, 441}
)

type reverb struct {
	props  *Props
	decay  *atomic.Value
	damp   *atomic.Value
	combs  [len(combLengths)]comb
	passes [len(allpassLengths)]allpass
}

func newReverb() *reverb {
	props := NewProps()
	r := &reverb{
		props: props,
		decay: props.MustRegister("decay", setFloat64(0.1, 10), 3.0),
		damp:  props.MustRegister("damp", setFloat64(0, 1), 0.2),
	}
	for n, l := range combLengths {
		r.combs[n].buf = make([]float32, l)
	}
	for n, l := range allpassLengths {
		r.passes[n].buf = make([]float32, l)
	}
	return r
}

func (r *reverb) Props() *Props { return r.props }

func (r *reverb) Process(buf []float32) {
	decay := loadFloat(r.decay)
	damp := float32(loadFloat(r.damp))
	var feedback [len(combLengths)]float32
	for n := range r.combs {
		// feedback that attenuates a comb by 60dB after decay seconds
		feedback[n] = float32(math.Pow(10, -3*float64(len(r.combs[n].buf))/(decay*SampleRate)))
	}
	for i, in := range buf {
		in *= 0.25
		var out float32
		for n := range r.combs {
			out += r.combs[n].process(in, feedback[n], damp)
		}
		for n := range r.passes {
			out = r.passes[n].process(out)
		}
		buf[i] = out
	}
}

type comb struct {
	buf   []float32
	pos   int
	store float32
}

func (c *comb) process(in, feedback, damp float32) float32 {
	out := c.buf[c.pos]
	c.store = out*(1-damp) + c.store*damp
	c.buf[c.pos] = in + c.store*feedback
	if c.pos++; c.pos == len(c.buf) {
		c.pos = 0
	}
	return out
}

type allpass struct {
	buf []float32
	pos int
}

func (a *allpass) process(in float32) float32 {
	delayed := a.buf[a.pos]
	a.buf[a.pos] = in + delayed*0.5
	if a.pos++; a.pos == len(a.buf) {
		a.pos = 0
	}
	return delayed - in
}

const maxDelayTime = 2.0

type delay struct {
	props    *Props
	time     *atomic.Value
	feedback *atomic.Value
	line     []float32
	pos      int
}

func newDelay() *delay {
	props := NewProps()
	return &delay{
		props:    props,
		time:     props.MustRegister("time", setFloat64(0.01, maxDelayTime), 0.25),
		feedback: props.MustRegister("feedback", setFloat64(0, 0.95), 0.5),
		line:     make([]float32, int(maxDelayTime*SampleRate)+1),
	}
}

func (d *delay) Props() *Props { return d.props }

func (d *delay) Process(buf []float32) {
	length := len(d.line)
	offset := int(loadFloat(d.time) * SampleRate)
	feedback := float32(loadFloat(d.feedback))
	for i, in := range buf {
		read := d.pos - offset
		if read < 0 {
			read += length
		}
		out := d.line[read]
		d.line[d.pos] = in + out*feedback
		if d.pos++; d.pos == length {
			d.pos = 0
		}
		buf[i] = out
	}
}

type lowpass struct {
	props  *Props
	cutoff *atomic.Value
	freq   float64
	filter filter
}

func newLowpass() *lowpass {
	props := NewProps()
	return &lowpass{
		props:  props,
		cutoff: props.MustRegister("cutoff", setFloat64(20, 20_000), 1000.0),
	}
}

func (l *lowpass) Props() *Props { return l.props }

func (l *lowpass) Process(buf []float32) {
	if cutoff := loadFloat(l.cutoff); cutoff != l.freq {
		l.freq = cutoff
		l.filter.calculateCoefficients(cutoff)
	}
	var tmp [blockSize]float64
	for len(buf) > 0 {
		n := min(len(buf), blockSize)
		for i := range buf[:n] {
			tmp[i] = float64(buf[i])
		}
		l.filter.process(tmp[:n])
		for i := range buf[:n] {
			buf[i] = float32(tmp[i])
		}
		buf = buf[n:]
	}
}
