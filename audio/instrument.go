package audio

import (
	"errors"
	"fmt"
	"sync/atomic"
)

const (
	blockSize  = 16 // this gives about 0.35ms accuracy for envelope and filter updates
	SampleRate = 44100
	BufferSize = 512

	// MaxBlock is the largest number of frames rendered in one pass. Longer
	// requests are split by the caller.
	MaxBlock = 4096
)

// DefaultPolyphony is used when an instrument doesn't specify one.
const DefaultPolyphony = 12

// ID identifies instruments and tracks.
type ID int

type Kind int

const (
	KindSampler Kind = iota
	KindSynth
)

func (k Kind) String() string {
	switch k {
	case KindSampler:
		return "sampler"
	case KindSynth:
		return "synth"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Voice is a single sounding instance of an instrument. Voices are owned by the
// render and are never shared between instruments.
type Voice interface {
	Start(pitch int, velocity float64)
	// Release enters the release phase of the voice.
	Release()
	// Stop fades the voice out as fast as possible without clicking.
	Stop()
	// Render adds the output of the voice to buf.
	Render(buf []float32)
	Done() bool
}

// Spec describes how to build an instrument. Exactly one of Sample and Synth must be set.
type Spec struct {
	Name      string
	Ref       string
	Sample    *Sample
	Synth     *SynthParams
	Polyphony int
}

var errNoSource = errors.New("instrument needs either a sample or synth parameters")

// Instrument is a sound source with a fixed set of preallocated voices.
type Instrument struct {
	ID        ID
	Name      string
	Ref       string
	Kind      Kind
	Polyphony int

	route  atomic.Int64
	voices []Voice
	buf    []float32
}

func NewInstrument(id ID, spec Spec) (*Instrument, error) {
	poly := spec.Polyphony
	if poly <= 0 {
		poly = DefaultPolyphony
	}
	inst := &Instrument{
		ID:        id,
		Name:      spec.Name,
		Ref:       spec.Ref,
		Polyphony: poly,
		voices:    make([]Voice, poly),
		buf:       make([]float32, MaxBlock),
	}
	switch {
	case spec.Sample != nil && spec.Synth != nil:
		return nil, errNoSource
	case spec.Sample != nil:
		if len(spec.Sample.Data) == 0 {
			return nil, fmt.Errorf("sample %s is empty", spec.Sample.Name)
		}
		inst.Kind = KindSampler
		for n := range inst.voices {
			inst.voices[n] = newSamplerVoice(spec.Sample)
		}
	case spec.Synth != nil:
		if err := spec.Synth.Validate(); err != nil {
			return nil, err
		}
		inst.Kind = KindSynth
		for n := range inst.voices {
			inst.voices[n] = newSynthVoice(*spec.Synth)
		}
	default:
		return nil, errNoSource
	}
	if inst.Name == "" {
		inst.Name = inst.Ref
	}
	return inst, nil
}

// Route returns the track the instrument renders into.
func (i *Instrument) Route() ID { return ID(i.route.Load()) }

func (i *Instrument) SetRoute(track ID) { i.route.Store(int64(track)) }

func (i *Instrument) dispose() {
	i.voices = nil
	i.buf = nil
}
