package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/youpy/go-wav"
)

const rootPitch = 60

const (
	wavFormatPCM = 1

	sampleRelease = 0.05
	stopTime      = 0.003
)

// ErrUnsupportedFormat is matched by every UnsupportedFormatError.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

type UnsupportedFormatError struct {
	Name   string
	Reason string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("%s: unsupported audio format: %s", e.Name, e.Reason)
}

func (e *UnsupportedFormatError) Is(target error) bool { return target == ErrUnsupportedFormat }

// Sample is a decoded mono sound.
type Sample struct {
	Name string
	Data []float32
	Rate float64
}

// SampleReader is what the WAV decoder needs to find its chunks.
type SampleReader interface {
	io.Reader
	io.ReaderAt
}

// LoadSample decodes a PCM WAV file, mixing all channels down to mono.
func LoadSample(name string, r SampleReader) (*Sample, error) {
	var header [12]byte
	if _, err := r.ReadAt(header[:], 0); err != nil {
		return nil, &UnsupportedFormatError{Name: name, Reason: "file too short"}
	}
	if !bytes.Equal(header[0:4], []byte("RIFF")) || !bytes.Equal(header[8:12], []byte("WAVE")) {
		return nil, &UnsupportedFormatError{Name: name, Reason: "not a RIFF/WAVE file"}
	}

	rd := wav.NewReader(r)
	format, err := rd.Format()
	if err != nil {
		return nil, &UnsupportedFormatError{Name: name, Reason: err.Error()}
	}
	if format.AudioFormat != wavFormatPCM {
		return nil, &UnsupportedFormatError{Name: name, Reason: fmt.Sprintf("encoding %d is not PCM", format.AudioFormat)}
	}
	switch format.BitsPerSample {
	case 8, 16, 24, 32:
	default:
		return nil, &UnsupportedFormatError{Name: name, Reason: fmt.Sprintf("%d bits per sample", format.BitsPerSample)}
	}
	if format.NumChannels == 0 || format.SampleRate == 0 {
		return nil, &UnsupportedFormatError{Name: name, Reason: "missing channel count or sample rate"}
	}

	snd := Sample{Name: name, Rate: float64(format.SampleRate)}
	channels := uint(format.NumChannels)
	for {
		samples, err := rd.ReadSamples()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		for _, sample := range samples {
			var sum float64
			for ch := uint(0); ch < channels; ch++ {
				sum += rd.FloatValue(sample, ch)
			}
			snd.Data = append(snd.Data, float32(sum/float64(channels)))
		}
	}
	if len(snd.Data) == 0 {
		return nil, &UnsupportedFormatError{Name: name, Reason: "no audio data"}
	}
	return &snd, nil
}

func LoadSampleFile(path string) (*Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadSample(filepath.Base(path), f)
}

type samplerVoice struct {
	sample   *Sample
	env      envelope
	pos      float64
	step     float64
	velocity float64
}

func newSamplerVoice(s *Sample) *samplerVoice {
	return &samplerVoice{
		sample: s,
		env:    envelope{attack: minEnvTime, sustain: 1, release: sampleRelease},
	}
}

// Start plays the sample transposed relative to the root pitch.
func (v *samplerVoice) Start(pitch int, velocity float64) {
	v.pos = 0
	v.velocity = velocity
	v.step = math.Pow(2, float64(pitch-rootPitch)/12) * v.sample.Rate / SampleRate
	v.env.startAttack()
}

func (v *samplerVoice) Release() { v.env.startRelease(v.env.release) }

func (v *samplerVoice) Stop() { v.env.startRelease(stopTime) }

func (v *samplerVoice) Render(buf []float32) {
	data := v.sample.Data
	for n := range buf {
		if v.env.done() {
			return
		}
		i := int(v.pos)
		if i >= len(data)-1 {
			v.env.state = stateIdle
			return
		}
		frac := float32(v.pos - float64(i))
		s := data[i] + (data[i+1]-data[i])*frac
		buf[n] += s * float32(v.env.value()*v.velocity)
		v.pos += v.step
	}
}

func (v *samplerVoice) Done() bool { return v.env.done() }
