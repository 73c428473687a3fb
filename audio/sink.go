package audio

import (
	"github.com/gordonklaus/portaudio"
)

// Processor fills a block of stereo output.
type Processor interface {
	Process(out [][]float32)
}

// Output is an audio device pulling from a Processor.
type Output interface {
	Start() error
	Close() error
}

// Sink plays a Processor through the default portaudio device.
type Sink struct {
	proc   Processor
	stream *portaudio.Stream
}

func NewSink(proc Processor, bufferSize int) (*Sink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	s := &Sink{proc: proc}
	stream, err := portaudio.OpenDefaultStream(0, 2, SampleRate, bufferSize, s.process)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	s.stream = stream
	return s, nil
}

func (s *Sink) Start() error {
	return s.stream.Start()
}

func (s *Sink) Close() error {
	err := s.stream.Close()
	portaudio.Terminate()
	return err
}

func (s *Sink) process(samples [][]float32) {
	s.proc.Process(samples)
}
