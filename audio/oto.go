package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/ebitengine/oto/v3"
)

// OtoOutput plays a Processor through an oto player. The player pulls
// interleaved float32 frames from the processor on its own goroutine.
type OtoOutput struct {
	ctx    *oto.Context
	player *oto.Player
	src    *frameReader
}

func NewOtoOutput(proc Processor, bufferSize int) (*OtoOutput, error) {
	op := &oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
		BufferSize:   time.Duration(bufferSize) * time.Second / SampleRate,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	return &OtoOutput{ctx: ctx, src: newFrameReader(proc)}, nil
}

func (o *OtoOutput) Start() error {
	o.player = o.ctx.NewPlayer(o.src)
	o.player.Play()
	return nil
}

func (o *OtoOutput) Close() error {
	if o.player == nil {
		return nil
	}
	return o.player.Close()
}

const bytesPerFrame = 8

type frameReader struct {
	proc  Processor
	out   [][]float32
	block [][]float32
}

func newFrameReader(proc Processor) *frameReader {
	return &frameReader{
		proc:  proc,
		out:   [][]float32{make([]float32, MaxBlock), make([]float32, MaxBlock)},
		block: make([][]float32, 2),
	}
}

func (r *frameReader) Read(p []byte) (int, error) {
	frames := min(len(p)/bytesPerFrame, MaxBlock)
	if frames == 0 {
		return 0, nil
	}
	left, right := r.out[0][:frames], r.out[1][:frames]
	r.block[0], r.block[1] = left, right
	r.proc.Process(r.block)
	for n := range left {
		binary.LittleEndian.PutUint32(p[n*bytesPerFrame:], math.Float32bits(left[n]))
		binary.LittleEndian.PutUint32(p[n*bytesPerFrame+4:], math.Float32bits(right[n]))
	}
	return frames * bytesPerFrame, nil
}
