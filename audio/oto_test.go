package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

type constProcessor float32

func (c constProcessor) Process(out [][]float32) {
	for n := range out[0] {
		out[0][n] = float32(c)
		out[1][n] = -float32(c)
	}
}

func TestFrameReader(t *testing.T) {
	r := newFrameReader(constProcessor(0.25))
	p := make([]byte, 4*bytesPerFrame+3)
	n, err := r.Read(p)
	if err != nil {
		t.Fatal(err)
	}
	if want := 4 * bytesPerFrame; n != want {
		t.Fatalf("want %v bytes, got %v", want, n)
	}
	for f := 0; f < 4; f++ {
		l := math.Float32frombits(binary.LittleEndian.Uint32(p[f*bytesPerFrame:]))
		r := math.Float32frombits(binary.LittleEndian.Uint32(p[f*bytesPerFrame+4:]))
		if l != 0.25 || r != -0.25 {
			t.Errorf("frame %d: want (0.25, -0.25), got (%v, %v)", f, l, r)
		}
	}
}
