package audio

import (
	"fmt"
	"io"

	"github.com/youpy/go-wav"
)

// WriteWav encodes a stereo signal as 16-bit PCM.
func WriteWav(w io.Writer, left, right []float32) error {
	if len(left) != len(right) {
		return fmt.Errorf("channel length mismatch: %d != %d", len(left), len(right))
	}
	samples := make([]wav.Sample, len(left))
	for n := range left {
		samples[n].Values[0] = toPCM16(left[n])
		samples[n].Values[1] = toPCM16(right[n])
	}
	ww := wav.NewWriter(w, uint32(len(samples)), 2, SampleRate, 16)
	return ww.WriteSamples(samples)
}

func toPCM16(v float32) int {
	v = min(max(v, -1), 1)
	return int(v * 32767)
}
