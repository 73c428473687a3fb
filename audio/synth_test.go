package audio

import (
	"math"
	"testing"
)

func TestPresetsAreValid(t *testing.T) {
	for _, name := range PresetNames() {
		p, err := LoadPreset(name)
		if err != nil {
			t.Fatal(err)
		}
		if err := p.Validate(); err != nil {
			t.Errorf("preset %s: %v", name, err)
		}
	}
	if _, err := LoadPreset("missing"); err == nil {
		t.Errorf("expected error for unknown preset")
	}
}

func TestSynthParamsValidate(t *testing.T) {
	base, _ := LoadPreset("3xosc")
	tests := []func(p *SynthParams){
		func(p *SynthParams) { p.Osc1 = "noise" },
		func(p *SynthParams) { p.Cutoff = 0 },
		func(p *SynthParams) { p.Sustain = 2 },
		func(p *SynthParams) { p.Release = -1 },
	}
	for n, modify := range tests {
		p := base
		modify(&p)
		if err := p.Validate(); err == nil {
			t.Errorf("test %d: expected validation error", n)
		}
	}
}

func TestSynthVoiceRelease(t *testing.T) {
	p, _ := LoadPreset("3xosc")
	v := newSynthVoice(p)
	v.Start(69, 1)

	buf := make([]float32, 1024)
	v.Render(buf)
	var peak float64
	for _, s := range buf {
		peak = math.Max(peak, math.Abs(float64(s)))
	}
	if peak == 0 {
		t.Fatalf("expected synth output")
	}

	v.Stop()
	for n := 0; n < 10 && !v.Done(); n++ {
		v.Render(buf)
	}
	if !v.Done() {
		t.Errorf("expected voice to be done after stop")
	}
}

func TestMidiToFreq(t *testing.T) {
	tests := []struct {
		note int
		freq float64
	}{
		{69, 440},
		{81, 880},
		{57, 220},
	}
	for _, test := range tests {
		if got := midiToFreq(test.note); math.Abs(got-test.freq) > 1e-9 {
			t.Errorf("note %d: want %v, got %v", test.note, test.freq, got)
		}
	}
}
