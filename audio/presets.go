package audio

import (
	"fmt"
	"sort"
)

var presets = map[string]SynthParams{
	"3xosc": {
		Osc1:    "saw",
		Osc2:    "saw",
		Detune:  7,
		Cutoff:  8000,
		Attack:  0.005,
		Decay:   0.1,
		Sustain: 0.3,
		Release: 1,
	},
	"lame-bass": {
		Osc1:    "saw",
		Osc2:    "saw",
		Cutoff:  900,
		Attack:  0.01,
		Decay:   0.1,
		Sustain: 0,
		Release: 0.1,
		Level:   3,
	},
	"pluck": {
		Osc1:    "square",
		Osc2:    "sine",
		Detune:  1200,
		Cutoff:  2500,
		Attack:  0.001,
		Decay:   0.25,
		Sustain: 0,
		Release: 0.05,
	},
}

func LoadPreset(name string) (SynthParams, error) {
	p, ok := presets[name]
	if !ok {
		return SynthParams{}, fmt.Errorf("unknown preset: %v", name)
	}
	return p, nil
}

func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
