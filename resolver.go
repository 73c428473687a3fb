package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mrdg/rack/audio"
)

const (
	samplePrefix = "sample:"
	synthPrefix  = "synth:"
)

var errBadRef = errors.New("invalid instrument reference")

// resolveInstrument builds an instrument spec from a reference of the form
// sample:<path> or synth:<preset>.
func resolveInstrument(ref string) (audio.Spec, error) {
	switch {
	case strings.HasPrefix(ref, samplePrefix):
		path := strings.TrimPrefix(ref, samplePrefix)
		s, err := audio.LoadSampleFile(path)
		if err != nil {
			return audio.Spec{}, err
		}
		return audio.Spec{Name: displayName(path), Ref: ref, Sample: s}, nil
	case strings.HasPrefix(ref, synthPrefix):
		name := strings.TrimPrefix(ref, synthPrefix)
		params, err := audio.LoadPreset(name)
		if err != nil {
			return audio.Spec{}, err
		}
		return audio.Spec{Name: name, Ref: ref, Synth: &params}, nil
	default:
		return audio.Spec{}, fmt.Errorf("%w: %q (want %s<path> or %s<preset>)", errBadRef, ref, samplePrefix, synthPrefix)
	}
}

// instrumentRef expands the shorthand accepted on the command line: a path to
// a .wav file or the name of a preset.
func instrumentRef(s string) string {
	switch {
	case strings.HasPrefix(s, samplePrefix), strings.HasPrefix(s, synthPrefix):
		return s
	case strings.EqualFold(filepath.Ext(s), ".wav"):
		return samplePrefix + s
	default:
		return synthPrefix + s
	}
}
