package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mrdg/rack/audio"
)

func writeTestWav(t *testing.T, dir, name string) string {
	t.Helper()
	left := make([]float32, 256)
	right := make([]float32, 256)
	for i := range left {
		left[i] = float32(i%32) / 32
		right[i] = -left[i]
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := audio.WriteWav(f, left, right); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestResolveInstrument(t *testing.T) {
	path := writeTestWav(t, t.TempDir(), "snare.wav")

	spec, err := resolveInstrument(samplePrefix + path)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Sample == nil || spec.Synth != nil {
		t.Fatalf("want a sample spec, got %+v", spec)
	}
	if spec.Name != "snare" || spec.Ref != samplePrefix+path {
		t.Errorf("unexpected name/ref: %q %q", spec.Name, spec.Ref)
	}
	if len(spec.Sample.Data) != 256 {
		t.Errorf("want 256 frames, got %d", len(spec.Sample.Data))
	}

	spec, err = resolveInstrument("synth:pluck")
	if err != nil {
		t.Fatal(err)
	}
	if spec.Synth == nil || spec.Name != "pluck" {
		t.Errorf("want pluck synth, got %+v", spec)
	}
}

func TestResolveInstrumentErrors(t *testing.T) {
	dir := t.TempDir()
	text := filepath.Join(dir, "notes.wav")
	if err := os.WriteFile(text, []byte("not a wav file at all, just text"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := resolveInstrument("kick.wav"); !errors.Is(err, errBadRef) {
		t.Errorf("want errBadRef, got %v", err)
	}
	if _, err := resolveInstrument("synth:theremin"); err == nil {
		t.Error("expected error for unknown preset")
	}
	if _, err := resolveInstrument(samplePrefix + filepath.Join(dir, "missing.wav")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := resolveInstrument(samplePrefix + text); !errors.Is(err, audio.ErrUnsupportedFormat) {
		t.Errorf("want ErrUnsupportedFormat, got %v", err)
	}
}

func TestInstrumentRef(t *testing.T) {
	tests := []struct{ in, want string }{
		{"kick.wav", "sample:kick.wav"},
		{"drums/Snare.WAV", "sample:drums/Snare.WAV"},
		{"pluck", "synth:pluck"},
		{"synth:3xosc", "synth:3xosc"},
		{"sample:a.wav", "sample:a.wav"},
	}
	for _, test := range tests {
		if got := instrumentRef(test.in); got != test.want {
			t.Errorf("%s: want %s, got %s", test.in, test.want, got)
		}
	}
}
