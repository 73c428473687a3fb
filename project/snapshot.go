// Package project describes the saved state of a rack project.
package project

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Snapshot is the serializable state of a project. Channels, tracks and notes
// refer to each other by index.
type Snapshot struct {
	UpdatedAt  time.Time `yaml:"updatedAt" json:"updatedAt"`
	Tempo      float64   `yaml:"tempo" json:"tempo"`
	MasterGain float64   `yaml:"masterGain" json:"masterGain"`
	Channels   []Channel `yaml:"channels" json:"channels"`
	Tracks     []Track   `yaml:"tracks" json:"tracks"`
	Notes      []Note    `yaml:"notes" json:"notes"`
}

// NoTrack is the track index of a channel that isn't routed anywhere.
const NoTrack = -1

type Channel struct {
	Name          string    `yaml:"name" json:"name"`
	Muted         bool      `yaml:"muted" json:"muted"`
	Pattern       []float64 `yaml:"pattern,flow" json:"pattern"`
	InstrumentRef string    `yaml:"instrumentRef" json:"instrumentRef"`
	Pitch         int       `yaml:"pitch" json:"pitch"`
	Track         int       `yaml:"track" json:"track"`
	Polyphony     int       `yaml:"polyphony,omitempty" json:"polyphony,omitempty"`
}

type Track struct {
	Name    string   `yaml:"name" json:"name"`
	Gain    float64  `yaml:"gain" json:"gain"`
	Pan     float64  `yaml:"pan" json:"pan"`
	Muted   bool     `yaml:"muted" json:"muted"`
	Solo    bool     `yaml:"solo" json:"solo"`
	Effects []Effect `yaml:"effects,omitempty" json:"effects,omitempty"`
}

type Effect struct {
	Type   string             `yaml:"type" json:"type"`
	Wet    float64            `yaml:"wet" json:"wet"`
	Params map[string]float64 `yaml:"params,omitempty" json:"params,omitempty"`
}

// Note is a piano roll note. TrackRef is the index of the channel whose
// instrument plays it.
type Note struct {
	Pitch    int     `yaml:"pitch" json:"pitch"`
	Start    int64   `yaml:"start" json:"start"`
	Duration int64   `yaml:"duration" json:"duration"`
	Velocity float64 `yaml:"velocity" json:"velocity"`
	TrackRef int     `yaml:"trackRef" json:"trackRef"`
}

// Validate reports every inconsistency of the snapshot.
func (s Snapshot) Validate() error {
	var errs []error
	if math.IsNaN(s.Tempo) || s.Tempo <= 0 {
		errs = append(errs, fmt.Errorf("invalid tempo %v", s.Tempo))
	}
	for n, ch := range s.Channels {
		if ch.InstrumentRef == "" {
			errs = append(errs, fmt.Errorf("channel %d: missing instrument", n))
		}
		if len(ch.Pattern) == 0 {
			errs = append(errs, fmt.Errorf("channel %d: empty pattern", n))
		}
		if ch.Track != NoTrack && (ch.Track < 0 || ch.Track >= len(s.Tracks)) {
			errs = append(errs, fmt.Errorf("channel %d: track %d does not exist", n, ch.Track))
		}
		if ch.Pitch < 0 || ch.Pitch > 127 {
			errs = append(errs, fmt.Errorf("channel %d: pitch %d out of range", n, ch.Pitch))
		}
	}
	for n, tr := range s.Tracks {
		seen := make(map[string]bool)
		for _, fx := range tr.Effects {
			if seen[fx.Type] {
				errs = append(errs, fmt.Errorf("track %d: duplicate %s effect", n, fx.Type))
			}
			seen[fx.Type] = true
		}
	}
	for n, note := range s.Notes {
		if note.TrackRef < 0 || note.TrackRef >= len(s.Channels) {
			errs = append(errs, fmt.Errorf("note %d: channel %d does not exist", n, note.TrackRef))
		}
		if note.Pitch < 0 || note.Pitch > 127 {
			errs = append(errs, fmt.Errorf("note %d: pitch %d out of range", n, note.Pitch))
		}
		if note.Start < 0 {
			errs = append(errs, fmt.Errorf("note %d: negative start", n))
		}
	}
	return errors.Join(errs...)
}
