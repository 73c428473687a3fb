package project

import (
	"fmt"
	"io"
	"math"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// ticksPerQuarter is the SMF resolution used for export. Piano roll ticks are
// sixteenth notes.
const (
	ticksPerQuarter = 96
	ticksPerStep    = ticksPerQuarter / 4
)

type midiEvent struct {
	tick uint32
	on   bool
	key  uint8
	vel  uint8
}

// WriteMIDI writes the tempo and the piano roll notes of s as a multi track SMF
// file, one track per channel on MIDI channel index mod 16.
func WriteMIDI(w io.Writer, s Snapshot) error {
	file := smf.New()
	file.TimeFormat = smf.MetricTicks(ticksPerQuarter)

	var tempo smf.Track
	tempo.Add(0, smf.MetaTempo(s.Tempo))
	tempo.Close(0)
	if err := file.Add(tempo); err != nil {
		return err
	}

	for ci, ch := range s.Channels {
		var events []midiEvent
		for _, n := range s.Notes {
			if n.TrackRef != ci {
				continue
			}
			start := uint32(n.Start * ticksPerStep)
			end := uint32((n.Start + max(n.Duration, 1)) * ticksPerStep)
			vel := uint8(math.Round(min(max(n.Velocity, 0), 1) * 127))
			events = append(events,
				midiEvent{tick: start, on: true, key: uint8(n.Pitch), vel: max(vel, 1)},
				midiEvent{tick: end, key: uint8(n.Pitch)},
			)
		}
		// note-offs first so repeated notes don't cut each other
		sort.SliceStable(events, func(i, j int) bool {
			if events[i].tick != events[j].tick {
				return events[i].tick < events[j].tick
			}
			return !events[i].on && events[j].on
		})

		var tr smf.Track
		tr.Add(0, smf.MetaTrackSequenceName(ch.Name))
		channel := uint8(ci % 16)
		var last uint32
		for _, ev := range events {
			delta := ev.tick - last
			last = ev.tick
			if ev.on {
				tr.Add(delta, midi.NoteOn(channel, ev.key, ev.vel))
			} else {
				tr.Add(delta, midi.NoteOff(channel, ev.key))
			}
		}
		tr.Close(0)
		if err := file.Add(tr); err != nil {
			return err
		}
	}
	_, err := file.WriteTo(w)
	return err
}

// ReadMIDI reads the notes of an SMF file. The MIDI channel of a note becomes
// its TrackRef. The tempo is 0 when the file has no tempo event.
func ReadMIDI(r io.Reader) (notes []Note, tempo float64, err error) {
	file, err := smf.ReadFrom(r)
	if err != nil {
		return nil, 0, fmt.Errorf("read smf: %w", err)
	}
	resolution, ok := file.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, 0, fmt.Errorf("unsupported smf time format %v", file.TimeFormat)
	}
	perStep := float64(resolution) / 4

	type pending struct {
		tick uint32
		vel  uint8
	}
	for _, tr := range file.Tracks {
		open := make(map[[2]uint8][]pending)
		var tick uint32
		for _, ev := range tr {
			tick += ev.Delta
			var bpm float64
			if ev.Message.GetMetaTempo(&bpm) {
				if tempo == 0 {
					tempo = bpm
				}
				continue
			}
			msg := midi.Message(ev.Message)
			var channel, key, vel uint8
			switch {
			case msg.GetNoteStart(&channel, &key, &vel):
				k := [2]uint8{channel, key}
				open[k] = append(open[k], pending{tick: tick, vel: vel})
			case msg.GetNoteEnd(&channel, &key):
				k := [2]uint8{channel, key}
				if len(open[k]) == 0 {
					continue
				}
				p := open[k][0]
				open[k] = open[k][1:]
				start := int64(math.Round(float64(p.tick) / perStep))
				end := int64(math.Round(float64(tick) / perStep))
				notes = append(notes, Note{
					Pitch:    int(key),
					Start:    start,
					Duration: max(end-start, 1),
					Velocity: float64(p.vel) / 127,
					TrackRef: int(channel),
				})
			}
		}
	}
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].TrackRef != notes[j].TrackRef {
			return notes[i].TrackRef < notes[j].TrackRef
		}
		return notes[i].Start < notes[j].Start
	})
	return notes, tempo, nil
}
