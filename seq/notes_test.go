package seq

import (
	"errors"
	"reflect"
	"testing"
)

func TestNoteScheduler(t *testing.T) {
	voices := &testVoices{}
	s := NewNoteScheduler(voices, nil)
	s.AddPart(1, 1)
	s.AddNote(1, Note{Pitch: 60, Start: 0, Duration: 2, Velocity: 1})
	s.AddNote(1, Note{Pitch: 64, Start: 2, Duration: 1, Velocity: 1})

	for _, tick := range ticks(0, 4) {
		s.OnTick(tick)
	}
	want := []event{
		{on: true, inst: 1, pitch: 60, frame: 0},
		{inst: 1, pitch: 60, frame: 200},
		{on: true, inst: 1, pitch: 64, frame: 200},
		{inst: 1, pitch: 64, frame: 300},
	}
	if !reflect.DeepEqual(want, voices.events) {
		t.Errorf("want events %v, got %v", want, voices.events)
	}
}

func TestNoteOffSurvivesEdits(t *testing.T) {
	voices := &testVoices{}
	s := NewNoteScheduler(voices, nil)
	s.AddPart(1, 1)
	id, _ := s.AddNote(1, Note{Pitch: 60, Duration: 4, Velocity: 1})

	s.OnTick(Tick{Index: 0, Pos: 0})
	if err := s.RemoveNote(1, id); err != nil {
		t.Fatal(err)
	}
	// the loop wrapped back to position 0 before the note ended
	for n := int64(1); n < 5; n++ {
		s.OnTick(Tick{Index: n, Pos: n % 2, Frame: n})
	}
	want := []event{
		{on: true, inst: 1, pitch: 60},
		{inst: 1, pitch: 60, frame: 4},
	}
	if !reflect.DeepEqual(want, voices.events) {
		t.Errorf("want events %v, got %v", want, voices.events)
	}
}

func TestNoteEdits(t *testing.T) {
	s := NewNoteScheduler(&testVoices{}, nil)
	s.AddPart(1, 1)

	a, _ := s.AddNote(1, Note{Pitch: 60, Start: 8, Duration: 0, Velocity: 2})
	b, _ := s.AddNote(1, Note{Pitch: 62, Start: 4, Duration: 2, Velocity: 0.5})
	notes := s.Notes(1)
	if notes[0].ID != b || notes[1].ID != a {
		t.Errorf("want notes sorted by start, got %v", notes)
	}
	if notes[1].Duration != 1 || notes[1].Velocity != 1 {
		t.Errorf("want duration and velocity corrected, got %+v", notes[1])
	}

	if err := s.MoveNote(1, a, 0, 48); err != nil {
		t.Fatal(err)
	}
	if err := s.ResizeNote(1, a, -3); err != nil {
		t.Fatal(err)
	}
	notes = s.Notes(1)
	if want := (Note{ID: a, Pitch: 48, Start: 0, Duration: 1, Velocity: 1}); notes[0] != want {
		t.Errorf("want %+v, got %+v", want, notes[0])
	}

	if err := s.RemoveNote(1, 99); !errors.Is(err, ErrUnknownNote) {
		t.Errorf("want ErrUnknownNote, got %v", err)
	}
	if _, err := s.AddNote(5, Note{}); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("want ErrUnknownChannel, got %v", err)
	}
}

func TestToggleNote(t *testing.T) {
	s := NewNoteScheduler(&testVoices{}, nil)
	s.AddPart(1, 1)

	added, err := s.ToggleNote(1, 60, 4)
	if err != nil || !added {
		t.Fatalf("want note added, got %v %v", added, err)
	}
	notes := s.Notes(1)
	if len(notes) != 1 || notes[0].Duration != 1 || notes[0].Velocity != DefaultVelocity {
		t.Errorf("unexpected notes %v", notes)
	}
	added, _ = s.ToggleNote(1, 60, 4)
	if added || len(s.Notes(1)) != 0 {
		t.Errorf("second toggle should remove the note")
	}
}

func TestQuantize(t *testing.T) {
	notes := []Note{
		{ID: 1, Start: 1, Duration: 1},
		{ID: 2, Start: 2, Duration: 3},
		{ID: 3, Start: 5, Duration: 6},
		{ID: 4, Start: 7, Duration: 9},
	}
	want := []Note{
		{ID: 1, Start: 0, Duration: 4},
		{ID: 2, Start: 4, Duration: 4},
		{ID: 3, Start: 4, Duration: 8},
		{ID: 4, Start: 8, Duration: 8},
	}
	got := QuantizeNotes(notes, 4)
	if !reflect.DeepEqual(want, got) {
		t.Errorf("want %v, got %v", want, got)
	}
	if again := QuantizeNotes(got, 4); !reflect.DeepEqual(got, again) {
		t.Errorf("quantize is not idempotent: %v != %v", got, again)
	}
	for _, n := range got {
		if n.Duration < 4 {
			t.Errorf("note %d shorter than the grid: %v", n.ID, n.Duration)
		}
	}

	s := NewNoteScheduler(&testVoices{}, nil)
	s.AddPart(1, 1)
	if err := s.Quantize(1, 0); err == nil {
		t.Errorf("expected error for zero grid")
	}
}

func TestReplaceParts(t *testing.T) {
	s := NewNoteScheduler(&testVoices{}, nil)
	s.Replace([]Part{
		{Instrument: 1, Track: 2, Notes: []Note{{Pitch: 60, Start: 4, Duration: 1}, {Pitch: 62, Start: 0, Duration: 1}}},
	})
	parts := s.Parts()
	if len(parts) != 1 || parts[0].Track != 2 {
		t.Fatalf("unexpected parts %v", parts)
	}
	if notes := parts[0].Notes; notes[0].Pitch != 62 || notes[0].ID == notes[1].ID {
		t.Errorf("want sorted notes with distinct ids, got %v", notes)
	}
}
