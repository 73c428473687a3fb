package seq

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/mrdg/rack/audio"
)

var ErrUnknownNote = errors.New("unknown note")

const DefaultVelocity = 0.8

type NoteID int

// Note is a piano roll note. Start and Duration are in ticks.
type Note struct {
	ID       NoteID
	Pitch    int
	Start    int64
	Duration int64
	Velocity float64
}

// Part holds the notes of one instrument sorted by start.
type Part struct {
	Instrument audio.ID
	Track      audio.ID
	Notes      []Note
}

func (p Part) clone() Part {
	p.Notes = append([]Note(nil), p.Notes...)
	return p
}

type openNote struct {
	inst  audio.ID
	pitch int
	end   int64
}

// NoteScheduler plays piano roll notes independently of the step patterns.
type NoteScheduler struct {
	voices Voices
	mixer  Audibility

	mu     sync.Mutex
	parts  atomic.Pointer[[]Part]
	nextID NoteID

	open []openNote
}

func NewNoteScheduler(voices Voices, mixer Audibility) *NoteScheduler {
	s := &NoteScheduler{
		voices: voices,
		mixer:  mixer,
		open:   make([]openNote, 0, maxGates),
	}
	s.parts.Store(&[]Part{})
	return s
}

// OnTick ends the notes due at this tick before starting new ones. Ends are
// tracked by tick index so loop wraps and edits never leave a note hanging.
func (s *NoteScheduler) OnTick(t Tick) {
	open := s.open[:0]
	for _, n := range s.open {
		if n.end <= t.Index {
			s.voices.Release(n.inst, n.pitch, t.Frame)
		} else {
			open = append(open, n)
		}
	}
	s.open = open

	for _, part := range *s.parts.Load() {
		notes := part.Notes
		i := sort.Search(len(notes), func(i int) bool { return notes[i].Start >= t.Pos })
		for ; i < len(notes) && notes[i].Start == t.Pos; i++ {
			if (s.mixer != nil && !s.mixer.Audible(part.Track)) || len(s.open) == cap(s.open) {
				break
			}
			n := notes[i]
			s.voices.Trigger(part.Instrument, n.Pitch, n.Velocity, t.Frame)
			s.open = append(s.open, openNote{inst: part.Instrument, pitch: n.Pitch, end: t.Index + n.Duration})
		}
	}
}

func (s *NoteScheduler) OnFlush() {
	s.open = s.open[:0]
}

func (s *NoteScheduler) AddPart(inst, track audio.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := *s.parts.Load()
	for _, p := range old {
		if p.Instrument == inst {
			return
		}
	}
	parts := make([]Part, len(old), len(old)+1)
	copy(parts, old)
	s.parts.Store(ptr(append(parts, Part{Instrument: inst, Track: track})))
}

func (s *NoteScheduler) RemovePart(inst audio.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := *s.parts.Load()
	parts := make([]Part, 0, len(old))
	for _, p := range old {
		if p.Instrument != inst {
			parts = append(parts, p)
		}
	}
	s.parts.Store(&parts)
}

// Replace swaps all parts at once, assigning fresh note IDs.
func (s *NoteScheduler) Replace(parts []Part) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Part, len(parts))
	for n, p := range parts {
		p = p.clone()
		for i := range p.Notes {
			p.Notes[i] = s.normalize(p.Notes[i])
		}
		sortNotes(p.Notes)
		out[n] = p
	}
	s.parts.Store(&out)
}

func (s *NoteScheduler) Parts() []Part {
	parts := *s.parts.Load()
	out := make([]Part, len(parts))
	for n, p := range parts {
		out[n] = p.clone()
	}
	return out
}

// Notes returns the notes of an instrument in start order.
func (s *NoteScheduler) Notes(inst audio.ID) []Note {
	for _, p := range *s.parts.Load() {
		if p.Instrument == inst {
			return append([]Note(nil), p.Notes...)
		}
	}
	return nil
}

func (s *NoteScheduler) update(inst audio.ID, f func(p *Part) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := *s.parts.Load()
	for n := range old {
		if old[n].Instrument != inst {
			continue
		}
		p := old[n].clone()
		if err := f(&p); err != nil {
			return err
		}
		sortNotes(p.Notes)
		parts := make([]Part, len(old))
		copy(parts, old)
		parts[n] = p
		s.parts.Store(&parts)
		return nil
	}
	return fmt.Errorf("%w: %d", ErrUnknownChannel, inst)
}

// normalize assigns an ID and corrects out of range values. Callers hold mu.
func (s *NoteScheduler) normalize(n Note) Note {
	s.nextID++
	n.ID = s.nextID
	n.Pitch = clampPitch(n.Pitch)
	n.Start = max(n.Start, 0)
	n.Duration = max(n.Duration, 1)
	n.Velocity = clampVelocity(n.Velocity)
	return n
}

func (s *NoteScheduler) AddNote(inst audio.ID, n Note) (NoteID, error) {
	var id NoteID
	err := s.update(inst, func(p *Part) error {
		n = s.normalize(n)
		id = n.ID
		p.Notes = append(p.Notes, n)
		return nil
	})
	return id, err
}

func (s *NoteScheduler) SetNotes(inst audio.ID, notes []Note) error {
	return s.update(inst, func(p *Part) error {
		p.Notes = make([]Note, len(notes))
		for i, n := range notes {
			p.Notes[i] = s.normalize(n)
		}
		return nil
	})
}

func (s *NoteScheduler) SetTrack(inst, track audio.ID) error {
	return s.update(inst, func(p *Part) error {
		p.Track = track
		return nil
	})
}

func findNote(p *Part, id NoteID) (int, error) {
	for i, n := range p.Notes {
		if n.ID == id {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %d", ErrUnknownNote, id)
}

func (s *NoteScheduler) RemoveNote(inst audio.ID, id NoteID) error {
	return s.update(inst, func(p *Part) error {
		i, err := findNote(p, id)
		if err != nil {
			return err
		}
		p.Notes = append(p.Notes[:i], p.Notes[i+1:]...)
		return nil
	})
}

func (s *NoteScheduler) MoveNote(inst audio.ID, id NoteID, start int64, pitch int) error {
	return s.update(inst, func(p *Part) error {
		i, err := findNote(p, id)
		if err != nil {
			return err
		}
		p.Notes[i].Start = max(start, 0)
		p.Notes[i].Pitch = clampPitch(pitch)
		return nil
	})
}

func (s *NoteScheduler) ResizeNote(inst audio.ID, id NoteID, duration int64) error {
	return s.update(inst, func(p *Part) error {
		i, err := findNote(p, id)
		if err != nil {
			return err
		}
		p.Notes[i].Duration = max(duration, 1)
		return nil
	})
}

// ToggleNote removes the note at pitch and start, or adds a one tick note if
// there is none. It reports whether a note was added.
func (s *NoteScheduler) ToggleNote(inst audio.ID, pitch int, start int64) (bool, error) {
	var added bool
	err := s.update(inst, func(p *Part) error {
		for i, n := range p.Notes {
			if n.Pitch == pitch && n.Start == start {
				p.Notes = append(p.Notes[:i], p.Notes[i+1:]...)
				return nil
			}
		}
		added = true
		p.Notes = append(p.Notes, s.normalize(Note{
			Pitch:    pitch,
			Start:    start,
			Duration: 1,
			Velocity: DefaultVelocity,
		}))
		return nil
	})
	return added, err
}

func (s *NoteScheduler) Quantize(inst audio.ID, grid int64) error {
	if grid < 1 {
		return fmt.Errorf("invalid quantize grid %d", grid)
	}
	return s.update(inst, func(p *Part) error {
		p.Notes = QuantizeNotes(p.Notes, grid)
		return nil
	})
}

func sortNotes(notes []Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].Start != notes[j].Start {
			return notes[i].Start < notes[j].Start
		}
		return notes[i].Pitch < notes[j].Pitch
	})
}
