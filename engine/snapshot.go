package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/mrdg/rack/audio"
	"github.com/mrdg/rack/project"
	"github.com/mrdg/rack/seq"
)

// Resolver builds instruments from the references stored in snapshots.
type Resolver interface {
	Resolve(ref string) (audio.Spec, error)
}

type ResolverFunc func(ref string) (audio.Spec, error)

func (f ResolverFunc) Resolve(ref string) (audio.Spec, error) { return f(ref) }

// Snapshot captures the current project.
func (e *Engine) Snapshot() project.Snapshot {
	e.editMu.Lock()
	defer e.editMu.Unlock()

	s := project.Snapshot{
		UpdatedAt:  time.Now().UTC(),
		Tempo:      e.clock.Tempo(),
		MasterGain: e.currentMixer().MasterGain(),
	}
	trackIndex := make(map[audio.ID]int)
	for n, t := range e.Tracks() {
		trackIndex[t.ID] = n
		tr := project.Track{
			Name:  t.Name,
			Gain:  t.Gain,
			Pan:   t.Pan,
			Muted: t.Muted,
			Solo:  t.Solo,
		}
		for _, fx := range t.Effects {
			tr.Effects = append(tr.Effects, project.Effect{
				Type:   string(fx.Type),
				Wet:    fx.Wet,
				Params: fx.Params,
			})
		}
		s.Tracks = append(s.Tracks, tr)
	}
	for n, ch := range e.Channels() {
		track, ok := trackIndex[ch.Track]
		if !ok {
			track = project.NoTrack
		}
		s.Channels = append(s.Channels, project.Channel{
			Name:          ch.Name,
			Muted:         ch.Muted,
			Pattern:       ch.Steps,
			InstrumentRef: ch.Instrument,
			Pitch:         ch.Pitch,
			Track:         track,
			Polyphony:     ch.Polyphony,
		})
		for _, note := range e.notes.Notes(ch.ID) {
			s.Notes = append(s.Notes, project.Note{
				Pitch:    note.Pitch,
				Start:    note.Start,
				Duration: note.Duration,
				Velocity: note.Velocity,
				TrackRef: n,
			})
		}
	}
	return s
}

// Restore replaces the whole project with s. Everything is validated and every
// instrument is built before the running state is touched, so a failed
// restore leaves the engine as it was.
func (e *Engine) Restore(s project.Snapshot, r Resolver) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}

	e.editMu.Lock()
	defer e.editMu.Unlock()

	mixer := audio.NewMixerBus(e.meterDecay)
	mixer.SetMasterGain(s.MasterGain)
	trackIDs := make([]audio.ID, len(s.Tracks))
	for n, tr := range s.Tracks {
		t := mixer.AddTrack(tr.Name)
		t.SetGain(tr.Gain)
		t.SetPan(tr.Pan)
		t.SetMuted(tr.Muted)
		t.SetSolo(tr.Solo)
		for _, fx := range tr.Effects {
			typ, err := audio.ParseEffectType(fx.Type)
			if err != nil {
				return fmt.Errorf("track %d: %w", n, err)
			}
			if _, err := t.Effects.Add(typ); err != nil {
				return fmt.Errorf("track %d: %w", n, err)
			}
			t.Effects.SetWet(typ, fx.Wet)
			for key, value := range fx.Params {
				if err := t.Effects.Set(typ, key, value); err != nil {
					return fmt.Errorf("track %d: %w", n, err)
				}
			}
		}
		trackIDs[n] = t.ID
	}

	pool := audio.NewVoicePool()
	chans := make([]seq.Channel, len(s.Channels))
	parts := make([]seq.Part, len(s.Channels))
	nextID := e.nextID
	for n, ch := range s.Channels {
		spec, err := r.Resolve(ch.InstrumentRef)
		if err != nil {
			return fmt.Errorf("channel %d: %w", n, err)
		}
		spec.Ref = ch.InstrumentRef
		if ch.Polyphony > 0 {
			spec.Polyphony = ch.Polyphony
		}
		nextID++
		inst, err := audio.NewInstrument(nextID, spec)
		if err != nil {
			return fmt.Errorf("channel %d: %w", n, err)
		}
		var track audio.ID
		if ch.Track != project.NoTrack {
			track = trackIDs[ch.Track]
		}
		inst.SetRoute(track)
		pool.Add(inst)
		chans[n] = seq.Channel{
			ID:    nextID,
			Name:  ch.Name,
			Muted: ch.Muted,
			Steps: ch.Pattern,
			Pitch: ch.Pitch,
			Track: track,
		}
		parts[n] = seq.Part{Instrument: nextID, Track: track}
	}
	for _, note := range s.Notes {
		p := &parts[note.TrackRef]
		p.Notes = append(p.Notes, seq.Note{
			Pitch:    note.Pitch,
			Start:    note.Start,
			Duration: note.Duration,
			Velocity: note.Velocity,
		})
	}

	e.mu.Lock()
	e.clock.Stop()
	e.pool.FlushAll(e.frame)
	old := e.pool
	e.pool = pool
	e.mixer = mixer
	e.previews = e.previews[:0]
	e.patterns.Replace(chans)
	e.notes.Replace(parts)
	e.clock.SetTempo(s.Tempo)
	e.mu.Unlock()

	for _, inst := range old.Instruments() {
		old.Remove(inst.ID, 0)
	}
	e.nextID = nextID
	e.log.Info("project restored", "channels", len(chans), "tracks", len(trackIDs), "notes", len(s.Notes))
	e.notify.send(Change{Kind: ProjectLoaded})
	return nil
}

// Save stores a snapshot of the project for user.
func (e *Engine) Save(ctx context.Context, store project.Store, user string) (project.Revision, error) {
	return store.Save(ctx, user, e.Snapshot())
}

// Load restores the latest project of user.
func (e *Engine) Load(ctx context.Context, store project.Store, user string, r Resolver) error {
	s, err := store.Load(ctx, user)
	if err != nil {
		return err
	}
	if err := e.Restore(s, r); err != nil {
		return &project.PersistenceError{Op: "load", User: user, Err: err}
	}
	return nil
}
