package engine

import (
	"fmt"
	"strconv"
	"time"

	"github.com/mrdg/rack/audio"
	"github.com/mrdg/rack/seq"
)

func trackName(n int) string { return strconv.Itoa(n + 1) }

// ChannelInfo is a channel together with its instrument.
type ChannelInfo struct {
	seq.Channel
	Instrument string
	Kind       audio.Kind
	Polyphony  int
}

// AddChannel builds an instrument from spec and adds a channel playing it. New
// channels are routed to the tracks in turn.
func (e *Engine) AddChannel(name string, spec audio.Spec) (audio.ID, error) {
	e.editMu.Lock()
	defer e.editMu.Unlock()

	id := e.nextID + 1
	inst, err := audio.NewInstrument(id, spec)
	if err != nil {
		return 0, err
	}
	if name == "" {
		name = inst.Name
	}
	var track audio.ID
	if tracks := e.currentMixer().Tracks(); len(tracks) > 0 {
		track = tracks[len(e.patterns.Channels())%len(tracks)].ID
	}
	inst.SetRoute(track)

	e.currentPool().Add(inst)
	err = e.patterns.AddChannel(seq.Channel{
		ID:    id,
		Name:  name,
		Steps: make([]float64, e.steps),
		Pitch: seq.DefaultPitch,
		Track: track,
	})
	if err != nil {
		return 0, err
	}
	e.notes.AddPart(id, track)
	e.nextID = id

	e.log.Info("channel added", "id", id, "name", name, "instrument", inst.Kind, "track", track)
	e.notify.send(Change{Kind: ChannelsChanged, ID: int(id)})
	return id, nil
}

// RemoveChannel removes a channel and disposes its instrument after releasing
// its voices.
func (e *Engine) RemoveChannel(id audio.ID) error {
	e.editMu.Lock()
	defer e.editMu.Unlock()
	if err := e.patterns.RemoveChannel(id); err != nil {
		return err
	}
	e.notes.RemovePart(id)

	e.mu.Lock()
	e.pool.Remove(id, e.frame)
	pending := e.previews[:0]
	for _, p := range e.previews {
		if p.inst != id {
			pending = append(pending, p)
		}
	}
	e.previews = pending
	e.mu.Unlock()

	e.log.Info("channel removed", "id", id)
	e.notify.send(Change{Kind: ChannelsChanged, ID: int(id)})
	return nil
}

func (e *Engine) Channels() []ChannelInfo {
	pool := e.currentPool()
	chans := e.patterns.Channels()
	infos := make([]ChannelInfo, len(chans))
	for n, ch := range chans {
		infos[n].Channel = ch
		if inst, ok := pool.Instrument(ch.ID); ok {
			infos[n].Instrument = inst.Ref
			infos[n].Kind = inst.Kind
			infos[n].Polyphony = inst.Polyphony
		}
	}
	return infos
}

func (e *Engine) patternEdit(id audio.ID, err error) error {
	if err != nil {
		return err
	}
	e.notify.send(Change{Kind: PatternChanged, ID: int(id)})
	return nil
}

func (e *Engine) SetChannelMuted(id audio.ID, muted bool) error {
	return e.patternEdit(id, e.patterns.SetMuted(id, muted))
}

func (e *Engine) ToggleStep(id audio.ID, step int) (bool, error) {
	active, err := e.patterns.ToggleStep(id, step)
	return active, e.patternEdit(id, err)
}

func (e *Engine) SetStep(id audio.ID, step int, velocity float64) error {
	return e.patternEdit(id, e.patterns.SetStep(id, step, velocity))
}

func (e *Engine) SetSteps(id audio.ID, steps []float64) error {
	return e.patternEdit(id, e.patterns.SetSteps(id, steps))
}

func (e *Engine) ResizePattern(id audio.ID, length int) error {
	return e.patternEdit(id, e.patterns.Resize(id, length))
}

// ResizeAllPatterns changes the length of every pattern and the length used
// for new channels.
func (e *Engine) ResizeAllPatterns(length int) error {
	if length < 1 {
		return fmt.Errorf("invalid pattern length %d", length)
	}
	e.editMu.Lock()
	defer e.editMu.Unlock()
	e.steps = length
	for _, ch := range e.patterns.Channels() {
		if err := e.patterns.Resize(ch.ID, length); err != nil {
			return err
		}
	}
	e.notify.send(Change{Kind: PatternChanged})
	return nil
}

func (e *Engine) SetChannelPitch(id audio.ID, pitch int) error {
	return e.patternEdit(id, e.patterns.SetPitch(id, pitch))
}

// RouteChannel sends the output of a channel's instrument to a track.
func (e *Engine) RouteChannel(id, track audio.ID) error {
	e.editMu.Lock()
	defer e.editMu.Unlock()
	if _, ok := e.currentMixer().Track(track); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTrack, track)
	}
	return e.route(id, track)
}

func (e *Engine) route(id, track audio.ID) error {
	inst, ok := e.currentPool().Instrument(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownChannel, id)
	}
	if err := e.patterns.SetTrack(id, track); err != nil {
		return err
	}
	if err := e.notes.SetTrack(id, track); err != nil {
		return err
	}
	inst.SetRoute(track)
	e.log.Debug("channel routed", "channel", id, "track", track)
	e.notify.send(Change{Kind: ChannelsChanged, ID: int(id)})
	return nil
}

// TriggerPreview plays a note on a channel's instrument right away, for
// auditioning. A negative pitch plays the channel pitch.
func (e *Engine) TriggerPreview(id audio.ID, pitch int, d time.Duration) error {
	ch, ok := e.patterns.Channel(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownChannel, id)
	}
	if pitch < 0 {
		pitch = ch.Pitch
	}
	frames := max(int64(d.Seconds()*audio.SampleRate), 1)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pool.Trigger(id, pitch, seq.DefaultVelocity, e.frame)
	e.previews = append(e.previews, preview{inst: id, pitch: pitch, end: e.frame + frames})
	return nil
}

// TrackInfo is the state of a mixer track.
type TrackInfo struct {
	ID      audio.ID
	Name    string
	Gain    float64
	Pan     float64
	Muted   bool
	Solo    bool
	Audible bool
	Level   float32
	Effects []audio.EffectState
}

func (e *Engine) AddTrack(name string) audio.ID {
	e.editMu.Lock()
	defer e.editMu.Unlock()
	mixer := e.currentMixer()
	if name == "" {
		name = trackName(len(mixer.Tracks()))
	}
	t := mixer.AddTrack(name)
	e.log.Info("track added", "id", t.ID, "name", name)
	e.notify.send(Change{Kind: TracksChanged, ID: int(t.ID)})
	return t.ID
}

// RemoveTrack removes a track. Channels routed to it move to the first
// remaining track.
func (e *Engine) RemoveTrack(id audio.ID) error {
	e.editMu.Lock()
	defer e.editMu.Unlock()
	mixer := e.currentMixer()
	if !mixer.RemoveTrack(id) {
		return fmt.Errorf("%w: %d", ErrUnknownTrack, id)
	}
	var fallback audio.ID
	if tracks := mixer.Tracks(); len(tracks) > 0 {
		fallback = tracks[0].ID
	}
	for _, ch := range e.patterns.Channels() {
		if ch.Track == id {
			if err := e.route(ch.ID, fallback); err != nil {
				return err
			}
		}
	}
	e.log.Info("track removed", "id", id)
	e.notify.send(Change{Kind: TracksChanged, ID: int(id)})
	return nil
}

func (e *Engine) track(id audio.ID) (*audio.Track, error) {
	t, ok := e.currentMixer().Track(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTrack, id)
	}
	return t, nil
}

func (e *Engine) trackEdit(id audio.ID, f func(t *audio.Track)) error {
	t, err := e.track(id)
	if err != nil {
		return err
	}
	f(t)
	e.notify.send(Change{Kind: TracksChanged, ID: int(id)})
	return nil
}

func (e *Engine) SetTrackGain(id audio.ID, gain float64) error {
	return e.trackEdit(id, func(t *audio.Track) { t.SetGain(gain) })
}

func (e *Engine) SetTrackPan(id audio.ID, pan float64) error {
	return e.trackEdit(id, func(t *audio.Track) { t.SetPan(pan) })
}

func (e *Engine) SetTrackMuted(id audio.ID, muted bool) error {
	return e.trackEdit(id, func(t *audio.Track) { t.SetMuted(muted) })
}

func (e *Engine) SetTrackSolo(id audio.ID, solo bool) error {
	return e.trackEdit(id, func(t *audio.Track) { t.SetSolo(solo) })
}

func (e *Engine) Tracks() []TrackInfo {
	mixer := e.currentMixer()
	tracks := mixer.Tracks()
	infos := make([]TrackInfo, len(tracks))
	for n, t := range tracks {
		infos[n] = TrackInfo{
			ID:      t.ID,
			Name:    t.Name,
			Gain:    t.Gain(),
			Pan:     t.Pan(),
			Muted:   t.Muted(),
			Solo:    t.Solo(),
			Audible: mixer.Audible(t.ID),
			Level:   t.Meter.Level(),
			Effects: t.Effects.Effects(),
		}
	}
	return infos
}

func (e *Engine) SetMasterGain(gain float64) {
	e.currentMixer().SetMasterGain(gain)
	e.notify.send(Change{Kind: TracksChanged})
}

func (e *Engine) MasterGain() float64 { return e.currentMixer().MasterGain() }

func (e *Engine) MasterLevel() float32 { return e.currentMixer().Master.Level() }

// AddEffect adds an effect to a track. It returns false if the track already
// has an effect of that type.
func (e *Engine) AddEffect(track audio.ID, typ audio.EffectType) (bool, error) {
	t, err := e.track(track)
	if err != nil {
		return false, err
	}
	added, err := t.Effects.Add(typ)
	if err != nil {
		return false, err
	}
	if added {
		e.log.Debug("effect added", "track", track, "type", typ)
		e.notify.send(Change{Kind: EffectsChanged, ID: int(track)})
	}
	return added, nil
}

// SetEffectWet sets the wet level of an effect. Tracks without an effect of
// the type are left alone.
func (e *Engine) SetEffectWet(track audio.ID, typ audio.EffectType, wet float64) error {
	t, err := e.track(track)
	if err != nil {
		return err
	}
	if t.Effects.SetWet(typ, wet) {
		e.notify.send(Change{Kind: EffectsChanged, ID: int(track)})
	}
	return nil
}

func (e *Engine) SetEffectParam(track audio.ID, typ audio.EffectType, key string, value float64) error {
	t, err := e.track(track)
	if err != nil {
		return err
	}
	if err := t.Effects.Set(typ, key, value); err != nil {
		return err
	}
	e.notify.send(Change{Kind: EffectsChanged, ID: int(track)})
	return nil
}

func (e *Engine) RemoveEffect(track audio.ID, typ audio.EffectType) error {
	t, err := e.track(track)
	if err != nil {
		return err
	}
	if t.Effects.Remove(typ) {
		e.notify.send(Change{Kind: EffectsChanged, ID: int(track)})
	}
	return nil
}

func (e *Engine) noteEdit(id audio.ID, err error) error {
	if err != nil {
		return err
	}
	e.notify.send(Change{Kind: NotesChanged, ID: int(id)})
	return nil
}

func (e *Engine) AddNote(id audio.ID, n seq.Note) (seq.NoteID, error) {
	nid, err := e.notes.AddNote(id, n)
	return nid, e.noteEdit(id, err)
}

func (e *Engine) RemoveNote(id audio.ID, note seq.NoteID) error {
	return e.noteEdit(id, e.notes.RemoveNote(id, note))
}

func (e *Engine) MoveNote(id audio.ID, note seq.NoteID, start int64, pitch int) error {
	return e.noteEdit(id, e.notes.MoveNote(id, note, start, pitch))
}

func (e *Engine) ResizeNote(id audio.ID, note seq.NoteID, duration int64) error {
	return e.noteEdit(id, e.notes.ResizeNote(id, note, duration))
}

func (e *Engine) ToggleNote(id audio.ID, pitch int, start int64) (bool, error) {
	added, err := e.notes.ToggleNote(id, pitch, start)
	return added, e.noteEdit(id, err)
}

func (e *Engine) SetNotes(id audio.ID, notes []seq.Note) error {
	return e.noteEdit(id, e.notes.SetNotes(id, notes))
}

func (e *Engine) Quantize(id audio.ID, grid int64) error {
	return e.noteEdit(id, e.notes.Quantize(id, grid))
}

func (e *Engine) Notes(id audio.ID) []seq.Note { return e.notes.Notes(id) }
