package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mrdg/rack/audio"
	"github.com/mrdg/rack/dub"
	"github.com/mrdg/rack/engine"
	"github.com/mrdg/rack/project"
	"github.com/mrdg/rack/seq"
)

const (
	previewLength = 250 * time.Millisecond
	storeTimeout  = 10 * time.Second
)

type command struct {
	name  string
	help  string
	run   func(*env, []dub.Node) (dub.Node, error)
	arity int // -n means len(args) must be >= n
}

var commands []command

func init() {
	commands = []command{
		{"play", "start the transport", playCommand, 0},
		{"pause", "pause, keeping the position", pauseCommand, 0},
		{"stop", "stop and rewind", stopCommand, 0},
		{"bpm", "bpm <tempo>", bpmCommand, 1},
		{"loop", "loop <start> <end> in sixteenth notes", loopCommand, 2},
		{"unloop", "disable the loop", unloopCommand, 0},

		{"chan", "chan <instrument> [name]", chanCommand, -1},
		{"chan-rm", "chan-rm <channel>", chanRemoveCommand, 1},
		{"mute", "mute <channel>... toggles channel mute", muteCommand, -1},
		{"step", "step <channel> '<match> | step <channel> <n>...", stepCommand, -2},
		{"vel", "vel <channel> <step> <velocity>", velocityCommand, 3},
		{"clear", "clear <channel>...", clearCommand, -1},
		{"steps", "steps <channel> <length>", stepsCommand, 2},
		{"steps-all", "steps-all <length>", stepsAllCommand, 1},
		{"pitch", "pitch <channel> <note>", pitchCommand, 2},
		{"route", "route <channel> <track>", routeCommand, 2},
		{"preview", "preview <channel> [note]", previewCommand, -1},

		{"track", "track <name> adds a mixer track", trackCommand, 1},
		{"track-rm", "track-rm <track>", trackRemoveCommand, 1},
		{"gain", "gain <track> <0..1>", gainCommand, 2},
		{"pan", "pan <track> <-1..1>", panCommand, 2},
		{"track-mute", "track-mute <track> toggles track mute", trackMuteCommand, 1},
		{"solo", "solo <track> toggles solo", soloCommand, 1},
		{"master", "master <0..1>", masterCommand, 1},

		{"fx", "fx <track> <reverb|delay|filter>", fxCommand, 2},
		{"fx-rm", "fx-rm <track> <type>", fxRemoveCommand, 2},
		{"wet", "wet <track> <type> <0..1>", wetCommand, 3},
		{"set", "set <track> <type> <param> <value>", setCommand, 4},

		{"note", "note <channel> <pitch> <start> <duration> [velocity]", noteCommand, -4},
		{"note-rm", "note-rm <channel> <id>", noteRemoveCommand, 2},
		{"note-mv", "note-mv <channel> <id> <start> <pitch>", noteMoveCommand, 4},
		{"note-len", "note-len <channel> <id> <duration>", noteLengthCommand, 3},
		{"pencil", "pencil <channel> <pitch> <start> toggles a note", pencilCommand, 3},
		{"quantize", "quantize <channel> <grid>", quantizeCommand, 2},
		{"notes", "notes <channel>", notesCommand, 1},

		{"save", "save the project", saveCommand, 0},
		{"load", "load the latest saved project", loadCommand, 0},
		{"revisions", "list saved revisions", revisionsCommand, 0},
		{"export", "export <file.mid>", exportCommand, 1},
		{"import", "import <file.mid>", importCommand, 1},

		{"show", "show the project", showCommand, 0},
		{"events", "drain pending voice events", eventsCommand, 0},
		{"presets", "list synth presets", presetsCommand, 0},
		{"help", "list commands", helpCommand, 0},
	}
}

func playCommand(env *env, args []dub.Node) (dub.Node, error) {
	env.engine.Play()
	return nil, nil
}

func pauseCommand(env *env, args []dub.Node) (dub.Node, error) {
	env.engine.Pause()
	return nil, nil
}

func stopCommand(env *env, args []dub.Node) (dub.Node, error) {
	env.engine.Stop()
	return nil, nil
}

func bpmCommand(env *env, args []dub.Node) (dub.Node, error) {
	var bpm float64
	if err := readArgs(args, &bpm); err != nil {
		return nil, err
	}
	return dub.Float(env.engine.SetTempo(bpm)), nil
}

func loopCommand(env *env, args []dub.Node) (dub.Node, error) {
	var start, end int64
	if err := readArgs(args, &start, &end); err != nil {
		return nil, err
	}
	return nil, env.engine.SetLoop(start, end)
}

func unloopCommand(env *env, args []dub.Node) (dub.Node, error) {
	env.engine.ClearLoop()
	return nil, nil
}

func chanCommand(env *env, args []dub.Node) (dub.Node, error) {
	if len(args) > 2 {
		return nil, fmt.Errorf("too many arguments")
	}
	var ref, name string
	if err := readArgs(args[:1], &ref); err != nil {
		return nil, err
	}
	if len(args) == 2 {
		if err := readArgs(args[1:], &name); err != nil {
			return nil, err
		}
	}
	spec, err := env.resolver.Resolve(instrumentRef(ref))
	if err != nil {
		return nil, err
	}
	id, err := env.engine.AddChannel(name, spec)
	if err != nil {
		return nil, err
	}
	return dub.Int(id), nil
}

func chanRemoveCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, err := env.channel(args[0])
	if err != nil {
		return nil, err
	}
	return nil, env.engine.RemoveChannel(id)
}

func channelInfo(env *env, id audio.ID) (engine.ChannelInfo, error) {
	for _, ch := range env.engine.Channels() {
		if ch.ID == id {
			return ch, nil
		}
	}
	return engine.ChannelInfo{}, fmt.Errorf("%w: %d", engine.ErrUnknownChannel, id)
}

func muteCommand(env *env, args []dub.Node) (dub.Node, error) {
	for _, arg := range args {
		id, err := env.channel(arg)
		if err != nil {
			return nil, err
		}
		ch, err := channelInfo(env, id)
		if err != nil {
			return nil, err
		}
		if err := env.engine.SetChannelMuted(id, !ch.Muted); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// stepCommand either replaces the pattern with the steps matched by an
// expression or toggles the given 1-based steps.
func stepCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, err := env.channel(args[0])
	if err != nil {
		return nil, err
	}
	if expr, ok := args[1].(dub.MatchExpr); ok {
		if len(args) != 2 {
			return nil, fmt.Errorf("too many arguments")
		}
		ch, err := channelInfo(env, id)
		if err != nil {
			return nil, err
		}
		steps, err := dub.Velocities(expr, max(len(ch.Steps)/seq.StepsPerBeat, 1))
		if err != nil {
			return nil, err
		}
		for i := range steps {
			steps[i] *= seq.DefaultVelocity
		}
		return nil, env.engine.SetSteps(id, steps)
	}
	for _, arg := range args[1:] {
		var n int
		if err := readArgs([]dub.Node{arg}, &n); err != nil {
			return nil, err
		}
		if _, err := env.engine.ToggleStep(id, n-1); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func velocityCommand(env *env, args []dub.Node) (dub.Node, error) {
	var (
		ch       dub.Node
		step     int
		velocity float64
	)
	if err := readArgs(args, &ch, &step, &velocity); err != nil {
		return nil, err
	}
	id, err := env.channel(ch)
	if err != nil {
		return nil, err
	}
	return nil, env.engine.SetStep(id, step-1, velocity)
}

func clearCommand(env *env, args []dub.Node) (dub.Node, error) {
	for _, arg := range args {
		id, err := env.channel(arg)
		if err != nil {
			return nil, err
		}
		ch, err := channelInfo(env, id)
		if err != nil {
			return nil, err
		}
		if err := env.engine.SetSteps(id, make([]float64, len(ch.Steps))); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func stepsCommand(env *env, args []dub.Node) (dub.Node, error) {
	var (
		ch     dub.Node
		length int
	)
	if err := readArgs(args, &ch, &length); err != nil {
		return nil, err
	}
	id, err := env.channel(ch)
	if err != nil {
		return nil, err
	}
	return nil, env.engine.ResizePattern(id, length)
}

func stepsAllCommand(env *env, args []dub.Node) (dub.Node, error) {
	var length int
	if err := readArgs(args, &length); err != nil {
		return nil, err
	}
	return nil, env.engine.ResizeAllPatterns(length)
}

func pitchCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, err := env.channel(args[0])
	if err != nil {
		return nil, err
	}
	pitch, err := pitchArg(args[1])
	if err != nil {
		return nil, err
	}
	return nil, env.engine.SetChannelPitch(id, pitch)
}

func routeCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, err := env.channel(args[0])
	if err != nil {
		return nil, err
	}
	track, err := env.track(args[1])
	if err != nil {
		return nil, err
	}
	return nil, env.engine.RouteChannel(id, track)
}

func previewCommand(env *env, args []dub.Node) (dub.Node, error) {
	if len(args) > 2 {
		return nil, fmt.Errorf("too many arguments")
	}
	id, err := env.channel(args[0])
	if err != nil {
		return nil, err
	}
	pitch := -1
	if len(args) == 2 {
		if pitch, err = pitchArg(args[1]); err != nil {
			return nil, err
		}
	}
	return nil, env.engine.TriggerPreview(id, pitch, previewLength)
}

func trackCommand(env *env, args []dub.Node) (dub.Node, error) {
	if len(args) > 1 {
		return nil, fmt.Errorf("too many arguments")
	}
	var name string
	if len(args) == 1 {
		if err := readArgs(args, &name); err != nil {
			return nil, err
		}
	}
	return dub.Int(env.engine.AddTrack(name)), nil
}

func trackRemoveCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, err := env.track(args[0])
	if err != nil {
		return nil, err
	}
	return nil, env.engine.RemoveTrack(id)
}

func trackValue(env *env, args []dub.Node, set func(audio.ID, float64) error) error {
	var (
		t dub.Node
		v float64
	)
	if err := readArgs(args, &t, &v); err != nil {
		return err
	}
	id, err := env.track(t)
	if err != nil {
		return err
	}
	return set(id, v)
}

func gainCommand(env *env, args []dub.Node) (dub.Node, error) {
	return nil, trackValue(env, args, env.engine.SetTrackGain)
}

func panCommand(env *env, args []dub.Node) (dub.Node, error) {
	return nil, trackValue(env, args, env.engine.SetTrackPan)
}

func trackInfo(env *env, arg dub.Node) (engine.TrackInfo, error) {
	id, err := env.track(arg)
	if err != nil {
		return engine.TrackInfo{}, err
	}
	for _, t := range env.engine.Tracks() {
		if t.ID == id {
			return t, nil
		}
	}
	return engine.TrackInfo{}, fmt.Errorf("%w: %d", engine.ErrUnknownTrack, id)
}

func trackMuteCommand(env *env, args []dub.Node) (dub.Node, error) {
	t, err := trackInfo(env, args[0])
	if err != nil {
		return nil, err
	}
	return nil, env.engine.SetTrackMuted(t.ID, !t.Muted)
}

func soloCommand(env *env, args []dub.Node) (dub.Node, error) {
	t, err := trackInfo(env, args[0])
	if err != nil {
		return nil, err
	}
	return nil, env.engine.SetTrackSolo(t.ID, !t.Solo)
}

func masterCommand(env *env, args []dub.Node) (dub.Node, error) {
	var gain float64
	if err := readArgs(args, &gain); err != nil {
		return nil, err
	}
	env.engine.SetMasterGain(gain)
	return nil, nil
}

func effectArgs(env *env, args []dub.Node) (audio.ID, audio.EffectType, error) {
	var (
		t   dub.Node
		typ string
	)
	if err := readArgs(args, &t, &typ); err != nil {
		return 0, "", err
	}
	id, err := env.track(t)
	if err != nil {
		return 0, "", err
	}
	et, err := audio.ParseEffectType(typ)
	return id, et, err
}

func fxCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, typ, err := effectArgs(env, args)
	if err != nil {
		return nil, err
	}
	added, err := env.engine.AddEffect(id, typ)
	if err != nil {
		return nil, err
	}
	if !added {
		return dub.String(fmt.Sprintf("track %d already has %s", id, typ)), nil
	}
	return nil, nil
}

func fxRemoveCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, typ, err := effectArgs(env, args)
	if err != nil {
		return nil, err
	}
	return nil, env.engine.RemoveEffect(id, typ)
}

func wetCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, typ, err := effectArgs(env, args[:2])
	if err != nil {
		return nil, err
	}
	var wet float64
	if err := readArgs(args[2:], &wet); err != nil {
		return nil, err
	}
	return nil, env.engine.SetEffectWet(id, typ, wet)
}

func setCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, typ, err := effectArgs(env, args[:2])
	if err != nil {
		return nil, err
	}
	var (
		prop  string
		value float64
	)
	if err := readArgs(args[2:], &prop, &value); err != nil {
		return nil, err
	}
	return nil, env.engine.SetEffectParam(id, typ, prop, value)
}

func noteCommand(env *env, args []dub.Node) (dub.Node, error) {
	if len(args) > 5 {
		return nil, fmt.Errorf("too many arguments")
	}
	id, err := env.channel(args[0])
	if err != nil {
		return nil, err
	}
	pitch, err := pitchArg(args[1])
	if err != nil {
		return nil, err
	}
	n := seq.Note{Pitch: pitch, Velocity: seq.DefaultVelocity}
	if err := readArgs(args[2:4], &n.Start, &n.Duration); err != nil {
		return nil, err
	}
	if len(args) == 5 {
		if err := readArgs(args[4:], &n.Velocity); err != nil {
			return nil, err
		}
	}
	noteID, err := env.engine.AddNote(id, n)
	if err != nil {
		return nil, err
	}
	return dub.Int(noteID), nil
}

func noteArgs(env *env, args []dub.Node) (audio.ID, seq.NoteID, error) {
	id, err := env.channel(args[0])
	if err != nil {
		return 0, 0, err
	}
	var note int
	if err := readArgs(args[1:2], &note); err != nil {
		return 0, 0, err
	}
	return id, seq.NoteID(note), nil
}

func noteRemoveCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, note, err := noteArgs(env, args)
	if err != nil {
		return nil, err
	}
	return nil, env.engine.RemoveNote(id, note)
}

func noteMoveCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, note, err := noteArgs(env, args)
	if err != nil {
		return nil, err
	}
	var start int64
	if err := readArgs(args[2:3], &start); err != nil {
		return nil, err
	}
	pitch, err := pitchArg(args[3])
	if err != nil {
		return nil, err
	}
	return nil, env.engine.MoveNote(id, note, start, pitch)
}

func noteLengthCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, note, err := noteArgs(env, args)
	if err != nil {
		return nil, err
	}
	var duration int64
	if err := readArgs(args[2:], &duration); err != nil {
		return nil, err
	}
	return nil, env.engine.ResizeNote(id, note, duration)
}

func pencilCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, err := env.channel(args[0])
	if err != nil {
		return nil, err
	}
	pitch, err := pitchArg(args[1])
	if err != nil {
		return nil, err
	}
	var start int64
	if err := readArgs(args[2:], &start); err != nil {
		return nil, err
	}
	added, err := env.engine.ToggleNote(id, pitch, start)
	if err != nil {
		return nil, err
	}
	if added {
		return dub.String("added"), nil
	}
	return dub.String("removed"), nil
}

func quantizeCommand(env *env, args []dub.Node) (dub.Node, error) {
	var (
		ch   dub.Node
		grid int64
	)
	if err := readArgs(args, &ch, &grid); err != nil {
		return nil, err
	}
	id, err := env.channel(ch)
	if err != nil {
		return nil, err
	}
	return nil, env.engine.Quantize(id, grid)
}

func notesCommand(env *env, args []dub.Node) (dub.Node, error) {
	id, err := env.channel(args[0])
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	for _, n := range env.engine.Notes(id) {
		fmt.Fprintf(&b, "%3d  %s start %d len %d vel %.2f\n", n.ID, pitchName(n.Pitch), n.Start, n.Duration, n.Velocity)
	}
	return dub.String(strings.TrimSuffix(b.String(), "\n")), nil
}

func saveCommand(env *env, args []dub.Node) (dub.Node, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	rev, err := env.engine.Save(ctx, env.store, env.user)
	if err != nil {
		return nil, err
	}
	return dub.String("saved " + rev.Time.Format(time.RFC3339)), nil
}

func loadCommand(env *env, args []dub.Node) (dub.Node, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	return nil, env.engine.Load(ctx, env.store, env.user, env.resolver)
}

func revisionsCommand(env *env, args []dub.Node) (dub.Node, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	revs, err := env.store.List(ctx, env.user)
	if err != nil {
		return nil, err
	}
	lines := make([]string, len(revs))
	for i, rev := range revs {
		lines[i] = rev.Time.Format(time.RFC3339)
	}
	return dub.String(strings.Join(lines, "\n")), nil
}

func exportCommand(env *env, args []dub.Node) (dub.Node, error) {
	var file string
	if err := readArgs(args, &file); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := project.WriteMIDI(&buf, env.engine.Snapshot()); err != nil {
		return nil, err
	}
	return nil, os.WriteFile(file, buf.Bytes(), 0o644)
}

// importCommand replaces the notes of each channel with the notes found on
// the MIDI channel of the same index.
func importCommand(env *env, args []dub.Node) (dub.Node, error) {
	var file string
	if err := readArgs(args, &file); err != nil {
		return nil, err
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	notes, tempo, err := project.ReadMIDI(f)
	if err != nil {
		return nil, err
	}
	chans := env.engine.Channels()
	parts := make([][]seq.Note, len(chans))
	var skipped int
	for _, n := range notes {
		if n.TrackRef >= len(chans) {
			skipped++
			continue
		}
		parts[n.TrackRef] = append(parts[n.TrackRef], seq.Note{
			Pitch:    n.Pitch,
			Start:    n.Start,
			Duration: n.Duration,
			Velocity: n.Velocity,
		})
	}
	for i, ch := range chans {
		if parts[i] == nil {
			continue
		}
		if err := env.engine.SetNotes(ch.ID, parts[i]); err != nil {
			return nil, err
		}
	}
	if tempo > 0 {
		env.engine.SetTempo(tempo)
	}
	if skipped > 0 {
		env.log.Warn("notes without a channel skipped", "file", file, "count", skipped)
	}
	return dub.Int(len(notes) - skipped), nil
}

func showCommand(env *env, args []dub.Node) (dub.Node, error) {
	var buf bytes.Buffer
	renderState(env.engine, &buf)
	return dub.String(strings.TrimSuffix(buf.String(), "\n")), nil
}

func eventsCommand(env *env, args []dub.Node) (dub.Node, error) {
	var on, off int
	env.engine.Events(func(ev audio.VoiceEvent) {
		if ev.On {
			on++
		} else {
			off++
		}
	})
	return dub.String(fmt.Sprintf("on %d off %d dropped %d", on, off, env.engine.Dropped())), nil
}

func presetsCommand(env *env, args []dub.Node) (dub.Node, error) {
	return dub.String(strings.Join(audio.PresetNames(), " ")), nil
}

func helpCommand(env *env, args []dub.Node) (dub.Node, error) {
	var b strings.Builder
	for _, cmd := range commands {
		fmt.Fprintf(&b, "%-10s %s\n", cmd.name, cmd.help)
	}
	return dub.String(strings.TrimSuffix(b.String(), "\n")), nil
}
