package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mrdg/rack/audio"
	"github.com/mrdg/rack/project"
	"github.com/mrdg/rack/seq"
)

var testResolver = ResolverFunc(func(ref string) (audio.Spec, error) {
	preset, ok := strings.CutPrefix(ref, "synth:")
	if !ok {
		return audio.Spec{}, fmt.Errorf("cannot resolve %q", ref)
	}
	params, err := audio.LoadPreset(preset)
	if err != nil {
		return audio.Spec{}, err
	}
	return audio.Spec{Ref: ref, Synth: &params}, nil
})

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	opts := DefaultOptions()
	opts.Tempo = 240
	e := New(opts)
	t.Cleanup(func() { e.Close() })
	return e
}

func addSynth(t *testing.T, e *Engine, name string) audio.ID {
	t.Helper()
	spec, err := testResolver.Resolve("synth:3xosc")
	if err != nil {
		t.Fatal(err)
	}
	id, err := e.AddChannel(name, spec)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func countEvents(e *Engine) (ons, offs int, insts map[audio.ID]bool) {
	insts = make(map[audio.ID]bool)
	e.Events(func(ev audio.VoiceEvent) {
		if ev.On {
			ons++
			insts[ev.Instrument] = true
		} else {
			offs++
		}
	})
	return ons, offs, insts
}

func TestStopReleasesEveryVoice(t *testing.T) {
	e := newTestEngine(t)
	kick := addSynth(t, e, "kick")
	bass := addSynth(t, e, "bass")
	e.SetSteps(kick, []float64{1})
	e.SetSteps(bass, []float64{1, 0, 1, 1})
	e.AddNote(bass, seq.Note{Pitch: 40, Start: 1, Duration: 64, Velocity: 1})

	e.Play()
	left, _ := e.Render(audio.SampleRate / 2)
	e.Stop()

	ons, offs, _ := countEvents(e)
	if ons == 0 {
		t.Fatalf("expected notes to be played")
	}
	if ons != offs {
		t.Errorf("unbalanced voice events after stop: %v ons, %v offs", ons, offs)
	}
	var silent = true
	for _, s := range left {
		if s != 0 {
			silent = false
			break
		}
	}
	if silent {
		t.Errorf("expected audible output")
	}
	if tr := e.Transport(); tr.State != seq.Stopped || tr.Index != 0 {
		t.Errorf("want stopped transport at 0, got %+v", tr)
	}

	// no notes after stop
	e.Render(audio.SampleRate / 10)
	if ons, _, _ := countEvents(e); ons != 0 {
		t.Errorf("want no notes while stopped, got %v", ons)
	}
}

func TestSoloAndMute(t *testing.T) {
	e := newTestEngine(t)
	var ids []audio.ID
	for _, name := range []string{"a", "b", "c"} {
		id := addSynth(t, e, name)
		e.SetSteps(id, []float64{1})
		ids = append(ids, id)
	}
	chans := e.Channels()
	tracks := []audio.ID{chans[0].Track, chans[1].Track, chans[2].Track}
	if tracks[0] == tracks[1] || tracks[1] == tracks[2] {
		t.Fatalf("want channels on separate tracks, got %v", tracks)
	}

	play := func() map[audio.ID]bool {
		e.Play()
		e.Render(audio.SampleRate / 4)
		e.Stop()
		_, _, insts := countEvents(e)
		return insts
	}

	e.SetTrackSolo(tracks[0], true)
	if want, got := map[audio.ID]bool{ids[0]: true}, play(); !reflect.DeepEqual(want, got) {
		t.Errorf("solo A: want %v, got %v", want, got)
	}

	e.SetTrackMuted(tracks[1], true)
	e.SetTrackSolo(tracks[1], true)
	if want, got := map[audio.ID]bool{ids[0]: true, ids[1]: true}, play(); !reflect.DeepEqual(want, got) {
		t.Errorf("solo A+B with B muted: want %v, got %v", want, got)
	}

	e.SetTrackSolo(tracks[0], false)
	e.SetTrackSolo(tracks[1], false)
	if want, got := map[audio.ID]bool{ids[0]: true, ids[2]: true}, play(); !reflect.DeepEqual(want, got) {
		t.Errorf("no solo: want %v, got %v", want, got)
	}

	e.SetChannelMuted(ids[0], true)
	if want, got := map[audio.ID]bool{ids[2]: true}, play(); !reflect.DeepEqual(want, got) {
		t.Errorf("muted channel: want %v, got %v", want, got)
	}
}

func peak(buf []float32) float32 {
	var p float32
	for _, v := range buf {
		p = max(p, v, -v)
	}
	return p
}

func TestMonoRetriggerHoldsUntilDeadline(t *testing.T) {
	opts := DefaultOptions()
	opts.Tempo = 60
	e := New(opts)
	t.Cleanup(func() { e.Close() })

	params, err := audio.LoadPreset("3xosc")
	if err != nil {
		t.Fatal(err)
	}
	id, err := e.AddChannel("mono", audio.Spec{Ref: "synth:3xosc", Synth: &params, Polyphony: 1})
	if err != nil {
		t.Fatal(err)
	}
	e.SetSteps(id, []float64{1})

	e.Play()
	var out []float32
	for len(out) < 12288 {
		left, _ := e.Render(512)
		out = append(out, left...)
	}

	deadline := int(seq.Interval(60) * audio.SampleRate) // second tick
	for _, w := range [][2]int{{8000, 9000}, {9400, 10800}, {deadline - 200, deadline - 140}, {deadline + 75, 12000}} {
		if p := peak(out[w[0]:w[1]]); p == 0 {
			t.Errorf("silence in [%d, %d) around a retrigger at %d", w[0], w[1], deadline)
		}
	}
}

func TestRemoveChannelWhilePlaying(t *testing.T) {
	e := newTestEngine(t)
	id := addSynth(t, e, "lead")
	e.SetSteps(id, []float64{1})
	e.Play()
	e.Render(2000)

	if err := e.RemoveChannel(id); err != nil {
		t.Fatal(err)
	}
	e.Render(audio.SampleRate / 4)
	e.Stop()

	ons, offs, _ := countEvents(e)
	if ons != offs {
		t.Errorf("unbalanced voice events: %v ons, %v offs", ons, offs)
	}
	if err := e.RemoveChannel(id); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("want ErrUnknownChannel, got %v", err)
	}
}

func TestRemoveTrackReroutes(t *testing.T) {
	e := newTestEngine(t)
	id := addSynth(t, e, "lead")
	ch := e.Channels()[0]
	if err := e.RemoveTrack(ch.Track); err != nil {
		t.Fatal(err)
	}
	ch = e.Channels()[0]
	if want, got := e.Tracks()[0].ID, ch.Track; want != got {
		t.Errorf("want channel rerouted to track %v, got %v", want, got)
	}
	if err := e.RouteChannel(id, 999); !errors.Is(err, ErrUnknownTrack) {
		t.Errorf("want ErrUnknownTrack, got %v", err)
	}
	if err := e.SetTrackGain(999, 1); !errors.Is(err, ErrUnknownTrack) {
		t.Errorf("want ErrUnknownTrack, got %v", err)
	}
}

func TestEffects(t *testing.T) {
	e := newTestEngine(t)
	track := e.Tracks()[0].ID

	if added, err := e.AddEffect(track, audio.Reverb); !added || err != nil {
		t.Fatalf("want reverb added, got %v %v", added, err)
	}
	if added, _ := e.AddEffect(track, audio.Reverb); added {
		t.Errorf("second reverb should not be added")
	}
	if err := e.SetEffectWet(track, audio.Delay, 1); err != nil {
		t.Errorf("setting wet of a missing effect should be a no-op, got %v", err)
	}
	e.SetEffectWet(track, audio.Reverb, 0.5)
	if err := e.SetEffectParam(track, audio.Reverb, "decay", 100); err == nil {
		t.Errorf("expected out of range param error")
	}
	fx := e.Tracks()[0].Effects
	if len(fx) != 1 || fx[0].Wet != 0.5 || fx[0].Params["decay"] != 3 {
		t.Errorf("unexpected effects %+v", fx)
	}
}

func TestTriggerPreview(t *testing.T) {
	e := newTestEngine(t)
	id := addSynth(t, e, "lead")
	if err := e.TriggerPreview(id, -1, 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	e.Render(audio.SampleRate / 20)

	var events []audio.VoiceEvent
	e.Events(func(ev audio.VoiceEvent) { events = append(events, ev) })
	if len(events) != 2 || !events[0].On || events[1].On || events[0].Pitch != seq.DefaultPitch {
		t.Fatalf("want preview note on and off, got %v", events)
	}
	if want, got := int64(0.01*audio.SampleRate), events[1].Frame-events[0].Frame; want != got {
		t.Errorf("want preview length %v frames, got %v", want, got)
	}
	if err := e.TriggerPreview(42, 60, time.Millisecond); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("want ErrUnknownChannel, got %v", err)
	}
}

func TestTempoClamped(t *testing.T) {
	e := newTestEngine(t)
	if want, got := 60.0, e.SetTempo(10); want != got {
		t.Errorf("want %v, got %v", want, got)
	}
	if want, got := 240.0, e.SetTempo(1000); want != got {
		t.Errorf("want %v, got %v", want, got)
	}
}

func TestSubscribe(t *testing.T) {
	e := newTestEngine(t)
	changes := e.Subscribe()
	id := addSynth(t, e, "lead")
	e.ToggleStep(id, 0)

	want := []Change{{Kind: ChannelsChanged, ID: int(id)}, {Kind: PatternChanged, ID: int(id)}}
	for _, w := range want {
		select {
		case got := <-changes:
			if got != w {
				t.Errorf("want change %v, got %v", w, got)
			}
		default:
			t.Fatalf("missing change %v", w)
		}
	}

	// failed edits are not reported
	e.ToggleStep(id, 99)
	select {
	case c := <-changes:
		t.Errorf("unexpected change %v", c)
	default:
	}
}

func buildProject(t *testing.T, e *Engine) {
	t.Helper()
	kick := addSynth(t, e, "kick")
	bass := addSynth(t, e, "bass")
	e.SetTempo(128)
	e.SetSteps(kick, []float64{1, 0, 0, 0})
	e.ResizePattern(bass, 32)
	e.ToggleStep(bass, 30)
	e.SetChannelPitch(bass, 36)
	e.SetChannelMuted(kick, true)
	tracks := e.Tracks()
	e.RouteChannel(bass, tracks[4].ID)
	e.SetTrackGain(tracks[4].ID, 0.5)
	e.SetTrackPan(tracks[4].ID, -0.5)
	e.SetTrackSolo(tracks[0].ID, true)
	e.AddEffect(tracks[4].ID, audio.Delay)
	e.SetEffectWet(tracks[4].ID, audio.Delay, 0.25)
	e.SetEffectParam(tracks[4].ID, audio.Delay, "feedback", 0.75)
	e.AddNote(bass, seq.Note{Pitch: 36, Start: 0, Duration: 4, Velocity: 1})
	e.AddNote(bass, seq.Note{Pitch: 43, Start: 8, Duration: 2, Velocity: 0.5})
	e.SetMasterGain(0.9)
}

func TestSnapshotRestore(t *testing.T) {
	src := newTestEngine(t)
	buildProject(t, src)
	want := src.Snapshot()

	dst := newTestEngine(t)
	addSynth(t, dst, "existing")
	if err := dst.Restore(want, testResolver); err != nil {
		t.Fatalf("restore: %v", err)
	}
	got := dst.Snapshot()
	got.UpdatedAt = want.UpdatedAt
	if !reflect.DeepEqual(want, got) {
		t.Errorf("snapshot after restore differs:\nwant %+v\ngot  %+v", want, got)
	}
}

func TestSnapshotWithoutTracks(t *testing.T) {
	e := newTestEngine(t)
	id := addSynth(t, e, "lead")
	for _, tr := range e.Tracks() {
		if err := e.RemoveTrack(tr.ID); err != nil {
			t.Fatal(err)
		}
	}
	e.SetSteps(id, []float64{1, 0})

	want := e.Snapshot()
	if want.Channels[0].Track != project.NoTrack {
		t.Fatalf("want unrouted channel, got track %d", want.Channels[0].Track)
	}
	if err := e.Restore(want, testResolver); err != nil {
		t.Fatalf("restore: %v", err)
	}
	got := e.Snapshot()
	got.UpdatedAt = want.UpdatedAt
	if !reflect.DeepEqual(want, got) {
		t.Errorf("want %+v\ngot  %+v", want, got)
	}

	ctx := context.Background()
	store := project.NewFileStore(t.TempDir(), nil)
	if _, err := e.Save(ctx, store, "alice"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := e.Load(ctx, store, "alice", testResolver); err != nil {
		t.Fatalf("load: %v", err)
	}
}

func TestFailedRestoreLeavesEngineUntouched(t *testing.T) {
	e := newTestEngine(t)
	buildProject(t, e)
	before := e.Snapshot()

	bad := before
	bad.Channels = append([]project.Channel(nil), before.Channels...)
	bad.Channels[1].InstrumentRef = "sample:missing.wav"
	bad.Tempo = 90
	if err := e.Restore(bad, testResolver); err == nil {
		t.Fatalf("expected restore to fail")
	}

	invalid := before
	invalid.Notes = []project.Note{{Pitch: 60, Duration: 1, TrackRef: 7}}
	if err := e.Restore(invalid, testResolver); err == nil {
		t.Fatalf("expected invalid snapshot to be rejected")
	}

	after := e.Snapshot()
	after.UpdatedAt = before.UpdatedAt
	if !reflect.DeepEqual(before, after) {
		t.Errorf("failed restore changed the engine:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	store := project.NewFileStore(t.TempDir(), nil)

	src := newTestEngine(t)
	buildProject(t, src)
	if _, err := src.Save(ctx, store, "alice"); err != nil {
		t.Fatalf("save: %v", err)
	}

	dst := newTestEngine(t)
	if err := dst.Load(ctx, store, "alice", testResolver); err != nil {
		t.Fatalf("load: %v", err)
	}
	if want, got := len(src.Channels()), len(dst.Channels()); want != got {
		t.Errorf("want %v channels, got %v", want, got)
	}

	failing := ResolverFunc(func(string) (audio.Spec, error) {
		return audio.Spec{}, &audio.UnsupportedFormatError{Name: "x", Reason: "test"}
	})
	err := dst.Load(ctx, store, "alice", failing)
	var perr *project.PersistenceError
	if !errors.As(err, &perr) || !errors.Is(err, audio.ErrUnsupportedFormat) {
		t.Errorf("want PersistenceError wrapping the format error, got %v", err)
	}

	if err := dst.Load(ctx, store, "nobody", testResolver); !errors.As(err, &perr) {
		t.Errorf("want PersistenceError for missing project, got %v", err)
	}
}
