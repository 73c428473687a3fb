package seq

import "github.com/mrdg/rack/audio"

type event struct {
	on    bool
	inst  audio.ID
	pitch int
	frame int64
}

type testVoices struct {
	events []event
}

func (v *testVoices) Trigger(inst audio.ID, pitch int, velocity float64, frame int64) {
	v.events = append(v.events, event{on: true, inst: inst, pitch: pitch, frame: frame})
}

func (v *testVoices) Release(inst audio.ID, pitch int, frame int64) {
	v.events = append(v.events, event{inst: inst, pitch: pitch, frame: frame})
}

func (v *testVoices) flush() {
	v.events = nil
}

type testMixer map[audio.ID]bool

func (m testMixer) Audible(track audio.ID) bool { return m[track] }

// ticks builds consecutive ticks without a clock.
func ticks(from, to int64) []Tick {
	var ts []Tick
	for n := from; n < to; n++ {
		ts = append(ts, Tick{Index: n, Pos: n, Frame: n * 100})
	}
	return ts
}
