package audio

import "testing"

func TestEnvelopeStages(t *testing.T) {
	env := envelope{attack: 0.001, decay: 0.001, sustain: 0.5, release: 0.001}
	env.startAttack()

	attack := SampleRate / 1000
	var peak float64
	for n := 0; n < attack+1; n++ {
		peak = max(peak, env.value())
	}
	if peak != 1 {
		t.Errorf("expected attack to reach 1, got %v", peak)
	}
	for n := 0; n < SampleRate/100; n++ {
		env.value()
	}
	if want, got := stateSustain, env.state; want != got {
		t.Fatalf("want state %v, got %v", want, got)
	}
	if want, got := 0.5, env.value(); want != got {
		t.Errorf("want sustain level %v, got %v", want, got)
	}

	env.startRelease(0.001)
	for n := 0; n < SampleRate/100 && !env.done(); n++ {
		env.value()
	}
	if !env.done() {
		t.Errorf("expected envelope to finish after release")
	}
}

func TestEnvelopeZeroSustainEnds(t *testing.T) {
	env := envelope{attack: 0.001, decay: 0.001, sustain: 0}
	env.startAttack()
	for n := 0; n < SampleRate/10 && !env.done(); n++ {
		env.value()
	}
	if !env.done() {
		t.Errorf("expected envelope without sustain to end by itself")
	}
}

func TestReleaseIdleEnvelope(t *testing.T) {
	var env envelope
	env.startRelease(1)
	if !env.done() {
		t.Errorf("releasing an idle envelope should keep it idle")
	}
}
