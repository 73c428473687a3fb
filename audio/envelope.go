package audio

type envelopeState int

const (
	stateIdle envelopeState = iota
	stateAttack
	stateDecay
	stateSustain
	stateRelease
)

// minEnvTime bounds every stage so rates stay finite.
const minEnvTime = 0.0005

// envelope is a linear ADSR envelope. Stage times are in seconds.
type envelope struct {
	attack  float64
	decay   float64
	sustain float64
	release float64

	attackRate  float64
	decayRate   float64
	releaseRate float64

	val   float64
	state envelopeState
}

func (e *envelope) value() float64 {
	switch e.state {
	case stateIdle:
		return 0.
	case stateAttack:
		e.val += e.attackRate
		if e.val >= 1 {
			e.val = 1.0
			e.state = stateDecay
		}
	case stateDecay:
		e.val -= e.decayRate
		if e.val <= e.sustain {
			e.val = e.sustain
			e.state = stateSustain
		}
	case stateSustain:
		if e.sustain == 0 {
			e.state = stateIdle
		}
	case stateRelease:
		e.val -= e.releaseRate
		if e.val <= 0 {
			e.val = 0
			e.state = stateIdle
		}
	}
	return e.val
}

func (e *envelope) process(buf []float64) {
	for n := range buf {
		buf[n] *= e.value()
	}
}

func (e *envelope) startAttack() {
	e.val = 0
	e.state = stateAttack
	e.attackRate = 1.0 / (max(e.attack, minEnvTime) * SampleRate)
	e.decayRate = (1.0 - e.sustain) / (max(e.decay, minEnvTime) * SampleRate)
}

// startRelease fades from the current level to zero over seconds.
func (e *envelope) startRelease(seconds float64) {
	if e.state == stateIdle {
		return
	}
	if e.val <= 0 {
		e.state = stateIdle
		return
	}
	e.state = stateRelease
	e.releaseRate = e.val / (max(seconds, minEnvTime) * SampleRate)
}

func (e *envelope) done() bool { return e.state == stateIdle }
