package audio

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/viterin/vek/vek32"
)

type effectSlot struct {
	typ    EffectType
	effect Effect
	wet    atomic.Uint32
}

func (s *effectSlot) wetLevel() float32 { return math.Float32frombits(s.wet.Load()) }

// EffectState describes one effect of a chain.
type EffectState struct {
	Type   EffectType
	Wet    float64
	Params map[string]float64
}

// Chain is an ordered list of effects with at most one effect per type.
type Chain struct {
	mu      sync.Mutex
	slots   atomic.Pointer[[]*effectSlot]
	scratch []float32
}

func NewChain() *Chain {
	c := &Chain{scratch: make([]float32, MaxBlock)}
	c.slots.Store(&[]*effectSlot{})
	return c
}

func (c *Chain) find(t EffectType) *effectSlot {
	for _, s := range *c.slots.Load() {
		if s.typ == t {
			return s
		}
	}
	return nil
}

// Add appends a new effect with a wet level of 0. Adding a type that is already
// present does nothing and returns false.
func (c *Chain) Add(t EffectType) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.find(t) != nil {
		return false, nil
	}
	effect, err := NewEffect(t)
	if err != nil {
		return false, err
	}
	old := *c.slots.Load()
	slots := make([]*effectSlot, len(old), len(old)+1)
	copy(slots, old)
	slots = append(slots, &effectSlot{typ: t, effect: effect})
	c.slots.Store(&slots)
	return true, nil
}

func (c *Chain) Remove(t EffectType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := *c.slots.Load()
	slots := make([]*effectSlot, 0, len(old))
	for _, s := range old {
		if s.typ != t {
			slots = append(slots, s)
		}
	}
	if len(slots) == len(old) {
		return false
	}
	c.slots.Store(&slots)
	return true
}

// SetWet clamps wet to [0,1]. It returns false if the chain has no effect of the type.
func (c *Chain) SetWet(t EffectType, wet float64) bool {
	s := c.find(t)
	if s == nil {
		return false
	}
	s.wet.Store(math.Float32bits(float32(min(max(wet, 0), 1))))
	return true
}

func (c *Chain) Set(t EffectType, key string, value float64) error {
	s := c.find(t)
	if s == nil {
		return fmt.Errorf("no %s effect on track", t)
	}
	return s.effect.Props().Set(key, value)
}

func (c *Chain) Effects() []EffectState {
	slots := *c.slots.Load()
	states := make([]EffectState, len(slots))
	for n, s := range slots {
		states[n] = EffectState{
			Type:   s.typ,
			Wet:    float64(s.wetLevel()),
			Params: s.effect.Props().Floats(),
		}
	}
	return states
}

// Process runs buf through every effect, mixing each output by its wet level.
func (c *Chain) Process(buf []float32) {
	wet := c.scratch[:len(buf)]
	for _, s := range *c.slots.Load() {
		level := s.wetLevel()
		copy(wet, buf)
		s.effect.Process(wet)
		if level == 0 {
			continue
		}
		vek32.MulNumber_Inplace(buf, 1-level)
		vek32.MulNumber_Inplace(wet, level)
		vek32.Add_Inplace(buf, wet)
	}
}
