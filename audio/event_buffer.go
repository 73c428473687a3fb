package audio

import (
	"sync/atomic"
)

// VoiceEvent reports a note starting or ending on an instrument. Forced is set
// for note-offs caused by voice stealing or flushing.
type VoiceEvent struct {
	On         bool
	Forced     bool
	Instrument ID
	Pitch      int
	Velocity   float64
	Frame      int64
}

// eventBuffer is a lock-free spsc queue. The producer never waits: events pushed
// into a full buffer are dropped.
type eventBuffer struct {
	events      []VoiceEvent
	read, write atomic.Uint32
}

func newEventBuffer(size int) *eventBuffer {
	if size <= 0 || size&(size-1) != 0 {
		panic("event buffer size must be a power of 2")
	}
	return &eventBuffer{events: make([]VoiceEvent, size)}
}

func (b *eventBuffer) push(ev VoiceEvent) bool {
	write := b.write.Load()
	if write-b.read.Load() == uint32(len(b.events)) {
		return false
	}
	b.events[write%uint32(len(b.events))] = ev
	b.write.Store(write + 1)
	return true
}

// drain calls f for every queued event, oldest first.
func (b *eventBuffer) drain(f func(VoiceEvent)) int {
	read := b.read.Load()
	write := b.write.Load()
	n := 0
	for read != write {
		f(b.events[read%uint32(len(b.events))])
		read++
		n++
	}
	b.read.Store(read)
	return n
}
