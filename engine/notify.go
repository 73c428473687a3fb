package engine

import "sync"

type ChangeKind int

const (
	TransportChanged ChangeKind = iota
	TempoChanged
	ChannelsChanged
	PatternChanged
	NotesChanged
	TracksChanged
	EffectsChanged
	ProjectLoaded
)

func (k ChangeKind) String() string {
	switch k {
	case TransportChanged:
		return "transport"
	case TempoChanged:
		return "tempo"
	case ChannelsChanged:
		return "channels"
	case PatternChanged:
		return "pattern"
	case NotesChanged:
		return "notes"
	case TracksChanged:
		return "tracks"
	case EffectsChanged:
		return "effects"
	case ProjectLoaded:
		return "project"
	}
	return "unknown"
}

// Change tells observers what part of the engine was edited. ID is the channel
// or track concerned, if any.
type Change struct {
	Kind ChangeKind
	ID   int
}

type notifier struct {
	mu     sync.Mutex
	subs   []chan Change
	closed bool
}

func newNotifier() *notifier { return &notifier{} }

func (n *notifier) subscribe(size int) <-chan Change {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := make(chan Change, size)
	if n.closed {
		close(ch)
		return ch
	}
	n.subs = append(n.subs, ch)
	return ch
}

// send never blocks.
func (n *notifier) send(c Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for _, ch := range n.subs {
		close(ch)
	}
	n.subs = nil
}
