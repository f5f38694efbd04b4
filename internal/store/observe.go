package store

import "sync"

// ChangeKind names the entity family a change applies to.
type ChangeKind string

const (
	ChangeKindBook        ChangeKind = "book"
	ChangeKindContributor ChangeKind = "contributor"
	ChangeKindSeries      ChangeKind = "series"
	ChangeKindTag         ChangeKind = "tag"
	ChangeKindGenre       ChangeKind = "genre"
	ChangeKindPosition    ChangeKind = "position"
	ChangeKindPreferences ChangeKind = "preferences"
)

// ChangeType distinguishes writes from removals.
type ChangeType string

const (
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// Change describes a single store mutation. The UI layer subscribes to
// these to refresh views as sync progresses.
type Change struct {
	Kind ChangeKind
	Type ChangeType
	ID   string
}

// ChangeEmitter is the interface the store uses to broadcast changes
// without depending on who is listening.
type ChangeEmitter interface {
	Emit(change Change)
}

// NoopEmitter is a no-op implementation of ChangeEmitter for testing.
type NoopEmitter struct{}

// Emit implements ChangeEmitter.Emit as a no-op.
func (NoopEmitter) Emit(Change) {}

// NewNoopEmitter creates a new no-op emitter for testing.
func NewNoopEmitter() ChangeEmitter {
	return NoopEmitter{}
}

// Notifier fans store changes out to subscribers. Emit never blocks:
// a subscriber that falls behind loses events rather than stalling
// writes, so consumers should treat a received change as "something
// changed, re-read" rather than a complete journal.
type Notifier struct {
	mu   sync.RWMutex
	subs map[int]chan Change
	next int
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]chan Change)}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. The channel is buffered.
func (n *Notifier) Subscribe() (<-chan Change, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.next
	n.next++
	ch := make(chan Change, 64)
	n.subs[id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if sub, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Emit broadcasts a change to all subscribers without blocking.
func (n *Notifier) Emit(change Change) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, ch := range n.subs {
		select {
		case ch <- change:
		default:
			// Subscriber is backed up, drop the event.
		}
	}
}
