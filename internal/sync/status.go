// Package sync implements the bidirectional synchronization engine: the
// pull pipeline that mirrors server entities into the local store, and
// the push pipeline that drains the pending operation queue.
package sync

import (
	"fmt"
	"sync"
	"time"
)

// Phase identifies where in the cycle a sync currently is. Phases run
// strictly in this order.
type Phase int

const (
	PhaseFetchingMetadata Phase = iota
	PhaseSyncingBooks
	PhaseSyncingSeries
	PhaseSyncingContributors
	PhaseSyncingTags
	PhaseSyncingGenres
	PhaseSyncingListeningEvents
	PhasePushing
	PhaseFinalizing
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseFetchingMetadata:
		return "fetching_metadata"
	case PhaseSyncingBooks:
		return "syncing_books"
	case PhaseSyncingSeries:
		return "syncing_series"
	case PhaseSyncingContributors:
		return "syncing_contributors"
	case PhaseSyncingTags:
		return "syncing_tags"
	case PhaseSyncingGenres:
		return "syncing_genres"
	case PhaseSyncingListeningEvents:
		return "syncing_listening_events"
	case PhasePushing:
		return "pushing"
	case PhaseFinalizing:
		return "finalizing"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// StatusKind tags a Status value.
type StatusKind string

const (
	StatusIdle            StatusKind = "idle"
	StatusSyncing         StatusKind = "syncing"
	StatusProgress        StatusKind = "progress"
	StatusRetrying        StatusKind = "retrying"
	StatusSuccess         StatusKind = "success"
	StatusError           StatusKind = "error"
	StatusLibraryMismatch StatusKind = "library_mismatch"
)

// Status is the transient, observable state of the sync engine. It is
// never persisted.
type Status struct {
	Kind StatusKind

	// Progress fields, set when Kind == StatusProgress.
	Phase   Phase
	Done    int
	Total   int
	Message string

	// Retry fields, set when Kind == StatusRetrying.
	Attempt     int
	MaxAttempts int

	// Set when Kind == StatusSuccess.
	CompletedAt time.Time

	// Set when Kind == StatusError.
	Err error

	// Library mismatch fields, set when Kind == StatusLibraryMismatch.
	// HasPendingChanges warns that accepting the new library would
	// discard unsynced local edits.
	ExpectedLibraryID string
	ActualLibraryID   string
	HasPendingChanges bool
}

// Idle is the zero status.
func Idle() Status { return Status{Kind: StatusIdle} }

// Syncing marks the start of a cycle.
func Syncing() Status { return Status{Kind: StatusSyncing} }

// Progress reports per-phase item counts.
func Progress(phase Phase, done, total int, msg string) Status {
	return Status{Kind: StatusProgress, Phase: phase, Done: done, Total: total, Message: msg}
}

// Retrying reports an in-flight transient-failure retry.
func Retrying(attempt, max int) Status {
	return Status{Kind: StatusRetrying, Attempt: attempt, MaxAttempts: max}
}

// Success marks a completed cycle.
func Success(at time.Time) Status { return Status{Kind: StatusSuccess, CompletedAt: at} }

// Failed marks a cycle that exhausted its retries.
func Failed(err error) Status { return Status{Kind: StatusError, Err: err} }

// LibraryMismatch reports that the server's library identity changed.
func LibraryMismatch(expected, actual string, hasPendingChanges bool) Status {
	return Status{
		Kind:              StatusLibraryMismatch,
		ExpectedLibraryID: expected,
		ActualLibraryID:   actual,
		HasPendingChanges: hasPendingChanges,
	}
}

// StatusBroadcaster fans the current status out to observers and retains
// the latest value for new subscribers.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	current Status
	subs    map[int]chan Status
	next    int
}

// NewStatusBroadcaster creates a broadcaster in the Idle state.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		current: Idle(),
		subs:    make(map[int]chan Status),
	}
}

// Current returns the latest status.
func (b *StatusBroadcaster) Current() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// Subscribe registers an observer. The latest status is delivered
// immediately. Returns the channel and an unsubscribe function.
func (b *StatusBroadcaster) Subscribe() (<-chan Status, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Status, 16)
	ch <- b.current
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish updates the current status and notifies observers. Slow
// observers lose intermediate values, never the ordering of what they
// do receive.
func (b *StatusBroadcaster) Publish(status Status) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = status
	for _, ch := range b.subs {
		select {
		case ch <- status:
		default:
			// Drop for backed-up observers; Current() always has the latest.
		}
	}
}
