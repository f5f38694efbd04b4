package domain

import (
	"encoding/json"
	"time"
)

// OperationType identifies a kind of queued mutation. The set is closed:
// the push coordinator rejects anything it does not recognize.
type OperationType string

const (
	OpBookUpdate         OperationType = "book-update"
	OpContributorUpdate  OperationType = "contributor-update"
	OpSeriesUpdate       OperationType = "series-update"
	OpSetBookContributor OperationType = "set-book-contributors"
	OpSetBookSeries      OperationType = "set-book-series"
	OpMergeContributor   OperationType = "merge-contributor"
	OpUnmergeContributor OperationType = "unmerge-contributor"
	OpListeningEvent     OperationType = "listening-event"
	OpPlaybackPosition   OperationType = "playback-position"
	OpUserPreferences    OperationType = "user-preferences"
)

// PendingOperation is a durable record of a local mutation awaiting push.
// Payload is opaque to the queue; each operation type's handler knows how
// to decode and coalesce it.
type PendingOperation struct {
	ID            string          `json:"id"`
	Type          OperationType   `json:"type"`
	TargetID      string          `json:"target_id"`
	Payload       json.RawMessage `json:"payload"`
	EnqueuedAt    time.Time       `json:"enqueued_at"`
	Attempts      int             `json:"attempts"`
	LastAttemptAt *time.Time      `json:"last_attempt_at,omitempty"`
}

// MarkAttempt records a failed delivery attempt.
func (op *PendingOperation) MarkAttempt() {
	now := time.Now()
	op.Attempts++
	op.LastAttemptAt = &now
}
