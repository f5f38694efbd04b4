package domain

import "time"

// ListeningEvent is the atomic, immutable record of listening activity.
// Events are append-only - everything else derives from them. Events
// created on this device queue for upload; events pulled from the server
// were recorded on other devices.
type ListeningEvent struct {
	ID     string `json:"id"`
	BookID string `json:"book_id"`

	StartPositionMs int64     `json:"start_position_ms"`
	EndPositionMs   int64     `json:"end_position_ms"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`

	PlaybackSpeed float32 `json:"playback_speed"`
	DeviceID      string  `json:"device_id"`
	DeviceName    string  `json:"device_name,omitempty"`

	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewListeningEvent creates a new event with computed fields.
func NewListeningEvent(
	id, bookID string,
	startPositionMs, endPositionMs int64,
	startedAt, endedAt time.Time,
	playbackSpeed float32,
	deviceID, deviceName string,
) *ListeningEvent {
	return &ListeningEvent{
		ID:              id,
		BookID:          bookID,
		StartPositionMs: startPositionMs,
		EndPositionMs:   endPositionMs,
		StartedAt:       startedAt,
		EndedAt:         endedAt,
		PlaybackSpeed:   playbackSpeed,
		DeviceID:        deviceID,
		DeviceName:      deviceName,
		DurationMs:      endPositionMs - startPositionMs,
		CreatedAt:       time.Now(),
	}
}

// WallDurationMs returns the actual elapsed time (wall clock).
// This differs from DurationMs when playback speed != 1.0.
// Example: 30 min of content at 2x speed = 15 min wall time.
func (e *ListeningEvent) WallDurationMs() int64 {
	if e.PlaybackSpeed == 0 {
		return e.DurationMs
	}
	return int64(float64(e.DurationMs) / float64(e.PlaybackSpeed))
}

// PlaybackPosition is a materialized view over ListeningEvents for one book.
// Fully rebuildable from events. SyncedAt records when the server last
// acknowledged knowing this book's progress - set by the push path after a
// listening-event batch lands, so UI layers can show "up to date" without
// consulting the queue.
type PlaybackPosition struct {
	BookID            string     `json:"book_id"`
	CurrentPositionMs int64      `json:"current_position_ms"`
	Progress          float64    `json:"progress"` // 0.0 - 1.0
	IsFinished        bool       `json:"is_finished"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
	StartedAt         time.Time  `json:"started_at"`
	LastPlayedAt      time.Time  `json:"last_played_at"`
	TotalListenTimeMs int64      `json:"total_listen_time_ms"`
	UpdatedAt         time.Time  `json:"updated_at"`
	SyncedAt          *time.Time `json:"synced_at,omitempty"`
}

// NewPlaybackPosition creates a position from the first listening event.
func NewPlaybackPosition(event *ListeningEvent, bookDurationMs int64) *PlaybackPosition {
	pos := &PlaybackPosition{
		BookID:            event.BookID,
		CurrentPositionMs: event.EndPositionMs,
		StartedAt:         event.StartedAt,
		LastPlayedAt:      event.EndedAt,
		TotalListenTimeMs: event.DurationMs,
		UpdatedAt:         time.Now(),
	}

	if bookDurationMs > 0 {
		pos.Progress = float64(pos.CurrentPositionMs) / float64(bookDurationMs)
	}

	pos.checkCompletion(bookDurationMs)

	return pos
}

// UpdateFromEvent updates the position with a new listening event.
// Position only advances forward (rewinds don't move position back).
// Total listen time always accumulates.
func (p *PlaybackPosition) UpdateFromEvent(event *ListeningEvent, bookDurationMs int64) {
	p.TotalListenTimeMs += event.DurationMs

	if event.EndPositionMs > p.CurrentPositionMs {
		p.CurrentPositionMs = event.EndPositionMs
	}

	p.LastPlayedAt = event.EndedAt

	if bookDurationMs > 0 {
		p.Progress = float64(p.CurrentPositionMs) / float64(bookDurationMs)
	}

	p.checkCompletion(bookDurationMs)

	p.UpdatedAt = time.Now()
}

// MarkSynced records server acknowledgment of this book's progress.
func (p *PlaybackPosition) MarkSynced(at time.Time) {
	p.SyncedAt = &at
}

// checkCompletion marks the book as finished if position >= 99% of duration.
func (p *PlaybackPosition) checkCompletion(bookDurationMs int64) {
	if bookDurationMs <= 0 {
		return
	}

	threshold := float64(bookDurationMs) * 0.99
	if float64(p.CurrentPositionMs) >= threshold {
		p.IsFinished = true
		now := time.Now()
		p.FinishedAt = &now
	}
}
