package domain

import "time"

// UserPreferences holds the user's playback and display settings.
// A single logical record: every device edits the same one, so queued
// preference updates always coalesce field-wise.
type UserPreferences struct {
	PlaybackSpeed     float32 `json:"playback_speed"`
	SkipForwardSec    int     `json:"skip_forward_sec"`
	SkipBackSec       int     `json:"skip_back_sec"`
	PreferredLanguage string  `json:"preferred_language,omitempty"`
	ShowFinished      bool    `json:"show_finished"`

	UpdatedAt time.Time  `json:"updated_at"`
	SyncedAt  *time.Time `json:"synced_at,omitempty"`
}

// DefaultPreferences returns the out-of-the-box settings.
func DefaultPreferences() *UserPreferences {
	return &UserPreferences{
		PlaybackSpeed:  1.0,
		SkipForwardSec: 30,
		SkipBackSec:    15,
		ShowFinished:   true,
		UpdatedAt:      time.Now(),
	}
}
