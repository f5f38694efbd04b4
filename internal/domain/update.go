package domain

// Partial-update payloads. Pointer fields distinguish "not touched" from
// "set to zero value"; only non-nil fields are sent to the server. These
// are also the persisted payloads of queued operations, so unknown and
// missing fields must decode permissively across app updates.

// BookUpdate carries edited book fields.
type BookUpdate struct {
	Title       *string `json:"title,omitempty"`
	Subtitle    *string `json:"subtitle,omitempty"`
	Description *string `json:"description,omitempty"`
	Publisher   *string `json:"publisher,omitempty"`
	PublishYear *string `json:"publish_year,omitempty"`
	Language    *string `json:"language,omitempty"`
	ISBN        *string `json:"isbn,omitempty"`
	ASIN        *string `json:"asin,omitempty"`
	Explicit    *bool   `json:"explicit,omitempty"`
	Abridged    *bool   `json:"abridged,omitempty"`
}

// ContributorUpdate carries edited contributor fields. The server's
// contributor endpoint replaces the whole record, so the push path
// reconstructs a full payload before sending (name defaulted to empty
// string when never set).
type ContributorUpdate struct {
	Name      *string  `json:"name,omitempty"`
	SortName  *string  `json:"sort_name,omitempty"`
	Biography *string  `json:"biography,omitempty"`
	Aliases   []string `json:"aliases,omitempty"`
	ASIN      *string  `json:"asin,omitempty"`
}

// SeriesUpdate carries edited series fields.
type SeriesUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	ASIN        *string `json:"asin,omitempty"`
}

// PreferencesUpdate carries edited preference fields.
type PreferencesUpdate struct {
	PlaybackSpeed     *float32 `json:"playback_speed,omitempty"`
	SkipForwardSec    *int     `json:"skip_forward_sec,omitempty"`
	SkipBackSec       *int     `json:"skip_back_sec,omitempty"`
	PreferredLanguage *string  `json:"preferred_language,omitempty"`
	ShowFinished      *bool    `json:"show_finished,omitempty"`
}

// SetBookContributorsPayload replaces a book's full contributor list.
type SetBookContributorsPayload struct {
	BookID       string            `json:"book_id"`
	Contributors []BookContributor `json:"contributors"`
}

// SetBookSeriesPayload replaces a book's full series list.
type SetBookSeriesPayload struct {
	BookID string       `json:"book_id"`
	Series []BookSeries `json:"series"`
}

// MergeContributorPayload folds source into target.
type MergeContributorPayload struct {
	TargetID string `json:"target_id"`
	SourceID string `json:"source_id"`
}

// UnmergeContributorPayload splits an alias back out of a contributor.
type UnmergeContributorPayload struct {
	ContributorID string `json:"contributor_id"`
	AliasName     string `json:"alias_name"`
}

// PositionUpdatePayload reports a book's playback position to the server.
type PositionUpdatePayload struct {
	BookID            string  `json:"book_id"`
	CurrentPositionMs int64   `json:"current_position_ms"`
	Progress          float64 `json:"progress"`
	IsFinished        bool    `json:"is_finished"`
}
