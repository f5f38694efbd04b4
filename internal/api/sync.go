package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Manifest describes the server library's identity and current state.
type Manifest struct {
	LibraryID      string         `json:"library_id"`
	LibraryVersion string         `json:"library_version"`
	Checkpoint     string         `json:"checkpoint"`
	Counts         ManifestCounts `json:"counts"`
}

// ManifestCounts carries entity totals, used for pull progress reporting.
type ManifestCounts struct {
	Books        int `json:"books"`
	Contributors int `json:"contributors"`
	Series       int `json:"series"`
}

// ListParams are the common cursor-pagination parameters.
type ListParams struct {
	Limit        int
	Cursor       string
	UpdatedAfter *time.Time
}

func (p ListParams) query() url.Values {
	q := url.Values{}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Cursor != "" {
		q.Set("cursor", p.Cursor)
	}
	if p.UpdatedAfter != nil {
		q.Set("updated_after", p.UpdatedAfter.UTC().Format(time.RFC3339))
	}
	return q
}

// Page is one page of a cursor-paginated delta fetch.
type Page[T any] struct {
	Items      []T
	DeletedIDs []string
	NextCursor string
	HasMore    bool
}

// Wire item shapes, mirroring the server's sync responses.

// Book is a server book record.
type Book struct {
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	Subtitle      string            `json:"subtitle,omitempty"`
	Description   string            `json:"description,omitempty"`
	Publisher     string            `json:"publisher,omitempty"`
	PublishYear   string            `json:"publish_year,omitempty"`
	Language      string            `json:"language,omitempty"`
	ISBN          string            `json:"isbn,omitempty"`
	ASIN          string            `json:"asin,omitempty"`
	Contributors  []BookContributor `json:"contributors"`
	Series        []BookSeries      `json:"series_info,omitempty"`
	Genres        []string          `json:"genres,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	TotalDuration int64             `json:"total_duration"`
	Explicit      bool              `json:"explicit,omitempty"`
	Abridged      bool              `json:"abridged,omitempty"`
	CoverURL      string            `json:"cover_url,omitempty"`
	CoverBlurHash string            `json:"cover_blur_hash,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// BookContributor links a contributor to a book on the wire.
type BookContributor struct {
	ContributorID string   `json:"contributor_id"`
	Roles         []string `json:"roles"`
	CreditedAs    string   `json:"credited_as,omitempty"`
}

// BookSeries links a book to a series on the wire.
type BookSeries struct {
	SeriesID string `json:"series_id"`
	Sequence string `json:"sequence,omitempty"`
}

// Contributor is a server contributor record.
type Contributor struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	SortName      string    `json:"sort_name,omitempty"`
	Biography     string    `json:"biography,omitempty"`
	Aliases       []string  `json:"aliases,omitempty"`
	ASIN          string    `json:"asin,omitempty"`
	ImageURL      string    `json:"image_url,omitempty"`
	ImageBlurHash string    `json:"image_blur_hash,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Series is a server series record.
type Series struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ASIN        string    `json:"asin,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Tag is a server tag record.
type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Genre is a server genre record.
type Genre struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	ParentID  string    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListeningEvent is a server listening event record, typically recorded
// on another device.
type ListeningEvent struct {
	ID              string    `json:"id"`
	BookID          string    `json:"book_id"`
	StartPositionMs int64     `json:"start_position_ms"`
	EndPositionMs   int64     `json:"end_position_ms"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	PlaybackSpeed   float32   `json:"playback_speed"`
	DeviceID        string    `json:"device_id"`
	DeviceName      string    `json:"device_name,omitempty"`
	DurationMs      int64     `json:"duration_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

// Per-family list responses carry their items under family-specific keys.

type syncBooksResponse struct {
	Books          []Book   `json:"books"`
	DeletedBookIDs []string `json:"deleted_book_ids,omitempty"`
	NextCursor     string   `json:"next_cursor,omitempty"`
	HasMore        bool     `json:"has_more"`
}

type syncContributorsResponse struct {
	Contributors          []Contributor `json:"contributors"`
	DeletedContributorIDs []string      `json:"deleted_contributor_ids,omitempty"`
	NextCursor            string        `json:"next_cursor,omitempty"`
	HasMore               bool          `json:"has_more"`
}

type syncSeriesResponse struct {
	Series           []Series `json:"series"`
	DeletedSeriesIDs []string `json:"deleted_series_ids,omitempty"`
	NextCursor       string   `json:"next_cursor,omitempty"`
	HasMore          bool     `json:"has_more"`
}

type syncTagsResponse struct {
	Tags          []Tag    `json:"tags"`
	DeletedTagIDs []string `json:"deleted_tag_ids,omitempty"`
	NextCursor    string   `json:"next_cursor,omitempty"`
	HasMore       bool     `json:"has_more"`
}

type syncGenresResponse struct {
	Genres          []Genre  `json:"genres"`
	DeletedGenreIDs []string `json:"deleted_genre_ids,omitempty"`
	NextCursor      string   `json:"next_cursor,omitempty"`
	HasMore         bool     `json:"has_more"`
}

type syncEventsResponse struct {
	Events          []ListeningEvent `json:"events"`
	DeletedEventIDs []string         `json:"deleted_event_ids,omitempty"`
	NextCursor      string           `json:"next_cursor,omitempty"`
	HasMore         bool             `json:"has_more"`
}

// GetManifest fetches the library manifest.
func (c *Client) GetManifest(ctx context.Context) (*Manifest, error) {
	var manifest Manifest
	if err := c.do(ctx, http.MethodGet, "/api/v1/sync/manifest", familySync, nil, nil, &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// ListBooks fetches one page of book deltas.
func (c *Client) ListBooks(ctx context.Context, params ListParams) (*Page[Book], error) {
	var resp syncBooksResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/sync/books", familySync, params.query(), nil, &resp); err != nil {
		return nil, err
	}
	return &Page[Book]{Items: resp.Books, DeletedIDs: resp.DeletedBookIDs, NextCursor: resp.NextCursor, HasMore: resp.HasMore}, nil
}

// ListContributors fetches one page of contributor deltas.
func (c *Client) ListContributors(ctx context.Context, params ListParams) (*Page[Contributor], error) {
	var resp syncContributorsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/sync/contributors", familySync, params.query(), nil, &resp); err != nil {
		return nil, err
	}
	return &Page[Contributor]{Items: resp.Contributors, DeletedIDs: resp.DeletedContributorIDs, NextCursor: resp.NextCursor, HasMore: resp.HasMore}, nil
}

// ListSeries fetches one page of series deltas.
func (c *Client) ListSeries(ctx context.Context, params ListParams) (*Page[Series], error) {
	var resp syncSeriesResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/sync/series", familySync, params.query(), nil, &resp); err != nil {
		return nil, err
	}
	return &Page[Series]{Items: resp.Series, DeletedIDs: resp.DeletedSeriesIDs, NextCursor: resp.NextCursor, HasMore: resp.HasMore}, nil
}

// ListTags fetches one page of tag deltas.
func (c *Client) ListTags(ctx context.Context, params ListParams) (*Page[Tag], error) {
	var resp syncTagsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/sync/tags", familySync, params.query(), nil, &resp); err != nil {
		return nil, err
	}
	return &Page[Tag]{Items: resp.Tags, DeletedIDs: resp.DeletedTagIDs, NextCursor: resp.NextCursor, HasMore: resp.HasMore}, nil
}

// ListGenres fetches one page of genre deltas.
func (c *Client) ListGenres(ctx context.Context, params ListParams) (*Page[Genre], error) {
	var resp syncGenresResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/sync/genres", familySync, params.query(), nil, &resp); err != nil {
		return nil, err
	}
	return &Page[Genre]{Items: resp.Genres, DeletedIDs: resp.DeletedGenreIDs, NextCursor: resp.NextCursor, HasMore: resp.HasMore}, nil
}

// ListListeningEvents fetches one page of listening event deltas.
func (c *Client) ListListeningEvents(ctx context.Context, params ListParams) (*Page[ListeningEvent], error) {
	var resp syncEventsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/sync/listening-events", familySync, params.query(), nil, &resp); err != nil {
		return nil, err
	}
	return &Page[ListeningEvent]{Items: resp.Events, DeletedIDs: resp.DeletedEventIDs, NextCursor: resp.NextCursor, HasMore: resp.HasMore}, nil
}
