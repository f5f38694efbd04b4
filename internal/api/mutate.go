package api

import (
	"context"
	"net/http"

	"github.com/listenupapp/listenup-client/internal/domain"
)

// BatchAck is the server's response to a listening event batch. Partial
// acknowledgment is expected: the caller must handle events that are in
// neither list (treated as failed).
type BatchAck struct {
	Acknowledged []string `json:"acknowledged"`
	Failed       []string `json:"failed,omitempty"`
}

// UpdateBook applies a partial book update; only non-nil fields change.
func (c *Client) UpdateBook(ctx context.Context, id string, fields domain.BookUpdate) error {
	return c.do(ctx, http.MethodPatch, "/api/v1/books/"+id, familyMutate, nil, fields, nil)
}

// UpdateContributor replaces a contributor's editable fields. The server
// endpoint takes the full record, so callers must send every field (name
// defaulted to empty string when never edited).
func (c *Client) UpdateContributor(ctx context.Context, id string, fields domain.ContributorUpdate) error {
	return c.do(ctx, http.MethodPut, "/api/v1/contributors/"+id, familyMutate, nil, fields, nil)
}

// UpdateSeries applies a partial series update.
func (c *Client) UpdateSeries(ctx context.Context, id string, fields domain.SeriesUpdate) error {
	return c.do(ctx, http.MethodPatch, "/api/v1/series/"+id, familyMutate, nil, fields, nil)
}

// SetBookContributors replaces a book's full contributor list.
func (c *Client) SetBookContributors(ctx context.Context, bookID string, contributors []domain.BookContributor) error {
	payload := map[string]any{"contributors": contributors}
	return c.do(ctx, http.MethodPut, "/api/v1/books/"+bookID+"/contributors", familyMutate, nil, payload, nil)
}

// SetBookSeries replaces a book's full series list.
func (c *Client) SetBookSeries(ctx context.Context, bookID string, series []domain.BookSeries) error {
	payload := map[string]any{"series": series}
	return c.do(ctx, http.MethodPut, "/api/v1/books/"+bookID+"/series", familyMutate, nil, payload, nil)
}

// MergeContributor folds the source contributor into the target.
func (c *Client) MergeContributor(ctx context.Context, targetID, sourceID string) error {
	payload := map[string]any{"source_id": sourceID}
	return c.do(ctx, http.MethodPost, "/api/v1/contributors/"+targetID+"/merge", familyMutate, nil, payload, nil)
}

// UnmergeContributor splits an alias back out of a contributor.
func (c *Client) UnmergeContributor(ctx context.Context, contributorID, aliasName string) error {
	payload := map[string]any{"alias_name": aliasName}
	return c.do(ctx, http.MethodPost, "/api/v1/contributors/"+contributorID+"/unmerge", familyMutate, nil, payload, nil)
}

// SubmitListeningEvents uploads a batch of locally recorded events.
func (c *Client) SubmitListeningEvents(ctx context.Context, events []*domain.ListeningEvent) (*BatchAck, error) {
	payload := map[string]any{"events": events}
	var ack BatchAck
	if err := c.do(ctx, http.MethodPost, "/api/v1/listening-events", familyMutate, nil, payload, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// UpdatePlaybackPosition reports a book's playback position.
func (c *Client) UpdatePlaybackPosition(ctx context.Context, pos domain.PositionUpdatePayload) error {
	return c.do(ctx, http.MethodPut, "/api/v1/books/"+pos.BookID+"/position", familyMutate, nil, pos, nil)
}

// UpdatePreferences applies a partial preferences update.
func (c *Client) UpdatePreferences(ctx context.Context, fields domain.PreferencesUpdate) error {
	return c.do(ctx, http.MethodPatch, "/api/v1/preferences", familyMutate, nil, fields, nil)
}
