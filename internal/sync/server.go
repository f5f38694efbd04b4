package sync

import (
	"context"

	"github.com/listenupapp/listenup-client/internal/api"
	"github.com/listenupapp/listenup-client/internal/domain"
)

// ServerClient is the slice of the remote API the sync engine consumes.
// *api.Client satisfies it; tests substitute a fake server.
type ServerClient interface {
	GetManifest(ctx context.Context) (*api.Manifest, error)

	ListBooks(ctx context.Context, params api.ListParams) (*api.Page[api.Book], error)
	ListContributors(ctx context.Context, params api.ListParams) (*api.Page[api.Contributor], error)
	ListSeries(ctx context.Context, params api.ListParams) (*api.Page[api.Series], error)
	ListTags(ctx context.Context, params api.ListParams) (*api.Page[api.Tag], error)
	ListGenres(ctx context.Context, params api.ListParams) (*api.Page[api.Genre], error)
	ListListeningEvents(ctx context.Context, params api.ListParams) (*api.Page[api.ListeningEvent], error)

	UpdateBook(ctx context.Context, id string, fields domain.BookUpdate) error
	UpdateContributor(ctx context.Context, id string, fields domain.ContributorUpdate) error
	UpdateSeries(ctx context.Context, id string, fields domain.SeriesUpdate) error
	SetBookContributors(ctx context.Context, bookID string, contributors []domain.BookContributor) error
	SetBookSeries(ctx context.Context, bookID string, series []domain.BookSeries) error
	MergeContributor(ctx context.Context, targetID, sourceID string) error
	UnmergeContributor(ctx context.Context, contributorID, aliasName string) error
	SubmitListeningEvents(ctx context.Context, events []*domain.ListeningEvent) (*api.BatchAck, error)
	UpdatePlaybackPosition(ctx context.Context, pos domain.PositionUpdatePayload) error
	UpdatePreferences(ctx context.Context, fields domain.PreferencesUpdate) error
}
