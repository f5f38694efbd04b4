package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/listenupapp/listenup-client/internal/api"
	"github.com/listenupapp/listenup-client/internal/domain"
	"github.com/listenupapp/listenup-client/internal/errors"
	"github.com/listenupapp/listenup-client/internal/store"
)

// Puller mirrors server entities into the local store, one entity family
// per call. Pages are applied strictly in cursor order; a failure aborts
// the family's pull but leaves already-applied pages in place (delta sync
// is idempotent, so the next cycle re-covers the gap).
type Puller struct {
	server   ServerClient
	store    *store.Store
	logger   *slog.Logger
	status   *StatusBroadcaster
	pageSize int
}

// NewPuller creates a puller.
func NewPuller(server ServerClient, st *store.Store, status *StatusBroadcaster, pageSize int, logger *slog.Logger) *Puller {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Puller{
		server:   server,
		store:    st,
		logger:   logger,
		status:   status,
		pageSize: pageSize,
	}
}

// pullPages drives the shared page loop. fetch gets one page; apply
// commits it. The next page is never fetched before the previous page's
// writes commit, because its cursor comes from the committed response.
func pullPages[T any](
	ctx context.Context,
	pageSize int,
	updatedAfter *time.Time,
	fetch func(context.Context, api.ListParams) (*api.Page[T], error),
	apply func(context.Context, *api.Page[T]) error,
) error {
	cursor := ""
	hasMore := true

	for hasMore {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.CodeCancelled, "pull cancelled")
		}

		page, err := fetch(ctx, api.ListParams{Limit: pageSize, Cursor: cursor, UpdatedAfter: updatedAfter})
		if err != nil {
			return err
		}

		if err := apply(ctx, page); err != nil {
			return err
		}

		cursor = page.NextCursor
		hasMore = page.HasMore && cursor != ""
	}
	return nil
}

// mergeSyncable decides the sync fields for an incoming server record
// given the existing local one. Implements conflict detection: a server
// version newer than an unpushed local edit flags CONFLICT (server
// fields still win), anything else lands fresh SYNCED.
//
// Returns skip=true when the local record holds a pending edit the
// server has not caught up to yet; overwriting it would silently discard
// the edit before the push path delivers it.
func mergeSyncable(existing *domain.Syncable, id string, createdAt, serverUpdatedAt time.Time) (meta domain.Syncable, skip bool) {
	if existing != nil && (existing.SyncState == domain.SyncStateNotSynced || existing.SyncState == domain.SyncStateSyncing) {
		if serverUpdatedAt.After(existing.LastModified) {
			meta = domain.NewServerSyncable(id, createdAt, serverUpdatedAt)
			meta.SyncState = domain.SyncStateConflict
			return meta, false
		}
		return domain.Syncable{}, true
	}
	return domain.NewServerSyncable(id, createdAt, serverUpdatedAt), false
}

// PullBooks mirrors the book family. total comes from the manifest and
// drives progress reporting.
func (p *Puller) PullBooks(ctx context.Context, updatedAfter *time.Time, total int) error {
	done := 0
	return pullPages(ctx, p.pageSize, updatedAfter, p.server.ListBooks,
		func(ctx context.Context, page *api.Page[api.Book]) error {
			if err := p.store.Books.DeleteBatch(ctx, page.DeletedIDs); err != nil {
				return err
			}

			batch := make([]*domain.Book, 0, len(page.Items))
			for _, item := range page.Items {
				existing, err := p.store.Books.Get(ctx, item.ID)
				if err != nil && !errors.Is(err, store.ErrNotFound) {
					return err
				}

				var existingMeta *domain.Syncable
				if existing != nil {
					existingMeta = existing.Meta()
				}
				meta, skip := mergeSyncable(existingMeta, item.ID, item.CreatedAt, item.UpdatedAt)
				if skip {
					done++
					continue
				}

				book := mapBook(item)
				book.Syncable = meta

				// The server only knows the remote cover URL; carry the
				// locally downloaded path forward or sync erases it.
				if existing != nil && book.CoverPath == "" {
					book.CoverPath = existing.CoverPath
				}

				if book.CoverURL != "" && (book.CoverPath == "" || existing == nil || existing.CoverURL != book.CoverURL) {
					if err := p.store.Downloads.Enqueue(ctx, domain.ImageKindCover, book.ID, book.CoverURL); err != nil {
						p.logWarn("failed to enqueue cover download", err, "book_id", book.ID)
					}
				}

				batch = append(batch, book)
				done++
			}

			if err := p.store.Books.PutBatch(ctx, batch); err != nil {
				return err
			}

			p.status.Publish(Progress(PhaseSyncingBooks, done, total, "Syncing books"))
			return nil
		})
}

// PullContributors mirrors the contributor family.
func (p *Puller) PullContributors(ctx context.Context, updatedAfter *time.Time, total int) error {
	done := 0
	return pullPages(ctx, p.pageSize, updatedAfter, p.server.ListContributors,
		func(ctx context.Context, page *api.Page[api.Contributor]) error {
			if err := p.store.Contributors.DeleteBatch(ctx, page.DeletedIDs); err != nil {
				return err
			}

			batch := make([]*domain.Contributor, 0, len(page.Items))
			for _, item := range page.Items {
				existing, err := p.store.Contributors.Get(ctx, item.ID)
				if err != nil && !errors.Is(err, store.ErrNotFound) {
					return err
				}

				var existingMeta *domain.Syncable
				if existing != nil {
					existingMeta = existing.Meta()
				}
				meta, skip := mergeSyncable(existingMeta, item.ID, item.CreatedAt, item.UpdatedAt)
				if skip {
					done++
					continue
				}

				contributor := mapContributor(item)
				contributor.Syncable = meta

				if existing != nil && contributor.ImagePath == "" {
					contributor.ImagePath = existing.ImagePath
				}

				if contributor.ImageURL != "" && (contributor.ImagePath == "" || existing == nil || existing.ImageURL != contributor.ImageURL) {
					if err := p.store.Downloads.Enqueue(ctx, domain.ImageKindContributor, contributor.ID, contributor.ImageURL); err != nil {
						p.logWarn("failed to enqueue image download", err, "contributor_id", contributor.ID)
					}
				}

				batch = append(batch, contributor)
				done++
			}

			if err := p.store.Contributors.PutBatch(ctx, batch); err != nil {
				return err
			}

			p.status.Publish(Progress(PhaseSyncingContributors, done, total, "Syncing contributors"))
			return nil
		})
}

// PullSeries mirrors the series family.
func (p *Puller) PullSeries(ctx context.Context, updatedAfter *time.Time, total int) error {
	done := 0
	return pullPages(ctx, p.pageSize, updatedAfter, p.server.ListSeries,
		func(ctx context.Context, page *api.Page[api.Series]) error {
			if err := p.store.Series.DeleteBatch(ctx, page.DeletedIDs); err != nil {
				return err
			}

			batch := make([]*domain.Series, 0, len(page.Items))
			for _, item := range page.Items {
				existing, err := p.store.Series.Get(ctx, item.ID)
				if err != nil && !errors.Is(err, store.ErrNotFound) {
					return err
				}

				var existingMeta *domain.Syncable
				if existing != nil {
					existingMeta = existing.Meta()
				}
				meta, skip := mergeSyncable(existingMeta, item.ID, item.CreatedAt, item.UpdatedAt)
				if skip {
					done++
					continue
				}

				series := &domain.Series{
					Syncable:    meta,
					Name:        item.Name,
					Description: item.Description,
					ASIN:        item.ASIN,
				}
				batch = append(batch, series)
				done++
			}

			if err := p.store.Series.PutBatch(ctx, batch); err != nil {
				return err
			}

			p.status.Publish(Progress(PhaseSyncingSeries, done, total, "Syncing series"))
			return nil
		})
}

// PullTags mirrors the tag family. Tags are supplementary metadata:
// failures are logged and swallowed so they never abort a cycle.
func (p *Puller) PullTags(ctx context.Context, updatedAfter *time.Time) error {
	done := 0
	err := pullPages(ctx, p.pageSize, updatedAfter, p.server.ListTags,
		func(ctx context.Context, page *api.Page[api.Tag]) error {
			if err := p.store.Tags.DeleteBatch(ctx, page.DeletedIDs); err != nil {
				return err
			}

			batch := make([]*domain.Tag, 0, len(page.Items))
			for _, item := range page.Items {
				batch = append(batch, &domain.Tag{
					Syncable: domain.NewServerSyncable(item.ID, item.CreatedAt, item.UpdatedAt),
					Name:     item.Name,
					Slug:     item.Slug,
				})
				done++
			}

			if err := p.store.Tags.PutBatch(ctx, batch); err != nil {
				return err
			}

			p.status.Publish(Progress(PhaseSyncingTags, done, 0, "Syncing tags"))
			return nil
		})
	if err != nil {
		if errors.Is(err, errors.ErrCancelled) {
			return err
		}
		p.logWarn("tag pull failed, continuing", err)
	}
	return nil
}

// PullGenres mirrors the genre family.
func (p *Puller) PullGenres(ctx context.Context, updatedAfter *time.Time) error {
	done := 0
	return pullPages(ctx, p.pageSize, updatedAfter, p.server.ListGenres,
		func(ctx context.Context, page *api.Page[api.Genre]) error {
			if err := p.store.Genres.DeleteBatch(ctx, page.DeletedIDs); err != nil {
				return err
			}

			batch := make([]*domain.Genre, 0, len(page.Items))
			for _, item := range page.Items {
				batch = append(batch, &domain.Genre{
					Syncable: domain.NewServerSyncable(item.ID, item.CreatedAt, item.UpdatedAt),
					Name:     item.Name,
					Slug:     item.Slug,
					ParentID: item.ParentID,
				})
				done++
			}

			if err := p.store.Genres.PutBatch(ctx, batch); err != nil {
				return err
			}

			p.status.Publish(Progress(PhaseSyncingGenres, done, 0, "Syncing genres"))
			return nil
		})
}

// PullListeningEvents folds other devices' listening activity into the
// local playback positions. Events are immutable, and the delta cursor
// guarantees each is pulled once, so applying them as they arrive keeps
// the materialized positions consistent. Events recorded on this device
// are skipped - they were already applied when recorded.
func (p *Puller) PullListeningEvents(ctx context.Context, updatedAfter *time.Time, deviceID string) error {
	done := 0
	return pullPages(ctx, p.pageSize, updatedAfter, p.server.ListListeningEvents,
		func(ctx context.Context, page *api.Page[api.ListeningEvent]) error {
			for _, item := range page.Items {
				done++
				if item.DeviceID == deviceID {
					continue
				}

				event := mapListeningEvent(item)

				var bookDuration int64
				if book, err := p.store.Books.Get(ctx, event.BookID); err == nil {
					bookDuration = book.TotalDuration
				} else if !errors.Is(err, store.ErrNotFound) {
					return err
				}

				pos, err := p.store.Positions.Get(ctx, event.BookID)
				switch {
				case errors.Is(err, store.ErrNotFound):
					pos = domain.NewPlaybackPosition(event, bookDuration)
				case err != nil:
					return err
				default:
					pos.UpdateFromEvent(event, bookDuration)
				}

				if err := p.store.Positions.Put(ctx, pos); err != nil {
					return err
				}
			}

			p.status.Publish(Progress(PhaseSyncingListeningEvents, done, 0, "Syncing listening activity"))
			return nil
		})
}

func (p *Puller) logWarn(msg string, err error, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, append([]any{"error", err}, args...)...)
	}
}

// Wire-to-domain mapping.

func mapBook(item api.Book) *domain.Book {
	contributors := make([]domain.BookContributor, 0, len(item.Contributors))
	for _, c := range item.Contributors {
		roles := make([]domain.ContributorRole, 0, len(c.Roles))
		for _, r := range c.Roles {
			roles = append(roles, domain.ContributorRole(r))
		}
		contributors = append(contributors, domain.BookContributor{
			ContributorID: c.ContributorID,
			Roles:         roles,
			CreditedAs:    c.CreditedAs,
		})
	}
	series := make([]domain.BookSeries, 0, len(item.Series))
	for _, s := range item.Series {
		series = append(series, domain.BookSeries{SeriesID: s.SeriesID, Sequence: s.Sequence})
	}

	return &domain.Book{
		Title:         item.Title,
		Subtitle:      item.Subtitle,
		Description:   item.Description,
		Publisher:     item.Publisher,
		PublishYear:   item.PublishYear,
		Language:      item.Language,
		ISBN:          item.ISBN,
		ASIN:          item.ASIN,
		Contributors:  contributors,
		Series:        series,
		Genres:        item.Genres,
		Tags:          item.Tags,
		TotalDuration: item.TotalDuration,
		Explicit:      item.Explicit,
		Abridged:      item.Abridged,
		CoverURL:      item.CoverURL,
		CoverBlurHash: item.CoverBlurHash,
	}
}

func mapContributor(item api.Contributor) *domain.Contributor {
	return &domain.Contributor{
		Name:          item.Name,
		SortName:      item.SortName,
		Biography:     item.Biography,
		Aliases:       item.Aliases,
		ASIN:          item.ASIN,
		ImageURL:      item.ImageURL,
		ImageBlurHash: item.ImageBlurHash,
	}
}

func mapListeningEvent(item api.ListeningEvent) *domain.ListeningEvent {
	return &domain.ListeningEvent{
		ID:              item.ID,
		BookID:          item.BookID,
		StartPositionMs: item.StartPositionMs,
		EndPositionMs:   item.EndPositionMs,
		StartedAt:       item.StartedAt,
		EndedAt:         item.EndedAt,
		PlaybackSpeed:   item.PlaybackSpeed,
		DeviceID:        item.DeviceID,
		DeviceName:      item.DeviceName,
		DurationMs:      item.DurationMs,
		CreatedAt:       item.CreatedAt,
	}
}
