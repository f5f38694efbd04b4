// Package service provides the business logic layer UI code calls: local
// reads over the mirrored library, and local edits that apply immediately
// and enqueue the matching operation for the next push.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/listenupapp/listenup-client/internal/domain"
	"github.com/listenupapp/listenup-client/internal/errors"
	"github.com/listenupapp/listenup-client/internal/id"
	"github.com/listenupapp/listenup-client/internal/store"
	"github.com/listenupapp/listenup-client/internal/validation"
)

// LibraryService handles library reads and local metadata edits.
type LibraryService struct {
	store    *store.Store
	notifier *store.Notifier
	validate *validation.Validator
	logger   *slog.Logger
}

// NewLibraryService creates a new library service.
func NewLibraryService(st *store.Store, notifier *store.Notifier, validate *validation.Validator, logger *slog.Logger) *LibraryService {
	return &LibraryService{
		store:    st,
		notifier: notifier,
		validate: validate,
		logger:   logger,
	}
}

// Observe subscribes to local data changes so UI layers can re-render
// reactively. The returned cancel function must be called when done.
func (s *LibraryService) Observe() (<-chan store.Change, func()) {
	return s.notifier.Subscribe()
}

// GetBook returns one book.
func (s *LibraryService) GetBook(ctx context.Context, bookID string) (*domain.Book, error) {
	return s.store.Books.Get(ctx, bookID)
}

// ListBooks returns all mirrored books sorted by title.
func (s *LibraryService) ListBooks(ctx context.Context) ([]*domain.Book, error) {
	var books []*domain.Book
	for book, err := range s.store.Books.List(ctx) {
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	slices.SortFunc(books, func(a, b *domain.Book) int {
		return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	})
	return books, nil
}

// GetContributor returns one contributor.
func (s *LibraryService) GetContributor(ctx context.Context, contributorID string) (*domain.Contributor, error) {
	return s.store.Contributors.Get(ctx, contributorID)
}

// ListContributors returns all mirrored contributors sorted by sort name.
func (s *LibraryService) ListContributors(ctx context.Context) ([]*domain.Contributor, error) {
	var contributors []*domain.Contributor
	for contributor, err := range s.store.Contributors.List(ctx) {
		if err != nil {
			return nil, err
		}
		contributors = append(contributors, contributor)
	}
	slices.SortFunc(contributors, func(a, b *domain.Contributor) int {
		return strings.Compare(strings.ToLower(a.SortKey()), strings.ToLower(b.SortKey()))
	})
	return contributors, nil
}

// GetSeries returns one series.
func (s *LibraryService) GetSeries(ctx context.Context, seriesID string) (*domain.Series, error) {
	return s.store.Series.Get(ctx, seriesID)
}

// ListSeries returns all mirrored series sorted by name.
func (s *LibraryService) ListSeries(ctx context.Context) ([]*domain.Series, error) {
	var series []*domain.Series
	for sr, err := range s.store.Series.List(ctx) {
		if err != nil {
			return nil, err
		}
		series = append(series, sr)
	}
	slices.SortFunc(series, func(a, b *domain.Series) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return series, nil
}

// UpdateBookRequest carries edited book fields. Nil means "not touched".
type UpdateBookRequest struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,min=1,max=500"`
	Subtitle    *string `json:"subtitle,omitempty" validate:"omitempty,max=500"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=10000"`
	Publisher   *string `json:"publisher,omitempty" validate:"omitempty,max=200"`
	PublishYear *string `json:"publish_year,omitempty" validate:"omitempty,max=20"`
	Language    *string `json:"language,omitempty" validate:"omitempty,max=50"`
	ISBN        *string `json:"isbn,omitempty" validate:"omitempty,max=20"`
	ASIN        *string `json:"asin,omitempty" validate:"omitempty,max=20"`
	Explicit    *bool   `json:"explicit,omitempty"`
	Abridged    *bool   `json:"abridged,omitempty"`
}

// UpdateBook applies a metadata edit locally and queues it for push.
func (s *LibraryService) UpdateBook(ctx context.Context, bookID string, req UpdateBookRequest) (*domain.Book, error) {
	if err := s.validate.Validate(req); err != nil {
		return nil, err
	}

	book, err := s.store.Books.Get(ctx, bookID)
	if err != nil {
		return nil, err
	}

	update := domain.BookUpdate{
		Title:       req.Title,
		Subtitle:    req.Subtitle,
		Description: req.Description,
		Publisher:   req.Publisher,
		PublishYear: req.PublishYear,
		Language:    req.Language,
		ISBN:        req.ISBN,
		ASIN:        req.ASIN,
		Explicit:    req.Explicit,
		Abridged:    req.Abridged,
	}

	applyBookUpdate(book, update)
	book.MarkLocalEdit()

	if err := s.store.Books.Put(ctx, book); err != nil {
		return nil, fmt.Errorf("store book: %w", err)
	}

	if err := s.enqueue(ctx, domain.OpBookUpdate, bookID, update); err != nil {
		return nil, err
	}

	s.logDebug("queued book update", "book_id", bookID)
	return book, nil
}

// UpdateContributorRequest carries edited contributor fields.
type UpdateContributorRequest struct {
	Name      *string  `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	SortName  *string  `json:"sort_name,omitempty" validate:"omitempty,max=200"`
	Biography *string  `json:"biography,omitempty" validate:"omitempty,max=10000"`
	Aliases   []string `json:"aliases,omitempty" validate:"omitempty,dive,min=1,max=200"`
	ASIN      *string  `json:"asin,omitempty" validate:"omitempty,max=20"`
}

// UpdateContributor applies a contributor edit locally and queues it.
func (s *LibraryService) UpdateContributor(ctx context.Context, contributorID string, req UpdateContributorRequest) (*domain.Contributor, error) {
	if err := s.validate.Validate(req); err != nil {
		return nil, err
	}

	contributor, err := s.store.Contributors.Get(ctx, contributorID)
	if err != nil {
		return nil, err
	}

	update := domain.ContributorUpdate{
		Name:      req.Name,
		SortName:  req.SortName,
		Biography: req.Biography,
		Aliases:   req.Aliases,
		ASIN:      req.ASIN,
	}

	if update.Name != nil {
		contributor.Name = *update.Name
	}
	if update.SortName != nil {
		contributor.SortName = *update.SortName
	}
	if update.Biography != nil {
		contributor.Biography = *update.Biography
	}
	if update.Aliases != nil {
		contributor.Aliases = update.Aliases
	}
	if update.ASIN != nil {
		contributor.ASIN = *update.ASIN
	}
	contributor.MarkLocalEdit()

	if err := s.store.Contributors.Put(ctx, contributor); err != nil {
		return nil, fmt.Errorf("store contributor: %w", err)
	}

	if err := s.enqueue(ctx, domain.OpContributorUpdate, contributorID, update); err != nil {
		return nil, err
	}

	s.logDebug("queued contributor update", "contributor_id", contributorID)
	return contributor, nil
}

// UpdateSeriesRequest carries edited series fields.
type UpdateSeriesRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=10000"`
	ASIN        *string `json:"asin,omitempty" validate:"omitempty,max=20"`
}

// UpdateSeries applies a series edit locally and queues it.
func (s *LibraryService) UpdateSeries(ctx context.Context, seriesID string, req UpdateSeriesRequest) (*domain.Series, error) {
	if err := s.validate.Validate(req); err != nil {
		return nil, err
	}

	series, err := s.store.Series.Get(ctx, seriesID)
	if err != nil {
		return nil, err
	}

	update := domain.SeriesUpdate{
		Name:        req.Name,
		Description: req.Description,
		ASIN:        req.ASIN,
	}

	if update.Name != nil {
		series.Name = *update.Name
	}
	if update.Description != nil {
		series.Description = *update.Description
	}
	if update.ASIN != nil {
		series.ASIN = *update.ASIN
	}
	series.MarkLocalEdit()

	if err := s.store.Series.Put(ctx, series); err != nil {
		return nil, fmt.Errorf("store series: %w", err)
	}

	if err := s.enqueue(ctx, domain.OpSeriesUpdate, seriesID, update); err != nil {
		return nil, err
	}

	s.logDebug("queued series update", "series_id", seriesID)
	return series, nil
}

// SetBookContributors replaces a book's full contributor list locally
// and queues the replacement.
func (s *LibraryService) SetBookContributors(ctx context.Context, bookID string, contributors []domain.BookContributor) (*domain.Book, error) {
	for _, bc := range contributors {
		if bc.ContributorID == "" {
			return nil, errors.Validation("contributor_id is required")
		}
		if len(bc.Roles) == 0 {
			return nil, errors.Validation("at least one role is required per contributor")
		}
		for _, role := range bc.Roles {
			if !role.IsValid() {
				return nil, errors.Validation(fmt.Sprintf("unknown contributor role %q", role))
			}
		}
		if _, err := s.store.Contributors.Get(ctx, bc.ContributorID); err != nil {
			return nil, err
		}
	}

	book, err := s.store.Books.Get(ctx, bookID)
	if err != nil {
		return nil, err
	}

	book.Contributors = contributors
	book.MarkLocalEdit()

	if err := s.store.Books.Put(ctx, book); err != nil {
		return nil, fmt.Errorf("store book: %w", err)
	}

	payload := domain.SetBookContributorsPayload{BookID: bookID, Contributors: contributors}
	if err := s.enqueue(ctx, domain.OpSetBookContributor, bookID, payload); err != nil {
		return nil, err
	}
	return book, nil
}

// SetBookSeries replaces a book's full series list locally and queues
// the replacement.
func (s *LibraryService) SetBookSeries(ctx context.Context, bookID string, series []domain.BookSeries) (*domain.Book, error) {
	for _, bs := range series {
		if bs.SeriesID == "" {
			return nil, errors.Validation("series_id is required")
		}
		if _, err := s.store.Series.Get(ctx, bs.SeriesID); err != nil {
			return nil, err
		}
	}

	book, err := s.store.Books.Get(ctx, bookID)
	if err != nil {
		return nil, err
	}

	book.Series = series
	book.MarkLocalEdit()

	if err := s.store.Books.Put(ctx, book); err != nil {
		return nil, fmt.Errorf("store book: %w", err)
	}

	payload := domain.SetBookSeriesPayload{BookID: bookID, Series: series}
	if err := s.enqueue(ctx, domain.OpSetBookSeries, bookID, payload); err != nil {
		return nil, err
	}
	return book, nil
}

// MergeContributors folds source into target: target absorbs the
// source's name and aliases, book credits are rewritten to the target
// with the original attribution preserved, and the source is removed.
// The merge is queued as its own operation so the server replays the
// same fold; it never coalesces with anything.
func (s *LibraryService) MergeContributors(ctx context.Context, targetID, sourceID string) (*domain.Contributor, error) {
	if targetID == sourceID {
		return nil, errors.Validation("cannot merge a contributor into itself")
	}

	target, err := s.store.Contributors.Get(ctx, targetID)
	if err != nil {
		return nil, err
	}
	source, err := s.store.Contributors.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	if !slices.Contains(target.Aliases, source.Name) {
		target.Aliases = append(target.Aliases, source.Name)
	}
	for _, alias := range source.Aliases {
		if !slices.Contains(target.Aliases, alias) {
			target.Aliases = append(target.Aliases, alias)
		}
	}
	target.MarkLocalEdit()

	// Rewrite book credits pointing at the source.
	for book, err := range s.store.Books.List(ctx) {
		if err != nil {
			return nil, err
		}
		if !book.HasContributor(sourceID) {
			continue
		}
		for i, bc := range book.Contributors {
			if bc.ContributorID == sourceID {
				book.Contributors[i].ContributorID = targetID
				if book.Contributors[i].CreditedAs == "" {
					book.Contributors[i].CreditedAs = source.Name
				}
			}
		}
		if err := s.store.Books.Put(ctx, book); err != nil {
			return nil, fmt.Errorf("rewrite book credits: %w", err)
		}
	}

	if err := s.store.Contributors.Put(ctx, target); err != nil {
		return nil, fmt.Errorf("store contributor: %w", err)
	}
	if err := s.store.Contributors.Delete(ctx, sourceID); err != nil {
		return nil, fmt.Errorf("remove merged contributor: %w", err)
	}

	payload := domain.MergeContributorPayload{TargetID: targetID, SourceID: sourceID}
	if err := s.enqueue(ctx, domain.OpMergeContributor, targetID, payload); err != nil {
		return nil, err
	}

	s.logDebug("queued contributor merge", "target_id", targetID, "source_id", sourceID)
	return target, nil
}

// UnmergeContributor splits an alias back out into its own contributor.
// The new contributor gets a locally generated ID; the next pull
// reconciles it with whatever ID the server assigned.
func (s *LibraryService) UnmergeContributor(ctx context.Context, contributorID, aliasName string) (*domain.Contributor, error) {
	if aliasName == "" {
		return nil, errors.Validation("alias_name is required")
	}

	contributor, err := s.store.Contributors.Get(ctx, contributorID)
	if err != nil {
		return nil, err
	}
	idx := slices.Index(contributor.Aliases, aliasName)
	if idx < 0 {
		return nil, errors.NotFound(fmt.Sprintf("alias %q not found on contributor", aliasName))
	}

	contributor.Aliases = slices.Delete(contributor.Aliases, idx, idx+1)
	contributor.MarkLocalEdit()

	newID, err := id.Generate("ctr")
	if err != nil {
		return nil, fmt.Errorf("generate contributor ID: %w", err)
	}
	now := time.Now()
	split := &domain.Contributor{
		Syncable: domain.Syncable{
			ID:           newID,
			CreatedAt:    now,
			UpdatedAt:    now,
			LastModified: now,
			SyncState:    domain.SyncStateNotSynced,
		},
		Name: aliasName,
	}

	// Books credited under the alias follow the split-out contributor.
	for book, err := range s.store.Books.List(ctx) {
		if err != nil {
			return nil, err
		}
		changed := false
		for i, bc := range book.Contributors {
			if bc.ContributorID == contributorID && bc.CreditedAs == aliasName {
				book.Contributors[i].ContributorID = newID
				book.Contributors[i].CreditedAs = ""
				changed = true
			}
		}
		if !changed {
			continue
		}
		if err := s.store.Books.Put(ctx, book); err != nil {
			return nil, fmt.Errorf("rewrite book credits: %w", err)
		}
	}

	if err := s.store.Contributors.Put(ctx, contributor); err != nil {
		return nil, fmt.Errorf("store contributor: %w", err)
	}
	if err := s.store.Contributors.Put(ctx, split); err != nil {
		return nil, fmt.Errorf("store split contributor: %w", err)
	}

	payload := domain.UnmergeContributorPayload{ContributorID: contributorID, AliasName: aliasName}
	if err := s.enqueue(ctx, domain.OpUnmergeContributor, contributorID, payload); err != nil {
		return nil, err
	}

	s.logDebug("queued contributor unmerge", "contributor_id", contributorID, "alias", aliasName)
	return split, nil
}

// enqueue creates and persists a pending operation.
func (s *LibraryService) enqueue(ctx context.Context, opType domain.OperationType, targetID string, payload any) error {
	op, err := newOperation(opType, targetID, payload)
	if err != nil {
		return err
	}
	if err := s.store.Queue.Enqueue(ctx, op); err != nil {
		return fmt.Errorf("enqueue operation: %w", err)
	}
	return nil
}

func (s *LibraryService) logDebug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
