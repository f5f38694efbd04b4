package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/listenupapp/listenup-client/internal/domain"
	"github.com/listenupapp/listenup-client/internal/errors"
	"github.com/listenupapp/listenup-client/internal/store"
	"github.com/listenupapp/listenup-client/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLibrary(t *testing.T) (*LibraryService, *store.Store) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "library-service-test-*")
	require.NoError(t, err)

	notifier := store.NewNotifier()
	testStore, err := store.New(filepath.Join(tmpDir, "test.db"), nil, notifier)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = testStore.Close()
		_ = os.RemoveAll(tmpDir)
	})

	svc := NewLibraryService(testStore, notifier, validation.New(), nil)
	return svc, testStore
}

func seedBook(t *testing.T, s *store.Store, id, title string) *domain.Book {
	t.Helper()
	book := &domain.Book{
		Syncable: domain.NewServerSyncable(id, time.Now().Add(-time.Hour), time.Now().Add(-time.Hour)),
		Title:    title,
	}
	require.NoError(t, s.Books.Put(context.Background(), book))
	return book
}

func seedContributor(t *testing.T, s *store.Store, id, name string, aliases ...string) *domain.Contributor {
	t.Helper()
	contributor := &domain.Contributor{
		Syncable: domain.NewServerSyncable(id, time.Now().Add(-time.Hour), time.Now().Add(-time.Hour)),
		Name:     name,
		Aliases:  aliases,
	}
	require.NoError(t, s.Contributors.Put(context.Background(), contributor))
	return contributor
}

func strPtr(s string) *string { return &s }

func TestUpdateBook_AppliesLocallyAndEnqueues(t *testing.T) {
	svc, s := setupTestLibrary(t)
	ctx := context.Background()
	seedBook(t, s, "b1", "Old Title")

	updated, err := svc.UpdateBook(ctx, "b1", UpdateBookRequest{Title: strPtr("New Title")})
	require.NoError(t, err)
	assert.Equal(t, "New Title", updated.Title)
	assert.Equal(t, domain.SyncStateNotSynced, updated.SyncState)

	stored, err := s.Books.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "New Title", stored.Title)

	pending, err := s.Queue.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.OpBookUpdate, pending[0].Type)
	assert.Equal(t, "b1", pending[0].TargetID)
}

func TestUpdateBook_ValidationRejectsBeforePersisting(t *testing.T) {
	svc, s := setupTestLibrary(t)
	ctx := context.Background()
	seedBook(t, s, "b1", "Old Title")

	_, err := svc.UpdateBook(ctx, "b1", UpdateBookRequest{Title: strPtr("")})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrValidation)

	stored, err := s.Books.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Old Title", stored.Title)

	count, err := s.Queue.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestUpdateBook_NotFound(t *testing.T) {
	svc, _ := setupTestLibrary(t)

	_, err := svc.UpdateBook(context.Background(), "missing", UpdateBookRequest{Title: strPtr("X")})
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestSetBookContributors_RejectsUnknownRole(t *testing.T) {
	svc, s := setupTestLibrary(t)
	ctx := context.Background()
	seedBook(t, s, "b1", "One")
	seedContributor(t, s, "c1", "Author")

	_, err := svc.SetBookContributors(ctx, "b1", []domain.BookContributor{
		{ContributorID: "c1", Roles: []domain.ContributorRole{"composer"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestSetBookContributors_ReplacesAndEnqueues(t *testing.T) {
	svc, s := setupTestLibrary(t)
	ctx := context.Background()

	book := seedBook(t, s, "b1", "One")
	book.Contributors = []domain.BookContributor{{ContributorID: "c0", Roles: []domain.ContributorRole{domain.RoleAuthor}}}
	require.NoError(t, s.Books.Put(ctx, book))
	seedContributor(t, s, "c1", "Author")
	seedContributor(t, s, "c2", "Narrator")

	updated, err := svc.SetBookContributors(ctx, "b1", []domain.BookContributor{
		{ContributorID: "c1", Roles: []domain.ContributorRole{domain.RoleAuthor}},
		{ContributorID: "c2", Roles: []domain.ContributorRole{domain.RoleNarrator}},
	})
	require.NoError(t, err)
	require.Len(t, updated.Contributors, 2)

	pending, err := s.Queue.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.OpSetBookContributor, pending[0].Type)
}

func TestMergeContributors_RewritesCreditsAndEnqueues(t *testing.T) {
	svc, s := setupTestLibrary(t)
	ctx := context.Background()

	seedContributor(t, s, "c1", "Stephen King")
	seedContributor(t, s, "c2", "Richard Bachman", "Dicky B")
	book := seedBook(t, s, "b1", "Thinner")
	book.Contributors = []domain.BookContributor{{ContributorID: "c2", Roles: []domain.ContributorRole{domain.RoleAuthor}}}
	require.NoError(t, s.Books.Put(ctx, book))

	target, err := svc.MergeContributors(ctx, "c1", "c2")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Richard Bachman", "Dicky B"}, target.Aliases)

	// Source is gone; the book is credited to the target under the
	// source's name.
	_, err = s.Contributors.Get(ctx, "c2")
	assert.ErrorIs(t, err, store.ErrNotFound)

	merged, err := s.Books.Get(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, merged.Contributors, 1)
	assert.Equal(t, "c1", merged.Contributors[0].ContributorID)
	assert.Equal(t, "Richard Bachman", merged.Contributors[0].CreditedAs)

	pending, err := s.Queue.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.OpMergeContributor, pending[0].Type)
	assert.Equal(t, "c1", pending[0].TargetID)
}

func TestMergeContributors_SelfMergeRejected(t *testing.T) {
	svc, s := setupTestLibrary(t)
	seedContributor(t, s, "c1", "Someone")

	_, err := svc.MergeContributors(context.Background(), "c1", "c1")
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestUnmergeContributor_SplitsAliasBackOut(t *testing.T) {
	svc, s := setupTestLibrary(t)
	ctx := context.Background()

	seedContributor(t, s, "c1", "Stephen King", "Richard Bachman")
	book := seedBook(t, s, "b1", "Thinner")
	book.Contributors = []domain.BookContributor{
		{ContributorID: "c1", Roles: []domain.ContributorRole{domain.RoleAuthor}, CreditedAs: "Richard Bachman"},
	}
	require.NoError(t, s.Books.Put(ctx, book))

	split, err := svc.UnmergeContributor(ctx, "c1", "Richard Bachman")
	require.NoError(t, err)
	assert.Equal(t, "Richard Bachman", split.Name)
	assert.Equal(t, domain.SyncStateNotSynced, split.SyncState)

	remaining, err := s.Contributors.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, remaining.Aliases)

	// The book credited under the alias follows the split contributor.
	updated, err := s.Books.Get(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, updated.Contributors, 1)
	assert.Equal(t, split.ID, updated.Contributors[0].ContributorID)

	pending, err := s.Queue.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.OpUnmergeContributor, pending[0].Type)
}

func TestUnmergeContributor_UnknownAlias(t *testing.T) {
	svc, s := setupTestLibrary(t)
	seedContributor(t, s, "c1", "Someone")

	_, err := svc.UnmergeContributor(context.Background(), "c1", "Nobody")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestObserve_NotifiesOnLocalEdit(t *testing.T) {
	svc, s := setupTestLibrary(t)
	ctx := context.Background()
	seedBook(t, s, "b1", "One")

	ch, cancel := svc.Observe()
	defer cancel()

	// Drain the seed's change if buffered.
	drained := true
	for drained {
		select {
		case <-ch:
		default:
			drained = false
		}
	}

	_, err := svc.UpdateBook(ctx, "b1", UpdateBookRequest{Title: strPtr("Two")})
	require.NoError(t, err)

	select {
	case change := <-ch:
		assert.Equal(t, store.ChangeKindBook, change.Kind)
		assert.Equal(t, "b1", change.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change notification")
	}
}

func TestListBooks_SortedByTitle(t *testing.T) {
	svc, s := setupTestLibrary(t)
	seedBook(t, s, "b1", "zebra")
	seedBook(t, s, "b2", "Apple")

	books, err := svc.ListBooks(context.Background())
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "Apple", books[0].Title)
	assert.Equal(t, "zebra", books[1].Title)
}
