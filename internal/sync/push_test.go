package sync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/listenupapp/listenup-client/internal/api"
	"github.com/listenupapp/listenup-client/internal/domain"
	"github.com/listenupapp/listenup-client/internal/errors"
	"github.com/listenupapp/listenup-client/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

var opSerial int

func enqueue(t *testing.T, s *store.Store, typ domain.OperationType, target string, payload any) *domain.PendingOperation {
	t.Helper()
	raw, err := encodePayload(payload)
	require.NoError(t, err)

	opSerial++
	op := &domain.PendingOperation{
		ID:         fmt.Sprintf("op-%03d", opSerial),
		Type:       typ,
		TargetID:   target,
		Payload:    raw,
		EnqueuedAt: time.Now(),
	}
	require.NoError(t, s.Queue.Enqueue(context.Background(), op))
	return op
}

func putLocalBook(t *testing.T, s *store.Store, id, title string) *domain.Book {
	t.Helper()
	book := &domain.Book{
		Syncable: domain.Syncable{
			ID:           id,
			CreatedAt:    time.Now().Add(-time.Hour),
			UpdatedAt:    time.Now(),
			LastModified: time.Now(),
			SyncState:    domain.SyncStateNotSynced,
		},
		Title: title,
	}
	require.NoError(t, s.Books.Put(context.Background(), book))
	return book
}

func newTestCoordinator(f *fakeServer, s *store.Store) *PushCoordinator {
	return NewPushCoordinator(NewRegistry(f, s, nil), s, 0, nil)
}

func TestPush_CoalescesFieldUpdates(t *testing.T) {
	s := newTestStore(t)
	f := newFakeServer()
	ctx := context.Background()
	putLocalBook(t, s, "b1", "Old Title")

	enqueue(t, s, domain.OpBookUpdate, "b1", domain.BookUpdate{Title: ptr("New Title")})
	enqueue(t, s, domain.OpBookUpdate, "b1", domain.BookUpdate{Subtitle: ptr("New Subtitle")})

	result, err := newTestCoordinator(f, s).Push(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Drained)
	assert.Equal(t, 1, result.Coalesced)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 0, result.Failed)

	// One request carrying both fields.
	assert.Equal(t, 1, f.callCount("UpdateBook"))
	sent := f.lastBookUpdate["b1"]
	require.NotNil(t, sent.Title)
	require.NotNil(t, sent.Subtitle)
	assert.Equal(t, "New Title", *sent.Title)
	assert.Equal(t, "New Subtitle", *sent.Subtitle)

	count, err := s.Queue.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	book, err := s.Books.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStateSynced, book.SyncState)
	assert.NotNil(t, book.ServerVersion)
}

func TestPush_NewerFieldWinsOnOverlap(t *testing.T) {
	s := newTestStore(t)
	f := newFakeServer()
	putLocalBook(t, s, "b1", "Old Title")

	enqueue(t, s, domain.OpBookUpdate, "b1", domain.BookUpdate{Title: ptr("First")})
	enqueue(t, s, domain.OpBookUpdate, "b1", domain.BookUpdate{Title: ptr("Second")})

	_, err := newTestCoordinator(f, s).Push(context.Background())
	require.NoError(t, err)

	sent := f.lastBookUpdate["b1"]
	require.NotNil(t, sent.Title)
	assert.Equal(t, "Second", *sent.Title)
}

func TestPush_FullReplacementCoalesce(t *testing.T) {
	s := newTestStore(t)
	f := newFakeServer()
	putLocalBook(t, s, "b1", "One")

	enqueue(t, s, domain.OpSetBookContributor, "b1", domain.SetBookContributorsPayload{
		BookID:       "b1",
		Contributors: []domain.BookContributor{{ContributorID: "c1", Roles: []domain.ContributorRole{domain.RoleAuthor}}},
	})
	enqueue(t, s, domain.OpSetBookContributor, "b1", domain.SetBookContributorsPayload{
		BookID:       "b1",
		Contributors: []domain.BookContributor{{ContributorID: "c2", Roles: []domain.ContributorRole{domain.RoleNarrator}}},
	})

	result, err := newTestCoordinator(f, s).Push(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Coalesced)
	// Full replacement: only the newer assignment goes out.
	assert.Equal(t, 1, f.callCount("SetBookContributors"))
}

func TestPush_MergesNeverCoalesce(t *testing.T) {
	s := newTestStore(t)
	f := newFakeServer()

	enqueue(t, s, domain.OpMergeContributor, "c1", domain.MergeContributorPayload{TargetID: "c1", SourceID: "c2"})
	enqueue(t, s, domain.OpMergeContributor, "c1", domain.MergeContributorPayload{TargetID: "c1", SourceID: "c3"})

	result, err := newTestCoordinator(f, s).Push(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Coalesced)
	assert.Equal(t, 2, result.Succeeded)

	f.mu.Lock()
	calls := append([]string(nil), f.calls...)
	f.mu.Unlock()
	assert.Equal(t, []string{"MergeContributor:c1<-c2", "MergeContributor:c1<-c3"}, calls)
}

func TestPush_MergeIsBarrierForContributorEdits(t *testing.T) {
	s := newTestStore(t)
	f := newFakeServer()
	ctx := context.Background()

	contributor := &domain.Contributor{
		Syncable: domain.Syncable{
			ID:           "c1",
			CreatedAt:    time.Now().Add(-time.Hour),
			UpdatedAt:    time.Now(),
			LastModified: time.Now(),
			SyncState:    domain.SyncStateNotSynced,
		},
		Name: "S. King",
	}
	require.NoError(t, s.Contributors.Put(ctx, contributor))

	// Edit, merge, edit on the same contributor. The edits must not
	// compact across the merge.
	enqueue(t, s, domain.OpContributorUpdate, "c1", domain.ContributorUpdate{Name: ptr("Stephen King")})
	enqueue(t, s, domain.OpMergeContributor, "c1", domain.MergeContributorPayload{TargetID: "c1", SourceID: "c2"})
	enqueue(t, s, domain.OpContributorUpdate, "c1", domain.ContributorUpdate{SortName: ptr("King, Stephen")})

	result, err := newTestCoordinator(f, s).Push(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Coalesced)
	assert.Equal(t, 3, result.Succeeded)

	f.mu.Lock()
	calls := append([]string(nil), f.calls...)
	f.mu.Unlock()
	assert.Equal(t, []string{
		"UpdateContributor:c1",
		"MergeContributor:c1<-c2",
		"UpdateContributor:c1",
	}, calls)
}

func TestPush_PartialBatchAck(t *testing.T) {
	s := newTestStore(t)
	f := newFakeServer()
	ctx := context.Background()

	events := make([]*domain.ListeningEvent, 3)
	for i := range events {
		events[i] = domain.NewListeningEvent(
			fmt.Sprintf("evt-%d", i+1), "b1",
			int64(i)*60000, int64(i+1)*60000,
			time.Now().Add(-time.Minute), time.Now(),
			1.0, "dev-1", "Pixel",
		)
		enqueue(t, s, domain.OpListeningEvent, events[i].ID, events[i])
	}

	require.NoError(t, s.Positions.Put(ctx, domain.NewPlaybackPosition(events[0], 3600000)))

	// Server acknowledges only the first two.
	f.ack = func(submitted []*domain.ListeningEvent) *api.BatchAck {
		return &api.BatchAck{
			Acknowledged: []string{"evt-1", "evt-2"},
			Failed:       []string{"evt-3"},
		}
	}

	result, err := newTestCoordinator(f, s).Push(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Drained)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)

	// One request for the whole batch.
	assert.Equal(t, 1, f.callCount("SubmitListeningEvents"))

	// Only the unacknowledged event remains queued.
	pending, err := s.Queue.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "evt-3", pending[0].TargetID)
	assert.Equal(t, 1, pending[0].Attempts)

	// Acked events marked the position as server-known.
	pos, err := s.Positions.Get(ctx, "b1")
	require.NoError(t, err)
	assert.NotNil(t, pos.SyncedAt)
}

func TestPush_FailureKeepsOperationQueued(t *testing.T) {
	s := newTestStore(t)
	f := newFakeServer()
	ctx := context.Background()
	putLocalBook(t, s, "b1", "One")

	f.execErr["UpdateBook:b1"] = errors.Server("internal error")
	enqueue(t, s, domain.OpBookUpdate, "b1", domain.BookUpdate{Title: ptr("New")})

	result, err := newTestCoordinator(f, s).Push(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Succeeded)
	assert.Equal(t, 1, result.Failed)

	pending, err := s.Queue.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.NotNil(t, pending[0].LastAttemptAt)

	book, err := s.Books.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStateNotSynced, book.SyncState)
}

func TestPush_IndependentTargetsAreIsolated(t *testing.T) {
	s := newTestStore(t)
	f := newFakeServer()
	ctx := context.Background()
	putLocalBook(t, s, "b1", "One")
	putLocalBook(t, s, "b2", "Two")

	f.execErr["UpdateBook:b1"] = errors.Server("internal error")
	enqueue(t, s, domain.OpBookUpdate, "b1", domain.BookUpdate{Title: ptr("Fails")})
	enqueue(t, s, domain.OpBookUpdate, "b2", domain.BookUpdate{Title: ptr("Lands")})

	result, err := newTestCoordinator(f, s).Push(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)

	pending, err := s.Queue.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b1", pending[0].TargetID)
}

func TestPush_OfflineEditsCompactIntoOneRequest(t *testing.T) {
	s := newTestStore(t)
	f := newFakeServer()
	ctx := context.Background()
	putLocalBook(t, s, "b1", "Original")
	c := newTestCoordinator(f, s)

	// First edit pushes cleanly.
	enqueue(t, s, domain.OpBookUpdate, "b1", domain.BookUpdate{Title: ptr("Edit One")})
	result, err := c.Push(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)

	book, err := s.Books.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStateSynced, book.SyncState)

	// Two more edits while offline; the next pass sends one request.
	enqueue(t, s, domain.OpBookUpdate, "b1", domain.BookUpdate{Subtitle: ptr("Sub")})
	enqueue(t, s, domain.OpBookUpdate, "b1", domain.BookUpdate{Publisher: ptr("Pub")})

	result, err = c.Push(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Coalesced)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 2, f.callCount("UpdateBook"))

	sent := f.lastBookUpdate["b1"]
	require.NotNil(t, sent.Subtitle)
	require.NotNil(t, sent.Publisher)
	assert.Nil(t, sent.Title)

	count, err := s.Queue.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
