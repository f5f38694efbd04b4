package sync

import (
	"context"
	"testing"
	"time"

	"github.com/listenupapp/listenup-client/internal/api"
	"github.com/listenupapp/listenup-client/internal/domain"
	"github.com/listenupapp/listenup-client/internal/errors"
	"github.com/listenupapp/listenup-client/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(f *fakeServer, s *store.Store) *Orchestrator {
	status := NewStatusBroadcaster()
	puller := NewPuller(f, s, status, 100, nil)
	pusher := NewPushCoordinator(NewRegistry(f, s, nil), s, 0, nil)
	cfg := OrchestratorConfig{
		DeviceID:        "this-device",
		MaxPhaseRetries: 2,
	}
	return NewOrchestrator(f, s, puller, pusher, status, cfg, nil)
}

func TestRun_FullCycle(t *testing.T) {
	s := newTestStore(t)
	f := newFakeServer()
	ctx := context.Background()
	now := time.Now()

	f.manifest = api.Manifest{
		LibraryID:  "lib-1",
		Checkpoint: "cp-42",
		Counts:     api.ManifestCounts{Books: 2, Contributors: 1, Series: 1},
	}
	f.bookPages = []*api.Page[api.Book]{
		{Items: []api.Book{wireBook("b1", "One", now), wireBook("b2", "Two", now)}},
	}
	f.contributorPages = []*api.Page[api.Contributor]{
		{Items: []api.Contributor{{ID: "c1", Name: "Author", CreatedAt: now, UpdatedAt: now}}},
	}
	f.seriesPages = []*api.Page[api.Series]{
		{Items: []api.Series{{ID: "sr1", Name: "Saga", CreatedAt: now, UpdatedAt: now}}},
	}

	o := newTestOrchestrator(f, s)
	require.NoError(t, o.Run(ctx))

	assert.Equal(t, StatusSuccess, o.Status().Current().Kind)

	// Entities mirrored.
	books, err := s.Books.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, books)

	// Replica bound to the library and checkpoint recorded.
	libID, err := s.Meta.LibraryID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "lib-1", libID)

	cp, err := s.Meta.Checkpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cp-42", cp)

	// Every pull phase got a cursor.
	for _, resource := range []string{"books", "series", "contributors", "tags", "genres", "listening_events"} {
		cursor, err := s.Meta.LastSyncTime(ctx, resource)
		require.NoError(t, err)
		assert.NotNil(t, cursor, "cursor for %s", resource)
	}
}

func TestRun_SecondCycleIsDelta(t *testing.T) {
	s := newTestStore(t)
	f := newFakeServer()
	ctx := context.Background()

	o := newTestOrchestrator(f, s)
	require.NoError(t, o.Run(ctx))

	f.mu.Lock()
	first := f.lastBookParams
	f.mu.Unlock()
	assert.Nil(t, first.UpdatedAfter)

	require.NoError(t, o.Run(ctx))

	f.mu.Lock()
	second := f.lastBookParams
	f.mu.Unlock()
	require.NotNil(t, second.UpdatedAfter)
}

func TestRun_PushesQueuedOperations(t *testing.T) {
	s := newTestStore(t)
	f := newFakeServer()
	ctx := context.Background()

	putLocalBook(t, s, "b1", "One")
	enqueue(t, s, domain.OpBookUpdate, "b1", domain.BookUpdate{Title: ptr("Edited")})

	o := newTestOrchestrator(f, s)
	require.NoError(t, o.Run(ctx))

	assert.Equal(t, 1, f.callCount("UpdateBook"))
	count, err := s.Queue.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRun_LibraryMismatchStopsCycle(t *testing.T) {
	s := newTestStore(t)
	f := newFakeServer()
	ctx := context.Background()

	require.NoError(t, s.Meta.SetLibraryID(ctx, "lib-old"))
	putLocalBook(t, s, "b1", "Unsynced local edit")

	f.manifest.LibraryID = "lib-new"
	f.bookPages = []*api.Page[api.Book]{
		{Items: []api.Book{wireBook("b9", "Should not arrive", time.Now())}},
	}

	o := newTestOrchestrator(f, s)
	require.NoError(t, o.Run(ctx))

	status := o.Status().Current()
	assert.Equal(t, StatusLibraryMismatch, status.Kind)
	assert.Equal(t, "lib-old", status.ExpectedLibraryID)
	assert.Equal(t, "lib-new", status.ActualLibraryID)
	assert.True(t, status.HasPendingChanges)

	// Nothing pulled from the foreign library.
	_, err := s.Books.Get(ctx, "b9")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Binding unchanged until the user decides.
	libID, err := s.Meta.LibraryID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "lib-old", libID)
}

func TestRun_MismatchWithoutPendingChanges(t *testing.T) {
	s := newTestStore(t)
	f := newFakeServer()
	ctx := context.Background()

	require.NoError(t, s.Meta.SetLibraryID(ctx, "lib-old"))
	f.manifest.LibraryID = "lib-new"

	o := newTestOrchestrator(f, s)
	require.NoError(t, o.Run(ctx))

	status := o.Status().Current()
	assert.Equal(t, StatusLibraryMismatch, status.Kind)
	assert.False(t, status.HasPendingChanges)
}

func TestAcceptNewLibrary(t *testing.T) {
	s := newTestStore(t)
	f := newFakeServer()
	ctx := context.Background()

	require.NoError(t, s.Meta.SetLibraryID(ctx, "lib-old"))
	require.NoError(t, s.Meta.SetLastSyncTime(ctx, "books", time.Now()))
	putLocalBook(t, s, "b1", "One")
	enqueue(t, s, domain.OpBookUpdate, "b1", domain.BookUpdate{Title: ptr("Stale edit")})

	o := newTestOrchestrator(f, s)
	require.NoError(t, o.AcceptNewLibrary(ctx, "lib-new"))

	// Operations targeting the old library are gone, cursors cleared.
	count, err := s.Queue.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	cursor, err := s.Meta.LastSyncTime(ctx, "books")
	require.NoError(t, err)
	assert.Nil(t, cursor)

	libID, err := s.Meta.LibraryID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "lib-new", libID)

	// Next cycle runs clean against the new library.
	f.manifest.LibraryID = "lib-new"
	require.NoError(t, o.Run(ctx))
	assert.Equal(t, StatusSuccess, o.Status().Current().Kind)
}

func TestForceFullResync(t *testing.T) {
	s := newTestStore(t)
	f := newFakeServer()
	ctx := context.Background()

	o := newTestOrchestrator(f, s)
	require.NoError(t, o.Run(ctx))

	cursor, err := s.Meta.LastSyncTime(ctx, "books")
	require.NoError(t, err)
	require.NotNil(t, cursor)

	require.NoError(t, o.ForceFullResync(ctx))

	cursor, err = s.Meta.LastSyncTime(ctx, "books")
	require.NoError(t, err)
	assert.Nil(t, cursor)

	// Identity binding survives a forced resync.
	libID, err := s.Meta.LibraryID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "lib-1", libID)
}

func TestRun_RetriesTransientManifestFailure(t *testing.T) {
	s := newTestStore(t)
	f := newFakeServer()
	f.manifestErrOnce = errors.Network("connection reset")

	statuses := collectStatuses(t)
	o := newTestOrchestrator(f, s)
	ch, cancel := o.Status().Subscribe()
	defer cancel()
	go statuses.drain(ch)

	require.NoError(t, o.Run(context.Background()))
	assert.Equal(t, StatusSuccess, o.Status().Current().Kind)
	assert.True(t, statuses.sawKind(StatusRetrying))
}

func TestRun_NonRetryableErrorFailsImmediately(t *testing.T) {
	s := newTestStore(t)
	f := newFakeServer()
	f.manifestErr = errors.Unauthorized("token expired")

	o := newTestOrchestrator(f, s)
	err := o.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnauthorized)

	status := o.Status().Current()
	assert.Equal(t, StatusError, status.Kind)
}

func TestRun_CancelledCycleGoesIdle(t *testing.T) {
	s := newTestStore(t)
	f := newFakeServer()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newTestOrchestrator(f, s)
	err := o.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCancelled)
	assert.Equal(t, StatusIdle, o.Status().Current().Kind)
}

// statusCollector accumulates published statuses for later inspection.
type statusCollector struct {
	t     *testing.T
	kinds chan StatusKind
}

func collectStatuses(t *testing.T) *statusCollector {
	return &statusCollector{t: t, kinds: make(chan StatusKind, 256)}
}

func (c *statusCollector) drain(ch <-chan Status) {
	for status := range ch {
		select {
		case c.kinds <- status.Kind:
		default:
		}
	}
}

func (c *statusCollector) sawKind(kind StatusKind) bool {
	deadline := time.After(2 * time.Second)
	for {
		select {
		case k := <-c.kinds:
			if k == kind {
				return true
			}
		case <-deadline:
			return false
		}
	}
}
