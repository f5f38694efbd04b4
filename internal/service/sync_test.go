package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/listenupapp/listenup-client/internal/api"
	"github.com/listenupapp/listenup-client/internal/domain"
	"github.com/listenupapp/listenup-client/internal/errors"
	"github.com/listenupapp/listenup-client/internal/store"
	"github.com/listenupapp/listenup-client/internal/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubServer is a minimal ServerClient: an empty library with a fixed
// identity. block, when set, stalls GetManifest until closed so tests
// can observe a cycle mid-flight.
type stubServer struct {
	libraryID string
	block     chan struct{}
}

func (s *stubServer) GetManifest(ctx context.Context) (*api.Manifest, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), errors.CodeCancelled, "request cancelled")
		}
	}
	return &api.Manifest{LibraryID: s.libraryID, Checkpoint: "cp"}, nil
}

func (s *stubServer) ListBooks(context.Context, api.ListParams) (*api.Page[api.Book], error) {
	return &api.Page[api.Book]{}, nil
}
func (s *stubServer) ListContributors(context.Context, api.ListParams) (*api.Page[api.Contributor], error) {
	return &api.Page[api.Contributor]{}, nil
}
func (s *stubServer) ListSeries(context.Context, api.ListParams) (*api.Page[api.Series], error) {
	return &api.Page[api.Series]{}, nil
}
func (s *stubServer) ListTags(context.Context, api.ListParams) (*api.Page[api.Tag], error) {
	return &api.Page[api.Tag]{}, nil
}
func (s *stubServer) ListGenres(context.Context, api.ListParams) (*api.Page[api.Genre], error) {
	return &api.Page[api.Genre]{}, nil
}
func (s *stubServer) ListListeningEvents(context.Context, api.ListParams) (*api.Page[api.ListeningEvent], error) {
	return &api.Page[api.ListeningEvent]{}, nil
}
func (s *stubServer) UpdateBook(context.Context, string, domain.BookUpdate) error { return nil }
func (s *stubServer) UpdateContributor(context.Context, string, domain.ContributorUpdate) error {
	return nil
}
func (s *stubServer) UpdateSeries(context.Context, string, domain.SeriesUpdate) error { return nil }
func (s *stubServer) SetBookContributors(context.Context, string, []domain.BookContributor) error {
	return nil
}
func (s *stubServer) SetBookSeries(context.Context, string, []domain.BookSeries) error { return nil }
func (s *stubServer) MergeContributor(context.Context, string, string) error           { return nil }
func (s *stubServer) UnmergeContributor(context.Context, string, string) error         { return nil }
func (s *stubServer) SubmitListeningEvents(_ context.Context, events []*domain.ListeningEvent) (*api.BatchAck, error) {
	ack := &api.BatchAck{}
	for _, e := range events {
		ack.Acknowledged = append(ack.Acknowledged, e.ID)
	}
	return ack, nil
}
func (s *stubServer) UpdatePlaybackPosition(context.Context, domain.PositionUpdatePayload) error {
	return nil
}
func (s *stubServer) UpdatePreferences(context.Context, domain.PreferencesUpdate) error { return nil }

func setupTestSync(t *testing.T, server sync.ServerClient) (*SyncService, *store.Store) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "sync-service-test-*")
	require.NoError(t, err)

	testStore, err := store.New(filepath.Join(tmpDir, "test.db"), nil, store.NewNoopEmitter())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = testStore.Close()
		_ = os.RemoveAll(tmpDir)
	})

	status := sync.NewStatusBroadcaster()
	puller := sync.NewPuller(server, testStore, status, 100, nil)
	pusher := sync.NewPushCoordinator(sync.NewRegistry(server, testStore, nil), testStore, 0, nil)
	orchestrator := sync.NewOrchestrator(server, testStore, puller, pusher, status, sync.OrchestratorConfig{
		DeviceID:        "dev-1",
		MaxPhaseRetries: 1,
	}, nil)

	return NewSyncService(orchestrator, nil), testStore
}

func waitForStatus(t *testing.T, svc *SyncService, kind sync.StatusKind) {
	t.Helper()
	require.Eventually(t, func() bool {
		return svc.Status().Kind == kind
	}, 5*time.Second, 10*time.Millisecond, "expected status %s, last was %s", kind, svc.Status().Kind)
}

func TestSyncService_StartRunsToSuccess(t *testing.T) {
	svc, s := setupTestSync(t, &stubServer{libraryID: "lib-1"})

	require.NoError(t, svc.Start())
	waitForStatus(t, svc, sync.StatusSuccess)

	libID, err := s.Meta.LibraryID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "lib-1", libID)
}

func TestSyncService_ConcurrentStartRejected(t *testing.T) {
	server := &stubServer{libraryID: "lib-1", block: make(chan struct{})}
	svc, _ := setupTestSync(t, server)

	require.NoError(t, svc.Start())
	err := svc.Start()
	assert.ErrorIs(t, err, errors.ErrConflict)

	close(server.block)
	waitForStatus(t, svc, sync.StatusSuccess)
}

func TestSyncService_CancelStopsCycle(t *testing.T) {
	server := &stubServer{libraryID: "lib-1", block: make(chan struct{})}
	svc, _ := setupTestSync(t, server)

	require.NoError(t, svc.Start())
	svc.Cancel()

	assert.Equal(t, sync.StatusIdle, svc.Status().Kind)

	// A fresh cycle runs after cancellation.
	server.block = nil
	require.NoError(t, svc.Start())
	waitForStatus(t, svc, sync.StatusSuccess)
}

func TestSyncService_ForceFullResyncRejectedMidCycle(t *testing.T) {
	server := &stubServer{libraryID: "lib-1", block: make(chan struct{})}
	svc, _ := setupTestSync(t, server)

	require.NoError(t, svc.Start())
	err := svc.ForceFullResync(context.Background())
	assert.ErrorIs(t, err, errors.ErrConflict)

	close(server.block)
	waitForStatus(t, svc, sync.StatusSuccess)

	require.NoError(t, svc.ForceFullResync(context.Background()))
}

func TestSyncService_ResolveLibraryMismatch(t *testing.T) {
	server := &stubServer{libraryID: "lib-new"}
	svc, s := setupTestSync(t, server)
	ctx := context.Background()

	require.NoError(t, s.Meta.SetLibraryID(ctx, "lib-old"))

	require.NoError(t, svc.Start())
	waitForStatus(t, svc, sync.StatusLibraryMismatch)
	svc.Cancel() // wait out the finished cycle's goroutine

	// Declining returns to idle and keeps the old binding.
	require.NoError(t, svc.ResolveLibraryMismatch(ctx, false))
	assert.Equal(t, sync.StatusIdle, svc.Status().Kind)

	libID, err := s.Meta.LibraryID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "lib-old", libID)

	// Trigger the mismatch again and accept: rebind plus a fresh cycle.
	require.NoError(t, svc.Start())
	waitForStatus(t, svc, sync.StatusLibraryMismatch)
	svc.Cancel()
	require.NoError(t, svc.ResolveLibraryMismatch(ctx, true))
	waitForStatus(t, svc, sync.StatusSuccess)

	libID, err = s.Meta.LibraryID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "lib-new", libID)
}

func TestSyncService_ResolveWithoutMismatchRejected(t *testing.T) {
	svc, _ := setupTestSync(t, &stubServer{libraryID: "lib-1"})

	err := svc.ResolveLibraryMismatch(context.Background(), true)
	assert.ErrorIs(t, err, errors.ErrConflict)
}
