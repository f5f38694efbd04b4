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

func setupTestListening(t *testing.T) (*ListeningService, *store.Store) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "listening-service-test-*")
	require.NoError(t, err)

	testStore, err := store.New(filepath.Join(tmpDir, "test.db"), nil, store.NewNoopEmitter())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = testStore.Close()
		_ = os.RemoveAll(tmpDir)
	})

	svc := NewListeningService(testStore, validation.New(), "dev-1", "Test Device", nil)
	return svc, testStore
}

func seedBookWithDuration(t *testing.T, s *store.Store, id string, durationMs int64) {
	t.Helper()
	book := &domain.Book{
		Syncable:      domain.NewServerSyncable(id, time.Now().Add(-time.Hour), time.Now().Add(-time.Hour)),
		Title:         "Book " + id,
		TotalDuration: durationMs,
	}
	require.NoError(t, s.Books.Put(context.Background(), book))
}

func recordReq(bookID string, startMs, endMs int64) RecordEventRequest {
	return RecordEventRequest{
		BookID:          bookID,
		StartPositionMs: startMs,
		EndPositionMs:   endMs,
		StartedAt:       time.Now().Add(-time.Minute),
		EndedAt:         time.Now(),
		PlaybackSpeed:   1.0,
	}
}

func TestRecordEvent_CreatesPositionAndQueuesEvent(t *testing.T) {
	svc, s := setupTestListening(t)
	ctx := context.Background()
	seedBookWithDuration(t, s, "b1", 3600000)

	resp, err := svc.RecordEvent(ctx, recordReq("b1", 0, 1800000))
	require.NoError(t, err)
	assert.Equal(t, "dev-1", resp.Event.DeviceID)
	assert.Equal(t, int64(1800000), resp.Position.CurrentPositionMs)
	assert.InDelta(t, 0.5, resp.Position.Progress, 0.001)
	assert.False(t, resp.Position.IsFinished)

	pending, err := s.Queue.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.OpListeningEvent, pending[0].Type)
}

func TestRecordEvent_PositionOnlyAdvances(t *testing.T) {
	svc, s := setupTestListening(t)
	ctx := context.Background()
	seedBookWithDuration(t, s, "b1", 3600000)

	_, err := svc.RecordEvent(ctx, recordReq("b1", 0, 1800000))
	require.NoError(t, err)

	// A rewind session: position must not move backwards, but listen
	// time still accumulates.
	resp, err := svc.RecordEvent(ctx, recordReq("b1", 600000, 900000))
	require.NoError(t, err)
	assert.Equal(t, int64(1800000), resp.Position.CurrentPositionMs)
	assert.Equal(t, int64(2100000), resp.Position.TotalListenTimeMs)
}

func TestRecordEvent_FinishThreshold(t *testing.T) {
	svc, s := setupTestListening(t)
	ctx := context.Background()
	seedBookWithDuration(t, s, "b1", 1000000)

	// 99.5% of the way through counts as finished.
	resp, err := svc.RecordEvent(ctx, recordReq("b1", 900000, 995000))
	require.NoError(t, err)
	assert.True(t, resp.Position.IsFinished)
	assert.NotNil(t, resp.Position.FinishedAt)
}

func TestRecordEvent_Validation(t *testing.T) {
	svc, s := setupTestListening(t)
	seedBookWithDuration(t, s, "b1", 3600000)

	// End before start.
	req := recordReq("b1", 5000, 1000)
	_, err := svc.RecordEvent(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestRecordEvent_UnknownBook(t *testing.T) {
	svc, _ := setupTestListening(t)

	_, err := svc.RecordEvent(context.Background(), recordReq("missing", 0, 1000))
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestReportPosition_EnqueuesSnapshot(t *testing.T) {
	svc, s := setupTestListening(t)
	ctx := context.Background()
	seedBookWithDuration(t, s, "b1", 3600000)

	_, err := svc.RecordEvent(ctx, recordReq("b1", 0, 1800000))
	require.NoError(t, err)

	require.NoError(t, svc.ReportPosition(ctx, "b1"))

	pending, err := s.Queue.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, domain.OpPlaybackPosition, pending[1].Type)
	assert.Equal(t, "b1", pending[1].TargetID)
}

func TestListInProgress_SkipsFinishedAndSortsByRecency(t *testing.T) {
	svc, s := setupTestListening(t)
	ctx := context.Background()
	seedBookWithDuration(t, s, "b1", 3600000)
	seedBookWithDuration(t, s, "b2", 3600000)
	seedBookWithDuration(t, s, "b3", 1000000)

	older := recordReq("b1", 0, 60000)
	older.StartedAt = time.Now().Add(-2 * time.Hour)
	older.EndedAt = time.Now().Add(-time.Hour)
	_, err := svc.RecordEvent(ctx, older)
	require.NoError(t, err)

	_, err = svc.RecordEvent(ctx, recordReq("b2", 0, 60000))
	require.NoError(t, err)

	// b3 finishes.
	_, err = svc.RecordEvent(ctx, recordReq("b3", 0, 999000))
	require.NoError(t, err)

	inProgress, err := svc.ListInProgress(ctx)
	require.NoError(t, err)
	require.Len(t, inProgress, 2)
	assert.Equal(t, "b2", inProgress[0].BookID)
	assert.Equal(t, "b1", inProgress[1].BookID)
}

func TestUpdatePreferences_AppliesAndEnqueues(t *testing.T) {
	svc, s := setupTestListening(t)
	ctx := context.Background()

	speed := float32(1.5)
	prefs, err := svc.UpdatePreferences(ctx, UpdatePreferencesRequest{PlaybackSpeed: &speed})
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), prefs.PlaybackSpeed)
	// Untouched fields keep their defaults.
	assert.Equal(t, 30, prefs.SkipForwardSec)

	pending, err := s.Queue.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.OpUserPreferences, pending[0].Type)
}

func TestUpdatePreferences_RejectsOutOfRangeSpeed(t *testing.T) {
	svc, _ := setupTestListening(t)

	speed := float32(9)
	_, err := svc.UpdatePreferences(context.Background(), UpdatePreferencesRequest{PlaybackSpeed: &speed})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrValidation)
}
