package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/listenupapp/listenup-client/internal/domain"
	"github.com/listenupapp/listenup-client/internal/errors"
	"github.com/listenupapp/listenup-client/internal/store"
)

// Cursor resource names, one per pull phase.
const (
	resourceBooks        = "books"
	resourceSeries       = "series"
	resourceContributors = "contributors"
	resourceTags         = "tags"
	resourceGenres       = "genres"
	resourceEvents       = "listening_events"
)

// OrchestratorConfig tunes a sync cycle.
type OrchestratorConfig struct {
	DeviceID          string
	MaxPhaseRetries   int
	DownloadRetention time.Duration
}

// Orchestrator runs full sync cycles: manifest check, sequential pulls
// in fixed phase order, push, finalize. One cycle at a time; pulls never
// run concurrently with each other.
type Orchestrator struct {
	server ServerClient
	store  *store.Store
	puller *Puller
	pusher *PushCoordinator
	status *StatusBroadcaster
	logger *slog.Logger
	cfg    OrchestratorConfig

	mu      sync.Mutex
	running bool
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(server ServerClient, st *store.Store, puller *Puller, pusher *PushCoordinator, status *StatusBroadcaster, cfg OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	if cfg.MaxPhaseRetries <= 0 {
		cfg.MaxPhaseRetries = 3
	}
	if cfg.DownloadRetention <= 0 {
		cfg.DownloadRetention = 7 * 24 * time.Hour
	}
	return &Orchestrator{
		server: server,
		store:  st,
		puller: puller,
		pusher: pusher,
		status: status,
		logger: logger,
		cfg:    cfg,
	}
}

// Status returns the status broadcaster for observers.
func (o *Orchestrator) Status() *StatusBroadcaster {
	return o.status
}

// Run executes one sync cycle. Returns ErrConflict if a cycle is already
// in flight. A library mismatch is not an error: the cycle stops after
// publishing the mismatch status so the caller can ask the user.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return errors.Conflict("sync cycle already running")
	}
	o.running = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	o.status.Publish(Syncing())

	err := o.runCycle(ctx)
	switch {
	case err == nil:
		// Status already published by runCycle (Success or mismatch).
		return nil
	case errors.Is(err, errors.ErrCancelled):
		o.status.Publish(Idle())
		return err
	default:
		o.status.Publish(Failed(err))
		return err
	}
}

func (o *Orchestrator) runCycle(ctx context.Context) error {
	o.status.Publish(Progress(PhaseFetchingMetadata, 0, 0, "Fetching library manifest"))

	var manifest *manifestResult
	err := o.withRetry(ctx, func(ctx context.Context) error {
		m, err := o.server.GetManifest(ctx)
		if err != nil {
			return err
		}
		manifest = &manifestResult{
			libraryID:  m.LibraryID,
			checkpoint: m.Checkpoint,
			books:      m.Counts.Books,
			contribs:   m.Counts.Contributors,
			series:     m.Counts.Series,
		}
		return nil
	})
	if err != nil {
		return err
	}

	mismatch, err := o.checkLibraryIdentity(ctx, manifest.libraryID)
	if err != nil {
		return err
	}
	if mismatch {
		return nil
	}

	// Each phase cursor is snapshotted before the pull so changes that
	// land mid-pull are re-covered next cycle rather than skipped.
	syncStart := time.Now()

	phases := []struct {
		resource string
		run      func(ctx context.Context, updatedAfter *time.Time) error
	}{
		{resourceBooks, func(ctx context.Context, after *time.Time) error {
			return o.puller.PullBooks(ctx, after, manifest.books)
		}},
		{resourceSeries, func(ctx context.Context, after *time.Time) error {
			return o.puller.PullSeries(ctx, after, manifest.series)
		}},
		{resourceContributors, func(ctx context.Context, after *time.Time) error {
			return o.puller.PullContributors(ctx, after, manifest.contribs)
		}},
		{resourceTags, o.puller.PullTags},
		{resourceGenres, o.puller.PullGenres},
		{resourceEvents, func(ctx context.Context, after *time.Time) error {
			return o.puller.PullListeningEvents(ctx, after, o.cfg.DeviceID)
		}},
	}

	for _, phase := range phases {
		after, err := o.store.Meta.LastSyncTime(ctx, phase.resource)
		if err != nil {
			return err
		}

		err = o.withRetry(ctx, func(ctx context.Context) error {
			return phase.run(ctx, after)
		})
		if err != nil {
			return err
		}

		if err := o.store.Meta.SetLastSyncTime(ctx, phase.resource, syncStart); err != nil {
			return err
		}
	}

	o.status.Publish(Progress(PhasePushing, 0, 0, "Pushing local changes"))
	pushResult, err := o.pusher.Push(ctx)
	if err != nil {
		return err
	}
	if o.logger != nil && pushResult.Drained > 0 {
		o.logger.Info("push pass finished",
			"drained", pushResult.Drained,
			"coalesced", pushResult.Coalesced,
			"succeeded", pushResult.Succeeded,
			"failed", pushResult.Failed,
		)
	}

	o.status.Publish(Progress(PhaseFinalizing, 0, 0, "Finalizing"))
	if err := o.store.Meta.SetCheckpoint(ctx, manifest.checkpoint); err != nil {
		return err
	}
	if _, err := o.store.Downloads.PurgeCompleted(ctx, o.cfg.DownloadRetention); err != nil {
		o.logWarn("failed to purge download queue", err)
	}

	o.status.Publish(Success(time.Now()))
	return nil
}

type manifestResult struct {
	libraryID  string
	checkpoint string
	books      int
	contribs   int
	series     int
}

// checkLibraryIdentity compares the manifest's library against the one
// this replica is bound to. On mismatch the cycle must stop and report
// whether unsynced local edits exist, so the caller never silently
// discards them.
func (o *Orchestrator) checkLibraryIdentity(ctx context.Context, actual string) (mismatch bool, err error) {
	stored, err := o.store.Meta.LibraryID(ctx)
	if err != nil {
		return false, err
	}

	if stored == "" {
		// First sync: bind to this library.
		return false, o.store.Meta.SetLibraryID(ctx, actual)
	}
	if stored == actual {
		return false, nil
	}

	hasPending, err := o.hasPendingChanges(ctx)
	if err != nil {
		return false, err
	}

	o.logWarn("library identity mismatch", nil, "expected", stored, "actual", actual, "has_pending", hasPending)
	o.status.Publish(LibraryMismatch(stored, actual, hasPending))
	return true, nil
}

func (o *Orchestrator) hasPendingChanges(ctx context.Context) (bool, error) {
	has, err := o.store.Queue.HasPending(ctx)
	if err != nil || has {
		return has, err
	}
	return o.hasUnsyncedEntities(ctx)
}

// AcceptNewLibrary rebinds this replica to a different library after the
// user confirmed. Pending operations target the old library and are
// dropped; cursors are cleared so the next cycle pulls from scratch.
func (o *Orchestrator) AcceptNewLibrary(ctx context.Context, libraryID string) error {
	ops, err := o.store.Queue.Pending(ctx, 0)
	if err != nil {
		return err
	}
	ids := make([]string, len(ops))
	for i, op := range ops {
		ids[i] = op.ID
	}
	if err := o.store.Queue.Delete(ctx, ids...); err != nil {
		return err
	}

	if err := o.store.Meta.ClearSyncTimes(ctx); err != nil {
		return err
	}
	return o.store.Meta.SetLibraryID(ctx, libraryID)
}

// ForceFullResync clears every pull cursor; the next cycle re-fetches
// everything. Existing local records are upserted in place.
func (o *Orchestrator) ForceFullResync(ctx context.Context) error {
	return o.store.Meta.ClearSyncTimes(ctx)
}

// withRetry re-invokes fn on transient failures with exponential
// backoff, surfacing Retrying between attempts. Non-retryable errors
// abort immediately; exhaustion returns the last error.
func (o *Orchestrator) withRetry(ctx context.Context, fn func(context.Context) error) error {
	attempt := 0

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(o.cfg.MaxPhaseRetries)),
		ctx,
	)

	return backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(errors.Wrap(err, errors.CodeCancelled, "sync cancelled"))
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		var domainErr *errors.Error
		if errors.As(err, &domainErr) && domainErr.Retryable() {
			attempt++
			if attempt <= o.cfg.MaxPhaseRetries {
				o.status.Publish(Retrying(attempt, o.cfg.MaxPhaseRetries))
			}
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

func (o *Orchestrator) logWarn(msg string, err error, args ...any) {
	if o.logger == nil {
		return
	}
	if err != nil {
		args = append([]any{"error", err}, args...)
	}
	o.logger.Warn(msg, args...)
}

// hasUnsyncedEntities reports whether any entity carries a local edit or
// conflict. Used alongside the queue check when deciding whether a
// library switch would lose data.
func (o *Orchestrator) hasUnsyncedEntities(ctx context.Context) (bool, error) {
	books, err := o.store.Books.ListByState(ctx, domain.SyncStateNotSynced, domain.SyncStateSyncing)
	if err != nil {
		return false, err
	}
	if len(books) > 0 {
		return true, nil
	}
	contributors, err := o.store.Contributors.ListByState(ctx, domain.SyncStateNotSynced, domain.SyncStateSyncing)
	if err != nil {
		return false, err
	}
	return len(contributors) > 0, nil
}
