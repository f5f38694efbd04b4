package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/listenupapp/listenup-client/internal/store"
	"golang.org/x/sync/errgroup"
)

// WorkerConfig tunes the download queue worker.
type WorkerConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	Retention   time.Duration
	Concurrency int
}

// Worker drains the image download queue on its own loop, decoupled from
// the sync cycle: asset backfill must not wait for a full resync, and an
// ongoing sync must not block downloads.
type Worker struct {
	store      *store.Store
	downloader *Downloader
	logger     *slog.Logger
	cfg        WorkerConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker creates a download worker.
func NewWorker(st *store.Store, downloader *Downloader, cfg WorkerConfig, logger *slog.Logger) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	return &Worker{
		store:      st,
		downloader: downloader,
		logger:     logger,
		cfg:        cfg,
	}
}

// Start launches the worker loop. Tasks stuck IN_PROGRESS from a
// previous crash are reset to PENDING before the first sweep.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return // already running
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.run(ctx)
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	if reset, err := w.store.Downloads.ResetInProgress(ctx); err != nil {
		w.logWarn("failed to reset stuck downloads", err)
	} else if reset > 0 && w.logger != nil {
		w.logger.Info("reset stuck download tasks", "count", reset)
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	// First sweep immediately; queued tasks should not wait a full tick.
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	if _, _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
		w.logWarn("download sweep failed", err)
	}
}

// RunOnce performs a single sweep: claim a batch, download concurrently,
// transition each task, purge expired completions.
func (w *Worker) RunOnce(ctx context.Context) (completed, failed int, err error) {
	batch, err := w.store.Downloads.NextBatch(ctx, w.cfg.BatchSize, w.cfg.MaxAttempts)
	if err != nil {
		return 0, 0, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)

	for _, task := range batch {
		if err := w.store.Downloads.MarkInProgress(ctx, task); err != nil {
			w.logWarn("failed to claim download task", err, "entity_id", task.EntityID)
			continue
		}

		g.Go(func() error {
			if dlErr := w.downloader.Download(gctx, task); dlErr != nil {
				w.logWarn("download failed", dlErr, "kind", string(task.Kind), "entity_id", task.EntityID, "attempts", task.Attempts+1)
				if err := w.store.Downloads.MarkFailed(gctx, task, dlErr.Error()); err != nil {
					w.logWarn("failed to record download failure", err, "entity_id", task.EntityID)
				}
				mu.Lock()
				failed++
				mu.Unlock()
				return nil // one bad image never aborts the sweep
			}

			if err := w.store.Downloads.MarkCompleted(gctx, task); err != nil {
				w.logWarn("failed to record download completion", err, "entity_id", task.EntityID)
			}
			mu.Lock()
			completed++
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return completed, failed, err
	}

	if purged, err := w.store.Downloads.PurgeCompleted(ctx, w.cfg.Retention); err != nil {
		w.logWarn("failed to purge completed downloads", err)
	} else if purged > 0 && w.logger != nil {
		w.logger.Debug("purged completed download tasks", "count", purged)
	}

	return completed, failed, nil
}

func (w *Worker) logWarn(msg string, err error, args ...any) {
	if w.logger != nil {
		w.logger.Warn(msg, append([]any{"error", err}, args...)...)
	}
}
