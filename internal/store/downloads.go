package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/listenupapp/listenup-client/internal/domain"
)

const dlPrefix = "dl:"

// DownloadQueue is the durable queue of image downloads. Tasks are keyed
// by (kind, entity) so re-scheduling the same image updates the existing
// task instead of piling up duplicates.
type DownloadQueue struct {
	store *Store
}

func dlKey(kind domain.ImageKind, entityID string) []byte {
	return []byte(dlPrefix + string(kind) + ":" + entityID)
}

// Enqueue schedules an image download. If a task for the same image
// already exists the URL is refreshed; a completed task with an unchanged
// URL is left alone since the file is already on disk.
func (d *DownloadQueue) Enqueue(ctx context.Context, kind domain.ImageKind, entityID, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entityID == "" || url == "" {
		return fmt.Errorf("entity ID and URL are required")
	}

	key := dlKey(kind, entityID)
	return d.store.db.Update(func(txn *badger.Txn) error {
		var task domain.DownloadTask

		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			task = domain.DownloadTask{
				EntityID:   entityID,
				Kind:       kind,
				URL:        url,
				Status:     domain.DownloadPending,
				EnqueuedAt: time.Now(),
			}
		case err != nil:
			return fmt.Errorf("failed to get download task: %w", err)
		default:
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &task)
			})
			if err != nil {
				return fmt.Errorf("failed to unmarshal download task: %w", err)
			}

			if task.Status == domain.DownloadCompleted && task.URL == url {
				return nil
			}

			task.URL = url
			if task.Status == domain.DownloadCompleted || task.Status == domain.DownloadFailed {
				task.Status = domain.DownloadPending
				task.Attempts = 0
				task.Error = ""
				task.CompletedAt = nil
				task.EnqueuedAt = time.Now()
			}
		}

		data, err := json.Marshal(&task)
		if err != nil {
			return fmt.Errorf("failed to marshal download task: %w", err)
		}
		return txn.Set(key, data)
	})
}

// Get returns a task or ErrNotFound.
func (d *DownloadQueue) Get(ctx context.Context, kind domain.ImageKind, entityID string) (*domain.DownloadTask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var task domain.DownloadTask
	err := d.store.get(dlKey(kind, entityID), &task)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// NextBatch picks up to limit tasks to work on: pending tasks first,
// then failed tasks that still have retries left, each group oldest
// first. Returned tasks are not state-transitioned; the worker marks
// them in progress as it claims them.
func (d *DownloadQueue) NextBatch(ctx context.Context, limit, maxAttempts int) ([]*domain.DownloadTask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var pending, failed []*domain.DownloadTask
	err := d.list(func(task *domain.DownloadTask) {
		switch task.Status {
		case domain.DownloadPending:
			pending = append(pending, task)
		case domain.DownloadFailed:
			if task.Attempts < maxAttempts {
				failed = append(failed, task)
			}
		}
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i].EnqueuedAt.Before(pending[j].EnqueuedAt) })
	sort.Slice(failed, func(i, j int) bool { return failed[i].EnqueuedAt.Before(failed[j].EnqueuedAt) })

	batch := append(pending, failed...)
	if limit > 0 && len(batch) > limit {
		batch = batch[:limit]
	}
	return batch, nil
}

// MarkInProgress transitions a task to in_progress.
func (d *DownloadQueue) MarkInProgress(ctx context.Context, task *domain.DownloadTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	task.Status = domain.DownloadInProgress
	return d.put(task)
}

// MarkCompleted transitions a task to completed.
func (d *DownloadQueue) MarkCompleted(ctx context.Context, task *domain.DownloadTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	task.MarkCompleted()
	return d.put(task)
}

// MarkFailed records a failed attempt with the reason.
func (d *DownloadQueue) MarkFailed(ctx context.Context, task *domain.DownloadTask, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	task.MarkFailed(reason)
	return d.put(task)
}

// ResetInProgress moves any in_progress tasks back to pending. Called on
// startup: a task stuck in_progress means the process died mid-download.
func (d *DownloadQueue) ResetInProgress(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var stuck []*domain.DownloadTask
	err := d.list(func(task *domain.DownloadTask) {
		if task.Status == domain.DownloadInProgress {
			stuck = append(stuck, task)
		}
	})
	if err != nil {
		return 0, err
	}

	for _, task := range stuck {
		task.Status = domain.DownloadPending
		if err := d.put(task); err != nil {
			return 0, err
		}
	}
	return len(stuck), nil
}

// PurgeCompleted removes completed tasks older than the retention window.
func (d *DownloadQueue) PurgeCompleted(ctx context.Context, retention time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-retention)
	var expired []*domain.DownloadTask
	err := d.list(func(task *domain.DownloadTask) {
		if task.Status == domain.DownloadCompleted && task.CompletedAt != nil && task.CompletedAt.Before(cutoff) {
			expired = append(expired, task)
		}
	})
	if err != nil {
		return 0, err
	}

	err = d.store.db.Update(func(txn *badger.Txn) error {
		for _, task := range expired {
			if err := txn.Delete(dlKey(task.Kind, task.EntityID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(expired), nil
}

// Counts returns the number of tasks per status.
func (d *DownloadQueue) Counts(ctx context.Context) (map[domain.DownloadStatus]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	counts := make(map[domain.DownloadStatus]int)
	err := d.list(func(task *domain.DownloadTask) {
		counts[task.Status]++
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (d *DownloadQueue) put(task *domain.DownloadTask) error {
	return d.store.set(dlKey(task.Kind, task.EntityID), task)
}

func (d *DownloadQueue) list(visit func(*domain.DownloadTask)) error {
	return d.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(dlPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(dlPrefix)); it.ValidForPrefix([]byte(dlPrefix)); it.Next() {
			var task domain.DownloadTask
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &task)
			})
			if err != nil {
				return fmt.Errorf("failed to unmarshal download task: %w", err)
			}
			visit(&task)
		}
		return nil
	})
}
