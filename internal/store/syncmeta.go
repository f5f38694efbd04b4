package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	metaLastSyncPrefix = "meta:lastsync:"
	metaLibraryIDKey   = "meta:library_id"
	metaCheckpointKey  = "meta:checkpoint"
)

// SyncMeta persists sync bookkeeping: per-resource incremental cursors,
// the bound library identity, and the server checkpoint.
type SyncMeta struct {
	store *Store
}

// LastSyncTime returns the stored incremental cursor for a resource
// family ("books", "series", ...), or nil if no sync has completed yet.
func (m *SyncMeta) LastSyncTime(ctx context.Context, resource string) (*time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var t time.Time
	err := m.store.get([]byte(metaLastSyncPrefix+resource), &t)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last sync time: %w", err)
	}
	return &t, nil
}

// SetLastSyncTime stores the incremental cursor for a resource family.
// Written only after the family's pull completes, so a crashed sync
// re-fetches rather than skips.
func (m *SyncMeta) SetLastSyncTime(ctx context.Context, resource string, t time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.store.set([]byte(metaLastSyncPrefix+resource), t)
}

// ClearSyncTimes removes all incremental cursors, forcing the next sync
// to pull everything from scratch.
func (m *SyncMeta) ClearSyncTimes(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var keys [][]byte
	err := m.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(metaLastSyncPrefix)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(metaLastSyncPrefix)); it.ValidForPrefix([]byte(metaLastSyncPrefix)); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	return m.store.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// LibraryID returns the library this replica is bound to, or "" if the
// client has never synced.
func (m *SyncMeta) LibraryID(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var id string
	err := m.store.get([]byte(metaLibraryIDKey), &id)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read library ID: %w", err)
	}
	return id, nil
}

// SetLibraryID binds this replica to a library.
func (m *SyncMeta) SetLibraryID(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.store.set([]byte(metaLibraryIDKey), id)
}

// Checkpoint returns the last server checkpoint recorded by a completed
// sync, or "" if none.
func (m *SyncMeta) Checkpoint(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var cp string
	err := m.store.get([]byte(metaCheckpointKey), &cp)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return cp, nil
}

// SetCheckpoint records the server checkpoint after a completed sync.
func (m *SyncMeta) SetCheckpoint(ctx context.Context, checkpoint string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.store.set([]byte(metaCheckpointKey), checkpoint)
}
