// Package store persists the local library replica, the pending operation
// queue, and sync bookkeeping in a single Badger database.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/listenupapp/listenup-client/internal/domain"
)

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	// Change emitter for broadcasting store mutations to the UI layer.
	emitter ChangeEmitter

	// Monotonic sequence for operation queue ordering.
	opSeq *badger.Sequence

	// Generic syncable entities
	Books        *Entity[domain.Book]
	Contributors *Entity[domain.Contributor]
	Series       *Entity[domain.Series]
	Tags         *Entity[domain.Tag]
	Genres       *Entity[domain.Genre]

	// Specialized sub-stores
	Queue       *OperationQueue
	Downloads   *DownloadQueue
	Meta        *SyncMeta
	Positions   *PositionStore
	Preferences *PreferenceStore
}

// New creates a new Store instance with the given database path and change
// emitter. The emitter is required and used to broadcast store changes.
func New(path string, logger *slog.Logger, emitter ChangeEmitter) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // Ensure writes are synced to disk to prevent corruption on crashes
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	store := &Store{
		db:      db,
		logger:  logger,
		emitter: emitter,
	}

	// Bandwidth of 64 keeps queue inserts cheap. Gaps after a crash are
	// fine: the keys only need to be monotonic, not dense.
	seq, err := db.GetSequence([]byte("seq:op"), 64)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open operation sequence: %w", err)
	}
	store.opSeq = seq

	// Initialize generic entities
	store.Books = NewEntity(store, "book:", ChangeKindBook, (*domain.Book).Meta)
	store.Contributors = NewEntity(store, "contributor:", ChangeKindContributor, (*domain.Contributor).Meta)
	store.Series = NewEntity(store, "series:", ChangeKindSeries, (*domain.Series).Meta)
	store.Tags = NewEntity(store, "tag:", ChangeKindTag, (*domain.Tag).Meta)
	store.Genres = NewEntity(store, "genre:", ChangeKindGenre, (*domain.Genre).Meta)

	// Initialize specialized sub-stores
	store.Queue = &OperationQueue{store: store}
	store.Downloads = &DownloadQueue{store: store}
	store.Meta = &SyncMeta{store: store}
	store.Positions = &PositionStore{store: store}
	store.Preferences = &PreferenceStore{store: store}

	if logger != nil {
		logger.Info("Badger database opened successfully", "path", path)
	}

	return store, nil
}

// Close gracefully closes the database connection.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Info("Closing database connection")
	}
	if s.opSeq != nil {
		if err := s.opSeq.Release(); err != nil && s.logger != nil {
			s.logger.Warn("Failed to release operation sequence", "error", err)
		}
	}
	return s.db.Close()
}

// Helper methods for database operations.

// get retrieves a value by key.
func (s *Store) get(key []byte, dest any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, dest)
		})
	})
}

// set stores a value by key.
func (s *Store) set(key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// delete removes a key from the database.
func (s *Store) delete(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// exists checks if a key exists.
func (s *Store) exists(key []byte) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// emit broadcasts a change if an emitter is configured.
func (s *Store) emit(kind ChangeKind, typ ChangeType, id string) {
	if s.emitter != nil {
		s.emitter.Emit(Change{Kind: kind, Type: typ, ID: id})
	}
}
