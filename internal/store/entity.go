package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/listenupapp/listenup-client/internal/domain"
)

// Entity provides generic CRUD operations for any syncable domain type.
// The meta accessor exposes the embedded sync fields so state queries and
// transitions can be done without knowing the concrete type.
type Entity[T any] struct {
	store  *Store
	prefix string
	kind   ChangeKind
	meta   func(*T) *domain.Syncable
}

// NewEntity creates a new Entity instance for type T.
func NewEntity[T any](s *Store, prefix string, kind ChangeKind, meta func(*T) *domain.Syncable) *Entity[T] {
	return &Entity[T]{
		store:  s,
		prefix: prefix,
		kind:   kind,
		meta:   meta,
	}
}

// Get retrieves an entity by ID.
// Returns ErrNotFound if the entity does not exist.
func (e *Entity[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := e.prefix + id
	var entity T

	err := e.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get key: %w", err)
		}

		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &entity); err != nil {
				return fmt.Errorf("failed to unmarshal entity: %w", err)
			}
			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return &entity, nil
}

// Put writes an entity, creating or replacing it. Both the pull path and
// local edits land here, so it is deliberately an upsert.
func (e *Entity[T]) Put(ctx context.Context, entity *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id := e.meta(entity).ID
	if id == "" {
		return fmt.Errorf("entity has no ID")
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	err = e.store.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(e.prefix+id), data)
	})
	if err != nil {
		return err
	}

	e.store.emit(e.kind, ChangeUpdated, id)
	return nil
}

// PutBatch writes a batch of entities in a single transaction.
func (e *Entity[T]) PutBatch(ctx context.Context, entities []*T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(entities) == 0 {
		return nil
	}

	type pending struct {
		id   string
		data []byte
	}
	writes := make([]pending, 0, len(entities))
	for _, entity := range entities {
		id := e.meta(entity).ID
		if id == "" {
			return fmt.Errorf("entity has no ID")
		}
		data, err := json.Marshal(entity)
		if err != nil {
			return fmt.Errorf("failed to marshal entity %s: %w", id, err)
		}
		writes = append(writes, pending{id: id, data: data})
	}

	err := e.store.db.Update(func(txn *badger.Txn) error {
		for _, w := range writes {
			if err := txn.Set([]byte(e.prefix+w.id), w.data); err != nil {
				return fmt.Errorf("failed to set key: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, w := range writes {
		e.store.emit(e.kind, ChangeUpdated, w.id)
	}
	return nil
}

// Delete deletes an entity by ID.
// This operation is idempotent - it does not return an error if the entity does not exist.
func (e *Entity[T]) Delete(ctx context.Context, id string) error {
	return e.DeleteBatch(ctx, []string{id})
}

// DeleteBatch deletes a batch of entities in a single transaction.
// Unknown IDs are skipped silently: the server may report deletions of
// records this client never pulled.
func (e *Entity[T]) DeleteBatch(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	deleted := make([]string, 0, len(ids))
	err := e.store.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			key := []byte(e.prefix + id)
			_, err := txn.Get(key)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to get key: %w", err)
			}
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("failed to delete key: %w", err)
			}
			deleted = append(deleted, id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, id := range deleted {
		e.store.emit(e.kind, ChangeDeleted, id)
	}
	return nil
}

// Exists checks if an entity exists.
func (e *Entity[T]) Exists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return e.store.exists([]byte(e.prefix + id))
}

// Count returns the number of stored entities.
func (e *Entity[T]) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	count := 0
	err := e.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(e.prefix)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(e.prefix)); it.ValidForPrefix([]byte(e.prefix)); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// List returns an iterator over all entities.
func (e *Entity[T]) List(ctx context.Context) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		e.store.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte(e.prefix)
			opts.PrefetchValues = true

			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek([]byte(e.prefix)); it.ValidForPrefix([]byte(e.prefix)); it.Next() {
				// Check context cancellation
				if ctx.Err() != nil {
					yield(nil, ctx.Err())
					return ctx.Err()
				}

				var entity T
				err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &entity)
				})

				if err != nil {
					yield(nil, err)
					return err
				}

				if !yield(&entity, nil) {
					return nil // Consumer stopped early
				}
			}

			return nil
		})
	}
}

// ListByState collects all entities whose sync state is one of the given
// states. Used by the push path to find pending local edits.
func (e *Entity[T]) ListByState(ctx context.Context, states ...domain.SyncState) ([]*T, error) {
	var result []*T
	for entity, err := range e.List(ctx) {
		if err != nil {
			return nil, err
		}
		if slices.Contains(states, e.meta(entity).SyncState) {
			result = append(result, entity)
		}
	}
	return result, nil
}
