package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/listenupapp/listenup-client/internal/domain"
)

const (
	opPrefix    = "op:"
	opIDPrefix  = "opidx:"
	opKeyFormat = "op:%016d"
)

// OperationQueue is the durable queue of local mutations awaiting push.
// Keys carry a zero-padded monotonic sequence number so a prefix scan
// yields operations in enqueue order.
type OperationQueue struct {
	store *Store
}

// Enqueue appends an operation to the queue. The operation survives
// restarts; it is removed only after the server acknowledges it.
func (q *OperationQueue) Enqueue(ctx context.Context, op *domain.PendingOperation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if op.ID == "" {
		return fmt.Errorf("operation has no ID")
	}

	seq, err := q.store.opSeq.Next()
	if err != nil {
		return fmt.Errorf("failed to allocate sequence number: %w", err)
	}

	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("failed to marshal operation: %w", err)
	}

	key := fmt.Sprintf(opKeyFormat, seq)
	return q.store.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(key), data); err != nil {
			return fmt.Errorf("failed to set operation: %w", err)
		}
		// ID index so acknowledgments can delete by operation ID.
		if err := txn.Set([]byte(opIDPrefix+op.ID), []byte(key)); err != nil {
			return fmt.Errorf("failed to set operation index: %w", err)
		}
		return nil
	})
}

// Pending returns up to limit operations in enqueue order. A limit of 0
// or less returns everything.
func (q *OperationQueue) Pending(ctx context.Context, limit int) ([]*domain.PendingOperation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ops []*domain.PendingOperation
	err := q.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(opPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(opPrefix)); it.ValidForPrefix([]byte(opPrefix)); it.Next() {
			if limit > 0 && len(ops) >= limit {
				break
			}
			var op domain.PendingOperation
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &op)
			})
			if err != nil {
				return fmt.Errorf("failed to unmarshal operation: %w", err)
			}
			ops = append(ops, &op)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ops, nil
}

// Delete removes operations by ID. Missing IDs are ignored: a crash
// between server acknowledgment and queue deletion may leave operations
// already gone.
func (q *OperationQueue) Delete(ctx context.Context, ids ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	return q.store.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			idxKey := []byte(opIDPrefix + id)
			item, err := txn.Get(idxKey)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to get operation index: %w", err)
			}

			var opKey []byte
			err = item.Value(func(val []byte) error {
				opKey = append([]byte{}, val...)
				return nil
			})
			if err != nil {
				return err
			}

			if err := txn.Delete(opKey); err != nil {
				return fmt.Errorf("failed to delete operation: %w", err)
			}
			if err := txn.Delete(idxKey); err != nil {
				return fmt.Errorf("failed to delete operation index: %w", err)
			}
		}
		return nil
	})
}

// MarkAttempt records a failed delivery attempt on each operation.
// The operations keep their queue position: attempts do not reorder.
func (q *OperationQueue) MarkAttempt(ctx context.Context, ids ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	return q.store.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, err := txn.Get([]byte(opIDPrefix + id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to get operation index: %w", err)
			}

			var opKey []byte
			err = item.Value(func(val []byte) error {
				opKey = append([]byte{}, val...)
				return nil
			})
			if err != nil {
				return err
			}

			opItem, err := txn.Get(opKey)
			if err != nil {
				return fmt.Errorf("failed to get operation: %w", err)
			}

			var op domain.PendingOperation
			err = opItem.Value(func(val []byte) error {
				return json.Unmarshal(val, &op)
			})
			if err != nil {
				return fmt.Errorf("failed to unmarshal operation: %w", err)
			}

			op.MarkAttempt()

			data, err := json.Marshal(&op)
			if err != nil {
				return fmt.Errorf("failed to marshal operation: %w", err)
			}
			if err := txn.Set(opKey, data); err != nil {
				return fmt.Errorf("failed to update operation: %w", err)
			}
		}
		return nil
	})
}

// Count returns the number of queued operations.
func (q *OperationQueue) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	count := 0
	err := q.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(opPrefix)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(opPrefix)); it.ValidForPrefix([]byte(opPrefix)); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// HasPending reports whether any operation is queued.
func (q *OperationQueue) HasPending(ctx context.Context) (bool, error) {
	count, err := q.Count(ctx)
	return count > 0, err
}
