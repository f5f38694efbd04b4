package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/listenupapp/listenup-client/internal/domain"
)

const posPrefix = "pos:"

// PositionStore persists per-book playback positions. Positions are
// keyed by book ID: one record per book, materialized from listening
// events as they are recorded.
type PositionStore struct {
	store *Store
}

// Get returns the position for a book, or ErrNotFound.
func (p *PositionStore) Get(ctx context.Context, bookID string) (*domain.PlaybackPosition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var pos domain.PlaybackPosition
	err := p.store.get([]byte(posPrefix+bookID), &pos)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

// Put writes a position.
func (p *PositionStore) Put(ctx context.Context, pos *domain.PlaybackPosition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if pos.BookID == "" {
		return fmt.Errorf("position has no book ID")
	}

	if err := p.store.set([]byte(posPrefix+pos.BookID), pos); err != nil {
		return err
	}
	p.store.emit(ChangeKindPosition, ChangeUpdated, pos.BookID)
	return nil
}

// Delete removes a position. Idempotent.
func (p *PositionStore) Delete(ctx context.Context, bookID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.store.delete([]byte(posPrefix + bookID)); err != nil {
		return err
	}
	p.store.emit(ChangeKindPosition, ChangeDeleted, bookID)
	return nil
}

// List returns all stored positions.
func (p *PositionStore) List(ctx context.Context) ([]*domain.PlaybackPosition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var positions []*domain.PlaybackPosition
	err := p.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(posPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(posPrefix)); it.ValidForPrefix([]byte(posPrefix)); it.Next() {
			var pos domain.PlaybackPosition
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &pos)
			})
			if err != nil {
				return fmt.Errorf("failed to unmarshal position: %w", err)
			}
			positions = append(positions, &pos)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return positions, nil
}

// MarkSynced records server acknowledgment of a position. No-op if the
// position was deleted locally in the meantime.
func (p *PositionStore) MarkSynced(ctx context.Context, bookID string, at time.Time) error {
	pos, err := p.Get(ctx, bookID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pos.MarkSynced(at)
	return p.Put(ctx, pos)
}
