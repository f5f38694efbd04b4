package store

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/listenupapp/listenup-client/internal/domain"
)

const prefsKey = "prefs"

// PreferenceStore persists the single user preferences record.
type PreferenceStore struct {
	store *Store
}

// Get returns the stored preferences, or defaults if none have been
// written yet.
func (p *PreferenceStore) Get(ctx context.Context) (*domain.UserPreferences, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var prefs domain.UserPreferences
	err := p.store.get([]byte(prefsKey), &prefs)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.DefaultPreferences(), nil
	}
	if err != nil {
		return nil, err
	}
	return &prefs, nil
}

// Put writes the preferences record.
func (p *PreferenceStore) Put(ctx context.Context, prefs *domain.UserPreferences) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.store.set([]byte(prefsKey), prefs); err != nil {
		return err
	}
	p.store.emit(ChangeKindPreferences, ChangeUpdated, prefsKey)
	return nil
}
