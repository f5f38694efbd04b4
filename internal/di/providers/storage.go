package providers

import (
	"fmt"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-client/internal/config"
	"github.com/listenupapp/listenup-client/internal/logger"
	"github.com/listenupapp/listenup-client/internal/media/images"
	"github.com/listenupapp/listenup-client/internal/store"
)

// ProvideNotifier provides the change notifier UI layers subscribe to.
func ProvideNotifier(i do.Injector) (*store.Notifier, error) {
	return store.NewNotifier(), nil
}

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the local database.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	notifier := do.MustInvoke[*store.Notifier](i)

	dbPath := filepath.Join(cfg.Data.BasePath, "db")
	db, err := store.New(dbPath, log.Logger, notifier)
	if err != nil {
		return nil, err
	}

	log.Info("Local database initialized", "path", dbPath)
	return &StoreHandle{Store: db}, nil
}

// ImageStorages groups the local image stores by kind.
type ImageStorages struct {
	Covers       *images.Storage
	Contributors *images.Storage
}

// ProvideImageStorages provides the local image stores.
func ProvideImageStorages(i do.Injector) (*ImageStorages, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	covers, err := images.NewStorage(cfg.Data.BasePath, "covers")
	if err != nil {
		return nil, fmt.Errorf("cover storage: %w", err)
	}

	contributors, err := images.NewStorage(cfg.Data.BasePath, "contributors")
	if err != nil {
		return nil, fmt.Errorf("contributor storage: %w", err)
	}

	log.Info("Image storages initialized")
	return &ImageStorages{Covers: covers, Contributors: contributors}, nil
}
