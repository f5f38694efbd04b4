package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-client/internal/logger"
	"github.com/listenupapp/listenup-client/internal/service"
	"github.com/listenupapp/listenup-client/internal/store"
	"github.com/listenupapp/listenup-client/internal/sync"
	"github.com/listenupapp/listenup-client/internal/validation"
)

// ProvideLibraryService provides the library read/edit service.
func ProvideLibraryService(i do.Injector) (*service.LibraryService, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	notifier := do.MustInvoke[*store.Notifier](i)
	validate := do.MustInvoke[*validation.Validator](i)

	return service.NewLibraryService(storeHandle.Store, notifier, validate, log.Logger), nil
}

// ProvideListeningService provides the listening activity service.
func ProvideListeningService(i do.Injector) (*service.ListeningService, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	validate := do.MustInvoke[*validation.Validator](i)
	device := do.MustInvoke[*DeviceIdentity](i)

	return service.NewListeningService(storeHandle.Store, validate, device.ID, device.Name, log.Logger), nil
}

// SyncServiceHandle wraps the sync service for lifecycle management.
type SyncServiceHandle struct {
	*service.SyncService
}

// Shutdown implements do.Shutdownable. Cancels any in-flight cycle; the
// durable queue and cursors make stopping mid-cycle safe.
func (h *SyncServiceHandle) Shutdown() error {
	h.Cancel()
	return nil
}

// ProvideSyncService provides the sync façade.
func ProvideSyncService(i do.Injector) (*SyncServiceHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	orchestrator := do.MustInvoke[*sync.Orchestrator](i)

	return &SyncServiceHandle{
		SyncService: service.NewSyncService(orchestrator, log.Logger),
	}, nil
}
