// Package di provides dependency injection configuration for the
// ListenUp client.
package di

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-client/internal/api"
	"github.com/listenupapp/listenup-client/internal/config"
	"github.com/listenupapp/listenup-client/internal/di/providers"
	"github.com/listenupapp/listenup-client/internal/logger"
	"github.com/listenupapp/listenup-client/internal/service"
	"github.com/listenupapp/listenup-client/internal/store"
	"github.com/listenupapp/listenup-client/internal/sync"
	"github.com/listenupapp/listenup-client/internal/validation"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideValidator)
	do.Provide(injector, providers.ProvideDeviceIdentity)

	// Local storage
	do.Provide(injector, providers.ProvideNotifier)
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideImageStorages)

	// Server connection
	do.Provide(injector, providers.ProvideAPIClient)

	// Sync engine
	do.Provide(injector, providers.ProvideStatusBroadcaster)
	do.Provide(injector, providers.ProvidePuller)
	do.Provide(injector, providers.ProvidePushCoordinator)
	do.Provide(injector, providers.ProvideOrchestrator)
	do.Provide(injector, providers.ProvideDownloader)
	do.Provide(injector, providers.ProvideDownloadWorker)

	// Business services
	do.Provide(injector, providers.ProvideLibraryService)
	do.Provide(injector, providers.ProvideListeningService)
	do.Provide(injector, providers.ProvideSyncService)

	return injector
}

// Bootstrap initializes all services to trigger their lazy construction
// and surface configuration errors before the app reports ready.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*logger.Logger](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*validation.Validator](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.DeviceIdentity](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*store.Notifier](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.ImageStorages](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*api.Client](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*sync.Orchestrator](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.DownloadWorkerHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*service.LibraryService](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*service.ListeningService](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.SyncServiceHandle](injector); err != nil {
		return err
	}
	return nil
}
