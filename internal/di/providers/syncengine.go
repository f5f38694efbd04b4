package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-client/internal/api"
	"github.com/listenupapp/listenup-client/internal/config"
	"github.com/listenupapp/listenup-client/internal/logger"
	"github.com/listenupapp/listenup-client/internal/sync"
)

// ProvideStatusBroadcaster provides the sync status broadcaster.
func ProvideStatusBroadcaster(i do.Injector) (*sync.StatusBroadcaster, error) {
	return sync.NewStatusBroadcaster(), nil
}

// ProvidePuller provides the pull pipeline.
func ProvidePuller(i do.Injector) (*sync.Puller, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	client := do.MustInvoke[*api.Client](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	status := do.MustInvoke[*sync.StatusBroadcaster](i)

	return sync.NewPuller(client, storeHandle.Store, status, cfg.Sync.PageSize, log.Logger), nil
}

// ProvidePushCoordinator provides the push pipeline with its handler
// registry.
func ProvidePushCoordinator(i do.Injector) (*sync.PushCoordinator, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	client := do.MustInvoke[*api.Client](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	registry := sync.NewRegistry(client, storeHandle.Store, log.Logger)
	return sync.NewPushCoordinator(registry, storeHandle.Store, cfg.Sync.PushBatchSize, log.Logger), nil
}

// ProvideOrchestrator provides the sync cycle orchestrator.
func ProvideOrchestrator(i do.Injector) (*sync.Orchestrator, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	client := do.MustInvoke[*api.Client](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	puller := do.MustInvoke[*sync.Puller](i)
	pusher := do.MustInvoke[*sync.PushCoordinator](i)
	status := do.MustInvoke[*sync.StatusBroadcaster](i)
	device := do.MustInvoke[*DeviceIdentity](i)

	return sync.NewOrchestrator(client, storeHandle.Store, puller, pusher, status, sync.OrchestratorConfig{
		DeviceID:          device.ID,
		MaxPhaseRetries:   cfg.Sync.MaxPhaseRetries,
		DownloadRetention: cfg.Downloads.Retention,
	}, log.Logger), nil
}

// ProvideDownloader provides the image downloader.
func ProvideDownloader(i do.Injector) (*sync.Downloader, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	storages := do.MustInvoke[*ImageStorages](i)

	return sync.NewDownloader(storages.Covers, storages.Contributors, storeHandle.Store, log.Logger), nil
}

// DownloadWorkerHandle wraps the running download worker for lifecycle
// management.
type DownloadWorkerHandle struct {
	*sync.Worker
}

// Shutdown implements do.Shutdownable.
func (h *DownloadWorkerHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideDownloadWorker provides the download queue worker, already
// started.
func ProvideDownloadWorker(i do.Injector) (*DownloadWorkerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	downloader := do.MustInvoke[*sync.Downloader](i)

	worker := sync.NewWorker(storeHandle.Store, downloader, sync.WorkerConfig{
		Interval:    cfg.Downloads.Interval,
		BatchSize:   cfg.Downloads.BatchSize,
		MaxAttempts: cfg.Downloads.MaxAttempts,
		Retention:   cfg.Downloads.Retention,
		Concurrency: cfg.Downloads.Concurrency,
	}, log.Logger)

	worker.Start()
	log.Info("Download worker started", "interval", cfg.Downloads.Interval)

	return &DownloadWorkerHandle{Worker: worker}, nil
}
