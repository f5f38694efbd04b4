// Package main provides the entry point for the ListenUp client daemon.
// It keeps the local library mirror fresh: periodic sync cycles against
// the configured server plus the background image download worker.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-client/internal/config"
	"github.com/listenupapp/listenup-client/internal/di"
	"github.com/listenupapp/listenup-client/internal/di/providers"
	"github.com/listenupapp/listenup-client/internal/errors"
	"github.com/listenupapp/listenup-client/internal/logger"
)

// syncInterval is how often a new sync cycle is started while idle.
const syncInterval = 5 * time.Minute

func main() {
	// Create DI container
	injector := di.NewContainer()

	// Bootstrap all services
	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap client: %v\n", err)
		os.Exit(1)
	}

	log := do.MustInvoke[*logger.Logger](injector)
	cfg := do.MustInvoke[*config.Config](injector)
	syncHandle := do.MustInvoke[*providers.SyncServiceHandle](injector)

	log.Info("ListenUp client started",
		"server", cfg.Server.BaseURL,
		"data_path", cfg.Data.BasePath,
	)

	// First cycle immediately, then on the interval. A cycle still
	// running when the ticker fires is simply skipped.
	if err := syncHandle.Start(); err != nil {
		log.Error("Failed to start initial sync", "error", err)
	}

	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			if err := syncHandle.Start(); err != nil && !errors.Is(err, errors.ErrConflict) {
				log.Error("Failed to start sync cycle", "error", err)
			}
			continue
		case <-quit:
		}
		break
	}

	log.Info("Shutting down client gracefully...")

	// Shutdown all services in reverse order; the DI container handles
	// everything implementing do.Shutdownable.
	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}

	// The store uses a wrapper type, close it explicitly last.
	if storeHandle, err := do.Invoke[*providers.StoreHandle](injector); err == nil {
		log.Info("Closing database...")
		if err := storeHandle.Shutdown(); err != nil {
			log.Error("Failed to close database", "error", err)
		}
	}

	log.Info("See you space cowboy...")
}
