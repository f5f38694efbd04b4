package providers

import (
	"fmt"

	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-client/internal/api"
	"github.com/listenupapp/listenup-client/internal/config"
	"github.com/listenupapp/listenup-client/internal/logger"
)

// ProvideAPIClient provides the client for the remote ListenUp server.
func ProvideAPIClient(i do.Injector) (*api.Client, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	client, err := api.New(api.Options{
		BaseURL:           cfg.Server.BaseURL,
		Timeout:           cfg.Server.Timeout,
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		Burst:             cfg.Server.Burst,
		Tokens:            api.StaticToken(cfg.Server.Token),
	}, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("api client: %w", err)
	}

	log.Info("API client configured", "server", cfg.Server.BaseURL)
	return client, nil
}
