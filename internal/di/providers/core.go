// Package providers contains the dependency injection providers for all
// client subsystems.
package providers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/do/v2"

	"github.com/listenupapp/listenup-client/internal/config"
	"github.com/listenupapp/listenup-client/internal/logger"
	"github.com/listenupapp/listenup-client/internal/validation"
)

// ProvideConfig loads the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.LoadConfig()
}

// ProvideLogger provides the application logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	return logger.New(logger.Config{
		Environment: cfg.App.Environment,
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment != "production",
	}), nil
}

// ProvideValidator provides the shared request validator.
func ProvideValidator(i do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// DeviceIdentity is this installation's stable identity. The ID is
// generated once and persisted next to the database so listening events
// stay attributable across restarts.
type DeviceIdentity struct {
	ID   string
	Name string
}

// ProvideDeviceIdentity provides the persisted device identity.
func ProvideDeviceIdentity(i do.Injector) (*DeviceIdentity, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	deviceID := cfg.Device.ID
	if deviceID == "" {
		idPath := filepath.Join(cfg.Data.BasePath, "device_id")
		data, err := os.ReadFile(idPath)
		switch {
		case err == nil:
			deviceID = strings.TrimSpace(string(data))
		case os.IsNotExist(err):
			deviceID = uuid.NewString()
			if err := os.MkdirAll(cfg.Data.BasePath, 0o755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
			if err := os.WriteFile(idPath, []byte(deviceID), 0o600); err != nil {
				return nil, fmt.Errorf("persist device ID: %w", err)
			}
			log.Info("Generated device identity", "device_id", deviceID)
		default:
			return nil, fmt.Errorf("read device ID: %w", err)
		}
	}

	return &DeviceIdentity{ID: deviceID, Name: cfg.Device.Name}, nil
}
