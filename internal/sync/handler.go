package sync

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/listenupapp/listenup-client/internal/domain"
	"github.com/listenupapp/listenup-client/internal/store"
)

// Handler executes one kind of pending operation against the server and
// knows whether and how two queued operations of its kind may be merged.
type Handler interface {
	Type() domain.OperationType

	// TryCoalesce merges a newer payload into an older one for the same
	// target. Returns the merged payload, or nil to signal "keep both
	// operations distinct". Merging must be deterministic.
	TryCoalesce(older, newer json.RawMessage) (json.RawMessage, error)

	// Execute performs the single network call for the operation.
	Execute(ctx context.Context, op *domain.PendingOperation) error
}

// BatchHandler is implemented by operation types the server accepts in
// batches. Operations sharing a batch key are submitted in one request;
// the handler demultiplexes the response into per-operation outcomes.
type BatchHandler interface {
	Handler

	BatchKey(op *domain.PendingOperation) (string, error)

	// ExecuteBatch submits the group and returns an outcome per
	// operation ID. An operation missing from the result map is treated
	// as failed.
	ExecuteBatch(ctx context.Context, ops []*domain.PendingOperation) (map[string]error, error)
}

// Registry is the static dispatch table over the closed operation type
// set, built once at startup.
type Registry map[domain.OperationType]Handler

// NewRegistry wires one handler per operation type.
func NewRegistry(server ServerClient, st *store.Store, logger *slog.Logger) Registry {
	handlers := []Handler{
		&bookUpdateHandler{server: server},
		&contributorUpdateHandler{server: server, store: st},
		&seriesUpdateHandler{server: server},
		&setBookContributorsHandler{server: server},
		&setBookSeriesHandler{server: server},
		&mergeContributorHandler{server: server},
		&unmergeContributorHandler{server: server},
		&listeningEventHandler{server: server, store: st, logger: logger},
		&playbackPositionHandler{server: server},
		&userPreferencesHandler{server: server},
	}

	registry := make(Registry, len(handlers))
	for _, h := range handlers {
		registry[h.Type()] = h
	}
	return registry
}

// decodePayload unmarshals an operation payload. Unknown fields are
// tolerated: payloads queued by an older app version must still decode
// after an update adds fields.
func decodePayload[T any](raw json.RawMessage) (T, error) {
	var payload T
	err := json.Unmarshal(raw, &payload)
	return payload, err
}

func encodePayload(payload any) (json.RawMessage, error) {
	return json.Marshal(payload)
}

// pick returns the newer value unless it is unset.
func pick[T any](newer, older *T) *T {
	if newer != nil {
		return newer
	}
	return older
}
