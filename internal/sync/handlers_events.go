package sync

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/listenupapp/listenup-client/internal/domain"
	"github.com/listenupapp/listenup-client/internal/errors"
	"github.com/listenupapp/listenup-client/internal/store"
)

// listeningEventHandler uploads locally recorded events. Events are
// immutable facts, so they never coalesce, but the server accepts them
// in batches with per-event acknowledgment.
type listeningEventHandler struct {
	server ServerClient
	store  *store.Store
	logger *slog.Logger
}

func (h *listeningEventHandler) Type() domain.OperationType { return domain.OpListeningEvent }

func (h *listeningEventHandler) TryCoalesce(_, _ json.RawMessage) (json.RawMessage, error) {
	return nil, nil
}

// Execute submits a single event; used only when an operation somehow
// stands alone outside a batch pass.
func (h *listeningEventHandler) Execute(ctx context.Context, op *domain.PendingOperation) error {
	results, err := h.ExecuteBatch(ctx, []*domain.PendingOperation{op})
	if err != nil {
		return err
	}
	return results[op.ID]
}

// BatchKey groups all listening events into one submission.
func (h *listeningEventHandler) BatchKey(*domain.PendingOperation) (string, error) {
	return "listening-events", nil
}

// ExecuteBatch submits the group in one request and demultiplexes the
// acknowledgment by event ID. An event absent from the acknowledged set
// counts as failed even though the HTTP call succeeded.
func (h *listeningEventHandler) ExecuteBatch(ctx context.Context, ops []*domain.PendingOperation) (map[string]error, error) {
	events := make([]*domain.ListeningEvent, 0, len(ops))
	opByEventID := make(map[string]*domain.PendingOperation, len(ops))

	results := make(map[string]error, len(ops))
	for _, op := range ops {
		event, err := decodePayload[*domain.ListeningEvent](op.Payload)
		if err != nil {
			results[op.ID] = errors.Wrap(err, errors.CodeInternal, "failed to decode listening event payload")
			continue
		}
		events = append(events, event)
		opByEventID[event.ID] = op
	}

	if len(events) == 0 {
		return results, nil
	}

	ack, err := h.server.SubmitListeningEvents(ctx, events)
	if err != nil {
		// Transport-level failure: every operation in the batch failed.
		for _, op := range opByEventID {
			results[op.ID] = err
		}
		return results, nil
	}

	acked := make(map[string]bool, len(ack.Acknowledged))
	for _, id := range ack.Acknowledged {
		acked[id] = true
	}

	now := time.Now()
	for eventID, op := range opByEventID {
		if acked[eventID] {
			results[op.ID] = nil
			// The server now holds authoritative knowledge of this
			// book's progress; record that on the cached position so UI
			// layers need not consult the queue.
			event := mustEvent(events, eventID)
			if event != nil {
				if err := h.store.Positions.MarkSynced(ctx, event.BookID, now); err != nil && h.logger != nil {
					h.logger.Warn("failed to mark position synced", "book_id", event.BookID, "error", err)
				}
			}
		} else {
			results[op.ID] = errors.Server("listening event not acknowledged")
		}
	}
	return results, nil
}

func mustEvent(events []*domain.ListeningEvent, id string) *domain.ListeningEvent {
	for _, e := range events {
		if e.ID == id {
			return e
		}
	}
	return nil
}
