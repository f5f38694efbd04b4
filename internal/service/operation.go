package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/listenupapp/listenup-client/internal/domain"
	"github.com/listenupapp/listenup-client/internal/id"
)

// newOperation builds a pending operation with a fresh ID and the
// payload serialized for durable storage.
func newOperation(opType domain.OperationType, targetID string, payload any) (*domain.PendingOperation, error) {
	opID, err := id.Generate("op")
	if err != nil {
		return nil, fmt.Errorf("generate operation ID: %w", err)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal operation payload: %w", err)
	}

	return &domain.PendingOperation{
		ID:         opID,
		Type:       opType,
		TargetID:   targetID,
		Payload:    raw,
		EnqueuedAt: time.Now(),
	}, nil
}

func applyBookUpdate(book *domain.Book, update domain.BookUpdate) {
	if update.Title != nil {
		book.Title = *update.Title
	}
	if update.Subtitle != nil {
		book.Subtitle = *update.Subtitle
	}
	if update.Description != nil {
		book.Description = *update.Description
	}
	if update.Publisher != nil {
		book.Publisher = *update.Publisher
	}
	if update.PublishYear != nil {
		book.PublishYear = *update.PublishYear
	}
	if update.Language != nil {
		book.Language = *update.Language
	}
	if update.ISBN != nil {
		book.ISBN = *update.ISBN
	}
	if update.ASIN != nil {
		book.ASIN = *update.ASIN
	}
	if update.Explicit != nil {
		book.Explicit = *update.Explicit
	}
	if update.Abridged != nil {
		book.Abridged = *update.Abridged
	}
}
