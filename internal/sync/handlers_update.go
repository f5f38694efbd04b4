package sync

import (
	"context"
	"encoding/json"

	"github.com/listenupapp/listenup-client/internal/domain"
	"github.com/listenupapp/listenup-client/internal/errors"
	"github.com/listenupapp/listenup-client/internal/store"
)

// Field-wise update handlers. Coalescing rule shared by all of them:
// the newer operation's value wins per field unless unset, in which case
// the older value is kept.

type bookUpdateHandler struct {
	server ServerClient
}

func (h *bookUpdateHandler) Type() domain.OperationType { return domain.OpBookUpdate }

func (h *bookUpdateHandler) TryCoalesce(older, newer json.RawMessage) (json.RawMessage, error) {
	o, err := decodePayload[domain.BookUpdate](older)
	if err != nil {
		return nil, err
	}
	n, err := decodePayload[domain.BookUpdate](newer)
	if err != nil {
		return nil, err
	}
	return encodePayload(mergeBookUpdate(o, n))
}

func (h *bookUpdateHandler) Execute(ctx context.Context, op *domain.PendingOperation) error {
	payload, err := decodePayload[domain.BookUpdate](op.Payload)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to decode book update payload")
	}
	return h.server.UpdateBook(ctx, op.TargetID, payload)
}

func mergeBookUpdate(older, newer domain.BookUpdate) domain.BookUpdate {
	return domain.BookUpdate{
		Title:       pick(newer.Title, older.Title),
		Subtitle:    pick(newer.Subtitle, older.Subtitle),
		Description: pick(newer.Description, older.Description),
		Publisher:   pick(newer.Publisher, older.Publisher),
		PublishYear: pick(newer.PublishYear, older.PublishYear),
		Language:    pick(newer.Language, older.Language),
		ISBN:        pick(newer.ISBN, older.ISBN),
		ASIN:        pick(newer.ASIN, older.ASIN),
		Explicit:    pick(newer.Explicit, older.Explicit),
		Abridged:    pick(newer.Abridged, older.Abridged),
	}
}

type contributorUpdateHandler struct {
	server ServerClient
	store  *store.Store
}

func (h *contributorUpdateHandler) Type() domain.OperationType { return domain.OpContributorUpdate }

func (h *contributorUpdateHandler) TryCoalesce(older, newer json.RawMessage) (json.RawMessage, error) {
	o, err := decodePayload[domain.ContributorUpdate](older)
	if err != nil {
		return nil, err
	}
	n, err := decodePayload[domain.ContributorUpdate](newer)
	if err != nil {
		return nil, err
	}
	return encodePayload(mergeContributorUpdate(o, n))
}

// Execute reconstructs the full payload the server's replace-style
// endpoint requires: edited fields from the operation, everything else
// from the local record, name defaulted to empty string if still unset.
func (h *contributorUpdateHandler) Execute(ctx context.Context, op *domain.PendingOperation) error {
	payload, err := decodePayload[domain.ContributorUpdate](op.Payload)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to decode contributor update payload")
	}

	local, err := h.store.Contributors.Get(ctx, op.TargetID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if local != nil {
		if payload.Name == nil {
			payload.Name = &local.Name
		}
		if payload.SortName == nil {
			payload.SortName = &local.SortName
		}
		if payload.Biography == nil {
			payload.Biography = &local.Biography
		}
		if payload.Aliases == nil {
			payload.Aliases = local.Aliases
		}
		if payload.ASIN == nil {
			payload.ASIN = &local.ASIN
		}
	}
	if payload.Name == nil {
		empty := ""
		payload.Name = &empty
	}

	return h.server.UpdateContributor(ctx, op.TargetID, payload)
}

func mergeContributorUpdate(older, newer domain.ContributorUpdate) domain.ContributorUpdate {
	merged := domain.ContributorUpdate{
		Name:      pick(newer.Name, older.Name),
		SortName:  pick(newer.SortName, older.SortName),
		Biography: pick(newer.Biography, older.Biography),
		ASIN:      pick(newer.ASIN, older.ASIN),
		Aliases:   newer.Aliases,
	}
	if merged.Aliases == nil {
		merged.Aliases = older.Aliases
	}
	return merged
}

type seriesUpdateHandler struct {
	server ServerClient
}

func (h *seriesUpdateHandler) Type() domain.OperationType { return domain.OpSeriesUpdate }

func (h *seriesUpdateHandler) TryCoalesce(older, newer json.RawMessage) (json.RawMessage, error) {
	o, err := decodePayload[domain.SeriesUpdate](older)
	if err != nil {
		return nil, err
	}
	n, err := decodePayload[domain.SeriesUpdate](newer)
	if err != nil {
		return nil, err
	}
	return encodePayload(domain.SeriesUpdate{
		Name:        pick(n.Name, o.Name),
		Description: pick(n.Description, o.Description),
		ASIN:        pick(n.ASIN, o.ASIN),
	})
}

func (h *seriesUpdateHandler) Execute(ctx context.Context, op *domain.PendingOperation) error {
	payload, err := decodePayload[domain.SeriesUpdate](op.Payload)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to decode series update payload")
	}
	return h.server.UpdateSeries(ctx, op.TargetID, payload)
}

type userPreferencesHandler struct {
	server ServerClient
}

func (h *userPreferencesHandler) Type() domain.OperationType { return domain.OpUserPreferences }

func (h *userPreferencesHandler) TryCoalesce(older, newer json.RawMessage) (json.RawMessage, error) {
	o, err := decodePayload[domain.PreferencesUpdate](older)
	if err != nil {
		return nil, err
	}
	n, err := decodePayload[domain.PreferencesUpdate](newer)
	if err != nil {
		return nil, err
	}
	return encodePayload(domain.PreferencesUpdate{
		PlaybackSpeed:     pick(n.PlaybackSpeed, o.PlaybackSpeed),
		SkipForwardSec:    pick(n.SkipForwardSec, o.SkipForwardSec),
		SkipBackSec:       pick(n.SkipBackSec, o.SkipBackSec),
		PreferredLanguage: pick(n.PreferredLanguage, o.PreferredLanguage),
		ShowFinished:      pick(n.ShowFinished, o.ShowFinished),
	})
}

func (h *userPreferencesHandler) Execute(ctx context.Context, op *domain.PendingOperation) error {
	payload, err := decodePayload[domain.PreferencesUpdate](op.Payload)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to decode preferences payload")
	}
	return h.server.UpdatePreferences(ctx, payload)
}
