package sync

import (
	"context"
	"encoding/json"

	"github.com/listenupapp/listenup-client/internal/domain"
	"github.com/listenupapp/listenup-client/internal/errors"
)

// Relation-set handlers. These replace a full list on the server, so
// coalescing keeps only the newest payload: the older list is discarded
// entirely, never merged field-wise.

type setBookContributorsHandler struct {
	server ServerClient
}

func (h *setBookContributorsHandler) Type() domain.OperationType {
	return domain.OpSetBookContributor
}

func (h *setBookContributorsHandler) TryCoalesce(_, newer json.RawMessage) (json.RawMessage, error) {
	return newer, nil
}

func (h *setBookContributorsHandler) Execute(ctx context.Context, op *domain.PendingOperation) error {
	payload, err := decodePayload[domain.SetBookContributorsPayload](op.Payload)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to decode book contributors payload")
	}
	return h.server.SetBookContributors(ctx, op.TargetID, payload.Contributors)
}

type setBookSeriesHandler struct {
	server ServerClient
}

func (h *setBookSeriesHandler) Type() domain.OperationType { return domain.OpSetBookSeries }

func (h *setBookSeriesHandler) TryCoalesce(_, newer json.RawMessage) (json.RawMessage, error) {
	return newer, nil
}

func (h *setBookSeriesHandler) Execute(ctx context.Context, op *domain.PendingOperation) error {
	payload, err := decodePayload[domain.SetBookSeriesPayload](op.Payload)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to decode book series payload")
	}
	return h.server.SetBookSeries(ctx, op.TargetID, payload.Series)
}

// Merge and unmerge are order-sensitive relative to each other and to
// other operations on the same contributor, so they are never coalesced.

type mergeContributorHandler struct {
	server ServerClient
}

func (h *mergeContributorHandler) Type() domain.OperationType { return domain.OpMergeContributor }

func (h *mergeContributorHandler) TryCoalesce(_, _ json.RawMessage) (json.RawMessage, error) {
	return nil, nil
}

func (h *mergeContributorHandler) Execute(ctx context.Context, op *domain.PendingOperation) error {
	payload, err := decodePayload[domain.MergeContributorPayload](op.Payload)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to decode merge payload")
	}
	return h.server.MergeContributor(ctx, payload.TargetID, payload.SourceID)
}

type unmergeContributorHandler struct {
	server ServerClient
}

func (h *unmergeContributorHandler) Type() domain.OperationType { return domain.OpUnmergeContributor }

func (h *unmergeContributorHandler) TryCoalesce(_, _ json.RawMessage) (json.RawMessage, error) {
	return nil, nil
}

func (h *unmergeContributorHandler) Execute(ctx context.Context, op *domain.PendingOperation) error {
	payload, err := decodePayload[domain.UnmergeContributorPayload](op.Payload)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to decode unmerge payload")
	}
	return h.server.UnmergeContributor(ctx, payload.ContributorID, payload.AliasName)
}

// playbackPositionHandler reports whole positions; the newest snapshot
// subsumes any older one.

type playbackPositionHandler struct {
	server ServerClient
}

func (h *playbackPositionHandler) Type() domain.OperationType { return domain.OpPlaybackPosition }

func (h *playbackPositionHandler) TryCoalesce(_, newer json.RawMessage) (json.RawMessage, error) {
	return newer, nil
}

func (h *playbackPositionHandler) Execute(ctx context.Context, op *domain.PendingOperation) error {
	payload, err := decodePayload[domain.PositionUpdatePayload](op.Payload)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to decode position payload")
	}
	return h.server.UpdatePlaybackPosition(ctx, payload)
}
