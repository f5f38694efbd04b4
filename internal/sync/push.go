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

// PushCoordinator drains the pending operation queue. Each drain pass
// coalesces compatible operations per (type, target), batches the types
// the server accepts in bulk, executes everything in enqueue order, and
// never drops an operation: failures stay queued with an incremented
// attempt count for the next cycle.
type PushCoordinator struct {
	registry Registry
	store    *store.Store
	logger   *slog.Logger
	limit    int
}

// NewPushCoordinator creates a coordinator. limit bounds how many
// operations one pass drains; 0 means no bound.
func NewPushCoordinator(registry Registry, st *store.Store, limit int, logger *slog.Logger) *PushCoordinator {
	return &PushCoordinator{
		registry: registry,
		store:    st,
		logger:   logger,
		limit:    limit,
	}
}

// PushResult summarizes one drain pass.
type PushResult struct {
	Drained   int // operations pulled from the queue
	Coalesced int // operations absorbed into another by merging
	Succeeded int // operations acknowledged and deleted
	Failed    int // operations left queued with a recorded attempt
}

// unit is one network call's worth of work: either a (possibly merged)
// single operation or a batch group.
type unit struct {
	handler Handler
	payload json.RawMessage
	// ops are the constituent queue entries, in enqueue order. All are
	// deleted on success; all get MarkAttempt on failure.
	ops []*domain.PendingOperation

	batch    bool
	batchKey string
}

// Push runs one drain pass. Individual operation failures never abort
// the pass; every unit gets its chance this cycle.
func (c *PushCoordinator) Push(ctx context.Context) (*PushResult, error) {
	ops, err := c.store.Queue.Pending(ctx, c.limit)
	if err != nil {
		return nil, err
	}

	result := &PushResult{Drained: len(ops)}
	if len(ops) == 0 {
		return result, nil
	}

	units, coalesced, err := c.plan(ops)
	if err != nil {
		return nil, err
	}
	result.Coalesced = coalesced

	for _, u := range units {
		if err := ctx.Err(); err != nil {
			return result, errors.Wrap(err, errors.CodeCancelled, "push cancelled")
		}

		if u.batch {
			c.executeBatchUnit(ctx, u, result)
		} else {
			c.executeUnit(ctx, u, result)
		}
	}
	return result, nil
}

// plan folds the drained operations into execution units, preserving
// enqueue order. Coalescing is a left fold per (type, target): each
// subsequent payload merges into the accumulated one, and a handler
// signaling incompatibility (nil merge) seals the group so both survive
// distinct. Merge/unmerge operations act as barriers for their
// contributors: groups touching the same targets are sealed so order
// relative to the merge is preserved.
func (c *PushCoordinator) plan(ops []*domain.PendingOperation) ([]*unit, int, error) {
	var units []*unit
	coalesced := 0

	// Open coalescing groups by (type, target); open batch groups by
	// (type, batch key).
	open := make(map[[2]string]*unit)
	openBatches := make(map[[2]string]*unit)

	seal := func(targetID string) {
		for key := range open {
			if key[1] == targetID {
				delete(open, key)
			}
		}
	}

	for _, op := range ops {
		handler, ok := c.registry[op.Type]
		if !ok {
			// Unknown type: leave it queued and move on. It will be
			// retried (and logged) every cycle until an app update
			// understands it.
			c.logWarn("unknown operation type", nil, "type", string(op.Type), "op_id", op.ID)
			continue
		}

		if bh, ok := handler.(BatchHandler); ok {
			key, err := bh.BatchKey(op)
			if err != nil {
				return nil, 0, err
			}
			mapKey := [2]string{string(op.Type), key}
			if u, exists := openBatches[mapKey]; exists {
				u.ops = append(u.ops, op)
			} else {
				u := &unit{handler: handler, ops: []*domain.PendingOperation{op}, batch: true, batchKey: key}
				openBatches[mapKey] = u
				units = append(units, u)
			}
			continue
		}

		if op.Type == domain.OpMergeContributor || op.Type == domain.OpUnmergeContributor {
			// Barrier: nothing on the same contributor may compact
			// across this operation.
			seal(op.TargetID)
			for _, id := range c.mergeRelatedTargets(op) {
				seal(id)
			}
			units = append(units, &unit{handler: handler, payload: op.Payload, ops: []*domain.PendingOperation{op}})
			continue
		}

		mapKey := [2]string{string(op.Type), op.TargetID}
		if u, exists := open[mapKey]; exists {
			merged, err := handler.TryCoalesce(u.payload, op.Payload)
			if err != nil {
				return nil, 0, err
			}
			if merged != nil {
				u.payload = merged
				u.ops = append(u.ops, op)
				coalesced++
				continue
			}
			// Incompatible: seal the group, keep both.
			delete(open, mapKey)
		}

		u := &unit{handler: handler, payload: op.Payload, ops: []*domain.PendingOperation{op}}
		open[mapKey] = u
		units = append(units, u)
	}

	return units, coalesced, nil
}

// mergeRelatedTargets extracts the other contributor IDs a merge or
// unmerge touches, for barrier sealing.
func (c *PushCoordinator) mergeRelatedTargets(op *domain.PendingOperation) []string {
	switch op.Type {
	case domain.OpMergeContributor:
		if payload, err := decodePayload[domain.MergeContributorPayload](op.Payload); err == nil {
			return []string{payload.TargetID, payload.SourceID}
		}
	case domain.OpUnmergeContributor:
		if payload, err := decodePayload[domain.UnmergeContributorPayload](op.Payload); err == nil {
			return []string{payload.ContributorID}
		}
	}
	return nil
}

func (c *PushCoordinator) executeUnit(ctx context.Context, u *unit, result *PushResult) {
	first := u.ops[0]

	c.setEntityState(ctx, first, domain.SyncStateSyncing, nil)

	execOp := &domain.PendingOperation{
		ID:         first.ID,
		Type:       first.Type,
		TargetID:   first.TargetID,
		Payload:    u.payload,
		EnqueuedAt: first.EnqueuedAt,
		Attempts:   first.Attempts,
	}

	if err := u.handler.Execute(ctx, execOp); err != nil {
		c.logWarn("operation failed, will retry next cycle", err,
			"type", string(first.Type), "target", first.TargetID, "ops", len(u.ops))
		c.markFailed(ctx, u.ops, result)
		c.setEntityState(ctx, first, domain.SyncStateNotSynced, nil)
		return
	}

	c.deleteAcked(ctx, u.ops, result)
	now := time.Now()
	c.setEntityState(ctx, first, domain.SyncStateSynced, &now)
}

func (c *PushCoordinator) executeBatchUnit(ctx context.Context, u *unit, result *PushResult) {
	bh := u.handler.(BatchHandler)

	outcomes, err := bh.ExecuteBatch(ctx, u.ops)
	if err != nil {
		c.logWarn("batch failed, will retry next cycle", err, "type", string(u.ops[0].Type), "ops", len(u.ops))
		c.markFailed(ctx, u.ops, result)
		return
	}

	var acked, failed []*domain.PendingOperation
	for _, op := range u.ops {
		// Missing from the outcome map counts as failed.
		if opErr, ok := outcomes[op.ID]; ok && opErr == nil {
			acked = append(acked, op)
		} else {
			failed = append(failed, op)
		}
	}

	c.deleteAcked(ctx, acked, result)
	c.markFailed(ctx, failed, result)
}

func (c *PushCoordinator) deleteAcked(ctx context.Context, ops []*domain.PendingOperation, result *PushResult) {
	if len(ops) == 0 {
		return
	}
	ids := make([]string, len(ops))
	for i, op := range ops {
		ids[i] = op.ID
	}
	if err := c.store.Queue.Delete(ctx, ids...); err != nil {
		c.logWarn("failed to delete acknowledged operations", err)
		return
	}
	result.Succeeded += len(ops)
}

func (c *PushCoordinator) markFailed(ctx context.Context, ops []*domain.PendingOperation, result *PushResult) {
	if len(ops) == 0 {
		return
	}
	ids := make([]string, len(ops))
	for i, op := range ops {
		ids[i] = op.ID
	}
	if err := c.store.Queue.MarkAttempt(ctx, ids...); err != nil {
		c.logWarn("failed to record operation attempts", err)
	}
	result.Failed += len(ops)
}

// setEntityState transitions the target entity's sync state for the
// entity-backed operation types. serverVersion is set when the new state
// is SYNCED.
func (c *PushCoordinator) setEntityState(ctx context.Context, op *domain.PendingOperation, state domain.SyncState, serverVersion *time.Time) {
	apply := func(meta *domain.Syncable) {
		switch state {
		case domain.SyncStateSyncing:
			meta.MarkSyncing()
		case domain.SyncStateSynced:
			meta.MarkSynced(*serverVersion)
		default:
			meta.SyncState = state
		}
	}

	var err error
	switch op.Type {
	case domain.OpBookUpdate, domain.OpSetBookContributor, domain.OpSetBookSeries:
		var book *domain.Book
		if book, err = c.store.Books.Get(ctx, op.TargetID); err == nil {
			apply(book.Meta())
			err = c.store.Books.Put(ctx, book)
		}
	case domain.OpContributorUpdate:
		var contributor *domain.Contributor
		if contributor, err = c.store.Contributors.Get(ctx, op.TargetID); err == nil {
			apply(contributor.Meta())
			err = c.store.Contributors.Put(ctx, contributor)
		}
	case domain.OpSeriesUpdate:
		var series *domain.Series
		if series, err = c.store.Series.Get(ctx, op.TargetID); err == nil {
			apply(series.Meta())
			err = c.store.Series.Put(ctx, series)
		}
	default:
		return
	}

	if err != nil && !errors.Is(err, store.ErrNotFound) {
		c.logWarn("failed to update entity sync state", err, "target", op.TargetID)
	}
}

func (c *PushCoordinator) logWarn(msg string, err error, args ...any) {
	if c.logger == nil {
		return
	}
	if err != nil {
		args = append([]any{"error", err}, args...)
	}
	c.logger.Warn(msg, args...)
}
