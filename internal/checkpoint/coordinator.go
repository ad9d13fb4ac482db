package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"solanaetl/internal/model"
	"solanaetl/internal/storage"
)

// ErrRangeInProgress reports a planned range that intersects a checkpoint
// some worker may still be processing. Overlap with completed checkpoints
// is allowed; the idempotent writer makes re-processing a no-op.
var ErrRangeInProgress = errors.New("checkpoint: range overlaps an in-progress checkpoint")

// Coordinator tracks backfill progress per slot range. It owns the
// checkpoint lifecycle; batch I/O never holds up checkpoint-state
// visibility because every operation is its own store round trip.
type Coordinator struct {
	store  storage.CheckpointStore
	logger *zap.Logger
}

func NewCoordinator(store storage.CheckpointStore, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{store: store, logger: logger}
}

// Plan partitions [start, end] into checkpoints of at most chunkSize slots
// and persists them for workers to claim.
func (c *Coordinator) Plan(ctx context.Context, start, end, chunkSize uint64) ([]model.Checkpoint, error) {
	overlapping, err := c.store.OverlappingInProgress(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if overlapping {
		return nil, fmt.Errorf("plan [%d, %d]: %w", start, end, ErrRangeInProgress)
	}

	ranges, err := SplitRange(start, end, chunkSize)
	if err != nil {
		return nil, err
	}

	planned := make([]model.Checkpoint, 0, len(ranges))
	for _, r := range ranges {
		cp, err := model.NewCheckpoint(r.From, r.To)
		if err != nil {
			return nil, err
		}
		if err := c.store.InsertCheckpoint(ctx, cp); err != nil {
			return nil, err
		}
		planned = append(planned, *cp)
	}

	c.logger.Info("planned backfill checkpoints",
		zap.Uint64("start_slot", start),
		zap.Uint64("end_slot", end),
		zap.Int("checkpoints", len(planned)),
	)
	return planned, nil
}

// Claim hands the oldest unclaimed open checkpoint to a worker. The false
// return means no work is available.
func (c *Coordinator) Claim(ctx context.Context, workerID string) (*model.Checkpoint, bool, error) {
	cp, ok, err := c.store.ClaimCheckpoint(ctx, workerID)
	if err != nil || !ok {
		return nil, false, err
	}
	c.logger.Info("claimed checkpoint",
		zap.String("checkpoint_id", cp.ID),
		zap.String("worker", workerID),
		zap.Uint64("resume_slot", cp.NextSlot()),
	)
	return cp, true, nil
}

// Advance moves a checkpoint's high-water mark after a durably committed
// batch. Local state and store agree before the call returns.
func (c *Coordinator) Advance(ctx context.Context, cp *model.Checkpoint, slot uint64) error {
	if err := cp.Advance(slot); err != nil {
		return err
	}
	return c.store.AdvanceCheckpoint(ctx, cp.ID, slot)
}

// Complete closes a fully processed checkpoint.
func (c *Coordinator) Complete(ctx context.Context, cp *model.Checkpoint) error {
	if err := cp.Complete(); err != nil {
		return err
	}
	if err := c.store.CompleteCheckpoint(ctx, cp.ID); err != nil {
		return err
	}
	c.logger.Info("checkpoint completed",
		zap.String("checkpoint_id", cp.ID),
		zap.Uint64("end_slot", cp.EndSlot),
	)
	return nil
}

// Fail terminally fails a checkpoint and plans a fresh one covering the
// unprocessed remainder, if any.
func (c *Coordinator) Fail(ctx context.Context, cp *model.Checkpoint, reason string) (*model.Checkpoint, error) {
	if err := cp.Fail(reason); err != nil {
		return nil, err
	}
	if err := c.store.FailCheckpoint(ctx, cp.ID, reason); err != nil {
		return nil, err
	}
	c.logger.Warn("checkpoint failed",
		zap.String("checkpoint_id", cp.ID),
		zap.Int64("last_processed_slot", cp.LastProcessedSlot),
		zap.String("reason", reason),
	)

	start, end, ok := cp.Remainder()
	if !ok {
		return nil, nil
	}
	requeued, err := model.NewCheckpoint(start, end)
	if err != nil {
		return nil, err
	}
	if err := c.store.InsertCheckpoint(ctx, requeued); err != nil {
		return nil, err
	}
	return requeued, nil
}

// Resume prepares for restart: stale worker claims are released so open
// checkpoints can be re-claimed and continued from their own high-water
// marks, never from scratch.
func (c *Coordinator) Resume(ctx context.Context) ([]model.Checkpoint, error) {
	released, err := c.store.ReleaseClaims(ctx)
	if err != nil {
		return nil, err
	}
	open, err := c.store.OpenCheckpoints(ctx)
	if err != nil {
		return nil, err
	}
	if released > 0 || len(open) > 0 {
		c.logger.Info("resuming checkpoints",
			zap.Int("released_claims", released),
			zap.Int("open", len(open)),
		)
	}
	return open, nil
}

// Open lists checkpoints still in progress.
func (c *Coordinator) Open(ctx context.Context) ([]model.Checkpoint, error) {
	return c.store.OpenCheckpoints(ctx)
}
