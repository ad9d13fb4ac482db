package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"solanaetl/internal/checkpoint"
	"solanaetl/internal/mapper"
	"solanaetl/internal/model"
	"solanaetl/internal/storage"
)

// Backfill drains planned checkpoints with a worker pool. Every worker owns
// one claimed checkpoint at a time and processes its slots in order, so
// restarts resume from each checkpoint's own high-water mark.
type Backfill struct {
	ingest
	coord *checkpoint.Coordinator

	mu       sync.Mutex
	requeued map[string]struct{}
}

func NewBackfill(cfg Config, source Source, sink storage.Sink, coord *checkpoint.Coordinator, capture *Capture, logger *zap.Logger) *Backfill {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backfill{
		ingest: ingest{
			cfg:     cfg,
			source:  source,
			sink:    sink,
			mapper:  mapper.New(),
			capture: capture,
			logger:  logger,
		},
		coord:    coord,
		requeued: make(map[string]struct{}),
	}
}

// Run plans checkpoints for [start, end] when the range is non-empty, then
// drains every open checkpoint, including ones left over from earlier runs.
// It returns once no claimable work remains.
func (b *Backfill) Run(ctx context.Context, start, end, chunkSize uint64) error {
	open, err := b.coord.Resume(ctx)
	if err != nil {
		return fmt.Errorf("resume checkpoints: %w", err)
	}

	if end > 0 && end >= start {
		if _, err := b.coord.Plan(ctx, start, end, chunkSize); err != nil {
			if !errors.Is(err, checkpoint.ErrRangeInProgress) {
				return fmt.Errorf("plan checkpoints: %w", err)
			}
			b.logger.Warn("requested range overlaps open checkpoints, draining them instead",
				zap.Uint64("start_slot", start),
				zap.Uint64("end_slot", end),
				zap.Int("open", len(open)),
			)
		}
	}

	pool := pond.NewPool(b.cfg.Workers)
	group := pool.NewGroupContext(ctx)
	for i := 0; i < b.cfg.Workers; i++ {
		workerID := fmt.Sprintf("%s-%d", b.cfg.WorkerID, i)
		group.SubmitErr(func() error {
			return b.workerLoop(group.Context(), workerID)
		})
	}

	err = group.Wait()
	pool.StopAndWait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		return err
	}
	return nil
}

// workerLoop claims checkpoints until none are left. Checkpoint failures
// are terminal for the checkpoint, not the worker: the remainder is
// requeued and the loop claims the next unit of work.
func (b *Backfill) workerLoop(ctx context.Context, workerID string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		cp, ok, err := b.coord.Claim(ctx, workerID)
		if err != nil {
			return fmt.Errorf("claim checkpoint: %w", err)
		}
		if !ok {
			return nil
		}
		if b.isRequeued(cp.ID) {
			// A remainder planned after a failure in this run stays parked
			// until the next run; retrying it immediately would spin on a
			// deterministic failure. The claim is released at next startup.
			continue
		}

		if err := b.processCheckpoint(ctx, cp); err != nil {
			if ctx.Err() != nil {
				// Shutdown mid-checkpoint: leave it open so the next run
				// resumes from the high-water mark.
				return ctx.Err()
			}

			b.capture.Record(ctx, classify(err).
				WithSlot(cp.NextSlot()).
				WithContext(json.RawMessage(fmt.Sprintf(`{"checkpoint_id":%q}`, cp.ID))))

			requeued, failErr := b.coord.Fail(ctx, cp, err.Error())
			if failErr != nil {
				return fmt.Errorf("fail checkpoint %s: %w", cp.ID, failErr)
			}
			if requeued != nil {
				b.markRequeued(requeued.ID)
				b.logger.Info("requeued checkpoint remainder",
					zap.String("failed_checkpoint", cp.ID),
					zap.String("requeued_checkpoint", requeued.ID),
					zap.Uint64("start_slot", requeued.StartSlot),
					zap.Uint64("end_slot", requeued.EndSlot),
				)
			}
		}
	}
}

// processCheckpoint walks the checkpoint's slots in order. The checkpoint
// advances only after the slot's batch is durably applied.
func (b *Backfill) processCheckpoint(ctx context.Context, cp *model.Checkpoint) error {
	b.logger.Info("processing checkpoint",
		zap.String("checkpoint_id", cp.ID),
		zap.Uint64("from_slot", cp.NextSlot()),
		zap.Uint64("end_slot", cp.EndSlot),
	)

	for slot := cp.NextSlot(); ; slot++ {
		if err := b.processSlot(ctx, slot); err != nil {
			return err
		}
		if err := b.coord.Advance(ctx, cp, slot); err != nil {
			return fmt.Errorf("advance checkpoint to slot %d: %w", slot, err)
		}
		if _, err := b.sink.AdvanceCursor(ctx, model.CursorLastBackfillSlot, slot); err != nil {
			b.logger.Warn("backfill cursor update failed", zap.Uint64("slot", slot), zap.Error(err))
		}
		if cp.Done() {
			break
		}
	}

	return b.coord.Complete(ctx, cp)
}

func (b *Backfill) isRequeued(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.requeued[id]
	return ok
}

func (b *Backfill) markRequeued(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requeued[id] = struct{}{}
}
