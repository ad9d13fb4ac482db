package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solanaetl/internal/mapper"
	"solanaetl/internal/model"
	"solanaetl/internal/storage"
)

// Source is the chain surface the pipeline reads. GetBlock's second return
// is false for slots that exist without a block; those are skipped, never
// treated as failures.
type Source interface {
	GetSlot(ctx context.Context) (uint64, error)
	GetBlock(ctx context.Context, slot uint64) (json.RawMessage, bool, error)
}

// Config holds runtime settings shared by backfill and streaming.
type Config struct {
	WorkerID     string
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	PollInterval time.Duration
}

// ingest is the fetch-map-apply core shared by backfill and streaming.
type ingest struct {
	cfg     Config
	source  Source
	sink    storage.Sink
	mapper  *mapper.Mapper
	capture *Capture
	logger  *zap.Logger
}

// processSlot fetches, maps and applies one slot. Event-level failures are
// captured and do not abort the slot; only exhausted source or sink retries
// bubble up, tagged with their taxonomy type.
func (in *ingest) processSlot(ctx context.Context, slot uint64) error {
	var (
		raw   json.RawMessage
		found bool
	)
	err := withRetry(ctx, in.cfg.MaxRetries, in.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		raw, found, err = in.source.GetBlock(ctx, slot)
		if err != nil {
			in.logger.Warn("block fetch failed", zap.Uint64("slot", slot), zap.Error(err))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("fetch block %d: %w", slot, &stageError{errType: model.ErrorTypeSourceUnavailable, err: err})
	}
	if !found {
		in.logger.Debug("slot has no block", zap.Uint64("slot", slot))
		return nil
	}

	batch, decodeErrs := in.mapper.MapBlock(slot, raw)
	if len(decodeErrs) > 0 {
		in.capture.Record(ctx, decodeErrs...)
	}
	if len(batch.Events) == 0 {
		return nil
	}

	var result storage.ApplyResult
	err = withRetry(ctx, in.cfg.MaxRetries, in.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		result, err = in.sink.ApplyBatch(ctx, batch)
		if err != nil {
			in.logger.Warn("batch apply failed", zap.Uint64("slot", slot), zap.Error(err))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("apply batch for slot %d: %w", slot, &stageError{errType: model.ErrorTypeSinkUnavailable, err: err})
	}

	if len(result.Conflicts) > 0 {
		in.capture.Record(ctx, result.Conflicts...)
	}
	in.logger.Debug("slot applied",
		zap.Uint64("slot", slot),
		zap.Int("inserted", result.Inserted),
		zap.Int("replayed", result.Replayed),
		zap.Int("conflicts", len(result.Conflicts)),
	)
	return nil
}

// stageError tags a failure with the taxonomy type of the stage it came
// from.
type stageError struct {
	errType model.ErrorType
	err     error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// classify maps a pipeline failure onto the error taxonomy.
func classify(err error) model.ErrorRecord {
	var staged *stageError
	switch {
	case errors.Is(err, storage.ErrNotAdvanced):
		return model.NewErrorRecord(model.ErrorTypeCheckpointConflict, err.Error())
	case errors.As(err, &staged):
		return model.NewErrorRecord(staged.errType, err.Error())
	default:
		return model.NewErrorRecord(model.ErrorTypeSinkUnavailable, err.Error())
	}
}
