package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solanaetl/internal/mapper"
	"solanaetl/internal/model"
	"solanaetl/internal/storage"
)

// Stream follows the confirmed chain tip: it polls the current slot,
// processes every slot between the cursor and the tip in order, and moves
// the cursor only after each slot's writes are durable. Restarts pick up
// exactly where the cursor points.
type Stream struct {
	ingest
}

func NewStream(cfg Config, source Source, sink storage.Sink, capture *Capture, logger *zap.Logger) *Stream {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stream{
		ingest: ingest{
			cfg:     cfg,
			source:  source,
			sink:    sink,
			mapper:  mapper.New(),
			capture: capture,
			logger:  logger,
		},
	}
}

// Run streams until the context is cancelled. A fresh deployment with no
// cursor starts at the current tip rather than replaying history; backfill
// covers the past.
func (s *Stream) Run(ctx context.Context) error {
	cursor, err := s.sink.LoadCursor(ctx)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}

	next := cursor.LastConfirmedSlot + 1
	if cursor.LastConfirmedSlot == 0 {
		tip, err := s.currentTip(ctx)
		if err != nil {
			return err
		}
		next = tip
		s.logger.Info("no stream cursor, starting at tip", zap.Uint64("slot", tip))
	} else {
		s.logger.Info("resuming stream", zap.Uint64("slot", next))
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		tip, err := s.currentTip(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// The tip poll exhausted its retries; record it and keep
			// polling rather than dying on a source outage.
			s.capture.Record(ctx, classify(err))
		} else {
			if _, err := s.sink.AdvanceCursor(ctx, model.CursorChainTipSlot, tip); err != nil {
				s.logger.Warn("chain tip cursor update failed", zap.Error(err))
			}

			advanced, err := s.drainTo(ctx, next, tip)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.capture.Record(ctx, classify(err).WithSlot(advanced))
			}
			next = advanced
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// drainTo processes slots [next, tip] in order and returns the next slot to
// process. On error the return points at the slot that failed, so the next
// poll retries it rather than skipping ahead.
func (s *Stream) drainTo(ctx context.Context, next, tip uint64) (uint64, error) {
	for slot := next; slot <= tip; slot++ {
		if ctx.Err() != nil {
			return slot, ctx.Err()
		}
		if err := s.processSlot(ctx, slot); err != nil {
			return slot, err
		}
		if _, err := s.sink.AdvanceCursor(ctx, model.CursorLastConfirmedSlot, slot); err != nil {
			return slot, fmt.Errorf("advance stream cursor to %d: %w", slot, err)
		}
	}
	if tip >= next {
		return tip + 1, nil
	}
	return next, nil
}

func (s *Stream) currentTip(ctx context.Context) (uint64, error) {
	var tip uint64
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		tip, err = s.source.GetSlot(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get slot: %w", &stageError{errType: model.ErrorTypeSourceUnavailable, err: err})
	}
	return tip, nil
}
