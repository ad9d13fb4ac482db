package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"solanaetl/internal/mapper"
	"solanaetl/internal/model"
	"solanaetl/internal/storage"
)

// Telemetry ingests product telemetry observations from a JSONL file into
// the warehouse through the same idempotent writer as chain events, so
// re-running a file is harmless.
type Telemetry struct {
	cfg     Config
	sink    storage.Sink
	mapper  *mapper.Mapper
	capture *Capture
	logger  *zap.Logger
}

func NewTelemetry(cfg Config, sink storage.Sink, capture *Capture, logger *zap.Logger) *Telemetry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Telemetry{
		cfg:     cfg,
		sink:    sink,
		mapper:  mapper.New(),
		capture: capture,
		logger:  logger,
	}
}

// batch size for telemetry writes; observations are small and independent.
const telemetryBatchSize = 500

// IngestFile reads one telemetry record per line and applies them in
// batches. Lines that fail to decode or map are captured as decode errors
// and skipped; the file is always read to the end.
func (t *Telemetry) IngestFile(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open telemetry file: %w", err)
	}
	defer file.Close()

	var (
		pending  []mapper.MappedEvent
		total    int
		inserted int
		replayed int
		lineNo   int
	)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		batch := mapper.Batch{Slot: pending[len(pending)-1].Event.Slot, Events: pending}
		var result storage.ApplyResult
		err := withRetry(ctx, t.cfg.MaxRetries, t.cfg.RetryBackoff, func(ctx context.Context) error {
			var err error
			result, err = t.sink.ApplyBatch(ctx, batch)
			if err != nil {
				t.logger.Warn("telemetry batch apply failed", zap.Error(err))
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("apply telemetry batch: %w", &stageError{errType: model.ErrorTypeSinkUnavailable, err: err})
		}
		if len(result.Conflicts) > 0 {
			t.capture.Record(ctx, result.Conflicts...)
		}
		inserted += result.Inserted
		replayed += result.Replayed
		pending = pending[:0]
		return nil
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lineNo++
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec mapper.TelemetryRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			t.capture.Record(ctx, model.NewErrorRecord(model.ErrorTypeDecode,
				fmt.Sprintf("telemetry line %d: %v", lineNo, err)))
			continue
		}
		mapped, err := t.mapper.MapTelemetry(rec)
		if err != nil {
			t.capture.Record(ctx, model.NewErrorRecord(model.ErrorTypeDecode,
				fmt.Sprintf("telemetry line %d: %v", lineNo, err)).WithSlot(rec.Slot))
			continue
		}

		pending = append(pending, mapped)
		total++
		if len(pending) >= telemetryBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read telemetry file: %w", err)
	}
	if err := flush(); err != nil {
		return err
	}

	t.logger.Info("telemetry ingest complete",
		zap.String("path", path),
		zap.Int("records", total),
		zap.Int("inserted", inserted),
		zap.Int("replayed", replayed),
	)
	return nil
}
