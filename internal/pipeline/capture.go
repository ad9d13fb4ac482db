package pipeline

import (
	"context"

	"go.uber.org/zap"

	"solanaetl/internal/model"
	"solanaetl/internal/storage"
)

// Capture records classified failures without ever failing itself. The
// warehouse error table is the primary destination; when it is unreachable
// records spill to a local JSONL file so diagnosis survives sink outages.
type Capture struct {
	sink   storage.ErrorSink
	spill  *storage.ErrorSpill
	logger *zap.Logger
}

func NewCapture(sink storage.ErrorSink, spill *storage.ErrorSpill, logger *zap.Logger) *Capture {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capture{sink: sink, spill: spill, logger: logger}
}

// Record persists error records best-effort. A failure to capture is logged
// and swallowed; error capture must never take the pipeline down.
func (c *Capture) Record(ctx context.Context, records ...model.ErrorRecord) {
	for _, rec := range records {
		c.logger.Warn("pipeline error captured",
			zap.String("error_type", string(rec.ErrorType)),
			zap.String("message", rec.ErrorMessage),
			zap.String("tx_signature", rec.TxSignature),
		)

		if c.sink != nil {
			if err := c.sink.AppendError(ctx, rec); err == nil {
				continue
			} else {
				c.logger.Warn("error sink write failed, spilling locally", zap.Error(err))
			}
		}
		if c.spill == nil {
			continue
		}
		if err := c.spill.Append(rec); err != nil {
			c.logger.Error("error spill write failed, record dropped",
				zap.Error(err),
				zap.String("error_id", rec.ErrorID),
			)
		}
	}
}
