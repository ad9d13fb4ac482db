package postgres

import (
	"context"
	"fmt"

	"solanaetl/internal/model"
)

// AppendError stores a classified failure record. etl_errors is
// append-only; replaying the same error id is a no-op.
func (s *Store) AppendError(ctx context.Context, rec model.ErrorRecord) error {
	var slot *int64
	if rec.Slot != nil {
		v := int64(*rec.Slot)
		slot = &v
	}

	var diagCtx *string
	if len(rec.ErrorContext) > 0 {
		v := string(rec.ErrorContext)
		diagCtx = &v
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO etl_errors (
			error_id, slot, tx_signature, error_type, error_message, error_context, created_at
		) VALUES ($1,$2,$3,$4,$5,$6::jsonb,$7)
		ON CONFLICT (error_id) DO NOTHING
	`, rec.ErrorID, slot, nullable(rec.TxSignature), string(rec.ErrorType), rec.ErrorMessage, diagCtx, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append error %s: %w", rec.ErrorID, err)
	}
	return nil
}
