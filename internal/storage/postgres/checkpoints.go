package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solanaetl/internal/model"
	"solanaetl/internal/storage"
)

const checkpointColumns = `checkpoint_id, start_slot, end_slot, last_processed_slot, status,
	claimed_by, failure_reason, created_at, updated_at, completed_at`

// InsertCheckpoint stores a newly planned checkpoint.
func (s *Store) InsertCheckpoint(ctx context.Context, cp *model.Checkpoint) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO etl_checkpoints (
			checkpoint_id, start_slot, end_slot, last_processed_slot, status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,now(),now())
	`, cp.ID, int64(cp.StartSlot), int64(cp.EndSlot), cp.LastProcessedSlot, string(cp.Status))
	if err != nil {
		return fmt.Errorf("insert checkpoint %s: %w", cp.ID, err)
	}
	return nil
}

// ClaimCheckpoint atomically claims the oldest unclaimed open checkpoint
// for a worker. SKIP LOCKED keeps concurrent claimers from blocking on or
// winning the same row.
func (s *Store) ClaimCheckpoint(ctx context.Context, workerID string) (*model.Checkpoint, bool, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE etl_checkpoints SET claimed_by = $1, updated_at = now()
		WHERE checkpoint_id = (
			SELECT checkpoint_id FROM etl_checkpoints
			WHERE status = $2 AND claimed_by IS NULL
			ORDER BY start_slot
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+checkpointColumns,
		workerID, string(model.CheckpointInProgress))

	cp, err := scanCheckpoint(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("claim checkpoint: %w", err)
	}
	return cp, true, nil
}

// AdvanceCheckpoint moves the high-water mark. The guard enforces
// monotonicity, the range bound, and that the checkpoint is still open.
func (s *Store) AdvanceCheckpoint(ctx context.Context, id string, slot uint64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE etl_checkpoints
		SET last_processed_slot = $2, updated_at = now()
		WHERE checkpoint_id = $1
		  AND status = $3
		  AND last_processed_slot <= $2
		  AND $2 <= end_slot
	`, id, int64(slot), string(model.CheckpointInProgress))
	if err != nil {
		return fmt.Errorf("advance checkpoint %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("advance checkpoint %s to %d: %w", id, slot, storage.ErrNotAdvanced)
	}
	return nil
}

// CompleteCheckpoint closes a checkpoint whose mark reached end_slot.
func (s *Store) CompleteCheckpoint(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE etl_checkpoints
		SET status = $2, completed_at = now(), updated_at = now()
		WHERE checkpoint_id = $1 AND status = $3 AND last_processed_slot = end_slot
	`, id, string(model.CheckpointCompleted), string(model.CheckpointInProgress))
	if err != nil {
		return fmt.Errorf("complete checkpoint %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete checkpoint %s: %w", id, storage.ErrNotAdvanced)
	}
	return nil
}

// FailCheckpoint marks a checkpoint terminally failed.
func (s *Store) FailCheckpoint(ctx context.Context, id, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE etl_checkpoints
		SET status = $2, failure_reason = $3, updated_at = now()
		WHERE checkpoint_id = $1 AND status = $4
	`, id, string(model.CheckpointFailed), reason, string(model.CheckpointInProgress))
	if err != nil {
		return fmt.Errorf("fail checkpoint %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("fail checkpoint %s: %w", id, storage.ErrNotAdvanced)
	}
	return nil
}

// OpenCheckpoints lists checkpoints still in progress, oldest range first.
func (s *Store) OpenCheckpoints(ctx context.Context) ([]model.Checkpoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+checkpointColumns+`
		FROM etl_checkpoints
		WHERE status = $1
		ORDER BY start_slot
	`, string(model.CheckpointInProgress))
	if err != nil {
		return nil, fmt.Errorf("list open checkpoints: %w", err)
	}
	defer rows.Close()

	var out []model.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out = append(out, *cp)
	}
	return out, rows.Err()
}

// ReleaseClaims clears worker claims of open checkpoints. Called once at
// startup so work left claimed by a crashed process can be re-claimed and
// resumed from its own high-water mark.
func (s *Store) ReleaseClaims(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE etl_checkpoints SET claimed_by = NULL, updated_at = now()
		WHERE status = $1 AND claimed_by IS NOT NULL
	`, string(model.CheckpointInProgress))
	if err != nil {
		return 0, fmt.Errorf("release claims: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// OverlappingInProgress reports whether [start, end] intersects an open
// checkpoint's range.
func (s *Store) OverlappingInProgress(ctx context.Context, start, end uint64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM etl_checkpoints
			WHERE status = $1 AND start_slot <= $3 AND end_slot >= $2
		)
	`, string(model.CheckpointInProgress), int64(start), int64(end)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check overlap: %w", err)
	}
	return exists, nil
}

func scanCheckpoint(row pgx.Row) (*model.Checkpoint, error) {
	var cp model.Checkpoint
	var startSlot, endSlot int64
	var status string
	var claimedBy, failureReason *string

	err := row.Scan(&cp.ID, &startSlot, &endSlot, &cp.LastProcessedSlot, &status,
		&claimedBy, &failureReason, &cp.CreatedAt, &cp.UpdatedAt, &cp.CompletedAt)
	if err != nil {
		return nil, err
	}

	cp.StartSlot = uint64(startSlot)
	cp.EndSlot = uint64(endSlot)
	cp.Status = model.CheckpointStatus(status)
	if claimedBy != nil {
		cp.ClaimedBy = *claimedBy
	}
	if failureReason != nil {
		cp.FailureReason = *failureReason
	}
	return &cp, nil
}
