package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CheckpointStatus is the checkpoint lifecycle state. Completed and failed
// are terminal.
type CheckpointStatus string

const (
	CheckpointInProgress CheckpointStatus = "in_progress"
	CheckpointCompleted  CheckpointStatus = "completed"
	CheckpointFailed     CheckpointStatus = "failed"
)

// Checkpoint is one unit of backfill work over an inclusive slot range.
// LastProcessedSlot is StartSlot-1 until the first durable batch, so it is
// signed while slots themselves are not.
type Checkpoint struct {
	ID                string           `json:"checkpoint_id"`
	StartSlot         uint64           `json:"start_slot"`
	EndSlot           uint64           `json:"end_slot"`
	LastProcessedSlot int64            `json:"last_processed_slot"`
	Status            CheckpointStatus `json:"status"`
	ClaimedBy         string           `json:"claimed_by,omitempty"`
	FailureReason     string           `json:"failure_reason,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
}

// NewCheckpoint plans a checkpoint for [start, end].
func NewCheckpoint(start, end uint64) (*Checkpoint, error) {
	if end < start {
		return nil, fmt.Errorf("end slot %d before start slot %d", end, start)
	}
	now := time.Now().UTC()
	return &Checkpoint{
		ID:                uuid.NewString(),
		StartSlot:         start,
		EndSlot:           end,
		LastProcessedSlot: int64(start) - 1,
		Status:            CheckpointInProgress,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// NextSlot is the first slot not yet durably processed.
func (c *Checkpoint) NextSlot() uint64 {
	return uint64(c.LastProcessedSlot + 1)
}

// Done reports whether the high-water mark reached the end of the range.
func (c *Checkpoint) Done() bool {
	return c.LastProcessedSlot >= 0 && uint64(c.LastProcessedSlot) == c.EndSlot
}

// Advance moves the high-water mark to slot. The mark is monotone and may
// only move after the corresponding writes are durable.
func (c *Checkpoint) Advance(slot uint64) error {
	if c.Status != CheckpointInProgress {
		return fmt.Errorf("checkpoint %s is %s", c.ID, c.Status)
	}
	if int64(slot) < c.LastProcessedSlot {
		return fmt.Errorf("advance to %d would regress high-water mark %d", slot, c.LastProcessedSlot)
	}
	if slot > c.EndSlot {
		return fmt.Errorf("advance to %d past end slot %d", slot, c.EndSlot)
	}
	c.LastProcessedSlot = int64(slot)
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// Complete marks the checkpoint terminal. It succeeds only when the whole
// range has been processed.
func (c *Checkpoint) Complete() error {
	if c.Status != CheckpointInProgress {
		return fmt.Errorf("checkpoint %s is %s", c.ID, c.Status)
	}
	if !c.Done() {
		return fmt.Errorf("checkpoint %s at slot %d has not reached end slot %d", c.ID, c.LastProcessedSlot, c.EndSlot)
	}
	now := time.Now().UTC()
	c.Status = CheckpointCompleted
	c.UpdatedAt = now
	c.CompletedAt = &now
	return nil
}

// Fail marks the checkpoint terminal with a reason. Failed checkpoints are
// never retried in place; Remainder plans the follow-up range.
func (c *Checkpoint) Fail(reason string) error {
	if c.Status != CheckpointInProgress {
		return fmt.Errorf("checkpoint %s is %s", c.ID, c.Status)
	}
	c.Status = CheckpointFailed
	c.FailureReason = reason
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// Remainder returns the unprocessed [start, end] of a failed checkpoint and
// whether anything is left.
func (c *Checkpoint) Remainder() (uint64, uint64, bool) {
	if c.Done() {
		return 0, 0, false
	}
	return c.NextSlot(), c.EndSlot, true
}
