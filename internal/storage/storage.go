package storage

import (
	"context"
	"errors"

	"solanaetl/internal/mapper"
	"solanaetl/internal/model"
)

// ErrNotAdvanced reports a conditional update that matched no row, e.g. a
// checkpoint advance against a terminal or regressed state.
var ErrNotAdvanced = errors.New("storage: conditional update matched no row")

// ApplyResult summarizes one batch application. Conflicts carry the
// identity_conflict records of rejected writes; the offending rows were
// left untouched.
type ApplyResult struct {
	Inserted  int
	Replayed  int
	Conflicts []model.ErrorRecord
}

// Writer persists mapped events idempotently: insert-if-absent facts keyed
// by event_id, dimension merges applied in the same transaction, and zero
// dimension increments for replayed events.
type Writer interface {
	ApplyBatch(ctx context.Context, batch mapper.Batch) (ApplyResult, error)
}

// CheckpointStore persists backfill checkpoints. Claiming is mutually
// exclusive; advances are monotonic; completed and failed are terminal.
type CheckpointStore interface {
	InsertCheckpoint(ctx context.Context, cp *model.Checkpoint) error
	ClaimCheckpoint(ctx context.Context, workerID string) (*model.Checkpoint, bool, error)
	AdvanceCheckpoint(ctx context.Context, id string, slot uint64) error
	CompleteCheckpoint(ctx context.Context, id string) error
	FailCheckpoint(ctx context.Context, id, reason string) error
	OpenCheckpoints(ctx context.Context) ([]model.Checkpoint, error)
	ReleaseClaims(ctx context.Context) (int, error)
	OverlappingInProgress(ctx context.Context, start, end uint64) (bool, error)
}

// CursorStore holds the singleton pipeline cursor. AdvanceCursor is a
// monotonic compare-and-set: it reports false when the stored slot was
// already at or past the given one.
type CursorStore interface {
	LoadCursor(ctx context.Context) (model.Cursor, error)
	AdvanceCursor(ctx context.Context, key string, slot uint64) (bool, error)
}

// ErrorSink appends classified failure records.
type ErrorSink interface {
	AppendError(ctx context.Context, rec model.ErrorRecord) error
}

// Sink is the full warehouse surface the pipeline drives.
type Sink interface {
	Writer
	CheckpointStore
	CursorStore
	ErrorSink
	Ping(ctx context.Context) error
}
