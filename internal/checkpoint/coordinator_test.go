package checkpoint

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solanaetl/internal/model"
	"solanaetl/internal/storage"
)

// memCheckpointStore is an in-memory storage.CheckpointStore for coordinator
// tests. It applies the same conditional-update semantics as the SQL store.
type memCheckpointStore struct {
	mu  sync.Mutex
	cps map[string]*model.Checkpoint
}

func newMemCheckpointStore() *memCheckpointStore {
	return &memCheckpointStore{cps: make(map[string]*model.Checkpoint)}
}

func (s *memCheckpointStore) InsertCheckpoint(_ context.Context, cp *model.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *cp
	s.cps[cp.ID] = &clone
	return nil
}

func (s *memCheckpointStore) ClaimCheckpoint(_ context.Context, workerID string) (*model.Checkpoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var candidates []*model.Checkpoint
	for _, cp := range s.cps {
		if cp.Status == model.CheckpointInProgress && cp.ClaimedBy == "" {
			candidates = append(candidates, cp)
		}
	}
	if len(candidates) == 0 {
		return nil, false, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].StartSlot < candidates[j].StartSlot })
	cp := candidates[0]
	cp.ClaimedBy = workerID
	clone := *cp
	return &clone, true, nil
}

func (s *memCheckpointStore) AdvanceCheckpoint(_ context.Context, id string, slot uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.cps[id]
	if !ok || cp.Status != model.CheckpointInProgress || cp.LastProcessedSlot > int64(slot) || slot > cp.EndSlot {
		return storage.ErrNotAdvanced
	}
	cp.LastProcessedSlot = int64(slot)
	return nil
}

func (s *memCheckpointStore) CompleteCheckpoint(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.cps[id]
	if !ok || cp.Status != model.CheckpointInProgress {
		return storage.ErrNotAdvanced
	}
	cp.Status = model.CheckpointCompleted
	return nil
}

func (s *memCheckpointStore) FailCheckpoint(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.cps[id]
	if !ok || cp.Status != model.CheckpointInProgress {
		return storage.ErrNotAdvanced
	}
	cp.Status = model.CheckpointFailed
	cp.FailureReason = reason
	return nil
}

func (s *memCheckpointStore) OpenCheckpoints(_ context.Context) ([]model.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var open []model.Checkpoint
	for _, cp := range s.cps {
		if cp.Status == model.CheckpointInProgress {
			open = append(open, *cp)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].StartSlot < open[j].StartSlot })
	return open, nil
}

func (s *memCheckpointStore) ReleaseClaims(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	released := 0
	for _, cp := range s.cps {
		if cp.Status == model.CheckpointInProgress && cp.ClaimedBy != "" {
			cp.ClaimedBy = ""
			released++
		}
	}
	return released, nil
}

func (s *memCheckpointStore) OverlappingInProgress(_ context.Context, start, end uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cp := range s.cps {
		if cp.Status == model.CheckpointInProgress && cp.StartSlot <= end && cp.EndSlot >= start {
			return true, nil
		}
	}
	return false, nil
}

func TestCoordinatorPlanAndClaim(t *testing.T) {
	ctx := context.Background()
	store := newMemCheckpointStore()
	coord := NewCoordinator(store, nil)

	planned, err := coord.Plan(ctx, 100, 299, 100)
	require.NoError(t, err)
	require.Len(t, planned, 2)
	assert.Equal(t, uint64(100), planned[0].StartSlot)
	assert.Equal(t, uint64(199), planned[0].EndSlot)
	assert.Equal(t, int64(99), planned[0].LastProcessedSlot)

	cp, ok, err := coord.Claim(ctx, "worker-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(100), cp.StartSlot)
	assert.Equal(t, uint64(100), cp.NextSlot())

	// Second worker gets the next range, not the claimed one.
	cp2, ok, err := coord.Claim(ctx, "worker-2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(200), cp2.StartSlot)

	_, ok, err = coord.Claim(ctx, "worker-3")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCoordinatorPlanRejectsInProgressOverlap(t *testing.T) {
	ctx := context.Background()
	store := newMemCheckpointStore()
	coord := NewCoordinator(store, nil)

	_, err := coord.Plan(ctx, 100, 199, 50)
	require.NoError(t, err)

	_, err = coord.Plan(ctx, 150, 250, 50)
	assert.ErrorIs(t, err, ErrRangeInProgress)
}

func TestCoordinatorPlanAllowsCompletedOverlap(t *testing.T) {
	ctx := context.Background()
	store := newMemCheckpointStore()
	coord := NewCoordinator(store, nil)

	_, err := coord.Plan(ctx, 100, 149, 50)
	require.NoError(t, err)

	cp, ok, err := coord.Claim(ctx, "worker-1")
	require.NoError(t, err)
	require.True(t, ok)
	for slot := cp.StartSlot; slot <= cp.EndSlot; slot++ {
		require.NoError(t, coord.Advance(ctx, cp, slot))
	}
	require.NoError(t, coord.Complete(ctx, cp))

	// Re-planning over completed work is permitted; downstream writes
	// replay as no-ops.
	_, err = coord.Plan(ctx, 100, 149, 50)
	assert.NoError(t, err)
}

func TestCoordinatorAdvanceMonotonic(t *testing.T) {
	ctx := context.Background()
	store := newMemCheckpointStore()
	coord := NewCoordinator(store, nil)

	_, err := coord.Plan(ctx, 100, 199, 100)
	require.NoError(t, err)
	cp, _, err := coord.Claim(ctx, "worker-1")
	require.NoError(t, err)

	require.NoError(t, coord.Advance(ctx, cp, 105))
	// Redelivering the same durable slot is an idempotent no-op.
	assert.NoError(t, coord.Advance(ctx, cp, 105))
	assert.Error(t, coord.Advance(ctx, cp, 104))
	assert.Error(t, coord.Advance(ctx, cp, 200))
}

func TestCoordinatorFailRequeuesRemainder(t *testing.T) {
	ctx := context.Background()
	store := newMemCheckpointStore()
	coord := NewCoordinator(store, nil)

	_, err := coord.Plan(ctx, 100, 200, 200)
	require.NoError(t, err)
	cp, _, err := coord.Claim(ctx, "worker-1")
	require.NoError(t, err)

	require.NoError(t, coord.Advance(ctx, cp, 150))

	requeued, err := coord.Fail(ctx, cp, "sink_unavailable: connection refused")
	require.NoError(t, err)
	require.NotNil(t, requeued)
	assert.Equal(t, uint64(151), requeued.StartSlot)
	assert.Equal(t, uint64(200), requeued.EndSlot)

	// The failed checkpoint is terminal; only the requeued range is open.
	open, err := coord.Open(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, requeued.ID, open[0].ID)
}

func TestCoordinatorFailAtEndRequeuesNothing(t *testing.T) {
	ctx := context.Background()
	store := newMemCheckpointStore()
	coord := NewCoordinator(store, nil)

	_, err := coord.Plan(ctx, 100, 100, 10)
	require.NoError(t, err)
	cp, _, err := coord.Claim(ctx, "worker-1")
	require.NoError(t, err)
	require.NoError(t, coord.Advance(ctx, cp, 100))

	requeued, err := coord.Fail(ctx, cp, "completion write lost")
	require.NoError(t, err)
	assert.Nil(t, requeued)
}

func TestCoordinatorResumeReleasesClaims(t *testing.T) {
	ctx := context.Background()
	store := newMemCheckpointStore()
	coord := NewCoordinator(store, nil)

	_, err := coord.Plan(ctx, 100, 199, 100)
	require.NoError(t, err)
	cp, _, err := coord.Claim(ctx, "worker-1")
	require.NoError(t, err)
	require.NoError(t, coord.Advance(ctx, cp, 105))

	// Crash: the process goes away while holding the claim.
	open, err := coord.Resume(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Empty(t, open[0].ClaimedBy)
	assert.Equal(t, int64(105), open[0].LastProcessedSlot)

	reclaimed, ok, err := coord.Claim(ctx, "worker-2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(106), reclaimed.NextSlot())
}
