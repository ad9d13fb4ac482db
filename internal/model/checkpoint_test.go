package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCheckpoint(t *testing.T) {
	cp, err := NewCheckpoint(100, 200)
	require.NoError(t, err)

	assert.Equal(t, CheckpointInProgress, cp.Status)
	assert.Equal(t, int64(99), cp.LastProcessedSlot)
	assert.Equal(t, uint64(100), cp.NextSlot())
	assert.NotEmpty(t, cp.ID)

	_, err = NewCheckpoint(10, 9)
	assert.Error(t, err)
}

func TestCheckpointAdvanceMonotonic(t *testing.T) {
	cp, err := NewCheckpoint(100, 200)
	require.NoError(t, err)

	require.NoError(t, cp.Advance(105))
	assert.Equal(t, int64(105), cp.LastProcessedSlot)

	// Regressions are rejected, re-advancing to the same slot is not.
	assert.Error(t, cp.Advance(104))
	assert.NoError(t, cp.Advance(105))
	assert.Error(t, cp.Advance(201))
	assert.Equal(t, int64(105), cp.LastProcessedSlot)
}

func TestCheckpointCompleteRequiresEndSlot(t *testing.T) {
	cp, err := NewCheckpoint(100, 200)
	require.NoError(t, err)

	require.NoError(t, cp.Advance(105))
	assert.Error(t, cp.Complete())

	require.NoError(t, cp.Advance(200))
	require.NoError(t, cp.Complete())
	assert.Equal(t, CheckpointCompleted, cp.Status)
	require.NotNil(t, cp.CompletedAt)

	// Terminal states are final.
	assert.Error(t, cp.Advance(200))
	assert.Error(t, cp.Complete())
	assert.Error(t, cp.Fail("late"))
}

func TestCheckpointEmptyRange(t *testing.T) {
	cp, err := NewCheckpoint(1000, 1000)
	require.NoError(t, err)

	require.NoError(t, cp.Advance(1000))
	require.NoError(t, cp.Complete())
	assert.Equal(t, int64(1000), cp.LastProcessedSlot)
}

func TestCheckpointFailAndRemainder(t *testing.T) {
	cp, err := NewCheckpoint(100, 200)
	require.NoError(t, err)
	require.NoError(t, cp.Advance(150))
	require.NoError(t, cp.Fail("sink unavailable"))

	assert.Equal(t, CheckpointFailed, cp.Status)
	assert.Equal(t, "sink unavailable", cp.FailureReason)

	start, end, ok := cp.Remainder()
	require.True(t, ok)
	assert.Equal(t, uint64(151), start)
	assert.Equal(t, uint64(200), end)
}
