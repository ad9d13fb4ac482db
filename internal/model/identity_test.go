package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventIDDeterministic(t *testing.T) {
	first := EventID(500, "sigA", 0, EventTypeTokenTransfer)
	second := EventID(500, "sigA", 0, EventTypeTokenTransfer)

	require.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestEventIDDistinguishesFields(t *testing.T) {
	base := EventID(500, "sigA", 0, EventTypeTokenTransfer)

	assert.NotEqual(t, base, EventID(501, "sigA", 0, EventTypeTokenTransfer))
	assert.NotEqual(t, base, EventID(500, "sigB", 0, EventTypeTokenTransfer))
	assert.NotEqual(t, base, EventID(500, "sigA", 1, EventTypeTokenTransfer))
	assert.NotEqual(t, base, EventID(500, "sigA", 0, EventTypeTransaction))
	assert.NotEqual(t, base, EventID(500, "sigA", TxLevelIndex, EventTypeTokenTransfer))
}

func TestEventIDNoConcatenationAliasing(t *testing.T) {
	// Without length prefixes these two would concatenate identically.
	a := EventID(1, "ab", 0, EventType("c"))
	b := EventID(1, "a", 0, EventType("bc"))
	assert.NotEqual(t, a, b)

	// A signature containing the separator must not shift fields.
	c := EventID(1, "sig:2", 0, EventTypeLog)
	d := EventID(1, "sig", 2, EventTypeLog)
	assert.NotEqual(t, c, d)
}

func TestPayloadHash(t *testing.T) {
	payload := json.RawMessage(`{"mint":"So11111111111111111111111111111111111111112"}`)
	other := json.RawMessage(`{"mint":"other"}`)

	assert.Equal(t, PayloadHash(payload), PayloadHash(payload))
	assert.NotEqual(t, PayloadHash(payload), PayloadHash(other))
}
