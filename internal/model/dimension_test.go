package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeWalletCommutative(t *testing.T) {
	e1 := WalletDim{Wallet: "w", FirstSeenSlot: 10, LastSeenSlot: 10, TotalTransactions: 1, TotalSolSent: 5}
	e2 := WalletDim{Wallet: "w", FirstSeenSlot: 5, LastSeenSlot: 5, TotalTransactions: 1, TotalSolReceived: 3}

	forward := MergeWallet(e1, e2)
	reverse := MergeWallet(e2, e1)

	assert.Equal(t, forward, reverse)
	assert.Equal(t, uint64(5), forward.FirstSeenSlot)
	assert.Equal(t, uint64(10), forward.LastSeenSlot)
	assert.Equal(t, uint64(2), forward.TotalTransactions)
	assert.Equal(t, uint64(5), forward.TotalSolSent)
	assert.Equal(t, uint64(3), forward.TotalSolReceived)
}

func TestMergeProgram(t *testing.T) {
	existing := ProgramDim{ProgramID: "p", FirstSeenSlot: 100, LastSeenSlot: 200, TotalInvocations: 7}
	incoming := ProgramDim{ProgramID: "p", FirstSeenSlot: 150, LastSeenSlot: 250, TotalInvocations: 1}

	merged := MergeProgram(existing, incoming)

	assert.Equal(t, uint64(100), merged.FirstSeenSlot)
	assert.Equal(t, uint64(250), merged.LastSeenSlot)
	assert.Equal(t, uint64(8), merged.TotalInvocations)
}

func TestMergeTokenKeepsKnownDecimals(t *testing.T) {
	six := uint8(6)
	nine := uint8(9)

	known := TokenDim{TokenMint: "m", Decimals: &six, FirstSeenSlot: 1, LastSeenSlot: 1}
	unknown := TokenDim{TokenMint: "m", FirstSeenSlot: 2, LastSeenSlot: 2, TotalTransfers: 1}

	merged := MergeToken(known, unknown)
	assert.Equal(t, &six, merged.Decimals)

	merged = MergeToken(unknown, known)
	assert.Equal(t, &six, merged.Decimals)

	// An already-known value is not overwritten.
	conflicting := TokenDim{TokenMint: "m", Decimals: &nine}
	merged = MergeToken(known, conflicting)
	assert.Equal(t, &six, merged.Decimals)
}
