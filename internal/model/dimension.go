package model

// WalletDim is the wallet dimension row. Counters are monotone increments
// contributed exactly once per originating event.
type WalletDim struct {
	Wallet            string `json:"wallet"`
	FirstSeenSlot     uint64 `json:"first_seen_slot"`
	LastSeenSlot      uint64 `json:"last_seen_slot"`
	TotalTransactions uint64 `json:"total_transactions"`
	TotalSolSent      uint64 `json:"total_sol_sent"`
	TotalSolReceived  uint64 `json:"total_sol_received"`
}

// ProgramDim is the program dimension row.
type ProgramDim struct {
	ProgramID        string `json:"program_id"`
	FirstSeenSlot    uint64 `json:"first_seen_slot"`
	LastSeenSlot     uint64 `json:"last_seen_slot"`
	TotalInvocations uint64 `json:"total_invocations"`
}

// TokenDim is the token dimension row. Decimals stays nil until a mapped
// event carries it.
type TokenDim struct {
	TokenMint      string `json:"token_mint"`
	Decimals       *uint8 `json:"decimals,omitempty"`
	FirstSeenSlot  uint64 `json:"first_seen_slot"`
	LastSeenSlot   uint64 `json:"last_seen_slot"`
	TotalTransfers uint64 `json:"total_transfers"`
}

// MergeWallet combines an existing wallet row with an incoming contribution.
// The merge is commutative: min/max on seen slots, sums on counters.
func MergeWallet(existing, incoming WalletDim) WalletDim {
	merged := existing
	merged.FirstSeenSlot = minSlot(existing.FirstSeenSlot, incoming.FirstSeenSlot)
	merged.LastSeenSlot = maxSlot(existing.LastSeenSlot, incoming.LastSeenSlot)
	merged.TotalTransactions += incoming.TotalTransactions
	merged.TotalSolSent += incoming.TotalSolSent
	merged.TotalSolReceived += incoming.TotalSolReceived
	return merged
}

// MergeProgram combines an existing program row with an incoming contribution.
func MergeProgram(existing, incoming ProgramDim) ProgramDim {
	merged := existing
	merged.FirstSeenSlot = minSlot(existing.FirstSeenSlot, incoming.FirstSeenSlot)
	merged.LastSeenSlot = maxSlot(existing.LastSeenSlot, incoming.LastSeenSlot)
	merged.TotalInvocations += incoming.TotalInvocations
	return merged
}

// MergeToken combines an existing token row with an incoming contribution.
// Known decimals win over unknown; a known value is never overwritten.
func MergeToken(existing, incoming TokenDim) TokenDim {
	merged := existing
	merged.FirstSeenSlot = minSlot(existing.FirstSeenSlot, incoming.FirstSeenSlot)
	merged.LastSeenSlot = maxSlot(existing.LastSeenSlot, incoming.LastSeenSlot)
	merged.TotalTransfers += incoming.TotalTransfers
	if merged.Decimals == nil {
		merged.Decimals = incoming.Decimals
	}
	return merged
}

func minSlot(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func maxSlot(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
