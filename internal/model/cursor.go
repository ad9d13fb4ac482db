package model

// Keys of the singleton pipeline cursor rows in etl_metadata.
const (
	CursorLastConfirmedSlot = "last_confirmed_slot"
	CursorLastBackfillSlot  = "last_backfill_slot"
	CursorChainTipSlot      = "chain_tip_slot"
)

// Cursor is the process-wide pipeline position. LastConfirmedSlot and
// LastBackfillSlot move only after durable writes; ChainTipSlot is advisory.
type Cursor struct {
	LastConfirmedSlot uint64 `json:"last_confirmed_slot"`
	LastBackfillSlot  uint64 `json:"last_backfill_slot"`
	ChainTipSlot      uint64 `json:"chain_tip_slot"`
}
