package mapper

import "solanaetl/internal/model"

// MappedEvent is the full write set one event produces: exactly one fact
// row matching the event's category plus zero or more dimension merge
// contributions. The writer applies it as a single all-or-nothing unit.
type MappedEvent struct {
	Event model.Event

	Transaction   *model.TransactionFact
	ProgramEvent  *model.ProgramEventFact
	TokenTransfer *model.TokenTransferFact
	Telemetry     *model.TelemetryFact

	Wallets  []model.WalletDim
	Programs []model.ProgramDim
	Tokens   []model.TokenDim
}

// Batch groups the mapped events of one slot.
type Batch struct {
	Slot   uint64
	Events []MappedEvent
}
