package model

import (
	"encoding/json"
	"time"
)

// EventType is the closed set of event categories the pipeline emits.
type EventType string

const (
	EventTypeTransaction           EventType = "transaction"
	EventTypeInstruction           EventType = "instruction"
	EventTypeLog                   EventType = "log"
	EventTypeTokenTransfer         EventType = "token_transfer"
	EventTypeLamportsTransfer      EventType = "lamports_transfer"
	EventTypeProgramInstruction    EventType = "program_instruction"
	EventTypeTokenInstruction      EventType = "token_instruction"
	EventTypeTelemetryAPICall      EventType = "telemetry_api_call"
	EventTypeTelemetryFeatureUsage EventType = "telemetry_feature_usage"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeTransaction, EventTypeInstruction, EventTypeLog,
		EventTypeTokenTransfer, EventTypeLamportsTransfer,
		EventTypeProgramInstruction, EventTypeTokenInstruction,
		EventTypeTelemetryAPICall, EventTypeTelemetryFeatureUsage:
		return true
	}
	return false
}

// TxLevelIndex is the instruction index assigned to transaction-level events.
const TxLevelIndex int32 = -1

// Event is the canonical representation of one chain fact at a
// (slot, transaction, instruction) coordinate. The raw payload is kept
// verbatim; nothing in the pipeline requires schema knowledge of it.
type Event struct {
	EventID          string          `json:"event_id"`
	Slot             uint64          `json:"slot"`
	BlockTime        time.Time       `json:"block_time"`
	TxSignature      string          `json:"tx_signature"`
	ProgramID        string          `json:"program_id,omitempty"`
	InstructionIndex int32           `json:"instruction_index"`
	EventType        EventType       `json:"event_type"`
	RawPayload       json.RawMessage `json:"raw_payload"`
}

// NewEvent builds an Event with its derived identifier.
func NewEvent(slot uint64, blockTime time.Time, txSignature, programID string, instructionIndex int32, eventType EventType, rawPayload json.RawMessage) Event {
	return Event{
		EventID:          EventID(slot, txSignature, instructionIndex, eventType),
		Slot:             slot,
		BlockTime:        blockTime.UTC(),
		TxSignature:      txSignature,
		ProgramID:        programID,
		InstructionIndex: instructionIndex,
		EventType:        eventType,
		RawPayload:       rawPayload,
	}
}
