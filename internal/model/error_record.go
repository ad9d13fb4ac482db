package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ErrorType is the closed failure taxonomy.
type ErrorType string

const (
	ErrorTypeDecode             ErrorType = "decode_error"
	ErrorTypeIdentityConflict   ErrorType = "identity_conflict"
	ErrorTypeSinkUnavailable    ErrorType = "sink_unavailable"
	ErrorTypeSourceUnavailable  ErrorType = "source_unavailable"
	ErrorTypeCheckpointConflict ErrorType = "checkpoint_conflict"
)

// ErrorRecord captures one classified failure for offline diagnosis.
// Records are append-only; the pipeline never mutates or deletes them.
type ErrorRecord struct {
	ErrorID      string          `json:"error_id"`
	Slot         *uint64         `json:"slot,omitempty"`
	TxSignature  string          `json:"tx_signature,omitempty"`
	ErrorType    ErrorType       `json:"error_type"`
	ErrorMessage string          `json:"error_message"`
	ErrorContext json.RawMessage `json:"error_context,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewErrorRecord builds a record with a fresh id and timestamp.
func NewErrorRecord(errType ErrorType, message string) ErrorRecord {
	return ErrorRecord{
		ErrorID:      uuid.NewString(),
		ErrorType:    errType,
		ErrorMessage: message,
		CreatedAt:    time.Now().UTC(),
	}
}

// WithSlot attaches the slot the failure relates to.
func (r ErrorRecord) WithSlot(slot uint64) ErrorRecord {
	r.Slot = &slot
	return r
}

// WithSignature attaches the transaction signature the failure relates to.
func (r ErrorRecord) WithSignature(sig string) ErrorRecord {
	r.TxSignature = sig
	return r
}

// WithContext attaches opaque diagnostic data.
func (r ErrorRecord) WithContext(ctx json.RawMessage) ErrorRecord {
	r.ErrorContext = ctx
	return r
}
