package mapper

import (
	"encoding/json"
	"fmt"
	"time"

	"solanaetl/internal/model"
)

// TelemetryRecord is a decoded telemetry observation. The request id
// stands in for the transaction signature in the identity tuple; telemetry
// carries no program id.
type TelemetryRecord struct {
	EventType    model.EventType `json:"event_type"`
	Slot         uint64          `json:"slot"`
	ObservedAt   time.Time       `json:"observed_at"`
	RequestID    string          `json:"request_id"`
	UserID       string          `json:"user_id,omitempty"`
	APIEndpoint  string          `json:"api_endpoint,omitempty"`
	FeatureName  string          `json:"feature_name,omitempty"`
	ResponseCode *uint16         `json:"response_code,omitempty"`
	LatencyMs    *uint64         `json:"latency_ms,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// MapTelemetry maps one telemetry observation into its fact row.
func (m *Mapper) MapTelemetry(rec TelemetryRecord) (MappedEvent, error) {
	switch rec.EventType {
	case model.EventTypeTelemetryAPICall, model.EventTypeTelemetryFeatureUsage:
	default:
		return MappedEvent{}, fmt.Errorf("not a telemetry event type: %q", rec.EventType)
	}
	if rec.RequestID == "" {
		return MappedEvent{}, fmt.Errorf("telemetry record has no request id")
	}

	payload := rec.Payload
	if payload == nil {
		payload, _ = json.Marshal(rec)
	}

	event := model.NewEvent(rec.Slot, rec.ObservedAt, rec.RequestID, "", model.TxLevelIndex, rec.EventType, payload)
	return MappedEvent{
		Event: event,
		Telemetry: &model.TelemetryFact{
			Event:        event,
			UserID:       rec.UserID,
			APIEndpoint:  rec.APIEndpoint,
			FeatureName:  rec.FeatureName,
			RequestID:    rec.RequestID,
			ResponseCode: rec.ResponseCode,
			LatencyMs:    rec.LatencyMs,
		},
	}, nil
}
