package mutation

import (
	"encoding/json"
	"fmt"
	"time"
)

// envelope is the serialized form of a record. The payload stays raw until
// the type tag selects its shape.
type envelope struct {
	ID          string          `json:"id"`
	Type        Type            `json:"type"`
	CoalesceKey string          `json:"coalesceKey"`
	CreatedAt   time.Time       `json:"createdAt"`
	Payload     json.RawMessage `json:"payload"`
}

// MarshalRecord serializes a record for durable storage or transmission.
func MarshalRecord(record Record) ([]byte, error) {
	payloadJSON, err := json.Marshal(record.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.Marshal(envelope{
		ID:          record.ID,
		Type:        record.Type,
		CoalesceKey: record.CoalesceKey,
		CreatedAt:   record.CreatedAt.UTC(),
		Payload:     payloadJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return data, nil
}

// MarshalPayload serializes just the payload body for transmission.
func MarshalPayload(record Record) ([]byte, error) {
	data, err := json.Marshal(record.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}

// UnmarshalRecord restores a record, dispatching the payload shape through
// the type registry.
func UnmarshalRecord(data []byte) (Record, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Record{}, fmt.Errorf("unmarshal record: %w", err)
	}
	payload, err := NewPayload(env.Type)
	if err != nil {
		return Record{}, err
	}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, payload); err != nil {
			return Record{}, fmt.Errorf("unmarshal %s payload: %w", env.Type, err)
		}
	}
	return Record{
		ID:          env.ID,
		Type:        env.Type,
		CoalesceKey: env.CoalesceKey,
		CreatedAt:   env.CreatedAt,
		Payload:     payload,
	}, nil
}
