package event

import (
	"encoding/hex"
	"encoding/json"
)

// WireEvent is the JSON form of a committed event sent to external
// subscribers (NATS, websocket).
type WireEvent struct {
	Sequence  int64           `json:"sequence"`
	Type      string          `json:"type"`
	Epoch     uint64          `json:"epoch"`
	Timestamp int64           `json:"timestamp"`
	CommandID string          `json:"command_id,omitempty"`
	StateHash string          `json:"state_hash"`
	Payload   json.RawMessage `json:"payload"`
}

func NewWireEvent(env *EventEnvelope) (WireEvent, error) {
	payload, err := MarshalPayload(env.Payload)
	if err != nil {
		return WireEvent{}, err
	}
	return WireEvent{
		Sequence:  env.Sequence,
		Type:      env.EventType.String(),
		Epoch:     env.Epoch,
		Timestamp: env.Timestamp,
		CommandID: env.CommandID,
		StateHash: hex.EncodeToString(env.StateHash[:]),
		Payload:   payload,
	}, nil
}
