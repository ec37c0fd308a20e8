package event

import (
	"encoding/json"
	"fmt"
)

// MarshalPayload JSON-encodes an event payload for the event log and the
// outbound stream.
func MarshalPayload(evt Event) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", evt.EventType(), err)
	}
	return data, nil
}

// UnmarshalPayload decodes a payload previously produced by MarshalPayload.
func UnmarshalPayload(et EventType, data []byte) (Event, error) {
	var evt Event
	switch et {
	case EventTypeRoundStarted:
		evt = &RoundStarted{}
	case EventTypeRoundLocked:
		evt = &RoundLocked{}
	case EventTypeRoundEnded:
		evt = &RoundEnded{}
	case EventTypeBetPlaced:
		evt = &BetPlaced{}
	case EventTypeSettled:
		evt = &Settled{}
	case EventTypeClaimed:
		evt = &Claimed{}
	case EventTypeTreasuryDrained:
		evt = &TreasuryDrained{}
	case EventTypeClaimReverted:
		evt = &ClaimReverted{}
	case EventTypeDrainReverted:
		evt = &DrainReverted{}
	default:
		return nil, fmt.Errorf("unknown event type: %d", et)
	}
	if err := json.Unmarshal(data, evt); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", et, err)
	}
	return evt, nil
}
