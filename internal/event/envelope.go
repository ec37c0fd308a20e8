package event

// EventType discriminator for emitted event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeRoundStarted
	EventTypeRoundLocked
	EventTypeRoundEnded
	EventTypeBetPlaced
	EventTypeSettled
	EventTypeClaimed
	EventTypeTreasuryDrained
	EventTypeClaimReverted
	EventTypeDrainReverted
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Request id of the command that produced the event (may be empty)
	CommandID string

	EventType EventType

	// Round the event belongs to (0 for treasury events)
	Epoch uint64

	// Clock reading of the producing command, unix seconds
	Timestamp int64

	Payload Event

	// SHA-256 chained over the previous hash and this event
	StateHash [32]byte
	PrevHash  [32]byte
}

// Event is the interface all event payloads implement
type Event interface {
	EventType() EventType
}

func (et EventType) String() string {
	switch et {
	case EventTypeRoundStarted:
		return "RoundStarted"
	case EventTypeRoundLocked:
		return "RoundLocked"
	case EventTypeRoundEnded:
		return "RoundEnded"
	case EventTypeBetPlaced:
		return "BetPlaced"
	case EventTypeSettled:
		return "Settled"
	case EventTypeClaimed:
		return "Claimed"
	case EventTypeTreasuryDrained:
		return "TreasuryDrained"
	case EventTypeClaimReverted:
		return "ClaimReverted"
	case EventTypeDrainReverted:
		return "DrainReverted"
	default:
		return "Unknown"
	}
}

// ParseEventType is the inverse of EventType.String.
func ParseEventType(s string) EventType {
	for et := EventTypeRoundStarted; et <= EventTypeDrainReverted; et++ {
		if et.String() == s {
			return et
		}
	}
	return EventTypeUnknown
}
