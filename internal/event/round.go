package event

import "github.com/holiman/uint256"

type RoundStarted struct {
	Epoch          uint64 `json:"epoch"`
	StartTimestamp int64  `json:"start_timestamp"`
	LockTimestamp  int64  `json:"lock_timestamp"`
	CloseTimestamp int64  `json:"close_timestamp"`
}

func (e *RoundStarted) EventType() EventType {
	return EventTypeRoundStarted
}

type RoundLocked struct {
	Epoch          uint64       `json:"epoch"`
	OracleRoundID  *uint256.Int `json:"oracle_round_id"`
	Price          int64        `json:"price"`
	CloseTimestamp int64        `json:"close_timestamp"`
}

func (e *RoundLocked) EventType() EventType {
	return EventTypeRoundLocked
}

type RoundEnded struct {
	Epoch         uint64       `json:"epoch"`
	OracleRoundID *uint256.Int `json:"oracle_round_id"`
	Price         int64        `json:"price"`
}

func (e *RoundEnded) EventType() EventType {
	return EventTypeRoundEnded
}

// Settled carries the amounts computed once a round resolves. TreasuryDelta is
// non-zero only for a tie.
type Settled struct {
	Epoch               uint64 `json:"epoch"`
	RewardBaseCalAmount uint64 `json:"reward_base_cal_amount"`
	RewardAmount        uint64 `json:"reward_amount"`
	TreasuryDelta       uint64 `json:"treasury_delta"`
}

func (e *Settled) EventType() EventType {
	return EventTypeSettled
}
