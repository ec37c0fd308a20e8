package state

import (
	"github.com/gcdeng/eth-price-prediction-dapp/internal/event"
	"github.com/holiman/uint256"
)

// Round is the per-epoch record. Timestamps are unix seconds; prices are
// fixed-point in the feed's decimals, with zero meaning "not yet written".
type Round struct {
	Epoch uint64

	StartTimestamp int64
	LockTimestamp  int64
	CloseTimestamp int64

	// LockDuration is the lockSeconds requested at start. Locking re-derives
	// CloseTimestamp as lock time + LockDuration.
	LockDuration int64

	LockPrice     int64
	ClosePrice    int64
	LockOracleID  *uint256.Int
	CloseOracleID *uint256.Int

	// TotalAmount and the side amounts are the stake still held in escrow
	// for this round: a refund lowers them by the refunded bet.
	TotalAmount uint64
	BullAmount  uint64
	BearAmount  uint64

	// Written exactly once by settlement
	RewardBaseCalAmount uint64
	RewardAmount        uint64

	Locked       bool
	OracleCalled bool
}

// Status is a round's lifecycle phase at a given time.
type Status uint8

const (
	StatusLive    Status = iota // accepting wagers until LockTimestamp
	StatusLocked                // lock price recorded, awaiting close
	StatusClosed                // close price recorded and settled
	StatusExpired               // past CloseTimestamp without resolution; refunds open
)

func (s Status) String() string {
	switch s {
	case StatusLive:
		return "live"
	case StatusLocked:
		return "locked"
	case StatusClosed:
		return "closed"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

func (r *Round) Status(now int64) Status {
	switch {
	case r.OracleCalled:
		return StatusClosed
	case now > r.CloseTimestamp:
		return StatusExpired
	case r.Locked:
		return StatusLocked
	default:
		return StatusLive
	}
}

// Resolved reports whether the close price was recorded.
func (r *Round) Resolved() bool {
	return r.OracleCalled
}

// AcceptingBets reports whether now lies strictly inside the live window.
func (r *Round) AcceptingBets(now int64) bool {
	return !r.Locked && r.StartTimestamp < now && now < r.LockTimestamp
}

// Winner returns the winning position of a resolved round. ok is false for
// an unresolved round or a tie.
func (r *Round) Winner() (pos event.Position, ok bool) {
	if !r.OracleCalled {
		return event.PositionUnknown, false
	}
	switch {
	case r.ClosePrice > r.LockPrice:
		return event.PositionBull, true
	case r.ClosePrice < r.LockPrice:
		return event.PositionBear, true
	default:
		return event.PositionUnknown, false
	}
}

// Tie reports whether a resolved round closed at its lock price.
func (r *Round) Tie() bool {
	return r.OracleCalled && r.ClosePrice == r.LockPrice
}

// Clone returns a deep copy.
func (r *Round) Clone() *Round {
	if r == nil {
		return nil
	}
	c := *r
	if r.LockOracleID != nil {
		c.LockOracleID = r.LockOracleID.Clone()
	}
	if r.CloseOracleID != nil {
		c.CloseOracleID = r.CloseOracleID.Clone()
	}
	return &c
}
