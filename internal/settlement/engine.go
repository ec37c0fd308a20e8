package settlement

import (
	"github.com/gcdeng/eth-price-prediction-dapp/internal/errs"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/event"
	fpmath "github.com/gcdeng/eth-price-prediction-dapp/internal/math"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/state"
)

// Outcome is the direction a resolved round settled in.
type Outcome uint8

const (
	OutcomeTie Outcome = iota
	OutcomeBull
	OutcomeBear
)

func (o Outcome) String() string {
	switch o {
	case OutcomeBull:
		return "bull"
	case OutcomeBear:
		return "bear"
	default:
		return "tie"
	}
}

// Result is what settlement writes into a round and the treasury.
type Result struct {
	Outcome             Outcome
	RewardBaseCalAmount uint64
	RewardAmount        uint64
	// TreasuryDelta is the pot routed to the treasury, non-zero only on a tie.
	TreasuryDelta uint64
}

// Engine computes reward pools for closed rounds. It holds no state: the
// write-once guarantee comes from the round's reward fields.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Settle computes the settlement of a round whose close price was just
// recorded. The round is not modified; Apply writes the result.
func (e *Engine) Settle(r *state.Round) (Result, error) {
	if !r.Resolved() {
		return Result{}, errs.ErrRoundNotClosed.With("epoch %d has no close price", r.Epoch)
	}
	if r.RewardAmount != 0 || r.RewardBaseCalAmount != 0 {
		return Result{}, errs.ErrAlreadySettled.With("epoch %d", r.Epoch)
	}

	switch {
	case r.ClosePrice > r.LockPrice:
		return Result{Outcome: OutcomeBull, RewardBaseCalAmount: r.BullAmount, RewardAmount: r.TotalAmount}, nil
	case r.ClosePrice < r.LockPrice:
		return Result{Outcome: OutcomeBear, RewardBaseCalAmount: r.BearAmount, RewardAmount: r.TotalAmount}, nil
	default:
		return Result{Outcome: OutcomeTie, TreasuryDelta: r.TotalAmount}, nil
	}
}

// Apply writes the result into r.
func (e *Engine) Apply(r *state.Round, res Result) {
	r.RewardBaseCalAmount = res.RewardBaseCalAmount
	r.RewardAmount = res.RewardAmount
}

// Event returns the settlement event for epoch.
func (res Result) Event(epoch uint64) *event.Settled {
	return &event.Settled{
		Epoch:               epoch,
		RewardBaseCalAmount: res.RewardBaseCalAmount,
		RewardAmount:        res.RewardAmount,
		TreasuryDelta:       res.TreasuryDelta,
	}
}

// Residual returns the units of the reward pool that floor division leaves
// unclaimed when every winner claims. Winning sides with no stake leave the
// whole pool behind.
func Residual(res Result, winnerStakes []uint64) uint64 {
	if res.Outcome == OutcomeTie {
		return 0
	}
	if res.RewardBaseCalAmount == 0 {
		return res.RewardAmount
	}
	var paid uint64
	for _, amount := range winnerStakes {
		share, err := fpmath.Payout(amount, res.RewardAmount, res.RewardBaseCalAmount)
		if err != nil {
			continue
		}
		paid += share
	}
	if paid > res.RewardAmount {
		return 0
	}
	return res.RewardAmount - paid
}
