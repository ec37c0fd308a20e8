package settlement_test

import (
	"testing"

	"github.com/gcdeng/eth-price-prediction-dapp/internal/errs"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/settlement"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closedRound(lock, close int64, bull, bear uint64) *state.Round {
	return &state.Round{
		Epoch:        7,
		LockPrice:    lock,
		ClosePrice:   close,
		BullAmount:   bull,
		BearAmount:   bear,
		TotalAmount:  bull + bear,
		Locked:       true,
		OracleCalled: true,
	}
}

func TestSettle(t *testing.T) {
	tests := []struct {
		name  string
		round *state.Round
		want  settlement.Result
	}{
		{
			name:  "bull wins",
			round: closedRound(100, 110, 3, 1),
			want:  settlement.Result{Outcome: settlement.OutcomeBull, RewardBaseCalAmount: 3, RewardAmount: 4},
		},
		{
			name:  "bear wins",
			round: closedRound(100, 90, 3, 1),
			want:  settlement.Result{Outcome: settlement.OutcomeBear, RewardBaseCalAmount: 1, RewardAmount: 4},
		},
		{
			name:  "tie routes pot to treasury",
			round: closedRound(100, 100, 3, 1),
			want:  settlement.Result{Outcome: settlement.OutcomeTie, TreasuryDelta: 4},
		},
		{
			name:  "tie with no wagers",
			round: closedRound(100, 100, 0, 0),
			want:  settlement.Result{Outcome: settlement.OutcomeTie},
		},
		{
			name:  "winning side empty",
			round: closedRound(100, 110, 0, 5),
			want:  settlement.Result{Outcome: settlement.OutcomeBull, RewardBaseCalAmount: 0, RewardAmount: 5},
		},
	}

	e := settlement.NewEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Settle(tt.round)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSettle_OnlyOnce(t *testing.T) {
	e := settlement.NewEngine()
	r := closedRound(100, 110, 3, 1)

	res, err := e.Settle(r)
	require.NoError(t, err)
	e.Apply(r, res)
	assert.Equal(t, uint64(3), r.RewardBaseCalAmount)
	assert.Equal(t, uint64(4), r.RewardAmount)

	_, err = e.Settle(r)
	assert.ErrorIs(t, err, errs.ErrAlreadySettled)
	assert.Equal(t, errs.KindEconomic, errs.KindOf(err))
}

func TestSettle_Unresolved(t *testing.T) {
	r := closedRound(100, 0, 1, 1)
	r.OracleCalled = false

	_, err := settlement.NewEngine().Settle(r)
	assert.ErrorIs(t, err, errs.ErrRoundNotClosed)
}

func TestResult_Event(t *testing.T) {
	res := settlement.Result{Outcome: settlement.OutcomeTie, TreasuryDelta: 9}
	evt := res.Event(3)
	assert.Equal(t, uint64(3), evt.Epoch)
	assert.Equal(t, uint64(9), evt.TreasuryDelta)
	assert.Zero(t, evt.RewardAmount)
}

func TestResidual(t *testing.T) {
	// three equal winners splitting 10
	res := settlement.Result{Outcome: settlement.OutcomeBull, RewardBaseCalAmount: 3, RewardAmount: 10}
	assert.Equal(t, uint64(1), settlement.Residual(res, []uint64{1, 1, 1}))

	exact := settlement.Result{Outcome: settlement.OutcomeBull, RewardBaseCalAmount: 3, RewardAmount: 4}
	assert.Equal(t, uint64(0), settlement.Residual(exact, []uint64{3}))

	empty := settlement.Result{Outcome: settlement.OutcomeBear, RewardAmount: 5}
	assert.Equal(t, uint64(5), settlement.Residual(empty, nil))

	assert.Zero(t, settlement.Residual(settlement.Result{Outcome: settlement.OutcomeTie, TreasuryDelta: 4}, nil))
}
