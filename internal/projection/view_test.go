package projection_test

import (
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/core"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/event"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/ledger"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/projection"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/state"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func resolvedRound(epoch uint64, lockPrice, closePrice int64, bull, bear uint64) *state.Round {
	r := &state.Round{
		Epoch:          epoch,
		StartTimestamp: 100,
		LockTimestamp:  110,
		CloseTimestamp: 410,
		LockPrice:      lockPrice,
		ClosePrice:     closePrice,
		BullAmount:     bull,
		BearAmount:     bear,
		TotalAmount:    bull + bear,
		Locked:         true,
		OracleCalled:   true,
	}
	if closePrice > lockPrice {
		r.RewardBaseCalAmount, r.RewardAmount = bull, bull+bear
	} else if closePrice < lockPrice {
		r.RewardBaseCalAmount, r.RewardAmount = bear, bull+bear
	}
	return r
}

func envelope(seq int64, evt event.Event) *event.EventEnvelope {
	return &event.EventEnvelope{Sequence: seq, EventType: evt.EventType(), Timestamp: 500, Payload: evt}
}

func TestView_ApplyFoldsChangeset(t *testing.T) {
	v := projection.NewView()
	treasury := uint64(7)

	v.Apply(&core.Changeset{
		Rounds: []*state.Round{resolvedRound(1, 100, 120, 10, 20)},
		Bets: []ledger.BetInfo{
			{Epoch: 1, Participant: alice, Position: event.PositionBull, Amount: 10},
			{Epoch: 1, Participant: bob, Position: event.PositionBear, Amount: 20},
		},
		Treasury: &treasury,
		Balances: map[ledger.AccountKey]int64{ledger.Escrow(): 30},
		Events:   []*event.EventEnvelope{envelope(4, &event.Settled{Epoch: 1})},
	})

	assert.Equal(t, uint64(1), v.CurrentEpoch())
	assert.Equal(t, int64(4), v.AsOfSequence())
	assert.Equal(t, uint64(7), v.Treasury())
	assert.Equal(t, int64(30), v.Balance(ledger.Escrow()))

	assert.True(t, v.Claimable(1, alice))
	assert.False(t, v.Claimable(1, bob))
	assert.False(t, v.Claimable(2, alice))
	assert.False(t, v.Refundable(1, alice, 10_000))

	r, ok := v.Round(1)
	require.True(t, ok)
	r.TotalAmount = 0
	again, _ := v.Round(1)
	assert.Equal(t, uint64(30), again.TotalAmount, "Round must return a copy")
}

func TestView_Refundable(t *testing.T) {
	v := projection.NewView()
	r := &state.Round{Epoch: 3, StartTimestamp: 100, LockTimestamp: 110, CloseTimestamp: 410, BullAmount: 5, TotalAmount: 5}
	v.Apply(&core.Changeset{
		Rounds: []*state.Round{r},
		Bets:   []ledger.BetInfo{{Epoch: 3, Participant: alice, Position: event.PositionBull, Amount: 5}},
	})

	assert.False(t, v.Refundable(3, alice, 410))
	assert.True(t, v.Refundable(3, alice, 411))
	assert.False(t, v.Refundable(3, bob, 411))
}

func TestView_RoundsAndUserRoundsPaging(t *testing.T) {
	v := projection.NewView()
	for e := uint64(1); e <= 5; e++ {
		v.Apply(&core.Changeset{
			Rounds: []*state.Round{resolvedRound(e, 100, 90, 1, 1)},
			Bets:   []ledger.BetInfo{{Epoch: e, Participant: alice, Position: event.PositionBear, Amount: 1}},
		})
	}

	page := v.Rounds(2, 2)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(3), page[0].Epoch)
	assert.Equal(t, uint64(4), page[1].Epoch)
	assert.Len(t, v.Rounds(0, 0), 5)

	bets, next, total := v.UserRounds(alice, 3, 10)
	assert.Len(t, bets, 2)
	assert.Equal(t, 5, next)
	assert.Equal(t, 5, total)
}

func TestView_Reset(t *testing.T) {
	v := projection.NewView()
	v.Apply(&core.Changeset{Rounds: []*state.Round{resolvedRound(9, 1, 2, 1, 0)}})

	v.Reset(&core.State{
		Sequence:  12,
		Rounds:    []*state.Round{resolvedRound(2, 100, 100, 3, 3)},
		Treasury:  6,
		Watermark: uint256.NewInt(77),
		Balances:  map[ledger.AccountKey]int64{ledger.TreasuryAccount(): 6},
	})

	assert.Equal(t, uint64(2), v.CurrentEpoch())
	_, ok := v.Round(9)
	assert.False(t, ok)
	assert.Equal(t, int64(12), v.AsOfSequence())
	assert.Equal(t, uint64(77), v.Watermark().Uint64())
	assert.Equal(t, int64(6), v.Balances()[ledger.TreasuryAccount()])
}

func TestView_PayoutHistoryMarksReverts(t *testing.T) {
	v := projection.NewView()
	v.Apply(&core.Changeset{Events: []*event.EventEnvelope{
		envelope(1, &event.Claimed{Participant: alice, Epoch: 1, Amount: 15}),
		envelope(2, &event.Claimed{Participant: alice, Epoch: 2, Amount: 4, Refund: true}),
	}})
	v.Apply(&core.Changeset{Events: []*event.EventEnvelope{
		envelope(3, &event.ClaimReverted{Participant: alice, Epochs: []uint64{2}, Amount: 4}),
	}})

	got := v.Payouts(alice, 10)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].Epoch)
	assert.True(t, got[0].Refund)
	assert.True(t, got[0].Reverted)
	assert.False(t, got[1].Reverted)
	assert.Empty(t, v.Payouts(bob, 10))
	assert.Len(t, v.Payouts(alice, 1), 1)
}

func TestView_ConcurrentReaders(t *testing.T) {
	v := projection.NewView()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = v.Claimable(1, alice)
				_ = v.Rounds(0, 0)
			}
		}()
	}
	for e := uint64(1); e <= 50; e++ {
		addr := common.BigToAddress(big.NewInt(int64(e)))
		v.Apply(&core.Changeset{
			Rounds: []*state.Round{resolvedRound(e, 1, 2, 1, 0)},
			Bets:   []ledger.BetInfo{{Epoch: e, Participant: addr, Position: event.PositionBull, Amount: 1}},
		})
	}
	wg.Wait()
	assert.Equal(t, uint64(50), v.CurrentEpoch())
}
