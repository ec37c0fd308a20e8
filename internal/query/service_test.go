package query_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/core"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/event"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/ledger"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/persistence"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/projection"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/query"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/state"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/testutil"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type fakeArchive struct {
	rows     []persistence.JournalRow
	verified int64
	err      error
}

func (a *fakeArchive) JournalForEpoch(ctx context.Context, epoch uint64) ([]persistence.JournalRow, error) {
	return a.rows, nil
}

func (a *fakeArchive) VerifyEventLog(ctx context.Context, batchSize int) ([32]byte, int64, error) {
	return [32]byte{1}, a.verified, a.err
}

// newService seeds a view with a resolved bull round (epoch 1) and an
// expired unresolved round (epoch 2).
func newService(t *testing.T, archive query.Archive) (*query.QueryService, *testutil.FakeClock) {
	t.Helper()
	view := projection.NewView()
	treasury := uint64(250_000_000_000_000_000)
	view.Apply(&core.Changeset{
		Rounds: []*state.Round{
			{
				Epoch: 1, StartTimestamp: 100, LockTimestamp: 110, CloseTimestamp: 410,
				LockPrice: 200_000_000_000, ClosePrice: 201_050_000_000,
				LockOracleID: uint256.NewInt(5), CloseOracleID: uint256.NewInt(6),
				TotalAmount: 3e18, BullAmount: 1e18, BearAmount: 2e18,
				RewardBaseCalAmount: 1e18, RewardAmount: 3e18,
				Locked: true, OracleCalled: true,
			},
			{Epoch: 2, StartTimestamp: 500, LockTimestamp: 510, CloseTimestamp: 810, TotalAmount: 4, BearAmount: 4},
		},
		Bets: []ledger.BetInfo{
			{Epoch: 1, Participant: alice, Position: event.PositionBull, Amount: 1e18},
			{Epoch: 1, Participant: bob, Position: event.PositionBear, Amount: 2e18},
			{Epoch: 2, Participant: alice, Position: event.PositionBear, Amount: 4},
		},
		Treasury: &treasury,
		Balances: map[ledger.AccountKey]int64{
			ledger.UserWallet(alice): -4,
			ledger.Escrow():          4,
		},
		Events: []*event.EventEnvelope{{Sequence: 9, Payload: &event.Settled{Epoch: 1}, EventType: event.EventTypeSettled}},
	})
	clock := testutil.NewFakeClock(900)
	return query.NewQueryService(view, archive, clock, query.Options{PriceDecimals: 8, AmountDecimals: 18}), clock
}

func TestQueryService_GetRoundFormatsDecimals(t *testing.T) {
	qs, _ := newService(t, nil)
	ctx := context.Background()

	r, err := qs.GetRound(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "2000", r.LockPriceDisplay)
	assert.Equal(t, "2010.5", r.ClosePriceDisplay)
	assert.Equal(t, "3", r.TotalAmountDisplay)
	assert.Equal(t, "bull", r.Winner)
	assert.Equal(t, "6", r.CloseOracleID)
	assert.Equal(t, "closed", r.Status)
	assert.Equal(t, int64(9), r.AsOfSequence)

	_, err = qs.GetRound(ctx, 42)
	assert.True(t, errors.Is(err, query.ErrNotFound))
}

func TestQueryService_ClaimableAndRefundable(t *testing.T) {
	qs, clock := newService(t, nil)
	ctx := context.Background()

	c, err := qs.Claimable(ctx, 1, alice)
	require.NoError(t, err)
	assert.True(t, c.Value)
	c, _ = qs.Claimable(ctx, 1, bob)
	assert.False(t, c.Value)

	r, _ := qs.Refundable(ctx, 2, alice)
	assert.True(t, r.Value)

	clock.Set(810)
	r, _ = qs.Refundable(ctx, 2, alice)
	assert.False(t, r.Value, "refund opens strictly after the close timestamp")
}

func TestQueryService_UserRoundsAndBalance(t *testing.T) {
	qs, _ := newService(t, nil)
	ctx := context.Background()

	page, err := qs.UserRounds(ctx, alice, 0, 1)
	require.NoError(t, err)
	require.Len(t, page.Bets, 1)
	assert.Equal(t, uint64(1), page.Bets[0].Epoch)
	assert.True(t, page.Bets[0].Claimable)
	assert.Equal(t, 1, page.Cursor)
	assert.Equal(t, 2, page.Total)

	bal, err := qs.GetBalance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(-4), bal.WalletBalance)
	assert.Equal(t, uint64(4), bal.OpenStake)
	assert.Equal(t, 1, bal.ClaimableRounds)
	assert.Equal(t, 1, bal.RefundableRounds)

	_, err = qs.GetBet(ctx, 2, bob)
	assert.ErrorIs(t, err, query.ErrNotFound)
}

func TestQueryService_TreasuryAndLedger(t *testing.T) {
	qs, _ := newService(t, nil)
	ctx := context.Background()

	tr, err := qs.Treasury(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.25", tr.BalanceDisplay)

	accounts, err := qs.LedgerBalances(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "system:escrow", accounts[0].Account)

	status, err := qs.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), status.CurrentEpoch)
	assert.Equal(t, "expired", status.CurrentStatus)
	assert.Equal(t, "0", status.OracleRoundID)
}

func TestQueryService_VerifyIntegrity(t *testing.T) {
	ctx := context.Background()

	qs, _ := newService(t, &fakeArchive{verified: 9})
	report, err := qs.VerifyIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.IsHealthy)
	assert.Equal(t, int64(9), report.EventsVerified)

	qs, _ = newService(t, &fakeArchive{err: errors.New("sequence 3: state hash mismatch")})
	report, err = qs.VerifyIntegrity(ctx)
	require.NoError(t, err)
	assert.False(t, report.IsHealthy)
	assert.Contains(t, report.ChainError, "sequence 3")
}

func TestQueryService_JournalHistoryRequiresArchive(t *testing.T) {
	ctx := context.Background()

	qs, _ := newService(t, nil)
	_, err := qs.GetJournalHistory(ctx, 1)
	assert.Error(t, err)

	qs, _ = newService(t, &fakeArchive{rows: []persistence.JournalRow{{JournalID: "j1", Amount: 5, JournalType: int32(ledger.JournalTypeWager), Epoch: 1}}})
	entries, err := qs.GetJournalHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.JournalTypeWager.String(), entries[0].JournalType)
}
