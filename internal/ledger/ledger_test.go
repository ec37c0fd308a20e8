package ledger_test

import (
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/errs"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/event"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/ledger"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	admin = common.HexToAddress("0x000000000000000000000000000000000000ad01")
)

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_Paths(t *testing.T) {
	assert.Equal(t, "user:0x00000000000000000000000000000000000a11ce:wallet", ledger.UserWallet(alice).AccountPath())
	assert.Equal(t, "system:escrow", ledger.Escrow().AccountPath())
	assert.Equal(t, "system:treasury", ledger.TreasuryAccount().AccountPath())
}

func TestParseAccountPath_RoundTrip(t *testing.T) {
	for _, k := range []ledger.AccountKey{ledger.UserWallet(alice), ledger.Escrow(), ledger.TreasuryAccount()} {
		got, err := ledger.ParseAccountPath(k.AccountPath())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ledger.ParseAccountPath("system:insurance_fund")
	assert.Error(t, err)
	_, err = ledger.ParseAccountPath("user:nothex:wallet")
	assert.Error(t, err)
}

// ============================================================================
// Test: JournalGenerator + BalanceTracker
// ============================================================================

func mustApply(t *testing.T, bt *ledger.BalanceTracker, b *ledger.Batch) {
	t.Helper()
	require.NotNil(t, b)
	require.NoError(t, bt.ApplyBatch(b))
}

func TestGenerator_WagerAndPayoutZeroSum(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)

	jg := ledger.NewJournalGenerator("bet-1", 1, 100)
	require.NoError(t, jg.Wager(alice, 1, 3))
	mustApply(t, bt, jg.Batch())

	jg = ledger.NewJournalGenerator("bet-2", 2, 101)
	require.NoError(t, jg.Wager(bob, 1, 1))
	mustApply(t, bt, jg.Batch())

	assert.Equal(t, int64(4), bt.EscrowBalance())
	assert.Equal(t, int64(-3), bt.WalletBalance(alice))
	require.NoError(t, v.ValidateAll(0))

	jg = ledger.NewJournalGenerator("claim-1", 3, 200)
	require.NoError(t, jg.Payout(alice, 1, 4))
	mustApply(t, bt, jg.Batch())

	assert.Equal(t, int64(0), bt.EscrowBalance())
	assert.Equal(t, int64(1), bt.WalletBalance(alice))
	assert.Equal(t, int64(-1), bt.WalletBalance(bob))
	assert.NoError(t, v.ValidateAll(0))
}

func TestGenerator_TieSweepAndDrain(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)

	jg := ledger.NewJournalGenerator("bet-1", 1, 100)
	require.NoError(t, jg.Wager(alice, 1, 5))
	mustApply(t, bt, jg.Batch())

	jg = ledger.NewJournalGenerator("end-1", 2, 400)
	require.NoError(t, jg.TieSweep(1, 5))
	mustApply(t, bt, jg.Batch())
	require.NoError(t, v.ValidateAll(5))

	jg = ledger.NewJournalGenerator("drain-1", 3, 500)
	require.NoError(t, jg.TreasuryDrain(admin, 5))
	mustApply(t, bt, jg.Batch())

	assert.Equal(t, int64(5), bt.WalletBalance(admin))
	assert.NoError(t, v.ValidateAll(0))
	assert.Error(t, v.ValidateAll(5), "treasury account must match accumulator")
}

func TestGenerator_ZeroAmountLegSkipped(t *testing.T) {
	jg := ledger.NewJournalGenerator("end-1", 1, 100)
	require.NoError(t, jg.TieSweep(1, 0))
	assert.Nil(t, jg.Batch())
}

func TestGenerator_AmountAboveLedgerRange(t *testing.T) {
	jg := ledger.NewJournalGenerator("bet-1", 1, 100)
	err := jg.Wager(alice, 1, math.MaxInt64+1)
	assert.ErrorIs(t, err, errs.ErrAmountOverflow)
}

func TestReverse_RestoresBalances(t *testing.T) {
	bt := ledger.NewBalanceTracker()

	jg := ledger.NewJournalGenerator("bet-1", 1, 100)
	require.NoError(t, jg.Wager(alice, 1, 7))
	mustApply(t, bt, jg.Batch())
	before := bt.Snapshot()

	jg = ledger.NewJournalGenerator("claim-1", 2, 200)
	require.NoError(t, jg.Refund(alice, 1, 7))
	payout := jg.Batch()
	mustApply(t, bt, payout)

	rev := ledger.Reverse(payout, "claim-1:revert", 3, 201)
	require.Len(t, rev.Journals, 1)
	assert.Equal(t, ledger.JournalTypeReversal, rev.Journals[0].JournalType)
	mustApply(t, bt, rev)

	for k, v := range before {
		assert.Equal(t, v, bt.GetBalance(k), k.AccountPath())
	}
}

func TestPreview_DoesNotMutate(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator("bet-1", 1, 100)
	require.NoError(t, jg.Wager(alice, 1, 2))

	preview := bt.Preview(jg.Batch())
	assert.Equal(t, int64(2), preview[ledger.Escrow()])
	assert.Equal(t, int64(0), bt.EscrowBalance())
}

func TestBatch_Validate(t *testing.T) {
	jg := ledger.NewJournalGenerator("x", 1, 1)
	require.NoError(t, jg.Payout(alice, 1, 1))
	b := jg.Batch()
	require.NoError(t, b.Validate())

	b.Journals[0].CreditAccount = b.Journals[0].DebitAccount
	assert.Error(t, b.Validate())

	assert.Error(t, (&ledger.Batch{}).Validate())
}

// ============================================================================
// Test: BetBook and predicates
// ============================================================================

func resolvedRound(lock, close int64) *state.Round {
	return &state.Round{
		Epoch: 1, StartTimestamp: 0, LockTimestamp: 10, CloseTimestamp: 310,
		Locked: true, OracleCalled: true, LockPrice: lock, ClosePrice: close,
		TotalAmount: 4, BullAmount: 3, BearAmount: 1,
		RewardBaseCalAmount: 3, RewardAmount: 4,
	}
}

func TestClaimable(t *testing.T) {
	bull := ledger.BetInfo{Epoch: 1, Participant: alice, Position: event.PositionBull, Amount: 3}
	bear := ledger.BetInfo{Epoch: 1, Participant: bob, Position: event.PositionBear, Amount: 1}

	up := resolvedRound(100, 110)
	assert.True(t, ledger.Claimable(up, bull))
	assert.False(t, ledger.Claimable(up, bear))

	claimed := bull
	claimed.Claimed = true
	assert.False(t, ledger.Claimable(up, claimed))

	tie := resolvedRound(100, 100)
	assert.False(t, ledger.Claimable(tie, bull))
	assert.False(t, ledger.Claimable(tie, bear))

	unresolved := resolvedRound(100, 0)
	unresolved.OracleCalled = false
	assert.False(t, ledger.Claimable(unresolved, bull))

	assert.False(t, ledger.Claimable(up, ledger.BetInfo{Epoch: 1, Participant: bob}), "no wager")
}

func TestRefundable(t *testing.T) {
	r := &state.Round{Epoch: 1, StartTimestamp: 0, LockTimestamp: 10, CloseTimestamp: 310}
	bet := ledger.BetInfo{Epoch: 1, Participant: alice, Position: event.PositionBull, Amount: 2}

	assert.False(t, ledger.Refundable(r, bet, 310), "close is exclusive")
	assert.True(t, ledger.Refundable(r, bet, 311))

	r.OracleCalled = true
	assert.False(t, ledger.Refundable(r, bet, 311))
}

func TestBetBook_UserRoundsPaging(t *testing.T) {
	b := ledger.NewBetBook()
	for _, e := range []uint64{3, 1, 2} {
		b.Put(ledger.BetInfo{Epoch: e, Participant: alice, Position: event.PositionBull, Amount: e})
	}
	b.Put(ledger.BetInfo{Epoch: 1, Participant: bob, Position: event.PositionBear, Amount: 9})

	assert.Equal(t, 3, b.UserRoundsLength(alice))

	page, next := b.UserRounds(alice, 0, 2)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(1), page[0].Epoch)
	assert.Equal(t, uint64(2), page[1].Epoch)
	assert.Equal(t, 2, next)

	page, next = b.UserRounds(alice, next, 2)
	require.Len(t, page, 1)
	assert.Equal(t, uint64(3), page[0].Epoch)
	assert.Equal(t, 3, next)

	page, _ = b.UserRounds(alice, next, 2)
	assert.Empty(t, page)

	// updating the claimed flag does not duplicate the epoch
	bet, ok := b.Get(1, alice)
	require.True(t, ok)
	bet.Claimed = true
	b.Put(bet)
	assert.Equal(t, 3, b.UserRoundsLength(alice))
	assert.Len(t, b.All(), 4)
}

func TestBetBook_Outstanding(t *testing.T) {
	b := ledger.NewBetBook()
	b.Put(ledger.BetInfo{Epoch: 1, Participant: alice, Position: event.PositionBull, Amount: 3})
	b.Put(ledger.BetInfo{Epoch: 1, Participant: bob, Position: event.PositionBear, Amount: 1})
	b.Put(ledger.BetInfo{Epoch: 2, Participant: alice, Position: event.PositionBear, Amount: 5})

	rounds := map[uint64]*state.Round{
		1: resolvedRound(100, 110),
		2: {Epoch: 2, StartTimestamp: 400, LockTimestamp: 410, CloseTimestamp: 710, TotalAmount: 5, BearAmount: 5},
	}
	lookup := func(e uint64) (*state.Round, bool) { r, ok := rounds[e]; return r, ok }

	// alice's share of epoch 1 (3*4/3) + her unresolved stake in epoch 2
	assert.Equal(t, uint64(4+5), b.Outstanding(lookup))
}
