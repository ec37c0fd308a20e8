package state_test

import (
	"math"
	"testing"

	"github.com/gcdeng/eth-price-prediction-dapp/internal/errs"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/event"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/state"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const t0 = int64(1_700_000_000)

func newManager() *state.RoundManager {
	return state.NewRoundManager(state.RoundPolicy{MinLockSeconds: 300})
}

// mustStart prepares and installs a round.
func mustStart(t *testing.T, m *state.RoundManager, now, live, lock int64) *state.Round {
	t.Helper()
	r, err := m.PrepareStart(now, live, lock)
	require.NoError(t, err)
	m.Put(r)
	return r
}

func mustLock(t *testing.T, m *state.RoundManager, now int64, oracleID uint64, price int64) *state.Round {
	t.Helper()
	r, err := m.PrepareLock(now, uint256.NewInt(oracleID), price)
	require.NoError(t, err)
	m.Put(r)
	return r
}

func mustEnd(t *testing.T, m *state.RoundManager, now int64, oracleID uint64, price int64) *state.Round {
	t.Helper()
	r, err := m.PrepareEnd(now, uint256.NewInt(oracleID), price)
	require.NoError(t, err)
	m.Put(r)
	return r
}

func TestRoundManager_StartAllocatesSequentialEpochs(t *testing.T) {
	m := newManager()

	r := mustStart(t, m, t0, 10, 7200)
	assert.Equal(t, uint64(1), r.Epoch)
	assert.Equal(t, t0, r.StartTimestamp)
	assert.Equal(t, t0+10, r.LockTimestamp)
	assert.Equal(t, t0+10+7200, r.CloseTimestamp)
	assert.Zero(t, r.TotalAmount)

	mustLock(t, m, t0+10, 1, 100)
	mustEnd(t, m, t0+10+7200, 2, 110)

	r2 := mustStart(t, m, t0+8000, 10, 7200)
	assert.Equal(t, uint64(2), r2.Epoch)
	assert.Equal(t, uint64(2), m.CurrentEpoch())
}

func TestRoundManager_StartRejectedWhilePreviousUnresolved(t *testing.T) {
	m := newManager()
	mustStart(t, m, t0, 10, 300)

	_, err := m.PrepareStart(t0+1, 10, 300)
	assert.ErrorIs(t, err, errs.ErrRoundNotClosed)

	mustLock(t, m, t0+10, 1, 100)
	_, err = m.PrepareStart(t0+11, 10, 300)
	assert.ErrorIs(t, err, errs.ErrRoundNotClosed)
	assert.Equal(t, uint64(1), m.CurrentEpoch())
}

func TestRoundManager_LockIntervalBelowMinimum(t *testing.T) {
	m := newManager()

	_, err := m.PrepareStart(t0, 10, 299)
	require.Error(t, err)
	assert.Equal(t, errs.KindPolicy, errs.KindOf(err))
	assert.ErrorIs(t, err, errs.ErrLockIntervalTooShort)
	assert.Equal(t, uint64(0), m.CurrentEpoch(), "no epoch allocated on failure")

	r := mustStart(t, m, t0, 10, 300)
	assert.Equal(t, uint64(1), r.Epoch)
}

func TestRoundManager_StartRejectsInvalidIntervals(t *testing.T) {
	tests := []struct {
		name       string
		live, lock int64
		want       error
	}{
		{"negative live", -1, 300, errs.ErrInvalidInterval},
		{"negative lock", 10, -1, errs.ErrInvalidInterval},
		{"live overflows lock timestamp", math.MaxInt64, 300, errs.ErrInvalidInterval},
		{"lock overflows close timestamp", 10, math.MaxInt64 - t0, errs.ErrInvalidInterval},
		{"close at max timestamp", 10, math.MaxInt64 - t0 - 10, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newManager()
			r, err := m.PrepareStart(t0, tt.live, tt.lock)
			if tt.want == nil {
				require.NoError(t, err)
				assert.Equal(t, int64(math.MaxInt64), r.CloseTimestamp)
				return
			}
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, errs.KindPolicy, errs.KindOf(err))
		})
	}
}

func TestRoundManager_LockBeforeLockTimestamp(t *testing.T) {
	m := newManager()

	_, err := m.CheckLock(t0)
	assert.ErrorIs(t, err, errs.ErrNotStarted)

	mustStart(t, m, t0, 10, 300)
	_, err = m.PrepareLock(t0+9, uint256.NewInt(1), 100)
	assert.ErrorIs(t, err, errs.ErrTooEarly)
	assert.Equal(t, errs.KindState, errs.KindOf(err))
}

func TestRoundManager_FloatingClose(t *testing.T) {
	m := newManager()
	mustStart(t, m, t0, 10, 300)

	// lock 50s late: close moves with it
	r := mustLock(t, m, t0+60, 1, 100)
	assert.Equal(t, t0+60+300, r.CloseTimestamp)
	assert.True(t, r.Locked)
	assert.Equal(t, int64(100), r.LockPrice)
	assert.Equal(t, uint64(1), r.LockOracleID.Uint64())

	_, err := m.PrepareEnd(t0+310, uint256.NewInt(2), 100)
	assert.ErrorIs(t, err, errs.ErrTooEarly)

	r = mustEnd(t, m, t0+360, 2, 120)
	assert.True(t, r.OracleCalled)
	assert.Equal(t, int64(120), r.ClosePrice)
}

func TestRoundManager_LockTwice(t *testing.T) {
	m := newManager()
	mustStart(t, m, t0, 10, 300)
	mustLock(t, m, t0+10, 1, 100)

	_, err := m.PrepareLock(t0+11, uint256.NewInt(2), 101)
	assert.ErrorIs(t, err, errs.ErrAlreadyLocked)

	r, _ := m.Get(1)
	assert.Equal(t, int64(100), r.LockPrice, "lock price is never rewritten")
}

func TestRoundManager_EndRequiresLock(t *testing.T) {
	m := newManager()
	mustStart(t, m, t0, 10, 300)

	_, err := m.PrepareEnd(t0+1000, uint256.NewInt(1), 100)
	assert.ErrorIs(t, err, errs.ErrNotLocked)

	mustLock(t, m, t0+10, 1, 100)
	mustEnd(t, m, t0+310, 2, 100)

	_, err = m.PrepareEnd(t0+320, uint256.NewInt(3), 100)
	assert.ErrorIs(t, err, errs.ErrAlreadyClosed)
}

func TestRoundManager_PrepareDoesNotMutate(t *testing.T) {
	m := newManager()
	mustStart(t, m, t0, 10, 300)

	_, err := m.PrepareLock(t0+10, uint256.NewInt(1), 100)
	require.NoError(t, err)

	r, _ := m.Get(1)
	assert.False(t, r.Locked)
	assert.Nil(t, r.LockOracleID)
}

func TestRound_StatusAndWinner(t *testing.T) {
	r := &state.Round{Epoch: 1, StartTimestamp: t0, LockTimestamp: t0 + 10, CloseTimestamp: t0 + 310}

	assert.Equal(t, state.StatusLive, r.Status(t0+1))
	assert.True(t, r.AcceptingBets(t0+1))
	assert.False(t, r.AcceptingBets(t0), "start is exclusive")
	assert.False(t, r.AcceptingBets(t0+10), "lock is exclusive")
	assert.Equal(t, state.StatusExpired, r.Status(t0+311))

	r.Locked = true
	r.LockPrice = 100
	assert.Equal(t, state.StatusLocked, r.Status(t0+20))

	r.OracleCalled = true
	r.ClosePrice = 90
	assert.Equal(t, state.StatusClosed, r.Status(t0+400))
	pos, ok := r.Winner()
	assert.True(t, ok)
	assert.Equal(t, event.PositionBear, pos)

	r.ClosePrice = 100
	_, ok = r.Winner()
	assert.False(t, ok)
	assert.True(t, r.Tie())
}

func TestTreasury(t *testing.T) {
	tr := state.NewTreasury()

	_, err := tr.PrepareDrain()
	assert.ErrorIs(t, err, errs.ErrEmptyTreasury)

	next, err := tr.PrepareCredit(4)
	require.NoError(t, err)
	assert.Zero(t, tr.Balance(), "prepare does not mutate")
	tr.Set(next)

	amount, err := tr.PrepareDrain()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), amount)
}

func TestValidateRoundTotals(t *testing.T) {
	r := &state.Round{Epoch: 1, TotalAmount: 3, BullAmount: 1, BearAmount: 2}
	assert.NoError(t, state.ValidateRoundTotals(r))

	r.TotalAmount = 4
	assert.Error(t, state.ValidateRoundTotals(r))

	r.TotalAmount = 3
	r.RewardAmount = 3
	assert.Error(t, state.ValidateRoundTotals(r), "rewards before resolution")
}
