package keeper_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/core"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/errs"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/event"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/keeper"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/oracle"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/payout"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/projection"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/state"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const t0 = int64(1_700_000_000)

var admin = common.HexToAddress("0xad00000000000000000000000000000000000001")

// engineSubmitter adapts *core.Engine to keeper.Submitter.
type engineSubmitter struct{ e *core.Engine }

func (s engineSubmitter) Submit(ctx context.Context, cmd event.Command) (core.Result, error) {
	return s.e.Execute(ctx, cmd)
}

type harness struct {
	keeper *keeper.Keeper
	engine *core.Engine
	view   *projection.View
	feed   *oracle.MockFeed
	clock  *testutil.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		view:  projection.NewView(),
		feed:  oracle.NewMockFeed(),
		clock: testutil.NewFakeClock(t0),
	}
	h.engine = core.NewEngine(
		core.Config{Admin: admin, Policy: state.RoundPolicy{MinLockSeconds: 300}},
		core.Deps{
			Oracle:    oracle.NewGateway(h.feed, 0, nil),
			Transfer:  payout.NewMemoryTransferer(),
			Clock:     h.clock,
			Projector: h.view,
			Logger:    zerolog.Nop(),
		},
	)
	h.keeper = keeper.New(
		keeper.Config{LiveSeconds: 300, LockSeconds: 300},
		admin, engineSubmitter{h.engine}, h.view, h.clock, zerolog.Nop(),
	)
	return h
}

func mustTick(t *testing.T, h *harness, want keeper.Action) {
	t.Helper()
	got, err := h.keeper.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestKeeper_DrivesFullCycle(t *testing.T) {
	h := newHarness(t)

	mustTick(t, h, keeper.ActionStart)
	assert.Equal(t, uint64(1), h.view.CurrentEpoch())

	// Nothing to do while the round is live.
	mustTick(t, h, keeper.ActionNone)

	h.clock.Advance(300)
	h.feed.Advance(2000_00000000)
	mustTick(t, h, keeper.ActionLock)
	r, ok := h.view.Round(1)
	require.True(t, ok)
	assert.True(t, r.Locked)

	mustTick(t, h, keeper.ActionNone)

	h.clock.Advance(300)
	h.feed.Advance(2010_00000000)
	mustTick(t, h, keeper.ActionEnd)
	r, _ = h.view.Round(1)
	assert.True(t, r.Resolved())

	mustTick(t, h, keeper.ActionStart)
	assert.Equal(t, uint64(2), h.view.CurrentEpoch())
}

func TestKeeper_StaleOracleRetriesNextTick(t *testing.T) {
	h := newHarness(t)
	mustTick(t, h, keeper.ActionStart)

	h.clock.Advance(300)
	h.feed.Advance(2000_00000000)
	mustTick(t, h, keeper.ActionLock)

	// The feed has not moved since the lock: ending is refused as stale.
	h.clock.Advance(300)
	action, err := h.keeper.Tick(context.Background())
	assert.Equal(t, keeper.ActionEnd, action)
	require.Error(t, err)
	assert.Equal(t, errs.KindOracle, errs.KindOf(err))

	h.feed.Advance(1990_00000000)
	mustTick(t, h, keeper.ActionEnd)
}

func TestKeeper_StartAndStop(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.keeper.Start(context.Background()))
	h.keeper.Stop()

	bad := keeper.New(keeper.Config{Schedule: "not a schedule"}, admin, engineSubmitter{h.engine}, h.view, h.clock, zerolog.Nop())
	assert.Error(t, bad.Start(context.Background()))
}
