package oracle_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/gcdeng/eth-price-prediction-dapp/internal/errs"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/oracle"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateway_FetchPriceAdvancesWatermark(t *testing.T) {
	feed := oracle.NewMockFeed()
	gw := oracle.NewGateway(feed, 0, nil)

	feed.Set(10, 3500_00000000, 1700000000)
	r, err := gw.FetchPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), r.RoundID.Uint64())
	assert.Equal(t, int64(3500_00000000), r.Price)
	assert.Equal(t, int64(1700000000), r.UpdatedAt)
	assert.Equal(t, uint64(10), gw.Watermark().Uint64())
}

func TestGateway_RejectsIncomplete(t *testing.T) {
	feed := oracle.NewMockFeed()
	gw := oracle.NewGateway(feed, 0, nil)

	feed.Set(5, 100, 0)
	_, err := gw.FetchPrice(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrOracleIncomplete))
	assert.Equal(t, errs.KindOracle, errs.KindOf(err))
	assert.True(t, gw.Watermark().IsZero(), "watermark must not move on a rejected read")
}

func TestGateway_RejectsNonIncreasingRoundID(t *testing.T) {
	feed := oracle.NewMockFeed()
	gw := oracle.NewGateway(feed, 0, nil)

	feed.Set(7, 100, 1)
	_, err := gw.FetchPrice(context.Background())
	require.NoError(t, err)

	// same id again
	_, err = gw.FetchPrice(context.Background())
	assert.True(t, errors.Is(err, errs.ErrOracleStale))

	// an older id
	feed.Set(6, 100, 1)
	_, err = gw.FetchPrice(context.Background())
	assert.True(t, errors.Is(err, errs.ErrOracleStale))

	feed.Set(8, 101, 2)
	r, err := gw.FetchPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(8), r.RoundID.Uint64())
}

func TestGateway_PeekDoesNotAdvance(t *testing.T) {
	feed := oracle.NewMockFeed()
	gw := oracle.NewGateway(feed, 0, nil)
	feed.Set(3, 100, 1)

	r1, err := gw.Peek(context.Background())
	require.NoError(t, err)
	r2, err := gw.Peek(context.Background())
	require.NoError(t, err)
	assert.True(t, r1.RoundID.Eq(r2.RoundID))
	assert.True(t, gw.Watermark().IsZero())

	require.NoError(t, gw.Accept(r1))
	assert.ErrorIs(t, gw.Accept(r2), errs.ErrOracleStale)
}

func TestGateway_AnswerOutOfRange(t *testing.T) {
	feed := oracle.NewMockFeed()
	gw := oracle.NewGateway(feed, 0, nil)

	huge := new(big.Int).Lsh(big.NewInt(1), 100)
	feed.SetRoundData(oracle.RoundData{
		RoundID:   uint256.NewInt(1),
		Answer:    huge,
		UpdatedAt: 1,
	})
	_, err := gw.FetchPrice(context.Background())
	assert.ErrorIs(t, err, errs.ErrAnswerOutOfRange)
}

func TestGateway_FeedFailure(t *testing.T) {
	feed := oracle.NewMockFeed()
	gw := oracle.NewGateway(feed, 0, nil)
	feed.Fail(errors.New("rpc down"))

	_, err := gw.FetchPrice(context.Background())
	assert.ErrorIs(t, err, errs.ErrOracleUnavailable)
	assert.Contains(t, err.Error(), "rpc down")
}

func TestGateway_Restore(t *testing.T) {
	feed := oracle.NewMockFeed()
	gw := oracle.NewGateway(feed, 0, nil)
	gw.Restore(uint256.NewInt(42))

	feed.Set(42, 1, 1)
	_, err := gw.FetchPrice(context.Background())
	assert.ErrorIs(t, err, errs.ErrOracleStale)

	feed.Set(43, 1, 1)
	_, err = gw.FetchPrice(context.Background())
	assert.NoError(t, err)
}
