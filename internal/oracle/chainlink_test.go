package oracle_test

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/oracle"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAggregator answers eth_call requests with ABI-encoded outputs.
type fakeAggregator struct {
	abi       abi.ABI
	address   common.Address
	roundData []interface{}
	decimals  uint8
}

func newFakeAggregator(t *testing.T, address common.Address) *fakeAggregator {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(oracle.AggregatorV3ABI))
	require.NoError(t, err)
	return &fakeAggregator{abi: parsed, address: address, decimals: 8}
}

func (f *fakeAggregator) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if call.To == nil || *call.To != f.address {
		return nil, fmt.Errorf("unexpected target %v", call.To)
	}
	switch {
	case bytes.HasPrefix(call.Data, f.abi.Methods["latestRoundData"].ID):
		return f.abi.Methods["latestRoundData"].Outputs.Pack(f.roundData...)
	case bytes.HasPrefix(call.Data, f.abi.Methods["decimals"].ID):
		return f.abi.Methods["decimals"].Outputs.Pack(f.decimals)
	default:
		return nil, fmt.Errorf("unknown selector %x", call.Data[:4])
	}
}

func TestChainlinkFeed_LatestRoundData(t *testing.T) {
	addr := common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419")
	agg := newFakeAggregator(t, addr)
	roundID := new(big.Int).Lsh(big.NewInt(1), 66) // phase id in the upper bits
	roundID.Add(roundID, big.NewInt(12345))
	agg.roundData = []interface{}{
		roundID,
		big.NewInt(3500_12345678),
		big.NewInt(1700000000),
		big.NewInt(1700000012),
		roundID,
	}

	feed := oracle.NewChainlinkFeed(agg, addr, 0, zerolog.Nop())
	d, err := feed.LatestRoundData(context.Background())
	require.NoError(t, err)

	assert.Equal(t, roundID.String(), d.RoundID.Dec())
	assert.Equal(t, int64(3500_12345678), d.Answer.Int64())
	assert.Equal(t, uint64(1700000000), d.StartedAt)
	assert.Equal(t, uint64(1700000012), d.UpdatedAt)

	dec, err := feed.Decimals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint8(8), dec)
}

func TestChainlinkFeed_ThroughGateway(t *testing.T) {
	addr := common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419")
	agg := newFakeAggregator(t, addr)
	agg.roundData = []interface{}{
		big.NewInt(100), big.NewInt(-5), big.NewInt(1), big.NewInt(0), big.NewInt(100),
	}

	gw := oracle.NewGateway(oracle.NewChainlinkFeed(agg, addr, 0, zerolog.Nop()), 0, nil)
	_, err := gw.FetchPrice(context.Background())
	require.Error(t, err, "updatedAt == 0 must be rejected")

	agg.roundData[3] = big.NewInt(2)
	r, err := gw.FetchPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(-5), r.Price, "signed answers pass through")
}
