package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// AggregatorV3ABI covers the two read methods used from a Chainlink aggregator.
const AggregatorV3ABI = `[
	{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"latestRoundData","outputs":[
		{"internalType":"uint80","name":"roundId","type":"uint80"},
		{"internalType":"int256","name":"answer","type":"int256"},
		{"internalType":"uint256","name":"startedAt","type":"uint256"},
		{"internalType":"uint256","name":"updatedAt","type":"uint256"},
		{"internalType":"uint80","name":"answeredInRound","type":"uint80"}
	],"stateMutability":"view","type":"function"}
]`

var aggregatorABI abi.ABI

func init() {
	var err error
	aggregatorABI, err = abi.JSON(strings.NewReader(AggregatorV3ABI))
	if err != nil {
		panic(fmt.Sprintf("parse aggregator abi: %v", err))
	}
}

// ContractCaller is the subset of ethclient.Client used for read-only calls.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ChainlinkFeed reads an AggregatorV3 price feed over JSON-RPC.
type ChainlinkFeed struct {
	caller  ContractCaller
	address common.Address
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewChainlinkFeed wraps caller. rps <= 0 disables rate limiting.
func NewChainlinkFeed(caller ContractCaller, address common.Address, rps float64, logger zerolog.Logger) *ChainlinkFeed {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &ChainlinkFeed{
		caller:  caller,
		address: address,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// DialChainlinkFeed connects to rpcURL and returns a feed for the aggregator at
// address. The caller owns the returned client.
func DialChainlinkFeed(ctx context.Context, rpcURL, address string, rps float64, logger zerolog.Logger) (*ChainlinkFeed, *ethclient.Client, error) {
	if !common.IsHexAddress(address) {
		return nil, nil, fmt.Errorf("invalid aggregator address %q", address)
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return NewChainlinkFeed(client, common.HexToAddress(address), rps, logger), client, nil
}

func (f *ChainlinkFeed) LatestRoundData(ctx context.Context) (RoundData, error) {
	vals, err := f.call(ctx, "latestRoundData")
	if err != nil {
		return RoundData{}, err
	}
	if len(vals) != 5 {
		return RoundData{}, fmt.Errorf("latestRoundData: unexpected %d outputs", len(vals))
	}

	roundID, err := toUint256(vals[0])
	if err != nil {
		return RoundData{}, fmt.Errorf("latestRoundData roundId: %w", err)
	}
	answer, ok := vals[1].(*big.Int)
	if !ok {
		return RoundData{}, fmt.Errorf("latestRoundData answer: unexpected type %T", vals[1])
	}
	startedAt, err := toUint64(vals[2])
	if err != nil {
		return RoundData{}, fmt.Errorf("latestRoundData startedAt: %w", err)
	}
	updatedAt, err := toUint64(vals[3])
	if err != nil {
		return RoundData{}, fmt.Errorf("latestRoundData updatedAt: %w", err)
	}
	answeredIn, err := toUint256(vals[4])
	if err != nil {
		return RoundData{}, fmt.Errorf("latestRoundData answeredInRound: %w", err)
	}

	f.logger.Debug().
		Str("round_id", roundID.Dec()).
		Str("answer", answer.String()).
		Uint64("updated_at", updatedAt).
		Msg("oracle read")

	return RoundData{
		RoundID:         roundID,
		Answer:          answer,
		StartedAt:       startedAt,
		UpdatedAt:       updatedAt,
		AnsweredInRound: answeredIn,
	}, nil
}

// Decimals returns the feed's answer precision.
func (f *ChainlinkFeed) Decimals(ctx context.Context) (uint8, error) {
	vals, err := f.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	if len(vals) != 1 {
		return 0, fmt.Errorf("decimals: unexpected %d outputs", len(vals))
	}
	d, ok := vals[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals: unexpected type %T", vals[0])
	}
	return d, nil
}

func (f *ChainlinkFeed) call(ctx context.Context, method string) ([]interface{}, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limit: %w", method, err)
	}

	data, err := aggregatorABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("%s: pack: %w", method, err)
	}

	result, err := f.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &f.address,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: call: %w", method, err)
	}

	vals, err := aggregatorABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("%s: unpack: %w", method, err)
	}
	return vals, nil
}

func toUint256(v interface{}) (*uint256.Int, error) {
	b, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected type %T", v)
	}
	u, overflow := uint256.FromBig(b)
	if overflow || b.Sign() < 0 {
		return nil, fmt.Errorf("value %s out of range", b)
	}
	return u, nil
}

func toUint64(v interface{}) (uint64, error) {
	b, ok := v.(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected type %T", v)
	}
	if !b.IsUint64() {
		return 0, fmt.Errorf("value %s out of range", b)
	}
	return b.Uint64(), nil
}
