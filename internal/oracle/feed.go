// Package oracle validates price snapshots read from an external feed before
// they are written into a round.
package oracle

import (
	"context"
	"math/big"

	"github.com/holiman/uint256"
)

// RoundData is one latestRoundData() answer of an AggregatorV3-style feed.
type RoundData struct {
	RoundID         *uint256.Int
	Answer          *big.Int
	StartedAt       uint64
	UpdatedAt       uint64 // zero while the feed round is not finalized
	AnsweredInRound *uint256.Int
}

// Feed is the read contract consumed from the price oracle.
type Feed interface {
	LatestRoundData(ctx context.Context) (RoundData, error)
}
