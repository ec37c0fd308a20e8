package auth

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/errs"
)

// CodeReader reads deployed contract code; *ethclient.Client satisfies it.
type CodeReader interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// ContractFilter rejects participants whose address has deployed code.
// Only externally owned accounts may wager or claim.
type ContractFilter struct {
	reader  CodeReader
	timeout time.Duration
}

func NewContractFilter(reader CodeReader, timeout time.Duration) *ContractFilter {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &ContractFilter{reader: reader, timeout: timeout}
}

// Allow returns ErrContractCaller for contract accounts. A failed lookup is
// returned as is and fails the command.
func (f *ContractFilter) Allow(ctx context.Context, addr common.Address) error {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	code, err := f.reader.CodeAt(ctx, addr, nil)
	if err != nil {
		return fmt.Errorf("code at %s: %w", addr.Hex(), err)
	}
	if len(code) > 0 {
		return errs.ErrContractCaller.With("%s has deployed code", addr.Hex())
	}
	return nil
}
