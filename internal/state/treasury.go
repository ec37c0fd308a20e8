package state

import (
	"github.com/gcdeng/eth-price-prediction-dapp/internal/errs"
	fpmath "github.com/gcdeng/eth-price-prediction-dapp/internal/math"
)

// Treasury accumulates the pots of tie rounds. It is credited only by
// settlement and emptied only by a full administrator drain; the balance is
// mirrored by the system:treasury ledger account.
type Treasury struct {
	balance uint64
}

func NewTreasury() *Treasury {
	return &Treasury{}
}

func (t *Treasury) Balance() uint64 {
	return t.balance
}

// PrepareCredit returns the balance after crediting amount.
func (t *Treasury) PrepareCredit(amount uint64) (uint64, error) {
	next, err := fpmath.AddUint64(t.balance, amount)
	if err != nil {
		return 0, errs.ErrAmountOverflow.With("treasury %d + %d", t.balance, amount)
	}
	return next, nil
}

// PrepareDrain returns the amount a full drain would move.
func (t *Treasury) PrepareDrain() (uint64, error) {
	if t.balance == 0 {
		return 0, errs.ErrEmptyTreasury
	}
	return t.balance, nil
}

// Set installs a committed balance.
func (t *Treasury) Set(balance uint64) {
	t.balance = balance
}
