package math

import (
	"errors"
	gomath "math"
	"math/big"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	ErrDivisionByZero = errors.New("division by zero")
	ErrOverflow       = errors.New("uint64 overflow")
)

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MulDiv computes floor(a * b / c) with a 128-bit intermediate product.
func MulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, ErrDivisionByZero
	}

	product := getInt128()
	divisor := getInt128()
	defer putInt128(product)
	defer putInt128(divisor)

	product.SetUint64(a)
	divisor.SetUint64(b)
	product.Mul(product, divisor)

	divisor.SetUint64(c)
	product.Quo(product, divisor)

	if !product.IsUint64() {
		return 0, ErrOverflow
	}
	return product.Uint64(), nil
}

// Payout returns a winner's share of the reward pool: amount * reward / base,
// truncated toward zero.
func Payout(amount, rewardAmount, rewardBaseCalAmount uint64) (uint64, error) {
	return MulDiv(amount, rewardAmount, rewardBaseCalAmount)
}

// AddUint64 returns a + b, or ErrOverflow.
func AddUint64(a, b uint64) (uint64, error) {
	if a > gomath.MaxUint64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// SubUint64 returns a - b, or ErrOverflow if b > a.
func SubUint64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrOverflow
	}
	return a - b, nil
}

// FormatFixed renders a fixed-point integer with the given number of decimals.
func FormatFixed(value int64, decimals uint8) string {
	return decimal.New(value, -int32(decimals)).String()
}

// FormatAmount renders an unsigned base-unit amount with the given number of decimals.
func FormatAmount(value uint64, decimals uint8) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(value), -int32(decimals)).String()
}
