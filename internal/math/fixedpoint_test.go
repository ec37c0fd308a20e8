package math_test

import (
	gomath "math"
	"testing"

	fpmath "github.com/gcdeng/eth-price-prediction-dapp/internal/math"
)

func TestMulDiv(t *testing.T) {
	tests := []struct {
		name    string
		a, b, c uint64
		want    uint64
	}{
		{"exact", 1, 4, 2, 2},
		{"truncates", 1, 10, 3, 3},
		{"zero amount", 0, 10, 3, 0},
		{"needs 128-bit intermediate", gomath.MaxUint64, gomath.MaxUint64, gomath.MaxUint64, gomath.MaxUint64},
		{"large pool", 3_000_000_000_000_000_000, 9_000_000_000_000_000_000, 6_000_000_000_000_000_000, 4_500_000_000_000_000_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fpmath.MulDiv(tt.a, tt.b, tt.c)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("MulDiv(%d,%d,%d): got %d, want %d", tt.a, tt.b, tt.c, got, tt.want)
			}
		})
	}
}

func TestMulDiv_DivisionByZero(t *testing.T) {
	if _, err := fpmath.MulDiv(1, 1, 0); err != fpmath.ErrDivisionByZero {
		t.Errorf("got %v, want ErrDivisionByZero", err)
	}
}

func TestMulDiv_Overflow(t *testing.T) {
	if _, err := fpmath.MulDiv(gomath.MaxUint64, 2, 1); err != fpmath.ErrOverflow {
		t.Errorf("got %v, want ErrOverflow", err)
	}
}

func TestPayout_ResidualStaysUnpaid(t *testing.T) {
	// three equal winners splitting a pool of 10
	var paid uint64
	for i := 0; i < 3; i++ {
		p, err := fpmath.Payout(1, 10, 3)
		if err != nil {
			t.Fatal(err)
		}
		paid += p
	}
	if paid != 9 {
		t.Errorf("paid: got %d, want 9 (residual 1)", paid)
	}
}

func TestAddSubUint64(t *testing.T) {
	if _, err := fpmath.AddUint64(gomath.MaxUint64, 1); err != fpmath.ErrOverflow {
		t.Errorf("add overflow: got %v", err)
	}
	if v, err := fpmath.AddUint64(2, 3); err != nil || v != 5 {
		t.Errorf("add: got %d, %v", v, err)
	}
	if _, err := fpmath.SubUint64(1, 2); err != fpmath.ErrOverflow {
		t.Errorf("sub underflow: got %v", err)
	}
}

func TestFormatFixed(t *testing.T) {
	if got := fpmath.FormatFixed(350012345678, 8); got != "3500.12345678" {
		t.Errorf("got %s", got)
	}
	if got := fpmath.FormatAmount(1_500_000_000_000_000_000, 18); got != "1.5" {
		t.Errorf("got %s", got)
	}
}
