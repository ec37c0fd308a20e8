package query

import (
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/ledger"
	fpmath "github.com/gcdeng/eth-price-prediction-dapp/internal/math"
)

// BalanceResponse represents a participant's ledger position.
type BalanceResponse struct {
	Participant string `json:"participant"`

	// Net position against the market: negative while stakes are in escrow,
	// raised back by payouts and refunds.
	WalletBalance int64 `json:"wallet_balance"`

	// Derived values (computed at query time, NOT ledger balances)
	OpenStake        uint64 `json:"open_stake"`        // unclaimed stakes of unresolved rounds
	ClaimableRounds  int    `json:"claimable_rounds"`  // epochs with a winning share to collect
	RefundableRounds int    `json:"refundable_rounds"` // epochs with a stake to recover

	AsOfSequence int64 `json:"as_of_sequence"`
}

// AccountBalance is one ledger account for the admin balance listing.
type AccountBalance struct {
	Account        string `json:"account"`
	Balance        int64  `json:"balance"`
	BalanceDisplay string `json:"balance_display"`
}

// GetBalance returns a participant's ledger position.
func (qs *QueryService) GetBalance(ctx context.Context, participant common.Address) (*BalanceResponse, error) {
	resp := &BalanceResponse{
		Participant:   participant.Hex(),
		WalletBalance: qs.view.Balance(ledger.UserWallet(participant)),
		AsOfSequence:  qs.view.AsOfSequence(),
	}

	now := qs.now()
	bets, _, total := qs.view.UserRounds(participant, 0, 0)
	if total > 0 {
		bets, _, _ = qs.view.UserRounds(participant, 0, total)
	}
	for _, b := range bets {
		if b.Claimed {
			continue
		}
		r, ok := qs.view.Round(b.Epoch)
		if !ok {
			continue
		}
		if !r.Resolved() {
			resp.OpenStake += b.Amount
		}
		if ledger.Claimable(r, b) {
			resp.ClaimableRounds++
		}
		if ledger.Refundable(r, b, now) {
			resp.RefundableRounds++
		}
	}
	return resp, nil
}

// LedgerBalances lists every ledger account ordered by account path.
func (qs *QueryService) LedgerBalances(ctx context.Context) ([]AccountBalance, error) {
	balances := qs.view.Balances()
	out := make([]AccountBalance, 0, len(balances))
	for k, b := range balances {
		out = append(out, AccountBalance{
			Account:        k.AccountPath(),
			Balance:        b,
			BalanceDisplay: fpmath.FormatFixed(b, qs.opts.AmountDecimals),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out, nil
}
