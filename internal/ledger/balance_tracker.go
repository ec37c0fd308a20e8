package ledger

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// WalletBalance returns the participant's net position against the market.
func (bt *BalanceTracker) WalletBalance(addr common.Address) int64 {
	return bt.GetBalance(UserWallet(addr))
}

func (bt *BalanceTracker) EscrowBalance() int64 {
	return bt.GetBalance(Escrow())
}

func (bt *BalanceTracker) TreasuryBalance() int64 {
	return bt.GetBalance(TreasuryAccount())
}

// ComputeGlobalBalance sums all account balances (should be 0 for zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() int64 {
	var total int64
	for _, balance := range bt.balances {
		total += balance
	}
	return total
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// Restore replaces all balances during recovery.
func (bt *BalanceTracker) Restore(balances map[AccountKey]int64) {
	bt.balances = make(map[AccountKey]int64, len(balances))
	for k, v := range balances {
		bt.balances[k] = v
	}
}

// Snapshot returns a copy of all balances
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}

// Preview returns the balances that would result from applying batch,
// restricted to the accounts it touches. The tracker is not modified.
func (bt *BalanceTracker) Preview(batch *Batch) map[AccountKey]int64 {
	out := make(map[AccountKey]int64)
	if batch.Empty() {
		return out
	}
	for _, j := range batch.Journals {
		if _, ok := out[j.DebitAccount]; !ok {
			out[j.DebitAccount] = bt.balances[j.DebitAccount]
		}
		if _, ok := out[j.CreditAccount]; !ok {
			out[j.CreditAccount] = bt.balances[j.CreditAccount]
		}
		out[j.DebitAccount] += j.Amount
		out[j.CreditAccount] -= j.Amount
	}
	return out
}

// SortedKeys returns account keys ordered by path, for deterministic output.
func SortedKeys(m map[AccountKey]int64) []AccountKey {
	keys := make([]AccountKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].AccountPath() < keys[j].AccountPath() })
	return keys
}
