package ledger

import "fmt"

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateGlobalBalance verifies the system is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	if total := v.tracker.ComputeGlobalBalance(); total != 0 {
		return fmt.Errorf("global balance is non-zero: %d", total)
	}
	return nil
}

// ValidateEscrowNonNegative checks that payouts never exceed stakes held.
func (v *InvariantValidator) ValidateEscrowNonNegative() error {
	return v.tracker.ValidateNonNegative(Escrow())
}

// ValidateTreasury checks that the treasury account mirrors the accumulator.
func (v *InvariantValidator) ValidateTreasury(accumulator uint64) error {
	balance := v.tracker.TreasuryBalance()
	if balance < 0 || uint64(balance) != accumulator {
		return fmt.Errorf("treasury account %d != accumulator %d", balance, accumulator)
	}
	return nil
}

// ValidateEscrowCovers checks that escrow holds at least what is still owed
// to participants.
func (v *InvariantValidator) ValidateEscrowCovers(outstanding uint64) error {
	escrow := v.tracker.EscrowBalance()
	if escrow < 0 || uint64(escrow) < outstanding {
		return fmt.Errorf("escrow %d does not cover outstanding %d", escrow, outstanding)
	}
	return nil
}

// ValidateAll runs every balance invariant.
func (v *InvariantValidator) ValidateAll(treasury uint64) error {
	if err := v.ValidateGlobalBalance(); err != nil {
		return err
	}
	if err := v.ValidateEscrowNonNegative(); err != nil {
		return err
	}
	return v.ValidateTreasury(treasury)
}
