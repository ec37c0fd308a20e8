package state

import "fmt"

// ValidateRoundTotals checks total == bull + bear and that settlement fields
// are only populated on a resolved round.
func ValidateRoundTotals(r *Round) error {
	if r.BullAmount+r.BearAmount != r.TotalAmount || r.BullAmount > r.TotalAmount {
		return fmt.Errorf("epoch %d: total %d != bull %d + bear %d",
			r.Epoch, r.TotalAmount, r.BullAmount, r.BearAmount)
	}
	if !r.OracleCalled && (r.RewardAmount != 0 || r.RewardBaseCalAmount != 0) {
		return fmt.Errorf("epoch %d: reward fields set before resolution", r.Epoch)
	}
	if r.RewardBaseCalAmount > r.RewardAmount {
		return fmt.Errorf("epoch %d: reward base %d exceeds reward %d",
			r.Epoch, r.RewardBaseCalAmount, r.RewardAmount)
	}
	return nil
}
