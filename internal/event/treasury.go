package event

import "github.com/ethereum/go-ethereum/common"

type TreasuryDrained struct {
	Recipient common.Address `json:"recipient"`
	Amount    uint64         `json:"amount"`
}

func (e *TreasuryDrained) EventType() EventType {
	return EventTypeTreasuryDrained
}

// DrainReverted restores the treasury after a failed drain transfer.
type DrainReverted struct {
	Amount uint64 `json:"amount"`
	Reason string `json:"reason"`
}

func (e *DrainReverted) EventType() EventType {
	return EventTypeDrainReverted
}
