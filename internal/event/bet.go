package event

import "github.com/ethereum/go-ethereum/common"

type BetPlaced struct {
	Participant common.Address `json:"participant"`
	Epoch       uint64         `json:"epoch"`
	Amount      uint64         `json:"amount"`
	Position    Position       `json:"position"`
}

func (e *BetPlaced) EventType() EventType {
	return EventTypeBetPlaced
}

// Claimed is emitted per epoch of a successful claim. Refund is set when the
// round never resolved and the stake was returned.
type Claimed struct {
	Participant common.Address `json:"participant"`
	Epoch       uint64         `json:"epoch"`
	Amount      uint64         `json:"amount"`
	Refund      bool           `json:"refund"`
}

func (e *Claimed) EventType() EventType {
	return EventTypeClaimed
}

// ClaimReverted undoes the claimed flags of a claim whose payout transfer failed.
type ClaimReverted struct {
	Participant common.Address `json:"participant"`
	Epochs      []uint64       `json:"epochs"`
	Amount      uint64         `json:"amount"`
	Reason      string         `json:"reason"`
}

func (e *ClaimReverted) EventType() EventType {
	return EventTypeClaimReverted
}
