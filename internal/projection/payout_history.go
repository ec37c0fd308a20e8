package projection

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/event"
)

// PayoutEntry is one claimed winning share or refund.
type PayoutEntry struct {
	Participant common.Address
	Epoch       uint64
	Amount      uint64
	Refund      bool
	// Reverted is set when the transfer failed and the claim was rolled back.
	Reverted  bool
	Sequence  int64
	Timestamp int64
}

// PayoutHistory keeps the payouts observed since the view was last reset.
// Not thread-safe; View guards it.
type PayoutHistory struct {
	entries []PayoutEntry
}

func NewPayoutHistory() *PayoutHistory {
	return &PayoutHistory{
		entries: make([]PayoutEntry, 0),
	}
}

// Observe records Claimed events and marks entries undone by ClaimReverted.
func (p *PayoutHistory) Observe(env *event.EventEnvelope) {
	switch evt := env.Payload.(type) {
	case *event.Claimed:
		p.entries = append(p.entries, PayoutEntry{
			Participant: evt.Participant,
			Epoch:       evt.Epoch,
			Amount:      evt.Amount,
			Refund:      evt.Refund,
			Sequence:    env.Sequence,
			Timestamp:   env.Timestamp,
		})
	case *event.ClaimReverted:
		pending := make(map[uint64]bool, len(evt.Epochs))
		for _, e := range evt.Epochs {
			pending[e] = true
		}
		for i := len(p.entries) - 1; i >= 0 && len(pending) > 0; i-- {
			e := &p.entries[i]
			if e.Participant != evt.Participant || e.Reverted || !pending[e.Epoch] {
				continue
			}
			e.Reverted = true
			delete(pending, e.Epoch)
		}
	}
}

// QueryByParticipant returns up to limit entries for the participant, newest
// first.
func (p *PayoutHistory) QueryByParticipant(participant common.Address, limit int) []PayoutEntry {
	result := make([]PayoutEntry, 0)

	for i := len(p.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if p.entries[i].Participant == participant {
			result = append(result, p.entries[i])
		}
	}

	return result
}
