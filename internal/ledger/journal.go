package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeWager JournalType = iota
	JournalTypeTieSweep
	JournalTypePayout
	JournalTypeRefund
	JournalTypeTreasuryDrain
	JournalTypeReversal
)

func (t JournalType) String() string {
	switch t {
	case JournalTypeWager:
		return "wager"
	case JournalTypeTieSweep:
		return "tie_sweep"
	case JournalTypePayout:
		return "payout"
	case JournalTypeRefund:
		return "refund"
	case JournalTypeTreasuryDrain:
		return "treasury_drain"
	case JournalTypeReversal:
		return "reversal"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID   // Unique identifier
	BatchID       uuid.UUID   // Groups balanced entries
	EventRef      string      // Idempotency key of the source command
	Sequence      int64       // Global event sequence
	DebitAccount  AccountKey  // Account receiving debit (balance increases)
	CreditAccount AccountKey  // Account receiving credit (balance decreases)
	Amount        int64       // Native units (ALWAYS positive)
	JournalType   JournalType // Entry type
	Epoch         uint64      // Round the entry belongs to, 0 for treasury drains
	Timestamp     int64       // Command timestamp (unix seconds)
}

// Batch represents a balanced set of journal entries
type Batch struct {
	BatchID   uuid.UUID
	EventRef  string
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

// Validate ensures the batch is well-formed.
// Each journal entry moves a single positive amount from credit account to
// debit account, so Σ debits == Σ credits holds per entry.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if j.Amount <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}
	}

	return nil
}

// Empty reports whether b is nil or carries no entries.
func (b *Batch) Empty() bool {
	return b == nil || len(b.Journals) == 0
}
