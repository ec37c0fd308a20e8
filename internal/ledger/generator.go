package ledger

import (
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/errs"
	"github.com/google/uuid"
)

// JournalGenerator creates the balanced journal batch for one command.
//
// Value flows:
//
//	wager      user:<addr>:wallet → system:escrow
//	tie sweep  system:escrow      → system:treasury
//	payout     system:escrow      → user:<addr>:wallet
//	refund     system:escrow      → user:<addr>:wallet
//	drain      system:treasury    → user:<admin>:wallet
type JournalGenerator struct {
	batch *Batch
}

// NewJournalGenerator starts a batch for the command identified by ref.
func NewJournalGenerator(ref string, sequence, timestamp int64) *JournalGenerator {
	return &JournalGenerator{
		batch: &Batch{
			BatchID:   uuid.New(),
			EventRef:  ref,
			Sequence:  sequence,
			Timestamp: timestamp,
		},
	}
}

// Wager moves a stake from the participant into escrow.
func (jg *JournalGenerator) Wager(participant common.Address, epoch, amount uint64) error {
	return jg.add(Escrow(), UserWallet(participant), amount, JournalTypeWager, epoch)
}

// TieSweep moves a tied round's pot from escrow to the treasury.
func (jg *JournalGenerator) TieSweep(epoch, amount uint64) error {
	return jg.add(TreasuryAccount(), Escrow(), amount, JournalTypeTieSweep, epoch)
}

// Payout releases a winner's share from escrow.
func (jg *JournalGenerator) Payout(participant common.Address, epoch, amount uint64) error {
	return jg.add(UserWallet(participant), Escrow(), amount, JournalTypePayout, epoch)
}

// Refund returns the stake of an unresolved round.
func (jg *JournalGenerator) Refund(participant common.Address, epoch, amount uint64) error {
	return jg.add(UserWallet(participant), Escrow(), amount, JournalTypeRefund, epoch)
}

// TreasuryDrain empties the treasury to the administrator.
func (jg *JournalGenerator) TreasuryDrain(recipient common.Address, amount uint64) error {
	return jg.add(UserWallet(recipient), TreasuryAccount(), amount, JournalTypeTreasuryDrain, 0)
}

// Batch returns the generated batch, or nil when nothing moved.
func (jg *JournalGenerator) Batch() *Batch {
	if len(jg.batch.Journals) == 0 {
		return nil
	}
	return jg.batch
}

func (jg *JournalGenerator) add(debit, credit AccountKey, amount uint64, jt JournalType, epoch uint64) error {
	// Zero-value legs (e.g. a tie with no wagers) are skipped.
	if amount == 0 {
		return nil
	}
	signed, err := ToSigned(amount)
	if err != nil {
		return err
	}
	jg.batch.Journals = append(jg.batch.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       jg.batch.BatchID,
		EventRef:      jg.batch.EventRef,
		Sequence:      jg.batch.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		Amount:        signed,
		JournalType:   jt,
		Epoch:         epoch,
		Timestamp:     jg.batch.Timestamp,
	})
	return nil
}

// Reverse builds the compensating batch for orig: every leg is swapped.
func Reverse(orig *Batch, ref string, sequence, timestamp int64) *Batch {
	if orig.Empty() {
		return nil
	}
	rev := &Batch{
		BatchID:   uuid.New(),
		EventRef:  ref,
		Sequence:  sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, len(orig.Journals)),
	}
	for _, j := range orig.Journals {
		rev.Journals = append(rev.Journals, Journal{
			JournalID:     uuid.New(),
			BatchID:       rev.BatchID,
			EventRef:      ref,
			Sequence:      sequence,
			DebitAccount:  j.CreditAccount,
			CreditAccount: j.DebitAccount,
			Amount:        j.Amount,
			JournalType:   JournalTypeReversal,
			Epoch:         j.Epoch,
			Timestamp:     timestamp,
		})
	}
	return rev
}

// ToSigned converts a native amount to a ledger amount. Balances are int64,
// so amounts above math.MaxInt64 are rejected.
func ToSigned(amount uint64) (int64, error) {
	if amount > math.MaxInt64 {
		return 0, errs.ErrAmountOverflow.With("amount %d exceeds ledger range", amount)
	}
	return int64(amount), nil
}
