package persistence

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/event"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/ledger"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/state"
)

const roundColumns = `epoch, start_timestamp, lock_timestamp, close_timestamp, lock_duration,
	lock_price, close_price, lock_oracle_id, close_oracle_id,
	total_amount, bull_amount, bear_amount, reward_base_cal_amount, reward_amount,
	locked, oracle_called`

// ListRounds returns rounds in ascending epoch order, starting after the
// given epoch. A zero limit returns all of them.
func (s *Store) ListRounds(ctx context.Context, after uint64, limit int) ([]*state.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE epoch > ? ORDER BY epoch ASC`
	args := []any{int64(after)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	defer rows.Close()

	var out []*state.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// BetsByParticipant returns a participant's wagers in epoch order.
func (s *Store) BetsByParticipant(ctx context.Context, participant common.Address) ([]ledger.BetInfo, error) {
	return s.listBets(ctx, s.q(`SELECT epoch, participant, position, amount, claimed
		FROM bets WHERE participant = ? ORDER BY epoch`), addressKey(participant))
}

func (s *Store) listBets(ctx context.Context, query string, args ...any) ([]ledger.BetInfo, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bets: %w", err)
	}
	defer rows.Close()

	var out []ledger.BetInfo
	for rows.Next() {
		var (
			b             ledger.BetInfo
			epoch, amount int64
			participant   string
			position      int32
		)
		if err := rows.Scan(&epoch, &participant, &position, &amount, &b.Claimed); err != nil {
			return nil, err
		}
		b.Epoch = uint64(epoch)
		b.Participant = common.HexToAddress(participant)
		b.Position = event.Position(position)
		b.Amount = uint64(amount)
		out = append(out, b)
	}
	return out, rows.Err()
}

// JournalForEpoch returns the journal entries of one round in sequence order.
func (s *Store) JournalForEpoch(ctx context.Context, epoch uint64) ([]JournalRow, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT journal_id, batch_id, event_ref, sequence, debit_account, credit_account, amount, journal_type, epoch, timestamp
		FROM journal WHERE epoch = ? ORDER BY sequence, journal_id`), int64(epoch))
	if err != nil {
		return nil, fmt.Errorf("journal for epoch %d: %w", epoch, err)
	}
	defer rows.Close()

	var out []JournalRow
	for rows.Next() {
		var j JournalRow
		var ep int64
		if err := rows.Scan(&j.JournalID, &j.BatchID, &j.EventRef, &j.Sequence, &j.DebitAccount, &j.CreditAccount,
			&j.Amount, &j.JournalType, &ep, &j.Timestamp); err != nil {
			return nil, err
		}
		j.Epoch = uint64(ep)
		out = append(out, j)
	}
	return out, rows.Err()
}
