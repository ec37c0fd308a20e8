package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/core"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/ledger"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/observability"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/state"
	"github.com/holiman/uint256"
)

// Store is the durable state of the market. Every changeset is written in a
// single transaction, so the tables always reflect a prefix of the event log.
type Store struct {
	db      *sql.DB
	dialect Dialect
	writer  *EventLogWriter
	metrics *observability.Metrics
}

func NewStore(db *sql.DB, d Dialect, metrics *observability.Metrics) *Store {
	return &Store{
		db:      db,
		dialect: d,
		writer:  NewEventLogWriter(d),
		metrics: metrics,
	}
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) q(query string) string { return s.dialect.Rebind(query) }

// Commit implements core.Store.
func (s *Store) Commit(ctx context.Context, cs *core.Changeset) (err error) {
	start := time.Now()

	events, err := EventRows(cs.Events)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = s.writer.WriteEventBatch(ctx, tx, events); err != nil {
		return err
	}
	if err = s.writer.WriteJournalBatch(ctx, tx, JournalRows(cs.Batch)); err != nil {
		return err
	}
	for _, key := range ledger.SortedKeys(cs.Balances) {
		if err = s.upsertBalance(ctx, tx, key.AccountPath(), cs.Balances[key]); err != nil {
			return err
		}
	}
	for _, r := range cs.Rounds {
		if err = s.upsertRound(ctx, tx, r); err != nil {
			return err
		}
	}
	for _, b := range cs.Bets {
		if err = s.upsertBet(ctx, tx, b); err != nil {
			return err
		}
	}
	if cs.Treasury != nil {
		if _, err = tx.ExecContext(ctx, s.q(`INSERT INTO treasury (id, balance) VALUES (1, ?)
			ON CONFLICT (id) DO UPDATE SET balance = excluded.balance`), int64(*cs.Treasury)); err != nil {
			return fmt.Errorf("upsert treasury: %w", err)
		}
	}
	if cs.Oracle != nil {
		if _, err = tx.ExecContext(ctx, s.q(`INSERT INTO oracle_state (id, watermark) VALUES (1, ?)
			ON CONFLICT (id) DO UPDATE SET watermark = excluded.watermark`), cs.Oracle.RoundID.Dec()); err != nil {
			return fmt.Errorf("upsert oracle watermark: %w", err)
		}
	}
	if n := len(cs.Events); n > 0 {
		last := cs.Events[n-1]
		if _, err = tx.ExecContext(ctx, s.q(`INSERT INTO engine_state (id, sequence, state_hash) VALUES (1, ?, ?)
			ON CONFLICT (id) DO UPDATE SET sequence = excluded.sequence, state_hash = excluded.state_hash`),
			last.Sequence, last.StateHash[:]); err != nil {
			return fmt.Errorf("upsert engine state: %w", err)
		}
	}
	if cs.RecordResult && cs.CommandID != "" {
		if err = s.insertCommand(ctx, tx, cs.CommandType.String(), cs.Caller, cs.CommandID, cs.LastSequence(), cs.Result); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	if s.metrics != nil {
		s.metrics.PersistCommits.Inc()
		s.metrics.PersistEventsWritten.Add(float64(len(events)))
		s.metrics.PersistCommitDur.Observe(time.Since(start).Seconds())
	}
	return nil
}

// SaveResult implements core.Store. It records the result of a command whose
// effects were committed earlier.
func (s *Store) SaveResult(ctx context.Context, commandType string, caller common.Address, requestID string, sequence int64, res core.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := s.insertCommand(ctx, tx, commandType, caller, requestID, sequence, res); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) insertCommand(ctx context.Context, tx *sql.Tx, commandType string, caller common.Address, requestID string, sequence int64, res core.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = tx.ExecContext(ctx, s.q(`INSERT INTO commands (command_type, caller, request_id, sequence, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (command_type, caller, request_id) DO NOTHING`),
		commandType, addressKey(caller), requestID, sequence, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("insert command: %w", err)
	}
	return nil
}

func (s *Store) upsertBalance(ctx context.Context, tx *sql.Tx, path string, balance int64) error {
	_, err := tx.ExecContext(ctx, s.q(`INSERT INTO balances (account_path, balance) VALUES (?, ?)
		ON CONFLICT (account_path) DO UPDATE SET balance = excluded.balance`), path, balance)
	if err != nil {
		return fmt.Errorf("upsert balance %s: %w", path, err)
	}
	return nil
}

func (s *Store) upsertRound(ctx context.Context, tx *sql.Tx, r *state.Round) error {
	_, err := tx.ExecContext(ctx, s.q(`INSERT INTO rounds (
			epoch, start_timestamp, lock_timestamp, close_timestamp, lock_duration,
			lock_price, close_price, lock_oracle_id, close_oracle_id,
			total_amount, bull_amount, bear_amount, reward_base_cal_amount, reward_amount,
			locked, oracle_called
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (epoch) DO UPDATE SET
			start_timestamp = excluded.start_timestamp,
			lock_timestamp = excluded.lock_timestamp,
			close_timestamp = excluded.close_timestamp,
			lock_duration = excluded.lock_duration,
			lock_price = excluded.lock_price,
			close_price = excluded.close_price,
			lock_oracle_id = excluded.lock_oracle_id,
			close_oracle_id = excluded.close_oracle_id,
			total_amount = excluded.total_amount,
			bull_amount = excluded.bull_amount,
			bear_amount = excluded.bear_amount,
			reward_base_cal_amount = excluded.reward_base_cal_amount,
			reward_amount = excluded.reward_amount,
			locked = excluded.locked,
			oracle_called = excluded.oracle_called`),
		int64(r.Epoch), r.StartTimestamp, r.LockTimestamp, r.CloseTimestamp, r.LockDuration,
		r.LockPrice, r.ClosePrice, oracleID(r.LockOracleID), oracleID(r.CloseOracleID),
		int64(r.TotalAmount), int64(r.BullAmount), int64(r.BearAmount),
		int64(r.RewardBaseCalAmount), int64(r.RewardAmount),
		r.Locked, r.OracleCalled,
	)
	if err != nil {
		return fmt.Errorf("upsert round %d: %w", r.Epoch, err)
	}
	return nil
}

func (s *Store) upsertBet(ctx context.Context, tx *sql.Tx, b ledger.BetInfo) error {
	_, err := tx.ExecContext(ctx, s.q(`INSERT INTO bets (epoch, participant, position, amount, claimed)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (epoch, participant) DO UPDATE SET claimed = excluded.claimed`),
		int64(b.Epoch), addressKey(b.Participant), int32(b.Position), int64(b.Amount), b.Claimed)
	if err != nil {
		return fmt.Errorf("upsert bet %d/%s: %w", b.Epoch, b.Participant.Hex(), err)
	}
	return nil
}

// addressKey is the stored form of an address: lowercase hex.
func addressKey(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func oracleID(id *uint256.Int) string {
	if id == nil {
		return ""
	}
	return id.Dec()
}

func parseOracleID(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, nil
	}
	return uint256.FromDecimal(s)
}
